package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanConn implements Conn over a pair of channels for in-process testing,
// JSON round-tripping through the channels the same way a real socket
// would.
type chanConn struct {
	in   chan json.RawMessage
	out  chan json.RawMessage
	done chan struct{}
	once sync.Once
}

func (c *chanConn) ReadJSON(v any) error {
	select {
	case raw, ok := <-c.in:
		if !ok {
			return errClosedConn
		}
		return json.Unmarshal(raw, v)
	case <-c.done:
		return errClosedConn
	}
}

func (c *chanConn) WriteJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.out <- raw:
		return nil
	case <-c.done:
		return errClosedConn
	}
}

func (c *chanConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

var errClosedConn = assertErr{"connection closed"}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func connPair() (*chanConn, *chanConn) {
	ab := make(chan json.RawMessage, 32)
	ba := make(chan json.RawMessage, 32)
	return &chanConn{in: ba, out: ab, done: make(chan struct{})},
		&chanConn{in: ab, out: ba, done: make(chan struct{})}
}

// fakeDialer hands out a single preconnected Conn, then fails forever
// (simulating a gateway that never comes back).
type fakeDialer struct {
	mu    sync.Mutex
	conns []Conn
	calls int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.calls < len(d.conns) {
		c := d.conns[d.calls]
		d.calls++
		return c, nil
	}
	d.calls++
	return nil, errClosedConn
}

// serverSide runs a minimal fake gateway loop against conn: it echoes
// back a success response for every action frame it reads.
func serverSide(t *testing.T, conn *chanConn, respond func(OutboundFrame) InboundFrame) {
	t.Helper()
	go func() {
		for {
			var req OutboundFrame
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := respond(req)
			resp.Echo = req.Echo
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}()
}

func TestSendCorrelatesResponseByEcho(t *testing.T) {
	clientConn, serverConn := connPair()
	serverSide(t, serverConn, func(req OutboundFrame) InboundFrame {
		assert.Equal(t, "send_group_msg", req.Action)
		return InboundFrame{Status: "ok", RetCode: 0}
	})

	dialer := &fakeDialer{conns: []Conn{clientConn}}
	c := New(Options{URL: "ws://fake", Dialer: dialer})
	require.NoError(t, c.Load(context.Background()))
	defer c.Close(context.Background())

	resp, err := c.Send(context.Background(), "send_group_msg", map[string]any{"group_id": "1"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestSendReturnsAPIErrorOnFailedStatus(t *testing.T) {
	clientConn, serverConn := connPair()
	serverSide(t, serverConn, func(req OutboundFrame) InboundFrame {
		return InboundFrame{Status: "failed", RetCode: 100, Message: "boom"}
	})

	dialer := &fakeDialer{conns: []Conn{clientConn}}
	c := New(Options{URL: "ws://fake", Dialer: dialer})
	require.NoError(t, c.Load(context.Background()))
	defer c.Close(context.Background())

	_, err := c.Send(context.Background(), "whatever", nil, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)
}

func TestSendTimesOutWhenNoResponseArrives(t *testing.T) {
	clientConn, _ := connPair() // server side never responds

	dialer := &fakeDialer{conns: []Conn{clientConn}}
	c := New(Options{URL: "ws://fake", Dialer: dialer})
	require.NoError(t, c.Load(context.Background()))
	defer c.Close(context.Background())

	_, err := c.Send(context.Background(), "send_group_msg", nil, 20*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestCloseFailsOutstandingPendingRequests(t *testing.T) {
	clientConn, _ := connPair()

	dialer := &fakeDialer{conns: []Conn{clientConn}}
	c := New(Options{URL: "ws://fake", Dialer: dialer})
	require.NoError(t, c.Load(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "send_group_msg", nil, 5*time.Second)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Close(context.Background()))

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Send never returned after Close")
	}
}

func TestDispatchReceivesEventFramesWithoutEcho(t *testing.T) {
	clientConn, serverConn := connPair()

	received := make(chan map[string]any, 1)
	dialer := &fakeDialer{conns: []Conn{clientConn}}
	c := New(Options{
		URL:    "ws://fake",
		Dialer: dialer,
		Dispatch: func(ctx context.Context, payload map[string]any) {
			received <- payload
		},
	})
	require.NoError(t, c.Load(context.Background()))
	defer c.Close(context.Background())

	require.NoError(t, serverConn.WriteJSON(map[string]any{
		"post_type":    "message",
		"message_type": "private",
		"user_id":      float64(123),
	}))

	select {
	case payload := <-received:
		assert.Equal(t, "message", payload["post_type"])
	case <-time.After(time.Second):
		t.Fatal("dispatch callback never fired")
	}
}
