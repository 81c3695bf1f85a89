// Package gateway is the WebSocket client that speaks the OneBot-style
// frame protocol to the NapCat-style message gateway: request/response
// correlation by echo id, reconnection with bounded exponential backoff,
// and outbound rate limiting.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/event"
	"github.com/ncatbot/ncatbot-go/eventbus"
	"github.com/ncatbot/ncatbot-go/logger"
)

// Reconnect backoff bounds: 1s, 2s, 4s, ... capped at maxBackoff.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

var (
	ErrConnectionLost = errors.New("gateway: connection lost")
	ErrTimeout        = errors.New("gateway: request timed out")
	ErrAPI            = errors.New("gateway: action failed")
	ErrClosed         = errors.New("gateway: client closed")
)

// OutboundFrame is the wire shape of an action request.
type OutboundFrame struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
	Echo   string         `json:"echo"`
}

// InboundFrame is the wire shape of either a correlated response or a
// bare event payload (no echo field).
type InboundFrame struct {
	Echo    string          `json:"echo,omitempty"`
	Status  string          `json:"status,omitempty"`
	RetCode int             `json:"retcode,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`

	raw map[string]any
}

// Dialer opens the transport-level connection. The default implementation
// wraps gorilla/websocket.Dialer; tests substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn abstracts the live WebSocket connection for testability.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// pendingResult is what a pending request resolves to: either a real
// inbound response frame, or cause set by failAllPending when the
// transport drops (or the client closes) with the request still
// outstanding. Keeping these separate lets Send distinguish a
// connection-level failure from an ordinary API-level retcode failure,
// which a synthetic InboundFrame{Status: "failed"} could not do on its
// own.
type pendingResult struct {
	frame InboundFrame
	cause error
}

type pending struct {
	done chan pendingResult
}

// Client is the long-lived gateway connection. The zero value is not
// usable; construct with New.
type Client struct {
	url     string
	dialer  Dialer
	dispatch func(ctx context.Context, payload map[string]any)
	limiter *rate.Limiter

	mu      sync.Mutex
	conn    Conn
	pendingReqs map[string]*pending
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures a Client.
type Options struct {
	URL string
	// RateLimit and Burst bound outbound actions so a buggy or malicious
	// plugin can't flood the gateway. Zero means unlimited.
	RateLimit rate.Limit
	Burst     int
	Dialer    Dialer
	// Dispatch receives every inbound frame without an echo (i.e. a
	// gateway event), already decoded into a generic payload map.
	Dispatch func(ctx context.Context, payload map[string]any)
}

// New constructs a Client. Call Load to connect and begin the listen loop.
func New(opts Options) *Client {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = gorillaDialer{}
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	return &Client{
		url:         opts.URL,
		dialer:      dialer,
		dispatch:    opts.Dispatch,
		limiter:     limiter,
		pendingReqs: make(map[string]*pending),
	}
}

// Load implements service.Service: dials the gateway and starts the
// background listen-with-reconnect loop.
func (c *Client) Load(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		cancel()
		return errors.Wrapf(err, "gateway: initial dial to %s", c.url)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.runLoop(runCtx)
	return nil
}

// Close implements service.Service: cancels the listen loop, closes the
// socket, and fails every outstanding pending request.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if c.done != nil {
		select {
		case <-c.done:
		case <-time.After(5 * time.Second):
		}
	}
	c.failAllPending(ErrClosed)
	return nil
}

func (c *Client) runLoop(ctx context.Context) {
	defer close(c.done)
	backoff := initialBackoff

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			newConn, err := c.dialer.Dial(ctx, c.url)
			if err != nil {
				logger.GatewayWarnw("gateway reconnect failed", "error", err, "backoff", backoff)
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			backoff = initialBackoff
			c.mu.Lock()
			c.conn = newConn
			c.mu.Unlock()
			logger.GatewayInfow("gateway reconnected")
			continue
		}

		var frame InboundFrame
		err := conn.ReadJSON(&frame)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.GatewayWarnw("gateway read failed, reconnecting", "error", err)
			conn.Close()
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			c.failAllPending(ErrConnectionLost)
			continue
		}

		c.handleFrame(ctx, frame)
	}
}

func (c *Client) handleFrame(ctx context.Context, frame InboundFrame) {
	if frame.Echo != "" {
		c.mu.Lock()
		p, ok := c.pendingReqs[frame.Echo]
		if ok {
			delete(c.pendingReqs, frame.Echo)
		}
		c.mu.Unlock()
		if ok {
			p.done <- pendingResult{frame: frame}
		}
		return
	}

	if c.dispatch != nil {
		var payload map[string]any
		if len(frame.raw) > 0 {
			payload = frame.raw
		} else {
			payload = map[string]any{}
		}
		c.dispatch(ctx, payload)
	}
}

// Send issues an action request and blocks until the correlated response
// arrives or timeout elapses. Outbound actions are rate-limited if a
// limiter was configured.
func (c *Client) Send(ctx context.Context, action string, params map[string]any, timeout time.Duration) (*InboundFrame, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "gateway: rate limit wait")
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrConnectionLost
	}

	echo := uuid.NewString()
	p := &pending{done: make(chan pendingResult, 1)}
	c.mu.Lock()
	c.pendingReqs[echo] = p
	c.mu.Unlock()

	frame := OutboundFrame{Action: action, Params: params, Echo: echo}
	if err := conn.WriteJSON(frame); err != nil {
		c.mu.Lock()
		delete(c.pendingReqs, echo)
		c.mu.Unlock()
		return nil, errors.Wrapf(err, "gateway: send action %q", action)
	}

	select {
	case result := <-p.done:
		if result.cause != nil {
			return nil, errors.Wrapf(result.cause, "action %q", action)
		}
		resp := result.frame
		if resp.Status == "failed" || resp.RetCode != 0 {
			return &resp, errors.Wrapf(ErrAPI, "action %q: retcode=%d message=%s", action, resp.RetCode, resp.Message)
		}
		return &resp, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pendingReqs, echo)
		c.mu.Unlock()
		return nil, errors.Wrapf(ErrTimeout, "action %q after %s", action, timeout)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pendingReqs, echo)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *Client) failAllPending(cause error) {
	c.mu.Lock()
	reqs := c.pendingReqs
	c.pendingReqs = make(map[string]*pending)
	c.mu.Unlock()

	for _, p := range reqs {
		p.done <- pendingResult{cause: cause}
	}
}

// UnmarshalJSON captures the full decoded object in raw so event-only
// frames (no echo) can be forwarded to the dispatcher without losing
// fields the typed struct doesn't name.
func (f *InboundFrame) UnmarshalJSON(data []byte) error {
	type alias InboundFrame
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = InboundFrame(a)

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.raw = raw
	return nil
}

var _ event.API = (*API)(nil)
