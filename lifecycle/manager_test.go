package lifecycle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFakeGateway runs a minimal gateway that accepts the connection
// and otherwise stays silent, enough for Load to succeed and for
// coreExecution to reach its blocking wait.
func startFakeGateway(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeTestConfig(t *testing.T, gatewayURL, pluginsDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.yaml")
	content := "gateway:\n" +
		"  url: \"" + gatewayURL + "\"\n" +
		"plugin:\n" +
		"  plugins_dir: \"" + pluginsDir + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPrepareStartupWiresServicesWithoutConnecting(t *testing.T) {
	pluginsDir := t.TempDir()
	path := writeTestConfig(t, "ws://127.0.0.1:1", pluginsDir)

	m := NewManager()
	require.NoError(t, m.PrepareStartup(Options{ConfigPath: path}))

	assert.NotNil(t, m.services)
	assert.NotNil(t, m.loader)
	assert.False(t, m.Running())
}

func TestRunBackgroundStartsAndShutsDownCleanly(t *testing.T) {
	gatewayURL := startFakeGateway(t)
	pluginsDir := t.TempDir()
	path := writeTestConfig(t, gatewayURL, pluginsDir)

	m := NewManager()
	ctx := context.Background()
	require.NoError(t, m.RunBackground(ctx, Options{ConfigPath: path}))
	assert.True(t, m.Running())

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.Running())
}

func TestRunBackgroundRejectsDoubleStart(t *testing.T) {
	gatewayURL := startFakeGateway(t)
	pluginsDir := t.TempDir()
	path := writeTestConfig(t, gatewayURL, pluginsDir)

	m := NewManager()
	require.NoError(t, m.RunBackground(context.Background(), Options{ConfigPath: path}))
	defer m.Shutdown(context.Background())

	err := m.RunBackground(context.Background(), Options{ConfigPath: path})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestRunBackgroundFailsFastOnBadGatewayURL(t *testing.T) {
	pluginsDir := t.TempDir()
	path := writeTestConfig(t, "ws://127.0.0.1:1", pluginsDir)

	m := NewManager()
	err := m.RunBackground(context.Background(), Options{ConfigPath: path})
	require.Error(t, err)
	assert.False(t, m.Running())
}

func TestRunBlocksUntilContextCancelled(t *testing.T) {
	gatewayURL := startFakeGateway(t)
	pluginsDir := t.TempDir()
	path := writeTestConfig(t, gatewayURL, pluginsDir)

	m := NewManager()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx, Options{ConfigPath: path}) }()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run never returned after context cancellation")
	}
}
