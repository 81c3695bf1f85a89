package commands

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
	"github.com/stretchr/testify/require"
)

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

func TestRunCommandStopsWhenContextIsCancelled(t *testing.T) {
	gatewayURL := startFakeGateway(t)
	pluginsDir := t.TempDir()
	path := filepath.Join(t.TempDir(), "bot.yaml")
	content := "gateway:\n  url: \"" + gatewayURL + "\"\nplugin:\n  plugins_dir: \"" + pluginsDir + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	runConfigPath = path
	runSkipPluginLoad = true

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	RunCmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- runRun(RunCmd, nil) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run command never returned after context cancellation")
	}
}
