package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/presence-gateway/internal/config"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRunServesAndShutsDown(t *testing.T) {
	cfg := config.Default()
	cfg.Addr = freeAddr(t)
	cfg.DatabasePath = filepath.Join(t.TempDir(), "presence.db")
	cfg.ShutdownTimeout = time.Second
	logger := zerolog.Nop()

	ctx, cancel := context.WithCancel(context.Background())
	application, err := New(ctx, &cfg, &logger)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestNewWiresReplies(t *testing.T) {
	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "presence.db")
	cfg.Replies.Enabled = true
	cfg.JWTSecret = "secret"
	logger := zerolog.Nop()

	application, err := New(context.Background(), &cfg, &logger)
	require.NoError(t, err)
	t.Cleanup(application.cleanup)

	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/presence", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewRejectsBadOllamaURL(t *testing.T) {
	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "presence.db")
	cfg.Replies.Enabled = true
	cfg.Replies.OllamaURL = "not a url"
	logger := zerolog.Nop()

	_, err := New(context.Background(), &cfg, &logger)
	require.Error(t, err)
}
