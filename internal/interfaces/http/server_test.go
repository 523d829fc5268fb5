package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FCE-Intelligence/internal/config"
	"github.com/turtacn/FCE-Intelligence/internal/testutil"
)

func TestNewServer_UsesConfig(t *testing.T) {
	srv := NewServer(config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 7 * time.Second,
	}, http.NotFoundHandler(), nil)

	assert.Equal(t, "127.0.0.1:8080", srv.Addr())
	assert.Equal(t, 5*time.Second, srv.httpServer.ReadTimeout)
	assert.Equal(t, 7*time.Second, srv.httpServer.WriteTimeout)
	assert.Equal(t, defaultShutdownTimeout, srv.shutdownTimeout)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	logger := testutil.NewMockLogger()
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})
	srv := NewServer(config.ServerConfig{ShutdownTimeout: time.Second}, mux, logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	require.NoError(t, srv.Shutdown(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
	assert.True(t, logger.HasMessage("info", "HTTP server stopped"))
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	srv := NewServer(config.ServerConfig{Port: 0}, http.NotFoundHandler(), nil)
	assert.NoError(t, srv.Shutdown(context.Background()))
}
