package opensearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FCE-Intelligence/internal/config"
	"github.com/turtacn/FCE-Intelligence/internal/testutil"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

func newTestServer(statusCode int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statusCode)
	}))
}

func newTestConfig(addr string) config.OpenSearchConfig {
	return config.OpenSearchConfig{Enabled: true, Addresses: []string{addr}, IndexPrefix: "test"}
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(config.OpenSearchConfig{Addresses: []string{"http://localhost:9200"}}))

	cases := map[string]config.OpenSearchConfig{
		"no addresses":  {},
		"no scheme":     {Addresses: []string{"localhost:9200"}},
		"user only":     {Addresses: []string{"https://os:9200"}, User: "admin"},
		"password only": {Addresses: []string{"https://os:9200"}, Password: "secret"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidateConfig(cfg)
			assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidConfig))
		})
	}
}

func TestNewClient_Success(t *testing.T) {
	server := newTestServer(http.StatusOK)
	defer server.Close()

	log := testutil.NewMockLogger()
	client, err := NewClient(context.Background(), newTestConfig(server.URL), log)
	require.NoError(t, err)
	assert.True(t, client.IsHealthy())
	assert.Equal(t, "test-report-entries", client.IndexName(ReportEntriesIndex))
	assert.True(t, log.HasMessage("info", "OpenSearch client connected"))
	assert.NoError(t, client.Close())
}

func TestNewClient_DefaultPrefix(t *testing.T) {
	client, err := newClient(config.OpenSearchConfig{Addresses: []string{"http://localhost:9200"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultOpenSearchPrefix+"-x", client.IndexName("x"))
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	server := newTestServer(http.StatusInternalServerError)
	defer server.Close()

	client, err := NewClient(context.Background(), newTestConfig(server.URL), nil)
	require.Error(t, err)
	assert.Nil(t, client)
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.OpenSearchConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClient_PingTracksHealth(t *testing.T) {
	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), newTestConfig(server.URL), nil)
	require.NoError(t, err)

	failing.Store(true)
	err = client.Ping(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeSearchError))
	assert.False(t, client.IsHealthy())

	failing.Store(false)
	require.NoError(t, client.Ping(context.Background()))
	assert.True(t, client.IsHealthy())
}
