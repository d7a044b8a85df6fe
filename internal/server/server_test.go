package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"currency-ledger/internal/config"
	"currency-ledger/internal/errors"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func boltConfig(t *testing.T) config.Config {
	return config.Config{
		Environment:    config.Development,
		ConnectionURI:  config.Secret("bolt://" + t.TempDir()),
		DatabaseName:   "server_test",
		DefaultBalance: decimal.NewFromInt(100),
		ServerPort:     "0",
		StoreTimeout:   2 * time.Second,
		ReadRetries:    1,
		RetryInterval:  time.Millisecond,
	}
}

func TestServer_HealthAndReady(t *testing.T) {
	srv, err := NewServer(context.Background(), boltConfig(t), discardLogger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop(context.Background()) })

	for _, path := range []string{"/health", "/ready"} {
		rec := httptest.NewRecorder()
		srv.GetRouter().ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServer_ReadyAfterStoreClosed(t *testing.T) {
	srv, err := NewServer(context.Background(), boltConfig(t), discardLogger)
	require.NoError(t, err)
	require.NoError(t, srv.Stop(context.Background()))

	rec := httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body["status"])
	assert.Empty(t, srv.GetPort(), "server was never started")
}

func TestServer_UnsupportedScheme(t *testing.T) {
	cfg := boltConfig(t)
	cfg.ConnectionURI = config.Secret("redis://localhost:6379")

	_, err := NewServer(context.Background(), cfg, discardLogger)
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.ConfigurationError, appErr.Code)
}

func TestStartServer_ServesOverTCP(t *testing.T) {
	srv, port, err := StartServer(context.Background(), boltConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop(context.Background()) })

	assert.NotEqual(t, "0", port)
	assert.Equal(t, port, srv.GetPort())
	assert.Equal(t, "http://localhost:"+port, srv.GetBaseURL())

	resp, err := http.Get(srv.GetBaseURL() + "/accounts/alice")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			UserID  string `json:"user_id"`
			Balance string `json:"balance"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "alice", body.Data.UserID)
	assert.Equal(t, "100", body.Data.Balance)
}
