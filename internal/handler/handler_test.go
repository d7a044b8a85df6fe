package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"currency-ledger/internal/config"
	"currency-ledger/internal/repository"
	"currency-ledger/internal/service"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *Error          `json:"error"`
}

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := repository.OpenBolt(t.TempDir(), "handler_test", logger)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close(context.Background()) })

	cfg := config.Config{
		Environment:    config.Development,
		DatabaseName:   "handler_test",
		DefaultBalance: decimal.NewFromInt(100),
		StoreTimeout:   2 * time.Second,
		ReadRetries:    1,
		RetryInterval:  time.Millisecond,
	}
	ledger := service.NewLedgerService(repo, cfg, logger)

	accounts := NewAccountHandler(ledger)
	transfers := NewTransactionHandler(ledger)

	router := mux.NewRouter()
	router.HandleFunc("/accounts/{user_id}", accounts.GetBalance).Methods("GET")
	router.HandleFunc("/accounts/{user_id}/credit", accounts.Credit).Methods("POST")
	router.HandleFunc("/accounts/{user_id}/debit", accounts.Debit).Methods("POST")
	router.HandleFunc("/leaderboard", accounts.Leaderboard).Methods("GET")
	router.HandleFunc("/transfers", transfers.Transfer).Methods("POST")
	return router
}

func do(t *testing.T, router http.Handler, method, path, body string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestAccountHandler_BalanceCreditDebit(t *testing.T) {
	router := newTestRouter(t)

	code, env := do(t, router, "GET", "/accounts/alice", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, BalanceResponse{UserID: "alice", Balance: "100"}, decodeData[BalanceResponse](t, env))

	code, env = do(t, router, "POST", "/accounts/alice/credit", `{"amount":"50"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "150", decodeData[BalanceResponse](t, env).Balance)

	code, env = do(t, router, "POST", "/accounts/alice/debit", `{"amount":"30.5"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "119.5", decodeData[BalanceResponse](t, env).Balance)
}

func TestAccountHandler_Errors(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"insufficient funds", "/accounts/bob/debit", `{"amount":"1000"}`, http.StatusUnprocessableEntity, "insufficient_funds"},
		{"zero amount", "/accounts/bob/credit", `{"amount":"0"}`, http.StatusBadRequest, "invalid_amount"},
		{"negative amount", "/accounts/bob/debit", `{"amount":"-3"}`, http.StatusBadRequest, "invalid_amount"},
		{"malformed amount", "/accounts/bob/credit", `{"amount":"ten"}`, http.StatusBadRequest, "invalid_amount"},
		{"malformed body", "/accounts/bob/credit", `{"amount":`, http.StatusBadRequest, "invalid_input"},
		{"blank user", "/accounts/%20/credit", `{"amount":"1"}`, http.StatusBadRequest, "invalid_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, router, "POST", tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}

	code, env := do(t, router, "GET", "/accounts/bob", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "100", decodeData[BalanceResponse](t, env).Balance)
}

func TestTransactionHandler_Transfer(t *testing.T) {
	router := newTestRouter(t)

	code, env := do(t, router, "POST", "/transfers", `{"from_user_id":"alice","to_user_id":424242,"amount":"20"}`)
	require.Equal(t, http.StatusCreated, code)

	resp := decodeData[TransferResponse](t, env)
	assert.NotEmpty(t, resp.TransferID)
	assert.Equal(t, "alice", resp.FromUserID)
	assert.Equal(t, "424242", resp.ToUserID)
	assert.Equal(t, "80", resp.FromBalance)
	assert.Equal(t, "120", resp.ToBalance)

	code, env = do(t, router, "GET", "/accounts/424242", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "120", decodeData[BalanceResponse](t, env).Balance)
}

func TestTransactionHandler_TransferErrors(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"self transfer", `{"from_user_id":"carol","to_user_id":"carol","amount":"1"}`, http.StatusBadRequest, "invalid_operation"},
		{"insufficient funds", `{"from_user_id":"carol","to_user_id":"dave","amount":"100.01"}`, http.StatusUnprocessableEntity, "insufficient_funds"},
		{"invalid amount", `{"from_user_id":"carol","to_user_id":"dave","amount":"-1"}`, http.StatusBadRequest, "invalid_amount"},
		{"missing user", `{"to_user_id":"dave","amount":"1"}`, http.StatusBadRequest, "invalid_input"},
		{"bad user type", `{"from_user_id":true,"to_user_id":"dave","amount":"1"}`, http.StatusBadRequest, "invalid_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, router, "POST", "/transfers", tt.body)
			assert.Equal(t, tt.wantStatus, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestAccountHandler_Leaderboard(t *testing.T) {
	router := newTestRouter(t)

	do(t, router, "POST", "/accounts/erin/credit", `{"amount":"5"}`)
	do(t, router, "POST", "/accounts/frank/credit", `{"amount":"50"}`)
	do(t, router, "GET", "/accounts/grace", "")

	code, env := do(t, router, "GET", "/leaderboard?limit=2", "")
	require.Equal(t, http.StatusOK, code)
	entries := decodeData[[]LeaderboardEntry](t, env)
	require.Len(t, entries, 2)
	assert.Equal(t, LeaderboardEntry{Rank: 1, UserID: "frank", Balance: "150"}, entries[0])
	assert.Equal(t, LeaderboardEntry{Rank: 2, UserID: "erin", Balance: "105"}, entries[1])

	for _, limit := range []string{"abc", "-1", "101"} {
		code, env = do(t, router, "GET", "/leaderboard?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, code, "limit %s", limit)
		require.NotNil(t, env.Error)
		assert.Equal(t, "invalid_input", env.Error.Code)
	}
}

func TestHandlers_EchoTrimmedUserID(t *testing.T) {
	router := newTestRouter(t)

	code, env := do(t, router, "GET", "/accounts/%20alice%20", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", decodeData[BalanceResponse](t, env).UserID)

	code, env = do(t, router, "POST", "/accounts/%20alice/credit", `{"amount":"5"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, BalanceResponse{UserID: "alice", Balance: "105"}, decodeData[BalanceResponse](t, env))

	code, env = do(t, router, "POST", "/transfers", `{"from_user_id":" alice ","to_user_id":"bob\t","amount":"5"}`)
	require.Equal(t, http.StatusCreated, code)
	resp := decodeData[TransferResponse](t, env)
	assert.Equal(t, "alice", resp.FromUserID)
	assert.Equal(t, "bob", resp.ToUserID)
	assert.Equal(t, "100", resp.FromBalance)
}
