package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"currency-ledger/internal/errors"
	"currency-ledger/internal/service"
)

type AccountHandler struct {
	ledger *service.LedgerService
}

func NewAccountHandler(ledger *service.LedgerService) *AccountHandler {
	return &AccountHandler{
		ledger: ledger,
	}
}

type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance string `json:"balance"`
}

type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	UserID  string `json:"user_id"`
	Balance string `json:"balance"`
}

func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := service.NormalizeUserID(mux.Vars(r)["user_id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, Balance: balance.String()})
}

func (h *AccountHandler) Credit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.ledger.Credit)
}

func (h *AccountHandler) Debit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.ledger.Debit)
}

func (h *AccountHandler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)) {
	userID, err := service.NormalizeUserID(mux.Vars(r)["user_id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	amount, appErr := decodeAmount(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	balance, err := op(r.Context(), userID, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, Balance: balance.String()})
}

func (h *AccountHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, errors.ErrInvalidLimit.WithDetails(err.Error()))
			return
		}
		limit = n
	}

	accounts, err := h.ledger.Leaderboard(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	entries := make([]LeaderboardEntry, 0, len(accounts))
	for i, account := range accounts {
		entries = append(entries, LeaderboardEntry{
			Rank:    i + 1,
			UserID:  account.UserID,
			Balance: account.Balance.String(),
		})
	}

	writeJSON(w, http.StatusOK, entries)
}
