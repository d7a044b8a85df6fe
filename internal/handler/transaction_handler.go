package handler

import (
	"encoding/json"
	"net/http"

	"currency-ledger/internal/errors"
	"currency-ledger/internal/service"
)

type TransactionHandler struct {
	ledger *service.LedgerService
}

func NewTransactionHandler(ledger *service.LedgerService) *TransactionHandler {
	return &TransactionHandler{
		ledger: ledger,
	}
}

type TransferRequest struct {
	FromUserID UserID `json:"from_user_id"`
	ToUserID   UserID `json:"to_user_id"`
	Amount     string `json:"amount"`
}

type TransferResponse struct {
	TransferID  string `json:"transfer_id"`
	FromUserID  string `json:"from_user_id"`
	ToUserID    string `json:"to_user_id"`
	FromBalance string `json:"from_balance"`
	ToBalance   string `json:"to_balance"`
}

func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	fromUserID, err := service.NormalizeUserID(string(req.FromUserID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	toUserID, err := service.NormalizeUserID(string(req.ToUserID))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	amount, appErr := parseAmount(req.Amount)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.ledger.Transfer(r.Context(), fromUserID, toUserID, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, TransferResponse{
		TransferID:  result.ID.String(),
		FromUserID:  fromUserID,
		ToUserID:    toUserID,
		FromBalance: result.FromBalance.String(),
		ToBalance:   result.ToBalance.String(),
	})
}
