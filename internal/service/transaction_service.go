package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"currency-ledger/internal/domain"
	"currency-ledger/internal/errors"
)

type TransferResult struct {
	ID          uuid.UUID       `json:"transfer_id"`
	FromBalance decimal.Decimal `json:"from_balance"`
	ToBalance   decimal.Decimal `json:"to_balance"`
}

// Transfer moves amount from one user to another. Stores that support it do
// this as one atomic unit. Otherwise the source is debited first and, if the
// credit fails, the debit is reverted; transfer_incomplete is returned only
// when that revert fails too.
func (s *LedgerService) Transfer(ctx context.Context, fromUserID, toUserID string, amount decimal.Decimal) (*TransferResult, error) {
	fromUserID, err := NormalizeUserID(fromUserID)
	if err != nil {
		return nil, err
	}
	toUserID, err = NormalizeUserID(toUserID)
	if err != nil {
		return nil, err
	}
	if fromUserID == toUserID {
		return nil, errors.ErrSelfTransfer
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	result := &TransferResult{ID: uuid.New()}
	s.logger.Info("Processing transfer",
		"transfer_id", result.ID,
		"from_user_id", fromUserID,
		"to_user_id", toUserID,
		"amount", amount)

	callCtx, cancel := s.mutationContext(ctx)
	defer cancel()

	var from, to *domain.Account
	if transferer, ok := s.repo.(domain.AtomicTransferer); ok {
		from, to, err = transferer.TransferBalance(callCtx, fromUserID, toUserID, s.defaultBalance, amount)
		if err != nil {
			s.logger.Warn("Transfer failed", "transfer_id", result.ID, "error", err)
			return nil, s.surface(err)
		}
	} else {
		from, to, err = s.compensatedTransfer(ctx, callCtx, result.ID, fromUserID, toUserID, amount)
		if err != nil {
			return nil, err
		}
	}

	result.FromBalance = from.Balance
	result.ToBalance = to.Balance
	s.logger.Info("Transfer completed successfully", "transfer_id", result.ID)
	return result, nil
}

func (s *LedgerService) compensatedTransfer(ctx, callCtx context.Context, id uuid.UUID, fromUserID, toUserID string, amount decimal.Decimal) (*domain.Account, *domain.Account, error) {
	from, err := s.debit(callCtx, fromUserID, amount)
	if err != nil {
		s.logger.Warn("Transfer failed", "transfer_id", id, "error", err)
		return nil, nil, err
	}

	to, creditErr := s.repo.IncrementBalance(callCtx, toUserID, s.defaultBalance, amount)
	if creditErr == nil {
		return from, to, nil
	}

	s.logger.Warn("Transfer credit failed, reverting debit",
		"transfer_id", id, "from_user_id", fromUserID, "error", creditErr)

	// The call context may already be past its deadline.
	revertCtx, cancel := s.mutationContext(ctx)
	defer cancel()

	if _, revertErr := s.repo.IncrementBalance(revertCtx, fromUserID, s.defaultBalance, amount); revertErr != nil {
		s.logger.Error("Transfer incomplete, manual reconciliation required",
			"transfer_id", id,
			"from_user_id", fromUserID,
			"to_user_id", toUserID,
			"amount", amount,
			"credit_error", creditErr,
			"revert_error", revertErr)
		return nil, nil, errors.ErrTransferIncomplete.WithDetails(
			fmt.Sprintf("transfer %s: %s debited from %s, not credited to %s", id, amount, fromUserID, toUserID))
	}

	s.logger.Info("Transfer debit reverted", "transfer_id", id, "from_user_id", fromUserID)
	return nil, nil, s.surface(creditErr)
}
