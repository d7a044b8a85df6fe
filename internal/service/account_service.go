package service

import (
	"context"
	stderrors "errors"

	"github.com/shopspring/decimal"

	"currency-ledger/internal/domain"
	"currency-ledger/internal/errors"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// GetBalance returns the user's balance, creating the account with the
// default balance on first access.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	userID, err := NormalizeUserID(userID)
	if err != nil {
		return decimal.Zero, err
	}

	account, err := retryRead(ctx, s, "get balance", func(ctx context.Context) (*domain.Account, error) {
		return s.repo.EnsureAccount(ctx, userID, s.defaultBalance)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// Credit adds amount to the user's balance in one atomic upsert and returns
// the new balance. A new user ends up with the default balance plus amount.
func (s *LedgerService) Credit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	userID, err := NormalizeUserID(userID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	s.logger.Info("Processing credit", "user_id", userID, "amount", amount)

	ctx, cancel := s.mutationContext(ctx)
	defer cancel()

	account, err := s.repo.IncrementBalance(ctx, userID, s.defaultBalance, amount)
	if err != nil {
		s.logger.Error("Credit failed", "user_id", userID, "amount", amount, "error", err)
		return decimal.Zero, s.surface(err)
	}
	return account.Balance, nil
}

// Debit subtracts amount when the balance covers it. Otherwise it returns
// insufficient_funds and the balance is unchanged; balances never go negative.
func (s *LedgerService) Debit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	userID, err := NormalizeUserID(userID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	s.logger.Info("Processing debit", "user_id", userID, "amount", amount)

	ctx, cancel := s.mutationContext(ctx)
	defer cancel()

	account, err := s.debit(ctx, userID, amount)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (s *LedgerService) debit(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Account, error) {
	if _, err := s.repo.EnsureAccount(ctx, userID, s.defaultBalance); err != nil {
		s.logger.Error("Debit failed", "user_id", userID, "amount", amount, "error", err)
		return nil, s.surface(err)
	}

	account, err := s.repo.DecrementBalanceIfSufficient(ctx, userID, amount)
	if err != nil {
		if !stderrors.Is(err, errors.ErrInsufficientFunds) {
			s.logger.Error("Debit failed", "user_id", userID, "amount", amount, "error", err)
		}
		return nil, s.surface(err)
	}
	return account, nil
}

// Leaderboard returns the richest accounts, highest balance first. A zero
// limit means DefaultLeaderboardLimit.
func (s *LedgerService) Leaderboard(ctx context.Context, limit int) ([]domain.Account, error) {
	if limit == 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit < 0 || limit > MaxLeaderboardLimit {
		return nil, errors.ErrInvalidLimit
	}

	return retryRead(ctx, s, "leaderboard", func(ctx context.Context) ([]domain.Account, error) {
		return s.repo.TopBalances(ctx, limit)
	})
}
