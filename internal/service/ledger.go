package service

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"currency-ledger/internal/config"
	"currency-ledger/internal/domain"
	"currency-ledger/internal/errors"
)

// LedgerService is the only component that reads or mutates balances. It
// holds no per-user state: same-user serialization comes from the store's
// atomic conditional operations, so several bot instances can share a store.
type LedgerService struct {
	repo           domain.AccountRepository
	defaultBalance decimal.Decimal
	timeout        time.Duration
	readRetries    int
	retryInterval  time.Duration
	logger         *slog.Logger
}

const fallbackStoreTimeout = 5 * time.Second

func NewLedgerService(repo domain.AccountRepository, cfg config.Config, logger *slog.Logger) *LedgerService {
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = fallbackStoreTimeout
	}

	return &LedgerService{
		repo:           repo,
		defaultBalance: cfg.DefaultBalance,
		timeout:        timeout,
		readRetries:    cfg.ReadRetries,
		retryInterval:  cfg.RetryInterval,
		logger:         logger,
	}
}

// Ready reports whether the store answers within the store timeout.
func (s *LedgerService) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		return errors.ErrNotReady.WithDetails(err.Error())
	}
	return nil
}

// mutationContext detaches from the caller's cancellation: once started, a
// money operation runs to completion or to the store timeout.
func (s *LedgerService) mutationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

// retryRead runs an idempotent store call, retrying storage_unavailable
// failures with bounded exponential backoff.
func retryRead[T any](ctx context.Context, s *LedgerService, operation string, fn func(context.Context) (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInterval
	policy.MaxInterval = 10 * s.retryInterval

	attempt := 0
	result, err := backoff.RetryWithData(func() (T, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		v, err := fn(callCtx)
		if err == nil {
			return v, nil
		}
		if !isRetryable(err) {
			return v, backoff.Permanent(err)
		}
		s.logger.Warn("Store read failed", "operation", operation, "attempt", attempt, "error", err)
		return v, err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.readRetries)), ctx))

	if err != nil {
		return result, s.surface(err)
	}
	return result, nil
}

func isRetryable(err error) bool {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == errors.StorageUnavailable
	}
	return true
}

// surface makes sure only ledger errors leave the service. Anything else is
// an infrastructure failure and becomes storage_unavailable, never a default
// value.
func (s *LedgerService) surface(err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return errors.ErrStorageUnavailable.WithDetails(err.Error())
}

// NormalizeUserID returns the id the ledger stores balances under.
func NormalizeUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.ErrInvalidUserID
	}
	return userID, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.ErrInvalidAmount
	}
	return nil
}
