package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Account is the persisted balance of one chat-platform user.
type Account struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AccountRepository is the storage boundary of the ledger. Every method is a
// single atomic operation at the store; none of them is a read-then-write
// from the caller's process.
//
// Methods that may create an account take the initial balance to use when the
// account is absent. Creation is an idempotent upsert, so concurrent first
// accesses converge on one document.
type AccountRepository interface {
	// EnsureAccount returns the account, creating it with initial if absent.
	EnsureAccount(ctx context.Context, userID string, initial decimal.Decimal) (*Account, error)

	// IncrementBalance adds amount to the balance, creating the account with
	// initial first if absent, and returns the updated account.
	IncrementBalance(ctx context.Context, userID string, initial, amount decimal.Decimal) (*Account, error)

	// DecrementBalanceIfSufficient subtracts amount only if the balance is at
	// least amount. It returns ErrInsufficientFunds otherwise, including when
	// the account does not exist.
	DecrementBalanceIfSufficient(ctx context.Context, userID string, amount decimal.Decimal) (*Account, error)

	// TopBalances returns at most limit accounts ordered by balance descending.
	TopBalances(ctx context.Context, limit int) ([]Account, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// AtomicTransferer is implemented by stores that can move funds between two
// accounts as one atomic unit. Either account is created with initial if
// absent, then the source must hold at least amount or ErrInsufficientFunds is
// returned and nothing changes.
type AtomicTransferer interface {
	TransferBalance(ctx context.Context, fromUserID, toUserID string, initial, amount decimal.Decimal) (from, to *Account, err error)
}
