package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/timshannon/bolthold"
	bolt "go.etcd.io/bbolt"

	"currency-ledger/internal/domain"
	"currency-ledger/internal/errors"
)

const (
	boltFilePermissions = 0600
	boltOpenTimeout     = 2 * time.Second
)

type boltAccount struct {
	UserID    string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a boltAccount) toDomain() *domain.Account {
	return &domain.Account{
		UserID:    a.UserID,
		Balance:   a.Balance,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// BoltAccountRepository keeps accounts in a single bbolt file. Each mutation
// is one bbolt write transaction, which bbolt serializes.
type BoltAccountRepository struct {
	store  *bolthold.Store
	logger *slog.Logger
}

var (
	_ domain.AccountRepository = (*BoltAccountRepository)(nil)
	_ domain.AtomicTransferer  = (*BoltAccountRepository)(nil)
)

// OpenBolt opens <dir>/<dbName>.db, creating dir if needed.
func OpenBolt(dir, dbName string, logger *slog.Logger) (*BoltAccountRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storageError(logger, "create data directory", err)
	}

	path := filepath.Join(dir, dbName+".db")
	store, err := bolthold.Open(path, boltFilePermissions, &bolthold.Options{
		Options: &bolt.Options{Timeout: boltOpenTimeout},
	})
	if err != nil {
		return nil, storageError(logger, "open bolt database", err)
	}

	logger.Info("Successfully connected to database", "backend", "bolt", "path", path)
	return NewBoltAccountRepository(store, logger), nil
}

func NewBoltAccountRepository(store *bolthold.Store, logger *slog.Logger) *BoltAccountRepository {
	return &BoltAccountRepository{store: store, logger: logger}
}

func (r *BoltAccountRepository) EnsureAccount(ctx context.Context, userID string, initial decimal.Decimal) (*domain.Account, error) {
	var account boltAccount
	err := r.update(ctx, "ensure account", func(tx *bolt.Tx) error {
		var err error
		account, err = r.ensure(tx, userID, initial)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account.toDomain(), nil
}

func (r *BoltAccountRepository) IncrementBalance(ctx context.Context, userID string, initial, amount decimal.Decimal) (*domain.Account, error) {
	var account boltAccount
	err := r.update(ctx, "increment balance", func(tx *bolt.Tx) error {
		var err error
		account, err = r.increment(tx, userID, initial, amount)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Account balance updated", "user_id", userID, "new_balance", account.Balance)
	return account.toDomain(), nil
}

func (r *BoltAccountRepository) DecrementBalanceIfSufficient(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Account, error) {
	var account boltAccount
	err := r.update(ctx, "decrement balance", func(tx *bolt.Tx) error {
		var err error
		account, err = r.decrement(tx, userID, amount)
		return err
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrInsufficientFunds) {
			r.logger.Warn("Insufficient funds for debit", "user_id", userID, "amount", amount)
		}
		return nil, err
	}

	r.logger.Info("Account balance updated", "user_id", userID, "new_balance", account.Balance)
	return account.toDomain(), nil
}

func (r *BoltAccountRepository) TransferBalance(ctx context.Context, fromUserID, toUserID string, initial, amount decimal.Decimal) (*domain.Account, *domain.Account, error) {
	var from, to boltAccount
	err := r.update(ctx, "transfer balance", func(tx *bolt.Tx) error {
		if _, err := r.ensure(tx, fromUserID, initial); err != nil {
			return err
		}
		var err error
		if from, err = r.decrement(tx, fromUserID, amount); err != nil {
			return err
		}
		to, err = r.increment(tx, toUserID, initial, amount)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return from.toDomain(), to.toDomain(), nil
}

func (r *BoltAccountRepository) TopBalances(ctx context.Context, limit int) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError(r.logger, "top balances", err)
	}

	var records []boltAccount
	if err := r.store.Find(&records, nil); err != nil {
		return nil, storageError(r.logger, "top balances", err)
	}

	sort.Slice(records, func(i, j int) bool {
		if c := records[i].Balance.Cmp(records[j].Balance); c != 0 {
			return c > 0
		}
		return records[i].UserID < records[j].UserID
	})
	if len(records) > limit {
		records = records[:limit]
	}

	accounts := make([]domain.Account, 0, len(records))
	for _, rec := range records {
		accounts = append(accounts, *rec.toDomain())
	}
	return accounts, nil
}

func (r *BoltAccountRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return storageError(r.logger, "ping bolt", err)
	}
	if err := r.store.Bolt().View(func(tx *bolt.Tx) error { return nil }); err != nil {
		return storageError(r.logger, "ping bolt", err)
	}
	return nil
}

func (r *BoltAccountRepository) Close(ctx context.Context) error {
	return r.store.Close()
}

func (r *BoltAccountRepository) update(ctx context.Context, operation string, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return storageError(r.logger, operation, err)
	}
	if err := r.store.Bolt().Update(fn); err != nil {
		return storageError(r.logger, operation, err)
	}
	return nil
}

func (r *BoltAccountRepository) ensure(tx *bolt.Tx, userID string, initial decimal.Decimal) (boltAccount, error) {
	var account boltAccount
	err := r.store.TxGet(tx, userID, &account)
	if err == nil {
		return account, nil
	}
	if !stderrors.Is(err, bolthold.ErrNotFound) {
		return boltAccount{}, fmt.Errorf("getting account: %w", err)
	}

	now := time.Now().UTC()
	account = boltAccount{UserID: userID, Balance: initial, CreatedAt: now, UpdatedAt: now}
	if err := r.store.TxInsert(tx, userID, &account); err != nil {
		return boltAccount{}, fmt.Errorf("inserting account: %w", err)
	}
	r.logger.Info("Account created successfully", "user_id", userID, "balance", initial)
	return account, nil
}

func (r *BoltAccountRepository) increment(tx *bolt.Tx, userID string, initial, amount decimal.Decimal) (boltAccount, error) {
	account, err := r.ensure(tx, userID, initial)
	if err != nil {
		return boltAccount{}, err
	}

	account.Balance = account.Balance.Add(amount)
	account.UpdatedAt = time.Now().UTC()
	if err := r.store.TxUpdate(tx, userID, &account); err != nil {
		return boltAccount{}, fmt.Errorf("updating account: %w", err)
	}
	return account, nil
}

func (r *BoltAccountRepository) decrement(tx *bolt.Tx, userID string, amount decimal.Decimal) (boltAccount, error) {
	var account boltAccount
	err := r.store.TxGet(tx, userID, &account)
	if stderrors.Is(err, bolthold.ErrNotFound) {
		return boltAccount{}, errors.ErrInsufficientFunds
	}
	if err != nil {
		return boltAccount{}, fmt.Errorf("getting account: %w", err)
	}

	if account.Balance.LessThan(amount) {
		return boltAccount{}, errors.ErrInsufficientFunds.WithDetails(
			fmt.Sprintf("balance %s, amount %s", account.Balance, amount))
	}

	account.Balance = account.Balance.Sub(amount)
	account.UpdatedAt = time.Now().UTC()
	if err := r.store.TxUpdate(tx, userID, &account); err != nil {
		return boltAccount{}, fmt.Errorf("updating account: %w", err)
	}
	return account, nil
}
