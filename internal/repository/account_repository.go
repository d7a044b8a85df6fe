package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"currency-ledger/internal/domain"
	"currency-ledger/internal/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const accountColumns = `user_id, balance, created_at, updated_at`

// PostgresAccountRepository keeps accounts in a single PostgreSQL table. Every
// mutation is one statement; transfers run inside one SQL transaction.
type PostgresAccountRepository struct {
	store *Store
}

var (
	_ domain.AccountRepository = (*PostgresAccountRepository)(nil)
	_ domain.AtomicTransferer  = (*PostgresAccountRepository)(nil)
)

// OpenPostgres connects to the database named dbName on the server addressed
// by uri and applies the embedded migrations.
func OpenPostgres(ctx context.Context, uri, dbName string, logger *slog.Logger) (*PostgresAccountRepository, error) {
	dsn, err := withDatabase(uri, dbName)
	if err != nil {
		return nil, errors.NewAppError(errors.ConfigurationError, "invalid postgres connection uri").WithDetails(err.Error())
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, storageError(logger, "open postgres", err)
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageError(logger, "ping postgres", err)
	}

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Successfully connected to database", "backend", "postgres", "database", dbName)
	return NewStore(db, logger).Accounts(), nil
}

// withDatabase points a postgres:// URI at dbName.
func withDatabase(uri, dbName string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	u.Path = "/" + dbName
	return u.String(), nil
}

func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name() < files[j].Name()
	})

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}
		migrationSQL, err := migrationsFS.ReadFile("migrations/" + file.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file.Name(), err)
		}
		if _, err := db.ExecContext(ctx, string(migrationSQL)); err != nil {
			return storageError(logger, "migration "+file.Name(), err)
		}
		logger.Debug("Migration applied", "migration", file.Name())
	}
	return nil
}

func (r *PostgresAccountRepository) EnsureAccount(ctx context.Context, userID string, initial decimal.Decimal) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (user_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO NOTHING
	`

	result, err := r.store.executor.ExecContext(ctx, query, userID, initial.String(), time.Now().UTC())
	if err != nil {
		return nil, storageError(r.store.logger, "ensure account", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		r.store.logger.Info("Account created successfully", "user_id", userID, "balance", initial)
	}

	return r.scanAccount(ctx, "get account",
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
}

func (r *PostgresAccountRepository) IncrementBalance(ctx context.Context, userID string, initial, amount decimal.Decimal) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (user_id, balance, created_at, updated_at)
		VALUES ($1, $2::numeric + $3::numeric, $4, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = accounts.balance + $3::numeric, updated_at = $4
		RETURNING ` + accountColumns

	account, err := r.scanAccount(ctx, "increment balance", query,
		userID, initial.String(), amount.String(), time.Now().UTC())
	if err != nil {
		return nil, err
	}

	r.store.logger.Info("Account balance updated", "user_id", userID, "new_balance", account.Balance)
	return account, nil
}

func (r *PostgresAccountRepository) DecrementBalanceIfSufficient(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET balance = balance - $2::numeric, updated_at = $3
		WHERE user_id = $1 AND balance >= $2::numeric
		RETURNING ` + accountColumns

	account, err := r.scanAccount(ctx, "decrement balance", query, userID, amount.String(), time.Now().UTC())
	if err == sql.ErrNoRows {
		r.store.logger.Warn("Insufficient funds for debit", "user_id", userID, "amount", amount)
		return nil, errors.ErrInsufficientFunds
	}
	if err != nil {
		return nil, err
	}

	r.store.logger.Info("Account balance updated", "user_id", userID, "new_balance", account.Balance)
	return account, nil
}

func (r *PostgresAccountRepository) TransferBalance(ctx context.Context, fromUserID, toUserID string, initial, amount decimal.Decimal) (*domain.Account, *domain.Account, error) {
	var from, to *domain.Account

	err := r.store.WithTransaction(ctx, func(tx *Store) error {
		repo := tx.Accounts()
		ids := sortedIDs(fromUserID, toUserID)

		// Inserts of new rows wait on each other too, so they follow the
		// same order as the row locks.
		for _, id := range ids {
			if _, err := repo.EnsureAccount(ctx, id, initial); err != nil {
				return err
			}
		}
		if err := repo.lockAccounts(ctx, ids); err != nil {
			return err
		}

		var err error
		if from, err = repo.DecrementBalanceIfSufficient(ctx, fromUserID, amount); err != nil {
			return err
		}
		to, err = repo.IncrementBalance(ctx, toUserID, initial, amount)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return from, to, nil
}

func sortedIDs(userIDs ...string) []string {
	ids := append([]string(nil), userIDs...)
	sort.Strings(ids)
	return ids
}

// lockAccounts takes row locks on ids, which must already be sorted, so
// opposite transfers between the same pair cannot deadlock.
func (r *PostgresAccountRepository) lockAccounts(ctx context.Context, ids []string) error {
	_, err := r.store.executor.ExecContext(ctx,
		`SELECT user_id FROM accounts WHERE user_id = ANY($1) ORDER BY user_id FOR UPDATE`,
		pq.Array(ids))
	if err != nil {
		return storageError(r.store.logger, "lock accounts", err)
	}
	return nil
}

func (r *PostgresAccountRepository) TopBalances(ctx context.Context, limit int) ([]domain.Account, error) {
	rows, err := r.store.executor.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY balance DESC, user_id LIMIT $1`, limit)
	if err != nil {
		return nil, storageError(r.store.logger, "top balances", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0, limit)
	for rows.Next() {
		account, err := r.scanRow(rows.Scan)
		if err != nil {
			return nil, storageError(r.store.logger, "top balances", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(r.store.logger, "top balances", err)
	}
	return accounts, nil
}

func (r *PostgresAccountRepository) Ping(ctx context.Context) error {
	db, ok := r.store.executor.(*sql.DB)
	if !ok {
		return nil
	}
	if err := db.PingContext(ctx); err != nil {
		return storageError(r.store.logger, "ping postgres", err)
	}
	return nil
}

func (r *PostgresAccountRepository) Close(ctx context.Context) error {
	return r.store.Close()
}

// scanAccount runs a single-row query. sql.ErrNoRows is returned as is so
// callers can give it a domain meaning.
func (r *PostgresAccountRepository) scanAccount(ctx context.Context, operation, query string, args ...interface{}) (*domain.Account, error) {
	account, err := r.scanRow(r.store.executor.QueryRowContext(ctx, query, args...).Scan)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, storageError(r.store.logger, operation, err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) scanRow(scan func(dest ...interface{}) error) (*domain.Account, error) {
	var account domain.Account
	var balanceStr string

	if err := scan(&account.UserID, &balanceStr, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return nil, err
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		r.store.logger.Error("Failed to parse balance", "user_id", account.UserID, "balance_str", balanceStr, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to parse balance").WithDetails(err.Error())
	}

	account.Balance = balance
	return &account, nil
}
