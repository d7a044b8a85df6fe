package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"currency-ledger/internal/errors"
)

// Store provides a unified interface for SQL repository operations with transaction support
type Store struct {
	executor SQLExecutor
	logger   *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		executor: db,
		logger:   logger,
	}
}

// Accounts returns a postgres account repository using the current executor
func (s *Store) Accounts() *PostgresAccountRepository {
	return &PostgresAccountRepository{store: s}
}

// WithTransaction executes a function within a database transaction
func (s *Store) WithTransaction(ctx context.Context, fn func(*Store) error) error {
	// Only sql.DB can begin transactions
	db, ok := s.executor.(DB)
	if !ok {
		return errors.NewAppError(errors.InternalError, "cannot begin a nested transaction")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(s.logger, "begin transaction", err)
	}

	txStore := &Store{
		executor: tx,
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageError(s.logger, "commit transaction", err)
	}
	return nil
}

// Close closes the underlying database when the store owns it.
func (s *Store) Close() error {
	if db, ok := s.executor.(*sql.DB); ok {
		return db.Close()
	}
	return nil
}
