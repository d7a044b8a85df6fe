package repository

import (
	"context"
	stderrors "errors"
	"log/slog"

	"currency-ledger/internal/errors"
)

// storageError converts a driver failure into storage_unavailable. Errors that
// already belong to the ledger taxonomy pass through unchanged.
func storageError(logger *slog.Logger, operation string, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		logger.Warn("Storage operation timed out", "operation", operation)
	} else {
		logger.Error("Storage operation failed", "operation", operation, "error", err)
	}
	return errors.ErrStorageUnavailable.WithDetails(operation + ": " + err.Error())
}
