package repository

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"currency-ledger/internal/config"
	"currency-ledger/internal/domain"
	"currency-ledger/internal/errors"
)

// Open connects to the store addressed by the resolved connection URI and
// scopes it to the resolved database. The backend is chosen by URI scheme.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (domain.AccountRepository, error) {
	uri := cfg.ConnectionURI.Reveal()
	logger.Info("Connecting to database", "uri", cfg.RedactedURI(), "database", cfg.DatabaseName, "environment", cfg.Environment)

	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.NewAppError(errors.ConfigurationError, "invalid connection uri").WithDetails(err.Error())
	}

	switch strings.ToLower(u.Scheme) {
	case "mongodb", "mongodb+srv":
		return OpenMongo(ctx, uri, cfg.DatabaseName, logger)
	case "postgres", "postgresql":
		return OpenPostgres(ctx, uri, cfg.DatabaseName, logger)
	case "bolt":
		return OpenBolt(boltDir(u), cfg.DatabaseName, logger)
	default:
		return nil, errors.NewAppError(errors.ConfigurationError, "unsupported connection uri scheme").WithDetails(u.Scheme)
	}
}

// boltDir accepts both bolt:///abs/dir and bolt://relative/dir.
func boltDir(u *url.URL) string {
	dir := u.Host + u.Path
	if dir == "" {
		return "."
	}
	return dir
}
