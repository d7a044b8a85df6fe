package config

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"currency-ledger/internal/errors"
)

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

const (
	defaultServerPort          = "8080"
	defaultProductionDatabase  = "slashgather"
	defaultDevelopmentDatabase = "slashgather_dev"
	defaultStoreTimeout        = 5 * time.Second
	defaultReadRetries         = 3
	defaultRetryInterval       = 200 * time.Millisecond
)

var (
	defaultProductionBalance  = decimal.NewFromInt(100)
	defaultDevelopmentBalance = decimal.NewFromInt(10000)
)

// Secret is a credential that never shows up in logs or formatted output.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "<redacted>"
}

func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Reveal returns the raw credential.
func (s Secret) Reveal() string {
	return string(s)
}

// RawInputs holds the unvalidated settings as read from the process
// environment. Empty strings mean "not set".
type RawInputs struct {
	Environment         string
	EnvironmentFallback string

	ProductionToken  string
	DevelopmentToken string

	ConnectionURI string

	ProductionDatabase  string
	DevelopmentDatabase string

	ProductionDefaultBalance  string
	DevelopmentDefaultBalance string

	ServerPort    string
	StoreTimeout  string
	ReadRetries   string
	RetryInterval string
}

// Config is the resolved, environment-scoped configuration. It is a value
// type: every holder gets its own copy and nothing mutates it after Resolve.
type Config struct {
	Environment    Environment
	BotToken       Secret
	ConnectionURI  Secret
	DatabaseName   string
	DefaultBalance decimal.Decimal

	ServerPort    string
	StoreTimeout  time.Duration
	ReadRetries   int
	RetryInterval time.Duration
}

func (c Config) IsProduction() bool {
	return c.Environment == Production
}

// RedactedURI returns the connection URI with any credentials removed.
func (c Config) RedactedURI() string {
	raw := c.ConnectionURI.Reveal()
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid-uri>"
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	return u.String()
}

// FromEnv reads the raw inputs from the process environment.
func FromEnv() RawInputs {
	return RawInputs{
		Environment:               os.Getenv("ENVIRONMENT"),
		EnvironmentFallback:       os.Getenv("ENVIRONMENT_PROD"),
		ProductionToken:           os.Getenv("DISCORD_TOKEN"),
		DevelopmentToken:          os.Getenv("DISCORD_DEV_TOKEN"),
		ConnectionURI:             os.Getenv("MONGODB_URI"),
		ProductionDatabase:        os.Getenv("MONGODB_DB_NAME"),
		DevelopmentDatabase:       os.Getenv("MONGODB_DB_NAME_DEV"),
		ProductionDefaultBalance:  os.Getenv("DEFAULT_BALANCE_PROD"),
		DevelopmentDefaultBalance: os.Getenv("DEFAULT_BALANCE"),
		ServerPort:                os.Getenv("SERVER_PORT"),
		StoreTimeout:              os.Getenv("STORE_TIMEOUT"),
		ReadRetries:               os.Getenv("STORE_READ_RETRIES"),
		RetryInterval:             os.Getenv("STORE_RETRY_INTERVAL"),
	}
}

// Load resolves the configuration from the process environment.
func Load() (Config, error) {
	return Resolve(FromEnv())
}

// Resolve validates raw and selects every environment-scoped value from the
// single environment switch. It performs no I/O.
func Resolve(raw RawInputs) (Config, error) {
	env, err := resolveEnvironment(raw)
	if err != nil {
		return Config{}, err
	}

	uri := strings.TrimSpace(raw.ConnectionURI)
	if uri == "" {
		return Config{}, configError("MONGODB_URI environment variable is not set")
	}

	prodDB := valueOrDefault(raw.ProductionDatabase, defaultProductionDatabase)
	devDB := valueOrDefault(raw.DevelopmentDatabase, defaultDevelopmentDatabase)
	if prodDB == devDB {
		return Config{}, configError("production and development database names must differ").
			WithDetails("both are " + prodDB)
	}

	cfg := Config{
		Environment:   env,
		ConnectionURI: Secret(uri),
		ServerPort:    valueOrDefault(raw.ServerPort, defaultServerPort),
	}

	var tokenVar, balanceVar, balanceRaw string
	var fallbackBalance decimal.Decimal
	switch env {
	case Production:
		tokenVar, balanceVar = "DISCORD_TOKEN", "DEFAULT_BALANCE_PROD"
		cfg.BotToken = Secret(strings.TrimSpace(raw.ProductionToken))
		cfg.DatabaseName = prodDB
		balanceRaw, fallbackBalance = raw.ProductionDefaultBalance, defaultProductionBalance
	case Development:
		tokenVar, balanceVar = "DISCORD_DEV_TOKEN", "DEFAULT_BALANCE"
		cfg.BotToken = Secret(strings.TrimSpace(raw.DevelopmentToken))
		cfg.DatabaseName = devDB
		balanceRaw, fallbackBalance = raw.DevelopmentDefaultBalance, defaultDevelopmentBalance
	}

	if cfg.BotToken == "" {
		return Config{}, configError(tokenVar + " environment variable is not set")
	}

	cfg.DefaultBalance, err = parseBalance(balanceVar, balanceRaw, fallbackBalance)
	if err != nil {
		return Config{}, err
	}

	if cfg.StoreTimeout, err = parseDuration("STORE_TIMEOUT", raw.StoreTimeout, defaultStoreTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RetryInterval, err = parseDuration("STORE_RETRY_INTERVAL", raw.RetryInterval, defaultRetryInterval); err != nil {
		return Config{}, err
	}

	cfg.ReadRetries = defaultReadRetries
	if v := strings.TrimSpace(raw.ReadRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, configError("STORE_READ_RETRIES must be a non-negative integer").WithDetails(v)
		}
		cfg.ReadRetries = n
	}

	return cfg, nil
}

func resolveEnvironment(raw RawInputs) (Environment, error) {
	name := strings.TrimSpace(raw.Environment)
	if name == "" {
		name = strings.TrimSpace(raw.EnvironmentFallback)
	}
	if name == "" {
		return Development, nil
	}

	switch env := Environment(strings.ToLower(name)); env {
	case Development, Production:
		return env, nil
	default:
		return "", configError("unrecognized environment").WithDetails(name)
	}
}

func parseBalance(name, raw string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, configError(name + " must be a number").WithDetails(raw)
	}
	if balance.IsNegative() {
		return decimal.Zero, configError(name + " must not be negative").WithDetails(raw)
	}
	return balance, nil
}

func parseDuration(name, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, configError(name + " must be a positive duration").WithDetails(raw)
	}
	return d, nil
}

func valueOrDefault(value, defaultValue string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return defaultValue
}

func configError(message string) *errors.AppError {
	return errors.NewAppError(errors.ConfigurationError, message)
}
