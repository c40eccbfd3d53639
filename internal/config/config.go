// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// ──────────────────────────────────────────────────────────────────────────────
// Secret
// ──────────────────────────────────────────────────────────────────────────────

// Secret is a string that never prints itself. Use Reveal at the one place
// the raw value is needed.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) Reveal() string { return string(s) }

func (s Secret) IsSet() bool { return s != "" }

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// LogValue keeps the value out of slog output.
func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

func (s *Secret) UnmarshalText(b []byte) error {
	*s = Secret(strings.TrimSpace(string(b)))
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// AppConfig holds process-wide settings.
type AppConfig struct {
	Env         string `env:"ENVIRONMENT" envDefault:"development"` // "development" | "production"
	ServiceName string `env:"SERVICE_NAME" envDefault:"wagerbot"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port           string        `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"10s"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	AdminIPs       []string      `env:"ADMIN_ALLOWED_IPS" envSeparator:","` // empty = allow all
	RateLimitRPS   int           `env:"RATE_LIMIT_RPS" envDefault:"20"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver          string        `env:"STORE_DRIVER" envDefault:"memory"` // memory | sqlite | postgres | pgx
	DSN             Secret        `env:"STORE_DSN"`
	AutoMigrate     bool          `env:"STORE_AUTO_MIGRATE" envDefault:"true"`
	MaxOpenConns    int           `env:"STORE_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"STORE_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"STORE_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// CustodyConfig holds the master secret and the network ledger endpoint.
type CustodyConfig struct {
	MasterSecret Secret        `env:"CUSTODY_MASTER_SECRET"`
	Passphrase   Secret        `env:"CUSTODY_PASSPHRASE"`
	RPCURL       string        `env:"CUSTODY_RPC_URL"`
	ChainID      int64         `env:"CUSTODY_CHAIN_ID"`
	OpTimeout    time.Duration `env:"CUSTODY_OP_TIMEOUT" envDefault:"10s"`
	CacheSize    int           `env:"CUSTODY_CACHE_SIZE" envDefault:"10000"`
	CacheTTL     time.Duration `env:"CUSTODY_CACHE_TTL" envDefault:"0s"`
}

// AuthConfig holds JWT verification settings. Tokens are issued elsewhere.
type AuthConfig struct {
	JWTSecret Secret `env:"AUTH_JWT_SECRET"`
}

// LedgerConfig tunes the betting ledger.
type LedgerConfig struct {
	DefaultDuration time.Duration `env:"LEDGER_DEFAULT_DURATION" envDefault:"168h"`
	CloseInterval   time.Duration `env:"LEDGER_CLOSE_INTERVAL" envDefault:"30s"`
	PublishTimeout  time.Duration `env:"LEDGER_PUBLISH_TIMEOUT" envDefault:"5s"`
}

// EventsConfig holds the optional event sinks. Empty values disable them.
type EventsConfig struct {
	KafkaBrokers string `env:"EVENTS_KAFKA_BROKERS"` // comma-separated
	KafkaTopic   string `env:"EVENTS_KAFKA_TOPIC" envDefault:"ledger-events"`
	RedisURL     Secret `env:"EVENTS_REDIS_URL"`
	RedisChannel string `env:"EVENTS_REDIS_CHANNEL" envDefault:"ledger-events"`
}

// ObservabilityConfig holds the metrics port and the tracing endpoint.
type ObservabilityConfig struct {
	MetricsPort  string `env:"METRICS_PORT" envDefault:"9090"` // "" disables the server
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`    // "" disables tracing
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Store         StoreConfig
	Custody       CustodyConfig
	Auth          AuthConfig
	Ledger        LedgerConfig
	Events        EventsConfig
	Observability ObservabilityConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.App.Env == "production"
}

var storeDrivers = map[string]bool{"memory": true, "sqlite": true, "postgres": true, "pgx": true}

// Validate checks that all required configuration values are present and valid.
// Every problem is reported, joined with errors.Join.
func (c *Config) Validate() error {
	var errs []error

	if !c.Custody.MasterSecret.IsSet() {
		errs = append(errs, errors.New("CUSTODY_MASTER_SECRET must be set"))
	}
	if c.Custody.RPCURL == "" {
		errs = append(errs, errors.New("CUSTODY_RPC_URL must be set"))
	}
	if c.Custody.ChainID <= 0 {
		errs = append(errs, fmt.Errorf("CUSTODY_CHAIN_ID must be positive, got %d", c.Custody.ChainID))
	}
	if !c.Auth.JWTSecret.IsSet() {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be set"))
	}

	driver := strings.ToLower(c.Store.Driver)
	switch {
	case !storeDrivers[driver]:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of memory, sqlite, postgres, pgx", c.Store.Driver))
	case driver != "memory" && !c.Store.DSN.IsSet():
		errs = append(errs, fmt.Errorf("STORE_DSN must be set for driver %q", driver))
	case driver == "memory" && c.IsProd():
		errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
	}

	if c.Ledger.DefaultDuration <= 0 {
		errs = append(errs, errors.New("LEDGER_DEFAULT_DURATION must be positive"))
	}
	if c.Ledger.CloseInterval <= 0 {
		errs = append(errs, errors.New("LEDGER_CLOSE_INTERVAL must be positive"))
	}
	if c.HTTP.RateLimitRPS <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be positive, got %d", c.HTTP.RateLimitRPS))
	}

	return errors.Join(errs...)
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails; call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = Load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// Load parses the environment into a fresh Config without validating it.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	return &cfg, nil
}
