// Package config loads fleet configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"wallet-fleet/internal/validator"
)

// EnvPrefix is prepended to every variable name, e.g. FLEET_RPC_URL.
const EnvPrefix = "FLEET"

// Storage backends for the wallet index.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageBadger   = "badger"
	StorageRedis    = "redis"
)

// Ledger backends for the transfer log.
const (
	LedgerMemory     = "memory"
	LedgerClickhouse = "clickhouse"
)

// Failure policies for per-target dispatcher failures.
const (
	FailurePolicyLog    = "log"
	FailurePolicyStrict = "strict"
)

// Config is the full service configuration.
type Config struct {
	// Chain endpoints
	RPCURL     string        `envconfig:"RPC_URL" required:"true" validate:"required,url"`
	WSURL      string        `envconfig:"WS_URL" required:"true" validate:"required,url"`
	RPCTimeout time.Duration `envconfig:"RPC_TIMEOUT" default:"30s" validate:"gt=0"`
	RPCRetries int           `envconfig:"RPC_RETRIES" default:"2" validate:"gte=0,lte=10"`
	Commitment string        `envconfig:"COMMITMENT" default:"confirmed" validate:"oneof=processed confirmed finalized"`

	// Wallet derivation
	Mnemonic           string `envconfig:"MNEMONIC" required:"true" validate:"required"`
	MnemonicPassphrase string `envconfig:"MNEMONIC_PASSPHRASE"`

	// HTTP
	HTTPAddr    string   `envconfig:"HTTP_ADDR" default:"127.0.0.1:8764" validate:"required,hostname_port"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"` // empty disables CORS

	// Wallet index storage
	Storage       string `envconfig:"STORAGE" default:"memory" validate:"oneof=memory postgres badger redis"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN" validate:"required_if=Storage postgres"`
	BadgerPath    string `envconfig:"BADGER_PATH" default:"data/wallets" validate:"required_if=Storage badger"`
	RedisAddr     string `envconfig:"REDIS_ADDR" validate:"required_if=Storage redis"`
	RedisUsername string `envconfig:"REDIS_USERNAME"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`

	// Transfer ledger
	Ledger        string `envconfig:"LEDGER" default:"memory" validate:"oneof=memory clickhouse"`
	ClickhouseDSN string `envconfig:"CLICKHOUSE_DSN" validate:"required_if=Ledger clickhouse"`

	// Dispatching
	ConfirmTimeout time.Duration `envconfig:"CONFIRM_TIMEOUT" default:"60s" validate:"gt=0"`
	MaxInFlight    int           `envconfig:"MAX_IN_FLIGHT" default:"0" validate:"gte=0"`
	FailurePolicy  string        `envconfig:"FAILURE_POLICY" default:"log" validate:"oneof=log strict"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`
}

// Load reads .env (if present), then the environment, and validates the result.
func Load() (*Config, error) {
	LoadEnvFile(".env")

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadEnvFile exports KEY=VALUE lines from path. Existing variables win.
// A missing file is not an error.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"`)

		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}

// StrictFailures reports whether per-target failures fail the job.
func (c *Config) StrictFailures() bool {
	return c.FailurePolicy == FailurePolicyStrict
}
