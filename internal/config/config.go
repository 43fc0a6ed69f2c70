// Package config loads Watchy's process configuration from the
// environment (with an optional .env file for local development),
// following the env-first, struct-tag-decoded convention the rest of
// the corpus uses for service configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// ServerConfig controls the HTTP facade.
type ServerConfig struct {
	Port   int    `env:"PORT"`
	APIKey string `env:"API_KEY"`
}

// ChainConfig controls the default chain and any per-chain RPC
// overrides layered on top of the compiled Chain Registry.
type ChainConfig struct {
	DefaultChainID uint64 `env:"DEFAULT_CHAIN_ID"`
}

// StoreConfig selects and configures the Job Store backend.
type StoreConfig struct {
	RedisURL string        `env:"REDIS_URL"`
	TTL      time.Duration // not env-decoded; fixed at 7 days per spec
}

// WalletConfig controls how (and whether) a Signer is constructed.
type WalletConfig struct {
	PrivateKey      string `env:"PRIVATE_KEY"`
	Mnemonic        string `env:"MNEMONIC"`
	DerivationIndex uint32 `env:"DERIVATION_INDEX"`
}

// SubmissionConfig controls the permanent-storage uploader.
type SubmissionConfig struct {
	StorageGatewayURL string `env:"STORAGE_GATEWAY_URL"`
	StorageAPIToken   string `env:"STORAGE_API_TOKEN"`
}

// WebhookConfig controls webhook delivery.
type WebhookConfig struct {
	Secret string `env:"WEBHOOK_SECRET"`
}

// LoggingConfig controls log verbosity and shape.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"`
	Format string `env:"LOG_FORMAT"`
}

// ScoringConfig gates Open Question #1 from SPEC_FULL.md §9.
type ScoringConfig struct {
	IncludeSecurityInOverall bool `env:"SCORE_SECURITY_IN_OVERALL"`
}

// Config is Watchy's top-level process configuration.
type Config struct {
	Server     ServerConfig
	Chain      ChainConfig
	Store      StoreConfig
	Wallet     WalletConfig
	Submission SubmissionConfig
	Webhook    WebhookConfig
	Logging    LoggingConfig
	Scoring    ScoringConfig
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Chain:  ChainConfig{DefaultChainID: 8453},
		Store:  StoreConfig{TTL: 7 * 24 * time.Hour},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a .env file if present, then decodes environment variables
// over the defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()
	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DERIVATION_INDEX")); raw != "" {
		idx, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid DERIVATION_INDEX: %w", err)
		}
		cfg.Wallet.DerivationIndex = uint32(idx)
	}

	cfg.Store.TTL = 7 * 24 * time.Hour
	return cfg, nil
}

// WalletMode reports which signer construction path applies, for the
// /health response.
func (c *Config) WalletMode() string {
	switch {
	case c.Wallet.PrivateKey != "":
		return "private_key"
	case c.Wallet.Mnemonic != "":
		return "mnemonic"
	default:
		return "none"
	}
}

// StorageBackend reports which Job Store backend applies, for the
// /health response.
func (c *Config) StorageBackend() string {
	if c.Store.RedisURL != "" {
		return "durable"
	}
	return "memory"
}
