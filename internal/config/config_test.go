package config

import (
	"os"
	"testing"
)

func TestNewPopulatesDefaults(t *testing.T) {
	cfg := New()
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Chain.DefaultChainID != 8453 {
		t.Fatalf("expected default chain id 8453, got %d", cfg.Chain.DefaultChainID)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected default logging config: %+v", cfg.Logging)
	}
}

func TestWalletModeReflectsConfiguredCredential(t *testing.T) {
	cfg := New()
	if cfg.WalletMode() != "none" {
		t.Fatalf("expected none, got %q", cfg.WalletMode())
	}

	cfg.Wallet.PrivateKey = "abc123"
	if cfg.WalletMode() != "private_key" {
		t.Fatalf("expected private_key, got %q", cfg.WalletMode())
	}

	cfg.Wallet.PrivateKey = ""
	cfg.Wallet.Mnemonic = "test test test"
	if cfg.WalletMode() != "mnemonic" {
		t.Fatalf("expected mnemonic, got %q", cfg.WalletMode())
	}
}

func TestStorageBackendReflectsRedisURL(t *testing.T) {
	cfg := New()
	if cfg.StorageBackend() != "memory" {
		t.Fatalf("expected memory, got %q", cfg.StorageBackend())
	}
	cfg.Store.RedisURL = "redis://localhost:6379"
	if cfg.StorageBackend() != "durable" {
		t.Fatalf("expected durable, got %q", cfg.StorageBackend())
	}
}

func TestLoadDecodesEnvironmentOverDefaults(t *testing.T) {
	os.Setenv("PORT", "9090")
	os.Setenv("API_KEY", "test-key")
	defer os.Unsetenv("PORT")
	defer os.Unsetenv("API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected env override port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.APIKey != "test-key" {
		t.Fatalf("expected env override api key, got %q", cfg.Server.APIKey)
	}
	if cfg.Store.TTL.Hours() != 7*24 {
		t.Fatalf("expected fixed 7 day ttl, got %v", cfg.Store.TTL)
	}
}

func TestLoadParsesDerivationIndex(t *testing.T) {
	os.Setenv("DERIVATION_INDEX", "3")
	defer os.Unsetenv("DERIVATION_INDEX")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Wallet.DerivationIndex != 3 {
		t.Fatalf("expected derivation index 3, got %d", cfg.Wallet.DerivationIndex)
	}
}

func TestLoadRejectsInvalidDerivationIndex(t *testing.T) {
	os.Setenv("DERIVATION_INDEX", "not-a-number")
	defer os.Unsetenv("DERIVATION_INDEX")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a non-numeric DERIVATION_INDEX")
	}
}
