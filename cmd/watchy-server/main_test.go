package main

import (
	"testing"

	"github.com/builders-garden/watchy/internal/config"
	"github.com/builders-garden/watchy/internal/logging"
)

func TestBuildSignerReturnsNilWithNoWalletConfigured(t *testing.T) {
	cfg := config.New()
	log := logging.New("watchy-test", "error", "text")

	s := buildSigner(cfg, log)
	if s != nil {
		t.Fatalf("expected a nil signer when no wallet is configured, got %v", s.Address())
	}
}

func TestBuildSignerUsesPrivateKeyMode(t *testing.T) {
	cfg := config.New()
	cfg.Wallet.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	log := logging.New("watchy-test", "error", "text")

	s := buildSigner(cfg, log)
	if s == nil {
		t.Fatal("expected a non-nil signer in private_key mode")
	}
}

func TestBuildStorageFallsBackToMemoryStoreWithoutRedisURL(t *testing.T) {
	cfg := config.New()
	cfg.Store.RedisURL = ""
	log := logging.New("watchy-test", "error", "text")

	store, limiter := buildStorage(cfg, log)
	if store == nil || limiter == nil {
		t.Fatal("expected non-nil memory store and limiter")
	}
}
