package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Empty values read as unset.
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("Env = %q, want development by default", cfg.Env)
	}
	if cfg.TTL.Created < cfg.TTL.Modified || cfg.TTL.Modified < cfg.TTL.Touched {
		t.Fatalf("TTL tiers out of order: %+v", cfg.TTL)
	}
	if cfg.MessageCount != 100 || cfg.MessageLength != 4096 {
		t.Fatalf("limits = %d/%d, want 100/4096", cfg.MessageCount, cfg.MessageLength)
	}
	if cfg.Signature.Algorithm != "sha256" {
		t.Fatalf("algorithm = %q, want sha256", cfg.Signature.Algorithm)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("CHAT_TTL_TOUCHED", "120")
	t.Setenv("CHAT_MESSAGE_COUNT", "7")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg := Load()
	if cfg.Port != "9999" {
		t.Fatalf("Port = %q, want 9999", cfg.Port)
	}
	if cfg.TTL.Touched != 120*time.Second {
		t.Fatalf("Touched = %v, want 120s", cfg.TTL.Touched)
	}
	if cfg.MessageCount != 7 {
		t.Fatalf("MessageCount = %d, want 7", cfg.MessageCount)
	}
	if cfg.RateLimitEnabled {
		t.Fatal("RateLimitEnabled = true, want false")
	}
}

func TestProductionRequiresSignatureKey(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("SIGNATURE_KEY", "")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic without SIGNATURE_KEY in production")
		}
	}()
	Load()
}
