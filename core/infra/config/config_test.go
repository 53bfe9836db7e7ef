package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.APIBaseURL == "" {
		t.Fatalf("expected default api url")
	}
	if cfg.OutputDir != "output" {
		t.Fatalf("unexpected output dir: %s", cfg.OutputDir)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Fatalf("unexpected cache ttl: %s", cfg.CacheTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv(envAPIBaseURL, "http://localhost:9999/api/v2")
	t.Setenv(envOutputDir, "/tmp/polgov")
	t.Setenv(envCacheTTL, "6h")

	cfg := Load()
	if cfg.APIBaseURL != "http://localhost:9999/api/v2" {
		t.Fatalf("unexpected api url: %s", cfg.APIBaseURL)
	}
	if cfg.ExportDir() != "/tmp/polgov/exported_roles" {
		t.Fatalf("unexpected export dir: %s", cfg.ExportDir())
	}
	if cfg.CacheTTL != 6*time.Hour {
		t.Fatalf("unexpected cache ttl: %s", cfg.CacheTTL)
	}
}

func TestLoadIgnoresInvalidTTL(t *testing.T) {
	t.Setenv(envCacheTTL, "not-a-duration")
	cfg := Load()
	if cfg.CacheTTL != defaultCacheTTL {
		t.Fatalf("expected fallback ttl, got %s", cfg.CacheTTL)
	}
}
