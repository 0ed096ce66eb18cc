package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DRIVER", "JWT_ACCESS_TTL", "JWT_REFRESH_TTL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.DBDriver != "postgres" {
		t.Errorf("expected default driver postgres, got %s", cfg.DBDriver)
	}
	if cfg.JWTAccessTTL != 15*time.Minute {
		t.Errorf("expected 15m access ttl, got %s", cfg.JWTAccessTTL)
	}
	if cfg.JWTRefreshTTL != 7*24*time.Hour {
		t.Errorf("expected 168h refresh ttl, got %s", cfg.JWTRefreshTTL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("JWT_ACCESS_TTL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.DBDriver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.DBDriver)
	}
	if cfg.JWTAccessTTL != 5*time.Minute {
		t.Errorf("expected 5m access ttl, got %s", cfg.JWTAccessTTL)
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("JWT_REFRESH_TTL", "forever")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.JWTRefreshTTL != 7*24*time.Hour {
		t.Errorf("expected fallback refresh ttl, got %s", cfg.JWTRefreshTTL)
	}
}
