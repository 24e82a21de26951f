package main

import (
	"strings"
	"testing"
)

func TestLoadConfig_DevelopmentDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/triage_test")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.IsDev() {
		t.Errorf("expected development default, got %q", cfg.Env)
	}
}

func TestLoadConfig_ProductionRequiresAuth(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/triage_test")
	t.Setenv("ENV", "production")

	_, err := loadConfig()
	if err == nil {
		t.Fatal("expected startup to refuse production without auth config")
	}
	if !strings.Contains(err.Error(), "AUTH_SIGNING_KEY") {
		t.Errorf("expected auth requirement in error, got %v", err)
	}
}

func TestLoadConfig_ProductionWithSigningKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/triage_test")
	t.Setenv("ENV", "production")
	t.Setenv("AUTH_SIGNING_KEY", "not-a-real-key")

	if _, err := loadConfig(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfig_RejectsInvertedPoolBounds(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/triage_test")
	t.Setenv("DB_MAX_CONNS", "2")
	t.Setenv("DB_MIN_CONNS", "10")

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected max < min connection bounds to be rejected")
	}
}
