package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ServerPort != 8080 || cfg.Environment != "development" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("expected 24h token ttl, got %v", cfg.TokenTTL)
	}
	if cfg.BcryptCost != 12 {
		t.Fatalf("expected bcrypt cost 12, got %d", cfg.BcryptCost)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.ConnMaxLifetime != 5*time.Minute {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected two default origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , https://b.example,")
	t.Setenv("DEBUG_ERRORS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ServerPort != 9090 || cfg.Database.Driver != "sqlite" || cfg.Database.Path != ":memory:" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.TokenTTL != 2*time.Hour || !cfg.DebugErrors {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if strings.Join(cfg.CORSAllowedOrigins, "|") != "https://a.example|https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zennotes.yaml")
	if err := os.WriteFile(path, []byte("server_port: 7070\nlog_level: debug\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ServerPort != 7070 || cfg.LogLevel != "debug" {
		t.Fatalf("file not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"weak production secret": {"ENVIRONMENT": "production", "JWT_SECRET": "short"},
		"low bcrypt cost":        {"BCRYPT_COST": "4"},
		"unknown driver":         {"DB_DRIVER": "mysql"},
		"zero ttl":               {"TOKEN_TTL": "0s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestProductionAcceptsStrongSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production")
	}
}
