package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.jwt_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected address %q", cfg.HTTPAddress)
	}
	if cfg.DatabaseDriver != "sqlite" || cfg.DatabaseDSN != defaultDatabaseDSN {
		t.Fatalf("unexpected database config %q %q", cfg.DatabaseDriver, cfg.DatabaseDSN)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.UsesJWKS() {
		t.Fatalf("expected shared-secret verification by default")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("KOLEHIYO_DATABASE_DRIVER", "Postgres")
	t.Setenv("KOLEHIYO_DATABASE_DSN", "postgres://localhost/kolehiyo")
	t.Setenv("KOLEHIYO_AUTH_JWKS_URL", "https://clerk.example/.well-known/jwks.json")
	t.Setenv("KOLEHIYO_WEBHOOK_SECRET", "whsec_abc")
	t.Setenv("KOLEHIYO_CORS_ALLOWED_ORIGINS", "https://kolehiyo.example, http://localhost:3000 ,")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabaseDriver != "postgres" {
		t.Fatalf("expected normalized driver, got %q", cfg.DatabaseDriver)
	}
	if !cfg.UsesJWKS() {
		t.Fatalf("expected jwks verification")
	}
	if cfg.WebhookSecret != "whsec_abc" {
		t.Fatalf("unexpected webhook secret %q", cfg.WebhookSecret)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "https://kolehiyo.example|http://localhost:3000" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadValidatesRequiredSettings(t *testing.T) {
	testCases := []struct {
		name    string
		values  map[string]string
		message string
	}{
		{name: "missing credentials", values: map[string]string{}, message: "auth.jwt_secret or auth.jwks_url"},
		{name: "unknown driver", values: map[string]string{"auth.jwt_secret": "s", "database.driver": "oracle"}, message: "database.driver"},
		{name: "blank dsn", values: map[string]string{"auth.jwt_secret": "s", "database.dsn": " "}, message: "database.dsn"},
		{name: "no origins", values: map[string]string{"auth.jwt_secret": "s", "cors.allowed_origins": " , "}, message: "cors.allowed_origins"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.values {
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			if err == nil || !strings.Contains(err.Error(), testCase.message) {
				t.Fatalf("expected error mentioning %q, got %v", testCase.message, err)
			}
		})
	}
}

func TestLoadDotEnvPopulatesEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("KOLEHIYO_AUTH_JWT_SECRET=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("failed to write dotenv: %v", err)
	}
	t.Setenv("KOLEHIYO_AUTH_JWT_SECRET", "")
	os.Unsetenv("KOLEHIYO_AUTH_JWT_SECRET")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.JWTSecret != "from-dotenv" {
		t.Fatalf("expected secret from dotenv, got %q", cfg.JWTSecret)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}
