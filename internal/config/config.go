// Package config loads runtime configuration from flags, environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "KOLEHIYO"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabaseDriver = "sqlite"
	defaultDatabaseDSN    = "kolehiyo.db"
	defaultLogLevel       = "info"
	defaultAllowedOrigin  = "*"
)

var supportedDrivers = map[string]struct{}{
	"sqlite":   {},
	"postgres": {},
	"mysql":    {},
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabaseDriver string
	DatabaseDSN    string
	LogLevel       string
	JWTSecret      string
	JWTIssuer      string
	JWKSURL        string
	Audience       string
	WebhookSecret  string
	AllowedOrigins []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigin)

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"auth.jwt_secret", "auth.jwt_issuer", "auth.jwks_url", "auth.audience", "webhook.secret"} {
		_ = configViper.BindEnv(key)
	}
}

// LoadDotEnv loads variables from path into the process environment when the
// file exists. Variables already set in the environment win.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config.dotenv(%s): %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config.dotenv(%s): %w", path, err)
	}
	return nil
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    strings.TrimSpace(configViper.GetString("http.address")),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:    strings.TrimSpace(configViper.GetString("database.dsn")),
		LogLevel:       configViper.GetString("log.level"),
		JWTSecret:      configViper.GetString("auth.jwt_secret"),
		JWTIssuer:      strings.TrimSpace(configViper.GetString("auth.jwt_issuer")),
		JWKSURL:        strings.TrimSpace(configViper.GetString("auth.jwks_url")),
		Audience:       strings.TrimSpace(configViper.GetString("auth.audience")),
		WebhookSecret:  strings.TrimSpace(configViper.GetString("webhook.secret")),
		AllowedOrigins: splitList(configViper.GetString("cors.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// UsesJWKS reports whether session tokens are verified against a JWKS endpoint.
func (c AppConfig) UsesJWKS() bool {
	return c.JWKSURL != ""
}

func (c AppConfig) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	if _, ok := supportedDrivers[c.DatabaseDriver]; !ok {
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" && c.JWKSURL == "" {
		return fmt.Errorf("auth.jwt_secret or auth.jwks_url is required")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("cors.allowed_origins is required")
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
