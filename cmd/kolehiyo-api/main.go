package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kolehiyo/kolehiyo/backend/internal/auth"
	"github.com/kolehiyo/kolehiyo/backend/internal/catalog"
	"github.com/kolehiyo/kolehiyo/backend/internal/config"
	"github.com/kolehiyo/kolehiyo/backend/internal/database"
	"github.com/kolehiyo/kolehiyo/backend/internal/logging"
	"github.com/kolehiyo/kolehiyo/backend/internal/server"
	"github.com/kolehiyo/kolehiyo/backend/internal/tracker"
	"github.com/kolehiyo/kolehiyo/backend/internal/users"
	"github.com/kolehiyo/kolehiyo/backend/internal/webhook"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile    string
	dotEnvFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kolehiyo-api",
		Short: "Kolehiyo college and scholarship tracker backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&dotEnvFile, "env-file", ".env", "Path to an optional .env file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("jwt-secret", "", "Shared secret for HS256 session tokens (overrides env)")
	cmd.PersistentFlags().String("jwks-url", "", "JWKS URL for RS256 session tokens")
	cmd.PersistentFlags().String("webhook-secret", "", "Identity webhook signing secret (overrides env)")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("cors.allowed_origins"), "Comma-separated CORS origins")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.jwt_secret", "jwt-secret")
	bindFlag(cmd, "auth.jwks_url", "jwks-url")
	bindFlag(cmd, "webhook.secret", "webhook-secret")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(dotEnvFile); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		DSN:    appConfig.DatabaseDSN,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	verifier, err := newTokenVerifier(appConfig, logger)
	if err != nil {
		return err
	}

	resources, err := newResources(db, logger)
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if appConfig.WebhookSecret == "" {
		logger.Warn("webhook.secret is not configured; identity webhooks will be refused")
	}
	processor, err := webhook.NewProcessor(webhook.ProcessorConfig{
		Secret: appConfig.WebhookSecret,
		Users:  usersService,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenVerifier:  verifier,
		Resources:      resources,
		Profiles:       usersService,
		Webhooks:       map[string]server.WebhookProcessor{"clerk": processor},
		Database:       sqlDB,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newTokenVerifier(appConfig config.AppConfig, logger *zap.Logger) (auth.TokenVerifier, error) {
	if appConfig.UsesJWKS() {
		var issuers []string
		if appConfig.JWTIssuer != "" {
			issuers = []string{appConfig.JWTIssuer}
		}
		verifier, err := auth.NewJWKSVerifier(auth.JWKSVerifierConfig{
			Audience:       appConfig.Audience,
			JWKSURL:        appConfig.JWKSURL,
			AllowedIssuers: issuers,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		return verifier, nil
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.JWTSecret),
		Issuer:        appConfig.JWTIssuer,
		Audience:      appConfig.Audience,
	})
	if err != nil {
		return nil, err
	}
	return validator, nil
}

func newResources(db *gorm.DB, logger *zap.Logger) ([]server.Resource, error) {
	collegeReader, err := catalog.NewCollegeReader(db, logger)
	if err != nil {
		return nil, err
	}
	scholarshipReader, err := catalog.NewScholarshipReader(db, logger)
	if err != nil {
		return nil, err
	}

	resources := make([]server.Resource, 0, 2)
	for _, reader := range []catalog.Reader{collegeReader, scholarshipReader} {
		repository, err := tracker.NewRepository(db, reader.Kind())
		if err != nil {
			return nil, err
		}
		service, err := tracker.NewService(tracker.ServiceConfig{
			Catalog:    reader,
			Repository: repository,
			Clock:      time.Now,
			IDProvider: tracker.NewUUIDProvider(),
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		resources = append(resources, server.Resource{Catalog: reader, Tracker: service})
	}
	return resources, nil
}
