// Package database opens the configured gorm connection and owns schema migrations.
package database

import (
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"github.com/kolehiyo/kolehiyo/backend/internal/catalog"
	"github.com/kolehiyo/kolehiyo/backend/internal/tracker"
	"github.com/kolehiyo/kolehiyo/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config selects the backing store.
type Config struct {
	Driver string
	DSN    string
	Logger *zap.Logger
}

// Open establishes a connection for the configured driver and performs schema migrations.
func Open(cfg Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}

	dialector, err := dialectorFor(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db, cfg.Logger); err != nil {
		return nil, err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database initialized", zap.String("driver", driver))
	}

	return db, nil
}

// Migrate creates or updates the tables the service owns and applies named
// migrations. Catalog tables are created when missing but never altered.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := ensureCatalogTables(db, logger); err != nil {
		return err
	}
	if err := db.AutoMigrate(&users.Profile{}, &migrationRecord{}); err != nil {
		return err
	}
	for _, kind := range catalog.Kinds() {
		if err := db.Table(kind.TrackerTable).AutoMigrate(&tracker.Record{}); err != nil {
			return fmt.Errorf("migrate %s: %w", kind.TrackerTable, err)
		}
	}
	return applyMigrations(db, logger)
}

func ensureCatalogTables(db *gorm.DB, logger *zap.Logger) error {
	migrator := db.Migrator()
	for _, model := range []any{&catalog.College{}, &catalog.Scholarship{}} {
		if migrator.HasTable(model) {
			continue
		}
		if err := migrator.CreateTable(model); err != nil {
			return fmt.Errorf("create catalog table: %w", err)
		}
		if logger != nil {
			logger.Info("catalog table created", zap.String("model", fmt.Sprintf("%T", model)))
		}
	}
	return nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
