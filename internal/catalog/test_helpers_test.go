package catalog

import (
	"fmt"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openCatalogDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&College{}, &Scholarship{}); err != nil {
		t.Fatalf("failed to migrate catalog schema: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func insertRawCollege(t *testing.T, db *gorm.DB, id, name, status, requirements string) {
	t.Helper()
	err := db.Exec(
		"INSERT INTO colleges (id, name, application_status, requirements, university_type) VALUES (?, ?, ?, ?, ?)",
		id, name, status, requirements, "Public",
	).Error
	if err != nil {
		t.Fatalf("failed to insert college %s: %v", id, err)
	}
}
