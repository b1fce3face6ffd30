package tracker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/kolehiyo/kolehiyo/backend/internal/catalog"
	"github.com/kolehiyo/kolehiyo/backend/internal/checklist"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fixedNow = time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

func openTrackerDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.db")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&catalog.College{}, &catalog.Scholarship{}))
	for _, kind := range catalog.Kinds() {
		require.NoError(t, db.Table(kind.TrackerTable).AutoMigrate(&Record{}))
	}
	return db
}

// openIntegerKeyedDatabase creates a colleges table keyed by an INTEGER column,
// the shape of catalogs exported from a relational admin tool.
func openIntegerKeyedDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker-int.db")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec(`CREATE TABLE colleges (id INTEGER PRIMARY KEY, name TEXT, application_status TEXT, requirements JSON)`).Error)
	for _, kind := range catalog.Kinds() {
		require.NoError(t, db.Table(kind.TrackerTable).AutoMigrate(&Record{}))
	}
	return db
}

func seedCollege(t *testing.T, db *gorm.DB, id, status string, requirements ...string) {
	t.Helper()
	require.NoError(t, db.Create(&catalog.College{
		ID:                catalog.EntityID(id),
		Name:              "College " + id,
		ApplicationStatus: status,
		Requirements:      catalog.StringList(requirements),
		UniversityType:    "Public",
	}).Error)
}

func seedScholarship(t *testing.T, db *gorm.DB, id, status string, requirements ...string) {
	t.Helper()
	require.NoError(t, db.Create(&catalog.Scholarship{
		ID:                catalog.EntityID(id),
		Name:              "Scholarship " + id,
		ApplicationStatus: status,
		Requirements:      catalog.StringList(requirements),
	}).Error)
}

type serviceOptions struct {
	logger     *zap.Logger
	repository Repository
	reader     catalog.Reader
}

func newCollegeService(t *testing.T, db *gorm.DB, options serviceOptions) *Service {
	t.Helper()
	reader := options.reader
	if reader == nil {
		collegeReader, err := catalog.NewCollegeReader(db, options.logger)
		require.NoError(t, err)
		reader = collegeReader
	}
	repository := options.repository
	if repository == nil {
		gormRepository, err := NewRepository(db, catalog.CollegeKind)
		require.NoError(t, err)
		repository = gormRepository
	}
	service, err := NewService(ServiceConfig{
		Catalog:    reader,
		Repository: repository,
		Clock:      func() time.Time { return fixedNow },
		IDProvider: NewUUIDProvider(),
		Logger:     options.logger,
	})
	require.NoError(t, err)
	return service
}

func countTrackers(t *testing.T, db *gorm.DB, kind catalog.Kind) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Table(kind.TrackerTable).Count(&count).Error)
	return count
}

func checkAll(items checklist.Checklist, checked bool) checklist.Checklist {
	toggled := make(checklist.Checklist, len(items))
	for index, item := range items {
		toggled[index] = checklist.Item{Item: item.Item, Checked: checked}
	}
	return toggled
}

type failingRepository struct {
	Repository
}

func (failingRepository) ListByUser(context.Context, string) ([]Record, error) {
	return nil, errors.New("connection reset")
}
