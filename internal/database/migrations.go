package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/kolehiyo/kolehiyo/backend/internal/catalog"
	"github.com/kolehiyo/kolehiyo/backend/internal/checklist"
	"github.com/kolehiyo/kolehiyo/backend/internal/tracker"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRecomputeTrackerProgress = "2025-03-01_recompute_tracker_progress"

const progressBatchSize = 200

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRecomputeTrackerProgress, apply: recomputeTrackerProgress},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// recomputeTrackerProgress rewrites stored progress values that disagree with
// their checklist. Rows written before rounding was fixed held truncated values.
func recomputeTrackerProgress(db *gorm.DB) error {
	for _, kind := range catalog.Kinds() {
		var batch []tracker.Record
		result := db.Table(kind.TrackerTable).FindInBatches(&batch, progressBatchSize, func(tx *gorm.DB, _ int) error {
			for _, record := range batch {
				progress := checklist.ComputeProgress(record.Items())
				if progress == record.Progress {
					continue
				}
				if err := db.Table(kind.TrackerTable).
					Where("tracker_id = ?", record.TrackerID).
					Update("progress", progress).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if result.Error != nil {
			return fmt.Errorf("table %s: %w", kind.TrackerTable, result.Error)
		}
	}
	return nil
}
