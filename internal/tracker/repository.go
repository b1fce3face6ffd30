package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kolehiyo/kolehiyo/backend/internal/apperr"
	"github.com/kolehiyo/kolehiyo/backend/internal/catalog"
	"github.com/kolehiyo/kolehiyo/backend/internal/checklist"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opRepositoryNew    = "tracker.repository.new"
	opFindByUserEntity = "tracker.repository.find"
	opInsertIfAbsent   = "tracker.repository.insert"
	opDeleteByUser     = "tracker.repository.delete"
	opListByUser       = "tracker.repository.list"
	opRepositoryUpdate = "tracker.repository.update_checklist"
)

var (
	errMissingDatabase     = errors.New("database handle is required")
	errMissingTrackerTable = errors.New("tracker table is required")
)

// Repository persists tracker records of one kind.
type Repository interface {
	FindByUserAndEntity(ctx context.Context, userID string, entityID catalog.EntityID) (*Record, error)
	InsertIfAbsent(ctx context.Context, record Record) (Record, bool, error)
	DeleteByUserAndEntity(ctx context.Context, userID string, entityID catalog.EntityID) (*Record, error)
	ListByUser(ctx context.Context, userID string) ([]Record, error)
	UpdateChecklist(ctx context.Context, userID, trackerID string, items checklist.Checklist, progress int, updatedAt time.Time) (Record, error)
}

// GormRepository stores records in the kind's tracker table.
type GormRepository struct {
	db    *gorm.DB
	table string
}

// NewRepository constructs a repository bound to kind.TrackerTable.
func NewRepository(db *gorm.DB, kind catalog.Kind) (*GormRepository, error) {
	if db == nil {
		return nil, apperr.New(apperr.ErrPersistence, opRepositoryNew, "missing_database", errMissingDatabase)
	}
	if kind.TrackerTable == "" {
		return nil, apperr.New(apperr.ErrPersistence, opRepositoryNew, "missing_table", errMissingTrackerTable)
	}
	return &GormRepository{db: db, table: kind.TrackerTable}, nil
}

// Table returns the bound table name.
func (r *GormRepository) Table() string {
	return r.table
}

// FindByUserAndEntity returns the record for the pair, or nil when absent.
func (r *GormRepository) FindByUserAndEntity(ctx context.Context, userID string, entityID catalog.EntityID) (*Record, error) {
	return r.findByUserAndEntity(r.db.WithContext(ctx), opFindByUserEntity, userID, entityID)
}

// InsertIfAbsent inserts record unless the (user, entity) pair already exists.
// It returns the stored record and whether this call created it.
func (r *GormRepository) InsertIfAbsent(ctx context.Context, record Record) (Record, bool, error) {
	result := r.db.WithContext(ctx).
		Table(r.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "entity_id"}},
			DoNothing: true,
		}).
		Create(&record)
	if result.Error != nil {
		return Record{}, false, r.persistenceError(opInsertIfAbsent, "create_failed", result.Error)
	}
	if result.RowsAffected == 1 {
		return record, true, nil
	}

	stored, err := r.FindByUserAndEntity(ctx, record.UserID, record.EntityID)
	if err != nil {
		return Record{}, false, err
	}
	if stored == nil {
		return Record{}, false, r.persistenceError(opInsertIfAbsent, "conflict_row_missing", errors.New("insert was skipped but no row matches"))
	}
	return *stored, false, nil
}

// DeleteByUserAndEntity removes and returns the record for the pair, or nil when nothing matched.
func (r *GormRepository) DeleteByUserAndEntity(ctx context.Context, userID string, entityID catalog.EntityID) (*Record, error) {
	var deleted *Record
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := r.findByUserAndEntity(tx.Clauses(clause.Locking{Strength: "UPDATE"}), opDeleteByUser, userID, entityID)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
		if err := tx.Table(r.table).Where("tracker_id = ?", existing.TrackerID).Delete(&Record{}).Error; err != nil {
			return r.persistenceError(opDeleteByUser, "delete_failed", err)
		}
		deleted = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// ListByUser returns the user's records in creation order.
func (r *GormRepository) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	var records []Record
	if err := r.db.WithContext(ctx).
		Table(r.table).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("tracker_id ASC").
		Find(&records).Error; err != nil {
		return nil, r.persistenceError(opListByUser, "query_failed", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// UpdateChecklist replaces the checklist and progress of a tracker owned by userID.
// A tracker that does not exist or belongs to another user yields apperr.ErrNotFound.
func (r *GormRepository) UpdateChecklist(ctx context.Context, userID, trackerID string, items checklist.Checklist, progress int, updatedAt time.Time) (Record, error) {
	var updated Record
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Record
		err := tx.Table(r.table).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tracker_id = ? AND user_id = ?", trackerID, userID).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.ErrNotFound, opRepositoryUpdate, "tracker_not_found", nil)
		}
		if err != nil {
			return r.persistenceError(opRepositoryUpdate, "select_failed", err)
		}

		if err := tx.Table(r.table).
			Where("tracker_id = ?", trackerID).
			Updates(map[string]any{
				"checklist":  datatypes.NewJSONType(items),
				"progress":   progress,
				"updated_at": updatedAt,
			}).Error; err != nil {
			return r.persistenceError(opRepositoryUpdate, "update_failed", err)
		}

		existing.Checklist = datatypes.NewJSONType(items)
		existing.Progress = progress
		existing.UpdatedAt = updatedAt
		updated = existing
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return updated, nil
}

func (r *GormRepository) findByUserAndEntity(db *gorm.DB, operation, userID string, entityID catalog.EntityID) (*Record, error) {
	var record Record
	err := db.Table(r.table).
		Where("user_id = ? AND entity_id = ?", userID, entityID.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.persistenceError(operation, "select_failed", err)
	}
	return &record, nil
}

func (r *GormRepository) persistenceError(operation, reason string, err error) error {
	return apperr.New(apperr.ErrPersistence, operation, reason, fmt.Errorf("table %s: %w", r.table, err))
}
