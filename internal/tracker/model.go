package tracker

import (
	"time"

	"github.com/kolehiyo/kolehiyo/backend/internal/catalog"
	"github.com/kolehiyo/kolehiyo/backend/internal/checklist"
	"gorm.io/datatypes"
)

// Record is one user's tracking relationship to one catalog entity. The same
// model backs every kind; the kind's TrackerTable selects the table.
type Record struct {
	TrackerID string                                  `gorm:"column:tracker_id;primaryKey;size:190;not null" json:"trackerId"`
	UserID    string                                  `gorm:"column:user_id;size:190;not null;index:,unique,composite:user_entity,priority:1;index:,composite:user_created,priority:1" json:"userId"`
	EntityID  catalog.EntityID                        `gorm:"column:entity_id;size:190;not null;index:,unique,composite:user_entity,priority:2" json:"entityId"`
	Status    catalog.Status                          `gorm:"column:status;size:64;not null;default:'open'" json:"status"`
	Checklist datatypes.JSONType[checklist.Checklist] `gorm:"column:checklist;not null" json:"checklist"`
	Progress  int                                     `gorm:"column:progress;not null;default:0" json:"progress"`
	CreatedAt time.Time                               `gorm:"column:created_at;not null;index:,composite:user_created,priority:2" json:"createdAt"`
	UpdatedAt time.Time                               `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// Items returns the record's checklist.
func (r Record) Items() checklist.Checklist {
	items := r.Checklist.Data()
	if items == nil {
		return checklist.Checklist{}
	}
	return items
}

// TrackedEntry is a record joined with the current catalog card of its entity.
// Entity is nil when the catalog row no longer exists.
type TrackedEntry struct {
	Record
	Entity *catalog.Card `json:"entity"`
}
