// Package tracker manages which catalog entities a user tracks and the
// checklist progress of each tracked entity. One Service serves one kind.
package tracker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kolehiyo/kolehiyo/backend/internal/apperr"
	"github.com/kolehiyo/kolehiyo/backend/internal/catalog"
	"github.com/kolehiyo/kolehiyo/backend/internal/checklist"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	opServiceNew       = "tracker.service.new"
	opAddToTracker     = "tracker.add"
	opRemoveFromTrack  = "tracker.remove"
	opListTracked      = "tracker.list_tracked"
	opUpdateChecklist  = "tracker.update_checklist"
	reasonMissingUser  = "missing_user_id"
	reasonMissingInput = "invalid_request"
)

var (
	errMissingCatalog    = errors.New("catalog reader is required")
	errMissingRepository = errors.New("tracker repository is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Catalog    catalog.Reader
	Repository Repository
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service implements the tracker use cases for the kind of its catalog reader.
type Service struct {
	catalog       catalog.Reader
	repository    Repository
	clock         func() time.Time
	idProvider    IDProvider
	logger        *zap.Logger
	kind          catalog.Kind
	failSoftReads atomic.Int64
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, apperr.New(apperr.ErrUnavailable, opServiceNew, "missing_catalog", errMissingCatalog)
	}
	if cfg.Repository == nil {
		return nil, apperr.New(apperr.ErrUnavailable, opServiceNew, "missing_repository", errMissingRepository)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.New(apperr.ErrUnavailable, opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		catalog:    cfg.Catalog,
		repository: cfg.Repository,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		kind:       cfg.Catalog.Kind(),
	}, nil
}

// Kind returns the kind this service tracks.
func (s *Service) Kind() catalog.Kind {
	return s.kind
}

// AddToTracker starts tracking entityID for userID. When the pair is already
// tracked the stored record is returned unchanged with created=false.
// Concurrent calls for the same pair converge on a single record.
func (s *Service) AddToTracker(ctx context.Context, userID string, entityID catalog.EntityID) (Record, bool, error) {
	if err := s.validateUser(opAddToTracker, userID); err != nil {
		return Record{}, false, err
	}
	if strings.TrimSpace(entityID.String()) == "" {
		return Record{}, false, apperr.Validation(opAddToTracker, reasonMissingInput, map[string]string{
			s.kind.EntityField: "required",
		})
	}

	entity, err := s.catalog.GetDetails(ctx, entityID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Record{}, false, apperr.New(apperr.ErrNotFound, opAddToTracker, "entity_not_found", err)
		}
		s.logError(opAddToTracker, "catalog_failed", err, s.pairFields(userID, entityID)...)
		return Record{}, false, err
	}
	// Records are keyed by the catalog's own form of the id so that "5",
	// "05" and 5.0 all resolve to one tracker.
	if entity.ID != "" {
		entityID = entity.ID
	}

	existing, err := s.repository.FindByUserAndEntity(ctx, userID, entityID)
	if err != nil {
		s.logError(opAddToTracker, "lookup_failed", err, s.pairFields(userID, entityID)...)
		return Record{}, false, err
	}
	if existing != nil {
		s.logger.Warn("entity already tracked", append(s.pairFields(userID, entityID),
			zap.String("operation", opAddToTracker),
			zap.String("tracker_id", existing.TrackerID))...)
		return *existing, false, nil
	}

	trackerID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddToTracker, "id_generation_failed", err, s.pairFields(userID, entityID)...)
		return Record{}, false, apperr.New(apperr.ErrPersistence, opAddToTracker, "id_generation_failed", err)
	}

	items := checklist.Seed(entity.Requirements)
	now := s.clock().UTC()
	stored, created, err := s.repository.InsertIfAbsent(ctx, Record{
		TrackerID: trackerID,
		UserID:    userID,
		EntityID:  entityID,
		Status:    entity.Status,
		Checklist: datatypes.NewJSONType(items),
		Progress:  checklist.ComputeProgress(items),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		s.logError(opAddToTracker, "insert_failed", err, s.pairFields(userID, entityID)...)
		return Record{}, false, err
	}
	if !created {
		s.logger.Warn("concurrent add resolved to existing tracker", append(s.pairFields(userID, entityID),
			zap.String("operation", opAddToTracker),
			zap.String("tracker_id", stored.TrackerID))...)
	}
	return stored, created, nil
}

// RemoveFromTracker stops tracking entityID and returns the deleted record,
// or nil when the pair was not tracked.
func (s *Service) RemoveFromTracker(ctx context.Context, userID string, entityID catalog.EntityID) (*Record, error) {
	if err := s.validateUser(opRemoveFromTrack, userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(entityID.String()) == "" {
		return nil, apperr.Validation(opRemoveFromTrack, reasonMissingInput, map[string]string{
			s.kind.EntityField: "required",
		})
	}

	entityID = s.canonicalEntityID(ctx, opRemoveFromTrack, entityID)
	deleted, err := s.repository.DeleteByUserAndEntity(ctx, userID, entityID)
	if err != nil {
		s.logError(opRemoveFromTrack, "delete_failed", err, s.pairFields(userID, entityID)...)
		return nil, err
	}
	return deleted, nil
}

// ListTracked returns the user's records joined with current catalog cards.
//
// The read is fail-soft: any failure yields an empty list, an error log and an
// increment of FailSoftReads. Record.Status is the status captured when the
// entity was first tracked and is not refreshed from the catalog, so it may
// differ from Entity.Status.
func (s *Service) ListTracked(ctx context.Context, userID string) []TrackedEntry {
	if strings.TrimSpace(userID) == "" {
		s.recordFailSoft(opListTracked, reasonMissingUser, errors.New("user identifier is required"))
		return []TrackedEntry{}
	}

	records, err := s.repository.ListByUser(ctx, userID)
	if err != nil {
		s.recordFailSoft(opListTracked, "list_failed", err, zap.String("user_id", userID))
		return []TrackedEntry{}
	}

	ids := make([]catalog.EntityID, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.EntityID)
	}
	cards, err := s.catalog.Cards(ctx, ids)
	if err != nil {
		s.recordFailSoft(opListTracked, "join_failed", err, zap.String("user_id", userID))
		return []TrackedEntry{}
	}

	entries := make([]TrackedEntry, 0, len(records))
	for _, record := range records {
		entry := TrackedEntry{Record: record}
		if card, ok := cards[record.EntityID]; ok {
			cardCopy := card
			entry.Entity = &cardCopy
		}
		entries = append(entries, entry)
	}
	return entries
}

// UpdateChecklist replaces the checklist of a tracker owned by userID and
// recomputes its progress. Any well-formed checklist is accepted.
func (s *Service) UpdateChecklist(ctx context.Context, userID, trackerID string, items checklist.Checklist) (Record, error) {
	if err := s.validateUser(opUpdateChecklist, userID); err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(trackerID) == "" {
		return Record{}, apperr.Validation(opUpdateChecklist, reasonMissingInput, map[string]string{
			"trackerId": "required",
		})
	}
	if items == nil {
		return Record{}, apperr.Validation(opUpdateChecklist, reasonMissingInput, map[string]string{
			"checklist": "must be an array",
		})
	}
	if err := checklist.Validate(items); err != nil {
		return Record{}, err
	}

	progress := checklist.ComputeProgress(items)
	updated, err := s.repository.UpdateChecklist(ctx, userID, trackerID, items, progress, s.clock().UTC())
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.logError(opUpdateChecklist, "update_failed", err,
				zap.String("user_id", userID),
				zap.String("tracker_id", trackerID))
		}
		return Record{}, err
	}
	return updated, nil
}

// FailSoftReads reports how many ListTracked calls degraded to an empty result.
func (s *Service) FailSoftReads() int64 {
	return s.failSoftReads.Load()
}

func (s *Service) validateUser(operation, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.New(apperr.ErrUnauthorized, operation, reasonMissingUser, nil)
	}
	return nil
}

func (s *Service) recordFailSoft(operation, reason string, err error, fields ...zap.Field) {
	s.failSoftReads.Add(1)
	s.logError(operation, reason, err, append(fields, zap.Bool("fail_soft", true))...)
}

func (s *Service) pairFields(userID string, entityID catalog.EntityID) []zap.Field {
	return []zap.Field{
		zap.String("user_id", userID),
		zap.String("entity_id", entityID.String()),
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("kind", s.kind.Name),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("tracker service error", attrs...)
}

// canonicalEntityID returns the catalog's form of entityID. Entities that have
// left the catalog keep the id as given so their trackers can still be removed.
func (s *Service) canonicalEntityID(ctx context.Context, operation string, entityID catalog.EntityID) catalog.EntityID {
	entity, err := s.catalog.GetDetails(ctx, entityID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.logger.Warn("catalog lookup failed, using entity id as given",
				zap.String("operation", operation),
				zap.String("entity_id", entityID.String()),
				zap.Error(err))
		}
		return entityID
	}
	if entity.ID == "" {
		return entityID
	}
	return entity.ID
}
