package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/kolehiyo/kolehiyo/backend/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opReaderNew  = "catalog.reader.new"
	opListPublic = "catalog.list_public"
	opGetDetails = "catalog.get_details"
	opCards      = "catalog.cards"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingKind     = errors.New("catalog kind is required")
	noOpLogger         = zap.NewNop()
)

// Reader serves read-only catalog projections for one kind.
type Reader interface {
	Kind() Kind
	ListPublic(ctx context.Context, filter Filter) ([]Card, error)
	GetDetails(ctx context.Context, id EntityID) (Entity, error)
	Cards(ctx context.Context, ids []EntityID) (map[EntityID]Card, error)
}

// Model is implemented by catalog row types.
type Model interface {
	Card() Card
	Details() Entity
}

// ReaderConfig configures a GormReader.
type ReaderConfig struct {
	Database *gorm.DB
	Kind     Kind
	Logger   *zap.Logger
}

// GormReader reads catalog rows of type T from the kind's catalog table.
type GormReader[T any, PT interface {
	*T
	Model
}] struct {
	db     *gorm.DB
	kind   Kind
	logger *zap.Logger
}

// NewReader validates the configuration and constructs a GormReader for row type T.
func NewReader[T any, PT interface {
	*T
	Model
}](cfg ReaderConfig) (*GormReader[T, PT], error) {
	if cfg.Database == nil {
		return nil, apperr.New(apperr.ErrUnavailable, opReaderNew, "missing_database", errMissingDatabase)
	}
	if cfg.Kind.CatalogTable == "" {
		return nil, apperr.New(apperr.ErrUnavailable, opReaderNew, "missing_kind", errMissingKind)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &GormReader[T, PT]{db: cfg.Database, kind: cfg.Kind, logger: logger}, nil
}

// NewCollegeReader constructs a reader over the colleges table.
func NewCollegeReader(db *gorm.DB, logger *zap.Logger) (*GormReader[College, *College], error) {
	return NewReader[College](ReaderConfig{Database: db, Kind: CollegeKind, Logger: logger})
}

// NewScholarshipReader constructs a reader over the scholarships table.
func NewScholarshipReader(db *gorm.DB, logger *zap.Logger) (*GormReader[Scholarship, *Scholarship], error) {
	return NewReader[Scholarship](ReaderConfig{Database: db, Kind: ScholarshipKind, Logger: logger})
}

// Kind returns the configured kind.
func (r *GormReader[T, PT]) Kind() Kind {
	return r.kind
}

// ListPublic returns the cards matching filter ordered by name. No rows yields
// an empty slice; a store failure yields apperr.ErrUnavailable.
func (r *GormReader[T, PT]) ListPublic(ctx context.Context, filter Filter) ([]Card, error) {
	where, args, err := filter.whereClause(r.kind)
	if err != nil {
		r.logError(opListPublic, "filter_invalid", err)
		return nil, apperr.Validation(opListPublic, "filter_invalid", nil)
	}

	query := r.db.WithContext(ctx).Table(r.kind.CatalogTable)
	if where != "" {
		query = query.Where(where, args...)
	}

	var rows []T
	if err := query.Order("name ASC").Order("id ASC").Find(&rows).Error; err != nil {
		r.logError(opListPublic, "query_failed", err)
		return nil, apperr.New(apperr.ErrUnavailable, opListPublic, "query_failed", r.wrapTable(err))
	}

	cards := make([]Card, 0, len(rows))
	for index := range rows {
		card := PT(&rows[index]).Card()
		if !filter.matchesStatus(card.Status) {
			continue
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// GetDetails returns the detail view of one entity, or apperr.ErrNotFound.
func (r *GormReader[T, PT]) GetDetails(ctx context.Context, id EntityID) (Entity, error) {
	if id == "" {
		return Entity{}, apperr.New(apperr.ErrNotFound, opGetDetails, "entity_not_found", nil)
	}

	var row T
	err := r.db.WithContext(ctx).
		Table(r.kind.CatalogTable).
		Where("id = ?", id.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entity{}, apperr.New(apperr.ErrNotFound, opGetDetails, "entity_not_found", nil)
	}
	if err != nil {
		r.logError(opGetDetails, "query_failed", err, zap.String("entity_id", id.String()))
		return Entity{}, apperr.New(apperr.ErrUnavailable, opGetDetails, "query_failed", r.wrapTable(err))
	}
	return PT(&row).Details(), nil
}

// Cards returns the cards of the requested entities keyed by id. Missing ids are absent from the map.
func (r *GormReader[T, PT]) Cards(ctx context.Context, ids []EntityID) (map[EntityID]Card, error) {
	cards := make(map[EntityID]Card, len(ids))
	if len(ids) == 0 {
		return cards, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	var rows []T
	if err := r.db.WithContext(ctx).
		Table(r.kind.CatalogTable).
		Where("id IN ?", keys).
		Find(&rows).Error; err != nil {
		r.logError(opCards, "query_failed", err, zap.Int("id_count", len(keys)))
		return nil, apperr.New(apperr.ErrUnavailable, opCards, "query_failed", r.wrapTable(err))
	}

	for index := range rows {
		card := PT(&rows[index]).Card()
		cards[card.ID] = card
	}
	return cards, nil
}

func (r *GormReader[T, PT]) wrapTable(err error) error {
	return fmt.Errorf("table %s: %w", r.kind.CatalogTable, err)
}

func (r *GormReader[T, PT]) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("kind", r.kind.Name),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("catalog reader error", attrs...)
}
