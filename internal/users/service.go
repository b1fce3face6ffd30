// Package users maintains the local shadow records of identity-provider users.
package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kolehiyo/kolehiyo/backend/internal/apperr"
	"github.com/kolehiyo/kolehiyo/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew         = "users.service.new"
	opCreateFromProvider = "users.create_from_provider"
	opUpdateFromProvider = "users.update_from_provider"
	opDelete             = "users.delete"
	opEnsureProfile      = "users.ensure_profile"
	opGetProfile         = "users.get_profile"
	opUpdateOnboarding   = "users.update_onboarding"
)

var (
	// ErrInvalidIdentity indicates the claims or event did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrMissingEmail indicates a created user arrived without any email address.
	ErrMissingEmail = errors.New("users: primary email required")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig describes the dependencies required for profile management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages user profiles. It remembers which profiles are known to
// exist so repeated lazy creation skips the insert.
type Service struct {
	db      *gorm.DB
	now     func() time.Time
	logger  *zap.Logger
	ensured sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(apperr.ErrPersistence, opServiceNew, "missing_database", errMissingDatabase)
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
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// CreateFromProvider upserts the profile of a newly created provider user.
// An email address is mandatory.
func (s *Service) CreateFromProvider(ctx context.Context, user ProviderUser) error {
	userID := normalize(user.ID)
	if userID == "" {
		return apperr.New(apperr.ErrValidation, opCreateFromProvider, "missing_user_id", ErrInvalidIdentity)
	}
	email := normalize(user.Email)
	if email == "" {
		s.logError(opCreateFromProvider, "missing_email", ErrMissingEmail, zap.String("user_id", userID))
		return apperr.New(apperr.ErrValidation, opCreateFromProvider, "missing_email", ErrMissingEmail)
	}

	now := s.now().UTC()
	profile := Profile{
		UserID:    userID,
		Email:     email,
		FullName:  normalize(user.FullName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "full_name", "updated_at"}),
		}).
		Create(&profile).Error
	if err != nil {
		s.logError(opCreateFromProvider, "upsert_failed", err, zap.String("user_id", userID))
		return apperr.New(apperr.ErrPersistence, opCreateFromProvider, "upsert_failed", err)
	}
	s.ensured.Store(userID, struct{}{})
	return nil
}

// UpdateFromProvider copies the provider's email and name onto an existing
// profile and reports how many rows changed. No matching row is not an error.
func (s *Service) UpdateFromProvider(ctx context.Context, user ProviderUser) (int64, error) {
	userID := normalize(user.ID)
	if userID == "" {
		return 0, apperr.New(apperr.ErrValidation, opUpdateFromProvider, "missing_user_id", ErrInvalidIdentity)
	}

	updates := map[string]any{
		"full_name":  normalize(user.FullName),
		"updated_at": s.now().UTC(),
	}
	if email := normalize(user.Email); email != "" {
		updates["email"] = email
	}

	result := s.db.WithContext(ctx).
		Model(&Profile{}).
		Where("user_id = ?", userID).
		Updates(updates)
	if result.Error != nil {
		s.logError(opUpdateFromProvider, "update_failed", result.Error, zap.String("user_id", userID))
		return 0, apperr.New(apperr.ErrPersistence, opUpdateFromProvider, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		s.logger.Info("profile update matched no rows",
			zap.String("operation", opUpdateFromProvider),
			zap.String("user_id", userID))
	}
	return result.RowsAffected, nil
}

// Delete removes the profile of a deleted provider user.
func (s *Service) Delete(ctx context.Context, userID string) error {
	userID = normalize(userID)
	if userID == "" {
		return apperr.New(apperr.ErrValidation, opDelete, "missing_user_id", ErrInvalidIdentity)
	}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&Profile{}).Error; err != nil {
		s.logError(opDelete, "delete_failed", err, zap.String("user_id", userID))
		return apperr.New(apperr.ErrPersistence, opDelete, "delete_failed", err)
	}
	s.ensured.Delete(userID)
	return nil
}

// EnsureProfile returns the caller's profile, creating it from the session
// claims when the lifecycle event has not arrived yet. Unlike
// CreateFromProvider it does not require an email.
func (s *Service) EnsureProfile(ctx context.Context, claims auth.SessionClaims) (Profile, error) {
	userID := claims.UserID()
	if userID == "" {
		return Profile{}, apperr.New(apperr.ErrUnauthorized, opEnsureProfile, "missing_user_id", ErrInvalidIdentity)
	}

	if _, known := s.ensured.Load(userID); !known {
		now := s.now().UTC()
		profile := Profile{
			UserID:    userID,
			Email:     normalize(claims.Email),
			FullName:  claims.DisplayName(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
			Create(&profile).Error; err != nil {
			s.logError(opEnsureProfile, "create_failed", err, zap.String("user_id", userID))
			return Profile{}, apperr.New(apperr.ErrPersistence, opEnsureProfile, "create_failed", err)
		}
		s.ensured.Store(userID, struct{}{})
	}

	profile, err := s.GetProfile(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		// deleted concurrently; forget it so the next call recreates it
		s.ensured.Delete(userID)
	}
	return profile, err
}

// GetProfile loads a profile by identity id.
func (s *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", normalize(userID)).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, apperr.New(apperr.ErrNotFound, opGetProfile, "profile_not_found", nil)
	}
	if err != nil {
		s.logError(opGetProfile, "query_failed", err, zap.String("user_id", userID))
		return Profile{}, apperr.New(apperr.ErrPersistence, opGetProfile, "query_failed", err)
	}
	return profile, nil
}

// UpdateOnboarding applies the onboarding fields to the caller's profile.
func (s *Service) UpdateOnboarding(ctx context.Context, userID string, update OnboardingUpdate) (Profile, error) {
	userID = normalize(userID)
	if userID == "" {
		return Profile{}, apperr.New(apperr.ErrUnauthorized, opUpdateOnboarding, "missing_user_id", ErrInvalidIdentity)
	}
	updates := update.columns()
	if len(updates) == 0 {
		return s.GetProfile(ctx, userID)
	}
	updates["updated_at"] = s.now().UTC()

	result := s.db.WithContext(ctx).
		Model(&Profile{}).
		Where("user_id = ?", userID).
		Updates(updates)
	if result.Error != nil {
		s.logError(opUpdateOnboarding, "update_failed", result.Error, zap.String("user_id", userID))
		return Profile{}, apperr.New(apperr.ErrPersistence, opUpdateOnboarding, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Profile{}, apperr.New(apperr.ErrNotFound, opUpdateOnboarding, "profile_not_found", nil)
	}
	return s.GetProfile(ctx, userID)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("users service error", attrs...)
}
