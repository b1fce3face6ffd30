package users

import (
	"strings"
	"time"
)

// Profile is the local shadow of an identity-provider user plus the
// onboarding fields collected by the app.
//
// A profile created lazily from session claims that carry no email has a
// blank Email until a user.created or user.updated event fills it in.
type Profile struct {
	UserID        string    `gorm:"column:user_id;primaryKey;size:190;not null" json:"userId"`
	Email         string    `gorm:"column:email;size:320;not null;default:''" json:"email"`
	FullName      string    `gorm:"column:full_name;size:320;not null;default:''" json:"fullName"`
	AcademicLevel *string   `gorm:"column:academic_level;size:64" json:"academicLevel"`
	Region        *string   `gorm:"column:region;size:128" json:"region"`
	School        *string   `gorm:"column:school;size:255" json:"school"`
	Strand        *string   `gorm:"column:strand;size:64" json:"strand"`
	CreatedAt     time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "users"
}

// ProviderUser is the identity-provider view of a user as delivered by lifecycle events.
type ProviderUser struct {
	ID       string
	Email    string
	FullName string
}

// OnboardingUpdate carries the onboarding fields a user may set. Nil fields are left unchanged.
type OnboardingUpdate struct {
	AcademicLevel *string
	Region        *string
	School        *string
	Strand        *string
}

func (u OnboardingUpdate) columns() map[string]any {
	updates := map[string]any{}
	setOptional(updates, "academic_level", u.AcademicLevel)
	setOptional(updates, "region", u.Region)
	setOptional(updates, "school", u.School)
	setOptional(updates, "strand", u.Strand)
	return updates
}

// setOptional stores nil for blank values so clearing a field is possible.
func setOptional(updates map[string]any, column string, value *string) {
	if value == nil {
		return
	}
	trimmed := normalize(*value)
	if trimmed == "" {
		updates[column] = nil
		return
	}
	updates[column] = trimmed
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
