package webhook

import (
	"encoding/json"
	"strings"

	"github.com/kolehiyo/kolehiyo/backend/internal/users"
)

// Lifecycle event types delivered by the identity provider.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// Event is the envelope of every webhook delivery.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EmailAddress is one address attached to a provider user.
type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// UserData is the payload of the user lifecycle events.
type UserData struct {
	ID                    string         `json:"id"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	FirstName             *string        `json:"first_name"`
	LastName              *string        `json:"last_name"`
	Deleted               bool           `json:"deleted"`
}

// PrimaryEmail returns the address flagged as primary, falling back to the first non-blank one.
func (d UserData) PrimaryEmail() string {
	if d.PrimaryEmailAddressID != "" {
		for _, address := range d.EmailAddresses {
			if address.ID == d.PrimaryEmailAddressID {
				if email := strings.TrimSpace(address.EmailAddress); email != "" {
					return email
				}
			}
		}
	}
	for _, address := range d.EmailAddresses {
		if email := strings.TrimSpace(address.EmailAddress); email != "" {
			return email
		}
	}
	return ""
}

// FullName joins the first and last names.
func (d UserData) FullName() string {
	var parts []string
	if d.FirstName != nil && strings.TrimSpace(*d.FirstName) != "" {
		parts = append(parts, strings.TrimSpace(*d.FirstName))
	}
	if d.LastName != nil && strings.TrimSpace(*d.LastName) != "" {
		parts = append(parts, strings.TrimSpace(*d.LastName))
	}
	return strings.Join(parts, " ")
}

func (d UserData) providerUser() users.ProviderUser {
	return users.ProviderUser{
		ID:       strings.TrimSpace(d.ID),
		Email:    d.PrimaryEmail(),
		FullName: d.FullName(),
	}
}
