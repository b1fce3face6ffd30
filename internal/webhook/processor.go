// Package webhook verifies and dispatches identity-provider lifecycle events.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kolehiyo/kolehiyo/backend/internal/apperr"
	"github.com/kolehiyo/kolehiyo/backend/internal/users"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"
)

// Signature headers required on every delivery.
const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

const (
	opProcessorNew = "webhook.processor.new"
	opProcess      = "webhook.process"
	opDispatch     = "webhook.dispatch"
)

var (
	errMissingUsers       = errors.New("user store is required")
	errSecretNotConfigured = errors.New("webhook secret is not configured")
	noOpLogger            = zap.NewNop()
)

// UserStore applies lifecycle events to local user records.
type UserStore interface {
	CreateFromProvider(ctx context.Context, user users.ProviderUser) error
	UpdateFromProvider(ctx context.Context, user users.ProviderUser) (int64, error)
	Delete(ctx context.Context, userID string) error
}

// ProcessorConfig wires a Processor. An empty Secret leaves the processor
// unconfigured; every delivery is then refused.
type ProcessorConfig struct {
	Secret string
	Users  UserStore
	Logger *zap.Logger
}

// Processor verifies signed deliveries and dispatches them by event type.
type Processor struct {
	verifier *svix.Webhook
	users    UserStore
	logger   *zap.Logger
}

// Outcome reports what a verified delivery did.
type Outcome struct {
	EventType string
	Handled   bool
}

// NewProcessor validates the configuration and constructs a Processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Users == nil {
		return nil, apperr.New(apperr.ErrUnavailable, opProcessorNew, "missing_users", errMissingUsers)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	processor := &Processor{users: cfg.Users, logger: logger}
	if secret := strings.TrimSpace(cfg.Secret); secret != "" {
		verifier, err := svix.NewWebhook(secret)
		if err != nil {
			return nil, apperr.New(apperr.ErrUnavailable, opProcessorNew, "invalid_secret", err)
		}
		processor.verifier = verifier
	}
	return processor, nil
}

// Process verifies payload against the signature headers and applies the event.
//
// Missing headers and bad signatures yield apperr.ErrSignature; an undecodable
// envelope yields apperr.ErrValidation; a failed dispatch yields
// apperr.ErrPersistence. Unknown event types are acknowledged without action.
func (p *Processor) Process(ctx context.Context, headers http.Header, payload []byte) (Outcome, error) {
	for _, name := range []string{HeaderID, HeaderTimestamp, HeaderSignature} {
		if strings.TrimSpace(headers.Get(name)) == "" {
			return Outcome{}, apperr.New(apperr.ErrSignature, opProcess, "missing_headers", nil)
		}
	}

	if p.verifier == nil {
		p.logError(opProcess, "secret_not_configured", errSecretNotConfigured)
		return Outcome{}, apperr.New(apperr.ErrUnavailable, opProcess, "secret_not_configured", errSecretNotConfigured)
	}

	if err := p.verifier.Verify(payload, headers); err != nil {
		p.logger.Warn("webhook signature rejected",
			zap.String("operation", opProcess),
			zap.String("message_id", headers.Get(HeaderID)),
			zap.Error(err))
		return Outcome{}, apperr.New(apperr.ErrSignature, opProcess, "signature_invalid", err)
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil || strings.TrimSpace(event.Type) == "" {
		return Outcome{}, apperr.Validation(opProcess, "invalid_envelope", nil)
	}

	outcome := Outcome{EventType: event.Type}
	handled, err := p.dispatch(ctx, event)
	if err != nil {
		p.logError(opDispatch, "handler_failed", err,
			zap.String("event_type", event.Type),
			zap.String("message_id", headers.Get(HeaderID)))
		return outcome, apperr.New(apperr.ErrPersistence, opDispatch, "handler_failed", err)
	}
	outcome.Handled = handled
	return outcome, nil
}

func (p *Processor) dispatch(ctx context.Context, event Event) (bool, error) {
	switch event.Type {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
	default:
		p.logger.Info("unhandled webhook event type", zap.String("event_type", event.Type))
		return false, nil
	}

	var data UserData
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return false, err
		}
	}

	switch event.Type {
	case EventUserCreated:
		return true, p.users.CreateFromProvider(ctx, data.providerUser())
	case EventUserUpdated:
		_, err := p.users.UpdateFromProvider(ctx, data.providerUser())
		return true, err
	default:
		userID := strings.TrimSpace(data.ID)
		if userID == "" {
			p.logger.Info("user.deleted event without id ignored")
			return false, nil
		}
		return true, p.users.Delete(ctx, userID)
	}
}

func (p *Processor) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	p.logger.Error("webhook processor error", attrs...)
}
