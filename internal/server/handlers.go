package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kolehiyo/kolehiyo/backend/internal/apperr"
	"github.com/kolehiyo/kolehiyo/backend/internal/catalog"
	"github.com/kolehiyo/kolehiyo/backend/internal/checklist"
	"github.com/kolehiyo/kolehiyo/backend/internal/users"
	"go.uber.org/zap"
)

const (
	opCatalogDetails  = "server.catalog_details"
	opTrackerRequest  = "server.tracker_request"
	opProfileRequest  = "server.profile_request"
	opWebhookRequest  = "server.webhook_request"
	genericEntityKey  = "entityId"
	maxJSONBodyBytes  = 1 << 20
	maxWebhookPayload = 1 << 20
)

type catalogHandler struct {
	reader catalog.Reader
	parent *httpHandler
}

func (h catalogHandler) handleList(c *gin.Context) {
	filter := catalog.Filter{
		Query:  c.Query("q"),
		Status: c.Query("status"),
		Type:   c.Query("type"),
	}
	cards, err := h.reader.ListPublic(c.Request.Context(), filter)
	if err != nil {
		h.parent.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cards})
}

func (h catalogHandler) handleDetails(c *gin.Context) {
	id, err := catalog.NewEntityID(c.Param("id"))
	if err != nil {
		h.parent.writeError(c, apperr.Validation(opCatalogDetails, "invalid_id", map[string]string{"id": "invalid"}))
		return
	}
	entity, err := h.reader.GetDetails(c.Request.Context(), id)
	if err != nil {
		h.parent.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entity})
}

type trackerHandler struct {
	service TrackerService
	kind    catalog.Kind
	parent  *httpHandler
}

func (h trackerHandler) handleList(c *gin.Context) {
	entries := h.service.ListTracked(c.Request.Context(), userIDFrom(c))
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (h trackerHandler) handleAdd(c *gin.Context) {
	entityID, err := h.entityIDFromBody(c)
	if err != nil {
		h.parent.writeError(c, err)
		return
	}
	record, created, err := h.service.AddToTracker(c.Request.Context(), userIDFrom(c), entityID)
	if err != nil {
		h.parent.writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": record})
}

func (h trackerHandler) handleRemove(c *gin.Context) {
	var entityID catalog.EntityID
	if fromQuery, present := c.GetQuery(h.kind.EntityField); present {
		parsed, err := catalog.NewEntityID(fromQuery)
		if err != nil {
			h.parent.writeError(c, apperr.Validation(opTrackerRequest, "invalid_id", map[string]string{
				h.kind.EntityField: "invalid",
			}))
			return
		}
		entityID = parsed
	} else {
		parsed, err := h.entityIDFromBody(c)
		if err != nil {
			h.parent.writeError(c, err)
			return
		}
		entityID = parsed
	}

	deleted, err := h.service.RemoveFromTracker(c.Request.Context(), userIDFrom(c), entityID)
	if err != nil {
		h.parent.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": deleted})
}

type checklistRequestPayload struct {
	TrackerID string              `json:"trackerId" binding:"required,max=190"`
	Checklist checklist.Checklist `json:"checklist"`
}

func (h trackerHandler) handleUpdateChecklist(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes)
	var request checklistRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.parent.writeError(c, bindingError(err))
		return
	}
	record, err := h.service.UpdateChecklist(c.Request.Context(), userIDFrom(c), request.TrackerID, request.Checklist)
	if err != nil {
		h.parent.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": record})
}

// entityIDFromBody reads the kind's entity field, falling back to a generic
// entityId key. Numeric and string ids are both accepted.
func (h trackerHandler) entityIDFromBody(c *gin.Context) (catalog.EntityID, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes))
	if err != nil {
		return "", apperr.Validation(opTrackerRequest, "malformed_body", nil)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "", nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", apperr.Validation(opTrackerRequest, "malformed_body", nil)
	}

	for _, key := range []string{h.kind.EntityField, genericEntityKey} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		var entityID catalog.EntityID
		if err := json.Unmarshal(value, &entityID); err != nil {
			return "", apperr.Validation(opTrackerRequest, "invalid_fields", map[string]string{
				key: "must be a string or number",
			})
		}
		return entityID, nil
	}
	return "", nil
}

type onboardingRequestPayload struct {
	AcademicLevel *string `json:"academicLevel" binding:"omitempty,max=64"`
	Region        *string `json:"region" binding:"omitempty,max=128"`
	School        *string `json:"school" binding:"omitempty,max=255"`
	Strand        *string `json:"strand" binding:"omitempty,max=64"`
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		h.writeError(c, apperr.New(apperr.ErrUnauthorized, opProfileRequest, "missing_claims", nil))
		return
	}
	profile, err := h.profiles.EnsureProfile(c.Request.Context(), claims)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": profile})
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		h.writeError(c, apperr.New(apperr.ErrUnauthorized, opProfileRequest, "missing_claims", nil))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes)
	var request onboardingRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeError(c, bindingError(err))
		return
	}

	if _, err := h.profiles.EnsureProfile(c.Request.Context(), claims); err != nil {
		h.writeError(c, err)
		return
	}
	profile, err := h.profiles.UpdateOnboarding(c.Request.Context(), claims.UserID(), users.OnboardingUpdate{
		AcademicLevel: request.AcademicLevel,
		Region:        request.Region,
		School:        request.School,
		Strand:        request.Strand,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": profile})
}

func (h *httpHandler) handleWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	processor, ok := h.webhooks[provider]
	if !ok {
		h.writeError(c, apperr.New(apperr.ErrNotFound, opWebhookRequest, "unknown_provider", nil))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookPayload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(c, apperr.Validation(opWebhookRequest, "payload_too_large", nil))
			return
		}
		h.writeError(c, apperr.Validation(opWebhookRequest, "unreadable_body", nil))
		return
	}

	outcome, err := processor.Process(c.Request.Context(), c.Request.Header, payload)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Debug("webhook processed",
		zap.String("provider", provider),
		zap.String("event_type", outcome.EventType),
		zap.Bool("handled", outcome.Handled))
	c.JSON(http.StatusOK, gin.H{"received": true})
}
