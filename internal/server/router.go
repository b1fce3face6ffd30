// Package server exposes the catalog, tracker, profile and webhook HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kolehiyo/kolehiyo/backend/internal/auth"
	"github.com/kolehiyo/kolehiyo/backend/internal/catalog"
	"github.com/kolehiyo/kolehiyo/backend/internal/checklist"
	"github.com/kolehiyo/kolehiyo/backend/internal/tracker"
	"github.com/kolehiyo/kolehiyo/backend/internal/users"
	"github.com/kolehiyo/kolehiyo/backend/internal/webhook"
	"go.uber.org/zap"
)

const (
	userIDContextKey  = "kolehiyo_user_id"
	claimsContextKey  = "kolehiyo_session_claims"
	requestIDKey      = "kolehiyo_request_id"
	requestIDHeader   = "X-Request-ID"
	trackedPathSuffix = "/tracked"
)

var (
	errMissingVerifier  = errors.New("token verifier dependency required")
	errMissingResources = errors.New("at least one catalog resource is required")
	errMissingCatalog   = errors.New("catalog reader dependency required")
	errMissingTracker   = errors.New("tracker service dependency required")
	errMissingProfiles  = errors.New("profile service dependency required")
	errKindMismatch     = errors.New("catalog reader and tracker service must serve the same kind")
)

// TrackerService is the per-kind tracker API the handlers depend on.
type TrackerService interface {
	Kind() catalog.Kind
	AddToTracker(ctx context.Context, userID string, entityID catalog.EntityID) (tracker.Record, bool, error)
	RemoveFromTracker(ctx context.Context, userID string, entityID catalog.EntityID) (*tracker.Record, error)
	ListTracked(ctx context.Context, userID string) []tracker.TrackedEntry
	UpdateChecklist(ctx context.Context, userID, trackerID string, items checklist.Checklist) (tracker.Record, error)
	FailSoftReads() int64
}

// ProfileService reads and updates the signed-in user's profile.
type ProfileService interface {
	EnsureProfile(ctx context.Context, claims auth.SessionClaims) (users.Profile, error)
	UpdateOnboarding(ctx context.Context, userID string, update users.OnboardingUpdate) (users.Profile, error)
}

// WebhookProcessor verifies and applies one signed delivery.
type WebhookProcessor interface {
	Process(ctx context.Context, headers http.Header, payload []byte) (webhook.Outcome, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Resource pairs the catalog reader and tracker service of one kind.
type Resource struct {
	Catalog catalog.Reader
	Tracker TrackerService
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	TokenVerifier  auth.TokenVerifier
	Resources      []Resource
	Profiles       ProfileService
	Webhooks       map[string]WebhookProcessor
	Database       Pinger
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin engine serving every route.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenVerifier == nil {
		return nil, errMissingVerifier
	}
	if len(deps.Resources) == 0 {
		return nil, errMissingResources
	}
	for _, resource := range deps.Resources {
		if resource.Catalog == nil {
			return nil, errMissingCatalog
		}
		if resource.Tracker == nil {
			return nil, errMissingTracker
		}
		if resource.Catalog.Kind().Name != resource.Tracker.Kind().Name {
			return nil, errKindMismatch
		}
	}
	if deps.Profiles == nil {
		return nil, errMissingProfiles
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registerValidatorTagNames()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		verifier:  deps.TokenVerifier,
		resources: deps.Resources,
		profiles:  deps.Profiles,
		webhooks:  deps.Webhooks,
		database:  deps.Database,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/readyz", handler.handleReady)

	api := router.Group("/api")
	for _, resource := range deps.Resources {
		handler.registerResource(api, resource)
	}

	me := api.Group("/me")
	me.Use(handler.authorizeRequest)
	me.GET("", handler.handleGetProfile)
	me.PATCH("", handler.handleUpdateProfile)

	api.POST("/webhook/:provider", handler.handleWebhook)

	return router, nil
}

type httpHandler struct {
	verifier  auth.TokenVerifier
	resources []Resource
	profiles  ProfileService
	webhooks  map[string]WebhookProcessor
	database  Pinger
	logger    *zap.Logger
}

func (h *httpHandler) registerResource(api *gin.RouterGroup, resource Resource) {
	kind := resource.Catalog.Kind()
	base := "/" + strings.Trim(kind.Path, "/")
	catalogRoutes := catalogHandler{reader: resource.Catalog, parent: h}
	trackerRoutes := trackerHandler{service: resource.Tracker, kind: kind, parent: h}

	group := api.Group(base)
	group.GET("", catalogRoutes.handleList)
	group.GET("/:id", catalogRoutes.handleDetails)

	tracked := group.Group(trackedPathSuffix)
	tracked.Use(h.authorizeRequest)
	tracked.GET("", trackerRoutes.handleList)
	tracked.POST("", trackerRoutes.handleAdd)
	tracked.DELETE("", trackerRoutes.handleRemove)
	tracked.PATCH("/checklist", trackerRoutes.handleUpdateChecklist)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleReady(c *gin.Context) {
	var failSoftReads int64
	for _, resource := range h.resources {
		failSoftReads += resource.Tracker.FailSoftReads()
	}

	databaseStatus := "ok"
	status := http.StatusOK
	if h.database != nil {
		if err := h.database.PingContext(c.Request.Context()); err != nil {
			h.logger.Error("readiness check failed", zap.Error(err))
			databaseStatus = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	c.JSON(status, gin.H{
		"status":          overall,
		"database":        databaseStatus,
		"fail_soft_reads": failSoftReads,
	})
}

func userIDFrom(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}

func claimsFrom(c *gin.Context) (auth.SessionClaims, bool) {
	value, exists := c.Get(claimsContextKey)
	if !exists {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}
