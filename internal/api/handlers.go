// Package api contains the HTTP handlers for the orchestration service.
package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"clientdesk/orchestrator/internal/auth"
	"clientdesk/orchestrator/internal/campaign"
	"clientdesk/orchestrator/internal/crmsync"
	"clientdesk/orchestrator/internal/dispatch"
	"clientdesk/orchestrator/internal/logging"
	"clientdesk/orchestrator/internal/repository"
	"clientdesk/orchestrator/pkg/models"
)

// signatureHeader carries the provider's HMAC signature on webhook posts.
const signatureHeader = "X-Webhook-Signature"

// webhookBodyLimit caps inbound provider deliveries; anything larger is
// rejected before the body is read for signature verification.
const webhookBodyLimit = "1M"

// Server holds the dependencies for the API server.
type Server struct {
	Repo       repository.Repository
	Campaigns  *campaign.Service
	Ingestor   *crmsync.Service
	Dispatcher *dispatch.Dispatcher
	Logger     *logging.Logger
}

// NewServer creates a new Server.
func NewServer(repo repository.Repository, campaigns *campaign.Service, ingestor *crmsync.Service, dispatcher *dispatch.Dispatcher, logger *logging.Logger) *Server {
	return &Server{Repo: repo, Campaigns: campaigns, Ingestor: ingestor, Dispatcher: dispatcher, Logger: logger}
}

// RegisterRoutes mounts the API on the echo instance. Control routes sit
// behind the auth middleware; webhook routes authenticate by signature.
func (s *Server) RegisterRoutes(e *echo.Echo, requireAuth echo.MiddlewareFunc) {
	e.GET("/healthz", s.Health)

	e.POST("/webhooks/:provider", s.IngestWebhook, middleware.BodyLimit(webhookBodyLimit))
	e.GET("/webhooks/:provider", s.WebhookChallenge)

	api := e.Group("/api/v1", requireAuth)
	api.POST("/events", s.PublishEvent)
	api.POST("/campaigns/:id/start", s.StartCampaign)
	api.POST("/campaigns/:id/pause", s.controlHandler(models.ControlPause))
	api.POST("/campaigns/:id/resume", s.controlHandler(models.ControlResume))
	api.POST("/campaigns/:id/stop", s.controlHandler(models.ControlStop))
	api.GET("/campaigns/:id/execution", s.GetCampaignExecution)
	api.GET("/executions/:id", s.GetExecution)
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// Health returns basic health status, including database connectivity.
func (s *Server) Health(c echo.Context) error {
	if err := s.Repo.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, HealthStatus{
			Status: "degraded", Timestamp: time.Now(), Service: "orchestrator",
		})
	}
	return c.JSON(http.StatusOK, HealthStatus{
		Status: "ok", Timestamp: time.Now(), Service: "orchestrator",
	})
}

// PublishEventRequest is a domain event submitted by another subsystem.
type PublishEventRequest struct {
	Type     string                 `json:"type"`
	EntityID string                 `json:"entity_id"`
	Payload  map[string]interface{} `json:"payload"`
}

// PublishEvent enqueues a domain event for the dispatcher.
// (POST /api/v1/events)
func (s *Server) PublishEvent(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, ok := auth.TenantID(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Tenant ID not found in context")
	}

	var req PublishEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	ev, err := s.Dispatcher.Publish(ctx, req.Type, tenantID, req.EntityID, req.Payload)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusAccepted, ev)
}

// StartCampaign creates or resumes the campaign's live execution and
// returns its snapshot.
// (POST /api/v1/campaigns/:id/start)
func (s *Server) StartCampaign(c echo.Context) error {
	exec, err := s.Campaigns.Start(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, exec)
}

// controlHandler builds the handler for one idempotent control command.
func (s *Server) controlHandler(action string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.Campaigns.Control(c.Request().Context(), c.Param("id"), action); err != nil {
			return s.mapError(err)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "action": action})
	}
}

// GetCampaignExecution returns the live execution for a campaign.
// (GET /api/v1/campaigns/:id/execution)
func (s *Server) GetCampaignExecution(c echo.Context) error {
	exec, err := s.Repo.GetLiveCampaignExecution(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, exec)
}

// GetExecution returns a workflow execution snapshot.
// (GET /api/v1/executions/:id)
func (s *Server) GetExecution(c echo.Context) error {
	exec, err := s.Repo.GetWorkflowExecution(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, exec)
}

// IngestWebhook accepts one provider delivery.
// (POST /webhooks/:provider)
func (s *Server) IngestWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read body")
	}

	result, err := s.Ingestor.Ingest(c.Request().Context(),
		c.Param("provider"), body, c.Request().Header.Get(signatureHeader))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// WebhookChallenge echoes the provider's verification challenge back
// verbatim, with no side effects.
// (GET /webhooks/:provider)
func (s *Server) WebhookChallenge(c echo.Context) error {
	return c.String(http.StatusOK, c.QueryParam("challenge"))
}

// mapError translates the error taxonomy into HTTP responses.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidPayload), errors.Is(err, models.ErrInvalidAction):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrInvalidSignature):
		return echo.NewHTTPError(http.StatusUnauthorized, "signature verification failed")
	case errors.Is(err, models.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
