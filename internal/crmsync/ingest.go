// Package crmsync verifies, deduplicates and applies inbound CRM provider
// events, and pushes local entity changes outward under retry and
// idempotency constraints.
package crmsync

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clientdesk/orchestrator/internal/config"
	"clientdesk/orchestrator/internal/logging"
	"clientdesk/orchestrator/internal/metrics"
	"clientdesk/orchestrator/internal/repository"
	"clientdesk/orchestrator/internal/token"
	"clientdesk/orchestrator/pkg/models"
)

// Config holds the outbound sync retry policy.
type Config struct {
	MaxAttempts  int
	RetryBase    time.Duration
	TickInterval time.Duration
}

// Service is the webhook ingestion and CRM sync service.
type Service struct {
	repo      repository.CRMStore
	tokens    *token.Store
	client    ProviderClient
	providers map[string]config.ProviderConfig
	cfg       Config
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewService creates a new crmsync Service.
func NewService(repo repository.CRMStore, tokens *token.Store, client ProviderClient,
	providers map[string]config.ProviderConfig, cfg Config, logger *logging.Logger, m *metrics.Metrics) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 30 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Second
	}
	return &Service{repo: repo, tokens: tokens, client: client, providers: providers, cfg: cfg, logger: logger, metrics: m}
}

// IngestResult reports how an inbound delivery was handled.
type IngestResult struct {
	Accepted bool                 `json:"accepted"`
	Status   models.WebhookStatus `json:"status"`
	EventID  string               `json:"event_id,omitempty"`
}

// inboundEvent is the provider delivery envelope.
type inboundEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	AccountID string          `json:"account_id"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

type contactData struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Phone string   `json:"phone"`
	Name  string   `json:"name"`
	Tags  []string `json:"tags"`
}

// Ingest verifies, deduplicates and applies one inbound provider delivery.
// Verification fails closed: a bad signature records nothing. Concurrent
// deliveries of the same external event id resolve to a single applied
// side effect through the atomic insert.
func (s *Service) Ingest(ctx context.Context, providerID string, body []byte, signature string) (*IngestResult, error) {
	provider, ok := s.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", providerID, models.ErrNotFound)
	}

	if !verifySignature(provider.WebhookSecret, body, signature) {
		if s.metrics != nil {
			s.metrics.WebhookEvent(ctx, "invalid_signature")
		}
		s.logger.Warn("webhook signature verification failed", "provider", providerID)
		return nil, models.ErrInvalidSignature
	}

	var ev inboundEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", models.ErrInvalidPayload)
	}
	if ev.EventID == "" || ev.EventType == "" {
		return nil, fmt.Errorf("webhook missing event_id or event_type: %w", models.ErrInvalidPayload)
	}

	record := &models.WebhookEvent{
		ID:         uuid.New().String(),
		ProviderID: providerID,
		ExternalID: ev.EventID,
		EventType:  ev.EventType,
		Payload:    body,
		Status:     models.WebhookStatusPending,
		ReceivedAt: time.Now().UTC(),
	}
	stored, created, err := s.repo.InsertWebhookEvent(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	if !created && (stored.Status == models.WebhookStatusProcessed || stored.Status == models.WebhookStatusDuplicate) {
		// Re-delivery of an already-applied event: short-circuit
		// without reapplying effects.
		if s.metrics != nil {
			s.metrics.WebhookEvent(ctx, "duplicate")
		}
		s.logger.Debug("duplicate webhook delivery", "provider", providerID, "event", ev.EventID)
		return &IngestResult{Accepted: true, Status: models.WebhookStatusDuplicate, EventID: stored.ID}, nil
	}

	// First delivery, or a redelivery of an event whose processing never
	// completed; apply (idempotently) either way.
	if err := s.apply(ctx, providerID, &ev); err != nil {
		if statusErr := s.repo.UpdateWebhookEventStatus(ctx, stored.ID, models.WebhookStatusFailed); statusErr != nil {
			s.logger.Error("mark webhook failed", "event", stored.ID, "error", statusErr)
		}
		if s.metrics != nil {
			s.metrics.WebhookEvent(ctx, "failed")
		}
		return nil, fmt.Errorf("apply webhook %s: %w", ev.EventID, err)
	}

	if err := s.repo.UpdateWebhookEventStatus(ctx, stored.ID, models.WebhookStatusProcessed); err != nil {
		return nil, fmt.Errorf("mark webhook processed: %w", err)
	}
	if s.metrics != nil {
		s.metrics.WebhookEvent(ctx, "processed")
	}
	return &IngestResult{Accepted: true, Status: models.WebhookStatusProcessed, EventID: stored.ID}, nil
}

// apply classifies the event and applies it to local state.
func (s *Service) apply(ctx context.Context, providerID string, ev *inboundEvent) error {
	integration, err := s.repo.GetIntegrationByAccount(ctx, providerID, ev.AccountID)
	if err != nil {
		return fmt.Errorf("resolve integration for account %s: %w", ev.AccountID, err)
	}

	switch ev.EventType {
	case "contact.created", "contact.updated":
		return s.applyContact(ctx, integration, ev)

	case "contact.sync_requested":
		// The provider wants a round-trip acknowledgement: push our
		// copy back out through the sync queue.
		var data contactData
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return fmt.Errorf("decode contact data: %w", models.ErrInvalidPayload)
		}
		return s.enqueue(ctx, integration, "contacts", data.ID, ev.Data)

	default:
		// Unrecognized types are accepted and ignored so new provider
		// event kinds don't bounce deliveries.
		s.logger.Debug("ignoring webhook event type", "provider", providerID, "type", ev.EventType)
		return nil
	}
}

// applyContact upserts the local contact projection, last-write-wins. An
// inbound update older than the integration's last sync acknowledgement is
// stale and is ignored.
func (s *Service) applyContact(ctx context.Context, integration *models.Integration, ev *inboundEvent) error {
	var data contactData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return fmt.Errorf("decode contact data: %w", models.ErrInvalidPayload)
	}
	if data.ID == "" {
		return fmt.Errorf("contact data missing id: %w", models.ErrInvalidPayload)
	}

	if integration.LastAckAt != nil && ev.UpdatedAt.Before(*integration.LastAckAt) {
		s.logger.Info("ignoring stale inbound update",
			"integration", integration.ID, "contact", data.ID,
			"remote_updated_at", ev.UpdatedAt, "last_ack_at", *integration.LastAckAt)
		return nil
	}

	existing, err := s.repo.GetContactByExternalID(ctx, integration.TenantID, data.ID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("load contact %s: %w", data.ID, err)
	}
	if existing != nil && existing.RemoteUpdatedAt != nil && ev.UpdatedAt.Before(*existing.RemoteUpdatedAt) {
		s.logger.Info("ignoring out-of-order inbound update", "contact", data.ID)
		return nil
	}

	remoteUpdated := ev.UpdatedAt
	contact := &models.Contact{
		ID:              uuid.New().String(),
		TenantID:        integration.TenantID,
		ExternalID:      data.ID,
		Email:           data.Email,
		Phone:           data.Phone,
		Name:            data.Name,
		Tags:            data.Tags,
		RemoteUpdatedAt: &remoteUpdated,
	}
	if existing != nil {
		contact.ID = existing.ID
	}
	return s.repo.UpsertContact(ctx, contact)
}

// verifySignature checks an HMAC-SHA256 hex signature in constant time.
func verifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
