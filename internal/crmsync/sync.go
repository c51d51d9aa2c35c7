package crmsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clientdesk/orchestrator/pkg/models"
)

// EnqueueSync records an outbound sync for the entity against each of the
// tenant's connected integrations. It satisfies the engine's CRMSyncer
// contract: the durable SyncRecord, not an in-memory timer, carries the
// retry state.
func (s *Service) EnqueueSync(ctx context.Context, tenantID, entityType, entityID string, payload map[string]interface{}) error {
	integrations, err := s.repo.ListIntegrationsByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list integrations: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode sync payload: %w", err)
	}

	now := time.Now().UTC()
	for _, in := range integrations {
		if in.Status == models.IntegrationStatusDisconnected {
			continue
		}
		rec := &models.SyncRecord{
			ID:            uuid.New().String(),
			IntegrationID: in.ID,
			EntityType:    entityType,
			EntityID:      entityID,
			Direction:     models.SyncDirectionOutbound,
			Payload:       body,
			Status:        models.SyncStatusPending,
			NextAttemptAt: &now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.CreateSyncRecord(ctx, rec); err != nil {
			return fmt.Errorf("create sync record: %w", err)
		}
	}
	return nil
}

// enqueue is the internal form used when an inbound event demands a
// round-trip acknowledgement.
func (s *Service) enqueue(ctx context.Context, integration *models.Integration, entityType, entityID string, payload []byte) error {
	now := time.Now().UTC()
	rec := &models.SyncRecord{
		ID:            uuid.New().String(),
		IntegrationID: integration.ID,
		EntityType:    entityType,
		EntityID:      entityID,
		Direction:     models.SyncDirectionOutbound,
		Payload:       payload,
		Status:        models.SyncStatusPending,
		NextAttemptAt: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return s.repo.CreateSyncRecord(ctx, rec)
}

// RunRetryLoop drives due sync records on a fixed tick until the context
// is canceled. Scheduling state lives in the records themselves, so a
// restart resumes exactly where the previous process left off.
func (s *Service) RunRetryLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick processes every sync record currently due.
func (s *Service) Tick(ctx context.Context) {
	recs, err := s.repo.ListDueSyncRecords(ctx, time.Now().UTC(), 100)
	if err != nil {
		s.logger.Error("list due sync records", "error", err)
		return
	}
	for _, rec := range recs {
		if ctx.Err() != nil {
			return
		}
		if err := s.processRecord(ctx, rec); err != nil {
			s.logger.Error("process sync record", "record", rec.ID, "entity", rec.EntityID, "error", err)
		}
	}
}

// processRecord makes one outbound attempt for the record. A transient
// failure schedules the next attempt with exponential backoff; exhausting
// the attempt budget abandons the record for manual reconciliation.
func (s *Service) processRecord(ctx context.Context, rec *models.SyncRecord) error {
	integration, err := s.repo.GetIntegration(ctx, rec.IntegrationID)
	if err != nil {
		return fmt.Errorf("load integration %s: %w", rec.IntegrationID, err)
	}
	provider, ok := s.providers[integration.ProviderID]
	if !ok {
		return s.finishRecord(ctx, rec, models.SyncStatusFailed,
			fmt.Errorf("provider %s not configured: %w", integration.ProviderID, models.ErrNotFound))
	}

	rec.Attempts++

	attemptErr := func() error {
		tok, err := s.tokens.Token(ctx, integration.ID)
		if err != nil {
			return fmt.Errorf("obtain token: %w", err)
		}
		return s.client.PushEntity(ctx, provider.APIBaseURL, tok, rec.EntityType, rec.EntityID, rec.Payload)
	}()

	if attemptErr == nil {
		now := time.Now().UTC()
		integration.LastAckAt = &now
		if err := s.repo.UpdateIntegration(ctx, integration); err != nil {
			s.logger.Error("advance sync watermark", "integration", integration.ID, "error", err)
		}
		if s.metrics != nil {
			s.metrics.SyncAttempt(ctx, "success")
		}
		return s.finishRecord(ctx, rec, models.SyncStatusSuccess, nil)
	}

	if !errors.Is(attemptErr, models.ErrTransient) {
		if s.metrics != nil {
			s.metrics.SyncAttempt(ctx, "failed")
		}
		return s.finishRecord(ctx, rec, models.SyncStatusFailed, attemptErr)
	}

	if rec.Attempts >= s.cfg.MaxAttempts {
		if s.metrics != nil {
			s.metrics.SyncAttempt(ctx, "abandoned")
		}
		s.logger.Warn("sync record abandoned for manual reconciliation",
			"record", rec.ID, "entity", rec.EntityID, "attempts", rec.Attempts, "error", attemptErr)
		return s.finishRecord(ctx, rec, models.SyncStatusAbandoned, attemptErr)
	}

	next := time.Now().UTC().Add(s.backoffDelay(rec.Attempts))
	rec.NextAttemptAt = &next
	msg := attemptErr.Error()
	rec.LastError = &msg
	if s.metrics != nil {
		s.metrics.SyncAttempt(ctx, "transient")
	}
	if err := s.repo.UpdateSyncRecord(ctx, rec); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

func (s *Service) finishRecord(ctx context.Context, rec *models.SyncRecord, status models.SyncStatus, cause error) error {
	rec.Status = status
	rec.NextAttemptAt = nil
	if cause != nil {
		msg := cause.Error()
		rec.LastError = &msg
	}
	if err := s.repo.UpdateSyncRecord(ctx, rec); err != nil {
		return fmt.Errorf("finish sync record: %w", err)
	}
	return nil
}

// backoffDelay is the persisted exponential schedule: base doubles with
// each completed attempt.
func (s *Service) backoffDelay(attempts int) time.Duration {
	d := s.cfg.RetryBase
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}
