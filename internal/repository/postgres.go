package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"clientdesk/orchestrator/pkg/models"
)

const uniqueViolation = "23505"

// Postgres is the PostgreSQL implementation of the Repository interface.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres creates a new Postgres repository.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Ping verifies database connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

/* ---- workflow definitions ---- */

// CreateWorkflowDefinition persists a new definition.
func (s *Postgres) CreateWorkflowDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_definitions (id, tenant_id, name, enabled, trigger, entry_step, steps, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		def.ID, def.TenantID, def.Name, def.Enabled, def.Trigger, def.EntryStep, def.Steps, def.CreatedAt)
	return err
}

// GetWorkflowDefinition retrieves a definition by id.
func (s *Postgres) GetWorkflowDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	var def models.WorkflowDefinition
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, enabled, trigger, entry_step, steps, created_at
		 FROM workflow_definitions WHERE id = $1`, id).
		Scan(&def.ID, &def.TenantID, &def.Name, &def.Enabled, &def.Trigger, &def.EntryStep, &def.Steps, &def.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &def, nil
}

// ListEnabledDefinitions returns the enabled definitions for a tenant whose
// trigger listens to the given event type.
func (s *Postgres) ListEnabledDefinitions(ctx context.Context, tenantID, eventType string) ([]*models.WorkflowDefinition, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, name, enabled, trigger, entry_step, steps, created_at
		 FROM workflow_definitions
		 WHERE tenant_id = $1 AND enabled AND trigger->>'event_type' = $2`,
		tenantID, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*models.WorkflowDefinition
	for rows.Next() {
		var def models.WorkflowDefinition
		if err := rows.Scan(&def.ID, &def.TenantID, &def.Name, &def.Enabled, &def.Trigger, &def.EntryStep, &def.Steps, &def.CreatedAt); err != nil {
			return nil, err
		}
		defs = append(defs, &def)
	}
	return defs, rows.Err()
}

/* ---- workflow executions ---- */

// CreateWorkflowExecution persists a new execution.
func (s *Postgres) CreateWorkflowExecution(ctx context.Context, exec *models.WorkflowExecution) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_executions (id, definition_id, tenant_id, status, current_step_id, bindings, resume_at, last_error, started_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		exec.ID, exec.DefinitionID, exec.TenantID, exec.Status, exec.CurrentStepID,
		exec.Bindings, exec.ResumeAt, exec.LastError, exec.StartedAt, exec.UpdatedAt)
	return err
}

// GetWorkflowExecution retrieves an execution by id.
func (s *Postgres) GetWorkflowExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	var exec models.WorkflowExecution
	err := s.db.QueryRow(ctx,
		`SELECT id, definition_id, tenant_id, status, current_step_id, bindings, resume_at, last_error, started_at, updated_at
		 FROM workflow_executions WHERE id = $1`, id).
		Scan(&exec.ID, &exec.DefinitionID, &exec.TenantID, &exec.Status, &exec.CurrentStepID,
			&exec.Bindings, &exec.ResumeAt, &exec.LastError, &exec.StartedAt, &exec.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &exec, nil
}

// UpdateWorkflowExecution writes an execution's mutable fields.
func (s *Postgres) UpdateWorkflowExecution(ctx context.Context, exec *models.WorkflowExecution) error {
	exec.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx,
		`UPDATE workflow_executions
		 SET status = $1, current_step_id = $2, bindings = $3, resume_at = $4, last_error = $5, updated_at = $6
		 WHERE id = $7`,
		exec.Status, exec.CurrentStepID, exec.Bindings, exec.ResumeAt, exec.LastError, exec.UpdatedAt, exec.ID)
	return err
}

// ListWaitingExecutionsDue returns waiting executions whose resume time has
// passed.
func (s *Postgres) ListWaitingExecutionsDue(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowExecution, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, definition_id, tenant_id, status, current_step_id, bindings, resume_at, last_error, started_at, updated_at
		 FROM workflow_executions
		 WHERE status = $1 AND resume_at <= $2
		 ORDER BY resume_at LIMIT $3`,
		models.ExecutionStatusWaiting, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*models.WorkflowExecution
	for rows.Next() {
		var exec models.WorkflowExecution
		if err := rows.Scan(&exec.ID, &exec.DefinitionID, &exec.TenantID, &exec.Status, &exec.CurrentStepID,
			&exec.Bindings, &exec.ResumeAt, &exec.LastError, &exec.StartedAt, &exec.UpdatedAt); err != nil {
			return nil, err
		}
		execs = append(execs, &exec)
	}
	return execs, rows.Err()
}

// ClaimWaitingExecution moves a waiting execution to running only while it
// is still waiting. RowsAffected decides the race between overlapping
// wake-ups of the same execution.
func (s *Postgres) ClaimWaitingExecution(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflow_executions SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		models.ExecutionStatusRunning, time.Now().UTC(), id, models.ExecutionStatusWaiting)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

/* ---- campaigns ---- */

// CreateCampaign persists a new campaign.
func (s *Postgres) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO campaigns (id, tenant_id, name, agent_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.TenantID, c.Name, c.AgentID, c.CreatedAt)
	return err
}

// GetCampaign retrieves a campaign by id.
func (s *Postgres) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	var c models.Campaign
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, agent_id, created_at FROM campaigns WHERE id = $1`, id).
		Scan(&c.ID, &c.TenantID, &c.Name, &c.AgentID, &c.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &c, nil
}

// CreateCallTarget appends a target to a campaign's queue.
func (s *Postgres) CreateCallTarget(ctx context.Context, t *models.CallTarget) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO call_targets (id, campaign_id, position, phone, contact_id) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.CampaignID, t.Position, t.Phone, t.ContactID)
	return err
}

// GetCallTarget returns the target at the given queue position, or
// models.ErrNotFound when the queue is exhausted.
func (s *Postgres) GetCallTarget(ctx context.Context, campaignID string, position int) (*models.CallTarget, error) {
	var t models.CallTarget
	err := s.db.QueryRow(ctx,
		`SELECT id, campaign_id, position, phone, contact_id FROM call_targets
		 WHERE campaign_id = $1 AND position = $2`, campaignID, position).
		Scan(&t.ID, &t.CampaignID, &t.Position, &t.Phone, &t.ContactID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &t, nil
}

// CreateCampaignExecution inserts a new execution. The partial unique index
// on live executions makes a concurrent duplicate insert fail with
// models.ErrConflict instead of racing a read-then-write check.
func (s *Postgres) CreateCampaignExecution(ctx context.Context, exec *models.CampaignExecution) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO campaign_executions (id, campaign_id, status, cursor, attempted, succeeded, failed, last_command, last_command_at, last_error, version, started_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		exec.ID, exec.CampaignID, exec.Status, exec.Cursor, exec.Attempted, exec.Succeeded, exec.Failed,
		exec.LastCommand, exec.LastCommandAt, exec.LastError, exec.Version, exec.StartedAt, exec.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrConflict
	}
	return err
}

func scanCampaignExecution(row pgx.Row) (*models.CampaignExecution, error) {
	var exec models.CampaignExecution
	err := row.Scan(&exec.ID, &exec.CampaignID, &exec.Status, &exec.Cursor, &exec.Attempted, &exec.Succeeded,
		&exec.Failed, &exec.LastCommand, &exec.LastCommandAt, &exec.LastError, &exec.Version, &exec.StartedAt, &exec.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &exec, nil
}

const campaignExecutionColumns = `id, campaign_id, status, cursor, attempted, succeeded, failed, last_command, last_command_at, last_error, version, started_at, updated_at`

// GetCampaignExecution retrieves an execution by id.
func (s *Postgres) GetCampaignExecution(ctx context.Context, id string) (*models.CampaignExecution, error) {
	return scanCampaignExecution(s.db.QueryRow(ctx,
		`SELECT `+campaignExecutionColumns+` FROM campaign_executions WHERE id = $1`, id))
}

// GetLiveCampaignExecution returns the single non-terminal execution for a
// campaign.
func (s *Postgres) GetLiveCampaignExecution(ctx context.Context, campaignID string) (*models.CampaignExecution, error) {
	return scanCampaignExecution(s.db.QueryRow(ctx,
		`SELECT `+campaignExecutionColumns+` FROM campaign_executions
		 WHERE campaign_id = $1 AND status NOT IN ($2, $3, $4)`,
		campaignID, models.CampaignStatusStopped, models.CampaignStatusCompleted, models.CampaignStatusFailed))
}

// UpdateCampaignExecutionCAS writes the execution only if the stored version
// still equals expectedVersion. A stale write fails with models.ErrConflict
// so a lagging pause cannot undo a concurrent stop.
func (s *Postgres) UpdateCampaignExecutionCAS(ctx context.Context, exec *models.CampaignExecution, expectedVersion int) error {
	exec.UpdatedAt = time.Now().UTC()
	tag, err := s.db.Exec(ctx,
		`UPDATE campaign_executions
		 SET status = $1, cursor = $2, attempted = $3, succeeded = $4, failed = $5,
		     last_command = $6, last_command_at = $7, last_error = $8, version = version + 1, updated_at = $9
		 WHERE id = $10 AND version = $11`,
		exec.Status, exec.Cursor, exec.Attempted, exec.Succeeded, exec.Failed,
		exec.LastCommand, exec.LastCommandAt, exec.LastError, exec.UpdatedAt, exec.ID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	exec.Version = expectedVersion + 1
	return nil
}

// CreateCallAttempt records the outcome of one dialed target.
func (s *Postgres) CreateCallAttempt(ctx context.Context, a *models.CallAttempt) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO call_attempts (id, execution_id, target_id, success, duration_seconds, outcome_code, attempted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.ExecutionID, a.TargetID, a.Success, a.DurationSeconds, a.OutcomeCode, a.AttemptedAt)
	return err
}

// HasCallAttempt reports whether a target was already dialed within an
// execution.
func (s *Postgres) HasCallAttempt(ctx context.Context, executionID, targetID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM call_attempts WHERE execution_id = $1 AND target_id = $2)`,
		executionID, targetID).Scan(&exists)
	return exists, err
}

/* ---- integrations / webhooks / sync ---- */

// CreateIntegration persists a new CRM connection record.
func (s *Postgres) CreateIntegration(ctx context.Context, in *models.Integration) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO integrations (id, tenant_id, provider_id, external_account_id, status, access_token, refresh_token, token_expiry, last_ack_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		in.ID, in.TenantID, in.ProviderID, in.ExternalAccountID, in.Status, in.AccessToken, in.RefreshToken,
		in.TokenExpiry, in.LastAckAt, in.CreatedAt, in.UpdatedAt)
	return err
}

const integrationColumns = `id, tenant_id, provider_id, external_account_id, status, access_token, refresh_token, token_expiry, last_ack_at, created_at, updated_at`

func scanIntegration(row pgx.Row) (*models.Integration, error) {
	var in models.Integration
	err := row.Scan(&in.ID, &in.TenantID, &in.ProviderID, &in.ExternalAccountID, &in.Status, &in.AccessToken,
		&in.RefreshToken, &in.TokenExpiry, &in.LastAckAt, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &in, nil
}

// GetIntegration retrieves an integration by id.
func (s *Postgres) GetIntegration(ctx context.Context, id string) (*models.Integration, error) {
	return scanIntegration(s.db.QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE id = $1`, id))
}

// GetIntegrationByAccount routes an inbound webhook delivery to the
// integration owning the provider-side account.
func (s *Postgres) GetIntegrationByAccount(ctx context.Context, providerID, externalAccountID string) (*models.Integration, error) {
	return scanIntegration(s.db.QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE provider_id = $1 AND external_account_id = $2`,
		providerID, externalAccountID))
}

// ListIntegrationsByTenant returns a tenant's CRM connections.
func (s *Postgres) ListIntegrationsByTenant(ctx context.Context, tenantID string) ([]*models.Integration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ins []*models.Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		ins = append(ins, in)
	}
	return ins, rows.Err()
}

// UpdateIntegration writes an integration's mutable fields (tokens, status,
// sync watermark).
func (s *Postgres) UpdateIntegration(ctx context.Context, in *models.Integration) error {
	in.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx,
		`UPDATE integrations
		 SET status = $1, access_token = $2, refresh_token = $3, token_expiry = $4, last_ack_at = $5, updated_at = $6
		 WHERE id = $7`,
		in.Status, in.AccessToken, in.RefreshToken, in.TokenExpiry, in.LastAckAt, in.UpdatedAt, in.ID)
	return err
}

// InsertWebhookEvent atomically inserts the event keyed on
// (provider_id, external_id). The ON CONFLICT clause makes concurrent
// deliveries of the same external id resolve to a single row.
func (s *Postgres) InsertWebhookEvent(ctx context.Context, ev *models.WebhookEvent) (*models.WebhookEvent, bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO webhook_events (id, provider_id, external_id, event_type, payload, status, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (provider_id, external_id) DO NOTHING`,
		ev.ID, ev.ProviderID, ev.ExternalID, ev.EventType, ev.Payload, ev.Status, ev.ReceivedAt)
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 1 {
		return ev, true, nil
	}

	var existing models.WebhookEvent
	err = s.db.QueryRow(ctx,
		`SELECT id, provider_id, external_id, event_type, payload, status, received_at
		 FROM webhook_events WHERE provider_id = $1 AND external_id = $2`,
		ev.ProviderID, ev.ExternalID).
		Scan(&existing.ID, &existing.ProviderID, &existing.ExternalID, &existing.EventType,
			&existing.Payload, &existing.Status, &existing.ReceivedAt)
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

// UpdateWebhookEventStatus updates the processing status of an event.
func (s *Postgres) UpdateWebhookEventStatus(ctx context.Context, id string, status models.WebhookStatus) error {
	_, err := s.db.Exec(ctx, `UPDATE webhook_events SET status = $1 WHERE id = $2`, status, id)
	return err
}

// CreateSyncRecord persists a new sync attempt record.
func (s *Postgres) CreateSyncRecord(ctx context.Context, rec *models.SyncRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO sync_records (id, integration_id, entity_type, entity_id, direction, payload, attempts, status, next_attempt_at, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.IntegrationID, rec.EntityType, rec.EntityID, rec.Direction, rec.Payload,
		rec.Attempts, rec.Status, rec.NextAttemptAt, rec.LastError, rec.CreatedAt, rec.UpdatedAt)
	return err
}

// UpdateSyncRecord writes a sync record's retry state.
func (s *Postgres) UpdateSyncRecord(ctx context.Context, rec *models.SyncRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx,
		`UPDATE sync_records SET attempts = $1, status = $2, next_attempt_at = $3, last_error = $4, updated_at = $5 WHERE id = $6`,
		rec.Attempts, rec.Status, rec.NextAttemptAt, rec.LastError, rec.UpdatedAt, rec.ID)
	return err
}

// ListDueSyncRecords returns pending records whose next attempt time has
// passed, ordered oldest first.
func (s *Postgres) ListDueSyncRecords(ctx context.Context, now time.Time, limit int) ([]*models.SyncRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, integration_id, entity_type, entity_id, direction, payload, attempts, status, next_attempt_at, last_error, created_at, updated_at
		 FROM sync_records
		 WHERE status = $1 AND next_attempt_at <= $2
		 ORDER BY next_attempt_at LIMIT $3`,
		models.SyncStatusPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.SyncRecord
	for rows.Next() {
		var rec models.SyncRecord
		if err := rows.Scan(&rec.ID, &rec.IntegrationID, &rec.EntityType, &rec.EntityID, &rec.Direction,
			&rec.Payload, &rec.Attempts, &rec.Status, &rec.NextAttemptAt, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// GetContactByExternalID retrieves the local projection of a CRM contact.
func (s *Postgres) GetContactByExternalID(ctx context.Context, tenantID, externalID string) (*models.Contact, error) {
	var c models.Contact
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, external_id, email, phone, name, tags, remote_updated_at, updated_at
		 FROM contacts WHERE tenant_id = $1 AND external_id = $2`, tenantID, externalID).
		Scan(&c.ID, &c.TenantID, &c.ExternalID, &c.Email, &c.Phone, &c.Name, &c.Tags, &c.RemoteUpdatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &c, nil
}

// UpsertContact inserts or replaces the local contact projection.
func (s *Postgres) UpsertContact(ctx context.Context, c *models.Contact) error {
	c.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx,
		`INSERT INTO contacts (id, tenant_id, external_id, email, phone, name, tags, remote_updated_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (tenant_id, external_id) DO UPDATE
		 SET email = EXCLUDED.email, phone = EXCLUDED.phone, name = EXCLUDED.name,
		     tags = EXCLUDED.tags, remote_updated_at = EXCLUDED.remote_updated_at, updated_at = EXCLUDED.updated_at`,
		c.ID, c.TenantID, c.ExternalID, c.Email, c.Phone, c.Name, c.Tags, c.RemoteUpdatedAt, c.UpdatedAt)
	return err
}

/* ---- domain events ---- */

// CreateDomainEvent enqueues a domain event for dispatch.
func (s *Postgres) CreateDomainEvent(ctx context.Context, ev *models.DomainEvent) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO domain_events (id, type, tenant_id, entity_id, payload, status, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.Type, ev.TenantID, ev.EntityID, ev.Payload, ev.Status, ev.ReceivedAt)
	return err
}

// ListPendingDomainEvents returns undispatched events, oldest first.
func (s *Postgres) ListPendingDomainEvents(ctx context.Context, limit int) ([]*models.DomainEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, type, tenant_id, entity_id, payload, status, received_at
		 FROM domain_events WHERE status = $1 ORDER BY received_at LIMIT $2`,
		models.EventStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evs []*models.DomainEvent
	for rows.Next() {
		var ev models.DomainEvent
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.TenantID, &ev.EntityID, &ev.Payload, &ev.Status, &ev.ReceivedAt); err != nil {
			return nil, err
		}
		evs = append(evs, &ev)
	}
	return evs, rows.Err()
}

// UpdateDomainEventStatus marks an event dispatched or failed.
func (s *Postgres) UpdateDomainEventStatus(ctx context.Context, id string, status models.EventStatus) error {
	_, err := s.db.Exec(ctx, `UPDATE domain_events SET status = $1 WHERE id = $2`, status, id)
	return err
}

/* ---- tenants ---- */

// GetTenantByDomain retrieves a tenant by email domain.
func (s *Postgres) GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRow(ctx,
		`SELECT id, name, domain, created_at, updated_at FROM tenants WHERE domain = $1`, domain).
		Scan(&t.ID, &t.Name, &t.Domain, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &t, nil
}

// CreateTenant persists a new tenant.
func (s *Postgres) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tenants (id, name, domain, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		tenant.ID, tenant.Name, tenant.Domain, tenant.CreatedAt, tenant.UpdatedAt)
	return err
}
