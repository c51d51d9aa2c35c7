package repository

import (
	"context"
	"time"

	"clientdesk/orchestrator/pkg/models"
)

// DefinitionStore holds immutable workflow templates.
type DefinitionStore interface {
	// CreateWorkflowDefinition persists a new definition.
	CreateWorkflowDefinition(ctx context.Context, def *models.WorkflowDefinition) error
	// GetWorkflowDefinition retrieves a definition by id.
	GetWorkflowDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	// ListEnabledDefinitions returns the enabled definitions for a tenant
	// whose trigger listens to the given event type.
	ListEnabledDefinitions(ctx context.Context, tenantID, eventType string) ([]*models.WorkflowDefinition, error)
}

// ExecutionStore persists workflow executions.
type ExecutionStore interface {
	CreateWorkflowExecution(ctx context.Context, exec *models.WorkflowExecution) error
	GetWorkflowExecution(ctx context.Context, id string) (*models.WorkflowExecution, error)
	UpdateWorkflowExecution(ctx context.Context, exec *models.WorkflowExecution) error
	// ListWaitingExecutionsDue returns waiting executions whose resume
	// time has passed. Callers tolerate seeing the same execution twice.
	ListWaitingExecutionsDue(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowExecution, error)
	// ClaimWaitingExecution conditionally moves a waiting execution to
	// running. Overlapping wake-ups race on this claim; only the caller
	// that wins (claimed true) may advance the walk.
	ClaimWaitingExecution(ctx context.Context, id string) (claimed bool, err error)
}

// CampaignStore persists campaigns, their target queues, and executions.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, c *models.Campaign) error
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	CreateCallTarget(ctx context.Context, t *models.CallTarget) error
	// GetCallTarget returns the target at the given queue position, or
	// models.ErrNotFound when the queue is exhausted.
	GetCallTarget(ctx context.Context, campaignID string, position int) (*models.CallTarget, error)

	// CreateCampaignExecution inserts a new execution; it fails with
	// models.ErrConflict when a live execution already exists for the
	// campaign (enforced by a partial unique index, not read-then-write).
	CreateCampaignExecution(ctx context.Context, exec *models.CampaignExecution) error
	GetCampaignExecution(ctx context.Context, id string) (*models.CampaignExecution, error)
	// GetLiveCampaignExecution returns the single non-terminal execution
	// for a campaign, or models.ErrNotFound.
	GetLiveCampaignExecution(ctx context.Context, campaignID string) (*models.CampaignExecution, error)
	// UpdateCampaignExecutionCAS writes the execution only if the stored
	// version still equals expectedVersion, bumping Version on success;
	// a stale write fails with models.ErrConflict.
	UpdateCampaignExecutionCAS(ctx context.Context, exec *models.CampaignExecution, expectedVersion int) error
	CreateCallAttempt(ctx context.Context, a *models.CallAttempt) error
	// HasCallAttempt reports whether a target was already dialed within
	// an execution.
	HasCallAttempt(ctx context.Context, executionID, targetID string) (bool, error)
}

// CRMStore persists integrations, inbound webhook events, sync records and
// the local contact projection.
type CRMStore interface {
	CreateIntegration(ctx context.Context, in *models.Integration) error
	GetIntegration(ctx context.Context, id string) (*models.Integration, error)
	// GetIntegrationByAccount routes an inbound webhook delivery to the
	// integration owning the provider-side account.
	GetIntegrationByAccount(ctx context.Context, providerID, externalAccountID string) (*models.Integration, error)
	// ListIntegrationsByTenant returns a tenant's CRM connections.
	ListIntegrationsByTenant(ctx context.Context, tenantID string) ([]*models.Integration, error)
	UpdateIntegration(ctx context.Context, in *models.Integration) error

	// InsertWebhookEvent atomically inserts the event keyed on
	// (provider_id, external_id). When the key already exists the stored
	// row is returned and created is false.
	InsertWebhookEvent(ctx context.Context, ev *models.WebhookEvent) (existing *models.WebhookEvent, created bool, err error)
	UpdateWebhookEventStatus(ctx context.Context, id string, status models.WebhookStatus) error

	CreateSyncRecord(ctx context.Context, rec *models.SyncRecord) error
	UpdateSyncRecord(ctx context.Context, rec *models.SyncRecord) error
	// ListDueSyncRecords returns pending records whose next attempt time
	// has passed, ordered oldest first.
	ListDueSyncRecords(ctx context.Context, now time.Time, limit int) ([]*models.SyncRecord, error)

	GetContactByExternalID(ctx context.Context, tenantID, externalID string) (*models.Contact, error)
	UpsertContact(ctx context.Context, c *models.Contact) error
}

// EventStore is the durable domain-event queue consumed by the dispatcher.
type EventStore interface {
	CreateDomainEvent(ctx context.Context, ev *models.DomainEvent) error
	ListPendingDomainEvents(ctx context.Context, limit int) ([]*models.DomainEvent, error)
	UpdateDomainEventStatus(ctx context.Context, id string, status models.EventStatus) error
}

// TenantStore resolves and provisions tenants.
type TenantStore interface {
	GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error)
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
}

// Repository is the full persistence surface backed by Postgres.
type Repository interface {
	DefinitionStore
	ExecutionStore
	CampaignStore
	CRMStore
	EventStore
	TenantStore
	// Ping verifies database connectivity.
	Ping(ctx context.Context) error
}
