package models

import (
	"time"
)

// IntegrationStatus is the health of a tenant's CRM connection.
type IntegrationStatus string

const (
	IntegrationStatusConnected    IntegrationStatus = "connected"
	IntegrationStatusError        IntegrationStatus = "error"
	IntegrationStatusDisconnected IntegrationStatus = "disconnected"
)

// Integration is a per-tenant CRM connection record. LastAckAt is the
// watermark used for last-write-wins conflict resolution: inbound provider
// updates older than it are discarded.
type Integration struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	// ProviderID names the CRM provider; ExternalAccountID is the
	// provider-side account the connection belongs to, carried in
	// webhook payloads to route deliveries to the right tenant.
	ProviderID        string            `json:"provider_id"`
	ExternalAccountID string            `json:"external_account_id"`
	Status            IntegrationStatus `json:"status"`
	AccessToken       string            `json:"-"`
	RefreshToken      string            `json:"-"`
	TokenExpiry       time.Time         `json:"-"`
	LastAckAt         *time.Time        `json:"last_ack_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// WebhookStatus is the processing status of an inbound WebhookEvent.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusDuplicate WebhookStatus = "duplicate"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// WebhookEvent is one inbound provider delivery. (ProviderID, ExternalID)
// is unique; re-delivery of the same external id is short-circuited.
type WebhookEvent struct {
	ID         string        `json:"id"`
	ProviderID string        `json:"provider_id"`
	ExternalID string        `json:"external_id"`
	EventType  string        `json:"event_type"`
	Payload    []byte        `json:"payload,omitempty"`
	Status     WebhookStatus `json:"status"`
	ReceivedAt time.Time     `json:"received_at"`
}

// SyncDirection is the direction of a sync attempt.
type SyncDirection string

const (
	SyncDirectionOutbound SyncDirection = "outbound"
	SyncDirectionInbound  SyncDirection = "inbound"
)

// SyncStatus is the lifecycle status of a SyncRecord.
type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusSuccess   SyncStatus = "success"
	SyncStatusFailed    SyncStatus = "failed"
	SyncStatusAbandoned SyncStatus = "abandoned"
)

// SyncRecord tracks one entity's outbound (or acknowledged inbound) sync,
// including persisted retry state so scheduling survives restarts.
type SyncRecord struct {
	ID            string        `json:"id"`
	IntegrationID string        `json:"integration_id"`
	EntityType    string        `json:"entity_type"`
	EntityID      string        `json:"entity_id"`
	Direction     SyncDirection `json:"direction"`
	Payload       []byte        `json:"payload,omitempty"`
	Attempts      int           `json:"attempts"`
	Status        SyncStatus    `json:"status"`
	NextAttemptAt *time.Time    `json:"next_attempt_at,omitempty"`
	LastError     *string       `json:"last_error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Contact is the local projection of a CRM contact, kept in sync with the
// remote system. RemoteUpdatedAt mirrors the provider's modification
// timestamp for conflict resolution.
type Contact struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	ExternalID      string     `json:"external_id"`
	Email           string     `json:"email,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Name            string     `json:"name,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	RemoteUpdatedAt *time.Time `json:"remote_updated_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
