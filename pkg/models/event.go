package models

import (
	"time"
)

// EventStatus is the dispatch status of a queued domain event.
type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusDispatched EventStatus = "dispatched"
	EventStatusFailed     EventStatus = "failed"
)

// DomainEvent is an inbound business event routed by the dispatcher.
// Events are persisted before consumption so delivery is at-least-once;
// downstream handlers are idempotent.
type DomainEvent struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	TenantID   string                 `json:"tenant_id"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Status     EventStatus            `json:"status"`
	ReceivedAt time.Time              `json:"received_at"`
}
