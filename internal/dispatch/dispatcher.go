// Package dispatch receives domain events and resolves which workflow
// definitions they instantiate. Events are persisted before consumption
// (a durable queue, not fire-and-forget callbacks), so delivery is
// at-least-once and downstream handlers stay idempotent. The dispatcher
// also hosts the time-based scheduler that re-enters waiting executions.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clientdesk/orchestrator/internal/logging"
	"clientdesk/orchestrator/internal/repository"
	"clientdesk/orchestrator/pkg/models"
)

// Engine is the workflow engine surface the dispatcher drives.
type Engine interface {
	Execute(ctx context.Context, definitionID string, payload map[string]interface{}) (*models.WorkflowExecution, error)
	Resume(ctx context.Context, executionID string) (*models.WorkflowExecution, error)
}

// Store is the persistence surface the dispatcher needs.
type Store interface {
	repository.EventStore
	repository.DefinitionStore
	repository.ExecutionStore
}

// Dispatcher routes domain events to workflow executions.
type Dispatcher struct {
	store        Store
	engine       Engine
	pollInterval time.Duration
	logger       *logging.Logger
}

// New creates a new Dispatcher.
func New(store Store, engine Engine, pollInterval time.Duration, logger *logging.Logger) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Dispatcher{store: store, engine: engine, pollInterval: pollInterval, logger: logger}
}

// Publish enqueues a domain event for dispatch.
func (d *Dispatcher) Publish(ctx context.Context, eventType, tenantID, entityID string, payload map[string]interface{}) (*models.DomainEvent, error) {
	if eventType == "" || tenantID == "" {
		return nil, fmt.Errorf("event missing type or tenant: %w", models.ErrInvalidPayload)
	}
	ev := &models.DomainEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		TenantID:   tenantID,
		EntityID:   entityID,
		Payload:    payload,
		Status:     models.EventStatusPending,
		ReceivedAt: time.Now().UTC(),
	}
	if err := d.store.CreateDomainEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("enqueue event: %w", err)
	}
	return ev, nil
}

// Run consumes the event queue and wakes due executions until the context
// is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick drains pending events and resumes waiting executions once.
func (d *Dispatcher) Tick(ctx context.Context) {
	d.drainEvents(ctx)
	d.wakeWaiting(ctx)
}

func (d *Dispatcher) drainEvents(ctx context.Context) {
	events, err := d.store.ListPendingDomainEvents(ctx, 50)
	if err != nil {
		d.logger.Error("list pending events", "error", err)
		return
	}

	for _, ev := range events {
		if ctx.Err() != nil {
			return
		}
		if err := d.dispatch(ctx, ev); err != nil {
			d.logger.Error("dispatch event", "event", ev.ID, "type", ev.Type, "error", err)
			if statusErr := d.store.UpdateDomainEventStatus(ctx, ev.ID, models.EventStatusFailed); statusErr != nil {
				d.logger.Error("mark event failed", "event", ev.ID, "error", statusErr)
			}
			continue
		}
		if err := d.store.UpdateDomainEventStatus(ctx, ev.ID, models.EventStatusDispatched); err != nil {
			// Leave the event pending; the next tick redelivers it and
			// the engine's handlers tolerate the repeat.
			d.logger.Error("mark event dispatched", "event", ev.ID, "error", err)
		}
	}
}

// dispatch starts zero or more workflow executions for one event. A failed
// execution is contained to itself: it is recorded on the execution, and
// neither sibling executions nor the event queue are aborted by it.
func (d *Dispatcher) dispatch(ctx context.Context, ev *models.DomainEvent) error {
	defs, err := d.store.ListEnabledDefinitions(ctx, ev.TenantID, ev.Type)
	if err != nil {
		return fmt.Errorf("list definitions: %w", err)
	}

	payload := make(map[string]interface{}, len(ev.Payload)+2)
	for k, v := range ev.Payload {
		payload[k] = v
	}
	payload["event_type"] = ev.Type
	if ev.EntityID != "" {
		payload["entity_id"] = ev.EntityID
	}

	for _, def := range defs {
		if !matches(def.Trigger, payload) {
			continue
		}
		exec, err := d.engine.Execute(ctx, def.ID, payload)
		if err != nil {
			d.logger.Error("workflow execution errored", "definition", def.ID, "event", ev.ID, "error", err)
			continue
		}
		d.logger.Info("workflow started", "definition", def.ID, "execution", exec.ID, "event", ev.ID)
	}
	return nil
}

// wakeWaiting re-enters waiting executions whose delay has elapsed.
// Wake-ups are at-least-once; Resume tolerates repeats.
func (d *Dispatcher) wakeWaiting(ctx context.Context) {
	execs, err := d.store.ListWaitingExecutionsDue(ctx, time.Now().UTC(), 50)
	if err != nil {
		d.logger.Error("list due executions", "error", err)
		return
	}
	for _, exec := range execs {
		if ctx.Err() != nil {
			return
		}
		if _, err := d.engine.Resume(ctx, exec.ID); err != nil {
			d.logger.Error("resume execution", "execution", exec.ID, "error", err)
		}
	}
}

// matches evaluates a trigger predicate against the event payload.
func matches(trigger models.Trigger, payload map[string]interface{}) bool {
	for _, field := range trigger.RequiredFields {
		if _, ok := payload[field]; !ok {
			return false
		}
	}
	for field, want := range trigger.Filters {
		got, ok := payload[field]
		if !ok || fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}
