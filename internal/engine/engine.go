// Package engine executes workflow definitions against trigger payloads.
//
// A definition's step graph is walked one step at a time; each step variant
// owns its execution logic behind the applier interface and reports an
// outcome label that selects exactly one outgoing edge. Steps are not
// transactional as a unit: a side effect that succeeded before a later
// failure is never rolled back, so every side effect must be individually
// safe to retry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"clientdesk/orchestrator/internal/logging"
	"clientdesk/orchestrator/internal/repository"
	"clientdesk/orchestrator/pkg/models"
)

// Store is the persistence surface the engine needs.
type Store interface {
	repository.DefinitionStore
	repository.ExecutionStore
}

// Actor performs the side effect of an action step and returns values to
// merge into the execution's bindings.
type Actor interface {
	Act(ctx context.Context, tenantID, action string, config map[string]interface{}, bindings map[string]interface{}) (map[string]interface{}, error)
}

// Notifier delivers a notification step.
type Notifier interface {
	Notify(ctx context.Context, tenantID, channel string, bindings map[string]interface{}) error
}

// CRMSyncer pushes an entity referenced by a sync step out to the CRM.
type CRMSyncer interface {
	EnqueueSync(ctx context.Context, tenantID, entityType, entityID string, payload map[string]interface{}) error
}

// Config holds the step retry policy.
type Config struct {
	MaxStepRetries int
	RetryBase      time.Duration
	RetryMax       time.Duration
}

// Engine walks workflow step graphs and persists execution records.
type Engine struct {
	store    Store
	actor    Actor
	notifier Notifier
	syncer   CRMSyncer
	cfg      Config
	logger   *logging.Logger
}

// New creates a new Engine.
func New(store Store, actor Actor, notifier Notifier, syncer CRMSyncer, cfg Config, logger *logging.Logger) *Engine {
	if cfg.MaxStepRetries <= 0 {
		cfg.MaxStepRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 5 * time.Second
	}
	return &Engine{store: store, actor: actor, notifier: notifier, syncer: syncer, cfg: cfg, logger: logger}
}

// Execute instantiates the definition for a trigger payload and runs it
// until it reaches a terminal status or parks in waiting.
func (e *Engine) Execute(ctx context.Context, definitionID string, payload map[string]interface{}) (*models.WorkflowExecution, error) {
	def, err := e.store.GetWorkflowDefinition(ctx, definitionID)
	if err != nil {
		return nil, fmt.Errorf("load definition %s: %w", definitionID, err)
	}
	if !def.Enabled {
		return nil, fmt.Errorf("definition %s is disabled: %w", definitionID, models.ErrNotFound)
	}
	for _, field := range def.Trigger.RequiredFields {
		if _, ok := payload[field]; !ok {
			return nil, fmt.Errorf("trigger payload missing %q: %w", field, models.ErrInvalidPayload)
		}
	}

	bindings := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		bindings[k] = v
	}

	now := time.Now().UTC()
	exec := &models.WorkflowExecution{
		ID:            uuid.New().String(),
		DefinitionID:  def.ID,
		TenantID:      def.TenantID,
		Status:        models.ExecutionStatusQueued,
		CurrentStepID: def.EntryStep,
		Bindings:      bindings,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreateWorkflowExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	return e.run(ctx, def, exec)
}

// Resume re-enters a waiting execution after its delay elapsed. Wake-ups
// are at-least-once: re-entry for an execution that already advanced past
// the delay, or already terminated, is a no-op.
func (e *Engine) Resume(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	exec, err := e.store.GetWorkflowExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load execution %s: %w", executionID, err)
	}
	if exec.Status != models.ExecutionStatusWaiting {
		return exec, nil
	}
	if exec.ResumeAt != nil && time.Now().Before(*exec.ResumeAt) {
		return exec, nil
	}

	// Wake-ups can overlap; the conditional waiting-to-running write
	// decides which caller advances the walk. The loser treats the
	// execution as already resumed.
	claimed, err := e.store.ClaimWaitingExecution(ctx, exec.ID)
	if err != nil {
		return nil, fmt.Errorf("claim execution %s: %w", executionID, err)
	}
	if !claimed {
		return e.store.GetWorkflowExecution(ctx, executionID)
	}
	exec.Status = models.ExecutionStatusRunning

	def, err := e.store.GetWorkflowDefinition(ctx, exec.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("load definition %s: %w", exec.DefinitionID, err)
	}

	// The delay step itself is done; advance over its edge before
	// continuing the walk.
	step := def.StepByID(exec.CurrentStepID)
	if step == nil {
		return e.fail(ctx, exec, fmt.Errorf("step %s not in definition", exec.CurrentStepID))
	}
	next, ok := nextStep(step, models.OutcomeNext)
	if !ok {
		return e.complete(ctx, exec)
	}
	exec.CurrentStepID = next
	exec.ResumeAt = nil

	return e.run(ctx, def, exec)
}

// run walks the graph from exec.CurrentStepID until a terminal state or a
// delay parks the execution.
func (e *Engine) run(ctx context.Context, def *models.WorkflowDefinition, exec *models.WorkflowExecution) (*models.WorkflowExecution, error) {
	if exec.Status.IsTerminal() {
		return exec, nil
	}

	exec.Status = models.ExecutionStatusRunning
	if err := e.store.UpdateWorkflowExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("update execution: %w", err)
	}

	// An acyclic graph terminates within len(Steps) transitions; the
	// bound guards against definitions with cycles.
	for transitions := 0; transitions <= len(def.Steps); transitions++ {
		step := def.StepByID(exec.CurrentStepID)
		if step == nil {
			return e.fail(ctx, exec, fmt.Errorf("step %s not in definition", exec.CurrentStepID))
		}

		outcome, err := e.applyStep(ctx, exec, step)
		if err != nil {
			return e.fail(ctx, exec, err)
		}

		if step.Type == models.StepTypeDelay {
			// applyStep set ResumeAt; park until the scheduler
			// re-enters us.
			exec.Status = models.ExecutionStatusWaiting
			if err := e.store.UpdateWorkflowExecution(ctx, exec); err != nil {
				return nil, fmt.Errorf("park execution: %w", err)
			}
			return exec, nil
		}

		next, ok := nextStep(step, outcome)
		if !ok {
			if step.Type == models.StepTypeCondition {
				return e.fail(ctx, exec, fmt.Errorf("condition %s outcome %q: %w", step.ID, outcome, models.ErrNoMatchingBranch))
			}
			return e.complete(ctx, exec)
		}
		exec.CurrentStepID = next
		if err := e.store.UpdateWorkflowExecution(ctx, exec); err != nil {
			return nil, fmt.Errorf("advance execution: %w", err)
		}
	}

	return e.fail(ctx, exec, fmt.Errorf("step transition bound exceeded, definition %s has a cycle", def.ID))
}

// applyStep dispatches on the step variant and returns the outcome label.
// Side-effecting variants are retried with bounded exponential backoff.
func (e *Engine) applyStep(ctx context.Context, exec *models.WorkflowExecution, step *models.Step) (string, error) {
	switch step.Type {
	case models.StepTypeAction:
		return e.withRetry(ctx, step, func() error {
			action, _ := step.Config["action"].(string)
			result, err := e.actor.Act(ctx, exec.TenantID, action, step.Config, exec.Bindings)
			if err != nil {
				return err
			}
			for k, v := range result {
				exec.Bindings[k] = v
			}
			return nil
		})

	case models.StepTypeNotify:
		return e.withRetry(ctx, step, func() error {
			channel, _ := step.Config["channel"].(string)
			return e.notifier.Notify(ctx, exec.TenantID, channel, exec.Bindings)
		})

	case models.StepTypeSyncToCRM:
		return e.withRetry(ctx, step, func() error {
			entityType, _ := step.Config["entity_type"].(string)
			entityID := bindingString(exec.Bindings, "entity_id")
			if v, ok := step.Config["entity_id"].(string); ok && v != "" {
				entityID = v
			}
			return e.syncer.EnqueueSync(ctx, exec.TenantID, entityType, entityID, exec.Bindings)
		})

	case models.StepTypeCondition:
		return evalCondition(step.Config, exec.Bindings), nil

	case models.StepTypeDelay:
		d, err := delayDuration(step.Config)
		if err != nil {
			return "", err
		}
		resumeAt := time.Now().UTC().Add(d)
		exec.ResumeAt = &resumeAt
		return models.OutcomeNext, nil

	default:
		return "", fmt.Errorf("unknown step type %q", step.Type)
	}
}

// withRetry runs a side effect with the configured bounded exponential
// backoff. Context cancellation aborts the retry loop.
func (e *Engine) withRetry(ctx context.Context, step *models.Step, op func() error) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.cfg.RetryBase
	policy.MaxInterval = e.cfg.RetryMax

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if err != nil && attempts > e.cfg.MaxStepRetries {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return "", fmt.Errorf("step %s exhausted %d attempts: %w", step.ID, attempts, err)
	}
	if attempts > 1 && e.logger != nil {
		e.logger.Warn("step succeeded after retries", "step", step.ID, "attempts", attempts)
	}
	return models.OutcomeNext, nil
}

func (e *Engine) complete(ctx context.Context, exec *models.WorkflowExecution) (*models.WorkflowExecution, error) {
	exec.Status = models.ExecutionStatusCompleted
	exec.ResumeAt = nil
	if err := e.store.UpdateWorkflowExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("complete execution: %w", err)
	}
	return exec, nil
}

// fail marks the execution failed and records the last error. The failure
// is contained to this execution; the error is still returned so callers
// can observe it, except NoMatchingBranch which is a recorded terminal
// outcome rather than a caller error.
func (e *Engine) fail(ctx context.Context, exec *models.WorkflowExecution, cause error) (*models.WorkflowExecution, error) {
	exec.Status = models.ExecutionStatusFailed
	msg := cause.Error()
	exec.LastError = &msg
	exec.ResumeAt = nil
	if err := e.store.UpdateWorkflowExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}
	if e.logger != nil {
		e.logger.Error("workflow execution failed", "execution", exec.ID, "step", exec.CurrentStepID, "error", msg)
	}
	if errors.Is(cause, models.ErrNoMatchingBranch) {
		return exec, nil
	}
	return exec, cause
}

// nextStep resolves the outgoing edge for an outcome, falling back to the
// default edge. No implicit fallthrough: absent edges end the walk.
func nextStep(step *models.Step, outcome string) (string, bool) {
	if id, ok := step.Next[outcome]; ok {
		return id, true
	}
	if id, ok := step.Next[models.OutcomeDefault]; ok {
		return id, true
	}
	return "", false
}

func bindingString(bindings map[string]interface{}, key string) string {
	if v, ok := bindings[key].(string); ok {
		return v
	}
	return ""
}
