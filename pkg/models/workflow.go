package models

import (
	"time"
)

// StepType identifies the variant of a workflow step.
type StepType string

const (
	StepTypeAction    StepType = "action"
	StepTypeCondition StepType = "condition"
	StepTypeDelay     StepType = "delay"
	StepTypeSyncToCRM StepType = "sync_to_crm"
	StepTypeNotify    StepType = "notify"
)

// Edge outcome labels. A step selects exactly one outgoing edge by the
// outcome of its execution; "default" matches when nothing else does.
const (
	OutcomeNext    = "next"
	OutcomeTrue    = "true"
	OutcomeFalse   = "false"
	OutcomeDefault = "default"
)

// ExecutionStatus is the lifecycle status of a WorkflowExecution.
type ExecutionStatus string

const (
	ExecutionStatusQueued    ExecutionStatus = "queued"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}

// Trigger is the predicate deciding whether a domain event instantiates a
// WorkflowDefinition.
type Trigger struct {
	EventType      string            `json:"event_type"`
	RequiredFields []string          `json:"required_fields,omitempty"`
	Filters        map[string]string `json:"filters,omitempty"` // payload field -> required value
}

// Step is one node in a workflow's execution graph. Config carries the
// variant-specific settings; Next maps an outcome label to the id of the
// following step (at most one edge per outcome, no implicit fallthrough).
type Step struct {
	ID     string                 `json:"id"`
	Type   StepType               `json:"type"`
	Config map[string]interface{} `json:"config,omitempty"`
	Next   map[string]string      `json:"next,omitempty"`
}

// WorkflowDefinition is an immutable workflow template. Created by
// configuration, never mutated at runtime; executions reference it by id.
type WorkflowDefinition struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	Trigger   Trigger   `json:"trigger"`
	EntryStep string    `json:"entry_step"`
	Steps     []Step    `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// StepByID returns the step with the given id, or nil if absent.
func (d *WorkflowDefinition) StepByID(id string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// WorkflowExecution is one instance of a definition fired by a trigger.
// It is owned exclusively by the engine; callers read it but never write it.
type WorkflowExecution struct {
	ID            string                 `json:"id"`
	DefinitionID  string                 `json:"definition_id"`
	TenantID      string                 `json:"tenant_id"`
	Status        ExecutionStatus        `json:"status"`
	CurrentStepID string                 `json:"current_step_id,omitempty"`
	Bindings      map[string]interface{} `json:"bindings,omitempty"`
	ResumeAt      *time.Time             `json:"resume_at,omitempty"`
	LastError     *string                `json:"last_error,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}
