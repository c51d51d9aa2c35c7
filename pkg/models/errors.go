package models

import (
	"errors"
)

// Error taxonomy shared across the orchestration engine. Callers branch on
// these with errors.Is; the HTTP layer maps them to problem responses.
var (
	// ErrNotFound marks an unknown definition, campaign, execution or
	// integration. Never retried.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPayload marks a trigger payload missing required fields.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInvalidAction marks an unsupported control command.
	ErrInvalidAction = errors.New("invalid action")

	// ErrInvalidSignature marks a webhook delivery that failed
	// verification. The delivery is logged and dropped, never recorded.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrNoMatchingBranch marks a condition step with no edge for its
	// outcome and no default edge. Terminal for the execution.
	ErrNoMatchingBranch = errors.New("no matching branch")

	// ErrTransient marks a collaborator failure worth retrying with
	// backoff (timeouts, 429s, 5xx responses).
	ErrTransient = errors.New("transient collaborator failure")

	// ErrConflict marks an optimistic-concurrency or uniqueness clash:
	// a CAS write against a stale version, or a second live execution
	// for the same campaign.
	ErrConflict = errors.New("conflict")
)
