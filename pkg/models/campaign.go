package models

import (
	"time"
)

// CampaignStatus is the lifecycle status of a CampaignExecution.
type CampaignStatus string

const (
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusStopping  CampaignStatus = "stopping"
	CampaignStatusStopped   CampaignStatus = "stopped"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// IsTerminal reports whether the execution can make no further progress.
func (s CampaignStatus) IsTerminal() bool {
	switch s {
	case CampaignStatusStopped, CampaignStatusCompleted, CampaignStatusFailed:
		return true
	}
	return false
}

// IsLive reports whether the execution still occupies the campaign's
// single-live-execution slot.
func (s CampaignStatus) IsLive() bool {
	return !s.IsTerminal()
}

// Control commands accepted by the campaign service.
const (
	ControlStart  = "start"
	ControlPause  = "pause"
	ControlResume = "resume"
	ControlStop   = "stop"
)

// Campaign is the durable configuration of an outbound calling batch:
// an ordered target list plus the agent driving the calls. Mutated only by
// administrative edits, never by the execution machinery.
type Campaign struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	AgentID   string    `json:"agent_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CallTarget is one entry in a campaign's queue, addressed by position.
type CallTarget struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	Position   int    `json:"position"`
	Phone      string `json:"phone"`
	ContactID  string `json:"contact_id,omitempty"`
}

// CampaignExecution is the live run of a Campaign. At most one
// non-terminal execution exists per campaign; status transitions are
// written with compare-and-set on Version.
type CampaignExecution struct {
	ID            string         `json:"id"`
	CampaignID    string         `json:"campaign_id"`
	Status        CampaignStatus `json:"status"`
	Cursor        int            `json:"cursor"` // position of the next unattempted target
	Attempted     int            `json:"attempted"`
	Succeeded     int            `json:"succeeded"`
	Failed        int            `json:"failed"`
	LastCommand   string         `json:"last_command,omitempty"`
	LastCommandAt *time.Time     `json:"last_command_at,omitempty"`
	LastError     *string        `json:"last_error,omitempty"`
	Version       int            `json:"version"`
	StartedAt     time.Time      `json:"started_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// CallAttempt is the recorded outcome of one dialed target.
type CallAttempt struct {
	ID              string    `json:"id"`
	ExecutionID     string    `json:"execution_id"`
	TargetID        string    `json:"target_id"`
	Success         bool      `json:"success"`
	DurationSeconds int       `json:"duration_seconds"`
	OutcomeCode     string    `json:"outcome_code,omitempty"`
	AttemptedAt     time.Time `json:"attempted_at"`
}
