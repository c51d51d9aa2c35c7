// Package campaign manages the lifecycle of long-running outbound call
// campaigns. Each live CampaignExecution is driven by an independent
// sequential runner loop; control commands arrive from other callers and
// are applied with compare-and-set status writes, so a stale pause can
// never undo a concurrent stop.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"clientdesk/orchestrator/internal/logging"
	"clientdesk/orchestrator/internal/metrics"
	"clientdesk/orchestrator/internal/repository"
	"clientdesk/orchestrator/pkg/models"
)

// DialResult is the telephony collaborator's answer for one call attempt.
type DialResult struct {
	Success         bool
	DurationSeconds int
	OutcomeCode     string
}

// Dialer places one call attempt per campaign-queue item.
type Dialer interface {
	Dial(ctx context.Context, agentID string, target *models.CallTarget) (*DialResult, error)
}

// Config holds the campaign execution policy.
type Config struct {
	// MaxConsecutiveFailures is the number of back-to-back collaborator
	// errors that escalate the whole execution to failed.
	MaxConsecutiveFailures int
	// PollInterval is how often a paused runner re-checks its status.
	PollInterval time.Duration
}

// Service exposes the idempotent campaign control operations and owns the
// runner loops of live executions.
type Service struct {
	store   repository.CampaignStore
	dialer  Dialer
	cfg     Config
	logger  *logging.Logger
	metrics *metrics.Metrics

	baseCtx context.Context

	mu      sync.Mutex
	runners map[string]struct{} // execution id -> running loop in this process
	wg      sync.WaitGroup
}

// NewService creates a new campaign Service. Runner loops inherit baseCtx;
// canceling it stops dispatching new call attempts.
func NewService(baseCtx context.Context, store repository.CampaignStore, dialer Dialer, cfg Config, logger *logging.Logger, m *metrics.Metrics) *Service {
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Service{
		store:   store,
		dialer:  dialer,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		baseCtx: baseCtx,
		runners: make(map[string]struct{}),
	}
}

// Wait blocks until all runner loops have exited.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Start creates a new execution for the campaign, or resumes the live one.
// At most one live execution per campaign is a hard invariant, enforced by
// the repository's unique insert rather than a read-then-write check.
func (s *Service) Start(ctx context.Context, campaignID string) (*models.CampaignExecution, error) {
	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign %s: %w", campaignID, err)
	}

	exec, err := s.store.GetLiveCampaignExecution(ctx, campaignID)
	switch {
	case err == nil:
		// A live execution exists: resume it rather than duplicating.
		exec, err = s.applyCommand(ctx, exec, models.ControlStart)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, models.ErrNotFound):
		now := time.Now().UTC()
		exec = &models.CampaignExecution{
			ID:            uuid.New().String(),
			CampaignID:    campaignID,
			Status:        models.CampaignStatusRunning,
			LastCommand:   models.ControlStart,
			LastCommandAt: &now,
			Version:       1,
			StartedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.store.CreateCampaignExecution(ctx, exec); err != nil {
			if errors.Is(err, models.ErrConflict) {
				// Lost a concurrent start; adopt the winner.
				exec, err = s.store.GetLiveCampaignExecution(ctx, campaignID)
				if err != nil {
					return nil, fmt.Errorf("load concurrent execution: %w", err)
				}
			} else {
				return nil, fmt.Errorf("create execution: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("load live execution: %w", err)
	}

	s.ensureRunner(campaign, exec.ID)
	return exec, nil
}

// Control applies pause, resume or stop to the campaign's live execution.
// Commands are idempotent: naming a state the execution already reached
// returns success without side effects.
func (s *Service) Control(ctx context.Context, campaignID, action string) error {
	switch action {
	case models.ControlPause, models.ControlResume, models.ControlStop:
	default:
		return fmt.Errorf("action %q: %w", action, models.ErrInvalidAction)
	}

	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign %s: %w", campaignID, err)
	}

	exec, err := s.store.GetLiveCampaignExecution(ctx, campaignID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// No live execution: the campaign is already stopped,
			// completed or failed. Every command is a no-op.
			return nil
		}
		return fmt.Errorf("load live execution: %w", err)
	}

	updated, err := s.applyCommand(ctx, exec, action)
	if err != nil {
		return err
	}
	// A restart leaves live execution rows with no loop driving them;
	// any command against a still-live execution re-attaches one.
	if updated.Status.IsLive() {
		s.ensureRunner(campaign, updated.ID)
	}
	return nil
}

// applyCommand transitions the execution along the state machine under CAS,
// retrying on version conflicts until the command is a no-op or applied.
func (s *Service) applyCommand(ctx context.Context, exec *models.CampaignExecution, action string) (*models.CampaignExecution, error) {
	for {
		target, changed := transition(exec.Status, action)
		if !changed {
			return exec, nil
		}

		now := time.Now().UTC()
		updated := *exec
		updated.Status = target
		updated.LastCommand = action
		updated.LastCommandAt = &now

		err := s.store.UpdateCampaignExecutionCAS(ctx, &updated, exec.Version)
		if err == nil {
			return &updated, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("apply %s: %w", action, err)
		}

		// Someone else moved the execution; re-read and re-evaluate.
		exec, err = s.store.GetCampaignExecution(ctx, exec.ID)
		if err != nil {
			return nil, fmt.Errorf("reload execution: %w", err)
		}
	}
}

// transition returns the target status for a control command, and whether
// the command changes anything at all. Commands against states they cannot
// act on are absorbed as no-ops; the state machine itself never moves
// backwards out of stopping or a terminal state.
func transition(current models.CampaignStatus, action string) (models.CampaignStatus, bool) {
	switch action {
	case models.ControlStart, models.ControlResume:
		if current == models.CampaignStatusPending || current == models.CampaignStatusPaused {
			return models.CampaignStatusRunning, true
		}
	case models.ControlPause:
		if current == models.CampaignStatusRunning {
			return models.CampaignStatusPaused, true
		}
	case models.ControlStop:
		if current == models.CampaignStatusRunning || current == models.CampaignStatusPaused || current == models.CampaignStatusPending {
			return models.CampaignStatusStopping, true
		}
	}
	return current, false
}

// ensureRunner starts the runner loop for an execution if this process is
// not already driving it.
func (s *Service) ensureRunner(campaign *models.Campaign, executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runners[executionID]; ok {
		return
	}
	s.runners[executionID] = struct{}{}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.runners, executionID)
			s.mu.Unlock()
		}()
		s.runLoop(s.baseCtx, campaign, executionID)
	}()
}
