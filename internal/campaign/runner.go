package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clientdesk/orchestrator/pkg/models"
)

// runLoop is the sequential execution loop for one CampaignExecution.
// Control commands are observed between iterations (cooperative
// preemption); an in-flight dial is never interrupted.
func (s *Service) runLoop(ctx context.Context, campaign *models.Campaign, executionID string) {
	consecutiveFailures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		exec, err := s.store.GetCampaignExecution(ctx, executionID)
		if err != nil {
			s.logger.Error("runner lost its execution", "execution", executionID, "error", err)
			return
		}

		switch exec.Status {
		case models.CampaignStatusRunning:
			// fall through to dispatch
		case models.CampaignStatusPaused, models.CampaignStatusPending:
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.PollInterval):
			}
			continue
		case models.CampaignStatusStopping:
			// Nothing is in flight at this point in the loop, so the
			// drain is already done.
			s.finish(ctx, exec, models.CampaignStatusStopped, nil)
			return
		default:
			return
		}

		target, err := s.store.GetCallTarget(ctx, exec.CampaignID, exec.Cursor)
		if errors.Is(err, models.ErrNotFound) {
			s.finish(ctx, exec, models.CampaignStatusCompleted, nil)
			return
		}
		if err != nil {
			s.logger.Error("load call target", "execution", executionID, "cursor", exec.Cursor, "error", err)
			return
		}

		// A target already dialed in this execution is skipped, never
		// re-attempted; the cursor simply moves past it.
		attempted, err := s.store.HasCallAttempt(ctx, exec.ID, target.ID)
		if err != nil {
			s.logger.Error("check call attempt", "execution", executionID, "target", target.ID, "error", err)
			return
		}
		if attempted {
			s.advance(ctx, exec, func(e *models.CampaignExecution) {
				e.Cursor++
			})
			continue
		}

		result, err := s.dialer.Dial(ctx, campaign.AgentID, target)
		if err != nil {
			// Collaborator-level failure: the target was not reached,
			// keep the cursor so the same target is retried, and
			// escalate the whole execution after repeated outages.
			consecutiveFailures++
			s.logger.Warn("dial failed", "execution", executionID, "target", target.ID,
				"consecutive", consecutiveFailures, "error", err)
			if consecutiveFailures >= s.cfg.MaxConsecutiveFailures {
				s.finish(ctx, exec, models.CampaignStatusFailed,
					fmt.Errorf("%d consecutive dialer failures: %w", consecutiveFailures, err))
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.PollInterval):
			}
			continue
		}
		consecutiveFailures = 0

		attempt := &models.CallAttempt{
			ID:              uuid.New().String(),
			ExecutionID:     exec.ID,
			TargetID:        target.ID,
			Success:         result.Success,
			DurationSeconds: result.DurationSeconds,
			OutcomeCode:     result.OutcomeCode,
			AttemptedAt:     time.Now().UTC(),
		}
		if err := s.store.CreateCallAttempt(ctx, attempt); err != nil {
			s.logger.Error("record call attempt", "execution", executionID, "target", target.ID, "error", err)
			return
		}
		if s.metrics != nil {
			s.metrics.CallAttempt(ctx, result.Success)
		}

		s.advance(ctx, exec, func(e *models.CampaignExecution) {
			e.Attempted++
			if result.Success {
				e.Succeeded++
			} else {
				// A failed call attempt is contained: count it and
				// move on, the campaign keeps going.
				e.Failed++
			}
			e.Cursor++
		})
	}
}

// advance applies a counter/cursor mutation under CAS, re-reading and
// re-applying on conflict so a concurrent control command is preserved.
func (s *Service) advance(ctx context.Context, exec *models.CampaignExecution, mutate func(*models.CampaignExecution)) {
	for {
		updated := *exec
		mutate(&updated)
		err := s.store.UpdateCampaignExecutionCAS(ctx, &updated, exec.Version)
		if err == nil {
			return
		}
		if !errors.Is(err, models.ErrConflict) {
			s.logger.Error("advance execution", "execution", exec.ID, "error", err)
			return
		}
		fresh, err := s.store.GetCampaignExecution(ctx, exec.ID)
		if err != nil {
			s.logger.Error("reload execution", "execution", exec.ID, "error", err)
			return
		}
		exec = fresh
	}
}

// finish moves the execution to a terminal status under CAS. A conflict is
// re-evaluated so a concurrent stop is not clobbered by completed.
func (s *Service) finish(ctx context.Context, exec *models.CampaignExecution, status models.CampaignStatus, cause error) {
	for {
		updated := *exec
		updated.Status = status
		if cause != nil {
			msg := cause.Error()
			updated.LastError = &msg
		}
		err := s.store.UpdateCampaignExecutionCAS(ctx, &updated, exec.Version)
		if err == nil {
			s.logger.Info("campaign execution finished", "execution", exec.ID, "status", status,
				"attempted", exec.Attempted, "succeeded", exec.Succeeded, "failed", exec.Failed)
			return
		}
		if !errors.Is(err, models.ErrConflict) {
			s.logger.Error("finish execution", "execution", exec.ID, "error", err)
			return
		}
		fresh, err := s.store.GetCampaignExecution(ctx, exec.ID)
		if err != nil {
			s.logger.Error("reload execution", "execution", exec.ID, "error", err)
			return
		}
		if fresh.Status.IsTerminal() {
			return
		}
		// A stop that raced queue exhaustion wins: stopping drains to
		// stopped, not completed.
		if fresh.Status == models.CampaignStatusStopping && status == models.CampaignStatusCompleted {
			status = models.CampaignStatusStopped
		}
		exec = fresh
	}
}
