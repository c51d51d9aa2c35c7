package campaign

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"clientdesk/orchestrator/internal/logging"
	"clientdesk/orchestrator/pkg/models"
)

// fakeCampaignStore is an in-memory CampaignStore with real CAS semantics:
// version checks and the one-live-execution constraint behave like the
// Postgres implementation.
type fakeCampaignStore struct {
	mu        sync.Mutex
	campaigns map[string]*models.Campaign
	targets   map[string]map[int]*models.CallTarget
	execs     map[string]*models.CampaignExecution
	attempts  map[string]map[string]bool // execution id -> target id
}

func newFakeCampaignStore() *fakeCampaignStore {
	return &fakeCampaignStore{
		campaigns: make(map[string]*models.Campaign),
		targets:   make(map[string]map[int]*models.CallTarget),
		execs:     make(map[string]*models.CampaignExecution),
		attempts:  make(map[string]map[string]bool),
	}
}

func (s *fakeCampaignStore) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c
	return nil
}

func (s *fakeCampaignStore) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return c, nil
}

func (s *fakeCampaignStore) CreateCallTarget(ctx context.Context, t *models.CallTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.targets[t.CampaignID] == nil {
		s.targets[t.CampaignID] = make(map[int]*models.CallTarget)
	}
	s.targets[t.CampaignID][t.Position] = t
	return nil
}

func (s *fakeCampaignStore) GetCallTarget(ctx context.Context, campaignID string, position int) (*models.CallTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[campaignID][position]
	if !ok {
		return nil, models.ErrNotFound
	}
	return t, nil
}

func (s *fakeCampaignStore) CreateCampaignExecution(ctx context.Context, exec *models.CampaignExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.execs {
		if existing.CampaignID == exec.CampaignID && existing.Status.IsLive() {
			return models.ErrConflict
		}
	}
	cp := *exec
	s.execs[exec.ID] = &cp
	return nil
}

func (s *fakeCampaignStore) GetCampaignExecution(ctx context.Context, id string) (*models.CampaignExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.execs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *exec
	return &cp, nil
}

func (s *fakeCampaignStore) GetLiveCampaignExecution(ctx context.Context, campaignID string) (*models.CampaignExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, exec := range s.execs {
		if exec.CampaignID == campaignID && exec.Status.IsLive() {
			cp := *exec
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *fakeCampaignStore) UpdateCampaignExecutionCAS(ctx context.Context, exec *models.CampaignExecution, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.execs[exec.ID]
	if !ok || stored.Version != expectedVersion {
		return models.ErrConflict
	}
	cp := *exec
	cp.Version = expectedVersion + 1
	s.execs[exec.ID] = &cp
	exec.Version = cp.Version
	return nil
}

func (s *fakeCampaignStore) CreateCallAttempt(ctx context.Context, a *models.CallAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts[a.ExecutionID] == nil {
		s.attempts[a.ExecutionID] = make(map[string]bool)
	}
	if s.attempts[a.ExecutionID][a.TargetID] {
		return models.ErrConflict
	}
	s.attempts[a.ExecutionID][a.TargetID] = true
	return nil
}

func (s *fakeCampaignStore) HasCallAttempt(ctx context.Context, executionID, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[executionID][targetID], nil
}

func (s *fakeCampaignStore) attemptCount(executionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts[executionID])
}

// scriptedDialer answers each dial through fn and records every target it
// was handed.
type scriptedDialer struct {
	mu     sync.Mutex
	dialed []string
	fn     func(n int, target *models.CallTarget) (*DialResult, error)
}

func (d *scriptedDialer) Dial(ctx context.Context, agentID string, target *models.CallTarget) (*DialResult, error) {
	d.mu.Lock()
	d.dialed = append(d.dialed, target.ID)
	n := len(d.dialed)
	d.mu.Unlock()
	return d.fn(n, target)
}

func (d *scriptedDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}

func seedCampaign(store *fakeCampaignStore, targets int) *models.Campaign {
	c := &models.Campaign{ID: "camp-1", TenantID: "tenant-1", Name: "outreach", AgentID: "agent-1"}
	store.campaigns[c.ID] = c
	store.targets[c.ID] = make(map[int]*models.CallTarget)
	for i := 0; i < targets; i++ {
		store.targets[c.ID][i] = &models.CallTarget{
			ID: fmt.Sprintf("target-%d", i), CampaignID: c.ID, Position: i,
			Phone: fmt.Sprintf("+1555000%04d", i),
		}
	}
	return c
}

func testService(store *fakeCampaignStore, dialer Dialer) (*Service, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := NewService(ctx, store, dialer, Config{
		MaxConsecutiveFailures: 3,
		PollInterval:           2 * time.Millisecond,
	}, logging.NewLogger(), nil)
	return svc, cancel
}

func waitForStatus(t *testing.T, store *fakeCampaignStore, executionID string, want models.CampaignStatus) *models.CampaignExecution {
	t.Helper()
	var got *models.CampaignExecution
	assert.Eventually(t, func() bool {
		exec, err := store.GetCampaignExecution(context.Background(), executionID)
		if err != nil {
			return false
		}
		got = exec
		return exec.Status == want
	}, 2*time.Second, time.Millisecond, "execution never reached %s", want)
	return got
}

func TestStart_RunsQueueToCompletion(t *testing.T) {
	store := newFakeCampaignStore()
	seedCampaign(store, 5)
	dialer := &scriptedDialer{fn: func(n int, target *models.CallTarget) (*DialResult, error) {
		// Third target is a failed call; failed attempts are counted
		// and the campaign moves on.
		return &DialResult{Success: n != 3, DurationSeconds: 10, OutcomeCode: "answered"}, nil
	}}

	svc, cancel := testService(store, dialer)
	defer cancel()

	exec, err := svc.Start(context.Background(), "camp-1")
	assert.NoError(t, err)
	assert.Equal(t, models.CampaignStatusRunning, exec.Status)

	final := waitForStatus(t, store, exec.ID, models.CampaignStatusCompleted)
	cancel()
	svc.Wait()

	assert.Equal(t, 5, final.Attempted)
	assert.Equal(t, 4, final.Succeeded)
	assert.Equal(t, 1, final.Failed)
	assert.Equal(t, 5, final.Cursor)
	assert.Equal(t, 5, store.attemptCount(exec.ID), "one recorded attempt per target")
}

func TestStart_UnknownCampaign(t *testing.T) {
	store := newFakeCampaignStore()
	svc, cancel := testService(store, &scriptedDialer{fn: func(int, *models.CallTarget) (*DialResult, error) {
		return &DialResult{Success: true}, nil
	}})
	defer cancel()

	_, err := svc.Start(context.Background(), "no-such-campaign")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPauseAndResume_NoTargetDialedTwice(t *testing.T) {
	store := newFakeCampaignStore()
	seedCampaign(store, 5)

	svc, cancel := testService(store, nil)
	defer cancel()

	paused := make(chan struct{})
	var once sync.Once
	dialer := &scriptedDialer{}
	dialer.fn = func(n int, target *models.CallTarget) (*DialResult, error) {
		if n == 2 {
			// Pause mid-run; the runner's CAS write after this dial
			// conflicts with the command and must preserve it.
			once.Do(func() {
				assert.NoError(t, svc.Control(context.Background(), "camp-1", models.ControlPause))
				close(paused)
			})
		}
		return &DialResult{Success: true}, nil
	}
	svc.dialer = dialer

	exec, err := svc.Start(context.Background(), "camp-1")
	assert.NoError(t, err)
	<-paused

	assert.Eventually(t, func() bool {
		snapshot, err := store.GetCampaignExecution(context.Background(), exec.ID)
		return err == nil && snapshot.Status == models.CampaignStatusPaused && snapshot.Attempted == 2
	}, 2*time.Second, time.Millisecond, "runner never settled in paused with both attempts counted")
	assert.Equal(t, 2, dialer.count(), "paused runner places no further calls")

	assert.NoError(t, svc.Control(context.Background(), "camp-1", models.ControlResume))
	final := waitForStatus(t, store, exec.ID, models.CampaignStatusCompleted)
	cancel()
	svc.Wait()

	assert.Equal(t, 5, final.Attempted)
	assert.Equal(t, 5, dialer.count(), "every target dialed exactly once across pause/resume")
}

func TestControl_IdempotentCommands(t *testing.T) {
	store := newFakeCampaignStore()
	seedCampaign(store, 0)
	now := time.Now().UTC()
	store.execs["exec-1"] = &models.CampaignExecution{
		ID: "exec-1", CampaignID: "camp-1",
		Status: models.CampaignStatusPaused, Version: 4, StartedAt: now, UpdatedAt: now,
	}

	svc, cancel := testService(store, &scriptedDialer{fn: func(int, *models.CallTarget) (*DialResult, error) {
		return &DialResult{Success: true}, nil
	}})
	defer cancel()

	// Pausing an already-paused execution changes nothing, not even the
	// version.
	assert.NoError(t, svc.Control(context.Background(), "camp-1", models.ControlPause))
	exec, err := store.GetCampaignExecution(context.Background(), "exec-1")
	assert.NoError(t, err)
	assert.Equal(t, models.CampaignStatusPaused, exec.Status)
	assert.Equal(t, 4, exec.Version)
}

func TestControl_InvalidAction(t *testing.T) {
	store := newFakeCampaignStore()
	seedCampaign(store, 0)
	svc, cancel := testService(store, &scriptedDialer{fn: func(int, *models.CallTarget) (*DialResult, error) {
		return &DialResult{Success: true}, nil
	}})
	defer cancel()

	err := svc.Control(context.Background(), "camp-1", "restart")
	assert.ErrorIs(t, err, models.ErrInvalidAction)
}

func TestControl_NoLiveExecutionIsNoOp(t *testing.T) {
	store := newFakeCampaignStore()
	seedCampaign(store, 0)
	svc, cancel := testService(store, &scriptedDialer{fn: func(int, *models.CallTarget) (*DialResult, error) {
		return &DialResult{Success: true}, nil
	}})
	defer cancel()

	assert.NoError(t, svc.Control(context.Background(), "camp-1", models.ControlStop))
}

func TestControl_ResumeAfterRestartReattachesRunner(t *testing.T) {
	store := newFakeCampaignStore()
	seedCampaign(store, 3)
	now := time.Now().UTC()
	store.execs["exec-1"] = &models.CampaignExecution{
		ID: "exec-1", CampaignID: "camp-1",
		Status: models.CampaignStatusPaused, Version: 2, StartedAt: now, UpdatedAt: now,
	}

	// A fresh service has no loop attached to the seeded execution, the
	// situation after a process restart. Resume alone must get calls
	// flowing again.
	dialer := &scriptedDialer{fn: func(int, *models.CallTarget) (*DialResult, error) {
		return &DialResult{Success: true}, nil
	}}
	svc, cancel := testService(store, dialer)
	defer cancel()

	assert.NoError(t, svc.Control(context.Background(), "camp-1", models.ControlResume))

	exec := waitForStatus(t, store, "exec-1", models.CampaignStatusCompleted)
	assert.Equal(t, 3, exec.Attempted)
	assert.Equal(t, 3, dialer.count())
}

func TestControl_StopAfterRestartDrainsToStopped(t *testing.T) {
	store := newFakeCampaignStore()
	seedCampaign(store, 3)
	now := time.Now().UTC()
	store.execs["exec-1"] = &models.CampaignExecution{
		ID: "exec-1", CampaignID: "camp-1",
		Status: models.CampaignStatusPaused, Version: 1, StartedAt: now, UpdatedAt: now,
	}

	svc, cancel := testService(store, &scriptedDialer{fn: func(int, *models.CallTarget) (*DialResult, error) {
		return &DialResult{Success: true}, nil
	}})
	defer cancel()

	// Stopping needs a loop to drain stopping to stopped even when no
	// runner survived the restart.
	assert.NoError(t, svc.Control(context.Background(), "camp-1", models.ControlStop))

	exec := waitForStatus(t, store, "exec-1", models.CampaignStatusStopped)
	assert.Equal(t, 0, exec.Attempted)
}

func TestStart_ConcurrentStartsShareOneExecution(t *testing.T) {
	store := newFakeCampaignStore()
	seedCampaign(store, 20)
	svc, cancel := testService(store, &scriptedDialer{fn: func(int, *models.CallTarget) (*DialResult, error) {
		time.Sleep(5 * time.Millisecond)
		return &DialResult{Success: true}, nil
	}})
	defer cancel()

	const starters = 8
	ids := make([]string, starters)
	var wg sync.WaitGroup
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			exec, err := svc.Start(context.Background(), "camp-1")
			assert.NoError(t, err)
			ids[i] = exec.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id, "concurrent starts must converge on one execution")
	}

	live := 0
	store.mu.Lock()
	for _, exec := range store.execs {
		if exec.Status.IsLive() {
			live++
		}
	}
	total := len(store.execs)
	store.mu.Unlock()
	assert.Equal(t, 1, total)
	assert.LessOrEqual(t, live, 1)
}

func TestRunner_ConsecutiveDialerFailuresEscalate(t *testing.T) {
	store := newFakeCampaignStore()
	seedCampaign(store, 5)
	dialer := &scriptedDialer{fn: func(int, *models.CallTarget) (*DialResult, error) {
		return nil, fmt.Errorf("telephony unreachable")
	}}

	svc, cancel := testService(store, dialer)
	defer cancel()

	exec, err := svc.Start(context.Background(), "camp-1")
	assert.NoError(t, err)

	final := waitForStatus(t, store, exec.ID, models.CampaignStatusFailed)
	cancel()
	svc.Wait()

	// Collaborator failures reach no target: the cursor stays put and no
	// attempt rows exist.
	assert.Equal(t, 0, final.Attempted)
	assert.Equal(t, 0, final.Cursor)
	assert.Equal(t, 0, store.attemptCount(exec.ID))
	if assert.NotNil(t, final.LastError) {
		assert.Contains(t, *final.LastError, "consecutive")
	}
}

func TestRunner_StopDrainsToStopped(t *testing.T) {
	store := newFakeCampaignStore()
	seedCampaign(store, 50)
	dialer := &scriptedDialer{fn: func(int, *models.CallTarget) (*DialResult, error) {
		time.Sleep(5 * time.Millisecond)
		return &DialResult{Success: true}, nil
	}}

	svc, cancel := testService(store, dialer)
	defer cancel()

	exec, err := svc.Start(context.Background(), "camp-1")
	assert.NoError(t, err)
	assert.NoError(t, svc.Control(context.Background(), "camp-1", models.ControlStop))

	final := waitForStatus(t, store, exec.ID, models.CampaignStatusStopped)
	cancel()
	svc.Wait()

	assert.Less(t, final.Attempted, 50, "stop preempts the remaining queue")
	// A stale resume after the stop is absorbed, not applied.
	assert.NoError(t, svc.Control(context.Background(), "camp-1", models.ControlResume))
	after, err := store.GetCampaignExecution(context.Background(), exec.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.CampaignStatusStopped, after.Status)
}

func TestRunner_SkipsAlreadyAttemptedTargets(t *testing.T) {
	store := newFakeCampaignStore()
	seedCampaign(store, 3)
	dialer := &scriptedDialer{fn: func(int, *models.CallTarget) (*DialResult, error) {
		return &DialResult{Success: true}, nil
	}}

	// Simulate a crash-recovered execution: target-0 was already dialed
	// but the cursor write was lost.
	now := time.Now().UTC()
	store.execs["exec-1"] = &models.CampaignExecution{
		ID: "exec-1", CampaignID: "camp-1",
		Status: models.CampaignStatusPending, Cursor: 0, Version: 1,
		StartedAt: now, UpdatedAt: now,
	}
	store.attempts["exec-1"] = map[string]bool{"target-0": true}

	svc, cancel := testService(store, dialer)
	defer cancel()

	exec, err := svc.Start(context.Background(), "camp-1")
	assert.NoError(t, err)
	assert.Equal(t, "exec-1", exec.ID, "adopts the recovered execution")

	final := waitForStatus(t, store, exec.ID, models.CampaignStatusCompleted)
	cancel()
	svc.Wait()

	assert.Equal(t, 2, dialer.count(), "target-0 is skipped, not re-dialed")
	assert.Equal(t, 2, final.Attempted)
	assert.Equal(t, 3, final.Cursor)
}

func TestTransition(t *testing.T) {
	cases := []struct {
		from    models.CampaignStatus
		action  string
		to      models.CampaignStatus
		changed bool
	}{
		{models.CampaignStatusPending, models.ControlStart, models.CampaignStatusRunning, true},
		{models.CampaignStatusPaused, models.ControlResume, models.CampaignStatusRunning, true},
		{models.CampaignStatusRunning, models.ControlPause, models.CampaignStatusPaused, true},
		{models.CampaignStatusRunning, models.ControlStop, models.CampaignStatusStopping, true},
		{models.CampaignStatusPaused, models.ControlStop, models.CampaignStatusStopping, true},
		{models.CampaignStatusRunning, models.ControlStart, models.CampaignStatusRunning, false},
		{models.CampaignStatusPaused, models.ControlPause, models.CampaignStatusPaused, false},
		{models.CampaignStatusStopping, models.ControlPause, models.CampaignStatusStopping, false},
		{models.CampaignStatusStopping, models.ControlResume, models.CampaignStatusStopping, false},
		{models.CampaignStatusStopped, models.ControlStart, models.CampaignStatusStopped, false},
		{models.CampaignStatusCompleted, models.ControlStop, models.CampaignStatusCompleted, false},
	}
	for _, tc := range cases {
		got, changed := transition(tc.from, tc.action)
		assert.Equal(t, tc.to, got, "%s + %s", tc.from, tc.action)
		assert.Equal(t, tc.changed, changed, "%s + %s", tc.from, tc.action)
	}
}
