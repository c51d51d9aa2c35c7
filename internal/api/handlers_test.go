package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"clientdesk/orchestrator/internal/auth"
	"clientdesk/orchestrator/internal/campaign"
	"clientdesk/orchestrator/internal/config"
	"clientdesk/orchestrator/internal/crmsync"
	"clientdesk/orchestrator/internal/dispatch"
	"clientdesk/orchestrator/internal/logging"
	"clientdesk/orchestrator/internal/token"
	"clientdesk/orchestrator/pkg/models"
)

const testWebhookSecret = "test-secret"

// fakeRepo is an in-memory repository.Repository; just enough behavior
// for exercising the HTTP surface.
type fakeRepo struct {
	mu           sync.Mutex
	campaigns    map[string]*models.Campaign
	campaignExec map[string]*models.CampaignExecution
	workflowExec map[string]*models.WorkflowExecution
	integrations map[string]*models.Integration
	webhooks     map[string]*models.WebhookEvent
	events       []*models.DomainEvent
	contacts     map[string]*models.Contact
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		campaigns:    make(map[string]*models.Campaign),
		campaignExec: make(map[string]*models.CampaignExecution),
		workflowExec: make(map[string]*models.WorkflowExecution),
		integrations: make(map[string]*models.Integration),
		webhooks:     make(map[string]*models.WebhookEvent),
		contacts:     make(map[string]*models.Contact),
	}
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }

func (r *fakeRepo) CreateWorkflowDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	return nil
}
func (r *fakeRepo) GetWorkflowDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return nil, models.ErrNotFound
}
func (r *fakeRepo) ListEnabledDefinitions(ctx context.Context, tenantID, eventType string) ([]*models.WorkflowDefinition, error) {
	return nil, nil
}

func (r *fakeRepo) CreateWorkflowExecution(ctx context.Context, exec *models.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflowExec[exec.ID] = exec
	return nil
}
func (r *fakeRepo) GetWorkflowExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.workflowExec[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return exec, nil
}
func (r *fakeRepo) UpdateWorkflowExecution(ctx context.Context, exec *models.WorkflowExecution) error {
	return nil
}
func (r *fakeRepo) ListWaitingExecutionsDue(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowExecution, error) {
	return nil, nil
}
func (r *fakeRepo) ClaimWaitingExecution(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.workflowExec[id]
	if !ok || exec.Status != models.ExecutionStatusWaiting {
		return false, nil
	}
	exec.Status = models.ExecutionStatusRunning
	return true, nil
}

func (r *fakeRepo) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
	return nil
}
func (r *fakeRepo) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return c, nil
}
func (r *fakeRepo) CreateCallTarget(ctx context.Context, t *models.CallTarget) error { return nil }
func (r *fakeRepo) GetCallTarget(ctx context.Context, campaignID string, position int) (*models.CallTarget, error) {
	return nil, models.ErrNotFound
}
func (r *fakeRepo) CreateCampaignExecution(ctx context.Context, exec *models.CampaignExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.campaignExec {
		if existing.CampaignID == exec.CampaignID && existing.Status.IsLive() {
			return models.ErrConflict
		}
	}
	cp := *exec
	r.campaignExec[exec.ID] = &cp
	return nil
}
func (r *fakeRepo) GetCampaignExecution(ctx context.Context, id string) (*models.CampaignExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.campaignExec[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *exec
	return &cp, nil
}
func (r *fakeRepo) GetLiveCampaignExecution(ctx context.Context, campaignID string) (*models.CampaignExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, exec := range r.campaignExec {
		if exec.CampaignID == campaignID && exec.Status.IsLive() {
			cp := *exec
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}
func (r *fakeRepo) UpdateCampaignExecutionCAS(ctx context.Context, exec *models.CampaignExecution, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.campaignExec[exec.ID]
	if !ok || stored.Version != expectedVersion {
		return models.ErrConflict
	}
	cp := *exec
	cp.Version = expectedVersion + 1
	r.campaignExec[exec.ID] = &cp
	exec.Version = cp.Version
	return nil
}
func (r *fakeRepo) CreateCallAttempt(ctx context.Context, a *models.CallAttempt) error { return nil }
func (r *fakeRepo) HasCallAttempt(ctx context.Context, executionID, targetID string) (bool, error) {
	return false, nil
}

func (r *fakeRepo) CreateIntegration(ctx context.Context, in *models.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrations[in.ID] = in
	return nil
}
func (r *fakeRepo) GetIntegration(ctx context.Context, id string) (*models.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.integrations[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return in, nil
}
func (r *fakeRepo) GetIntegrationByAccount(ctx context.Context, providerID, externalAccountID string) (*models.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, in := range r.integrations {
		if in.ProviderID == providerID && in.ExternalAccountID == externalAccountID {
			return in, nil
		}
	}
	return nil, models.ErrNotFound
}
func (r *fakeRepo) ListIntegrationsByTenant(ctx context.Context, tenantID string) ([]*models.Integration, error) {
	return nil, nil
}
func (r *fakeRepo) UpdateIntegration(ctx context.Context, in *models.Integration) error { return nil }

func (r *fakeRepo) InsertWebhookEvent(ctx context.Context, ev *models.WebhookEvent) (*models.WebhookEvent, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ev.ProviderID + "/" + ev.ExternalID
	if existing, ok := r.webhooks[key]; ok {
		return existing, false, nil
	}
	r.webhooks[key] = ev
	return ev, true, nil
}
func (r *fakeRepo) UpdateWebhookEventStatus(ctx context.Context, id string, status models.WebhookStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.webhooks {
		if ev.ID == id {
			ev.Status = status
		}
	}
	return nil
}

func (r *fakeRepo) CreateSyncRecord(ctx context.Context, rec *models.SyncRecord) error { return nil }
func (r *fakeRepo) UpdateSyncRecord(ctx context.Context, rec *models.SyncRecord) error { return nil }
func (r *fakeRepo) ListDueSyncRecords(ctx context.Context, now time.Time, limit int) ([]*models.SyncRecord, error) {
	return nil, nil
}

func (r *fakeRepo) GetContactByExternalID(ctx context.Context, tenantID, externalID string) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[tenantID+"/"+externalID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return c, nil
}
func (r *fakeRepo) UpsertContact(ctx context.Context, c *models.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[c.TenantID+"/"+c.ExternalID] = c
	return nil
}

func (r *fakeRepo) CreateDomainEvent(ctx context.Context, ev *models.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}
func (r *fakeRepo) ListPendingDomainEvents(ctx context.Context, limit int) ([]*models.DomainEvent, error) {
	return nil, nil
}
func (r *fakeRepo) UpdateDomainEventStatus(ctx context.Context, id string, status models.EventStatus) error {
	return nil
}

func (r *fakeRepo) GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	return nil, models.ErrNotFound
}
func (r *fakeRepo) CreateTenant(ctx context.Context, tenant *models.Tenant) error { return nil }

type noDialer struct{}

func (noDialer) Dial(ctx context.Context, agentID string, target *models.CallTarget) (*campaign.DialResult, error) {
	return &campaign.DialResult{Success: true}, nil
}

// testTenantAuth injects a fixed tenant the way the OIDC middleware would.
func testTenantAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := context.WithValue(c.Request().Context(), auth.TenantIDKey, "tenant-1")
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func newTestServer(t *testing.T, repo *fakeRepo) (*echo.Echo, context.CancelFunc) {
	t.Helper()
	logger := logging.NewLogger()
	providers := map[string]config.ProviderConfig{
		"acmecrm": {WebhookSecret: testWebhookSecret},
	}

	ctx, cancel := context.WithCancel(context.Background())
	campaigns := campaign.NewService(ctx, repo, noDialer{}, campaign.Config{PollInterval: time.Millisecond}, logger, nil)
	tokens := token.NewStore(repo, providers, logger)
	ingestor := crmsync.NewService(repo, tokens, crmsync.NewHTTPProviderClient(), providers, crmsync.Config{}, logger, nil)
	dispatcher := dispatch.New(repo, nil, time.Second, logger)

	e := echo.New()
	NewServer(repo, campaigns, ingestor, dispatcher, logger).RegisterRoutes(e, testTenantAuth)
	return e, cancel
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHealth(t *testing.T) {
	e, cancel := newTestServer(t, newFakeRepo())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "orchestrator", status.Service)
}

func TestWebhookChallenge(t *testing.T) {
	e, cancel := newTestServer(t, newFakeRepo())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/webhooks/acmecrm?challenge=abc123", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", rec.Body.String(), "challenge echoed verbatim")
}

func TestIngestWebhook(t *testing.T) {
	repo := newFakeRepo()
	repo.integrations["integration-1"] = &models.Integration{
		ID: "integration-1", TenantID: "tenant-1",
		ProviderID: "acmecrm", ExternalAccountID: "acct-42",
		Status: models.IntegrationStatusConnected,
	}
	e, cancel := newTestServer(t, repo)
	defer cancel()

	body, _ := json.Marshal(map[string]interface{}{
		"event_id":   "evt-1",
		"event_type": "contact.created",
		"account_id": "acct-42",
		"updated_at": time.Now().UTC().Format(time.RFC3339),
		"data":       map[string]interface{}{"id": "crm-1", "email": "pat@acme.com"},
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/acmecrm", bytes.NewReader(body))
	req.Header.Set(signatureHeader, signBody(body))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result crmsync.IngestResult
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Accepted)
	assert.Equal(t, models.WebhookStatusProcessed, result.Status)
}

func TestIngestWebhook_BadSignature(t *testing.T) {
	e, cancel := newTestServer(t, newFakeRepo())
	defer cancel()

	body := []byte(`{"event_id":"evt-1","event_type":"contact.created"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/acmecrm", bytes.NewReader(body))
	req.Header.Set(signatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngestWebhook_OversizedBodyRejected(t *testing.T) {
	e, cancel := newTestServer(t, newFakeRepo())
	defer cancel()

	body := bytes.Repeat([]byte("a"), 2<<20)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/acmecrm", bytes.NewReader(body))
	req.Header.Set(signatureHeader, signBody(body))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestIngestWebhook_UnknownProvider(t *testing.T) {
	e, cancel := newTestServer(t, newFakeRepo())
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/unknowncrm", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishEvent(t *testing.T) {
	repo := newFakeRepo()
	e, cancel := newTestServer(t, repo)
	defer cancel()

	body := []byte(`{"type":"contact.created","entity_id":"c-1","payload":{"email":"pat@acme.com"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	if assert.Len(t, repo.events, 1) {
		assert.Equal(t, "tenant-1", repo.events[0].TenantID, "tenant comes from the auth context")
		assert.Equal(t, "contact.created", repo.events[0].Type)
	}
}

func TestPublishEvent_MissingType(t *testing.T) {
	e, cancel := newTestServer(t, newFakeRepo())
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader([]byte(`{"payload":{}}`)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartCampaign(t *testing.T) {
	repo := newFakeRepo()
	repo.campaigns["camp-1"] = &models.Campaign{ID: "camp-1", TenantID: "tenant-1", AgentID: "agent-1"}
	e, cancel := newTestServer(t, repo)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/camp-1/start", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var exec models.CampaignExecution
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	assert.Equal(t, "camp-1", exec.CampaignID)
	assert.Equal(t, models.CampaignStatusRunning, exec.Status)
}

func TestControlCampaign_NotFound(t *testing.T) {
	e, cancel := newTestServer(t, newFakeRepo())
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/missing/pause", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCampaignExecution(t *testing.T) {
	repo := newFakeRepo()
	repo.campaignExec["exec-1"] = &models.CampaignExecution{
		ID: "exec-1", CampaignID: "camp-1",
		Status: models.CampaignStatusPaused, Attempted: 3, Version: 2,
	}
	e, cancel := newTestServer(t, repo)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/camp-1/execution", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var exec models.CampaignExecution
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	assert.Equal(t, "exec-1", exec.ID)
	assert.Equal(t, 3, exec.Attempted)
}

func TestGetExecution_NotFound(t *testing.T) {
	e, cancel := newTestServer(t, newFakeRepo())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions/missing", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
