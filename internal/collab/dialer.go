package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"clientdesk/orchestrator/internal/campaign"
	"clientdesk/orchestrator/pkg/models"
)

// HTTPDialer places call attempts through the voice-agent provider's API.
type HTTPDialer struct {
	url    string
	client *http.Client
}

// NewHTTPDialer creates a new HTTPDialer.
func NewHTTPDialer(url string) *HTTPDialer {
	// Call attempts run long; the timeout covers ringing and the agent
	// conversation, not just the HTTP round trip.
	return &HTTPDialer{url: url, client: &http.Client{Timeout: 10 * time.Minute}}
}

// Dial requests one call attempt and waits for its outcome.
func (d *HTTPDialer) Dial(ctx context.Context, agentID string, target *models.CallTarget) (*campaign.DialResult, error) {
	requestBody, err := json.Marshal(map[string]string{
		"agent_id":   agentID,
		"phone":      target.Phone,
		"contact_id": target.ContactID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url+"/calls", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telephony call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telephony provider returned status %d", resp.StatusCode)
	}

	var result struct {
		Success         bool   `json:"success"`
		DurationSeconds int    `json:"durationSeconds"`
		OutcomeCode     string `json:"outcomeCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	return &campaign.DialResult{
		Success:         result.Success,
		DurationSeconds: result.DurationSeconds,
		OutcomeCode:     result.OutcomeCode,
	}, nil
}
