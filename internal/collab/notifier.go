// Package collab holds the HTTP clients for the engine's external
// collaborators: the notification service and the telephony provider, plus
// the repository-backed action executor.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"clientdesk/orchestrator/pkg/models"
)

// HTTPNotifier delivers workflow notifications to the notification
// service over HTTP.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

// NewHTTPNotifier creates a new HTTPNotifier.
func NewHTTPNotifier(url string) *HTTPNotifier {
	return &HTTPNotifier{url: url, client: &http.Client{Timeout: 15 * time.Second}}
}

// Notify posts one notification. Rate-limited or failing responses surface
// as transient errors so the engine's step retry applies.
func (n *HTTPNotifier) Notify(ctx context.Context, tenantID, channel string, bindings map[string]interface{}) error {
	requestBody, err := json.Marshal(map[string]interface{}{
		"tenant_id": tenantID,
		"channel":   channel,
		"data":      bindings,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url+"/notifications", bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification call failed: %w", models.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("notification service returned %d: %w", resp.StatusCode, models.ErrTransient)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: status %d", resp.StatusCode)
	}
	return nil
}
