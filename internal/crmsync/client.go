package crmsync

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"clientdesk/orchestrator/pkg/models"
)

// ProviderClient is the outbound boundary to a CRM provider's API.
type ProviderClient interface {
	// PushEntity writes one entity to the provider. Responses are
	// untrusted and rate-limited: 429 and 5xx surface as transient
	// failures the caller must back off on.
	PushEntity(ctx context.Context, baseURL, token, entityType, entityID string, payload []byte) error
}

// HTTPProviderClient is an HTTP implementation of the ProviderClient
// interface.
type HTTPProviderClient struct {
	client *http.Client
}

// NewHTTPProviderClient creates a new HTTPProviderClient.
func NewHTTPProviderClient() *HTTPProviderClient {
	return &HTTPProviderClient{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// PushEntity writes one entity to the provider.
func (c *HTTPProviderClient) PushEntity(ctx context.Context, baseURL, token, entityType, entityID string, payload []byte) error {
	url := fmt.Sprintf("%s/%s/%s", baseURL, entityType, entityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider call failed: %w", models.ErrTransient)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("provider returned %d: %w", resp.StatusCode, models.ErrTransient)
	default:
		return fmt.Errorf("provider rejected entity %s/%s: status %d", entityType, entityID, resp.StatusCode)
	}
}
