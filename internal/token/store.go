// Package token holds per-tenant CRM OAuth credentials and their refresh
// lifecycle. The sync service asks it for a valid bearer token before
// every outbound provider call.
package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"clientdesk/orchestrator/internal/config"
	"clientdesk/orchestrator/internal/logging"
	"clientdesk/orchestrator/internal/repository"
	"clientdesk/orchestrator/pkg/models"
)

// expirySkew refreshes tokens slightly before their stated expiry so an
// outbound call never races the deadline.
const expirySkew = 30 * time.Second

// Store resolves valid access tokens for integrations, refreshing and
// persisting rotated credentials as needed. Safe for concurrent use.
type Store struct {
	repo      repository.CRMStore
	providers map[string]config.ProviderConfig
	logger    *logging.Logger

	mu sync.Mutex
}

// NewStore creates a new token Store.
func NewStore(repo repository.CRMStore, providers map[string]config.ProviderConfig, logger *logging.Logger) *Store {
	return &Store{repo: repo, providers: providers, logger: logger}
}

// Token returns a valid access token for the integration, refreshing it
// through the provider's token endpoint when expired. A refresh failure
// marks the integration errored.
func (s *Store) Token(ctx context.Context, integrationID string) (string, error) {
	// Serialize refreshes so concurrent callers don't burn the same
	// single-use refresh token.
	s.mu.Lock()
	defer s.mu.Unlock()

	in, err := s.repo.GetIntegration(ctx, integrationID)
	if err != nil {
		return "", fmt.Errorf("load integration %s: %w", integrationID, err)
	}

	if in.AccessToken != "" && time.Now().Add(expirySkew).Before(in.TokenExpiry) {
		return in.AccessToken, nil
	}

	provider, ok := s.providers[in.ProviderID]
	if !ok {
		return "", fmt.Errorf("provider %s not configured: %w", in.ProviderID, models.ErrNotFound)
	}

	conf := &oauth2.Config{
		ClientID:     provider.ClientID,
		ClientSecret: provider.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: provider.TokenURL},
	}
	src := conf.TokenSource(ctx, &oauth2.Token{
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		Expiry:       in.TokenExpiry,
	})

	fresh, err := src.Token()
	if err != nil {
		in.Status = models.IntegrationStatusError
		if updateErr := s.repo.UpdateIntegration(ctx, in); updateErr != nil {
			s.logger.Error("mark integration errored", "integration", in.ID, "error", updateErr)
		}
		return "", fmt.Errorf("refresh token for integration %s: %w", in.ID, err)
	}

	in.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		in.RefreshToken = fresh.RefreshToken
	}
	in.TokenExpiry = fresh.Expiry
	in.Status = models.IntegrationStatusConnected
	if err := s.repo.UpdateIntegration(ctx, in); err != nil {
		return "", fmt.Errorf("persist rotated token: %w", err)
	}

	s.logger.Debug("refreshed integration token", "integration", in.ID, "expiry", fresh.Expiry)
	return in.AccessToken, nil
}
