package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clientdesk/orchestrator/internal/repository"
	"clientdesk/orchestrator/pkg/models"
)

// ContactActor executes action steps that mutate the local contact
// projection. Every action is safe to re-run: workflow steps are retried
// individually and are never rolled back as a unit.
type ContactActor struct {
	repo repository.CRMStore
}

// NewContactActor creates a new ContactActor.
func NewContactActor(repo repository.CRMStore) *ContactActor {
	return &ContactActor{repo: repo}
}

// Act performs one named action and returns bindings to merge into the
// execution.
func (a *ContactActor) Act(ctx context.Context, tenantID, action string, config map[string]interface{}, bindings map[string]interface{}) (map[string]interface{}, error) {
	switch action {
	case "tag_contact":
		return a.tagContact(ctx, tenantID, config, bindings)
	case "noop":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

// tagContact adds a tag to the contact referenced by the bindings. Adding
// a tag that is already present is a no-op, which keeps the action
// idempotent under step retries.
func (a *ContactActor) tagContact(ctx context.Context, tenantID string, config map[string]interface{}, bindings map[string]interface{}) (map[string]interface{}, error) {
	tag, _ := config["tag"].(string)
	if tag == "" {
		return nil, fmt.Errorf("tag_contact requires a tag")
	}
	contactID, _ := bindings["contact_id"].(string)
	if contactID == "" {
		return nil, fmt.Errorf("tag_contact requires contact_id in bindings: %w", models.ErrInvalidPayload)
	}

	contact, err := a.repo.GetContactByExternalID(ctx, tenantID, contactID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			contact = &models.Contact{
				ID:         uuid.New().String(),
				TenantID:   tenantID,
				ExternalID: contactID,
				UpdatedAt:  time.Now().UTC(),
			}
		} else {
			return nil, fmt.Errorf("load contact %s: %w", contactID, err)
		}
	}

	for _, t := range contact.Tags {
		if t == tag {
			return map[string]interface{}{"tagged": tag}, nil
		}
	}
	contact.Tags = append(contact.Tags, tag)
	if err := a.repo.UpsertContact(ctx, contact); err != nil {
		return nil, fmt.Errorf("save contact %s: %w", contactID, err)
	}

	return map[string]interface{}{"tagged": tag}, nil
}
