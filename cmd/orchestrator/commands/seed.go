package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"clientdesk/orchestrator/internal/config"
	"clientdesk/orchestrator/internal/logging"
	"clientdesk/orchestrator/internal/repository"
	"clientdesk/orchestrator/pkg/models"
)

// SeedCmd loads a local development tenant with a demo workflow,
// integration and campaign.
var SeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a local development tenant with demo data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return seed()
	},
}

func seed() error {
	ctx := context.Background()
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig(ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer pool.Close()

	repo := repository.NewPostgres(pool)
	now := time.Now().UTC()

	// Ensure the local tenant exists.
	domain := "localhost"
	tenant, err := repo.GetTenantByDomain(ctx, domain)
	if err != nil {
		logger.Info("Creating default tenant", "domain", domain)
		tenant = &models.Tenant{
			ID:        uuid.New().String(),
			Name:      "Local Dev Tenant",
			Domain:    domain,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.CreateTenant(ctx, tenant); err != nil {
			return fmt.Errorf("create tenant: %w", err)
		}
	} else {
		logger.Info("Found existing tenant", "id", tenant.ID)
	}

	// Demo CRM integration for the first configured provider.
	for providerID := range cfg.Providers {
		if _, err := repo.GetIntegrationByAccount(ctx, providerID, "demo-account"); err == nil {
			continue
		}
		integration := &models.Integration{
			ID:                uuid.New().String(),
			TenantID:          tenant.ID,
			ProviderID:        providerID,
			ExternalAccountID: "demo-account",
			Status:            models.IntegrationStatusConnected,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := repo.CreateIntegration(ctx, integration); err != nil {
			return fmt.Errorf("create integration: %w", err)
		}
		logger.Info("Created integration", "provider", providerID)
	}

	// Demo workflow: tag the contact, then notify immediately when it
	// has an email, or after a one hour delay when it does not.
	def := &models.WorkflowDefinition{
		ID:       uuid.New().String(),
		TenantID: tenant.ID,
		Name:     "New contact follow-up",
		Enabled:  true,
		Trigger: models.Trigger{
			EventType:      "contact.created",
			RequiredFields: []string{"contact_id"},
		},
		EntryStep: "tag",
		Steps: []models.Step{
			{
				ID:     "tag",
				Type:   models.StepTypeAction,
				Config: map[string]interface{}{"action": "tag_contact", "tag": "new-lead"},
				Next:   map[string]string{models.OutcomeNext: "has-email"},
			},
			{
				ID:     "has-email",
				Type:   models.StepTypeCondition,
				Config: map[string]interface{}{"field": "email", "op": "nonempty"},
				Next: map[string]string{
					models.OutcomeTrue:  "notify",
					models.OutcomeFalse: "wait",
				},
			},
			{
				ID:     "wait",
				Type:   models.StepTypeDelay,
				Config: map[string]interface{}{"duration": "1h"},
				Next:   map[string]string{models.OutcomeNext: "notify"},
			},
			{
				ID:     "notify",
				Type:   models.StepTypeNotify,
				Config: map[string]interface{}{"channel": "sales"},
			},
		},
		CreatedAt: now,
	}
	if err := repo.CreateWorkflowDefinition(ctx, def); err != nil {
		return fmt.Errorf("create workflow definition: %w", err)
	}
	logger.Info("Created workflow definition", "id", def.ID)

	// Demo campaign with a small target queue.
	camp := &models.Campaign{
		ID:        uuid.New().String(),
		TenantID:  tenant.ID,
		Name:      "Demo outreach",
		AgentID:   "demo-agent",
		CreatedAt: now,
	}
	if err := repo.CreateCampaign(ctx, camp); err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	for i := 0; i < 5; i++ {
		target := &models.CallTarget{
			ID:         uuid.New().String(),
			CampaignID: camp.ID,
			Position:   i,
			Phone:      fmt.Sprintf("+1555000%04d", i),
		}
		if err := repo.CreateCallTarget(ctx, target); err != nil {
			return fmt.Errorf("create call target: %w", err)
		}
	}
	logger.Info("Created campaign", "id", camp.ID, "targets", 5)

	return nil
}
