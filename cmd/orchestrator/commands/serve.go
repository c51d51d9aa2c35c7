package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"clientdesk/orchestrator/internal/api"
	"clientdesk/orchestrator/internal/auth"
	"clientdesk/orchestrator/internal/campaign"
	"clientdesk/orchestrator/internal/collab"
	"clientdesk/orchestrator/internal/config"
	"clientdesk/orchestrator/internal/crmsync"
	"clientdesk/orchestrator/internal/dispatch"
	"clientdesk/orchestrator/internal/engine"
	"clientdesk/orchestrator/internal/logging"
	"clientdesk/orchestrator/internal/metrics"
	"clientdesk/orchestrator/internal/repository"
	"clientdesk/orchestrator/internal/token"
)

// ConfigPath is the --config flag shared by all subcommands.
var ConfigPath string

// ServeCmd runs the orchestration service.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration HTTP service and background workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig(ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.Info("Configuration loaded", "environment", cfg.Environment, "providers", len(cfg.Providers))

	// Background workers get a context canceled on shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer dbPool.Close()
	logger.Info("Database connected")

	repo := repository.NewPostgres(dbPool)

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Wire the orchestration services.
	tokens := token.NewStore(repo, cfg.Providers, logger)
	syncService := crmsync.NewService(repo, tokens, crmsync.NewHTTPProviderClient(), cfg.Providers, crmsync.Config{
		MaxAttempts:  cfg.Sync.MaxAttempts,
		RetryBase:    cfg.Sync.RetryBase,
		TickInterval: cfg.Sync.TickInterval,
	}, logger, m)

	actor := collab.NewContactActor(repo)
	notifier := collab.NewHTTPNotifier(cfg.Collaborators.NotifyURL)
	eng := engine.New(repo, actor, notifier, syncService, engine.Config{
		MaxStepRetries: cfg.Engine.MaxStepRetries,
		RetryBase:      cfg.Engine.RetryBase,
		RetryMax:       cfg.Engine.RetryMax,
	}, logger)

	dialer := collab.NewHTTPDialer(cfg.Collaborators.TelephonyURL)
	campaigns := campaign.NewService(ctx, repo, dialer, campaign.Config{
		MaxConsecutiveFailures: cfg.Campaign.MaxConsecutiveFailures,
		PollInterval:           cfg.Campaign.PollInterval,
	}, logger, m)

	dispatcher := dispatch.New(repo, eng, cfg.Dispatch.PollInterval, logger)

	go dispatcher.Run(ctx)
	go syncService.RunRetryLoop(ctx)
	logger.Info("Background workers started")

	// Create Echo server.
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("orchestrator"))

	authz, err := auth.New(ctx, cfg, repo, logger)
	if err != nil {
		return fmt.Errorf("initialize auth: %w", err)
	}

	apiServer := api.NewServer(repo, campaigns, syncService, dispatcher, logger)
	apiServer.RegisterRoutes(e, echo.WrapMiddleware(authz.RequireAuth))
	logger.Info("API handlers mounted")

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		// Stop the workers and let in-flight campaign loops drain.
		cancel()
		campaigns.Wait()

		logger.Info("Server stopped gracefully")
	}
	return nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
