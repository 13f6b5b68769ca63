package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/inboxpilot/inboxd/internal/automation"
	"github.com/inboxpilot/inboxd/internal/config"
	"github.com/inboxpilot/inboxd/internal/delivery"
	"github.com/inboxpilot/inboxd/internal/escalation"
	"github.com/inboxpilot/inboxd/internal/generator"
	inboxhttp "github.com/inboxpilot/inboxd/internal/http"
	"github.com/inboxpilot/inboxd/internal/metrics"
	"github.com/inboxpilot/inboxd/internal/orchestrator"
	"github.com/inboxpilot/inboxd/internal/platform"
	"github.com/inboxpilot/inboxd/internal/store"
	"github.com/inboxpilot/inboxd/internal/store/pg"
	"github.com/inboxpilot/inboxd/internal/store/sqlite"
	"github.com/inboxpilot/inboxd/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the inbox automation API server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
	logger := slog.Default()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		slog.Warn("trace export unavailable", "error", err)
	} else {
		defer shutdownTracing(context.Background())
	}

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}

	client := platform.NewGraphClient(cfg.Platform.APIBase, cfg.Platform.PageID, cfg.Platform.AccessToken)
	gen := generator.NewLLMGenerator(cfg.Generator.APIBase, cfg.Generator.APIKey, cfg.Generator.Model, stores.Messages)

	tracker := metrics.NewTracker(stores.Reports, logger)
	escalations := escalation.NewManager(stores.Tickets, stores.Conversations, tracker, logger)
	coordinator := automation.NewCoordinator(stores.Automation, logger)
	pipeline := delivery.NewPipeline(client, cfg.Delivery.SendsPerSecond, logger)

	orch := orchestrator.New(orchestrator.Config{
		Stores:       stores,
		Escalations:  escalations,
		Coordinator:  coordinator,
		Tracker:      tracker,
		Pipeline:     pipeline,
		Generator:    gen,
		HistoryLimit: cfg.Generator.HistoryLimit,
		Logger:       logger,
	})

	limiter := inboxhttp.NewWebhookRateLimiter(cfg.Server.WebhookRateLimitRPM)
	handler := inboxhttp.NewInboxHandler(orch, escalations, stores, cfg.Server.AuthToken, limiter, logger)

	mux := nethttp.NewServeMux()
	handler.RegisterRoutes(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &nethttp.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("inboxd listening", "addr", addr, "mode", cfg.Database.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("graceful shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// openStores selects the backend by config: Postgres when a DSN is set
// (managed mode), an embedded SQLite file otherwise.
func openStores(cfg *config.Config) (*store.Stores, error) {
	storeCfg := store.StoreConfig{
		PostgresDSN:               cfg.Database.PostgresDSN,
		SQLitePath:                config.ExpandHome(cfg.Database.SQLitePath),
		DefaultEscalationBehavior: cfg.Workspace.EscalationBehavior,
		DefaultHoldMinutes:        cfg.Workspace.HoldMinutes,
	}
	if cfg.IsManagedMode() {
		return pg.NewPGStores(storeCfg)
	}
	return sqlite.NewSQLiteStores(storeCfg)
}
