// agentdesk - conversational agent server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/agentdesk/internal/analysis"
	"github.com/ashureev/agentdesk/internal/api"
	"github.com/ashureev/agentdesk/internal/config"
	"github.com/ashureev/agentdesk/internal/history"
	"github.com/ashureev/agentdesk/internal/identity"
	"github.com/ashureev/agentdesk/internal/middleware"
	"github.com/ashureev/agentdesk/internal/observability"
	"github.com/ashureev/agentdesk/internal/orchestrator"
	"github.com/ashureev/agentdesk/internal/probe"
	"github.com/ashureev/agentdesk/internal/provider"
	"github.com/ashureev/agentdesk/internal/registry"
	"github.com/ashureev/agentdesk/internal/store"
	"github.com/ashureev/agentdesk/internal/tools"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "model_family", cfg.Models.DefaultFamily)

	// Agent catalog and tools.
	catalog, err := config.LoadCatalog(cfg.AgentsConfig)
	if err != nil {
		slog.Error("Failed to load agent catalog", "error", err, "path", cfg.AgentsConfig)
		os.Exit(1)
	}
	agents, err := registry.New(catalog)
	if err != nil {
		slog.Error("Invalid agent catalog", "error", err)
		os.Exit(1)
	}
	toolRegistry := tools.NewRegistry()
	if err := toolRegistry.Bind(agents.Tools(), tools.Builtins()); err != nil {
		slog.Error("Failed to bind tool executors", "error", err)
		os.Exit(1)
	}
	slog.Info("Agent catalog loaded", "agents", len(agents.All()), "tools", len(agents.Tools()), "default_agent", agents.Default().ID)

	// Persistence.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	observability.EnsureRegistered()

	recorder := history.NewRecorder(repo, cfg.History.QueueSize, cfg.History.DefaultLimit, logger)
	router := provider.NewRouter(cfg.Models)
	orch := orchestrator.New(agents, router, toolRegistry, recorder,
		orchestrator.WithLogger(logger),
		orchestrator.WithMaxTokens(cfg.Models.MaxTokens),
	)

	analyzer, err := analysis.New(router, cfg.Models.AnalysisModel,
		analysis.WithLogger(logger),
		analysis.WithMaxTokens(cfg.Models.MaxTokens),
	)
	if err != nil {
		slog.Error("Failed to initialize analyzer", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(agents, orch, recorder, analyzer, repo, cfg)
	defer handler.Close()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.CORSOrigins, cfg.IdentityHeader))

	// Public routes.
	r.Get("/healthz", handler.HandleHealthz)
	r.Handle("/metrics", observability.MetricsHandler())

	// Routes that need a caller identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, identity.Options{
			Header: cfg.IdentityHeader,
			IsDev:  cfg.IsDevelopment(),
		}))
		handler.RegisterRoutes(r)
	})

	// Note: SSE connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history.StartRetentionWorker(ctx, repo, cfg.History.Retention)
	if cfg.History.Retention > 0 {
		slog.Info("History retention worker started", "retention", cfg.History.Retention)
	}

	if cfg.GRPCHealthAddr != "" {
		if _, err := probe.Start(ctx, cfg.GRPCHealthAddr, repo, logger); err != nil {
			slog.Error("Failed to start gRPC health probe", "error", err)
			os.Exit(1)
		}
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		slog.Warn("History queue not fully drained", "error", err)
	}

	slog.Info("Server stopped successfully")
}
