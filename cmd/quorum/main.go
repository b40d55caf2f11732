package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	qhttp "github.com/quorumlabs/quorum/internal/adapter/http"
	"github.com/quorumlabs/quorum/internal/adapter/litellm"
	"github.com/quorumlabs/quorum/internal/adapter/mcp"
	qnats "github.com/quorumlabs/quorum/internal/adapter/nats"
	otelx "github.com/quorumlabs/quorum/internal/adapter/otel"
	"github.com/quorumlabs/quorum/internal/adapter/postgres"
	"github.com/quorumlabs/quorum/internal/adapter/ristretto"
	"github.com/quorumlabs/quorum/internal/adapter/ws"
	"github.com/quorumlabs/quorum/internal/config"
	"github.com/quorumlabs/quorum/internal/logger"
	"github.com/quorumlabs/quorum/internal/port/auditstore"
	"github.com/quorumlabs/quorum/internal/port/retrieval"
	"github.com/quorumlabs/quorum/internal/port/toolbroker"
	"github.com/quorumlabs/quorum/internal/resilience"
	"github.com/quorumlabs/quorum/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLogger := logger.New(cfg.Logging)
	defer closeLogger.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"gateway", cfg.Gateway.URL,
		"models", len(cfg.Models),
		"max_iterations", cfg.Engine.MaxIterations,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownTelemetry, err := otelx.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	var metrics *otelx.Metrics
	if cfg.Telemetry.Enabled {
		if metrics, err = otelx.NewMetrics(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// --- Gateway ---

	llm := litellm.NewClient(cfg.Gateway.URL, cfg.Gateway.MasterKey, cfg.Gateway.Timeout)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	llm.SetBreaker(breaker)

	if cfg.Cache.MaxSizeMB > 0 {
		completionCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		defer completionCache.Close()
		llm.SetCache(completionCache, cfg.Cache.TTL)
	}

	// --- Optional subsystems: empty endpoints disable them ---

	var archive auditstore.Store = auditstore.Noop{}
	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		archive = postgres.NewArchive(pool)
		slog.Info("session archive enabled")
	}

	var retriever retrieval.Retriever
	if cfg.NATS.URL != "" {
		queue, err := qnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()

		natsRetriever := qnats.NewRetriever(queue)
		cancelSub, err := natsRetriever.StartSubscriber(ctx)
		if err != nil {
			return fmt.Errorf("retrieval subscriber: %w", err)
		}
		defer cancelSub()
		retriever = natsRetriever
		slog.Info("retrieval enabled", "nats", cfg.NATS.URL)
	}

	var broker toolbroker.Broker
	if cfg.Tools.MCPURL != "" {
		broker = mcp.NewBroker(cfg.Tools.MCPURL, cfg.Tools.Timeout)
		slog.Info("tool broker enabled", "mcp", cfg.Tools.MCPURL)
	}

	// --- Engine ---

	hub := ws.NewHub()

	registry := service.NewModelRegistry(cfg.Models, llm, cfg.Engine.HealthInterval)
	registry.Start(ctx)

	dispatcher := service.NewDispatcher(llm, cfg.Engine, hub, metrics)
	aggregator := service.NewAggregator(cfg.Engine)
	verifier := service.NewVerifier(cfg.Engine)
	refiner := service.NewRefinementController(dispatcher, aggregator, verifier, cfg.Engine, hub, metrics)
	engine := service.NewOrchestrator(registry, service.NewStrategySelector(), refiner,
		retriever, broker, archive, hub, metrics, cfg.Engine)

	// --- HTTP ---

	handlers := &qhttp.Handlers{
		Engine:   engine,
		Registry: registry,
		Breaker:  breaker,
		Hub:      hub,
	}

	r := chi.NewRouter()
	r.Use(qhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(qhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry.Enabled {
		r.Use(otelx.Middleware)
	}

	qhttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // sessions can run to the full query deadline
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
