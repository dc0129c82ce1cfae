package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/V4T54L/logflow/internal/adapter/api"
	"github.com/V4T54L/logflow/internal/adapter/api/handler"
	"github.com/V4T54L/logflow/internal/adapter/debug"
	"github.com/V4T54L/logflow/internal/adapter/lumberjack"
	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/adapter/pii"
	"github.com/V4T54L/logflow/internal/adapter/repository"
	"github.com/V4T54L/logflow/internal/adapter/repository/segment"
	"github.com/V4T54L/logflow/internal/pkg/config"
	"github.com/V4T54L/logflow/internal/pkg/logger"
	"github.com/V4T54L/logflow/internal/usecase"
)

// Extra time granted to the final shutdown steps after the pipeline drain.
const shutdownGrace = 5 * time.Second

func main() {
	os.Exit(run())
}

// run wires and serves the pipeline until SIGINT or SIGTERM, then shuts it
// down and returns the process exit code.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	rules, err := config.LoadRules(cfg)
	if err != nil {
		logger.Error("failed to load rules", "error", err, "rules_file", cfg.RulesFile)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewPipelineMetrics(reg)

	// --- Storage sink ---
	sink, err := repository.OpenSink(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage sink", "error", err, "backend", cfg.SinkBackend)
		return 1
	}
	defer sink.Close()
	logger.Info("storage sink ready", "backend", cfg.SinkBackend)

	// --- Debug sinks ---
	tailCtx, cancelTail := context.WithCancel(context.Background())
	defer cancelTail()
	tail := handler.NewTailBroker(tailCtx, logger)

	targets := []debug.Target{tail}
	if cfg.DebugConsole {
		targets = append(targets, debug.NewConsole(logger))
	}
	if cfg.DebugFileDir != "" {
		segments, err := segment.NewSegmentRepository(cfg.DebugFileDir, cfg.DebugSegmentSize, cfg.DebugMaxDiskSize, logger)
		if err != nil {
			logger.Error("failed to open debug segments", "error", err, "dir", cfg.DebugFileDir)
			return 1
		}
		defer segments.Close()
		targets = append(targets, segments)
	}
	dispatcher := debug.NewDispatcher(cfg.DebugBufferSize, m, logger, targets...)
	dispatcher.Start()

	// --- Pipeline ---
	var redactor *pii.Redactor
	if r := pii.NewRedactor(cfg.PIIRedactionFields, logger); r.Enabled() {
		redactor = r
	}
	normalizer := usecase.TimestampNormalizer{
		Field:    rules.TimestampField,
		Layout:   rules.TimestampLayout,
		Location: rules.Location,
	}
	stages := usecase.Stages{
		Parser:   usecase.NewParseEventUseCase(rules.Patterns, m, logger),
		Enricher: usecase.NewEnrichEventUseCase(normalizer, rules.StaticFields, redactor, m, logger),
		Router:   usecase.NewRouteEventUseCase(rules.Routing, dispatcher, m, logger),
		Deliverer: usecase.NewDeliverEventUseCase(sink, dispatcher, usecase.RetryPolicy{
			MaxAttempts:  cfg.SinkMaxAttempts,
			InitialDelay: cfg.SinkRetryInitial,
			MaxDelay:     cfg.SinkRetryMax,
			Jitter:       true,
		}, m, logger),
	}
	pipeline := usecase.NewPipeline(usecase.PipelineConfig{
		Parse:           usecase.StageConfig{Workers: cfg.ParseWorkers, QueueSize: cfg.ParseQueueSize},
		Enrich:          usecase.StageConfig{Workers: cfg.EnrichWorkers, QueueSize: cfg.EnrichQueueSize},
		Route:           usecase.StageConfig{Workers: cfg.RouteWorkers, QueueSize: cfg.RouteQueueSize},
		Deliver:         usecase.StageConfig{Workers: cfg.DeliverWorkers, QueueSize: cfg.DeliverQueueSize},
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, stages, dispatcher, m, logger)
	pipeline.Start()

	ingestUseCase := usecase.NewIngestBatchUseCase(pipeline, m, logger)

	// --- Admin and metrics server ---
	var adminUseCase *usecase.AdminStreamUseCase
	if sink.Admin != nil {
		adminUseCase = usecase.NewAdminStreamUseCase(sink.Admin)
	}
	adminServer := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           api.NewAdminRouter(handler.NewAdminHandler(pipeline, adminUseCase, logger), tail, reg, cfg.HTTPAPIKeys, logger),
		ReadHeaderTimeout: 5 * time.Second,
		// Tail streams end when tailCtx is cancelled.
		BaseContext: func(net.Listener) context.Context { return tailCtx },
	}
	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- HTTP ingest server ---
	ingestServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.NewRouter(cfg, logger, ingestUseCase, m),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}
	go func() {
		logger.Info("starting http ingest server", "addr", ingestServer.Addr)
		if err := ingestServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http ingest server failed", "error", err)
			stop()
		}
	}()

	// --- Lumberjack listener ---
	listener := lumberjack.NewServer(lumberjack.Config{
		Addr:          cfg.ListenAddr,
		MaxFrameSize:  cfg.MaxFrameSize,
		MaxWindowSize: cfg.MaxWindowSize,
		IdleTimeout:   cfg.IdleTimeout,
	}, ingestUseCase, m, logger)
	go func() {
		logger.Info("starting lumberjack listener", "addr", cfg.ListenAddr)
		if err := listener.ListenAndServe(); err != nil && !errors.Is(err, lumberjack.ErrServerClosed) {
			logger.Error("lumberjack listener failed", "error", err)
			stop()
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down", "drain_timeout", cfg.ShutdownTimeout)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+shutdownGrace)
	defer cancelShutdown()

	// Stop intake first so the pipeline can drain.
	if err := listener.Shutdown(shutdownCtx); err != nil {
		logger.Error("lumberjack listener shutdown failed", "error", err)
	}
	if err := ingestServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http ingest server shutdown failed", "error", err)
	}

	exitCode := 0
	if err := pipeline.Shutdown(shutdownCtx); err != nil {
		logger.Error("pipeline shutdown incomplete", "error", err)
		exitCode = 1
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("debug dispatcher did not flush", "error", err)
	}
	cancelTail()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}

	stats := pipeline.Stats()
	logger.Info("shut down", "submitted", stats.Submitted, "delivered", stats.Delivered, "dropped", stats.Dropped)
	return exitCode
}
