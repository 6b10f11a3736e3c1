package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	httpadapter "github.com/couchcryptid/fire-threat-engine/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/fire-threat-engine/internal/adapter/kafka"
	"github.com/couchcryptid/fire-threat-engine/internal/adapter/postgres"
	"github.com/couchcryptid/fire-threat-engine/internal/adapter/spread"
	"github.com/couchcryptid/fire-threat-engine/internal/config"
	"github.com/couchcryptid/fire-threat-engine/internal/observability"
	"github.com/couchcryptid/fire-threat-engine/internal/pipeline"
	"github.com/couchcryptid/fire-threat-engine/internal/retry"
	"github.com/couchcryptid/fire-threat-engine/internal/service"
	"github.com/couchcryptid/fire-threat-engine/internal/store"
	"github.com/couchcryptid/fire-threat-engine/internal/threat"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	slog.SetDefault(logger)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to node database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	topology := store.NewTopologyStore()
	loader := store.NewTopologyLoader(postgres.NewNodeRepository(db), topology, cfg.TopologyRefreshInterval, clock, metrics, logger)
	readings := store.NewReadingStore(cfg.ReadingRetention, clock)

	// Prediction chain: HTTP client, TTL cache, bounded retry, per-view refresh.
	client := spread.NewClient(cfg.PredictorURL, cfg.PredictorTimeout, logger)
	cached := spread.NewCachedProvider(client, cfg.PredictionCacheSize, cfg.PredictionCacheTTL, clock, metrics)
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.PredictorMaxAttempts
	policy.InitialBackoff = cfg.PredictorBackoff
	predictor := threat.NewPredictor(cached, policy, cfg.PredictorTimeout, metrics, logger)
	refresher := threat.NewRefresher(predictor, clock, metrics, logger)

	engine := service.NewEngine(readings, topology, refresher, cfg.Thresholds, clock, logger)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	p := pipeline.New(reader, pipeline.NewDecoder(logger), readings, logger, metrics, cfg.BatchSize)

	publisher := service.NewPublisher(engine, writer, service.PublisherConfig{
		Interval: cfg.ThreatRefreshInterval,
		Range:    cfg.DefaultRange,
		Category: cfg.DefaultCategory,
	}, clock, metrics, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, engine, httpadapter.CombineReadiness(topology, p), httpadapter.Options{
		DefaultRange: cfg.DefaultRange,
		Clock:        clock,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { loader.Run(ctx) })
	run(func() { readings.RunPruner(ctx, cfg.PruneInterval) })
	run(func() { publisher.Run(ctx) })
	run(func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	})

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
