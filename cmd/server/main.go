package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tnjtools/alertqueue/internal/api"
	"github.com/tnjtools/alertqueue/internal/config"
	"github.com/tnjtools/alertqueue/internal/db"
	"github.com/tnjtools/alertqueue/internal/display"
	"github.com/tnjtools/alertqueue/internal/domain"
	"github.com/tnjtools/alertqueue/internal/feed"
	"github.com/tnjtools/alertqueue/internal/metrics"
	"github.com/tnjtools/alertqueue/internal/queue"
	"github.com/tnjtools/alertqueue/internal/ratelimiter"
	"github.com/tnjtools/alertqueue/internal/repository"
	"github.com/tnjtools/alertqueue/internal/service"
	"github.com/tnjtools/alertqueue/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; fall back to zap's bootstrap production logger.
		zap.Must(zap.NewProduction()).Fatal("failed to load config", zap.Error(err))
	}

	logger := newLogger(cfg.LogDevelopment).With(zap.String("instance", cfg.InstanceID))
	defer logger.Sync() //nolint:errcheck

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	queueRepo := repository.NewPgQueueRepository(pool)
	alertRepo := repository.NewPgAlertRepository(pool)

	broker := feed.NewBroker(logger.With(zap.String("component", "broker")))
	broker.OnDrop(m.FeedDrops.Inc)

	listener := feed.NewListener(feed.PgDialer(cfg.DatabaseURL), broker, feed.ListenerConfig{
		MaxRetries:     cfg.FeedMaxRetries,
		InitialBackoff: cfg.FeedInitialBackoff,
		MaxBackoff:     cfg.FeedMaxBackoff,
	}, logger.With(zap.String("component", "feed")))
	listener.SetHooks(m.FeedHooks())

	hub := display.NewHub(logger.With(zap.String("component", "display")))
	hub.OnClientCount(m.ObserveDisplayClients)

	reader := queue.NewReader(queueRepo, logger.With(zap.String("component", "reader")))
	reader.OnSnapshot(m.ObserveCounts)
	reader.OnSnapshot(func(domain.StatusCounts) { hub.Resync() })

	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	workers := worker.NewPool(worker.SettingsFromConfig(cfg), queueRepo, reader, broker, hub, logger, m.WorkerHooks())

	svc := service.NewQueueService(alertRepo, queueRepo, reader, workers.Coordinator(),
		ratelimiter.New(cfg.TriggerRateLimit), logger.With(zap.String("component", "service")))
	svc.OnTrigger(m.ObserveTrigger)

	gateway := display.NewGateway(hub, svc, cfg.DisplayAllowedOrigins, logger.With(zap.String("component", "display")))

	// ---- background goroutines ----
	g, gctx := errgroup.WithContext(workerCtx)
	g.Go(func() error {
		// An exhausted feed is not fatal: the poll timer keeps the queue moving.
		if err := listener.Run(gctx); err != nil && !errors.Is(err, feed.ErrFeedExhausted) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Forward(gctx, broker, reader, svc)
		return nil
	})

	workers.Start(workerCtx)

	// ---- HTTP server ----
	router := api.NewRouter(api.Deps{
		Service:    svc,
		Hub:        hub,
		Gateway:    gateway,
		DB:         pool,
		InstanceID: cfg.InstanceID,
		Gatherer:   reg,
	}, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the coordinator, heartbeat and sweeper, the feed and the hub.
	// Items left playing are completed by the next instance's startup recovery
	// or by another instance's staleness sweep.
	cancelWorkers()

	// 3. Wait for every goroutine to return.
	workers.Wait()
	if err := g.Wait(); err != nil {
		logger.Error("background goroutine failed", zap.Error(err))
	}

	logger.Info("server stopped cleanly")
}

func newLogger(development bool) *zap.Logger {
	if development {
		return zap.Must(zap.NewDevelopment())
	}
	return zap.Must(zap.NewProduction())
}
