package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/buildinfo"
	"github.com/xelth-com/orderledger/internal/cache"
	"github.com/xelth-com/orderledger/internal/catalog"
	"github.com/xelth-com/orderledger/internal/config"
	"github.com/xelth-com/orderledger/internal/database"
	"github.com/xelth-com/orderledger/internal/handlers"
	"github.com/xelth-com/orderledger/internal/inventory"
	"github.com/xelth-com/orderledger/internal/ledger"
	"github.com/xelth-com/orderledger/internal/notify"
	"github.com/xelth-com/orderledger/internal/orders"
	"github.com/xelth-com/orderledger/internal/outbox"
	"github.com/xelth-com/orderledger/internal/services/delivery"
	"github.com/xelth-com/orderledger/internal/syncevent"
	"github.com/xelth-com/orderledger/internal/webhook"
	"github.com/xelth-com/orderledger/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)
	logger.WithFields(logrus.Fields{
		"commit":     buildinfo.CommitHash,
		"build_time": buildinfo.BuildTime,
		"env":        cfg.NodeEnv,
	}).Info("starting orderledger api")

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// 3. Auto-Migrate Schema
	if err := db.Migrate(); err != nil {
		logger.Fatalf("Schema migration failed: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 4. Optional redis for the catalog cache
	redisClient, err := cache.Connect(ctx, cfg.Redis, logger)
	if err != nil {
		logger.WithError(err).Warn("redis unavailable; continuing without cache")
		redisClient = nil
	}

	// 5. Components
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	events := syncevent.NewLog(db.DB, logger)
	events.SetPublisher(hub)

	registry := notify.NewRegistry(logger)
	for _, ch := range []notify.Channel{
		notify.NewLogChannel(logger),
		notify.NewInAppChannel(hub, websocket.NotificationTopic),
	} {
		if err := registry.Register(ch); err != nil {
			logger.Fatalf("Failed to register notification channel: %v", err)
		}
	}
	notifier := notify.NewService(registry, cfg.Reconcile.DedupWindow, logger)

	matcher := ledger.NewWindowMatcher(cfg.Reconcile.MatchWindow, cfg.Reconcile.LegacyIDFallback)
	propagator := ledger.NewPropagator(matcher, events, logger)
	materializer := inventory.NewMaterializer(catalog.New(redisClient, logger), notifier, events, redisClient, cfg.Reconcile.BackfillLockTTL, logger)
	dispatcher := outbox.NewDispatcher(db.DB, outbox.NewProcessor(db.DB, propagator, materializer, logger), cfg.Outbox, logger)
	deliveries := delivery.NewService()

	// 6. Background retry of reconciliation tasks
	if cfg.Outbox.Enabled {
		go dispatcher.Run(ctx)
	}

	// 7. HTTP router
	router := handlers.NewRouter(handlers.Deps{
		DB:       db,
		Config:   cfg,
		Logger:   logger,
		Events:   events,
		Ingestor: webhook.NewIngestor(db.DB, cfg.Webhook.Secret, events, deliveries, dispatcher, logger),
		Orders:   orders.NewService(db.DB, events, deliveries, notifier, dispatcher, logger),
		Notifier: notifier,
		Matcher:  matcher,
		Hub:      hub,
	})

	// 8. Start server with graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		logger.WithField("port", cfg.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	logger.WithField("signal", sig.String()).Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown error")
	}

	// Stops the hub and the dispatcher
	stop()

	if err := redisClient.Close(); err != nil {
		logger.WithError(err).Warn("redis close error")
	}

	// Close database (this also stops embedded PostgreSQL)
	if err := db.Close(); err != nil {
		logger.WithError(err).Error("Database close error")
	}

	logger.Info("shutdown complete")
}
