package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/tashaleeh/api/internal/di"
	"github.com/tashaleeh/api/internal/handlers"
	"github.com/tashaleeh/api/internal/platform/config"
	"github.com/tashaleeh/api/internal/platform/events"
	pfirestore "github.com/tashaleeh/api/internal/platform/firestore"
	"github.com/tashaleeh/api/internal/platform/observability"
	"github.com/tashaleeh/api/internal/platform/telegram"
	firestoreRepo "github.com/tashaleeh/api/internal/repositories/firestore"
	"github.com/tashaleeh/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load(ctx, config.LoadOptions{})
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	telegramClient, err := telegram.NewClient(cfg.Telegram)
	if err != nil {
		logger.Fatal("failed to initialise telegram client", zap.Error(err))
	}

	var eventPublisher services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	if cfg.Events.Topic != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(cfg.Events.Topic)
		defer topic.Stop()
		eventPublisher, err = events.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
	} else {
		logger.Warn("EVENTS_TOPIC not set; order events will not be published")
	}

	container, err := di.NewContainer(ctx, cfg, di.Deps{
		Registry:  registry,
		Messenger: telegramClient,
		Callbacks: telegramClient,
		Events:    eventPublisher,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	var sweepWG sync.WaitGroup
	sweepTicker := time.NewTicker(cfg.Workflow.ExpirySweepInterval)
	sweepWG.Add(1)
	go func() {
		defer sweepWG.Done()
		sweepLogger := logger.Named("expiry")
		for {
			select {
			case <-sweepTicker.C:
				runCtx, cancel := context.WithTimeout(sweepCtx, time.Minute)
				expired, err := container.Services.Orders.ExpireOverdue(runCtx)
				cancel()
				if err != nil {
					sweepLogger.Error("overdue sweep error", zap.Error(err))
					continue
				}
				if expired > 0 {
					sweepLogger.Info("expired overdue orders", zap.Int("count", expired))
				}
			case <-sweepCtx.Done():
				return
			}
		}
	}()

	webhookHandlers, err := handlers.NewTelegramWebhookHandlers(container.Bot, cfg.Telegram.WebhookSecret)
	if err != nil {
		logger.Fatal("failed to build webhook handlers", zap.Error(err))
	}
	maintenanceHandlers := handlers.NewMaintenanceHandlers(container.Services.Orders)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
		handlers.WithHealthProbes(firestoreProbe(firestoreProvider)),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(maintenanceHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("tashaleeh api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	sweepTicker.Stop()
	sweepCancel()
	sweepWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := os.Getenv("API_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit := os.Getenv("API_BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}
	environment := os.Getenv("API_ENVIRONMENT")
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func firestoreProbe(provider *pfirestore.Provider) handlers.ReadinessProbe {
	return handlers.ReadinessProbe{
		Name: "firestore",
		Check: func(ctx context.Context) error {
			client, err := provider.Client(ctx)
			if err != nil {
				return err
			}
			it := client.Collections(ctx)
			if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
				return err
			}
			return nil
		},
	}
}
