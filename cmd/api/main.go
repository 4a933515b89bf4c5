package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/greengrocer/api/internal/di"
	"github.com/greengrocer/api/internal/handlers"
	"github.com/greengrocer/api/internal/platform/auth"
	"github.com/greengrocer/api/internal/platform/config"
	pfirestore "github.com/greengrocer/api/internal/platform/firestore"
	"github.com/greengrocer/api/internal/platform/jobs"
	"github.com/greengrocer/api/internal/platform/observability"
	"github.com/greengrocer/api/internal/platform/pagination"
	firestoreRepo "github.com/greengrocer/api/internal/repositories/firestore"
)

func main() {
	ctx := context.Background()

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

	cfg, err := config.Load(ctx)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("configuration invalid", zap.Strings("fields", invalid.Fields()))
		}
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

	metrics := observability.NewMetrics()

	containerOpts := []di.Option{
		di.WithOrderOutcomeRecorder(metrics.RecordOrderOutcome),
		di.WithOrderLogger(newEventLogger(logger.Named("orders"))),
	}

	var pubsubClient *pubsub.Client
	if topicID := strings.TrimSpace(cfg.PubSub.OrderEventsTopic); topicID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		publisher, err := jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(topicID))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		containerOpts = append(containerOpts, di.WithOrderEventPublisher(publisher))
	} else {
		logger.Info("order event publishing disabled; no topic configured")
	}
	defer func() {
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	pagerOpts := pagination.Options{
		DefaultPageSize: cfg.Listing.DefaultPageSize,
		MaxPageSize:     cfg.Listing.MaxPageSize,
	}

	catalogHandlers := handlers.NewCatalogHandlers(container.Services.Catalog, pagerOpts)
	checkoutHandlers := handlers.NewCheckoutHandlers(container.Services.Orders)
	orderHandlers := handlers.NewOrderHandlers(container.Services.Orders, pagerOpts)
	adminHandlers := handlers.NewAdminHandlers(container.Services.Catalog, container.Services.Coupons, container.Services.Users, pagerOpts)
	meHandlers := handlers.NewMeHandlers(container.Services.Users)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(container.Services.System),
	)

	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestID,
		auth.Middleware(),
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		metrics.Middleware(),
		observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(metrics.Handler()),
		handlers.WithProductRoutes(catalogHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithAdminMiddlewares(auth.RequireRole(auth.RoleOwner)),
		handlers.WithMeRoutes(meHandlers.Routes),
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
		serverLogger.Info("greengrocer api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(event, zFields...)
	}
}
