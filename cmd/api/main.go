package main

import (
	"context"
	"log"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rmupfumira/classup/internal/config"
	"github.com/rmupfumira/classup/internal/handler"
	"github.com/rmupfumira/classup/internal/infra/postgresql"
	"github.com/rmupfumira/classup/internal/infra/postgresql/migrations"
	infraredis "github.com/rmupfumira/classup/internal/infra/redis"
	"github.com/rmupfumira/classup/internal/observability"
	"github.com/rmupfumira/classup/internal/provider"
	"github.com/rmupfumira/classup/internal/queue"
	"github.com/rmupfumira/classup/internal/ratelimit"
	"github.com/rmupfumira/classup/internal/realtime"
	"github.com/rmupfumira/classup/internal/repository"
	"github.com/rmupfumira/classup/internal/service"
	"github.com/rmupfumira/classup/internal/tasks"
	"github.com/rmupfumira/classup/internal/transport"
)

const (
	brokerProbeTimeout = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	metrics := observability.NewMetrics()

	// Redis is optional: without it the realtime registry stays
	// local-process and webhook deliveries run unthrottled.
	var rdb *goredis.Client
	var bus realtime.Bus
	var limiter ratelimit.RateLimiter = ratelimit.Unlimited{}
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis initialization failed", zap.Error(err))
		}
		defer rdb.Close()

		redisBus, err := infraredis.NewBus(rdb)
		if err != nil {
			logger.Fatal("redis bus initialization failed", zap.Error(err))
		}
		bus = redisBus

		limiter, err = infraredis.NewRedisRateLimiter(rdb, cfg.WebhookRatePerSec)
		if err != nil {
			logger.Fatal("rate limiter initialization failed", zap.Error(err))
		}
	} else {
		logger.Warn("REDIS_URL not set, cross-instance push and rate limiting disabled")
	}

	registry := realtime.NewRegistry(bus, logger)
	taskRegistry := tasks.NewRegistry()

	// One probe at startup decides the execution mode for the process
	// lifetime: a reachable broker means queued tasks, otherwise inline.
	var runner tasks.Runner
	var rmq *queue.RabbitMQ
	if cfg.RabbitMQURL != "" {
		rmq, err = queue.NewRabbitMQ(cfg.RabbitMQURL, brokerProbeTimeout)
		if err != nil {
			logger.Warn("rabbitmq unreachable, falling back to inline task execution", zap.Error(err))
		}
	}
	if rmq != nil {
		defer rmq.Close()
		publisher := queue.NewRabbitMQPublisher(rmq)
		runner, err = tasks.NewQueueRunner(publisher)
		if err != nil {
			logger.Fatal("queue runner initialization failed", zap.Error(err))
		}
		logger.Info("task execution mode: queue")
	} else {
		runner, err = tasks.NewInlineRunner(taskRegistry, logger)
		if err != nil {
			logger.Fatal("inline runner initialization failed", zap.Error(err))
		}
		logger.Info("task execution mode: inline")
	}

	notificationRepo := repository.NewGormNotificationRepo(db)
	endpointRepo := repository.NewGormWebhookEndpointRepo(db)
	deliveryRepo := repository.NewGormWebhookDeliveryRepo(db)
	directoryRepo := repository.NewGormDirectoryRepo(db)

	resolver, err := service.NewRecipientResolver(directoryRepo, logger)
	if err != nil {
		logger.Fatal("recipient resolver initialization failed", zap.Error(err))
	}

	notificationSvc, err := service.NewNotificationService(notificationRepo, directoryRepo, registry, metrics, logger)
	if err != nil {
		logger.Fatal("notification service initialization failed", zap.Error(err))
	}

	sender := provider.NewWebhookSender()
	webhookSvc, err := service.NewWebhookService(endpointRepo, deliveryRepo, sender, runner, limiter, metrics, logger)
	if err != nil {
		logger.Fatal("webhook service initialization failed", zap.Error(err))
	}

	dispatcher, err := service.NewEventDispatcher(resolver, notificationSvc, webhookSvc, metrics, logger)
	if err != nil {
		logger.Fatal("event dispatcher initialization failed", zap.Error(err))
	}

	// Inline mode executes delivery tasks in this process, so the handler
	// must be registered here; in queue mode the worker process owns it,
	// but registering is harmless and keeps single-process deployments
	// working.
	if err := taskRegistry.Register(tasks.TaskWebhookDeliver, webhookSvc.DeliverTaskHandler()); err != nil {
		logger.Fatal("task registration failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())
	app.Use(handler.CorrelationMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	authed := app.Group("", handler.PrincipalMiddleware())
	if err := handler.RegisterNotificationRoutes(authed, notificationSvc); err != nil {
		logger.Fatal("notification routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterWebhookRoutes(authed, webhookSvc); err != nil {
		logger.Fatal("webhook routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterEventRoutes(authed, dispatcher); err != nil {
		logger.Fatal("event routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterRealtimeRoutes(authed, registry, notificationSvc, metrics, logger); err != nil {
		logger.Fatal("realtime routes registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return registry.Start(gCtx)
	})

	// In inline mode nothing else delivers scheduled retries, so the API
	// process runs the scanner itself.
	if rmq == nil {
		scanner, err := service.NewRetryScanner(deliveryRepo, runner, 0, 0, logger)
		if err != nil {
			logger.Fatal("retry scanner initialization failed", zap.Error(err))
		}
		g.Go(func() error {
			return scanner.Start(gCtx)
		})
	}

	g.Go(func() error {
		logger.Info("classup api started", zap.Int("port", cfg.APIPort))
		return app.Listen(":" + strconv.Itoa(cfg.APIPort))
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")
		dispatcher.Wait()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("api terminated", zap.Error(err))
	}
}
