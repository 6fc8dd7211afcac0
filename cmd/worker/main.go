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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rmupfumira/classup/internal/config"
	"github.com/rmupfumira/classup/internal/infra/postgresql"
	"github.com/rmupfumira/classup/internal/infra/postgresql/migrations"
	infraredis "github.com/rmupfumira/classup/internal/infra/redis"
	"github.com/rmupfumira/classup/internal/observability"
	"github.com/rmupfumira/classup/internal/provider"
	"github.com/rmupfumira/classup/internal/queue"
	"github.com/rmupfumira/classup/internal/ratelimit"
	"github.com/rmupfumira/classup/internal/repository"
	"github.com/rmupfumira/classup/internal/service"
	"github.com/rmupfumira/classup/internal/tasks"
)

const (
	brokerProbeTimeout = 10 * time.Second
	consumerPrefetch   = 32
	shutdownTimeout    = 5 * time.Second
)

// The worker process consumes the durable task queue. It exists only in
// queue mode; inline deployments execute tasks in the API process and do
// not run a worker.
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

	if cfg.RabbitMQURL == "" {
		logger.Fatal("RABBITMQ_URL is required for the worker process")
	}

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

	// The worker pushes no realtime frames itself but shares the webhook
	// rate limit with every other instance through Redis.
	var limiter ratelimit.RateLimiter = ratelimit.Unlimited{}
	if cfg.RedisURL != "" {
		rdb, err := infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis initialization failed", zap.Error(err))
		}
		defer rdb.Close()

		limiter, err = infraredis.NewRedisRateLimiter(rdb, cfg.WebhookRatePerSec)
		if err != nil {
			logger.Fatal("rate limiter initialization failed", zap.Error(err))
		}
	}

	rmq, err := queue.NewRabbitMQ(cfg.RabbitMQURL, brokerProbeTimeout)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rmq.Close()

	publisher := queue.NewRabbitMQPublisher(rmq)
	runner, err := tasks.NewQueueRunner(publisher)
	if err != nil {
		logger.Fatal("queue runner initialization failed", zap.Error(err))
	}

	endpointRepo := repository.NewGormWebhookEndpointRepo(db)
	deliveryRepo := repository.NewGormWebhookDeliveryRepo(db)

	sender := provider.NewWebhookSender()
	webhookSvc, err := service.NewWebhookService(endpointRepo, deliveryRepo, sender, runner, limiter, metrics, logger)
	if err != nil {
		logger.Fatal("webhook service initialization failed", zap.Error(err))
	}

	taskRegistry := tasks.NewRegistry()
	if err := taskRegistry.Register(tasks.TaskWebhookDeliver, webhookSvc.DeliverTaskHandler()); err != nil {
		logger.Fatal("task registration failed", zap.Error(err))
	}

	consumer := queue.NewRabbitMQConsumer(rmq, consumerPrefetch, logger)
	worker, err := service.NewWorkerService(consumer, taskRegistry, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("worker service initialization failed", zap.Error(err))
	}

	scanner, err := service.NewRetryScanner(deliveryRepo, runner, 0, 0, logger)
	if err != nil {
		logger.Fatal("retry scanner initialization failed", zap.Error(err))
	}

	// Delivery counters and send-duration histograms are recorded in this
	// process, so it needs its own scrape endpoint.
	metricsApp := fiber.New(fiber.Config{DisableStartupMessage: true})
	metricsApp.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	metricsApp.Get("/livez", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("classup worker started", zap.Int("concurrency", cfg.WorkerConcurrency))
		return worker.Start(gCtx)
	})
	g.Go(func() error {
		return scanner.Start(gCtx)
	})
	g.Go(func() error {
		logger.Info("worker metrics listener started", zap.Int("port", cfg.MetricsPort))
		return metricsApp.Listen(":" + strconv.Itoa(cfg.MetricsPort))
	})
	g.Go(func() error {
		<-gCtx.Done()
		return metricsApp.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("worker terminated", zap.Error(err))
	}

	logger.Info("classup worker stopped")
}
