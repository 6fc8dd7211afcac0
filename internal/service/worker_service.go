package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rmupfumira/classup/internal/observability"
	"github.com/rmupfumira/classup/internal/queue"
	"github.com/rmupfumira/classup/internal/tasks"
)

const minWorkerConcurrency = 1

// WorkerService runs the background task consumers of a worker process.
// Consumed messages are dispatched to handlers through the shared task
// registry, the same one inline execution uses.
type WorkerService struct {
	consumer    queue.Consumer
	registry    *tasks.Registry
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

func NewWorkerService(
	consumer queue.Consumer,
	registry *tasks.Registry,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("task registry is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		consumer:    consumer,
		registry:    registry,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

// Start consumes the work queue until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started", zap.Int("workerId", workerID))

			err := s.consumer.Consume(groupCtx, s.processMessage)
			if err != nil && groupCtx.Err() == nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.TaskMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(s.logger, ctx)

	handler, err := s.registry.Resolve(msg.Task)
	if err != nil {
		// Unroutable message: returning the error would requeue it
		// forever. Log and drop.
		logger.Error("dropping unroutable task message",
			zap.String("task", msg.Task),
			zap.Error(err),
		)
		return nil
	}

	start := s.now()
	if err := handler(ctx, msg.Payload); err != nil {
		logger.Error("task execution failed",
			zap.String("task", msg.Task),
			zap.Duration("duration", s.now().Sub(start)),
			zap.Error(err),
		)
		return err
	}

	logger.Debug("task executed",
		zap.String("task", msg.Task),
		zap.Duration("duration", s.now().Sub(start)),
	)
	return nil
}
