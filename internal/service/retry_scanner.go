package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rmupfumira/classup/internal/repository"
	"github.com/rmupfumira/classup/internal/tasks"
)

const (
	defaultRetryScanInterval = 15 * time.Second
	defaultRetryScanLimit    = 100
)

// RetryScanner periodically re-submits webhook deliveries whose retry
// timestamp has passed. It is the schedule of record in inline mode and a
// rescue sweep behind the broker's deferred queue otherwise.
type RetryScanner struct {
	deliveries repository.WebhookDeliveryRepository
	runner     tasks.Runner
	logger     *zap.Logger
	interval   time.Duration
	limit      int
}

func NewRetryScanner(
	deliveries repository.WebhookDeliveryRepository,
	runner tasks.Runner,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("task runner is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if limit <= 0 {
		limit = defaultRetryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		deliveries: deliveries,
		runner:     runner,
		logger:     logger,
		interval:   interval,
		limit:      limit,
	}, nil
}

// Start scans until context cancellation.
func (s *RetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Initial scan so deliveries already due do not wait a full tick.
	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retry scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retry scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	due, err := s.deliveries.GetDueForRetry(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to query due deliveries: %w", err)
	}

	for i := range due {
		payload, err := json.Marshal(DeliverTaskPayload{DeliveryID: due[i].ID})
		if err != nil {
			s.logger.Error("failed to encode delivery task payload",
				zap.String("deliveryId", due[i].ID.String()),
				zap.Error(err),
			)
			continue
		}

		// Clear before submitting: inline submission executes the attempt
		// synchronously, and the attempt may persist the next retry
		// timestamp, which a clear afterward would wipe.
		if err := s.deliveries.ClearNextAttemptAt(ctx, due[i].ID); err != nil {
			s.logger.Warn("failed to clear retry timestamp",
				zap.String("deliveryId", due[i].ID.String()),
				zap.Error(err),
			)
			continue
		}

		if err := s.runner.Submit(ctx, tasks.TaskWebhookDeliver, payload); err != nil {
			s.logger.Error("failed to re-submit due delivery",
				zap.String("deliveryId", due[i].ID.String()),
				zap.Error(err),
			)
			// Restore the timestamp so the next scan tries again.
			if recErr := s.deliveries.RecordAttempt(ctx, &due[i]); recErr != nil {
				s.logger.Error("failed to restore retry timestamp",
					zap.String("deliveryId", due[i].ID.String()),
					zap.Error(recErr),
				)
			}
			continue
		}

		s.logger.Info("due delivery re-submitted",
			zap.String("deliveryId", due[i].ID.String()),
			zap.Int("attempts", due[i].Attempts),
		)
	}

	return nil
}
