package tasks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// InlineRunner executes tasks synchronously in the calling goroutine. It is
// selected once at startup when the durable queue backend is unreachable;
// Submit blocks the caller until the task body completes.
type InlineRunner struct {
	registry *Registry
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

var _ Runner = (*InlineRunner)(nil)

func NewInlineRunner(registry *Registry, logger *zap.Logger) (*InlineRunner, error) {
	if registry == nil {
		return nil, fmt.Errorf("task registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &InlineRunner{
		registry: registry,
		logger:   logger,
		sleep:    sleepWithContext,
	}, nil
}

func (r *InlineRunner) Submit(ctx context.Context, task string, payload []byte) error {
	handler, err := r.registry.Resolve(task)
	if err != nil {
		return err
	}

	if err := handler(ctx, payload); err != nil {
		return fmt.Errorf("inline task %q failed: %w", task, err)
	}
	return nil
}

func (r *InlineRunner) SubmitIn(ctx context.Context, task string, payload []byte, delay time.Duration) error {
	if delay > MaxInlineDefer {
		return fmt.Errorf("cannot defer task %q by %s: %w", task, delay, ErrInlineDeferUnsupported)
	}

	if delay > 0 {
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return r.Submit(ctx, task, payload)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
