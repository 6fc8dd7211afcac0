package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/rmupfumira/classup/internal/observability"
	"github.com/rmupfumira/classup/internal/queue"
)

// QueueRunner submits tasks to the durable queue backend for asynchronous
// execution by worker processes.
type QueueRunner struct {
	publisher queue.Publisher
}

var _ Runner = (*QueueRunner)(nil)

func NewQueueRunner(publisher queue.Publisher) (*QueueRunner, error) {
	if publisher == nil {
		return nil, fmt.Errorf("queue publisher is required")
	}
	return &QueueRunner{publisher: publisher}, nil
}

func (r *QueueRunner) Submit(ctx context.Context, task string, payload []byte) error {
	if err := r.publisher.Publish(ctx, newTaskMessage(ctx, task, payload)); err != nil {
		return fmt.Errorf("failed to enqueue task %q: %w", task, err)
	}
	return nil
}

func (r *QueueRunner) SubmitIn(ctx context.Context, task string, payload []byte, delay time.Duration) error {
	if err := r.publisher.PublishDeferred(ctx, newTaskMessage(ctx, task, payload), delay); err != nil {
		return fmt.Errorf("failed to enqueue deferred task %q: %w", task, err)
	}
	return nil
}

// newTaskMessage carries the submitter's correlation id across the broker so
// worker-side log lines join the originating request's trail.
func newTaskMessage(ctx context.Context, task string, payload []byte) queue.TaskMessage {
	msg := queue.TaskMessage{Task: task, Payload: payload, EnqueuedAt: time.Now().UTC()}
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		msg.CorrelationID = correlationID
	}
	return msg
}
