package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Queue topology: one durable work queue consumed by worker processes, one
// deferred queue that dead-letters expired messages back into the work
// queue, and a dead-letter queue for rejected messages.
const (
	TaskQueueName     = "tasks"
	DeferredQueueName = "tasks.deferred"
	DLQName           = "dlq.tasks"
)

// TaskMessage is the broker payload for background task execution.
type TaskMessage struct {
	Task          string          `json:"task"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlationId,omitempty"`
	EnqueuedAt    time.Time       `json:"enqueuedAt"`
}

func (m TaskMessage) Validate() error {
	if strings.TrimSpace(m.Task) == "" {
		return fmt.Errorf("task name is required")
	}
	return nil
}

// Publisher publishes task messages to the broker.
type Publisher interface {
	// Publish enqueues a task for immediate execution.
	Publish(ctx context.Context, msg TaskMessage) error
	// PublishDeferred enqueues a task that becomes executable after delay.
	PublishDeferred(ctx context.Context, msg TaskMessage, delay time.Duration) error
	Close() error
}

// TaskHandler executes one consumed task message.
type TaskHandler func(ctx context.Context, msg TaskMessage) error

// Consumer consumes task messages from the work queue.
type Consumer interface {
	Consume(ctx context.Context, handler TaskHandler) error
	Close() error
}
