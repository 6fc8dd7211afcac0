package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Task names known to the platform.
const (
	TaskWebhookDeliver = "webhook.deliver"
	TaskSendTemplate   = "sendTemplate"
)

// ErrInlineDeferUnsupported is a configuration error: inline mode cannot
// approximate deferrals beyond MaxInlineDefer, so retries needing real
// wall-clock delay require a durable queue backend.
var ErrInlineDeferUnsupported = errors.New("deferred execution beyond inline threshold requires a durable queue backend")

// MaxInlineDefer is the longest deferral inline mode will approximate by
// sleeping in the caller.
const MaxInlineDefer = 5 * time.Second

// Handler executes one task's logic.
type Handler func(ctx context.Context, payload []byte) error

// Runner submits named tasks for execution. Whether a submission runs
// inline or on a worker process is fixed once at startup; callers see one
// contract either way.
type Runner interface {
	Submit(ctx context.Context, task string, payload []byte) error
	SubmitIn(ctx context.Context, task string, payload []byte, delay time.Duration) error
}

// Registry maps task names to handlers. The same registry backs inline
// execution and the worker process's consumer.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(task string, h Handler) error {
	task = strings.TrimSpace(task)
	if task == "" {
		return fmt.Errorf("task name is required")
	}
	if h == nil {
		return fmt.Errorf("handler is required for task %q", task)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[task]; exists {
		return fmt.Errorf("task %q is already registered", task)
	}
	r.handlers[task] = h
	return nil
}

func (r *Registry) Resolve(task string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[task]
	if !ok {
		return nil, fmt.Errorf("no handler registered for task %q", task)
	}
	return h, nil
}
