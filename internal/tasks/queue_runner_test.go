package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rmupfumira/classup/internal/observability"
	"github.com/rmupfumira/classup/internal/queue"
)

func TestQueueRunnerSubmitPublishesTaskMessage(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	runner, err := NewQueueRunner(pub)
	if err != nil {
		t.Fatalf("NewQueueRunner() error = %v", err)
	}

	if err := runner.Submit(context.Background(), TaskWebhookDeliver, []byte(`{"deliveryId":"d"}`)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if len(pub.immediate) != 1 {
		t.Fatalf("expected 1 immediate publish, got %d", len(pub.immediate))
	}
	msg := pub.immediate[0]
	if msg.Task != TaskWebhookDeliver {
		t.Fatalf("Task = %q", msg.Task)
	}
	if string(msg.Payload) != `{"deliveryId":"d"}` {
		t.Fatalf("Payload = %s", msg.Payload)
	}
}

func TestQueueRunnerSubmitInPublishesDeferred(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	runner, err := NewQueueRunner(pub)
	if err != nil {
		t.Fatalf("NewQueueRunner() error = %v", err)
	}

	if err := runner.SubmitIn(context.Background(), TaskWebhookDeliver, nil, 5*time.Minute); err != nil {
		t.Fatalf("SubmitIn() error = %v", err)
	}

	if len(pub.deferred) != 1 {
		t.Fatalf("expected 1 deferred publish, got %d", len(pub.deferred))
	}
	if pub.deferred[0].delay != 5*time.Minute {
		t.Fatalf("delay = %s", pub.deferred[0].delay)
	}
}

func TestQueueRunnerCarriesCorrelationID(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	runner, err := NewQueueRunner(pub)
	if err != nil {
		t.Fatalf("NewQueueRunner() error = %v", err)
	}

	ctx := observability.WithCorrelationID(context.Background(), "req-7")
	if err := runner.Submit(ctx, TaskWebhookDeliver, nil); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := runner.SubmitIn(ctx, TaskWebhookDeliver, nil, time.Minute); err != nil {
		t.Fatalf("SubmitIn() error = %v", err)
	}

	if got := pub.immediate[0].CorrelationID; got != "req-7" {
		t.Fatalf("immediate CorrelationID = %q, want %q", got, "req-7")
	}
	if got := pub.deferred[0].msg.CorrelationID; got != "req-7" {
		t.Fatalf("deferred CorrelationID = %q, want %q", got, "req-7")
	}
	if pub.immediate[0].EnqueuedAt.IsZero() {
		t.Fatal("expected EnqueuedAt to be stamped")
	}

	if err := runner.Submit(context.Background(), TaskWebhookDeliver, nil); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got := pub.immediate[1].CorrelationID; got != "" {
		t.Fatalf("CorrelationID without request context = %q, want empty", got)
	}
}

func TestQueueRunnerWrapsPublishErrors(t *testing.T) {
	t.Parallel()

	brokerErr := errors.New("channel closed")
	pub := &fakePublisher{err: brokerErr}
	runner, err := NewQueueRunner(pub)
	if err != nil {
		t.Fatalf("NewQueueRunner() error = %v", err)
	}

	if err := runner.Submit(context.Background(), TaskWebhookDeliver, nil); !errors.Is(err, brokerErr) {
		t.Fatalf("Submit() error = %v, want wrapped broker error", err)
	}
	if err := runner.SubmitIn(context.Background(), TaskWebhookDeliver, nil, time.Minute); !errors.Is(err, brokerErr) {
		t.Fatalf("SubmitIn() error = %v, want wrapped broker error", err)
	}
}

func TestNewQueueRunnerRequiresPublisher(t *testing.T) {
	t.Parallel()

	if _, err := NewQueueRunner(nil); err == nil {
		t.Fatal("expected nil publisher to be rejected")
	}
}

type deferredPublish struct {
	msg   queue.TaskMessage
	delay time.Duration
}

type fakePublisher struct {
	immediate []queue.TaskMessage
	deferred  []deferredPublish
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, msg queue.TaskMessage) error {
	if p.err != nil {
		return p.err
	}
	p.immediate = append(p.immediate, msg)
	return nil
}

func (p *fakePublisher) PublishDeferred(_ context.Context, msg queue.TaskMessage, delay time.Duration) error {
	if p.err != nil {
		return p.err
	}
	p.deferred = append(p.deferred, deferredPublish{msg: msg, delay: delay})
	return nil
}

func (p *fakePublisher) Close() error { return nil }
