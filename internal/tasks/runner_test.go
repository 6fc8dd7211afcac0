package tasks

import (
	"context"
	"testing"
)

func TestRegistryRegisterAndResolve(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	called := false

	err := registry.Register(TaskWebhookDeliver, func(ctx context.Context, payload []byte) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	handler, err := registry.Resolve(TaskWebhookDeliver)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := handler(context.Background(), nil); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !called {
		t.Fatal("expected the registered handler to run")
	}
}

func TestRegistryRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	noop := func(ctx context.Context, payload []byte) error { return nil }

	if err := registry.Register(TaskWebhookDeliver, noop); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := registry.Register(TaskWebhookDeliver, noop); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegistryRejectsInvalidRegistrations(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	noop := func(ctx context.Context, payload []byte) error { return nil }

	if err := registry.Register("  ", noop); err == nil {
		t.Fatal("expected blank task name to fail")
	}
	if err := registry.Register(TaskSendTemplate, nil); err == nil {
		t.Fatal("expected nil handler to fail")
	}
}

func TestRegistryResolveUnknownTask(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	if _, err := registry.Resolve("nobody.home"); err == nil {
		t.Fatal("expected unknown task to fail resolution")
	}
}
