package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmupfumira/classup/internal/auth"
	"github.com/rmupfumira/classup/internal/domain"
	"github.com/rmupfumira/classup/internal/realtime"
)

func newTestDispatcher(
	t *testing.T,
	directory *fakeDirectoryRepo,
	notifications *fakeNotificationRepo,
	endpoints *fakeEndpointRepo,
	deliveries *fakeDeliveryRepo,
) *EventDispatcher {
	t.Helper()

	resolver, err := NewRecipientResolver(directory, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRecipientResolver() error = %v", err)
	}

	notifSvc, err := NewNotificationService(notifications, directory,
		realtime.NewRegistry(nil, zap.NewNop()), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}

	webhookSvc, err := NewWebhookService(endpoints, deliveries, &fakeSender{}, &fakeRunner{}, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWebhookService() error = %v", err)
	}

	dispatcher, err := NewEventDispatcher(resolver, notifSvc, webhookSvc, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEventDispatcher() error = %v", err)
	}
	return dispatcher
}

func TestPublishFansOutToNotificationsAndWebhooks(t *testing.T) {
	t.Parallel()

	principal := auth.Principal{TenantID: uuid.New(), UserID: uuid.New(), Role: auth.RoleTeacher}
	recipients := []uuid.UUID{uuid.New(), uuid.New()}

	directory := &fakeDirectoryRepo{
		activeGuardianIDsFn: func(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
			return recipients, nil
		},
	}

	var mu sync.Mutex
	var notified []uuid.UUID
	notifications := &fakeNotificationRepo{
		createFn: func(ctx context.Context, n *domain.Notification) error {
			mu.Lock()
			defer mu.Unlock()
			notified = append(notified, n.UserID)
			return nil
		},
	}

	var deliveriesCreated int
	endpoints := &fakeEndpointRepo{
		listActiveForEventFn: func(ctx context.Context, tenantID uuid.UUID, eventType string) ([]domain.WebhookEndpoint, error) {
			return []domain.WebhookEndpoint{{ID: uuid.New(), TenantID: tenantID, IsActive: true}}, nil
		},
	}
	deliveryRepo := &fakeDeliveryRepo{
		createFn: func(ctx context.Context, d *domain.WebhookDelivery) error {
			mu.Lock()
			defer mu.Unlock()
			deliveriesCreated++
			return nil
		},
	}

	dispatcher := newTestDispatcher(t, directory, notifications, endpoints, deliveryRepo)

	event := validEvent(principal.TenantID)
	if err := dispatcher.Publish(context.Background(), principal, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	dispatcher.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(notified) != 2 {
		t.Fatalf("notified %d recipients, want 2", len(notified))
	}
	if deliveriesCreated != 1 {
		t.Fatalf("created %d webhook deliveries, want 1", deliveriesCreated)
	}
}

func TestPublishNotificationFailureDoesNotBlockWebhooks(t *testing.T) {
	t.Parallel()

	principal := auth.Principal{TenantID: uuid.New(), UserID: uuid.New(), Role: auth.RoleAdmin}

	directory := &fakeDirectoryRepo{
		activeGuardianIDsFn: func(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
			return []uuid.UUID{uuid.New()}, nil
		},
	}
	notifications := &fakeNotificationRepo{
		createFn: func(ctx context.Context, n *domain.Notification) error {
			return errors.New("insert failed")
		},
	}

	var mu sync.Mutex
	var deliveriesCreated int
	endpoints := &fakeEndpointRepo{
		listActiveForEventFn: func(ctx context.Context, tenantID uuid.UUID, eventType string) ([]domain.WebhookEndpoint, error) {
			return []domain.WebhookEndpoint{{ID: uuid.New(), TenantID: tenantID, IsActive: true}}, nil
		},
	}
	deliveryRepo := &fakeDeliveryRepo{
		createFn: func(ctx context.Context, d *domain.WebhookDelivery) error {
			mu.Lock()
			defer mu.Unlock()
			deliveriesCreated++
			return nil
		},
	}

	dispatcher := newTestDispatcher(t, directory, notifications, endpoints, deliveryRepo)

	if err := dispatcher.Publish(context.Background(), principal, validEvent(principal.TenantID)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	dispatcher.Wait()

	mu.Lock()
	defer mu.Unlock()
	if deliveriesCreated != 1 {
		t.Fatalf("created %d webhook deliveries, want 1", deliveriesCreated)
	}
}

func TestPublishDanglingScopeStillDispatchesWebhooks(t *testing.T) {
	t.Parallel()

	principal := auth.Principal{TenantID: uuid.New(), UserID: uuid.New(), Role: auth.RoleTeacher}

	directory := &fakeDirectoryRepo{
		classExistsFn: func(ctx context.Context, tenantID, classID uuid.UUID) (bool, error) {
			return false, nil
		},
	}

	var mu sync.Mutex
	var notificationsCreated, deliveriesCreated int
	notifications := &fakeNotificationRepo{
		createFn: func(ctx context.Context, n *domain.Notification) error {
			mu.Lock()
			defer mu.Unlock()
			notificationsCreated++
			return nil
		},
	}
	endpoints := &fakeEndpointRepo{
		listActiveForEventFn: func(ctx context.Context, tenantID uuid.UUID, eventType string) ([]domain.WebhookEndpoint, error) {
			return []domain.WebhookEndpoint{{ID: uuid.New(), TenantID: tenantID, IsActive: true}}, nil
		},
	}
	deliveryRepo := &fakeDeliveryRepo{
		createFn: func(ctx context.Context, d *domain.WebhookDelivery) error {
			mu.Lock()
			defer mu.Unlock()
			deliveriesCreated++
			return nil
		},
	}

	dispatcher := newTestDispatcher(t, directory, notifications, endpoints, deliveryRepo)

	event := validEvent(principal.TenantID)
	event.Scope = domain.Scope{Kind: domain.ScopeClass, ScopeID: uuid.New()}

	if err := dispatcher.Publish(context.Background(), principal, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	dispatcher.Wait()

	mu.Lock()
	defer mu.Unlock()
	if notificationsCreated != 0 {
		t.Fatalf("created %d notifications, want 0 for a dangling scope", notificationsCreated)
	}
	if deliveriesCreated != 1 {
		t.Fatalf("created %d webhook deliveries, want 1", deliveriesCreated)
	}
}

func TestPublishRejectsTenantMismatch(t *testing.T) {
	t.Parallel()

	principal := auth.Principal{TenantID: uuid.New(), UserID: uuid.New(), Role: auth.RoleAdmin}
	dispatcher := newTestDispatcher(t, &fakeDirectoryRepo{}, &fakeNotificationRepo{}, &fakeEndpointRepo{}, &fakeDeliveryRepo{})

	err := dispatcher.Publish(context.Background(), principal, validEvent(uuid.New()))
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("Publish() error = %v, want ErrForbidden", err)
	}
}

func TestPublishRejectsUnauthorizedRole(t *testing.T) {
	t.Parallel()

	principal := parentPrincipal()
	dispatcher := newTestDispatcher(t, &fakeDirectoryRepo{}, &fakeNotificationRepo{}, &fakeEndpointRepo{}, &fakeDeliveryRepo{})

	err := dispatcher.Publish(context.Background(), principal, validEvent(principal.TenantID))
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("Publish() error = %v, want ErrForbidden", err)
	}
}

func TestPublishRejectsInvalidEvent(t *testing.T) {
	t.Parallel()

	principal := adminPrincipal()
	dispatcher := newTestDispatcher(t, &fakeDirectoryRepo{}, &fakeNotificationRepo{}, &fakeEndpointRepo{}, &fakeDeliveryRepo{})

	event := validEvent(principal.TenantID)
	event.Title = ""

	err := dispatcher.Publish(context.Background(), principal, event)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Publish() error = %v, want ErrValidation", err)
	}
}
