package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rmupfumira/classup/internal/auth"
	"github.com/rmupfumira/classup/internal/domain"
	"github.com/rmupfumira/classup/internal/observability"
)

// EventDispatcher is the single entry point for publishing platform events.
// It resolves the audience once, then fans out to notifications and
// webhooks on independent paths: a failure on one never blocks the other.
type EventDispatcher struct {
	resolver      *RecipientResolver
	notifications *NotificationService
	webhooks      *WebhookService
	logger        *zap.Logger
	metrics       *observability.Metrics

	wg sync.WaitGroup
}

func NewEventDispatcher(
	resolver *RecipientResolver,
	notifications *NotificationService,
	webhooks *WebhookService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*EventDispatcher, error) {
	if resolver == nil {
		return nil, fmt.Errorf("recipient resolver is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	if webhooks == nil {
		return nil, fmt.Errorf("webhook service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventDispatcher{
		resolver:      resolver,
		notifications: notifications,
		webhooks:      webhooks,
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Publish validates and accepts an event for distribution. Validation and
// audience resolution happen synchronously so the caller learns about bad
// input; the fan-out itself runs in the background and its failures are
// logged, never surfaced to the publisher.
func (d *EventDispatcher) Publish(ctx context.Context, principal auth.Principal, event domain.Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapPublishEvents); err != nil {
		return err
	}
	if principal.TenantID != event.TenantID {
		return fmt.Errorf("%w: event tenant does not match caller tenant", domain.ErrForbidden)
	}
	if err := event.Validate(); err != nil {
		return err
	}

	recipients, dangling, err := d.resolver.Resolve(ctx, event.TenantID, event.Scope)
	if err != nil {
		return fmt.Errorf("failed to resolve recipients: %w", err)
	}
	if dangling {
		// Already logged by the resolver; the event reaches nobody in-app
		// but still goes out to webhook subscribers.
		recipients = nil
	}

	d.metrics.IncEventPublished(event.Type, event.Scope.Kind.String())
	observability.WithContextLogger(d.logger, ctx).Info("event published",
		zap.String("tenantId", event.TenantID.String()),
		zap.String("eventType", event.Type),
		zap.String("scope", event.Scope.Kind.String()),
		zap.Int("recipients", len(recipients)),
	)

	// Detached from the request context: fan-out outlives the publishing
	// request but keeps its values, so the correlation id installed by the
	// request middleware follows the work into logs and task messages.
	bgCtx := context.WithoutCancel(ctx)

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.notifications.Notify(bgCtx, event, recipients)
	}()
	go func() {
		defer d.wg.Done()
		d.webhooks.Dispatch(bgCtx, event)
	}()

	return nil
}

// Wait blocks until in-flight fan-outs finish. Called on shutdown.
func (d *EventDispatcher) Wait() {
	d.wg.Wait()
}
