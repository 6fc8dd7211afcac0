package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmupfumira/classup/internal/auth"
	"github.com/rmupfumira/classup/internal/domain"
	"github.com/rmupfumira/classup/internal/observability"
	"github.com/rmupfumira/classup/internal/provider"
	"github.com/rmupfumira/classup/internal/ratelimit"
	"github.com/rmupfumira/classup/internal/repository"
	"github.com/rmupfumira/classup/internal/tasks"
)

// maxStoredResponseBytes bounds the receiver response body persisted per
// attempt.
const maxStoredResponseBytes = 1000

// DeliverTaskPayload is the task payload for one webhook delivery attempt.
type DeliverTaskPayload struct {
	DeliveryID uuid.UUID `json:"deliveryId"`
}

// WebhookService manages tenant webhook endpoints and runs the delivery
// state machine. Attempts execute as background tasks; the service is both
// the API-side dispatcher and the worker-side executor.
type WebhookService struct {
	endpoints  repository.WebhookEndpointRepository
	deliveries repository.WebhookDeliveryRepository
	sender     provider.Sender
	runner     tasks.Runner
	limiter    ratelimit.RateLimiter
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewWebhookService(
	endpoints repository.WebhookEndpointRepository,
	deliveries repository.WebhookDeliveryRepository,
	sender provider.Sender,
	runner tasks.Runner,
	limiter ratelimit.RateLimiter,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*WebhookService, error) {
	if endpoints == nil {
		return nil, fmt.Errorf("endpoint repository is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("task runner is required")
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookService{
		endpoints:  endpoints,
		deliveries: deliveries,
		sender:     sender,
		runner:     runner,
		limiter:    limiter,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}, nil
}

// CreateEndpoint registers a webhook receiver for a tenant. The signing
// secret is generated server side and returned once, on creation.
func (s *WebhookService) CreateEndpoint(
	ctx context.Context,
	principal auth.Principal,
	url string,
	events []string,
) (*domain.WebhookEndpoint, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapManageWebhooks); err != nil {
		return nil, err
	}

	secret, err := provider.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing secret: %w", err)
	}

	endpoint := &domain.WebhookEndpoint{
		ID:       uuid.New(),
		TenantID: principal.TenantID,
		URL:      url,
		Secret:   secret,
		Events:   events,
		IsActive: true,
	}
	if err := endpoint.Validate(); err != nil {
		return nil, err
	}

	if err := s.endpoints.Create(ctx, endpoint); err != nil {
		return nil, fmt.Errorf("failed to create endpoint: %w", err)
	}

	observability.WithContextLogger(s.logger, ctx).Info("webhook endpoint created",
		zap.String("tenantId", principal.TenantID.String()),
		zap.String("endpointId", endpoint.ID.String()),
		zap.Strings("events", endpoint.Events),
	)
	return endpoint, nil
}

// EndpointUpdate carries the mutable endpoint fields; nil means unchanged.
type EndpointUpdate struct {
	URL      *string
	Events   []string
	IsActive *bool
}

func (s *WebhookService) UpdateEndpoint(
	ctx context.Context,
	principal auth.Principal,
	endpointID uuid.UUID,
	update EndpointUpdate,
) (*domain.WebhookEndpoint, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapManageWebhooks); err != nil {
		return nil, err
	}

	endpoint, err := s.endpoints.GetByID(ctx, principal.TenantID, endpointID)
	if err != nil {
		return nil, err
	}

	if update.URL != nil {
		endpoint.URL = *update.URL
	}
	if update.Events != nil {
		endpoint.Events = update.Events
	}
	if update.IsActive != nil {
		endpoint.IsActive = *update.IsActive
	}
	if err := endpoint.Validate(); err != nil {
		return nil, err
	}

	if err := s.endpoints.Update(ctx, endpoint); err != nil {
		return nil, fmt.Errorf("failed to update endpoint: %w", err)
	}
	return endpoint, nil
}

func (s *WebhookService) DeleteEndpoint(ctx context.Context, principal auth.Principal, endpointID uuid.UUID) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapManageWebhooks); err != nil {
		return err
	}
	return s.endpoints.Delete(ctx, principal.TenantID, endpointID)
}

func (s *WebhookService) GetEndpoint(
	ctx context.Context,
	principal auth.Principal,
	endpointID uuid.UUID,
) (*domain.WebhookEndpoint, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapManageWebhooks); err != nil {
		return nil, err
	}
	return s.endpoints.GetByID(ctx, principal.TenantID, endpointID)
}

func (s *WebhookService) ListEndpoints(ctx context.Context, principal auth.Principal) ([]domain.WebhookEndpoint, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapManageWebhooks); err != nil {
		return nil, err
	}
	return s.endpoints.ListByTenant(ctx, principal.TenantID)
}

func (s *WebhookService) ListDeliveries(
	ctx context.Context,
	principal auth.Principal,
	endpointID uuid.UUID,
	limit int,
) ([]domain.WebhookDelivery, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapManageWebhooks); err != nil {
		return nil, err
	}

	// Ownership check before reading delivery history.
	if _, err := s.endpoints.GetByID(ctx, principal.TenantID, endpointID); err != nil {
		return nil, err
	}
	return s.deliveries.ListByEndpoint(ctx, endpointID, limit)
}

// TestResult is the synchronous outcome of a test delivery.
type TestResult struct {
	Success      bool
	StatusCode   int
	ResponseBody string
	Error        string
}

// TestEndpoint sends a signed test payload synchronously. No delivery
// record is created and nothing is retried; the caller sees the raw
// outcome.
func (s *WebhookService) TestEndpoint(
	ctx context.Context,
	principal auth.Principal,
	endpointID uuid.UUID,
	eventType string,
) (*TestResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapManageWebhooks); err != nil {
		return nil, err
	}

	endpoint, err := s.endpoints.GetByID(ctx, principal.TenantID, endpointID)
	if err != nil {
		return nil, err
	}
	if eventType == "" {
		eventType = domain.EventStudentCreated
	}

	resp, err := s.sender.Send(ctx, provider.DeliveryRequest{
		URL:        endpoint.URL,
		Secret:     endpoint.Secret,
		EventType:  eventType,
		DeliveryID: uuid.NewString(),
		Payload:    map[string]any{"test": true},
		Test:       true,
	})
	if err != nil {
		return &TestResult{Success: false, Error: err.Error()}, nil
	}

	return &TestResult{
		Success:      resp.Success(),
		StatusCode:   resp.StatusCode,
		ResponseBody: truncateResponse(resp.Body),
	}, nil
}

// Dispatch creates one PENDING delivery per active endpoint subscribed to
// the event type and submits an execution task for each. Submission
// failures leave the delivery due immediately so the retry scanner can
// rescue it.
func (s *WebhookService) Dispatch(ctx context.Context, event domain.Event) int {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.WithContextLogger(s.logger, ctx)

	endpoints, err := s.endpoints.ListActiveForEvent(ctx, event.TenantID, event.Type)
	if err != nil {
		logger.Error("failed to list endpoints for event",
			zap.String("tenantId", event.TenantID.String()),
			zap.String("eventType", event.Type),
			zap.Error(err),
		)
		return 0
	}

	dispatched := 0
	for i := range endpoints {
		delivery := &domain.WebhookDelivery{
			ID:         uuid.New(),
			EndpointID: endpoints[i].ID,
			EventType:  event.Type,
			Payload:    event.Payload,
			Status:     domain.DeliveryPending,
		}
		if err := s.deliveries.Create(ctx, delivery); err != nil {
			logger.Error("failed to create webhook delivery",
				zap.String("endpointId", endpoints[i].ID.String()),
				zap.String("eventType", event.Type),
				zap.Error(err),
			)
			continue
		}
		dispatched++

		s.submitDelivery(ctx, delivery, 0)
	}

	return dispatched
}

// submitDelivery hands a delivery attempt to the task runner, immediately
// or after delay. On submission failure the delivery is marked due now so
// the retry scanner picks it up.
func (s *WebhookService) submitDelivery(ctx context.Context, delivery *domain.WebhookDelivery, delay time.Duration) {
	logger := observability.WithContextLogger(s.logger, ctx)

	payload, err := json.Marshal(DeliverTaskPayload{DeliveryID: delivery.ID})
	if err != nil {
		logger.Error("failed to encode delivery task payload",
			zap.String("deliveryId", delivery.ID.String()),
			zap.Error(err),
		)
		return
	}

	if delay > 0 {
		err = s.runner.SubmitIn(ctx, tasks.TaskWebhookDeliver, payload, delay)
	} else {
		err = s.runner.Submit(ctx, tasks.TaskWebhookDeliver, payload)
	}
	if err == nil {
		if delay > 0 {
			// The queued message owns the schedule now; clearing the
			// timestamp keeps the retry scanner from double-firing.
			if clearErr := s.deliveries.ClearNextAttemptAt(ctx, delivery.ID); clearErr != nil {
				logger.Warn("failed to clear retry timestamp",
					zap.String("deliveryId", delivery.ID.String()),
					zap.Error(clearErr),
				)
			}
		}
		return
	}

	if errors.Is(err, tasks.ErrInlineDeferUnsupported) {
		// NextAttemptAt already persisted; the scanner delivers it when due.
		logger.Debug("deferred attempt left to retry scanner",
			zap.String("deliveryId", delivery.ID.String()),
			zap.Duration("delay", delay),
		)
		return
	}

	logger.Error("failed to submit delivery task",
		zap.String("deliveryId", delivery.ID.String()),
		zap.Error(err),
	)
	now := s.now().UTC()
	delivery.NextAttemptAt = &now
	if recErr := s.deliveries.RecordAttempt(ctx, delivery); recErr != nil {
		logger.Error("failed to mark delivery due for rescue",
			zap.String("deliveryId", delivery.ID.String()),
			zap.Error(recErr),
		)
	}
}

// ExecuteDelivery runs one delivery attempt: rate limit, send, record
// outcome, and schedule the next attempt if one remains. It is the handler
// behind the webhook delivery task.
func (s *WebhookService) ExecuteDelivery(ctx context.Context, deliveryID uuid.UUID) error {
	if ctx == nil {
		ctx = context.Background()
	}

	delivery, err := s.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return fmt.Errorf("failed to load delivery %s: %w", deliveryID, err)
	}
	if delivery.Status.IsTerminal() {
		// Duplicate task execution; the first one already settled it.
		return nil
	}

	endpoint, err := s.endpoints.Get(ctx, delivery.EndpointID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.settleWithoutAttempt(ctx, delivery, "endpoint deleted")
		}
		return fmt.Errorf("failed to load endpoint %s: %w", delivery.EndpointID, err)
	}
	if !endpoint.IsActive {
		return s.settleWithoutAttempt(ctx, delivery, "endpoint disabled")
	}

	if err := s.limiter.Wait(ctx, endpoint.TenantID.String()); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	start := s.now()
	resp, sendErr := s.sender.Send(ctx, provider.DeliveryRequest{
		URL:        endpoint.URL,
		Secret:     endpoint.Secret,
		EventType:  delivery.EventType,
		DeliveryID: delivery.ID.String(),
		Payload:    delivery.Payload,
	})
	s.metrics.ObserveWebhookSendDuration(s.now().Sub(start))

	attemptAt := s.now().UTC()
	delivery.Attempts++
	delivery.LastAttemptAt = &attemptAt
	delivery.NextAttemptAt = nil
	delivery.ResponseCode = nil
	delivery.ResponseBody = nil

	switch {
	case sendErr != nil:
		body := truncateResponse(sendErr.Error())
		delivery.ResponseBody = &body
		s.scheduleOrFail(ctx, delivery, attemptAt)

	case resp.Success():
		delivery.Status = domain.DeliveryDelivered
		code := resp.StatusCode
		body := truncateResponse(resp.Body)
		delivery.ResponseCode = &code
		delivery.ResponseBody = &body
		s.metrics.IncWebhookDelivery("delivered")
		observability.WithContextLogger(s.logger, ctx).Info("webhook delivered",
			zap.String("deliveryId", delivery.ID.String()),
			zap.String("endpointId", endpoint.ID.String()),
			zap.Int("status", resp.StatusCode),
			zap.Int("attempts", delivery.Attempts),
		)

	default:
		code := resp.StatusCode
		body := truncateResponse(resp.Body)
		delivery.ResponseCode = &code
		delivery.ResponseBody = &body
		s.scheduleOrFail(ctx, delivery, attemptAt)
	}

	if err := s.deliveries.RecordAttempt(ctx, delivery); err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}

	if delivery.Status == domain.DeliveryPending && delivery.NextAttemptAt != nil {
		s.submitDelivery(ctx, delivery, delivery.NextAttemptAt.Sub(attemptAt))
	}
	return nil
}

// scheduleOrFail applies the retry policy after a failed attempt: schedule
// the next attempt on the fixed backoff schedule, or mark the delivery
// FAILED once the ceiling is reached. Receiver 4xx and 5xx are treated the
// same; only a 2xx settles a delivery.
func (s *WebhookService) scheduleOrFail(ctx context.Context, delivery *domain.WebhookDelivery, attemptAt time.Time) {
	logger := observability.WithContextLogger(s.logger, ctx)

	if delivery.Attempts >= domain.MaxDeliveryAttempts {
		delivery.Status = domain.DeliveryFailed
		s.metrics.IncWebhookDelivery("failed")
		logger.Warn("webhook delivery failed permanently",
			zap.String("deliveryId", delivery.ID.String()),
			zap.Int("attempts", delivery.Attempts),
		)
		return
	}

	next := attemptAt.Add(domain.RetryDelayAfter(delivery.Attempts))
	delivery.NextAttemptAt = &next
	s.metrics.IncWebhookDelivery("retry_scheduled")
	s.metrics.IncRetryScheduled()
	logger.Info("webhook delivery retry scheduled",
		zap.String("deliveryId", delivery.ID.String()),
		zap.Int("attempts", delivery.Attempts),
		zap.Time("nextAttemptAt", next),
	)
}

// settleWithoutAttempt fails a delivery whose endpoint can no longer
// receive it. No attempt is counted; the reason is stored in place of a
// response body.
func (s *WebhookService) settleWithoutAttempt(ctx context.Context, delivery *domain.WebhookDelivery, reason string) error {
	delivery.Status = domain.DeliveryFailed
	delivery.NextAttemptAt = nil
	delivery.ResponseBody = &reason
	s.metrics.IncWebhookDelivery("abandoned")

	if err := s.deliveries.RecordAttempt(ctx, delivery); err != nil {
		return fmt.Errorf("failed to settle delivery %s: %w", delivery.ID, err)
	}
	return nil
}

// RetryDelivery re-queues a FAILED delivery on operator request. The
// attempt counter keeps its history; only the status resets.
func (s *WebhookService) RetryDelivery(ctx context.Context, principal auth.Principal, deliveryID uuid.UUID) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapManageWebhooks); err != nil {
		return err
	}

	delivery, err := s.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return err
	}
	// Ownership check through the endpoint.
	if _, err := s.endpoints.GetByID(ctx, principal.TenantID, delivery.EndpointID); err != nil {
		return err
	}

	if err := s.deliveries.MarkPendingForRetry(ctx, deliveryID); err != nil {
		return err
	}
	delivery.Status = domain.DeliveryPending
	delivery.NextAttemptAt = nil

	s.submitDelivery(ctx, delivery, 0)
	return nil
}

// DeliverTaskHandler adapts ExecuteDelivery to the task handler contract.
func (s *WebhookService) DeliverTaskHandler() tasks.Handler {
	return func(ctx context.Context, payload []byte) error {
		var p DeliverTaskPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("invalid delivery task payload: %w", err)
		}
		if p.DeliveryID == uuid.Nil {
			return fmt.Errorf("delivery task payload missing delivery id")
		}
		return s.ExecuteDelivery(ctx, p.DeliveryID)
	}
}

func truncateResponse(body string) string {
	if len(body) <= maxStoredResponseBytes {
		return body
	}
	return body[:maxStoredResponseBytes]
}
