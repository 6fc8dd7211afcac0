package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus represents the lifecycle state of a webhook delivery.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryPending, DeliveryDelivered, DeliveryFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the delivery will not be attempted again.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

// MaxDeliveryAttempts is the retry ceiling for a webhook delivery.
const MaxDeliveryAttempts = 3

// RetryDelays is the fixed backoff schedule. The delay after failed attempt
// n is RetryDelays[n-1], measured from that attempt, not from dispatch time.
// With the ceiling at 3 the scheduler only ever consults the first two gaps
// (the third failed attempt turns the delivery FAILED); the 30m entry keeps
// the published schedule intact and gives the clamp in RetryDelayAfter a
// defined answer if the ceiling is ever raised.
var RetryDelays = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
}

// RetryDelayAfter returns the delay before the next attempt given the number
// of attempts made so far.
func RetryDelayAfter(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > len(RetryDelays) {
		attempts = len(RetryDelays)
	}
	return RetryDelays[attempts-1]
}

// WebhookEndpoint is a tenant-registered receiver for platform events.
// Secret is used only to sign deliveries and is never transmitted.
type WebhookEndpoint struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	URL       string
	Secret    string
	Events    []string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *WebhookEndpoint) Validate() error {
	if e.TenantID == uuid.Nil {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	trimmed := strings.TrimSpace(e.URL)
	if trimmed == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return fmt.Errorf("%w: invalid url %q", ErrValidation, e.URL)
	}
	if len(e.Events) == 0 {
		return fmt.Errorf("%w: at least one subscribed event type is required", ErrValidation)
	}
	return nil
}

// SubscribesTo reports whether the endpoint wants the given event type.
func (e *WebhookEndpoint) SubscribesTo(eventType string) bool {
	for _, ev := range e.Events {
		if ev == eventType {
			return true
		}
	}
	return false
}

// WebhookDelivery is one logical delivery to one endpoint. It accumulates
// attempts in place until DELIVERED or the retry ceiling turns it FAILED.
type WebhookDelivery struct {
	ID            uuid.UUID
	EndpointID    uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        DeliveryStatus
	Attempts      int
	LastAttemptAt *time.Time
	NextAttemptAt *time.Time
	ResponseCode  *int
	ResponseBody  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
