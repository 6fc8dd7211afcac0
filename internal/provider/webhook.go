package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultWebhookTimeout = 10 * time.Second

// webhookBody is the canonical request body. Field order is fixed so the
// transmitted bytes match what the signature was computed over.
type webhookBody struct {
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
	Test      bool           `json:"test,omitempty"`
}

// WebhookSender delivers signed webhook calls to tenant endpoints.
type WebhookSender struct {
	client *resty.Client
	now    func() time.Time
}

var _ Sender = (*WebhookSender)(nil)

func NewWebhookSender() *WebhookSender {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return &WebhookSender{client: client, now: time.Now}
}

// NewWebhookSenderWithClient is used by tests to inject a configured client.
func NewWebhookSenderWithClient(client *resty.Client) (*WebhookSender, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookSender{client: client, now: time.Now}, nil
}

func (s *WebhookSender) Send(ctx context.Context, req DeliveryRequest) (*DeliveryResponse, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("sender is not initialized")
	}

	endpoint := strings.TrimSpace(req.URL)
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint url is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint url: %w", err)
	}
	if req.Secret == "" {
		return nil, fmt.Errorf("endpoint secret is required")
	}

	body, err := json.Marshal(webhookBody{
		Event:     req.EventType,
		Data:      req.Payload,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Test:      req.Test,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook body: %w", err)
	}

	r := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(SignatureHeader, Sign(body, req.Secret)).
		SetHeader(EventHeader, req.EventType).
		SetBody(body)
	if req.DeliveryID != "" {
		r.SetHeader(DeliveryHeader, req.DeliveryID)
	}
	if req.Test {
		r.SetHeader(TestHeader, "true")
	}

	response, err := r.Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	if response == nil {
		return nil, fmt.Errorf("webhook returned empty response")
	}

	return &DeliveryResponse{
		StatusCode: response.StatusCode(),
		Body:       strings.TrimSpace(response.String()),
	}, nil
}
