package provider

import (
	"context"
	"net/http"
)

// SignatureHeader carries the HMAC-SHA256 of the exact request body, hex
// encoded and prefixed with the algorithm, e.g. sha256=ab12...
const (
	SignatureHeader = "X-ClassUp-Signature"
	EventHeader     = "X-ClassUp-Event"
	DeliveryHeader  = "X-ClassUp-Delivery"
	TestHeader      = "X-ClassUp-Test"
)

// DeliveryRequest describes one outbound webhook call.
type DeliveryRequest struct {
	URL        string
	Secret     string
	EventType  string
	DeliveryID string
	Payload    map[string]any
	Test       bool
}

// DeliveryResponse stores call metadata for audit and persistence.
type DeliveryResponse struct {
	StatusCode int
	Body       string
}

// Success reports whether the receiver acknowledged the delivery. Any 2xx
// counts; everything else is a delivery failure subject to retry.
func (r *DeliveryResponse) Success() bool {
	return r != nil && r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Sender is the outbound webhook delivery port. A nil response with a
// non-nil error means the receiver was never reached (network error or
// timeout).
type Sender interface {
	Send(ctx context.Context, req DeliveryRequest) (*DeliveryResponse, error)
}
