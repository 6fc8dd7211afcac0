package ratelimit

import "context"

// RateLimiter throttles outbound webhook deliveries per tenant.
type RateLimiter interface {
	Allow(ctx context.Context, tenant string) (bool, error)
	Wait(ctx context.Context, tenant string) error
}

// Unlimited performs no throttling. Used when no Redis backend is
// configured.
type Unlimited struct{}

func (Unlimited) Allow(ctx context.Context, tenant string) (bool, error) { return true, nil }
func (Unlimited) Wait(ctx context.Context, tenant string) error          { return nil }
