package ratelimit

import "context"

// RateLimiter paces outbound collector requests per scope (the collector
// host). Wait blocks until a request may be sent or ctx ends.
type RateLimiter interface {
	Wait(ctx context.Context, scope string) error
}
