// Package ratelimit provides in-memory token bucket rate limiting for the
// kernel's loopback HTTP surface.
//
// The kernel service is a single-process, single-user daemon: there is no
// second instance to share limiter state with, so a Redis-backed sliding
// window (as a multi-tenant API server would use) has nothing to
// coordinate across. A token bucket keyed by source (the calling hook's
// X-Cynic-Source header, or "default" when it is absent) is sufficient to absorb a
// runaway PostToolUse storm without dropping isolated requests.
package ratelimit

import (
	"context"
	"time"
)

// Rule defines a rate limit: sustained rate and burst capacity.
type Rule struct {
	Name  string  // identifies the rule in logs, e.g. "perceive".
	RPS   float64 // sustained requests per second per key.
	Burst int     // maximum burst size (token bucket capacity).
}

// Result holds the outcome of a rate limit check.
type Result struct {
	Allowed bool
	Limit   int
	ResetAt time.Time
}

// Limiter is the interface Middleware enforces against. MemoryLimiter is
// the production implementation; NoopLimiter disables rate limiting
// entirely for configurations that want the middleware wired but
// inactive (e.g. tests).
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// NoopLimiter always allows. It satisfies Limiter without tracking any
// state.
type NoopLimiter struct{}

func (NoopLimiter) Allow(_ context.Context, _ string) (bool, error) { return true, nil }
func (NoopLimiter) Close() error                                    { return nil }
