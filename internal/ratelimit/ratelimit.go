// Package ratelimit implements a keyed fixed-window request limiter backed
// by a shared counter store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/contactbook/apiserver/config"
)

// ErrStoreUnavailable is returned when the counter store cannot be reached.
// The limiter never decides fail-open vs fail-closed itself; the caller
// applies the configured policy.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Class groups routes that share a limit: auth endpoints, contact endpoints,
// and a catch-all.
type Class string

const (
	ClassAuth     Class = "auth"
	ClassContacts Class = "contacts"
	ClassDefault  Class = "default"
)

// Store is the shared counter store. Incr must be atomic: concurrent calls
// for the same key may never lose an update.
type Store interface {
	// Incr increments the counter for key, starting a new window of the
	// given length on the first increment, and returns the new count and
	// the time remaining until the window ends.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)

	// Reset clears the counter for key. Missing keys are a no-op.
	Reset(ctx context.Context, key string) error
}

// Rule is the limit for one route class over one window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Result is the outcome of a single check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the time until the current window ends. Set on
	// rejection so the caller can produce a Retry-After hint.
	RetryAfter time.Duration
}

// Limiter gates requests per (client identity, route class) pair.
type Limiter struct {
	store Store
	rules map[Class]Rule
}

// New constructs a Limiter with the per-class limit table from config.
// Classes without an explicit rule use the default rule.
func New(store Store, cfg config.RateLimitConfig) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		store: store,
		rules: map[Class]Rule{
			ClassAuth:     {Limit: cfg.AuthLimit, Window: window},
			ClassContacts: {Limit: cfg.ContactsLimit, Window: window},
			ClassDefault:  {Limit: cfg.DefaultLimit, Window: window},
		},
	}
}

// Check records one request for the identity/class pair and reports whether
// it is within the window's limit. Rejected requests still increment the
// counter, so sustained bursts keep being tracked.
func (l *Limiter) Check(ctx context.Context, identity string, class Class) (Result, error) {
	rule, ok := l.rules[class]
	if !ok {
		rule = l.rules[ClassDefault]
	}
	if rule.Limit <= 0 {
		return Result{Allowed: true, Limit: rule.Limit}, nil
	}

	count, ttl, err := l.store.Incr(ctx, l.key(identity, class), rule.Window)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	result := Result{
		Limit:      rule.Limit,
		Remaining:  rule.Limit - int(count),
		RetryAfter: ttl,
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	result.Allowed = count <= int64(rule.Limit)
	return result, nil
}

// Reset clears the counter for the identity/class pair. Safe to call when
// no window exists.
func (l *Limiter) Reset(ctx context.Context, identity string, class Class) error {
	if err := l.store.Reset(ctx, l.key(identity, class)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(identity string, class Class) string {
	return fmt.Sprintf("ratelimit:%s:%s", class, identity)
}
