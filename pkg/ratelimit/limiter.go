// Package ratelimit enforces request-count and accumulated-cost quotas per
// scope over rolling windows. It protects the paid LLM classification path
// only: a denial tells the caller to use the free rule-based fallback, it
// never fails the request.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atelier-ai/atelier/pkg/cache/sqlite"
	"github.com/atelier-ai/atelier/pkg/models"
)

// ErrRateLimited is returned by Consume when a quota is exhausted.
var ErrRateLimited = errors.New("rate limit exceeded")

// Store is the atomic counter backend. *sqlite.Cache satisfies it.
type Store interface {
	Increment(ctx context.Context, namespace, key string, amount int64, ttl time.Duration) (int64, error)
}

// Limiter checks quotas against a set of policies. Buckets are lazily
// created counter rows keyed by (scope, window index) and expire by TTL;
// increment-and-check is a single atomic operation in the store.
type Limiter struct {
	policies []models.LimitPolicy
	store    Store
	now      func() time.Time
}

// New creates a Limiter with the given policies and counter store.
func New(policies []models.LimitPolicy, store Store) *Limiter {
	return &Limiter{policies: policies, store: store, now: time.Now}
}

// CheckAndConsume consumes one request and the given cost from every
// applicable scope's current window, returning the first denial. Scopes maps
// a scope to its key value for this request (e.g. user → user ID). A counter
// store outage degrades to allow.
func (l *Limiter) CheckAndConsume(ctx context.Context, scopes map[models.LimitScope]string, cost int64) models.LimitDecision {
	for _, p := range l.policies {
		scopeKey, ok := scopes[p.Scope]
		if !ok || p.Window <= 0 {
			continue
		}

		now := l.now().UTC()
		windowSecs := int64(p.Window.Seconds())
		windowIdx := now.Unix() / windowSecs
		retryAfter := time.Duration((windowIdx+1)*windowSecs-now.Unix()) * time.Second
		bucket := fmt.Sprintf("%s:%s:%d", p.Scope, scopeKey, windowIdx)

		if p.MaxRequests > 0 {
			n, err := l.store.Increment(ctx, sqlite.NamespaceLimits, "req:"+bucket, 1, p.Window)
			if err == nil && n > p.MaxRequests {
				return models.LimitDecision{Scope: p.Scope, RetryAfter: retryAfter}
			}
		}

		if p.MaxCost > 0 && cost > 0 {
			total, err := l.store.Increment(ctx, sqlite.NamespaceLimits, "cost:"+bucket, cost, p.Window)
			if err == nil && total > p.MaxCost {
				return models.LimitDecision{Scope: p.Scope, RetryAfter: retryAfter}
			}
		}
	}

	return models.LimitDecision{Allowed: true}
}

// Consume is CheckAndConsume with an error result, for callers that thread
// denial through error paths.
func (l *Limiter) Consume(ctx context.Context, scopes map[models.LimitScope]string, cost int64) error {
	d := l.CheckAndConsume(ctx, scopes, cost)
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: scope %s, retry in %s", ErrRateLimited, d.Scope, d.RetryAfter.Round(time.Second))
}
