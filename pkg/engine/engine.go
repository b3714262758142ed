// Package engine orchestrates a routing request end to end: reference
// resolution, classification, model registry lookup, session detection, and
// the recording side effects.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-ai/atelier/pkg/audit"
	"github.com/atelier-ai/atelier/pkg/breaker"
	cachepkg "github.com/atelier-ai/atelier/pkg/cache/sqlite"
	"github.com/atelier-ai/atelier/pkg/classifier"
	"github.com/atelier-ai/atelier/pkg/config"
	"github.com/atelier-ai/atelier/pkg/models"
	"github.com/atelier-ai/atelier/pkg/refs"
	"github.com/atelier-ai/atelier/pkg/registry"
	"github.com/atelier-ai/atelier/pkg/tracker"
)

// ErrEmptyPrompt rejects requests with nothing to classify.
var ErrEmptyPrompt = errors.New("empty prompt")

// Deps carries the engine's collaborators. Tracker, Auditor and Cache may be
// nil; the engine then skips the corresponding side effect.
type Deps struct {
	Resolver   *refs.Resolver
	Classifier *classifier.Classifier
	Registry   *registry.Registry
	Breaker    *breaker.Breaker
	Tracker    tracker.Tracker
	Auditor    *audit.Logger
	Cache      *cachepkg.Cache
}

// Engine is the routing engine.
type Engine struct {
	cfg  *config.Config
	deps Deps
}

// New creates an Engine.
func New(cfg *config.Config, deps Deps) *Engine {
	return &Engine{cfg: cfg, deps: deps}
}

// Route classifies a request and returns a complete routing decision. The
// only error it returns is request validation; classification failures
// degrade to rule-based answers inside the classifier and still produce a
// usable route.
func (e *Engine) Route(ctx context.Context, req models.RouteRequest) (models.RouteResult, error) {
	if req.Prompt == "" {
		return models.RouteResult{}, ErrEmptyPrompt
	}

	start := time.Now()
	requestID := uuid.NewString()

	flags, references := e.deps.Resolver.Resolve(ctx, req)
	route, cacheHit := e.deps.Classifier.Classify(ctx, req.Prompt, flags, req.UserID, req.APIKey)

	if route.Provider == "" {
		route.Provider = e.deps.Registry.Provider(route.Model)
	}
	params, paramsHit := e.deps.Registry.ParamsFor(ctx, route.Model, route.GenerationType)

	breakerState := e.deps.Breaker.State().String()
	sessionID := e.resolveSession(ctx, req.UserID, req.SessionID)
	latency := time.Since(start).Milliseconds()

	e.record(req, route, requestID, sessionID, breakerState, cacheHit, latency)

	return models.RouteResult{
		RequestID:      requestID,
		SessionID:      sessionID,
		Route:          route,
		Params:         params,
		References:     references,
		CacheHit:       cacheHit,
		ParamsCacheHit: paramsHit,
		BreakerState:   breakerState,
		LatencyMs:      latency,
	}, nil
}

// resolveSession returns the session ID for the request. Lookups for
// implicit sessions are memoized so the hot path skips the tracker database;
// the memo TTL matches the session gap timeout, so an expired memo and an
// expired session coincide.
func (e *Engine) resolveSession(ctx context.Context, userID, explicitID string) string {
	if e.deps.Tracker == nil || userID == "" {
		return explicitID
	}

	gap := e.cfg.Session.GapTimeout
	if explicitID == "" && e.deps.Cache != nil {
		key := cachepkg.Key("session", userID)
		if data, ok := e.deps.Cache.Get(ctx, cachepkg.NamespaceSessions, key); ok {
			return string(data)
		}
		sid, err := e.deps.Tracker.ResolveSession(ctx, userID, "", gap)
		if err != nil {
			log.Printf("session resolve error: %v", err)
			return ""
		}
		_ = e.deps.Cache.Set(ctx, cachepkg.NamespaceSessions, key, []byte(sid), gap)
		return sid
	}

	sid, err := e.deps.Tracker.ResolveSession(ctx, userID, explicitID, gap)
	if err != nil {
		log.Printf("session resolve error: %v", err)
		return explicitID
	}
	return sid
}

// record stores the decision and audit entry off the request path.
func (e *Engine) record(req models.RouteRequest, route models.ModelRoute, requestID, sessionID, breakerState string, cacheHit bool, latency int64) {
	now := time.Now().UTC()

	if e.deps.Tracker != nil {
		rec := models.RouteDecisionRecord{
			UserID:         req.UserID,
			SessionID:      sessionID,
			GenerationType: route.GenerationType,
			Model:          route.Model,
			Method:         route.Method,
			CacheHit:       cacheHit,
			LatencyMs:      latency,
			CreatedAt:      now,
		}
		go func() {
			if err := e.deps.Tracker.Record(context.Background(), rec); err != nil {
				log.Printf("decision record error: %v", err)
			}
		}()
	}

	if e.deps.Auditor != nil {
		entry := models.RouteRecord{
			RequestID:      requestID,
			UserID:         req.UserID,
			SessionID:      sessionID,
			Prompt:         req.Prompt,
			EnhancedPrompt: route.EnhancedPrompt,
			GenerationType: route.GenerationType,
			Model:          route.Model,
			Provider:       route.Provider,
			Method:         route.Method,
			Reasoning:      route.Reasoning,
			CacheHit:       cacheHit,
			BreakerState:   breakerState,
			LatencyMs:      latency,
			CreatedAt:      now,
		}
		go func() {
			if err := e.deps.Auditor.Log(context.Background(), entry); err != nil {
				log.Printf("audit log error: %v", err)
			}
		}()
	}
}

// Stats returns the aggregated routing summary, memoized briefly so
// dashboard polling does not hammer the tracker database.
func (e *Engine) Stats(ctx context.Context, userID string) ([]models.RouteSummary, error) {
	if e.deps.Tracker == nil {
		return nil, nil
	}
	if e.deps.Cache == nil {
		return e.deps.Tracker.Summary(ctx, userID)
	}

	key := cachepkg.Key("summary", userID)
	ttl := e.cfg.Cache.NamespaceTTL(cachepkg.NamespaceStats)
	data, _, err := e.deps.Cache.GetOrCompute(ctx, cachepkg.NamespaceStats, key, ttl, func() ([]byte, error) {
		summaries, err := e.deps.Tracker.Summary(ctx, userID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(summaries)
	})
	if err != nil {
		return nil, err
	}

	var summaries []models.RouteSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// BreakerStatus exposes the classifier breaker snapshot.
func (e *Engine) BreakerStatus() breaker.Status {
	return e.deps.Breaker.Snapshot()
}
