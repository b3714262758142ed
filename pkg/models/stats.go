package models

import "time"

// RouteDecisionRecord tracks one routing decision for dashboards.
type RouteDecisionRecord struct {
	ID             int64          `json:"id"`
	UserID         string         `json:"user_id"`
	SessionID      string         `json:"session_id,omitempty"`
	GenerationType GenerationType `json:"generation_type"`
	Model          string         `json:"model"`
	Method         RouteMethod    `json:"method"`
	CacheHit       bool           `json:"cache_hit"`
	LatencyMs      int64          `json:"latency_ms"`
	CreatedAt      time.Time      `json:"created_at"`
}

// RouteSummary aggregates decisions by user, method and model.
type RouteSummary struct {
	UserID       string      `json:"user_id"`
	Method       RouteMethod `json:"method"`
	Model        string      `json:"model"`
	RequestCount int         `json:"request_count"`
	CacheHits    int         `json:"cache_hits"`
	AvgLatencyMs int64       `json:"avg_latency_ms"`
}

// Session groups a user's consecutive requests into one working session.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	RequestCount int       `json:"request_count"`
}
