package models

import "time"

// RouteRecord is a single audited routing decision: everything the
// success-rate dashboards need to reconstruct why a request went where it did.
type RouteRecord struct {
	RequestID      string         `json:"request_id"`
	UserID         string         `json:"user_id"`
	SessionID      string         `json:"session_id,omitempty"`
	Prompt         string         `json:"prompt,omitempty"`
	EnhancedPrompt string         `json:"enhanced_prompt,omitempty"`
	GenerationType GenerationType `json:"generation_type"`
	Model          string         `json:"model"`
	Provider       string         `json:"provider"`
	Method         RouteMethod    `json:"method"`
	Reasoning      string         `json:"reasoning,omitempty"`
	CacheHit       bool           `json:"cache_hit"`
	BreakerState   string         `json:"breaker_state"`
	LatencyMs      int64          `json:"latency_ms"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AuditConfig controls the route audit subsystem.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	RetentionDays int      `yaml:"retention_days"`
	Include       []string `yaml:"include"` // "prompts", "reasoning"
	MaxBodySize   int      `yaml:"max_body_size"` // bytes
}

// AuditQueryOpts specifies filters for querying route records.
type AuditQueryOpts struct {
	RequestID string
	UserID    string
	Method    RouteMethod
	Model     string
	Since     time.Time
	Limit     int
}

// AuditStat holds aggregate counts for a method/day combination.
type AuditStat struct {
	Method RouteMethod
	Day    string
	Count  int
}
