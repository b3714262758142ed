package models

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LimitScope names the granularity a rate-limit policy applies at.
type LimitScope string

const (
	ScopeUser     LimitScope = "user"
	ScopeGlobal   LimitScope = "global"
	ScopeEndpoint LimitScope = "endpoint"
	ScopeAPIKey   LimitScope = "api_key"
)

// LimitPolicy caps request count and accumulated cost for one scope over a
// rolling window. A zero MaxRequests or MaxCost disables that quota type.
type LimitPolicy struct {
	Scope       LimitScope    `json:"scope" yaml:"scope"`
	MaxRequests int64         `json:"max_requests" yaml:"max_requests"`
	MaxCost     int64         `json:"max_cost" yaml:"max_cost"`
	Window      time.Duration `json:"window" yaml:"window"`
}

// UnmarshalYAML implements yaml.Unmarshaler so Window accepts "1m".
func (p *LimitPolicy) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		Scope       LimitScope `yaml:"scope"`
		MaxRequests int64      `yaml:"max_requests"`
		MaxCost     int64      `yaml:"max_cost"`
		Window      string     `yaml:"window"`
	}
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}
	p.Scope, p.MaxRequests, p.MaxCost = r.Scope, r.MaxRequests, r.MaxCost
	if r.Window != "" {
		w, err := time.ParseDuration(r.Window)
		if err != nil {
			return fmt.Errorf("invalid window %q: %w", r.Window, err)
		}
		p.Window = w
	}
	return nil
}

// LimitDecision is the outcome of a quota check.
type LimitDecision struct {
	Allowed    bool          `json:"allowed"`
	Scope      LimitScope    `json:"scope,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}
