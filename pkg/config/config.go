package config

import (
	"fmt"
	"os"
	"time"

	"github.com/atelier-ai/atelier/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all Atelier configuration.
type Config struct {
	Listen     string             `yaml:"listen"`
	DBPath     string             `yaml:"db_path"`
	Classifier ClassifierConfig   `yaml:"classifier"`
	Breaker    BreakerConfig      `yaml:"breaker"`
	Cache      CacheConfig        `yaml:"cache"`
	Limits     LimitsConfig       `yaml:"limits"`
	Registry   RegistryConfig     `yaml:"registry"`
	Session    SessionConfig      `yaml:"session"`
	Audit      models.AuditConfig `yaml:"audit"`
}

// ClassifierConfig defines the remote LLM classifier dependency.
type ClassifierConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// BreakerConfig parameterizes the circuit breaker guarding the classifier.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	SuccessThreshold int           `yaml:"success_threshold"`
}

// CacheConfig controls the result caches. Each logical namespace carries its
// own TTL; a zero value falls back to TTL.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled"`
	TTL            time.Duration `yaml:"ttl"`
	Classification time.Duration `yaml:"classification_ttl"`
	Enhancement    time.Duration `yaml:"enhancement_ttl"`
	Params         time.Duration `yaml:"params_ttl"`
	Stats          time.Duration `yaml:"stats_ttl"`
	Sessions       time.Duration `yaml:"sessions_ttl"`
}

// LimitsConfig controls rate and cost limiting of the LLM path.
type LimitsConfig struct {
	Enabled  bool                 `yaml:"enabled"`
	Policies []models.LimitPolicy `yaml:"policies"`
}

// RegistryConfig lists downstream generation models and their parameters.
type RegistryConfig struct {
	Models []ModelEntry `yaml:"models"`
}

// ModelEntry defines one downstream generation model. PerType parameters
// override Defaults for a specific generation type.
type ModelEntry struct {
	Name     string                                        `yaml:"name"`
	Provider string                                        `yaml:"provider"`
	Defaults models.ParameterBag                           `yaml:"defaults"`
	PerType  map[models.GenerationType]models.ParameterBag `yaml:"per_type"`
}

// SessionConfig controls session detection.
type SessionConfig struct {
	GapTimeout time.Duration `yaml:"gap_timeout"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "atelier.db",
		Classifier: ClassifierConfig{
			Model:   "gemini-2.5-flash",
			Timeout: 10 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
			SuccessThreshold: 2,
		},
		Cache: CacheConfig{
			Enabled:        true,
			TTL:            time.Hour,
			Classification: time.Hour,
			Enhancement:    time.Hour,
			Params:         24 * time.Hour,
			Stats:          5 * time.Minute,
			Sessions:       30 * time.Minute,
		},
		Limits: LimitsConfig{
			Enabled: true,
			Policies: []models.LimitPolicy{
				{Scope: models.ScopeUser, MaxRequests: 60, MaxCost: 600, Window: time.Minute},
				{Scope: models.ScopeGlobal, MaxRequests: 600, MaxCost: 6000, Window: time.Minute},
			},
		},
		Session: SessionConfig{
			GapTimeout: 30 * time.Minute,
		},
		Audit: models.AuditConfig{
			Enabled:       true,
			RetentionDays: 30,
			Include:       []string{"reasoning"},
			MaxBodySize:   8192,
		},
	}
}

// NamespaceTTL returns the TTL for a named cache namespace, falling back to
// the catch-all TTL when the namespace has no explicit setting.
func (c CacheConfig) NamespaceTTL(namespace string) time.Duration {
	var ttl time.Duration
	switch namespace {
	case "classification":
		ttl = c.Classification
	case "enhancement":
		ttl = c.Enhancement
	case "params":
		ttl = c.Params
	case "stats":
		ttl = c.Stats
	case "sessions":
		ttl = c.Sessions
	}
	if ttl == 0 {
		ttl = c.TTL
	}
	return ttl
}

// Duration decodes YAML durations written as "30s" or "1h". Plain integers
// are taken as nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler so Timeout accepts "10s".
func (c *ClassifierConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		URL     string   `yaml:"url"`
		APIKey  string   `yaml:"api_key"`
		Model   string   `yaml:"model"`
		Timeout Duration `yaml:"timeout"`
	}
	r := raw{c.URL, c.APIKey, c.Model, Duration(c.Timeout)}
	if err := value.Decode(&r); err != nil {
		return err
	}
	*c = ClassifierConfig{r.URL, r.APIKey, r.Model, r.Timeout.Std()}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler so OpenTimeout accepts "30s".
func (b *BreakerConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		FailureThreshold int      `yaml:"failure_threshold"`
		OpenTimeout      Duration `yaml:"open_timeout"`
		SuccessThreshold int      `yaml:"success_threshold"`
	}
	r := raw{b.FailureThreshold, Duration(b.OpenTimeout), b.SuccessThreshold}
	if err := value.Decode(&r); err != nil {
		return err
	}
	*b = BreakerConfig{r.FailureThreshold, r.OpenTimeout.Std(), r.SuccessThreshold}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler so TTLs accept "1h".
func (c *CacheConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		Enabled        bool     `yaml:"enabled"`
		TTL            Duration `yaml:"ttl"`
		Classification Duration `yaml:"classification_ttl"`
		Enhancement    Duration `yaml:"enhancement_ttl"`
		Params         Duration `yaml:"params_ttl"`
		Stats          Duration `yaml:"stats_ttl"`
		Sessions       Duration `yaml:"sessions_ttl"`
	}
	r := raw{c.Enabled, Duration(c.TTL), Duration(c.Classification), Duration(c.Enhancement),
		Duration(c.Params), Duration(c.Stats), Duration(c.Sessions)}
	if err := value.Decode(&r); err != nil {
		return err
	}
	*c = CacheConfig{r.Enabled, r.TTL.Std(), r.Classification.Std(), r.Enhancement.Std(),
		r.Params.Std(), r.Stats.Std(), r.Sessions.Std()}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler so GapTimeout accepts "30m".
func (s *SessionConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		GapTimeout Duration `yaml:"gap_timeout"`
	}
	r := raw{Duration(s.GapTimeout)}
	if err := value.Decode(&r); err != nil {
		return err
	}
	s.GapTimeout = r.GapTimeout.Std()
	return nil
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
