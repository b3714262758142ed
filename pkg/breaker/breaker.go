// Package breaker provides a keyed circuit breaker for remote dependencies.
// Each named dependency owns one set of atomically mutated counters; callers
// share the breaker instance, never the counters directly.
package breaker

import (
	"fmt"
	"sync"
	"time"
)

// State is the breaker state for one dependency.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name for logs and dashboards.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// CircuitOpenError is returned when a call is short-circuited. RetryAfter
// is the remaining cooldown; zero means a half-open trial is already in
// flight and the caller lost the race.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit %q open, retry in %s", e.Name, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit %q half-open, trial in flight", e.Name)
}

// Config parameterizes a breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit.
	FailureThreshold int
	// OpenTimeout is the cooldown before a trial call is admitted.
	OpenTimeout time.Duration
	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the circuit again.
	SuccessThreshold int
}

// DefaultConfig returns the stock breaker parameters.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker guards calls to one named remote dependency.
type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	openedAt      time.Time
	trialInFlight bool
	lastErr       error
}

// New creates a Breaker for a named dependency. Zero config fields take
// their defaults.
func New(name string, cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Execute runs fn through the breaker. If the circuit is open the call is
// rejected immediately with a *CircuitOpenError and fn is never invoked.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// Do runs a result-returning fn through a breaker. Standalone function
// because Go has no generic methods.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	result, err := fn()
	b.record(err)
	return result, err
}

// allow decides whether a call may proceed, transitioning OPEN to HALF_OPEN
// when the cooldown has elapsed. In HALF_OPEN at most one trial is admitted
// at a time; everyone else is short-circuited.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.cfg.OpenTimeout {
			return &CircuitOpenError{Name: b.name, RetryAfter: b.cfg.OpenTimeout - elapsed}
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.trialInFlight = true
		return nil

	case StateHalfOpen:
		if b.trialInFlight {
			return &CircuitOpenError{Name: b.name}
		}
		b.trialInFlight = true
		return nil
	}

	return &CircuitOpenError{Name: b.name}
}

// record applies a call outcome to the breaker counters.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if err == nil {
			b.failures = 0
			return
		}
		b.failures++
		b.lastErr = err
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}

	case StateHalfOpen:
		b.trialInFlight = false
		if err != nil {
			b.state = StateOpen
			b.openedAt = b.now()
			b.successes = 0
			b.lastErr = err
			return
		}
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
			b.lastErr = nil
		}

	case StateOpen:
		// A call that was admitted before the circuit opened; its outcome
		// no longer changes the state.
	}
}

// Status is a point-in-time snapshot of a breaker for observability.
type Status struct {
	Name                 string    `json:"name"`
	State                string    `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	OpenedAt             time.Time `json:"opened_at,omitempty"`
	LastError            string    `json:"last_error,omitempty"`
}

// Snapshot returns the current breaker status.
func (b *Breaker) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Status{
		Name:                 b.name,
		State:                b.state.String(),
		ConsecutiveFailures:  b.failures,
		ConsecutiveSuccesses: b.successes,
		OpenedAt:             b.openedAt,
	}
	if b.lastErr != nil {
		st.LastError = b.lastErr.Error()
	}
	return st
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
