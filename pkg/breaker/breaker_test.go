package breaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failed")

// newTestBreaker returns a breaker with a controllable clock.
func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	b := New("test", cfg)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Execute(func() error { return errUpstream })
	}
}

func TestStaysClosedBelowThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 5})

	failN(b, 4)
	assert.Equal(t, StateClosed, b.State())

	// A success resets the failure streak.
	require.NoError(t, b.Execute(func() error { return nil }))
	failN(b, 4)
	assert.Equal(t, StateClosed, b.State())
}

func TestOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 5})

	failN(b, 5)
	assert.Equal(t, StateOpen, b.State())

	// Calls are rejected without invoking fn.
	called := false
	err := b.Execute(func() error { called = true; return nil })
	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.False(t, called)
	assert.Greater(t, open.RetryAfter, time.Duration(0))
}

func TestHalfOpenAfterCooldown(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 3, OpenTimeout: 30 * time.Second, SuccessThreshold: 2})

	failN(b, 3)
	require.Equal(t, StateOpen, b.State())

	// Before the cooldown the circuit stays shut.
	*now = now.Add(29 * time.Second)
	err := b.Execute(func() error { return nil })
	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)

	// After the cooldown one trial is admitted.
	*now = now.Add(2 * time.Second)
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateHalfOpen, b.State())

	// Second consecutive success closes the circuit.
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 3, OpenTimeout: 30 * time.Second, SuccessThreshold: 2})

	failN(b, 3)
	*now = now.Add(31 * time.Second)

	// Trial fails: back to open with a fresh cooldown.
	_ = b.Execute(func() error { return errUpstream })
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(29 * time.Second)
	err := b.Execute(func() error { return nil })
	var open *CircuitOpenError
	require.ErrorAs(t, err, &open, "cooldown must restart from the half-open failure")
}

func TestHalfOpenAdmitsSingleTrial(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Second, SuccessThreshold: 2})

	failN(b, 1)
	*now = now.Add(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	// While the trial is in flight everyone else is short-circuited.
	err := b.Execute(func() error { return nil })
	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.Zero(t, open.RetryAfter)

	close(release)
	wg.Wait()
}

func TestDoGeneric(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2})

	got, err := Do(b, func() (string, error) { return "answer", nil })
	require.NoError(t, err)
	assert.Equal(t, "answer", got)

	failN(b, 2)
	got, err = Do(b, func() (string, error) { return "never", nil })
	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.Empty(t, got)
}

func TestSnapshot(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	failN(b, 2)
	st := b.Snapshot()
	assert.Equal(t, "test", st.Name)
	assert.Equal(t, "CLOSED", st.State)
	assert.Equal(t, 2, st.ConsecutiveFailures)
	assert.Equal(t, errUpstream.Error(), st.LastError)

	failN(b, 1)
	st = b.Snapshot()
	assert.Equal(t, "OPEN", st.State)
	assert.False(t, st.OpenedAt.IsZero())
}

func TestZeroConfigUsesDefaults(t *testing.T) {
	b := New("dep", Config{})
	assert.Equal(t, DefaultConfig().FailureThreshold, b.cfg.FailureThreshold)
	assert.Equal(t, DefaultConfig().OpenTimeout, b.cfg.OpenTimeout)
	assert.Equal(t, DefaultConfig().SuccessThreshold, b.cfg.SuccessThreshold)
}

func TestCircuitOpenErrorMessage(t *testing.T) {
	err := &CircuitOpenError{Name: "classifier", RetryAfter: 5 * time.Second}
	assert.Contains(t, err.Error(), "classifier")
	assert.Contains(t, err.Error(), "retry in")

	err = &CircuitOpenError{Name: "classifier"}
	assert.Contains(t, err.Error(), "trial in flight")
}
