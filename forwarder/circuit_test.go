package forwarder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_DefaultsWhenZero(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(0, 0, 0)
	assert.Equal(t, CircuitClosed, cb.State())

	for i := 0; i < 4; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure()
	}
	assert.Equal(t, CircuitClosed, cb.State(), "default threshold is 5 failures")

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(2, 1, time.Hour)

	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())

	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	assert.False(t, cb.Allow(), "open circuit must reject before the recovery timeout")
}

func TestCircuitBreaker_SuccessResetsFailureCountWhileClosed(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(2, 1, time.Hour)

	cb.RecordFailure()
	require.Equal(t, CircuitClosed, cb.State())

	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State(), "a success while closed must reset the failure streak")
}

func TestCircuitBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(1, 1, 20*time.Millisecond)

	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.True(t, cb.Allow(), "a half-open circuit must allow a probe request")
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	require.True(t, cb.Allow())
	require.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State(), "a failed probe must reopen the circuit")
}

func TestCircuitBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	require.True(t, cb.Allow())
	require.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.State(), "needs successThreshold consecutive successes")

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreakers_PerDestination(t *testing.T) {
	t.Parallel()

	breakers := NewBreakers()

	a := breakers.For("https://a.example.com/hook")
	b := breakers.For("https://b.example.com/hook")
	assert.NotSame(t, a, b)

	again := breakers.For("https://a.example.com/hook")
	assert.Same(t, a, again, "the same destination must reuse its breaker")
}

func TestCircuitState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}
