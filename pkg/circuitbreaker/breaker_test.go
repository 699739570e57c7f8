package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(clock *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "khalti",
		FailureThreshold: 2,
		ResetTimeout:     10 * time.Second,
		HalfOpenMaxCalls: 1,
	})
	cb.now = func() time.Time { return *clock }
	cb.lastStateChange = *clock
	return cb
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	assert.True(t, cb.Allow())
	cb.Failure()
	assert.Equal(t, StateClosed, cb.GetState())

	cb.Failure()
	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.Allow())
	assert.EqualValues(t, 1, cb.GetMetrics()["rejected_calls"])
}

func TestCircuitBreaker_SuccessResetsFailureCountWhileClosed(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	cb.Failure()
	cb.Success()
	cb.Failure()

	assert.Equal(t, StateClosed, cb.GetState())
	assert.EqualValues(t, 1, cb.GetMetrics()["failure_count"])
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	cb.Failure()
	cb.Failure()
	assert.False(t, cb.Allow())

	clock = clock.Add(11 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.GetState())
	assert.False(t, cb.Allow(), "only one probe is allowed while half-open")

	cb.Success()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	cb.Failure()
	cb.Failure()
	clock = clock.Add(11 * time.Second)
	assert.True(t, cb.Allow())

	cb.Failure()
	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_ReleaseFreesProbe(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	cb.Failure()
	cb.Failure()
	clock = clock.Add(11 * time.Second)
	require.True(t, cb.Allow())

	cb.Release()
	assert.Equal(t, StateHalfOpen, cb.GetState())
	assert.True(t, cb.Allow(), "an abandoned probe does not block the next one")

	cb.Success()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	cb.Failure()
	cb.Failure()
	cb.Reset()

	assert.Equal(t, StateClosed, cb.GetState())
	assert.True(t, cb.Allow())
	assert.EqualValues(t, 0, cb.GetMetrics()["failure_count"])
	assert.Equal(t, "closed", cb.GetMetrics()["state"])
}
