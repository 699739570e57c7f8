package circuitbreaker

import (
	"sync"
	"sync/atomic"
	"time"
)

// State represents the state of the circuit breaker
type State int

const (
	StateClosed   State = iota // requests flow
	StateHalfOpen              // probing a recovering dependency
	StateOpen                  // requests rejected
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards calls to a flaky remote dependency.
type CircuitBreaker struct {
	name             string
	state            int32
	failureThreshold int64
	resetTimeout     time.Duration
	halfOpenMaxCalls int64
	failureCount     int64
	halfOpenCalls    int64
	rejected         int64
	lastStateChange  time.Time
	mutex            sync.RWMutex
	now              func() time.Time
}

// CircuitBreakerConfig configures a CircuitBreaker
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int64
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int64
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 1
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}

	return &CircuitBreaker{
		name:             config.Name,
		state:            int32(StateClosed),
		failureThreshold: config.FailureThreshold,
		resetTimeout:     config.ResetTimeout,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
		lastStateChange:  time.Now(),
		now:              time.Now,
	}
}

// Name returns the name given at construction.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Allow checks if a request is allowed based on the circuit breaker state
func (cb *CircuitBreaker) Allow() bool {
	switch State(atomic.LoadInt32(&cb.state)) {
	case StateClosed:
		return true
	case StateOpen:
		cb.mutex.RLock()
		elapsed := cb.now().Sub(cb.lastStateChange)
		cb.mutex.RUnlock()

		if elapsed < cb.resetTimeout {
			atomic.AddInt64(&cb.rejected, 1)
			return false
		}

		if atomic.CompareAndSwapInt32(&cb.state, int32(StateOpen), int32(StateHalfOpen)) {
			cb.setChanged()
			atomic.StoreInt64(&cb.halfOpenCalls, 0)
		}
		return cb.Allow()
	case StateHalfOpen:
		if atomic.AddInt64(&cb.halfOpenCalls, 1) <= cb.halfOpenMaxCalls {
			return true
		}
		atomic.AddInt64(&cb.rejected, 1)
		return false
	default:
		return false
	}
}

// Success reports a successful operation
func (cb *CircuitBreaker) Success() {
	switch State(atomic.LoadInt32(&cb.state)) {
	case StateHalfOpen:
		if atomic.CompareAndSwapInt32(&cb.state, int32(StateHalfOpen), int32(StateClosed)) {
			cb.setChanged()
			atomic.StoreInt64(&cb.failureCount, 0)
		}
	case StateClosed:
		atomic.StoreInt64(&cb.failureCount, 0)
	}
}

// Failure reports a failed operation
func (cb *CircuitBreaker) Failure() {
	switch State(atomic.LoadInt32(&cb.state)) {
	case StateClosed:
		if atomic.AddInt64(&cb.failureCount, 1) >= cb.failureThreshold {
			if atomic.CompareAndSwapInt32(&cb.state, int32(StateClosed), int32(StateOpen)) {
				cb.setChanged()
			}
		}
	case StateHalfOpen:
		if atomic.CompareAndSwapInt32(&cb.state, int32(StateHalfOpen), int32(StateOpen)) {
			cb.setChanged()
		}
	}
}

// Release gives back a call that ended without a verdict, such as one the
// caller abandoned. It frees the half-open probe slot the call held.
func (cb *CircuitBreaker) Release() {
	if State(atomic.LoadInt32(&cb.state)) == StateHalfOpen {
		if atomic.AddInt64(&cb.halfOpenCalls, -1) < 0 {
			atomic.StoreInt64(&cb.halfOpenCalls, 0)
		}
	}
}

// Reset forces the breaker back to closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	atomic.StoreInt32(&cb.state, int32(StateClosed))
	atomic.StoreInt64(&cb.failureCount, 0)
	atomic.StoreInt64(&cb.halfOpenCalls, 0)
	atomic.StoreInt64(&cb.rejected, 0)
	cb.setChanged()
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	return State(atomic.LoadInt32(&cb.state))
}

// GetMetrics returns metrics about the circuit breaker
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mutex.RLock()
	lastChange := cb.lastStateChange
	cb.mutex.RUnlock()

	return map[string]interface{}{
		"name":              cb.name,
		"state":             cb.GetState().String(),
		"failure_count":     atomic.LoadInt64(&cb.failureCount),
		"failure_threshold": cb.failureThreshold,
		"half_open_calls":   atomic.LoadInt64(&cb.halfOpenCalls),
		"rejected_calls":    atomic.LoadInt64(&cb.rejected),
		"reset_timeout":     cb.resetTimeout.String(),
		"last_state_change": lastChange,
		"time_in_state":     cb.now().Sub(lastChange).String(),
	}
}

func (cb *CircuitBreaker) setChanged() {
	cb.mutex.Lock()
	cb.lastStateChange = cb.now()
	cb.mutex.Unlock()
}
