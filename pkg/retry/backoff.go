package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy decides how long to wait before the next attempt.
type BackoffStrategy interface {
	// NextBackoff returns the delay before attempt+1, attempts are 1-based.
	NextBackoff(attempt int) time.Duration
}

// ConstantBackoff waits the same interval between attempts
type ConstantBackoff struct {
	Interval time.Duration
}

// NextBackoff returns the constant backoff interval
func (b *ConstantBackoff) NextBackoff(int) time.Duration {
	return b.Interval
}

// ExponentialBackoff grows the delay geometrically, with optional jitter
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// NextBackoff calculates the next exponentially increasing backoff duration with jitter
func (b *ExponentialBackoff) NextBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := float64(b.InitialInterval) * math.Pow(b.Multiplier, float64(attempt-1))

	if b.JitterFactor > 0 {
		backoff += rand.Float64() * b.JitterFactor * backoff
	}

	if b.MaxInterval > 0 && backoff > float64(b.MaxInterval) {
		backoff = float64(b.MaxInterval)
	}

	return time.Duration(backoff)
}

// NewDefaultExponentialBackoff is the policy used for broker publishes and mail delivery.
func NewDefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      1.5,
		JitterFactor:    0.2,
	}
}
