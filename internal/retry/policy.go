// Package retry implements the engine's pure retry/backoff policy value.
package retry

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultCeiling is the default cap on retry delay.
const DefaultCeiling = 60 * time.Second

// Policy is the immutable `(max_attempts, base_delay, multiplier,
// jitter_fraction)` value. It is consulted by the Scheduler and never
// sleeps itself.
type Policy struct {
	MaxAttempts    int // total attempts = retries + 1
	BaseDelay      time.Duration
	Multiplier     float64
	JitterFraction float64
	Ceiling        time.Duration

	// rand is overridable in tests for deterministic jitter.
	rand func() float64
}

// New builds a Policy from a task's `retries` count and the given delay
// parameters; a non-positive ceiling falls back to DefaultCeiling.
func New(retries int, baseDelay time.Duration, multiplier, jitterFraction float64, ceiling time.Duration) Policy {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return Policy{
		MaxAttempts:    retries + 1,
		BaseDelay:      baseDelay,
		Multiplier:     multiplier,
		JitterFraction: jitterFraction,
		Ceiling:        ceiling,
	}
}

// Default is the engine-wide fallback policy used for every task when no
// policy override is configured: retries+1 attempts, a 1s base delay,
// multiplier 2, jitter fraction 0.1, and DefaultCeiling.
func Default(retries int) Policy {
	return New(retries, time.Second, 2.0, 0.1, DefaultCeiling)
}

// DelayForAttempt returns the delay to wait before starting attempt n
// (1-indexed, n>=2): `base_delay * multiplier^(n-2)` times a uniform
// random factor in `[1-jitter, 1+jitter]`, capped at Ceiling. Attempt 1
// has no delay.
//
// The exponential curve is produced by driving a backoff.ExponentialBackOff
// purely, with no sleep, then the jitter and cap are applied on top as this
// policy's own formula, since backoff.ExponentialBackOff's built-in jitter
// is not exposed in the shape the formula requires (it randomizes the
// *whole* interval, rather than multiplying the clean exponential value by
// a jitter factor).
func (p Policy) DelayForAttempt(n int) time.Duration {
	if n <= 1 {
		return 0
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = 0 // jitter applied explicitly below
	eb.MaxInterval = p.Ceiling // stepping is capped here too, so incrementCurrentInterval never collapses to zero
	eb.MaxElapsedTime = 0
	eb.Reset()

	// NextBackOff returns the *current* interval and only then advances it,
	// so the k-th call yields BaseDelay*Multiplier^(k-1). DelayForAttempt(n)
	// wants Multiplier^(n-2), i.e. the (n-1)-th call.
	var delay time.Duration
	for i := 0; i < n-1; i++ {
		next := eb.NextBackOff()
		if next == backoff.Stop {
			delay = p.Ceiling
			break
		}
		delay = next
	}

	jitter := p.jitterFactor()
	delay = time.Duration(float64(delay) * jitter)
	if delay > p.Ceiling {
		delay = p.Ceiling
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

func (p Policy) jitterFactor() float64 {
	r := rand.Float64
	if p.rand != nil {
		r = p.rand
	}
	if p.JitterFraction <= 0 {
		return 1
	}
	return 1 - p.JitterFraction + r()*2*p.JitterFraction
}

// HasRemainingAttempts reports whether attemptsUsed (already made,
// including the current failed one) leaves at least one more attempt
// under MaxAttempts.
func (p Policy) HasRemainingAttempts(attemptsUsed int) bool {
	return attemptsUsed < p.MaxAttempts
}
