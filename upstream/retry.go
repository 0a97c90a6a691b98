package upstream

import "time"

// RetryPolicy holds retry configuration for one upstream service.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts per call.
	MaxAttempts int

	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to the delay on each further retry.
	BackoffMultiplier float64

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy returns the standard policy: two attempts with a
// one-second first retry that doubles afterwards.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       2,
		BackoffBase:       1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
// The first retry waits BackoffBase, the second twice that, and so on.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= p.BackoffMultiplier
	}

	backoff := time.Duration(float64(p.BackoffBase) * multiplier)
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return backoff
}
