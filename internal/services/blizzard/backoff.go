package blizzard

import "time"

// retryPolicy drives the retry loop for transient upstream failures.
// Delay computation is a pure function of the attempt number so it can be
// tested without sleeping.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts: 5,
		baseDelay:   time.Second,
		maxDelay:    60 * time.Second,
	}
}

// nextDelay returns the wait before retry number attempt (0-based):
// baseDelay doubled per attempt, capped at maxDelay.
func (p retryPolicy) nextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			return p.maxDelay
		}
	}
	if delay > p.maxDelay {
		return p.maxDelay
	}
	return delay
}
