package blizzard

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitState is the process-wide request budget against the upstream
// API: a token bucket plus a cool-down window armed whenever the upstream
// answers 429. Safe for concurrent callers; one instance is shared by every
// realm capture. Reset on process restart.
type RateLimitState struct {
	limiter *rate.Limiter
	now     func() time.Time

	mu            sync.Mutex
	consumed      int64
	last429       time.Time
	cooldownUntil time.Time
}

// RateLimitSnapshot is a point-in-time copy of the limiter state, used by
// health reporting.
type RateLimitSnapshot struct {
	Consumed      int64     `json:"requests_consumed"`
	Last429       time.Time `json:"last_429,omitempty"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
}

// NewRateLimitState builds a limiter allowing rps requests per second with
// the given burst. Values at or below zero fall back to a conservative
// 10 rps / burst 10.
func NewRateLimitState(rps float64, burst int) *RateLimitState {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimitState{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		now:     time.Now,
	}
}

// Wait blocks until a token is available and any active cool-down has
// passed, or the context is done. Every successful wait consumes one token.
func (s *RateLimitState) Wait(ctx context.Context) error {
	if d := s.cooldownRemaining(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.consumed++
	s.mu.Unlock()
	return nil
}

// TryAcquire consumes a token without blocking. It reports false when the
// bucket is empty or a cool-down is active.
func (s *RateLimitState) TryAcquire() bool {
	if s.cooldownRemaining() > 0 {
		return false
	}
	if !s.limiter.Allow() {
		return false
	}
	s.mu.Lock()
	s.consumed++
	s.mu.Unlock()
	return true
}

// Record429 marks the bucket as exhausted upstream and arms a cool-down for
// retryAfter (or one second when no Retry-After hint was given).
func (s *RateLimitState) Record429(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last429 = s.now()
	if until := s.last429.Add(retryAfter); until.After(s.cooldownUntil) {
		s.cooldownUntil = until
	}
}

// Snapshot returns a copy of the current state.
func (s *RateLimitState) Snapshot() RateLimitSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RateLimitSnapshot{
		Consumed:      s.consumed,
		Last429:       s.last429,
		CooldownUntil: s.cooldownUntil,
	}
}

func (s *RateLimitState) cooldownRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cooldownUntil.Sub(s.now())
}
