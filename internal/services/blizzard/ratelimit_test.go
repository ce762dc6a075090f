package blizzard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireRespectsBurst(t *testing.T) {
	s := NewRateLimitState(1, 3)

	// Burst tokens drain without blocking; the fourth request must wait.
	assert.True(t, s.TryAcquire())
	assert.True(t, s.TryAcquire())
	assert.True(t, s.TryAcquire())
	assert.False(t, s.TryAcquire())

	assert.Equal(t, int64(3), s.Snapshot().Consumed)
}

func TestTryAcquireConcurrentHoldsBurst(t *testing.T) {
	// 64 goroutines race a bucket of 3 whose refill is far too slow to
	// matter during the test; exactly the burst may win.
	s := NewRateLimitState(0.001, 3)

	var (
		granted atomic.Int64
		start   = make(chan struct{})
		wg      sync.WaitGroup
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if s.TryAcquire() {
				granted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(3), granted.Load())
	assert.Equal(t, int64(3), s.Snapshot().Consumed)
}

func TestRecord429ArmsCooldown(t *testing.T) {
	s := NewRateLimitState(100, 100)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.True(t, s.TryAcquire())
	s.Record429(30 * time.Second)

	// Inside the cool-down nothing is handed out, with tokens available.
	assert.False(t, s.TryAcquire())

	snap := s.Snapshot()
	assert.Equal(t, now, snap.Last429)
	assert.Equal(t, now.Add(30*time.Second), snap.CooldownUntil)

	// Once the window passes, acquisition resumes.
	now = now.Add(31 * time.Second)
	assert.True(t, s.TryAcquire())
}

func TestRecord429DefaultsToOneSecond(t *testing.T) {
	s := NewRateLimitState(100, 100)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Record429(0)
	assert.Equal(t, now.Add(time.Second), s.Snapshot().CooldownUntil)
}

func TestRecord429NeverShortensCooldown(t *testing.T) {
	s := NewRateLimitState(100, 100)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Record429(60 * time.Second)
	s.Record429(5 * time.Second)
	assert.Equal(t, now.Add(60*time.Second), s.Snapshot().CooldownUntil)
}

func TestWaitCancelledContext(t *testing.T) {
	s := NewRateLimitState(1, 1)
	require.NoError(t, s.Wait(context.Background()))

	// Bucket empty: a cancelled context must unblock immediately.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Wait(ctx))
}

func TestWaitCountsConsumption(t *testing.T) {
	s := NewRateLimitState(1000, 10)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Wait(ctx))
	}
	assert.Equal(t, int64(5), s.Snapshot().Consumed)
}
