package blizzard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelayDoubles(t *testing.T) {
	p := defaultRetryPolicy()

	assert.Equal(t, 1*time.Second, p.nextDelay(0))
	assert.Equal(t, 2*time.Second, p.nextDelay(1))
	assert.Equal(t, 4*time.Second, p.nextDelay(2))
	assert.Equal(t, 8*time.Second, p.nextDelay(3))
	assert.Equal(t, 16*time.Second, p.nextDelay(4))
}

func TestNextDelayCapped(t *testing.T) {
	p := defaultRetryPolicy()

	assert.Equal(t, 60*time.Second, p.nextDelay(6))
	assert.Equal(t, 60*time.Second, p.nextDelay(100))
}

func TestNextDelayNegativeAttempt(t *testing.T) {
	p := defaultRetryPolicy()
	assert.Equal(t, p.baseDelay, p.nextDelay(-3))
}
