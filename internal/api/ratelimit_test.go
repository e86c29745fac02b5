//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiterPerKey(t *testing.T) {
	t.Parallel()

	l := NewRateLimiter(2, time.Hour)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	l.Forget("a")
	assert.True(t, l.Allow("a"))
}

func TestNilRateLimiterAllows(t *testing.T) {
	t.Parallel()

	l := NewRateLimiter(0, time.Minute)
	assert.Nil(t, l)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("a"))
	}
	l.Forget("a")
}

func TestRateLimiterHighRateStaysFinite(t *testing.T) {
	t.Parallel()

	l := NewRateLimiter(2_000_000_000, time.Second)
	assert.Equal(t, rate.Limit(2e9), l.limit)

	l = NewRateLimiter(10, time.Minute)
	assert.InDelta(t, 10.0/60.0, float64(l.limit), 1e-9)
}
