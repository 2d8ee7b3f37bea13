package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_SweepsIdleVisitorsPeriodically(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	t0 := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	rl.getLimiter("198.51.100.1", t0)
	rl.getLimiter("198.51.100.2", t0.Add(rl.ttl-time.Second))
	assert.Len(t, rl.visitors, 2)

	firstSweep := t0.Add(rl.ttl + 30*time.Second)
	rl.getLimiter("198.51.100.3", firstSweep)
	assert.Len(t, rl.visitors, 2)
	assert.NotContains(t, rl.visitors, "198.51.100.1")

	// 198.51.100.2 is idle past ttl here, but the next sweep is not due yet.
	rl.getLimiter("198.51.100.4", firstSweep.Add(rl.ttl-time.Second))
	assert.Len(t, rl.visitors, 3)

	rl.getLimiter("198.51.100.4", firstSweep.Add(rl.ttl+time.Second))
	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "198.51.100.4")
}
