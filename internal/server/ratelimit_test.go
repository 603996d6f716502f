package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type manualClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

func TestClientRateLimiterEnforcesBurstPerClient(t *testing.T) {
	clock := &manualClock{current: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)}
	limiter := newClientRateLimiter(3, clock.Now)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.allow("10.0.0.1"), "request %d should pass", i)
	}
	assert.False(t, limiter.allow("10.0.0.1"))
	assert.True(t, limiter.allow("10.0.0.2"), "other clients keep their own bucket")

	clock.Advance(20 * time.Second)
	assert.True(t, limiter.allow("10.0.0.1"), "one token refills every 20s at 3/min")
	assert.False(t, limiter.allow("10.0.0.1"))
}

func TestClientRateLimiterEvictsIdleClients(t *testing.T) {
	clock := &manualClock{current: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)}
	limiter := newClientRateLimiter(1, clock.Now)

	assert.True(t, limiter.allow("10.0.0.1"))
	clock.Advance(clientLimiterIdleTTL + time.Minute)
	assert.True(t, limiter.allow("10.0.0.2"))

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.clients, "10.0.0.1")
	assert.Contains(t, limiter.clients, "10.0.0.2")
}
