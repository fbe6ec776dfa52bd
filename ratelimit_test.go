package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestRateLimiter(limit int, window time.Duration) (*RateLimiter, *fakeClock) {
	clock := newFakeClock()
	rl := NewRateLimiter(limit, window)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	rl, clock := newTestRateLimiter(3, time.Second)
	rl.Register("conn-1")

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("conn-1"), "call %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow("conn-1"), "4th call inside the window should be rejected")

	clock.Advance(1001 * time.Millisecond)
	assert.True(t, rl.Allow("conn-1"), "window elapsed, call should be allowed")
}

func TestRateLimiter_RejectedCallsDoNotCount(t *testing.T) {
	rl, clock := newTestRateLimiter(2, time.Second)
	rl.Register("conn-1")

	assert.True(t, rl.Allow("conn-1"))
	assert.True(t, rl.Allow("conn-1"))
	for i := 0; i < 10; i++ {
		assert.False(t, rl.Allow("conn-1"))
	}

	clock.Advance(2 * time.Second)
	assert.True(t, rl.Allow("conn-1"))
	assert.True(t, rl.Allow("conn-1"))
	assert.False(t, rl.Allow("conn-1"))
}

func TestRateLimiter_WindowBoundary(t *testing.T) {
	rl, clock := newTestRateLimiter(1, time.Second)
	rl.Register("conn-1")

	assert.True(t, rl.Allow("conn-1"))

	// The window only resets once the reset time has passed.
	clock.Advance(time.Second)
	assert.False(t, rl.Allow("conn-1"))

	clock.Advance(time.Millisecond)
	assert.True(t, rl.Allow("conn-1"))
}

func TestRateLimiter_UnregisteredFailsClosed(t *testing.T) {
	rl, _ := newTestRateLimiter(100, time.Second)

	assert.False(t, rl.Allow("never-registered"))

	rl.Register("conn-1")
	assert.True(t, rl.Allow("conn-1"))
	rl.Unregister("conn-1")
	assert.False(t, rl.Allow("conn-1"))
	assert.Equal(t, 0, rl.Tracked())
}

func TestRateLimiter_PerConnection(t *testing.T) {
	rl, _ := newTestRateLimiter(1, time.Second)
	rl.Register("conn-1")
	rl.Register("conn-2")

	assert.True(t, rl.Allow("conn-1"))
	assert.False(t, rl.Allow("conn-1"))
	assert.True(t, rl.Allow("conn-2"), "another connection has its own window")
	assert.Equal(t, 2, rl.Tracked())
}

func TestHandshakeLimiter_Allow(t *testing.T) {
	hl := NewHandshakeLimiter(10)

	assert.True(t, hl.Allow("1.2.3.4"))
	assert.True(t, hl.Allow("5.6.7.8"), "different IP should be allowed")
}

func TestHandshakeLimiter_Burst(t *testing.T) {
	hl := NewHandshakeLimiter(5) // 5 req/sec, burst = 10

	allowed := 0
	for i := 0; i < 20; i++ {
		if hl.Allow("10.0.0.1") {
			allowed++
		}
	}

	assert.GreaterOrEqual(t, allowed, 5)
	assert.Less(t, allowed, 20, "limiter should have blocked some attempts")
}

func TestHandshakeLimiter_Disabled(t *testing.T) {
	hl := NewHandshakeLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, hl.Allow("10.0.0.1"))
	}
}

func TestHandshakeLimiter_EvictIdle(t *testing.T) {
	hl := NewHandshakeLimiter(5)
	hl.Allow("10.0.0.1")
	hl.Allow("10.0.0.2")

	assert.Equal(t, 0, hl.evictIdle(time.Now()))
	assert.Equal(t, 2, hl.evictIdle(time.Now().Add(11*time.Minute)))
}
