package main

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a fixed-window message counter keyed by connection id.
//
// A burst straddling a window boundary can briefly reach twice the nominal
// rate. Ids that were never registered (or already unregistered) are always
// rejected.
type RateLimiter struct {
	mu     sync.RWMutex
	states map[string]*rateState
	limit  int
	window time.Duration
	now    func() time.Time
}

type rateState struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		states: make(map[string]*rateState),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Register creates the counter for a connection. Re-registering resets it.
func (rl *RateLimiter) Register(connID string) {
	st := &rateState{resetAt: rl.now().Add(rl.window)}
	rl.mu.Lock()
	rl.states[connID] = st
	rl.mu.Unlock()
}

func (rl *RateLimiter) Unregister(connID string) {
	rl.mu.Lock()
	delete(rl.states, connID)
	rl.mu.Unlock()
}

// Allow counts one message attempt for connID.
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.RLock()
	st, ok := rl.states[connID]
	rl.mu.RUnlock()
	if !ok {
		return false
	}

	now := rl.now()
	st.mu.Lock()
	defer st.mu.Unlock()

	if now.After(st.resetAt) {
		st.count = 0
		st.resetAt = now.Add(rl.window)
	}
	if st.count >= rl.limit {
		return false
	}
	st.count++
	return true
}

// Tracked returns the number of registered connections.
func (rl *RateLimiter) Tracked() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.states)
}

// HandshakeLimiter throttles WebSocket upgrade attempts per client IP with a
// token bucket. Entries idle for longer than idleTTL are dropped by Run.
type HandshakeLimiter struct {
	mu       sync.Mutex
	limiters map[string]*handshakeEntry
	rate     float64
	idleTTL  time.Duration
}

type handshakeEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewHandshakeLimiter(rps float64) *HandshakeLimiter {
	return &HandshakeLimiter{
		limiters: make(map[string]*handshakeEntry),
		rate:     rps,
		idleTTL:  10 * time.Minute,
	}
}

// Allow reports whether ip may open another connection now. A zero rate
// disables the check.
func (hl *HandshakeLimiter) Allow(ip string) bool {
	if hl.rate <= 0 {
		return true
	}

	hl.mu.Lock()
	entry, ok := hl.limiters[ip]
	if !ok {
		burst := int(hl.rate) * 2
		if burst < 1 {
			burst = 1
		}
		entry = &handshakeEntry{limiter: rate.NewLimiter(rate.Limit(hl.rate), burst)}
		hl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	hl.mu.Unlock()

	return entry.limiter.Allow()
}

// Run evicts idle entries until ctx is cancelled.
func (hl *HandshakeLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hl.evictIdle(time.Now())
		}
	}
}

func (hl *HandshakeLimiter) evictIdle(now time.Time) int {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	cutoff := now.Add(-hl.idleTTL)
	removed := 0
	for ip, entry := range hl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(hl.limiters, ip)
			removed++
		}
	}
	return removed
}
