package gateway

import (
	"sync"
	"time"
)

// DefaultCooldown is how long the breaker stays open after a rate-limit
// signal.
const DefaultCooldown = 5 * time.Minute

// Breaker is a two-state circuit breaker: CLOSED passes calls through,
// OPEN short-circuits them without touching the network. It opens on a
// rate-limit signal and closes purely by time; there is no half-open
// probing, which is adequate for this low-traffic path.
type Breaker struct {
	mu        sync.Mutex
	openUntil time.Time
	cooldown  time.Duration
	now       func() time.Time
}

// NewBreaker creates a closed Breaker. A non-positive cooldown falls back
// to DefaultCooldown.
func NewBreaker(cooldown time.Duration) *Breaker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may proceed. The first call at or after
// openUntil proceeds and implicitly closes the breaker.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.now().Before(b.openUntil)
}

// Trip opens the breaker for the cooldown period.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openUntil = b.now().Add(b.cooldown)
}

// Open reports whether the breaker is currently open.
func (b *Breaker) Open() bool {
	return !b.Allow()
}
