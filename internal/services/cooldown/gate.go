// Package cooldown rate-limits wake transmissions.
package cooldown

import (
	"sync"
	"time"
)

// Gate tracks the last wake transmission for one target. A Gate is shared
// by reference between the scheduler and the command router; TryConsume is
// the only mutation and it is atomic.
type Gate struct {
	mu         sync.Mutex
	cooldown   time.Duration
	lastSentAt time.Time
	now        func() time.Time
}

// New creates a Gate whose first request is always allowed.
func New(cooldown time.Duration) *Gate {
	return NewWithClock(cooldown, time.Now)
}

// NewWithClock creates a Gate with a custom clock (for testing).
func NewWithClock(cooldown time.Duration, now func() time.Time) *Gate {
	return &Gate{
		cooldown:   cooldown,
		lastSentAt: now().Add(-cooldown),
		now:        now,
	}
}

// TryConsume reports whether a transmission may happen now. When allowed the
// window is spent immediately, whatever the outcome of the transmission.
// Otherwise it returns the time left and changes nothing.
func (g *Gate) TryConsume() (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	elapsed := now.Sub(g.lastSentAt)
	if elapsed >= g.cooldown {
		g.lastSentAt = now
		return true, 0
	}
	return false, g.cooldown - elapsed
}

// Cooldown returns the configured window.
func (g *Gate) Cooldown() time.Duration {
	return g.cooldown
}
