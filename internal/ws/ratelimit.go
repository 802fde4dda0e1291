package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Limiter gates message emission per sender.
type Limiter interface {
	// Allow reports whether the sender may emit a message at the given
	// instant. Allowing records the instant; a rejection does not reset
	// the window.
	Allow(senderID uuid.UUID, now time.Time) bool
}

// CooldownLimiter enforces at most one message per cooldown window per
// sender. Fixed window, no bursts. Keys accumulate for the limiter's
// lifetime; eviction is not needed for correctness.
type CooldownLimiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastSent map[uuid.UUID]time.Time
}

var _ Limiter = (*CooldownLimiter)(nil)

func NewCooldownLimiter(cooldown time.Duration) *CooldownLimiter {
	return &CooldownLimiter{
		cooldown: cooldown,
		lastSent: make(map[uuid.UUID]time.Time),
	}
}

func (l *CooldownLimiter) Allow(senderID uuid.UUID, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.lastSent[senderID]; ok && now.Sub(last) < l.cooldown {
		return false
	}
	l.lastSent[senderID] = now
	return true
}
