package ws

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCooldownLimiter(t *testing.T) {
	limiter := NewCooldownLimiter(2 * time.Second)
	user := uuid.New()
	base := time.Now()

	assert.True(t, limiter.Allow(user, base), "first send always allowed")
	assert.False(t, limiter.Allow(user, base.Add(500*time.Millisecond)), "inside the window")
	assert.True(t, limiter.Allow(user, base.Add(2500*time.Millisecond)), "past the window")
}

func TestCooldownLimiterRejectionDoesNotExtendWindow(t *testing.T) {
	limiter := NewCooldownLimiter(2 * time.Second)
	user := uuid.New()
	base := time.Now()

	assert.True(t, limiter.Allow(user, base))
	// Rejected attempts must not push the window forward
	assert.False(t, limiter.Allow(user, base.Add(1900*time.Millisecond)))
	assert.True(t, limiter.Allow(user, base.Add(2100*time.Millisecond)))
}

func TestCooldownLimiterPerSender(t *testing.T) {
	limiter := NewCooldownLimiter(2 * time.Second)
	alice, bob := uuid.New(), uuid.New()
	base := time.Now()

	assert.True(t, limiter.Allow(alice, base))
	assert.True(t, limiter.Allow(bob, base), "senders are limited independently")
	assert.False(t, limiter.Allow(alice, base.Add(time.Second)))
	assert.False(t, limiter.Allow(bob, base.Add(time.Second)))
}
