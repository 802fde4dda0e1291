package ws

import (
	"sync"

	"github.com/google/uuid"
)

// PresenceRegistry tracks which users currently have a live realtime
// connection. State lives for the gateway process only; tests and future
// multi-instance deployments substitute their own implementation.
type PresenceRegistry interface {
	// MarkOnline records a connection for the user and reports whether it
	// is the user's first live connection (a user-level online transition).
	MarkOnline(userID uuid.UUID, c *Client) bool
	// MarkOffline reverse-looks-up the connection and removes it. A
	// disconnect only carries the connection, never the user id. Returns
	// the associated user, whether this was their last connection, and
	// whether the connection was registered at all.
	MarkOffline(c *Client) (userID uuid.UUID, last bool, ok bool)
	IsOnline(userID uuid.UUID) bool
	OnlineUsers() []uuid.UUID
}

// MemoryPresence is the in-process PresenceRegistry. Every connection is
// tracked individually, so a user with several devices stays online until
// the last one disconnects.
type MemoryPresence struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]map[*Client]bool
	byConn map[*Client]uuid.UUID
}

var _ PresenceRegistry = (*MemoryPresence)(nil)

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		byUser: make(map[uuid.UUID]map[*Client]bool),
		byConn: make(map[*Client]uuid.UUID),
	}
}

func (p *MemoryPresence) MarkOnline(userID uuid.UUID, c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	first := len(p.byUser[userID]) == 0
	if p.byUser[userID] == nil {
		p.byUser[userID] = make(map[*Client]bool)
	}
	p.byUser[userID][c] = true
	p.byConn[c] = userID
	return first
}

func (p *MemoryPresence) MarkOffline(c *Client) (uuid.UUID, bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.byConn[c]
	if !ok {
		return uuid.Nil, false, false
	}
	delete(p.byConn, c)
	delete(p.byUser[userID], c)
	last := len(p.byUser[userID]) == 0
	if last {
		delete(p.byUser, userID)
	}
	return userID, last, true
}

func (p *MemoryPresence) IsOnline(userID uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser[userID]) > 0
}

func (p *MemoryPresence) OnlineUsers() []uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()

	users := make([]uuid.UUID, 0, len(p.byUser))
	for userID := range p.byUser {
		users = append(users, userID)
	}
	return users
}
