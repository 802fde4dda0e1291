package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ripplehq/ripple/internal/model"
	"go.uber.org/zap"
)

const redisChannel = "ripple:realtime"

// Hub manages realtime connections and the rooms they subscribe to. Rooms
// are keyed by conversation id, one room per conversation. With a Redis
// client attached, broadcasts go through Pub/Sub so every gateway instance
// delivers them to its local connections; without one the hub delivers
// locally (single-process mode).
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	rooms       map[uuid.UUID]map[*Client]bool
	clientRooms map[*Client]map[uuid.UUID]bool

	presence PresenceRegistry
	rdb      *redis.Client
	log      *zap.SugaredLogger
}

// NewHub creates a hub. rdb may be nil for single-process deployments.
func NewHub(presence PresenceRegistry, rdb *redis.Client, log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		rooms:       make(map[uuid.UUID]map[*Client]bool),
		clientRooms: make(map[*Client]map[uuid.UUID]bool),
		presence:    presence,
		rdb:         rdb,
		log:         log,
	}
}

// Presence exposes the injected registry to the gateway handler.
func (h *Hub) Presence() PresenceRegistry { return h.presence }

// Run blocks on the Redis subscription until the context is canceled.
// Without Redis there is nothing to pump; it just waits.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		<-ctx.Done()
		return
	}
	h.subscribeRedis(ctx)
}

// Register adds a connection to the hub
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	h.log.Infow("client connected", "conn", c.ID, "user_id", c.UserID)
}

// Unregister removes a connection, releases its room memberships and, when
// a user was associated, broadcasts the offline transition.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	for roomID := range h.clientRooms[c] {
		delete(h.rooms[roomID], c)
		if len(h.rooms[roomID]) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.clientRooms, c)
	h.mu.Unlock()

	h.log.Infow("client disconnected", "conn", c.ID)

	userID, last, ok := h.presence.MarkOffline(c)
	if ok && last {
		h.BroadcastAll(&model.WSEvent{
			Type:    model.WSEventPresenceChanged,
			Payload: model.PresenceChangedPayload{UserID: userID, Status: "offline"},
		})
	}
}

// AnnounceOnline records the connection in the presence registry and
// broadcasts the online transition when it is the user's first connection.
func (h *Hub) AnnounceOnline(c *Client) {
	if h.presence.MarkOnline(c.UserID, c) {
		h.BroadcastAll(&model.WSEvent{
			Type:    model.WSEventPresenceChanged,
			Payload: model.PresenceChangedPayload{UserID: c.UserID, Status: "online"},
		})
	}
}

// JoinRoom subscribes the connection to a conversation's room
func (h *Hub) JoinRoom(c *Client, convID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[convID] == nil {
		h.rooms[convID] = make(map[*Client]bool)
	}
	h.rooms[convID][c] = true
	if h.clientRooms[c] == nil {
		h.clientRooms[c] = make(map[uuid.UUID]bool)
	}
	h.clientRooms[c][convID] = true
}

// envelope wraps an event for delivery, locally or across instances.
type envelope struct {
	RoomID  uuid.UUID      `json:"room_id,omitempty"`
	Exclude string         `json:"exclude,omitempty"` // connection id to skip
	Event   *model.WSEvent `json:"event"`
}

// BroadcastAll fans an event out to every connected client
func (h *Hub) BroadcastAll(event *model.WSEvent) {
	h.dispatch(envelope{Event: event})
}

// BroadcastRoom fans an event out to a conversation's room. except, when
// non-nil, names a connection to skip (the typing user's own connection).
func (h *Hub) BroadcastRoom(convID uuid.UUID, event *model.WSEvent, except *Client) {
	env := envelope{RoomID: convID, Event: event}
	if except != nil {
		env.Exclude = except.ID
	}
	h.dispatch(env)
}

// SendTo unicasts an event to one connection
func (h *Hub) SendTo(c *Client, event *model.WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Errorw("failed to marshal event", "error", err)
		return
	}
	h.trySend(c, data)
}

func (h *Hub) dispatch(env envelope) {
	if h.rdb == nil {
		h.deliverLocal(env)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Errorw("failed to marshal envelope", "error", err)
		return
	}
	if err := h.rdb.Publish(context.Background(), redisChannel, data).Err(); err != nil {
		h.log.Errorw("redis publish failed", "error", err)
		// Degrade to local delivery rather than dropping the event
		h.deliverLocal(env)
	}
}

func (h *Hub) deliverLocal(env envelope) {
	data, err := json.Marshal(env.Event)
	if err != nil {
		h.log.Errorw("failed to marshal event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients
	if env.RoomID != uuid.Nil {
		targets = h.rooms[env.RoomID]
	}
	for c := range targets {
		if env.Exclude != "" && c.ID == env.Exclude {
			continue
		}
		h.trySend(c, data)
	}
}

func (h *Hub) trySend(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		// Slow consumer; dropping beats blocking the whole fan-out
		h.log.Warnw("client send buffer full, dropping event", "conn", c.ID)
	}
}

func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	h.log.Infow("realtime pub/sub subscriber started", "channel", redisChannel)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.log.Errorw("malformed pub/sub envelope", "error", err)
				continue
			}
			h.deliverLocal(env)
		}
	}
}
