package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ripplehq/ripple/internal/model"
	"github.com/ripplehq/ripple/internal/repository"
	"github.com/ripplehq/ripple/internal/service"
	"github.com/ripplehq/ripple/internal/ws"
	"github.com/ripplehq/ripple/pkg/auth"
	"github.com/ripplehq/ripple/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	server  *httptest.Server
	svc     *service.ChatService
	jwt     *auth.JWTManager
	hub     *ws.Hub
	limiter ws.Limiter
}

func newGatewayFixture(t *testing.T, cooldown time.Duration) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	log := logger.Nop()
	svc := service.NewChatService(store, store.Messages(), log)
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	limiter := ws.NewCooldownLimiter(cooldown)

	// No Redis: the hub delivers locally
	hub := ws.NewHub(ws.NewMemoryPresence(), nil, log)

	wsHandler := NewWSHandler(hub, svc, jwtManager, limiter, nil, log)

	router := gin.New()
	router.GET("/ws", wsHandler.HandleWebSocket)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &gatewayFixture{server: server, svc: svc, jwt: jwtManager, hub: hub, limiter: limiter}
}

func (f *gatewayFixture) dial(t *testing.T, userID uuid.UUID, name string) *websocket.Conn {
	t.Helper()
	token, err := f.jwt.GenerateToken(userID, "user", name)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(model.WSEvent{Type: eventType, Payload: payload}))
}

// readEvent reads frames until it sees the wanted event type. Frames may
// carry several newline-separated events when the write pump batches.
func readEvent(t *testing.T, conn *websocket.Conn, wantType string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for time.Now().Before(deadline) {
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)
		for _, raw := range strings.Split(string(frame), "\n") {
			if raw == "" {
				continue
			}
			var envelope struct {
				Type    string          `json:"type"`
				Payload json.RawMessage `json:"payload"`
			}
			require.NoError(t, json.Unmarshal([]byte(raw), &envelope))
			if envelope.Type == wantType {
				return envelope.Payload
			}
		}
	}
	t.Fatalf("no %q event received", wantType)
	return nil
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	f := newGatewayFixture(t, 2*time.Second)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayJoinRepliesWithLastMessage(t *testing.T) {
	f := newGatewayFixture(t, 2*time.Second)
	alice, bob := uuid.New(), uuid.New()

	conv, err := f.svc.CreateConversation(t.Context(), []uuid.UUID{alice, bob}, false, "")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(t.Context(), conv.ID, alice, "latest", nil, nil)
	require.NoError(t, err)

	conn := f.dial(t, bob, "bob")
	send(t, conn, model.WSEventJoinConversation, model.JoinConversationPayload{ConversationID: conv.ID})

	payload := readEvent(t, conn, model.WSEventLastMessage)
	var msg model.Message
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "latest", msg.Content)
	assert.Equal(t, alice, msg.SenderID)
}

func TestGatewaySendMessageFanOut(t *testing.T) {
	f := newGatewayFixture(t, 2*time.Second)
	alice, bob := uuid.New(), uuid.New()

	conv, err := f.svc.CreateConversation(t.Context(), []uuid.UUID{alice, bob}, false, "")
	require.NoError(t, err)

	aliceConn := f.dial(t, alice, "alice")
	bobConn := f.dial(t, bob, "bob")

	send(t, aliceConn, model.WSEventJoinConversation, model.JoinConversationPayload{ConversationID: conv.ID})
	readEvent(t, aliceConn, model.WSEventLastMessage)
	send(t, bobConn, model.WSEventJoinConversation, model.JoinConversationPayload{ConversationID: conv.ID})
	readEvent(t, bobConn, model.WSEventLastMessage)

	send(t, aliceConn, model.WSEventSendMessage, model.SendMessagePayload{
		ConversationID: conv.ID,
		Content:        "hello over the wire",
	})

	payload := readEvent(t, bobConn, model.WSEventMessageReceived)
	var msg model.Message
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "hello over the wire", msg.Content)
	assert.Equal(t, alice, msg.SenderID)

	// Sender's own connection receives the echo too
	payload = readEvent(t, aliceConn, model.WSEventMessageReceived)
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "hello over the wire", msg.Content)

	// Persisted, not just relayed
	msgs, err := f.svc.GetMessages(t.Context(), conv.ID, bob, nil, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestGatewayCooldownRejection(t *testing.T) {
	f := newGatewayFixture(t, 2*time.Second)
	alice, bob := uuid.New(), uuid.New()

	conv, err := f.svc.CreateConversation(t.Context(), []uuid.UUID{alice, bob}, false, "")
	require.NoError(t, err)

	conn := f.dial(t, alice, "alice")
	send(t, conn, model.WSEventJoinConversation, model.JoinConversationPayload{ConversationID: conv.ID})
	readEvent(t, conn, model.WSEventLastMessage)

	send(t, conn, model.WSEventSendMessage, model.SendMessagePayload{ConversationID: conv.ID, Content: "first"})
	readEvent(t, conn, model.WSEventMessageReceived)

	send(t, conn, model.WSEventSendMessage, model.SendMessagePayload{ConversationID: conv.ID, Content: "too fast"})
	payload := readEvent(t, conn, model.WSEventOperationFailed)

	var failure model.OperationFailedPayload
	require.NoError(t, json.Unmarshal(payload, &failure))
	assert.Equal(t, "rate-limited", failure.Reason)

	// The rejected message never reached storage
	msgs, err := f.svc.GetMessages(t.Context(), conv.ID, alice, nil, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "first", msgs[0].Content)
}

func TestGatewayValidationFailure(t *testing.T) {
	f := newGatewayFixture(t, time.Millisecond)
	alice, bob := uuid.New(), uuid.New()

	conv, err := f.svc.CreateConversation(t.Context(), []uuid.UUID{alice, bob}, false, "")
	require.NoError(t, err)

	conn := f.dial(t, alice, "alice")
	send(t, conn, model.WSEventSendMessage, model.SendMessagePayload{ConversationID: conv.ID, Content: "   "})

	payload := readEvent(t, conn, model.WSEventOperationFailed)
	var failure model.OperationFailedPayload
	require.NoError(t, json.Unmarshal(payload, &failure))
	assert.Equal(t, "validation", failure.Reason)
}

func TestGatewayPresenceBroadcasts(t *testing.T) {
	f := newGatewayFixture(t, 2*time.Second)
	alice, bob := uuid.New(), uuid.New()

	watcher := f.dial(t, bob, "bob")
	send(t, watcher, model.WSEventAnnounceOnline, model.AnnounceOnlinePayload{UserID: bob})
	readEvent(t, watcher, model.WSEventPresenceChanged) // bob's own transition

	aliceConn := f.dial(t, alice, "alice")
	send(t, aliceConn, model.WSEventAnnounceOnline, model.AnnounceOnlinePayload{UserID: alice})

	payload := readEvent(t, watcher, model.WSEventPresenceChanged)
	var change model.PresenceChangedPayload
	require.NoError(t, json.Unmarshal(payload, &change))
	assert.Equal(t, alice, change.UserID)
	assert.Equal(t, "online", change.Status)

	require.NoError(t, aliceConn.Close())

	payload = readEvent(t, watcher, model.WSEventPresenceChanged)
	require.NoError(t, json.Unmarshal(payload, &change))
	assert.Equal(t, alice, change.UserID)
	assert.Equal(t, "offline", change.Status)
}

func TestGatewayTypingRelay(t *testing.T) {
	f := newGatewayFixture(t, 2*time.Second)
	alice, bob := uuid.New(), uuid.New()

	conv, err := f.svc.CreateConversation(t.Context(), []uuid.UUID{alice, bob}, false, "")
	require.NoError(t, err)

	aliceConn := f.dial(t, alice, "alice")
	bobConn := f.dial(t, bob, "bob")
	send(t, aliceConn, model.WSEventJoinConversation, model.JoinConversationPayload{ConversationID: conv.ID})
	readEvent(t, aliceConn, model.WSEventLastMessage)
	send(t, bobConn, model.WSEventJoinConversation, model.JoinConversationPayload{ConversationID: conv.ID})
	readEvent(t, bobConn, model.WSEventLastMessage)

	send(t, aliceConn, model.WSEventTyping, model.TypingPayload{ConversationID: conv.ID})

	payload := readEvent(t, bobConn, model.WSEventPeerTyping)
	var typing model.PeerTypingPayload
	require.NoError(t, json.Unmarshal(payload, &typing))
	assert.Equal(t, alice, typing.UserID)

	send(t, aliceConn, model.WSEventStopTyping, model.TypingPayload{ConversationID: conv.ID})
	payload = readEvent(t, bobConn, model.WSEventPeerStoppedTyping)
	require.NoError(t, json.Unmarshal(payload, &typing))
	assert.Equal(t, alice, typing.UserID)
}
