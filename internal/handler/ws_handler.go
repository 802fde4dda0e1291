package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ripplehq/ripple/internal/model"
	"github.com/ripplehq/ripple/internal/service"
	"github.com/ripplehq/ripple/internal/ws"
	"github.com/ripplehq/ripple/pkg/apperr"
	"github.com/ripplehq/ripple/pkg/auth"
	"github.com/ripplehq/ripple/pkg/notification"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, validate origin
	},
}

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub         *ws.Hub
	chatService *service.ChatService
	jwtManager  *auth.JWTManager
	limiter     ws.Limiter
	notifier    *notification.PushService
	log         *zap.SugaredLogger
}

func NewWSHandler(hub *ws.Hub, chatService *service.ChatService, jwtManager *auth.JWTManager, limiter ws.Limiter, notifier *notification.PushService, log *zap.SugaredLogger) *WSHandler {
	return &WSHandler{
		hub:         hub,
		chatService: chatService,
		jwtManager:  jwtManager,
		limiter:     limiter,
		notifier:    notifier,
		log:         log,
	}
}

// HandleWebSocket upgrades HTTP to WebSocket and manages the connection.
// Clients connect with: ws://host/ws?token=<jwt_token>
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	// Authenticate via query parameter (WebSocket can't use Authorization header)
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Token required"})
		return
	}

	identity, err := h.jwtManager.Resolve(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorw("websocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(h.hub, conn, identity.UserID, identity.Name)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleWSMessage)
}

// handleWSMessage dispatches incoming realtime events from clients
func (h *WSHandler) handleWSMessage(client *ws.Client, event model.WSEvent) {
	switch event.Type {
	case model.WSEventAnnounceOnline:
		h.hub.AnnounceOnline(client)

	case model.WSEventJoinConversation:
		h.handleJoin(client, event)

	case model.WSEventTyping:
		h.handleTyping(client, event, model.WSEventPeerTyping)

	case model.WSEventStopTyping:
		h.handleTyping(client, event, model.WSEventPeerStoppedTyping)

	case model.WSEventSendMessage:
		h.handleSendMessage(client, event)

	default:
		h.log.Debugw("unknown realtime event type", "type", event.Type)
	}
}

// handleJoin subscribes the connection to a conversation's room and replies
// with that conversation's latest message so the client can refresh its
// preview without an extra HTTP round trip.
func (h *WSHandler) handleJoin(client *ws.Client, event model.WSEvent) {
	var payload model.JoinConversationPayload
	if !decodePayload(event, &payload) {
		return
	}

	h.hub.JoinRoom(client, payload.ConversationID)

	msg, err := h.chatService.LastMessage(context.Background(), payload.ConversationID)
	if err != nil {
		h.log.Debugw("last message lookup failed", "conversation_id", payload.ConversationID, "error", err)
		return
	}
	h.hub.SendTo(client, &model.WSEvent{
		Type:    model.WSEventLastMessage,
		Payload: msg,
	})
}

// handleTyping relays a typing transition to everyone else in the room
func (h *WSHandler) handleTyping(client *ws.Client, event model.WSEvent, outType string) {
	var payload model.TypingPayload
	if !decodePayload(event, &payload) {
		return
	}

	h.hub.BroadcastRoom(payload.ConversationID, &model.WSEvent{
		Type:    outType,
		Payload: model.PeerTypingPayload{UserID: client.UserID},
	}, client)
}

// handleSendMessage persists an inbound message and fans it out to the
// conversation's room. Senders past their cooldown window get the message
// rejected with an operation-failed event instead.
func (h *WSHandler) handleSendMessage(client *ws.Client, event model.WSEvent) {
	var payload model.SendMessagePayload
	if !decodePayload(event, &payload) {
		h.fail(client, apperr.Validationf("malformed send-message payload"))
		return
	}

	if !h.limiter.Allow(client.UserID, time.Now()) {
		h.fail(client, apperr.ErrRateLimited)
		return
	}

	ctx := context.Background()
	msg, err := h.chatService.SendMessage(ctx, payload.ConversationID, client.UserID, payload.Content, nil, nil)
	if err != nil {
		h.fail(client, err)
		return
	}

	// Sender's own connections receive the echo too
	h.hub.BroadcastRoom(payload.ConversationID, &model.WSEvent{
		Type:    model.WSEventMessageReceived,
		Payload: msg,
	}, nil)

	h.pushToOffline(ctx, client, msg)
}

// pushToOffline sends a push notification to participants with no live
// connection. Best effort; delivery failures never affect the message.
func (h *WSHandler) pushToOffline(ctx context.Context, client *ws.Client, msg *model.Message) {
	conv, err := h.chatService.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return
	}

	var offline []uuid.UUID
	for _, id := range conv.ParticipantIDs() {
		if id != client.UserID && !h.hub.Presence().IsOnline(id) {
			offline = append(offline, id)
		}
	}
	if len(offline) == 0 {
		return
	}

	if err := h.notifier.NotifyMessage(ctx, offline, client.Name, msg); err != nil {
		h.log.Warnw("push notification failed", "error", err)
	}
}

// fail unicasts an operation-failed event carrying a stable reason code
func (h *WSHandler) fail(client *ws.Client, err error) {
	h.hub.SendTo(client, &model.WSEvent{
		Type:    model.WSEventOperationFailed,
		Payload: model.OperationFailedPayload{Reason: apperr.Reason(err)},
	})
}

// decodePayload re-marshals the untyped event payload into dst
func decodePayload(event model.WSEvent, dst interface{}) bool {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}
