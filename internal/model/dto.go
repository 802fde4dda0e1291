package model

import "github.com/google/uuid"

// ========== Conversation DTOs ==========

type CreateConversationRequest struct {
	Participants []uuid.UUID `json:"participants" binding:"required,min=1"`
	IsGroup      bool        `json:"is_group"`
	GroupName    string      `json:"group_name"`
}

type RenameConversationRequest struct {
	NewName string `json:"new_name" binding:"required"`
}

// ParticipantAction is "add" or "remove"
type UpdateParticipantsRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Action string    `json:"action" binding:"required"`
}

// ConversationSummary annotates a conversation with the viewing user's
// unread count and the most recent message (nil when the thread is empty).
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	LastMessage  *Message     `json:"last_message"`
	UnreadCount  int          `json:"unread_count"`
	Pinned       bool         `json:"pinned"`
	Archived     bool         `json:"archived"`
	Muted        bool         `json:"muted"`
}

// ========== Message DTOs ==========

type SendMessageRequest struct {
	Content     string            `json:"content"`
	Attachments []AttachmentInput `json:"attachments,omitempty"`
	ReplyToID   *uuid.UUID        `json:"reply_to_id,omitempty"`
}

type AttachmentInput struct {
	URL      string `json:"url" binding:"required"`
	FileType string `json:"file_type"`
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type SetReactionRequest struct {
	Kind ReactionKind `json:"kind" binding:"required"`
}

type MessageListRequest struct {
	Before string `form:"before"` // cursor for pagination (message ID)
	Limit  int    `form:"limit,default=50"`
}

// ========== Device DTOs ==========

type RegisterDeviceRequest struct {
	FCMToken   string `json:"fcm_token" binding:"required"`
	DeviceType string `json:"device_type" binding:"required"`
}

// ========== WebSocket Event DTOs ==========

// WSEvent is the wire envelope for every realtime event, both directions
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Events consumed from clients
const (
	WSEventAnnounceOnline   = "announce-online"
	WSEventJoinConversation = "join-conversation"
	WSEventTyping           = "typing"
	WSEventStopTyping       = "stop-typing"
	WSEventSendMessage      = "send-message"
)

// Events emitted to clients
const (
	WSEventPresenceChanged   = "presence-changed"
	WSEventLastMessage       = "last-message"
	WSEventPeerTyping        = "peer-typing"
	WSEventPeerStoppedTyping = "peer-stopped-typing"
	WSEventMessageReceived   = "message-received"
	WSEventOperationFailed   = "operation-failed"
)

type AnnounceOnlinePayload struct {
	UserID uuid.UUID `json:"user_id"`
}

type JoinConversationPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
}

type TypingPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
}

type SendMessagePayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Sender         uuid.UUID `json:"sender"`
	Recipient      uuid.UUID `json:"recipient,omitempty"`
	Content        string    `json:"content"`
}

type PresenceChangedPayload struct {
	UserID uuid.UUID `json:"user_id"`
	Status string    `json:"status"` // "online" or "offline"
}

type PeerTypingPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

type OperationFailedPayload struct {
	Reason string `json:"reason"`
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
