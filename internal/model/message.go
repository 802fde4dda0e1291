package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageType defines the type of message content
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
	MessageTypeFile  MessageType = "file"
	MessageTypeAudio MessageType = "audio"
)

// DeletedPlaceholder replaces the content of a soft-deleted message.
const DeletedPlaceholder = "This message was deleted."

// InferType picks a message type for the given content and attachments:
// text when content is present, otherwise the first attachment's file type
// when it names a known type, otherwise file.
func InferType(content string, attachments []Attachment) MessageType {
	if content != "" {
		return MessageTypeText
	}
	if len(attachments) > 0 {
		switch MessageType(attachments[0].FileType) {
		case MessageTypeImage, MessageTypeVideo, MessageTypeAudio, MessageTypeFile:
			return MessageType(attachments[0].FileType)
		}
	}
	return MessageTypeFile
}

// Message represents a single unit of content within a conversation
type Message struct {
	ID             uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationID uuid.UUID   `json:"conversation_id" gorm:"type:uuid;index;not null"`
	SenderID       uuid.UUID   `json:"sender_id" gorm:"type:uuid;index;not null"`
	Content        string      `json:"content" gorm:"type:text"`
	Type           MessageType `json:"type" gorm:"type:varchar(20);default:'text'"`
	ReplyToID      *uuid.UUID  `json:"reply_to_id,omitempty" gorm:"type:uuid"`
	Deleted        bool        `json:"deleted" gorm:"default:false"`
	Edited         bool        `json:"edited" gorm:"default:false"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`

	// Relations
	Attachments []Attachment      `json:"attachments,omitempty" gorm:"foreignKey:MessageID"`
	Reactions   []MessageReaction `json:"reactions,omitempty" gorm:"foreignKey:MessageID"`
	ReadBy      []ReadReceipt     `json:"read_by,omitempty" gorm:"foreignKey:MessageID"`
}

// ReactionBy returns userID's reaction, if any.
func (m *Message) ReactionBy(userID uuid.UUID) (ReactionKind, bool) {
	for _, r := range m.Reactions {
		if r.UserID == userID {
			return r.Kind, true
		}
	}
	return "", false
}

// ReadByUser reports whether userID has acknowledged the message.
func (m *Message) ReadByUser(userID uuid.UUID) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// Attachment is a file attached to a message, kept in send order
type Attachment struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MessageID uuid.UUID `json:"message_id" gorm:"type:uuid;index;not null"`
	URL       string    `json:"url" gorm:"size:1000;not null"`
	FileType  string    `json:"file_type" gorm:"size:20"` // e.g. "image", "video", "pdf"
	Position  int       `json:"position" gorm:"default:0"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionKind is one of the allowed reaction kinds
type ReactionKind string

const (
	ReactionLike  ReactionKind = "like"
	ReactionLove  ReactionKind = "love"
	ReactionHaha  ReactionKind = "haha"
	ReactionSad   ReactionKind = "sad"
	ReactionAngry ReactionKind = "angry"
	ReactionWow   ReactionKind = "wow"
	ReactionCare  ReactionKind = "care"
)

// ValidReaction reports whether k is in the allowed reaction set.
func ValidReaction(k ReactionKind) bool {
	switch k {
	case ReactionLike, ReactionLove, ReactionHaha, ReactionSad, ReactionAngry, ReactionWow, ReactionCare:
		return true
	}
	return false
}

// MessageReaction holds one user's reaction to a message. The unique index
// on (message_id, user_id) is what keeps the map invariant: one reaction
// per user per message, overwritten rather than accumulated.
type MessageReaction struct {
	ID        uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MessageID uuid.UUID    `json:"message_id" gorm:"type:uuid;uniqueIndex:idx_msg_user_reaction;not null"`
	UserID    uuid.UUID    `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_msg_user_reaction;not null"`
	Kind      ReactionKind `json:"kind" gorm:"type:varchar(10);not null"`
	CreatedAt time.Time    `json:"created_at"`
}

// ReadReceipt records that a user has acknowledged a message
type ReadReceipt struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MessageID uuid.UUID `json:"message_id" gorm:"type:uuid;uniqueIndex:idx_msg_user_read;not null"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_msg_user_read;not null"`
	ReadAt    time.Time `json:"read_at" gorm:"not null"`
}
