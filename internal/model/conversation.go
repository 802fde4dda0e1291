package model

import (
	"time"

	"github.com/google/uuid"
)

// FlagKind identifies a per-user conversation flag
type FlagKind string

const (
	FlagPinned   FlagKind = "pinned"
	FlagArchived FlagKind = "archived"
	FlagMuted    FlagKind = "muted"
)

// ValidFlag reports whether k is a recognized flag kind.
func ValidFlag(k FlagKind) bool {
	switch k {
	case FlagPinned, FlagArchived, FlagMuted:
		return true
	}
	return false
}

// Conversation represents a chat thread between two or more participants
type Conversation struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	IsGroup   bool      `json:"is_group" gorm:"default:false"`
	GroupName string    `json:"group_name,omitempty" gorm:"size:100"` // meaningful only for groups
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Members []ConversationMember `json:"members,omitempty" gorm:"foreignKey:ConversationID"`
}

// ParticipantIDs returns the user ids of all current members.
func (c *Conversation) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Members))
	for _, m := range c.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// HasParticipant reports whether userID is a current member.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	for _, m := range c.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// ConversationMember is a user's membership in a conversation. The
// pinned/archived/muted booleans realize the per-user flag sets: a user is
// in a flag's set exactly when the boolean on their member row is true.
type ConversationMember struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationID uuid.UUID `json:"conversation_id" gorm:"type:uuid;uniqueIndex:idx_conv_user;not null"`
	UserID         uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_conv_user;not null"`
	Pinned         bool      `json:"pinned" gorm:"default:false"`
	Archived       bool      `json:"archived" gorm:"default:false"`
	Muted          bool      `json:"muted" gorm:"default:false"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Flag returns the member's current value for the given flag kind.
func (m *ConversationMember) Flag(k FlagKind) bool {
	switch k {
	case FlagPinned:
		return m.Pinned
	case FlagArchived:
		return m.Archived
	case FlagMuted:
		return m.Muted
	}
	return false
}

// SetFlag sets the member's value for the given flag kind.
func (m *ConversationMember) SetFlag(k FlagKind, v bool) {
	switch k {
	case FlagPinned:
		m.Pinned = v
	case FlagArchived:
		m.Archived = v
	case FlagMuted:
		m.Muted = v
	}
}
