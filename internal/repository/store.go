package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ripplehq/ripple/internal/model"
)

// ErrNotFound is returned by every store when a referenced record is absent.
// Implementations translate their driver's sentinel (e.g. gorm's
// ErrRecordNotFound) so callers never depend on the driver.
var ErrNotFound = errors.New("record not found")

// ConversationStore is the persistence adapter for conversations.
type ConversationStore interface {
	Create(ctx context.Context, conv *model.Conversation) error
	// FindByID loads a conversation with its members.
	FindByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
	// FindByParticipant returns conversations containing userID, most
	// recently active first.
	FindByParticipant(ctx context.Context, userID uuid.UUID) ([]model.Conversation, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	// AddParticipant and RemoveParticipant are both idempotent.
	AddParticipant(ctx context.Context, convID, userID uuid.UUID) error
	RemoveParticipant(ctx context.Context, convID, userID uuid.UUID) error
	// SetFlag sets one per-user flag on the member row; ErrNotFound when
	// the user is not a member.
	SetFlag(ctx context.Context, convID, userID uuid.UUID, flag model.FlagKind, value bool) error
	// Touch bumps updated_at so the conversation sorts as recently active.
	Touch(ctx context.Context, convID uuid.UUID) error
	Delete(ctx context.Context, convID uuid.UUID) error
}

// MessageStore is the persistence adapter for messages. The reaction and
// read-receipt methods are the atomic update primitives: concurrent calls
// for the same message must not lose updates.
type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Message, error)
	// FindByConversation pages newest-first; before is an optional cursor.
	FindByConversation(ctx context.Context, convID uuid.UUID, before *uuid.UUID, limit int) ([]model.Message, error)
	// LastMessages resolves the most recent message for every listed
	// conversation in one query; conversations with no messages are
	// simply absent from the result.
	LastMessages(ctx context.Context, convIDs []uuid.UUID) (map[uuid.UUID]*model.Message, error)
	CountUnread(ctx context.Context, convID, userID uuid.UUID) (int64, error)
	// CountUnreadBatch counts unread per conversation in one query.
	CountUnreadBatch(ctx context.Context, convIDs []uuid.UUID, userID uuid.UUID) (map[uuid.UUID]int64, error)
	// Edit replaces content and marks the message edited.
	Edit(ctx context.Context, id uuid.UUID, content string) error
	// SoftDelete tombstones content and marks the message deleted,
	// leaving reactions and read receipts untouched.
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// Delete permanently removes the message and its dependent records.
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByConversation(ctx context.Context, convID uuid.UUID) error
	// UpsertReaction inserts or overwrites the user's single reaction.
	UpsertReaction(ctx context.Context, msgID, userID uuid.UUID, kind model.ReactionKind) error
	// DeleteReaction removes the user's reaction; absent is a no-op.
	DeleteReaction(ctx context.Context, msgID, userID uuid.UUID) error
	// MarkConversationRead set-unions readerID into readBy for every
	// message in the conversation not sent by the reader. Idempotent.
	MarkConversationRead(ctx context.Context, convID, readerID uuid.UUID) error
}

// DeviceStore keeps FCM device tokens for push notifications.
type DeviceStore interface {
	Register(ctx context.Context, userID uuid.UUID, token, deviceType string) error
	TokensForUsers(ctx context.Context, userIDs []uuid.UUID) ([]string, error)
}
