package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ripplehq/ripple/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository implements ConversationStore on PostgreSQL.
type ConversationRepository struct {
	db *gorm.DB
}

var _ ConversationStore = (*ConversationRepository)(nil)

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create persists a new conversation with its member rows
func (r *ConversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// FindByID finds a conversation by ID with members
func (r *ConversationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("id = ?", id).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// FindByParticipant returns all conversations for a user, ordered by latest activity
func (r *ConversationRepository) FindByParticipant(ctx context.Context, userID uuid.UUID) ([]model.Conversation, error) {
	var conversations []model.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_members ON conversation_members.conversation_id = conversations.id").
		Where("conversation_members.user_id = ?", userID).
		Preload("Members").
		Order("conversations.updated_at DESC").
		Find(&conversations).Error
	return conversations, err
}

// Rename sets the group name
func (r *ConversationRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	res := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).
		Update("group_name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddParticipant inserts a member row; inserting an existing member is a no-op
func (r *ConversationRepository) AddParticipant(ctx context.Context, convID, userID uuid.UUID) error {
	member := model.ConversationMember{
		ConversationID: convID,
		UserID:         userID,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&member).Error
}

// RemoveParticipant deletes a member row; removing an absent member is a no-op
func (r *ConversationRepository) RemoveParticipant(ctx context.Context, convID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Delete(&model.ConversationMember{}).Error
}

// SetFlag updates one flag column on the member row
func (r *ConversationRepository) SetFlag(ctx context.Context, convID, userID uuid.UUID, flag model.FlagKind, value bool) error {
	res := r.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Update(string(flag), value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch bumps the updated_at timestamp (to sort by latest activity)
func (r *ConversationRepository) Touch(ctx context.Context, convID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", convID).
		Update("updated_at", gorm.Expr("NOW()")).Error
}

// Delete removes the conversation and its member rows. Messages are removed
// separately through the message store before this is called.
func (r *ConversationRepository) Delete(ctx context.Context, convID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", convID).
			Delete(&model.ConversationMember{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", convID).Delete(&model.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
