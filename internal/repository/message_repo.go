package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ripplehq/ripple/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository implements MessageStore on PostgreSQL.
type MessageRepository struct {
	db *gorm.DB
}

var _ MessageStore = (*MessageRepository)(nil)

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message with its attachments
func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// FindByID finds a message by ID with reactions, receipts and attachments
func (r *MessageRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Reactions").
		Preload("ReadBy").
		Where("id = ?", id).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// FindByConversation returns paginated messages, newest first (cursor-based)
func (r *MessageRepository) FindByConversation(ctx context.Context, convID uuid.UUID, before *uuid.UUID, limit int) ([]model.Message, error) {
	messages := []model.Message{}
	query := r.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Reactions").
		Preload("ReadBy").
		Where("conversation_id = ?", convID).
		Order("created_at DESC").
		Limit(limit)

	if before != nil {
		var beforeMsg model.Message
		if err := r.db.WithContext(ctx).Select("created_at").Where("id = ?", before).First(&beforeMsg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		query = query.Where("created_at < ?", beforeMsg.CreatedAt)
	}

	err := query.Find(&messages).Error
	return messages, err
}

// LastMessages resolves the newest message per conversation in one query
func (r *MessageRepository) LastMessages(ctx context.Context, convIDs []uuid.UUID) (map[uuid.UUID]*model.Message, error) {
	result := make(map[uuid.UUID]*model.Message, len(convIDs))
	if len(convIDs) == 0 {
		return result, nil
	}

	var messages []model.Message
	err := r.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (conversation_id) *
		     FROM messages
		     WHERE conversation_id IN ?
		     ORDER BY conversation_id, created_at DESC`, convIDs).
		Scan(&messages).Error
	if err != nil {
		return nil, err
	}

	for i := range messages {
		result[messages[i].ConversationID] = &messages[i]
	}
	return result, nil
}

// CountUnread counts messages in the conversation the user has not
// acknowledged and did not send
func (r *MessageRepository) CountUnread(ctx context.Context, convID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND sender_id != ?", convID, userID).
		Where("NOT EXISTS (SELECT 1 FROM read_receipts WHERE read_receipts.message_id = messages.id AND read_receipts.user_id = ?)", userID).
		Count(&count).Error
	return count, err
}

// CountUnreadBatch counts unread messages per conversation in one query
func (r *MessageRepository) CountUnreadBatch(ctx context.Context, convIDs []uuid.UUID, userID uuid.UUID) (map[uuid.UUID]int64, error) {
	result := make(map[uuid.UUID]int64, len(convIDs))
	if len(convIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		ConversationID uuid.UUID
		Count          int64
	}
	err := r.db.WithContext(ctx).
		Raw(`SELECT m.conversation_id AS conversation_id, COUNT(*) AS count
		     FROM messages m
		     WHERE m.conversation_id IN ?
		       AND m.sender_id != ?
		       AND NOT EXISTS (
		         SELECT 1 FROM read_receipts r
		         WHERE r.message_id = m.id AND r.user_id = ?
		       )
		     GROUP BY m.conversation_id`, convIDs, userID, userID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		result[row.ConversationID] = row.Count
	}
	return result, nil
}

// Edit replaces content and marks the message edited
func (r *MessageRepository) Edit(ctx context.Context, id uuid.UUID, content string) error {
	res := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"content": content, "edited": true})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete tombstones the message content, keeping the record
func (r *MessageRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"content": model.DeletedPlaceholder, "deleted": true})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete permanently removes the message and its dependent records
func (r *MessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&model.MessageReaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&model.ReadReceipt{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&model.Attachment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Message{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteByConversation removes every message in the conversation along with
// reactions, receipts and attachments
func (r *MessageRepository) DeleteByConversation(ctx context.Context, convID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := tx.Model(&model.Message{}).Select("id").Where("conversation_id = ?", convID)
		if err := tx.Where("message_id IN (?)", sub).Delete(&model.MessageReaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id IN (?)", sub).Delete(&model.ReadReceipt{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id IN (?)", sub).Delete(&model.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Where("conversation_id = ?", convID).Delete(&model.Message{}).Error
	})
}

// UpsertReaction inserts the user's reaction or overwrites its kind. The
// unique index on (message_id, user_id) makes this the one-reaction-per-user
// primitive.
func (r *MessageRepository) UpsertReaction(ctx context.Context, msgID, userID uuid.UUID, kind model.ReactionKind) error {
	reaction := model.MessageReaction{
		MessageID: msgID,
		UserID:    userID,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"kind": kind, "created_at": time.Now()}),
		}).
		Create(&reaction).Error
}

// DeleteReaction removes the user's reaction; absent is a no-op
func (r *MessageRepository) DeleteReaction(ctx context.Context, msgID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", msgID, userID).
		Delete(&model.MessageReaction{}).Error
}

// MarkConversationRead inserts missing read receipts in one set-union
// statement; replays and retries are harmless.
func (r *MessageRepository) MarkConversationRead(ctx context.Context, convID, readerID uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO read_receipts (message_id, user_id, read_at)
		 SELECT m.id, ?, NOW()
		 FROM messages m
		 WHERE m.conversation_id = ? AND m.sender_id != ?
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		readerID, convID, readerID).Error
}
