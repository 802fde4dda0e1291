package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/ripplehq/ripple/internal/model"
	"github.com/ripplehq/ripple/internal/repository"
	"github.com/ripplehq/ripple/pkg/apperr"
	"go.uber.org/zap"
)

// ChatService is the conversation/message engine. Every operation takes the
// caller identity explicitly and returns errors from the apperr taxonomy;
// persistence faults are logged here and surfaced as ErrInternal without
// detail.
type ChatService struct {
	convStore repository.ConversationStore
	msgStore  repository.MessageStore
	log       *zap.SugaredLogger
}

func NewChatService(convStore repository.ConversationStore, msgStore repository.MessageStore, log *zap.SugaredLogger) *ChatService {
	return &ChatService{
		convStore: convStore,
		msgStore:  msgStore,
		log:       log,
	}
}

// storeErr maps adapter errors into the domain taxonomy.
func (s *ChatService) storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFoundf("%s", op)
	}
	s.log.Errorw("persistence failure", "op", op, "error", err)
	return apperr.Internal(err)
}

// CreateConversation persists a new conversation. Duplicate participant ids
// are collapsed; fewer than 2 distinct participants is a validation error.
func (s *ChatService) CreateConversation(ctx context.Context, participants []uuid.UUID, isGroup bool, groupName string) (*model.Conversation, error) {
	seen := make(map[uuid.UUID]bool, len(participants))
	distinct := make([]uuid.UUID, 0, len(participants))
	for _, id := range participants {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		distinct = append(distinct, id)
	}
	if len(distinct) < 2 {
		return nil, apperr.Validationf("a conversation requires at least 2 distinct participants")
	}

	conv := &model.Conversation{IsGroup: isGroup}
	if isGroup {
		conv.GroupName = strings.TrimSpace(groupName)
	}
	for _, id := range distinct {
		conv.Members = append(conv.Members, model.ConversationMember{UserID: id})
	}

	if err := s.convStore.Create(ctx, conv); err != nil {
		return nil, s.storeErr("create conversation", err)
	}
	return s.GetConversation(ctx, conv.ID)
}

// GetConversation loads a conversation with its members.
func (s *ChatService) GetConversation(ctx context.Context, convID uuid.UUID) (*model.Conversation, error) {
	conv, err := s.convStore.FindByID(ctx, convID)
	if err != nil {
		return nil, s.storeErr("conversation", err)
	}
	return conv, nil
}

// ListConversations returns the user's conversations, most recently active
// first, annotated with last message, unread count and the user's flags.
// Last messages and unread counts come from two batched lookups, not a
// per-conversation fan-out.
func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID) ([]model.ConversationSummary, error) {
	conversations, err := s.convStore.FindByParticipant(ctx, userID)
	if err != nil {
		return nil, s.storeErr("list conversations", err)
	}

	convIDs := make([]uuid.UUID, 0, len(conversations))
	for i := range conversations {
		convIDs = append(convIDs, conversations[i].ID)
	}

	lastMessages, err := s.msgStore.LastMessages(ctx, convIDs)
	if err != nil {
		return nil, s.storeErr("last messages", err)
	}
	unreadCounts, err := s.msgStore.CountUnreadBatch(ctx, convIDs, userID)
	if err != nil {
		return nil, s.storeErr("unread counts", err)
	}

	summaries := make([]model.ConversationSummary, 0, len(conversations))
	for i := range conversations {
		conv := conversations[i]
		summary := model.ConversationSummary{
			Conversation: conv,
			LastMessage:  lastMessages[conv.ID],
			UnreadCount:  int(unreadCounts[conv.ID]),
		}
		for _, m := range conv.Members {
			if m.UserID == userID {
				summary.Pinned = m.Pinned
				summary.Archived = m.Archived
				summary.Muted = m.Muted
				break
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// DeleteConversation removes the conversation and every message in it.
// Messages go first so a fault never leaves them orphaned.
func (s *ChatService) DeleteConversation(ctx context.Context, convID uuid.UUID) error {
	if _, err := s.convStore.FindByID(ctx, convID); err != nil {
		return s.storeErr("conversation", err)
	}
	if err := s.msgStore.DeleteByConversation(ctx, convID); err != nil {
		return s.storeErr("delete conversation messages", err)
	}
	if err := s.convStore.Delete(ctx, convID); err != nil {
		return s.storeErr("delete conversation", err)
	}
	return nil
}

// RenameConversation sets the group name; participants only.
func (s *ChatService) RenameConversation(ctx context.Context, convID, callerID uuid.UUID, newName string) (*model.Conversation, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, apperr.Validationf("conversation name cannot be empty")
	}

	conv, err := s.convStore.FindByID(ctx, convID)
	if err != nil {
		return nil, s.storeErr("conversation", err)
	}
	if !conv.HasParticipant(callerID) {
		return nil, apperr.Forbiddenf("only participants may rename a conversation")
	}

	if err := s.convStore.Rename(ctx, convID, newName); err != nil {
		return nil, s.storeErr("rename conversation", err)
	}
	return s.GetConversation(ctx, convID)
}

// Participant update actions
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// UpdateParticipants adds or removes a participant. Both actions are
// idempotent: re-adding a member or removing a stranger is a no-op.
func (s *ChatService) UpdateParticipants(ctx context.Context, convID, callerID, targetID uuid.UUID, action string) (*model.Conversation, error) {
	conv, err := s.convStore.FindByID(ctx, convID)
	if err != nil {
		return nil, s.storeErr("conversation", err)
	}
	if !conv.HasParticipant(callerID) {
		return nil, apperr.Forbiddenf("only participants may update membership")
	}

	switch action {
	case ActionAdd:
		err = s.convStore.AddParticipant(ctx, convID, targetID)
	case ActionRemove:
		err = s.convStore.RemoveParticipant(ctx, convID, targetID)
	default:
		return nil, apperr.Validationf("unrecognized action %q, use %q or %q", action, ActionAdd, ActionRemove)
	}
	if err != nil {
		return nil, s.storeErr("update participants", err)
	}
	return s.GetConversation(ctx, convID)
}

// ToggleFlag flips the user's pinned/archived/muted flag on the
// conversation: in the set means remove, absent means add.
func (s *ChatService) ToggleFlag(ctx context.Context, convID, userID uuid.UUID, flag model.FlagKind) (*model.Conversation, error) {
	if !model.ValidFlag(flag) {
		return nil, apperr.Validationf("unknown flag %q", flag)
	}

	conv, err := s.convStore.FindByID(ctx, convID)
	if err != nil {
		return nil, s.storeErr("conversation", err)
	}

	var member *model.ConversationMember
	for i := range conv.Members {
		if conv.Members[i].UserID == userID {
			member = &conv.Members[i]
			break
		}
	}
	if member == nil {
		return nil, apperr.Forbiddenf("only participants may flag a conversation")
	}

	if err := s.convStore.SetFlag(ctx, convID, userID, flag, !member.Flag(flag)); err != nil {
		return nil, s.storeErr("toggle flag", err)
	}
	return s.GetConversation(ctx, convID)
}

// SendMessage validates, persists and returns a new message, then bumps
// the conversation's activity timestamp.
func (s *ChatService) SendMessage(ctx context.Context, convID, senderID uuid.UUID, content string, attachments []model.AttachmentInput, replyTo *uuid.UUID) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(attachments) == 0 {
		return nil, apperr.Validationf("a message needs content or attachments")
	}

	if _, err := s.convStore.FindByID(ctx, convID); err != nil {
		return nil, s.storeErr("conversation", err)
	}

	if replyTo != nil {
		target, err := s.msgStore.FindByID(ctx, *replyTo)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.Validationf("reply target does not exist")
			}
			return nil, s.storeErr("reply target", err)
		}
		if target.ConversationID != convID {
			return nil, apperr.Validationf("reply target belongs to another conversation")
		}
	}

	msg := &model.Message{
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		ReplyToID:      replyTo,
	}
	for i, a := range attachments {
		msg.Attachments = append(msg.Attachments, model.Attachment{
			URL:      a.URL,
			FileType: a.FileType,
			Position: i,
		})
	}
	msg.Type = model.InferType(content, msg.Attachments)

	if err := s.msgStore.Create(ctx, msg); err != nil {
		return nil, s.storeErr("create message", err)
	}
	if err := s.convStore.Touch(ctx, convID); err != nil {
		s.log.Warnw("failed to bump conversation activity", "conversation_id", convID, "error", err)
	}
	return s.GetMessage(ctx, msg.ID)
}

// GetMessage loads a single message.
func (s *ChatService) GetMessage(ctx context.Context, msgID uuid.UUID) (*model.Message, error) {
	msg, err := s.msgStore.FindByID(ctx, msgID)
	if err != nil {
		return nil, s.storeErr("message", err)
	}
	return msg, nil
}

// GetMessages returns paginated history for a conversation; participants only.
func (s *ChatService) GetMessages(ctx context.Context, convID, userID uuid.UUID, before *uuid.UUID, limit int) ([]model.Message, error) {
	conv, err := s.convStore.FindByID(ctx, convID)
	if err != nil {
		return nil, s.storeErr("conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.Forbiddenf("only participants may read a conversation")
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	messages, err := s.msgStore.FindByConversation(ctx, convID, before, limit)
	if err != nil {
		return nil, s.storeErr("messages", err)
	}
	return messages, nil
}

// LastMessage returns the most recent message, or nil for an empty thread.
func (s *ChatService) LastMessage(ctx context.Context, convID uuid.UUID) (*model.Message, error) {
	last, err := s.msgStore.LastMessages(ctx, []uuid.UUID{convID})
	if err != nil {
		return nil, s.storeErr("last message", err)
	}
	return last[convID], nil
}

// EditMessage replaces message content; sender only.
func (s *ChatService) EditMessage(ctx context.Context, msgID, callerID uuid.UUID, newContent string) (*model.Message, error) {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return nil, apperr.Validationf("message content cannot be empty")
	}

	msg, err := s.msgStore.FindByID(ctx, msgID)
	if err != nil {
		return nil, s.storeErr("message", err)
	}
	if msg.SenderID != callerID {
		return nil, apperr.Forbiddenf("only the sender may edit a message")
	}

	if err := s.msgStore.Edit(ctx, msgID, newContent); err != nil {
		return nil, s.storeErr("edit message", err)
	}
	return s.GetMessage(ctx, msgID)
}

// SoftDeleteMessage tombstones the message content. The record stays, as do
// its reactions and read receipts.
func (s *ChatService) SoftDeleteMessage(ctx context.Context, msgID uuid.UUID) (*model.Message, error) {
	if err := s.msgStore.SoftDelete(ctx, msgID); err != nil {
		return nil, s.storeErr("delete message", err)
	}
	return s.GetMessage(ctx, msgID)
}

// UnsendMessage permanently removes the message; sender only. Unlike soft
// delete this is irreversible.
func (s *ChatService) UnsendMessage(ctx context.Context, msgID, callerID uuid.UUID) error {
	msg, err := s.msgStore.FindByID(ctx, msgID)
	if err != nil {
		return s.storeErr("message", err)
	}
	if msg.SenderID != callerID {
		return apperr.Forbiddenf("only the sender may unsend a message")
	}
	if err := s.msgStore.Delete(ctx, msgID); err != nil {
		return s.storeErr("unsend message", err)
	}
	return nil
}

// SetReaction records the user's single reaction to a message. The same
// kind toggles the reaction off; a different kind overwrites it.
func (s *ChatService) SetReaction(ctx context.Context, msgID, userID uuid.UUID, kind model.ReactionKind) (*model.Message, error) {
	if !model.ValidReaction(kind) {
		return nil, apperr.Validationf("unknown reaction %q", kind)
	}

	msg, err := s.msgStore.FindByID(ctx, msgID)
	if err != nil {
		return nil, s.storeErr("message", err)
	}

	if current, ok := msg.ReactionBy(userID); ok && current == kind {
		err = s.msgStore.DeleteReaction(ctx, msgID, userID)
	} else {
		err = s.msgStore.UpsertReaction(ctx, msgID, userID, kind)
	}
	if err != nil {
		return nil, s.storeErr("set reaction", err)
	}
	return s.GetMessage(ctx, msgID)
}

// RemoveReaction removes the user's reaction; absent is a no-op.
func (s *ChatService) RemoveReaction(ctx context.Context, msgID, userID uuid.UUID) (*model.Message, error) {
	if _, err := s.msgStore.FindByID(ctx, msgID); err != nil {
		return nil, s.storeErr("message", err)
	}
	if err := s.msgStore.DeleteReaction(ctx, msgID, userID); err != nil {
		return nil, s.storeErr("remove reaction", err)
	}
	return s.GetMessage(ctx, msgID)
}

// MarkRead acknowledges every message in the conversation the reader has
// not sent. Set-union semantics: retries and replays are harmless.
func (s *ChatService) MarkRead(ctx context.Context, convID, readerID uuid.UUID) error {
	if _, err := s.convStore.FindByID(ctx, convID); err != nil {
		return s.storeErr("conversation", err)
	}
	if err := s.msgStore.MarkConversationRead(ctx, convID, readerID); err != nil {
		return s.storeErr("mark read", err)
	}
	return nil
}

// UnreadCount reports how many messages in the conversation the user has
// neither sent nor acknowledged.
func (s *ChatService) UnreadCount(ctx context.Context, convID, userID uuid.UUID) (int64, error) {
	count, err := s.msgStore.CountUnread(ctx, convID, userID)
	if err != nil {
		return 0, s.storeErr("unread count", err)
	}
	return count, nil
}
