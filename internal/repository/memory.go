package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ripplehq/ripple/internal/model"
)

// MemoryStore is an in-memory implementation of ConversationStore,
// MessageStore and DeviceStore. It backs tests and the single-binary dev
// mode; all methods are safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	convs   map[uuid.UUID]*model.Conversation
	msgs    map[uuid.UUID]*model.Message
	byConv  map[uuid.UUID][]uuid.UUID // conversation -> message ids in send order
	devices []model.UserDevice
}

var (
	_ ConversationStore = (*MemoryStore)(nil)
	_ MessageStore      = memoryMessages{}
	_ DeviceStore       = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs:  make(map[uuid.UUID]*model.Conversation),
		msgs:   make(map[uuid.UUID]*model.Message),
		byConv: make(map[uuid.UUID][]uuid.UUID),
	}
}

// ========== ConversationStore ==========

func (s *MemoryStore) Create(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	for i := range conv.Members {
		if conv.Members[i].ID == uuid.Nil {
			conv.Members[i].ID = uuid.New()
		}
		conv.Members[i].ConversationID = conv.ID
		conv.Members[i].JoinedAt = now
	}

	stored := copyConversation(conv)
	s.convs[conv.ID] = stored
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(conv), nil
}

func (s *MemoryStore) FindByParticipant(ctx context.Context, userID uuid.UUID) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Conversation
	for _, conv := range s.convs {
		if conv.HasParticipant(userID) {
			out = append(out, *copyConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Rename(ctx context.Context, id uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	conv.GroupName = name
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AddParticipant(ctx context.Context, convID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[convID]
	if !ok {
		return ErrNotFound
	}
	if conv.HasParticipant(userID) {
		return nil
	}
	conv.Members = append(conv.Members, model.ConversationMember{
		ID:             uuid.New(),
		ConversationID: convID,
		UserID:         userID,
		JoinedAt:       time.Now(),
	})
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) RemoveParticipant(ctx context.Context, convID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[convID]
	if !ok {
		return ErrNotFound
	}
	members := conv.Members[:0]
	for _, m := range conv.Members {
		if m.UserID != userID {
			members = append(members, m)
		}
	}
	conv.Members = members
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetFlag(ctx context.Context, convID, userID uuid.UUID, flag model.FlagKind, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[convID]
	if !ok {
		return ErrNotFound
	}
	for i := range conv.Members {
		if conv.Members[i].UserID == userID {
			conv.Members[i].SetFlag(flag, value)
			conv.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) Touch(ctx context.Context, convID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[convID]
	if !ok {
		return ErrNotFound
	}
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, convID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[convID]; !ok {
		return ErrNotFound
	}
	delete(s.convs, convID)
	return nil
}

// ========== MessageStore ==========

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	now := time.Now()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	for i := range msg.Attachments {
		if msg.Attachments[i].ID == uuid.Nil {
			msg.Attachments[i].ID = uuid.New()
		}
		msg.Attachments[i].MessageID = msg.ID
		msg.Attachments[i].Position = i
		msg.Attachments[i].CreatedAt = now
	}

	s.msgs[msg.ID] = copyMessage(msg)
	s.byConv[msg.ConversationID] = append(s.byConv[msg.ConversationID], msg.ID)
	return nil
}

func (s *MemoryStore) FindMessageByID(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.msgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(msg), nil
}

func (s *MemoryStore) FindByConversation(ctx context.Context, convID uuid.UUID, before *uuid.UUID, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byConv[convID]
	end := len(ids)
	if before != nil {
		found := false
		for i, id := range ids {
			if id == *before {
				end = i
				found = true
				break
			}
		}
		if !found {
			return nil, ErrNotFound
		}
	}

	out := []model.Message{}
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		if msg, ok := s.msgs[ids[i]]; ok {
			out = append(out, *copyMessage(msg))
		}
	}
	return out, nil
}

func (s *MemoryStore) LastMessages(ctx context.Context, convIDs []uuid.UUID) (map[uuid.UUID]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[uuid.UUID]*model.Message, len(convIDs))
	for _, convID := range convIDs {
		ids := s.byConv[convID]
		for i := len(ids) - 1; i >= 0; i-- {
			if msg, ok := s.msgs[ids[i]]; ok {
				result[convID] = copyMessage(msg)
				break
			}
		}
	}
	return result, nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, convID, userID uuid.UUID) (int64, error) {
	counts, err := s.CountUnreadBatch(ctx, []uuid.UUID{convID}, userID)
	if err != nil {
		return 0, err
	}
	return counts[convID], nil
}

func (s *MemoryStore) CountUnreadBatch(ctx context.Context, convIDs []uuid.UUID, userID uuid.UUID) (map[uuid.UUID]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[uuid.UUID]int64, len(convIDs))
	for _, convID := range convIDs {
		for _, id := range s.byConv[convID] {
			msg, ok := s.msgs[id]
			if !ok {
				continue
			}
			if msg.SenderID != userID && !msg.ReadByUser(userID) {
				result[convID]++
			}
		}
	}
	return result, nil
}

func (s *MemoryStore) Edit(ctx context.Context, id uuid.UUID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.msgs[id]
	if !ok {
		return ErrNotFound
	}
	msg.Content = content
	msg.Edited = true
	msg.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.msgs[id]
	if !ok {
		return ErrNotFound
	}
	msg.Content = model.DeletedPlaceholder
	msg.Deleted = true
	msg.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.msgs[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.msgs, id)
	ids := s.byConv[msg.ConversationID]
	for i, mid := range ids {
		if mid == id {
			s.byConv[msg.ConversationID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) DeleteByConversation(ctx context.Context, convID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byConv[convID] {
		delete(s.msgs, id)
	}
	delete(s.byConv, convID)
	return nil
}

func (s *MemoryStore) UpsertReaction(ctx context.Context, msgID, userID uuid.UUID, kind model.ReactionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.msgs[msgID]
	if !ok {
		return ErrNotFound
	}
	for i := range msg.Reactions {
		if msg.Reactions[i].UserID == userID {
			msg.Reactions[i].Kind = kind
			return nil
		}
	}
	msg.Reactions = append(msg.Reactions, model.MessageReaction{
		ID:        uuid.New(),
		MessageID: msgID,
		UserID:    userID,
		Kind:      kind,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *MemoryStore) DeleteReaction(ctx context.Context, msgID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.msgs[msgID]
	if !ok {
		return ErrNotFound
	}
	reactions := msg.Reactions[:0]
	for _, r := range msg.Reactions {
		if r.UserID != userID {
			reactions = append(reactions, r)
		}
	}
	msg.Reactions = reactions
	return nil
}

func (s *MemoryStore) MarkConversationRead(ctx context.Context, convID, readerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, id := range s.byConv[convID] {
		msg, ok := s.msgs[id]
		if !ok || msg.SenderID == readerID || msg.ReadByUser(readerID) {
			continue
		}
		msg.ReadBy = append(msg.ReadBy, model.ReadReceipt{
			ID:        uuid.New(),
			MessageID: id,
			UserID:    readerID,
			ReadAt:    now,
		})
	}
	return nil
}

// ========== DeviceStore ==========

func (s *MemoryStore) Register(ctx context.Context, userID uuid.UUID, token, deviceType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.devices {
		if s.devices[i].UserID == userID && s.devices[i].FCMToken == token {
			s.devices[i].LastActiveAt = time.Now()
			s.devices[i].DeviceType = deviceType
			return nil
		}
	}
	s.devices = append(s.devices, model.UserDevice{
		ID:           uuid.New(),
		UserID:       userID,
		FCMToken:     token,
		DeviceType:   deviceType,
		LastActiveAt: time.Now(),
		CreatedAt:    time.Now(),
	})
	return nil
}

func (s *MemoryStore) TokensForUsers(ctx context.Context, userIDs []uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens []string
	for _, d := range s.devices {
		for _, id := range userIDs {
			if d.UserID == id {
				tokens = append(tokens, d.FCMToken)
				break
			}
		}
	}
	return tokens, nil
}

// Messages returns the MessageStore view over the shared in-memory data.
// The view exists only to map the interface's Create/FindByID/Delete names
// onto the message variants.
func (s *MemoryStore) Messages() MessageStore { return memoryMessages{s} }

type memoryMessages struct{ s *MemoryStore }

func (m memoryMessages) Create(ctx context.Context, msg *model.Message) error {
	return m.s.CreateMessage(ctx, msg)
}

func (m memoryMessages) FindByID(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	return m.s.FindMessageByID(ctx, id)
}

func (m memoryMessages) FindByConversation(ctx context.Context, convID uuid.UUID, before *uuid.UUID, limit int) ([]model.Message, error) {
	return m.s.FindByConversation(ctx, convID, before, limit)
}

func (m memoryMessages) LastMessages(ctx context.Context, convIDs []uuid.UUID) (map[uuid.UUID]*model.Message, error) {
	return m.s.LastMessages(ctx, convIDs)
}

func (m memoryMessages) CountUnread(ctx context.Context, convID, userID uuid.UUID) (int64, error) {
	return m.s.CountUnread(ctx, convID, userID)
}

func (m memoryMessages) CountUnreadBatch(ctx context.Context, convIDs []uuid.UUID, userID uuid.UUID) (map[uuid.UUID]int64, error) {
	return m.s.CountUnreadBatch(ctx, convIDs, userID)
}

func (m memoryMessages) Edit(ctx context.Context, id uuid.UUID, content string) error {
	return m.s.Edit(ctx, id, content)
}

func (m memoryMessages) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return m.s.SoftDelete(ctx, id)
}

func (m memoryMessages) Delete(ctx context.Context, id uuid.UUID) error {
	return m.s.DeleteMessage(ctx, id)
}

func (m memoryMessages) DeleteByConversation(ctx context.Context, convID uuid.UUID) error {
	return m.s.DeleteByConversation(ctx, convID)
}

func (m memoryMessages) UpsertReaction(ctx context.Context, msgID, userID uuid.UUID, kind model.ReactionKind) error {
	return m.s.UpsertReaction(ctx, msgID, userID, kind)
}

func (m memoryMessages) DeleteReaction(ctx context.Context, msgID, userID uuid.UUID) error {
	return m.s.DeleteReaction(ctx, msgID, userID)
}

func (m memoryMessages) MarkConversationRead(ctx context.Context, convID, readerID uuid.UUID) error {
	return m.s.MarkConversationRead(ctx, convID, readerID)
}

// ========== copy helpers ==========

func copyConversation(c *model.Conversation) *model.Conversation {
	out := *c
	out.Members = append([]model.ConversationMember(nil), c.Members...)
	return &out
}

func copyMessage(m *model.Message) *model.Message {
	out := *m
	out.Attachments = append([]model.Attachment(nil), m.Attachments...)
	out.Reactions = append([]model.MessageReaction(nil), m.Reactions...)
	out.ReadBy = append([]model.ReadReceipt(nil), m.ReadBy...)
	return &out
}
