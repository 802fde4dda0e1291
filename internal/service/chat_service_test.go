package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/ripplehq/ripple/internal/model"
	"github.com/ripplehq/ripple/internal/repository"
	"github.com/ripplehq/ripple/pkg/apperr"
	"github.com/ripplehq/ripple/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *ChatService {
	store := repository.NewMemoryStore()
	return NewChatService(store, store.Messages(), logger.Nop())
}

func mustConversation(t *testing.T, svc *ChatService, users ...uuid.UUID) *model.Conversation {
	t.Helper()
	conv, err := svc.CreateConversation(context.Background(), users, false, "")
	require.NoError(t, err)
	return conv
}

func TestCreateConversation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	t.Run("requires two distinct participants", func(t *testing.T) {
		_, err := svc.CreateConversation(ctx, []uuid.UUID{alice}, false, "")
		assert.ErrorIs(t, err, apperr.ErrValidation)

		_, err = svc.CreateConversation(ctx, []uuid.UUID{alice, alice}, false, "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("collapses duplicates", func(t *testing.T) {
		conv, err := svc.CreateConversation(ctx, []uuid.UUID{alice, bob, alice}, false, "")
		require.NoError(t, err)
		assert.Len(t, conv.Members, 2)
		assert.ElementsMatch(t, []uuid.UUID{alice, bob}, conv.ParticipantIDs())
	})

	t.Run("group name only kept for groups", func(t *testing.T) {
		direct, err := svc.CreateConversation(ctx, []uuid.UUID{alice, bob}, false, "ignored")
		require.NoError(t, err)
		assert.Empty(t, direct.GroupName)

		group, err := svc.CreateConversation(ctx, []uuid.UUID{alice, bob, uuid.New()}, true, "  weekend plans ")
		require.NoError(t, err)
		assert.Equal(t, "weekend plans", group.GroupName)
	})
}

func TestSendMessageValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	conv := mustConversation(t, svc, alice, bob)

	t.Run("empty message rejected", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, conv.ID, alice, "   ", nil, nil)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("unknown conversation rejected", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, uuid.New(), alice, "hi", nil, nil)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("text content defaults to text type", func(t *testing.T) {
		msg, err := svc.SendMessage(ctx, conv.ID, alice, "hello", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, model.MessageTypeText, msg.Type)
		assert.Equal(t, "hello", msg.Content)
	})

	t.Run("attachment-only message types from first attachment", func(t *testing.T) {
		msg, err := svc.SendMessage(ctx, conv.ID, alice, "", []model.AttachmentInput{
			{URL: "https://cdn.example.com/a.png", FileType: "image"},
			{URL: "https://cdn.example.com/b.mp4", FileType: "video"},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, model.MessageTypeImage, msg.Type)
		require.Len(t, msg.Attachments, 2)
		assert.Equal(t, 0, msg.Attachments[0].Position)
		assert.Equal(t, 1, msg.Attachments[1].Position)
	})

	t.Run("unknown attachment type falls back to file", func(t *testing.T) {
		msg, err := svc.SendMessage(ctx, conv.ID, alice, "", []model.AttachmentInput{
			{URL: "https://cdn.example.com/doc.pdf", FileType: "pdf"},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, model.MessageTypeFile, msg.Type)
	})
}

func TestSendMessageReplies(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	conv := mustConversation(t, svc, alice, bob)
	other := mustConversation(t, svc, alice, uuid.New())

	root, err := svc.SendMessage(ctx, conv.ID, alice, "root", nil, nil)
	require.NoError(t, err)

	t.Run("reply links to parent", func(t *testing.T) {
		reply, err := svc.SendMessage(ctx, conv.ID, bob, "reply", nil, &root.ID)
		require.NoError(t, err)
		require.NotNil(t, reply.ReplyToID)
		assert.Equal(t, root.ID, *reply.ReplyToID)
	})

	t.Run("reply target must exist", func(t *testing.T) {
		missing := uuid.New()
		_, err := svc.SendMessage(ctx, conv.ID, bob, "reply", nil, &missing)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("reply target must share the conversation", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, other.ID, alice, "reply", nil, &root.ID)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestUpdateParticipantsIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	conv := mustConversation(t, svc, alice, bob)

	conv, err := svc.UpdateParticipants(ctx, conv.ID, alice, carol, ActionAdd)
	require.NoError(t, err)
	require.Len(t, conv.Members, 3)

	// Second add of the same user is a no-op
	conv, err = svc.UpdateParticipants(ctx, conv.ID, alice, carol, ActionAdd)
	require.NoError(t, err)
	assert.Len(t, conv.Members, 3)

	conv, err = svc.UpdateParticipants(ctx, conv.ID, alice, carol, ActionRemove)
	require.NoError(t, err)
	assert.Len(t, conv.Members, 2)

	// Removing a stranger is a no-op too
	conv, err = svc.UpdateParticipants(ctx, conv.ID, alice, uuid.New(), ActionRemove)
	require.NoError(t, err)
	assert.Len(t, conv.Members, 2)

	t.Run("unknown action", func(t *testing.T) {
		_, err := svc.UpdateParticipants(ctx, conv.ID, alice, carol, "promote")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("non-participant caller", func(t *testing.T) {
		_, err := svc.UpdateParticipants(ctx, conv.ID, uuid.New(), carol, ActionAdd)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})
}

func TestRenameConversation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	conv, err := svc.CreateConversation(ctx, []uuid.UUID{alice, bob}, true, "before")
	require.NoError(t, err)

	t.Run("participant renames", func(t *testing.T) {
		renamed, err := svc.RenameConversation(ctx, conv.ID, alice, " after ")
		require.NoError(t, err)
		assert.Equal(t, "after", renamed.GroupName)
	})

	t.Run("blank name rejected", func(t *testing.T) {
		_, err := svc.RenameConversation(ctx, conv.ID, alice, "   ")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("outsider forbidden", func(t *testing.T) {
		_, err := svc.RenameConversation(ctx, conv.ID, uuid.New(), "hijacked")
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})
}

func TestToggleFlag(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	conv := mustConversation(t, svc, alice, bob)

	memberFlags := func(c *model.Conversation, userID uuid.UUID) *model.ConversationMember {
		for i := range c.Members {
			if c.Members[i].UserID == userID {
				return &c.Members[i]
			}
		}
		return nil
	}

	t.Run("toggle on then off", func(t *testing.T) {
		conv, err := svc.ToggleFlag(ctx, conv.ID, alice, model.FlagPinned)
		require.NoError(t, err)
		assert.True(t, memberFlags(conv, alice).Pinned)
		// Bob's flags are untouched
		assert.False(t, memberFlags(conv, bob).Pinned)

		conv, err = svc.ToggleFlag(ctx, conv.ID, alice, model.FlagPinned)
		require.NoError(t, err)
		assert.False(t, memberFlags(conv, alice).Pinned)
	})

	t.Run("unknown flag", func(t *testing.T) {
		_, err := svc.ToggleFlag(ctx, conv.ID, alice, "starred")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("non-participant forbidden", func(t *testing.T) {
		_, err := svc.ToggleFlag(ctx, conv.ID, uuid.New(), model.FlagMuted)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})
}

func TestReactionToggleLaw(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	conv := mustConversation(t, svc, alice, bob)

	msg, err := svc.SendMessage(ctx, conv.ID, alice, "react to me", nil, nil)
	require.NoError(t, err)

	t.Run("same kind toggles off", func(t *testing.T) {
		m, err := svc.SetReaction(ctx, msg.ID, bob, model.ReactionLike)
		require.NoError(t, err)
		kind, ok := m.ReactionBy(bob)
		require.True(t, ok)
		assert.Equal(t, model.ReactionLike, kind)

		m, err = svc.SetReaction(ctx, msg.ID, bob, model.ReactionLike)
		require.NoError(t, err)
		_, ok = m.ReactionBy(bob)
		assert.False(t, ok)
	})

	t.Run("different kind overwrites", func(t *testing.T) {
		_, err := svc.SetReaction(ctx, msg.ID, bob, model.ReactionLike)
		require.NoError(t, err)
		m, err := svc.SetReaction(ctx, msg.ID, bob, model.ReactionLove)
		require.NoError(t, err)

		var bobReactions int
		for _, r := range m.Reactions {
			if r.UserID == bob {
				bobReactions++
			}
		}
		assert.Equal(t, 1, bobReactions)
		kind, _ := m.ReactionBy(bob)
		assert.Equal(t, model.ReactionLove, kind)
	})

	t.Run("invalid kind rejected", func(t *testing.T) {
		_, err := svc.SetReaction(ctx, msg.ID, bob, "meh")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("remove is a no-op when absent", func(t *testing.T) {
		m, err := svc.RemoveReaction(ctx, msg.ID, uuid.New())
		require.NoError(t, err)
		assert.NotNil(t, m)
	})
}

func TestMarkReadIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	conv := mustConversation(t, svc, alice, bob)

	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.SendMessage(ctx, conv.ID, alice, text, nil, nil)
		require.NoError(t, err)
	}

	count, err := svc.UnreadCount(ctx, conv.ID, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	// Sender's own messages are never unread for the sender
	count, err = svc.UnreadCount(ctx, conv.ID, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.MarkRead(ctx, conv.ID, bob))
	}

	count, err = svc.UnreadCount(ctx, conv.ID, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	// The receipt set did not grow with the repeated calls
	msgs, err := svc.GetMessages(ctx, conv.ID, bob, nil, 10)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.Len(t, m.ReadBy, 1)
	}
}

func TestSoftDeleteVersusUnsend(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	conv := mustConversation(t, svc, alice, bob)

	t.Run("soft delete tombstones", func(t *testing.T) {
		msg, err := svc.SendMessage(ctx, conv.ID, alice, "regret", nil, nil)
		require.NoError(t, err)

		deleted, err := svc.SoftDeleteMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, deleted.Deleted)
		assert.Equal(t, model.DeletedPlaceholder, deleted.Content)

		// Still in history
		fetched, err := svc.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, fetched.Deleted)
	})

	t.Run("unsend removes permanently", func(t *testing.T) {
		msg, err := svc.SendMessage(ctx, conv.ID, alice, "never happened", nil, nil)
		require.NoError(t, err)

		require.NoError(t, svc.UnsendMessage(ctx, msg.ID, alice))

		_, err = svc.GetMessage(ctx, msg.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		msgs, err := svc.GetMessages(ctx, conv.ID, alice, nil, 50)
		require.NoError(t, err)
		for _, m := range msgs {
			assert.NotEqual(t, msg.ID, m.ID)
		}
	})

	t.Run("only the sender may unsend", func(t *testing.T) {
		msg, err := svc.SendMessage(ctx, conv.ID, alice, "mine", nil, nil)
		require.NoError(t, err)

		err = svc.UnsendMessage(ctx, msg.ID, bob)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})
}

func TestEditMessage(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	conv := mustConversation(t, svc, alice, bob)

	msg, err := svc.SendMessage(ctx, conv.ID, alice, "hi", nil, nil)
	require.NoError(t, err)

	t.Run("sender edits", func(t *testing.T) {
		edited, err := svc.EditMessage(ctx, msg.ID, alice, "hi there")
		require.NoError(t, err)
		assert.True(t, edited.Edited)
		assert.Equal(t, "hi there", edited.Content)
	})

	t.Run("non-sender forbidden", func(t *testing.T) {
		_, err := svc.EditMessage(ctx, msg.ID, bob, "hijack")
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("blank content rejected", func(t *testing.T) {
		_, err := svc.EditMessage(ctx, msg.ID, alice, " ")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestGetMessagesPaging(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	conv := mustConversation(t, svc, alice, bob)

	var ids []uuid.UUID
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		msg, err := svc.SendMessage(ctx, conv.ID, alice, text, nil, nil)
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	t.Run("newest first", func(t *testing.T) {
		msgs, err := svc.GetMessages(ctx, conv.ID, bob, nil, 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "e", msgs[0].Content)
		assert.Equal(t, "d", msgs[1].Content)
	})

	t.Run("before cursor pages backwards", func(t *testing.T) {
		msgs, err := svc.GetMessages(ctx, conv.ID, bob, &ids[2], 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "b", msgs[0].Content)
		assert.Equal(t, "a", msgs[1].Content)
	})

	t.Run("outsider forbidden", func(t *testing.T) {
		_, err := svc.GetMessages(ctx, conv.ID, uuid.New(), nil, 10)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("out-of-range limit clamps to default", func(t *testing.T) {
		msgs, err := svc.GetMessages(ctx, conv.ID, bob, nil, -3)
		require.NoError(t, err)
		assert.Len(t, msgs, 5)
	})
}

func TestListConversations(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	first := mustConversation(t, svc, alice, bob)
	second := mustConversation(t, svc, alice, carol)

	_, err := svc.SendMessage(ctx, first.ID, bob, "latest activity", nil, nil)
	require.NoError(t, err)

	_, err = svc.ToggleFlag(ctx, second.ID, alice, model.FlagArchived)
	require.NoError(t, err)

	summaries, err := svc.ListConversations(ctx, alice)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byID := make(map[uuid.UUID]model.ConversationSummary, len(summaries))
	for _, s := range summaries {
		byID[s.Conversation.ID] = s
	}

	withMsg := byID[first.ID]
	require.NotNil(t, withMsg.LastMessage)
	assert.Equal(t, "latest activity", withMsg.LastMessage.Content)
	assert.Equal(t, 1, withMsg.UnreadCount)

	archived := byID[second.ID]
	assert.Nil(t, archived.LastMessage)
	assert.Zero(t, archived.UnreadCount)
	assert.True(t, archived.Archived)
	assert.False(t, archived.Pinned)
}

func TestDeleteConversation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	conv := mustConversation(t, svc, alice, bob)

	msg, err := svc.SendMessage(ctx, conv.ID, alice, "doomed", nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteConversation(ctx, conv.ID))

	_, err = svc.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, svc.DeleteConversation(ctx, conv.ID), apperr.ErrNotFound)
}

// TestEndToEndScenario walks a full exchange between two users.
func TestEndToEndScenario(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	conv := mustConversation(t, svc, alice, bob)

	msg, err := svc.SendMessage(ctx, conv.ID, alice, "hi", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.MessageTypeText, msg.Type)
	assert.Equal(t, "hi", msg.Content)

	unread, err := svc.UnreadCount(ctx, conv.ID, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)

	require.NoError(t, svc.MarkRead(ctx, conv.ID, bob))
	unread, err = svc.UnreadCount(ctx, conv.ID, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 0, unread)

	edited, err := svc.EditMessage(ctx, msg.ID, alice, "hi there")
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.Equal(t, "hi there", edited.Content)

	require.NoError(t, svc.UnsendMessage(ctx, msg.ID, alice))
	msgs, err := svc.GetMessages(ctx, conv.ID, bob, nil, 50)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	last, err := svc.LastMessage(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestStoreErrTaxonomy(t *testing.T) {
	svc := newTestService()

	err := svc.storeErr("thing", repository.ErrNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = svc.storeErr("thing", errors.New("disk on fire"))
	assert.ErrorIs(t, err, apperr.ErrInternal)
}
