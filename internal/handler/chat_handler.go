package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ripplehq/ripple/internal/model"
	"github.com/ripplehq/ripple/internal/service"
	"github.com/ripplehq/ripple/internal/ws"
	"github.com/ripplehq/ripple/pkg/apperr"
)

// ChatHandler handles conversation and message HTTP endpoints
type ChatHandler struct {
	chatService *service.ChatService
	hub         *ws.Hub
}

func NewChatHandler(chatService *service.ChatService, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{chatService: chatService, hub: hub}
}

// respondErr maps domain errors onto HTTP status codes
func respondErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrRateLimited):
		status = http.StatusTooManyRequests
	}
	c.JSON(status, model.ErrorResponse{Error: err.Error()})
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// CreateConversation godoc
// @Summary Create a conversation
// @Description Creates a direct or group conversation. Requires at least two distinct participants.
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.CreateConversationRequest true "Create conversation request"
// @Success 201 {object} model.Conversation
// @Failure 400 {object} model.ErrorResponse
// @Router /conversations [post]
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req model.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	participants := append([]uuid.UUID{userID}, req.Participants...)

	conv, err := h.chatService.CreateConversation(c.Request.Context(), participants, req.IsGroup, req.GroupName)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, conv)
}

// GetConversations godoc
// @Summary List the current user's conversations
// @Description Returns summaries with last message, unread count and per-user flags.
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.ConversationSummary
// @Router /conversations [get]
func (h *ChatHandler) GetConversations(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	summaries, err := h.chatService.ListConversations(c.Request.Context(), userID)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, summaries)
}

// GetConversation godoc
// @Summary Get a conversation
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} model.Conversation
// @Failure 404 {object} model.ErrorResponse
// @Router /conversations/{id} [get]
func (h *ChatHandler) GetConversation(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	conv, err := h.chatService.GetConversation(c.Request.Context(), convID)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

// DeleteConversation godoc
// @Summary Delete a conversation and all of its messages
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} model.SuccessResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /conversations/{id} [delete]
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.chatService.DeleteConversation(c.Request.Context(), convID); err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Conversation deleted"})
}

// RenameConversation godoc
// @Summary Rename a group conversation
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.RenameConversationRequest true "New name"
// @Success 200 {object} model.Conversation
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/name [patch]
func (h *ChatHandler) RenameConversation(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req model.RenameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	conv, err := h.chatService.RenameConversation(c.Request.Context(), convID, userID, req.NewName)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

// UpdateParticipants godoc
// @Summary Add or remove a participant
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.UpdateParticipantsRequest true "Action and target user"
// @Success 200 {object} model.Conversation
// @Failure 400 {object} model.ErrorResponse
// @Router /conversations/{id}/participants [patch]
func (h *ChatHandler) UpdateParticipants(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateParticipantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	conv, err := h.chatService.UpdateParticipants(c.Request.Context(), convID, userID, req.UserID, req.Action)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

// ToggleFlag godoc
// @Summary Toggle a per-user conversation flag
// @Description Flips pinned, archived or muted for the current user.
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param flag path string true "Flag kind (pinned|archived|muted)"
// @Success 200 {object} model.Conversation
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/flags/{flag} [post]
func (h *ChatHandler) ToggleFlag(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	conv, err := h.chatService.ToggleFlag(c.Request.Context(), convID, userID, model.FlagKind(c.Param("flag")))
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

// SendMessage godoc
// @Summary Send a message
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.SendMessageRequest true "Send message request"
// @Success 201 {object} model.Message
// @Failure 400 {object} model.ErrorResponse
// @Router /conversations/{id}/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	msg, err := h.chatService.SendMessage(c.Request.Context(), convID, userID, req.Content, req.Attachments, req.ReplyToID)
	if err != nil {
		respondErr(c, err)
		return
	}

	// Realtime subscribers see HTTP-sent messages too
	h.hub.BroadcastRoom(convID, &model.WSEvent{
		Type:    model.WSEventMessageReceived,
		Payload: msg,
	}, nil)

	c.JSON(http.StatusCreated, msg)
}

// GetMessages godoc
// @Summary List messages, newest first
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param before query string false "Cursor: message ID to page before"
// @Param limit query int false "Page size (default 50, max 100)"
// @Success 200 {array} model.Message
// @Router /conversations/{id}/messages [get]
func (h *ChatHandler) GetMessages(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req model.MessageListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request"})
		return
	}

	var before *uuid.UUID
	if req.Before != "" {
		parsed, err := uuid.Parse(req.Before)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid cursor"})
			return
		}
		before = &parsed
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	messages, err := h.chatService.GetMessages(c.Request.Context(), convID, userID, before, req.Limit)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// MarkAsRead godoc
// @Summary Mark every message in a conversation as read
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} model.SuccessResponse
// @Router /conversations/{id}/read [post]
func (h *ChatHandler) MarkAsRead(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	if err := h.chatService.MarkRead(c.Request.Context(), convID, userID); err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Messages marked as read"})
}

// EditMessage godoc
// @Summary Edit a message's content
// @Description Sender only. Marks the message as edited.
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param body body model.EditMessageRequest true "New content"
// @Success 200 {object} model.Message
// @Failure 403 {object} model.ErrorResponse
// @Router /messages/{id} [patch]
func (h *ChatHandler) EditMessage(c *gin.Context) {
	msgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req model.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	msg, err := h.chatService.EditMessage(c.Request.Context(), msgID, userID, req.Content)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// DeleteMessage godoc
// @Summary Delete a message for everyone
// @Description Soft delete: the message stays in history with placeholder content.
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Success 200 {object} model.Message
// @Failure 404 {object} model.ErrorResponse
// @Router /messages/{id} [delete]
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	msgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	msg, err := h.chatService.SoftDeleteMessage(c.Request.Context(), msgID)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// UnsendMessage godoc
// @Summary Remove a message permanently
// @Description Sender only. The message disappears from history entirely.
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /messages/{id}/unsend [delete]
func (h *ChatHandler) UnsendMessage(c *gin.Context) {
	msgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	if err := h.chatService.UnsendMessage(c.Request.Context(), msgID, userID); err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Message removed"})
}

// SetReaction godoc
// @Summary Set the current user's reaction on a message
// @Description One reaction per user. Re-sending the same kind removes it.
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param body body model.SetReactionRequest true "Reaction kind"
// @Success 200 {object} model.Message
// @Failure 400 {object} model.ErrorResponse
// @Router /messages/{id}/reactions [put]
func (h *ChatHandler) SetReaction(c *gin.Context) {
	msgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req model.SetReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	msg, err := h.chatService.SetReaction(c.Request.Context(), msgID, userID, req.Kind)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// RemoveReaction godoc
// @Summary Remove the current user's reaction from a message
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Success 200 {object} model.Message
// @Router /messages/{id}/reactions [delete]
func (h *ChatHandler) RemoveReaction(c *gin.Context) {
	msgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	msg, err := h.chatService.RemoveReaction(c.Request.Context(), msgID, userID)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}
