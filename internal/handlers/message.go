package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/events"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

// MessageHandler manages message endpoints.
type MessageHandler struct {
	messageRepo      repositories.MessageRepository
	conversationRepo repositories.ConversationRepository
	emitter          *events.Emitter
	logger           *logrus.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messageRepo repositories.MessageRepository, conversationRepo repositories.ConversationRepository, emitter *events.Emitter, logger *logrus.Logger) *MessageHandler {
	return &MessageHandler{
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		emitter:          emitter,
		logger:           logger,
	}
}

// ListMessages returns all messages of a conversation, newest first, with
// sender identity embedded. Only participants may read a conversation.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	conversationID := c.Param("conversation_id")

	member, err := h.conversationRepo.IsParticipant(c.Request.Context(), conversationID, user.ID)
	if err != nil {
		h.logger.WithError(err).Error("membership check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return
	}

	msgs, err := h.messageRepo.ListForConversation(c.Request.Context(), conversationID)
	if err != nil {
		h.logger.WithError(err).WithField("conversation_id", conversationID).Error("list messages failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage stores a message, updates the conversation read-state and fans
// out the message-sent and conversation-updated events.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}

	var req struct {
		ID             string `json:"id"`
		ConversationID string `json:"conversation_id" binding:"required"`
		SenderID       string `json:"sender_id" binding:"required"`
		Body           string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ctx, span := otel.Tracer("messenger-service/handlers").Start(c.Request.Context(), "message.send")
	defer span.End()

	msg, conversation, err := h.messageRepo.Send(ctx, repositories.SendMessageParams{
		MessageID:      req.ID,
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		CallerID:       user.ID,
		Body:           req.Body,
	})
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrParticipantNotFound):
			c.JSON(http.StatusForbidden, gin.H{"error": "participant does not exist"})
		case errors.Is(err, repositories.ErrConversationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		default:
			h.logger.WithError(err).WithFields(logrus.Fields{
				"conversation_id": req.ConversationID,
				"message_id":      req.ID,
			}).Error("send message failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "error sending message"})
		}
		return
	}

	h.emitter.MessageSent(ctx, msg)
	h.emitter.ConversationUpdated(ctx, conversation)
	observability.IncMessageSent()

	c.JSON(http.StatusCreated, gin.H{"success": true})
}
