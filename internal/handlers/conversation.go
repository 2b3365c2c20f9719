package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"messenger-service/internal/events"
	"messenger-service/internal/middleware"
	"messenger-service/internal/repositories"
)

// ConversationHandler manages conversation endpoints.
type ConversationHandler struct {
	conversationRepo repositories.ConversationRepository
	emitter          *events.Emitter
	logger           *logrus.Logger
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversationRepo repositories.ConversationRepository, emitter *events.Emitter, logger *logrus.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversationRepo: conversationRepo,
		emitter:          emitter,
		logger:           logger,
	}
}

// CreateConversation creates a conversation with the caller plus the given
// users and fans out the created event.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}

	var req struct {
		ParticipantIDs []string `json:"participant_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conversation, err := h.conversationRepo.Create(c.Request.Context(), user.ID, req.ParticipantIDs)
	if err != nil {
		h.logger.WithError(err).Error("create conversation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	h.emitter.ConversationCreated(c.Request.Context(), conversation)
	c.JSON(http.StatusCreated, gin.H{"conversation": conversation})
}

// ListConversations returns the caller's conversations, most recently updated
// first, with participants and latest message embedded.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}

	conversations, err := h.conversationRepo.ListForUser(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.WithError(err).Error("list conversations failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// MarkConversationRead flags the caller's participant row as having seen the
// latest message.
func (h *ConversationHandler) MarkConversationRead(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	conversationID := c.Param("conversation_id")

	if err := h.conversationRepo.MarkRead(c.Request.Context(), conversationID, user.ID); err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			c.JSON(http.StatusForbidden, gin.H{"error": "participant does not exist"})
			return
		}
		h.logger.WithError(err).WithField("conversation_id", conversationID).Error("mark read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark conversation read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteConversation removes a conversation with its participants and
// messages and fans out the deleted event. Participant-only.
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	conversationID := c.Param("conversation_id")

	member, err := h.conversationRepo.IsParticipant(c.Request.Context(), conversationID, user.ID)
	if err != nil {
		h.logger.WithError(err).Error("membership check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete conversation"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return
	}

	conversation, err := h.conversationRepo.Delete(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		h.logger.WithError(err).WithField("conversation_id", conversationID).Error("delete conversation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete conversation"})
		return
	}

	h.emitter.ConversationDeleted(c.Request.Context(), conversation)
	c.Status(http.StatusNoContent)
}
