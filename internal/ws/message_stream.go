package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/events"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/pubsub"
	"messenger-service/internal/repositories"
	"messenger-service/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MessageStreamHandler serves the message-sent subscription: every message
// published into the watched conversation, delivered live.
type MessageStreamHandler struct {
	bus              *pubsub.Bus
	conversationRepo repositories.ConversationRepository
	sessions         session.Provider
	logger           *logrus.Logger
}

// NewMessageStreamHandler constructs a MessageStreamHandler.
func NewMessageStreamHandler(bus *pubsub.Bus, conversationRepo repositories.ConversationRepository, sessions session.Provider, logger *logrus.Logger) *MessageStreamHandler {
	return &MessageStreamHandler{bus: bus, conversationRepo: conversationRepo, sessions: sessions, logger: logger}
}

// Handle authenticates the caller, checks conversation membership, upgrades
// the connection and streams matching message-sent events until disconnect.
func (h *MessageStreamHandler) Handle(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := tokenFromRequest(c)
	user, err := h.sessions.UserFromToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}

	member, err := h.conversationRepo.IsParticipant(ctx, conversationID, user.ID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      user.ID,
		IP:          ipFromRequest(c.Request),
		RequestID:   requestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	sub := h.bus.Subscribe(events.TopicMessageSent)
	observability.IncWSActive("messages")
	observability.IncWSEvent("messages", "ws_connect")
	h.logger.WithFields(logrus.Fields{
		"conn_id":         info.ConnID,
		"conversation_id": conversationID,
		"user_id":         info.UserID,
	}).Debug("message stream connected")

	// Filtering is per delivery: the subscription consumes the whole topic
	// and forwards only events for the watched conversation.
	go func() {
		for event := range sub.C() {
			msg, ok := event.Payload.(models.Message)
			if !ok || msg.ConversationID != conversationID {
				continue
			}
			frame := models.StreamEvent{Type: "message_sent", Message: &msg}
			if err := conn.WriteJSON(frame); err != nil {
				h.logger.WithError(err).WithField("conn_id", info.ConnID).Debug("websocket write failed")
				observability.IncWSEvent("messages", "ws_error")
				conn.Close()
				return
			}
		}
	}()

	go func() {
		defer func() {
			sub.Close()
			conn.Close()
			observability.DecWSActive("messages")
			observability.IncWSEvent("messages", "ws_disconnect")
			h.logger.WithFields(logrus.Fields{
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			}).Debug("message stream disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("messages", "ws_error")
				}
				return
			}
		}
	}()
}
