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
	"messenger-service/internal/session"
)

// ConversationStreamHandler serves the conversation lifecycle subscription:
// created, updated and deleted events for every conversation the caller
// participates in.
type ConversationStreamHandler struct {
	bus      *pubsub.Bus
	sessions session.Provider
	logger   *logrus.Logger
}

// NewConversationStreamHandler constructs a ConversationStreamHandler.
func NewConversationStreamHandler(bus *pubsub.Bus, sessions session.Provider, logger *logrus.Logger) *ConversationStreamHandler {
	return &ConversationStreamHandler{bus: bus, sessions: sessions, logger: logger}
}

// Handle authenticates the caller, upgrades the connection and streams
// conversation events filtered by membership of the event payload.
func (h *ConversationStreamHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := tokenFromRequest(c)
	user, err := h.sessions.UserFromToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
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

	sub := h.bus.Subscribe(
		events.TopicConversationCreated,
		events.TopicConversationUpdated,
		events.TopicConversationDeleted,
	)
	observability.IncWSActive("conversations")
	observability.IncWSEvent("conversations", "ws_connect")
	h.logger.WithFields(logrus.Fields{
		"conn_id": info.ConnID,
		"user_id": info.UserID,
	}).Debug("conversation stream connected")

	go func() {
		for event := range sub.C() {
			conversation, ok := event.Payload.(models.Conversation)
			if !ok || !conversation.HasParticipant(user.ID) {
				continue
			}
			frame := models.StreamEvent{Type: frameType(event), Conversation: &conversation}
			if err := conn.WriteJSON(frame); err != nil {
				h.logger.WithError(err).WithField("conn_id", info.ConnID).Debug("websocket write failed")
				observability.IncWSEvent("conversations", "ws_error")
				conn.Close()
				return
			}
		}
	}()

	go func() {
		defer func() {
			sub.Close()
			conn.Close()
			observability.DecWSActive("conversations")
			observability.IncWSEvent("conversations", "ws_disconnect")
			h.logger.WithFields(logrus.Fields{
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			}).Debug("conversation stream disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("conversations", "ws_error")
				}
				return
			}
		}
	}()
}

func frameType(event pubsub.Event) string {
	switch event.Topic {
	case events.TopicConversationCreated:
		return "conversation_created"
	case events.TopicConversationDeleted:
		return "conversation_deleted"
	default:
		return "conversation_updated"
	}
}
