package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"messenger-service/internal/models"
	"messenger-service/internal/pubsub"
	"messenger-service/internal/rabbitmq"
)

// Bus topics consumed by live subscription streams.
const (
	TopicMessageSent         = "MESSAGE_SENT"
	TopicConversationUpdated = "CONVERSATION_UPDATED"
	TopicConversationCreated = "CONVERSATION_CREATED"
	TopicConversationDeleted = "CONVERSATION_DELETED"
)

// Routing keys for the AMQP mirror.
const (
	routingKeyMessageSent         = "messages.sent"
	routingKeyConversationUpdated = "conversations.updated"
	routingKeyConversationCreated = "conversations.created"
	routingKeyConversationDeleted = "conversations.deleted"
)

// Envelope wraps mirrored events with delivery metadata for external
// consumers.
type Envelope struct {
	SchemaVersion int    `json:"schema_version"`
	Topic         string `json:"topic"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	Payload       any    `json:"payload"`
}

// Emitter publishes domain events on the in-process bus and mirrors them to
// AMQP. Mirror failures are logged and swallowed; live delivery to connected
// subscribers never depends on the broker.
type Emitter struct {
	bus         *pubsub.Bus
	publisher   rabbitmq.Publisher
	logger      *logrus.Logger
	service     string
	environment string
}

// NewEmitter constructs an Emitter.
func NewEmitter(bus *pubsub.Bus, publisher rabbitmq.Publisher, logger *logrus.Logger, service, environment string) *Emitter {
	return &Emitter{
		bus:         bus,
		publisher:   publisher,
		logger:      logger,
		service:     service,
		environment: environment,
	}
}

// Bus exposes the underlying bus for subscription streams.
func (e *Emitter) Bus() *pubsub.Bus {
	return e.bus
}

// MessageSent fans out a newly stored message.
func (e *Emitter) MessageSent(ctx context.Context, msg models.Message) {
	e.emit(ctx, TopicMessageSent, routingKeyMessageSent, msg)
}

// ConversationUpdated fans out a conversation whose latest message or
// read-state changed.
func (e *Emitter) ConversationUpdated(ctx context.Context, conversation models.Conversation) {
	e.emit(ctx, TopicConversationUpdated, routingKeyConversationUpdated, conversation)
}

// ConversationCreated fans out a newly created conversation.
func (e *Emitter) ConversationCreated(ctx context.Context, conversation models.Conversation) {
	e.emit(ctx, TopicConversationCreated, routingKeyConversationCreated, conversation)
}

// ConversationDeleted fans out a deleted conversation.
func (e *Emitter) ConversationDeleted(ctx context.Context, conversation models.Conversation) {
	e.emit(ctx, TopicConversationDeleted, routingKeyConversationDeleted, conversation)
}

func (e *Emitter) emit(ctx context.Context, topic, routingKey string, payload any) {
	e.bus.Publish(topic, payload)

	envelope := Envelope{
		SchemaVersion: 1,
		Topic:         topic,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		Payload:       payload,
	}
	if err := e.publisher.Publish(ctx, routingKey, envelope); err != nil {
		e.logger.WithError(err).WithField("topic", topic).Warn("event mirror publish failed")
	}
}
