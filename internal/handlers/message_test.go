package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/events"
	"messenger-service/internal/middleware"
	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/pubsub"
	"messenger-service/internal/repositories"
	"messenger-service/internal/session"
)

func newTestEmitter(bus *pubsub.Bus) (*events.Emitter, *mocks.PublisherMock) {
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return events.NewEmitter(bus, publisher, logrus.New(), "messenger-service", "test"), publisher
}

func setupMessageRouter(handler *MessageHandler, authenticated bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if authenticated {
		r.Use(func(c *gin.Context) {
			middleware.SetUser(c, session.User{ID: "u1", Username: "alice"})
			c.Next()
		})
	}
	r.GET("/conversations/:conversation_id/messages", handler.ListMessages)
	r.POST("/messages", handler.SendMessage)
	return r
}

func TestListMessagesSuccess(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	conversationRepo := new(mocks.ConversationRepositoryMock)
	emitter, _ := newTestEmitter(pubsub.NewBus())
	handler := NewMessageHandler(messageRepo, conversationRepo, emitter, logrus.New())
	router := setupMessageRouter(handler, true)

	conversationRepo.On("IsParticipant", mock.Anything, "c1", "u1").Return(true, nil).Once()
	messageRepo.On("ListForConversation", mock.Anything, "c1").Return([]models.Message{
		{ID: "m2", ConversationID: "c1", SenderID: "u2", Body: "newer", Sender: models.User{ID: "u2", Username: "bob"}},
		{ID: "m1", ConversationID: "c1", SenderID: "u1", Body: "older", Sender: models.User{ID: "u1", Username: "alice"}},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/c1/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "m2", resp.Messages[0].ID)
	assert.Equal(t, "bob", resp.Messages[0].Sender.Username)

	conversationRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestListMessagesNotParticipant(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	conversationRepo := new(mocks.ConversationRepositoryMock)
	emitter, _ := newTestEmitter(pubsub.NewBus())
	handler := NewMessageHandler(messageRepo, conversationRepo, emitter, logrus.New())
	router := setupMessageRouter(handler, true)

	conversationRepo.On("IsParticipant", mock.Anything, "c1", "u1").Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/c1/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	conversationRepo.AssertExpectations(t)
	messageRepo.AssertNotCalled(t, "ListForConversation", mock.Anything, mock.Anything)
}

func TestListMessagesUnauthenticated(t *testing.T) {
	emitter, _ := newTestEmitter(pubsub.NewBus())
	handler := NewMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.ConversationRepositoryMock), emitter, logrus.New())
	router := setupMessageRouter(handler, false)

	req := httptest.NewRequest(http.MethodGet, "/conversations/c1/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSendMessageSuccess(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	conversationRepo := new(mocks.ConversationRepositoryMock)
	bus := pubsub.NewBus()
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "messages.sent", mock.Anything).Return(nil).Once()
	publisher.On("Publish", mock.Anything, "conversations.updated", mock.Anything).Return(nil).Once()
	emitter := events.NewEmitter(bus, publisher, logrus.New(), "messenger-service", "test")
	handler := NewMessageHandler(messageRepo, conversationRepo, emitter, logrus.New())
	router := setupMessageRouter(handler, true)

	sub := bus.Subscribe(events.TopicMessageSent, events.TopicConversationUpdated)
	defer sub.Close()

	msg := models.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Body: "hi", Sender: models.User{ID: "u1", Username: "alice"}}
	conversation := models.Conversation{ID: "c1"}
	messageRepo.On("Send", mock.Anything, repositories.SendMessageParams{
		MessageID:      "m1",
		ConversationID: "c1",
		SenderID:       "u1",
		CallerID:       "u1",
		Body:           "hi",
	}).Return(msg, conversation, nil).Once()

	body := bytes.NewBufferString(`{"id":"m1","conversation_id":"c1","sender_id":"u1","body":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]bool
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp["success"])

	first := <-sub.C()
	second := <-sub.C()
	assert.Equal(t, events.TopicMessageSent, first.Topic)
	assert.Equal(t, msg, first.Payload)
	assert.Equal(t, events.TopicConversationUpdated, second.Topic)

	messageRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestSendMessageParticipantMissing(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	emitter, publisher := newTestEmitter(pubsub.NewBus())
	handler := NewMessageHandler(messageRepo, new(mocks.ConversationRepositoryMock), emitter, logrus.New())
	router := setupMessageRouter(handler, true)

	messageRepo.On("Send", mock.Anything, mock.Anything).
		Return(models.Message{}, models.Conversation{}, repositories.ErrParticipantNotFound).Once()

	body := bytes.NewBufferString(`{"id":"m1","conversation_id":"c1","sender_id":"u1","body":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "participant does not exist")
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	messageRepo.AssertExpectations(t)
}

func TestSendMessageStoreError(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	emitter, publisher := newTestEmitter(pubsub.NewBus())
	handler := NewMessageHandler(messageRepo, new(mocks.ConversationRepositoryMock), emitter, logrus.New())
	router := setupMessageRouter(handler, true)

	messageRepo.On("Send", mock.Anything, mock.Anything).
		Return(models.Message{}, models.Conversation{}, assert.AnError).Once()

	body := bytes.NewBufferString(`{"id":"m1","conversation_id":"c1","sender_id":"u1","body":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "error sending message")
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageInvalidBody(t *testing.T) {
	emitter, _ := newTestEmitter(pubsub.NewBus())
	handler := NewMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.ConversationRepositoryMock), emitter, logrus.New())
	router := setupMessageRouter(handler, true)

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"body":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageGeneratesIDWhenMissing(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	emitter, _ := newTestEmitter(pubsub.NewBus())
	handler := NewMessageHandler(messageRepo, new(mocks.ConversationRepositoryMock), emitter, logrus.New())
	router := setupMessageRouter(handler, true)

	messageRepo.On("Send", mock.Anything, mock.MatchedBy(func(p repositories.SendMessageParams) bool {
		return p.MessageID != "" && p.ConversationID == "c1"
	})).Return(models.Message{ID: "generated", ConversationID: "c1"}, models.Conversation{ID: "c1"}, nil).Once()

	body := bytes.NewBufferString(`{"conversation_id":"c1","sender_id":"u1","body":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	messageRepo.AssertExpectations(t)
}
