package models

import (
	"database/sql"
	"time"
)

// Conversation is a thread of messages between two or more participants.
// LatestMessageID tracks the most recent message so conversation lists can
// render a preview without scanning the messages table.
type Conversation struct {
	ID              string         `db:"id" json:"id"`
	LatestMessageID sql.NullString `db:"latest_message_id" json:"-"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`

	Participants  []ConversationParticipant `json:"participants"`
	LatestMessage *Message                  `json:"latest_message,omitempty"`
}

// ConversationParticipant joins a user to a conversation and tracks whether
// the user has seen the latest message. Exactly one row exists per
// (conversation, user) pair.
type ConversationParticipant struct {
	ID                   string `db:"id" json:"id"`
	ConversationID       string `db:"conversation_id" json:"conversation_id"`
	UserID               string `db:"user_id" json:"user_id"`
	HasSeenLatestMessage bool   `db:"has_seen_latest_message" json:"has_seen_latest_message"`

	User User `json:"user"`
}

// HasParticipant reports whether the user belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
