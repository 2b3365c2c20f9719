package models

import "time"

// Message is a single chat message. Rows are immutable once written.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	Body           string    `db:"body" json:"body"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`

	// Sender carries the embedded sender identity for API and event payloads.
	Sender User `json:"sender"`
}
