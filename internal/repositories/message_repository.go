package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

// SendMessageParams carries the inputs of the send transaction. MessageID is
// pre-generated by the caller so clients can render optimistically. CallerID
// is the authenticated user whose read-state is flipped to seen; SenderID is
// recorded on the message row.
type SendMessageParams struct {
	MessageID      string
	ConversationID string
	SenderID       string
	CallerID       string
	Body           string
}

// MessageRepository defines interactions for messages.
type MessageRepository interface {
	ListForConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	Send(ctx context.Context, params SendMessageParams) (models.Message, models.Conversation, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// ListForConversation returns all messages of a conversation, newest first,
// with sender identity embedded.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, m.body, m.created_at, u.username
         FROM messages m
         JOIN users u ON u.id = m.sender_id
         WHERE m.conversation_id=$1
         ORDER BY m.created_at DESC, m.id DESC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var username string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &msg.CreatedAt, &username); err != nil {
			return nil, err
		}
		msg.Sender = models.User{ID: msg.SenderID, Username: username}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// Send runs the whole message-send write path in one transaction: insert the
// message, advance the conversation's latest-message pointer, mark the caller
// as having seen the latest message and every other participant as not. The
// stored message and the updated conversation are returned for fan-out.
func (r *MessageRepo) Send(ctx context.Context, params SendMessageParams) (models.Message, models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	defer tx.Rollback()

	// The caller's participant row is resolved scoped to the conversation, so
	// membership in some other conversation never satisfies the lookup.
	var participant models.ConversationParticipant
	err = tx.GetContext(ctx, &participant,
		`SELECT id, conversation_id, user_id, has_seen_latest_message
         FROM conversation_participants
         WHERE conversation_id=$1 AND user_id=$2`,
		params.ConversationID, params.CallerID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, models.Conversation{}, ErrParticipantNotFound
	}
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, body) VALUES ($1, $2, $3, $4)`,
		params.MessageID, params.ConversationID, params.SenderID, params.Body); err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	msg, err := fetchMessage(ctx, tx, params.MessageID)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET latest_message_id=$1, updated_at=NOW() WHERE id=$2`,
		params.MessageID, params.ConversationID)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if count == 0 {
		return models.Message{}, models.Conversation{}, ErrConversationNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversation_participants SET has_seen_latest_message = TRUE WHERE id=$1`,
		participant.ID); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversation_participants SET has_seen_latest_message = FALSE WHERE conversation_id=$1 AND user_id<>$2`,
		params.ConversationID, params.CallerID); err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	conversation, err := fetchConversation(ctx, tx, params.ConversationID)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	return msg, conversation, nil
}
