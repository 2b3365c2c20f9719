package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrParticipantNotFound  = errors.New("participant does not exist")
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	Create(ctx context.Context, creatorID string, participantIDs []string) (models.Conversation, error)
	Get(ctx context.Context, conversationID string) (models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error)
	MarkRead(ctx context.Context, conversationID string, userID string) error
	Delete(ctx context.Context, conversationID string) (models.Conversation, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create inserts a conversation and one participant row per user. The creator
// starts with the conversation marked seen, everyone else unseen.
func (r *ConversationRepo) Create(ctx context.Context, creatorID string, participantIDs []string) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	conversationID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `INSERT INTO conversations (id) VALUES ($1)`, conversationID); err != nil {
		return models.Conversation{}, err
	}

	seen := map[string]bool{creatorID: true}
	for _, userID := range dedupe(append([]string{creatorID}, participantIDs...)) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (id, conversation_id, user_id, has_seen_latest_message) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), conversationID, userID, seen[userID]); err != nil {
			return models.Conversation{}, err
		}
	}

	conversation, err := fetchConversation(ctx, tx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

// Get fetches a conversation with participants and latest message embedded.
func (r *ConversationRepo) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	return fetchConversation(ctx, r.db, conversationID)
}

// ListForUser returns the user's conversations, most recently updated first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT c.id FROM conversations c
         JOIN conversation_participants p ON p.conversation_id = c.id
         WHERE p.user_id = $1
         ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}

	conversations := make([]models.Conversation, 0, len(ids))
	for _, id := range ids {
		conversation, err := fetchConversation(ctx, r.db, id)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conversation)
	}
	return conversations, nil
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	return exists, err
}

// MarkRead flags the user's participant row as having seen the latest message.
func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID string, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conversation_participants SET has_seen_latest_message = TRUE WHERE conversation_id=$1 AND user_id=$2`,
		conversationID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// Delete removes a conversation and, via cascade, its participants and
// messages. The deleted conversation is returned for event fan-out.
func (r *ConversationRepo) Delete(ctx context.Context, conversationID string) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	conversation, err := fetchConversation(ctx, tx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id=$1`, conversationID); err != nil {
		return models.Conversation{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

// fetchConversation loads a conversation with participants (user identity
// embedded) and the latest message. Works against the pool or a transaction.
func fetchConversation(ctx context.Context, q sqlx.ExtContext, conversationID string) (models.Conversation, error) {
	var conversation models.Conversation
	err := sqlx.GetContext(ctx, q, &conversation,
		`SELECT id, latest_message_id, created_at, updated_at FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}

	rows, err := q.QueryxContext(ctx,
		`SELECT p.id, p.conversation_id, p.user_id, p.has_seen_latest_message, u.username
         FROM conversation_participants p
         JOIN users u ON u.id = p.user_id
         WHERE p.conversation_id=$1
         ORDER BY p.id`, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var p models.ConversationParticipant
		var username string
		if err := rows.Scan(&p.ID, &p.ConversationID, &p.UserID, &p.HasSeenLatestMessage, &username); err != nil {
			return models.Conversation{}, err
		}
		p.User = models.User{ID: p.UserID, Username: username}
		conversation.Participants = append(conversation.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return models.Conversation{}, err
	}

	if conversation.LatestMessageID.Valid {
		msg, err := fetchMessage(ctx, q, conversation.LatestMessageID.String)
		if err != nil {
			return models.Conversation{}, err
		}
		conversation.LatestMessage = &msg
	}
	return conversation, nil
}

func fetchMessage(ctx context.Context, q sqlx.ExtContext, messageID string) (models.Message, error) {
	row := q.QueryRowxContext(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, m.body, m.created_at, u.username
         FROM messages m
         JOIN users u ON u.id = m.sender_id
         WHERE m.id=$1`, messageID)

	var msg models.Message
	var username string
	if err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &msg.CreatedAt, &username); err != nil {
		return models.Message{}, err
	}
	msg.Sender = models.User{ID: msg.SenderID, Username: username}
	return msg, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
