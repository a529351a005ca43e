package repository

import (
	"context"

	"course_messaging/internal/domain"
	"course_messaging/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, conversationID, senderID int64, body string) (*domain.Message, error)
	// ListByConversation returns messages oldest first.
	ListByConversation(ctx context.Context, conversationID int64, cursor domain.MessageCursor) ([]domain.Message, error)
}

type messageRepository struct {
	db  DBTX
	log logger.Logger
}

func NewMessageRepository(db DBTX, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

const senderUsernameSQL = `COALESCE(NULLIF(BTRIM(u.username), ''), SPLIT_PART(u.email, '@', 1))`

func (r *messageRepository) Create(ctx context.Context, conversationID, senderID int64, body string) (*domain.Message, error) {
	query := `
		WITH inserted AS (
			INSERT INTO messages (conversation_id, sender_id, body)
			VALUES ($1, $2, $3)
			RETURNING id, conversation_id, sender_id, body, created_at
		)
		SELECT i.id, i.conversation_id, i.sender_id, ` + senderUsernameSQL + `, i.body, i.created_at
		FROM inserted i
		JOIN users u ON u.id = i.sender_id
	`

	message := &domain.Message{}
	err := r.db.QueryRow(ctx, query, conversationID, senderID, body).Scan(
		&message.ID, &message.ConversationID, &message.SenderID,
		&message.SenderUsername, &message.Body, &message.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create message", "error", err, "conversation_id", conversationID, "sender_id", senderID)
		return nil, err
	}

	return message, nil
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID int64, cursor domain.MessageCursor) ([]domain.Message, error) {
	// The inner query picks the page newest first; the outer one restores chronological order.
	query := `
		SELECT id, conversation_id, sender_id, sender_username, body, created_at
		FROM (
			SELECT m.id, m.conversation_id, m.sender_id, ` + senderUsernameSQL + ` AS sender_username,
			       m.body, m.created_at
			FROM messages m
			JOIN users u ON u.id = m.sender_id
			WHERE m.conversation_id = $1
			  AND ($2::BIGINT = 0 OR m.id < $2)
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT NULLIF($3::INT, 0)
		) page
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID, cursor.BeforeID, cursor.Limit)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err, "conversation_id", conversationID)
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID, &m.SenderUsername, &m.Body, &m.CreatedAt,
		); err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
