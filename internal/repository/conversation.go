package repository

import (
	"context"
	"time"

	"course_messaging/internal/domain"
	"course_messaging/pkg/logger"

	"github.com/jackc/pgx/v5"
)

type ConversationRepository interface {
	// GetOrCreate returns the conversation for an ordered pair (low < high), inserting it
	// when absent. created reports whether this call inserted the row.
	GetOrCreate(ctx context.Context, low, high int64) (conv *domain.Conversation, created bool, err error)
	// GetForParticipant returns ErrNotFound both for unknown ids and for non-participants.
	GetForParticipant(ctx context.Context, conversationID, userID int64) (*domain.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	ListForParticipant(ctx context.Context, userID int64) ([]domain.ConversationSummary, error)
	Touch(ctx context.Context, conversationID int64, at time.Time) error
}

type conversationRepository struct {
	db  DBTX
	log logger.Logger
}

func NewConversationRepository(db DBTX, log logger.Logger) ConversationRepository {
	return &conversationRepository{db: db, log: log}
}

const conversationColumns = `id, participant_low, participant_high, created_at, last_message_at`

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	err := row.Scan(
		&conv.ID, &conv.ParticipantLow, &conv.ParticipantHigh, &conv.CreatedAt, &conv.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepository) GetOrCreate(ctx context.Context, low, high int64) (*domain.Conversation, bool, error) {
	// The no-op update makes RETURNING yield the existing row on conflict;
	// xmax = 0 only for a freshly inserted tuple.
	query := `
		INSERT INTO conversations (participant_low, participant_high)
		VALUES ($1, $2)
		ON CONFLICT (participant_low, participant_high)
		DO UPDATE SET participant_low = conversations.participant_low
		RETURNING ` + conversationColumns + `, (xmax = 0) AS inserted
	`

	conv := &domain.Conversation{}
	var inserted bool
	err := r.db.QueryRow(ctx, query, low, high).Scan(
		&conv.ID, &conv.ParticipantLow, &conv.ParticipantHigh, &conv.CreatedAt, &conv.LastMessageAt,
		&inserted,
	)
	if err != nil {
		r.log.Error("Failed to get or create conversation", "error", err, "low", low, "high", high)
		return nil, false, err
	}

	return conv, inserted, nil
}

func (r *conversationRepository) GetForParticipant(ctx context.Context, conversationID, userID int64) (*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1 AND (participant_low = $2 OR participant_high = $2)
	`

	conv, err := scanConversation(r.db.QueryRow(ctx, query, conversationID, userID))
	if err != nil {
		if err = notFound(err); err != ErrNotFound {
			r.log.Error("Failed to get conversation", "error", err, "conversation_id", conversationID)
		}
		return nil, err
	}

	return conv, nil
}

func (r *conversationRepository) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM conversations
			WHERE id = $1 AND (participant_low = $2 OR participant_high = $2)
		)
	`

	var ok bool
	if err := r.db.QueryRow(ctx, query, conversationID, userID).Scan(&ok); err != nil {
		r.log.Error("Failed to check participant", "error", err, "conversation_id", conversationID, "user_id", userID)
		return false, err
	}
	return ok, nil
}

func (r *conversationRepository) ListForParticipant(ctx context.Context, userID int64) ([]domain.ConversationSummary, error) {
	query := `
		SELECT
			c.id,
			o.id,
			COALESCE(NULLIF(BTRIM(o.username), ''), SPLIT_PART(o.email, '@', 1)),
			o.email,
			o.role,
			o.image_path,
			lm.body,
			lm.created_at
		FROM conversations c
		JOIN users o
		  ON o.id = CASE WHEN c.participant_low = $1 THEN c.participant_high ELSE c.participant_low END
		LEFT JOIN LATERAL (
			SELECT body, created_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		WHERE c.participant_low = $1 OR c.participant_high = $1
		ORDER BY COALESCE(lm.created_at, TIMESTAMPTZ 'epoch') DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list conversations", "error", err, "user_id", userID)
		return nil, err
	}
	defer rows.Close()

	summaries := make([]domain.ConversationSummary, 0)
	for rows.Next() {
		var s domain.ConversationSummary
		if err := rows.Scan(
			&s.ID, &s.OtherID, &s.OtherName, &s.OtherEmail, &s.OtherRole, &s.OtherImage,
			&s.LastMessage, &s.LastTime,
		); err != nil {
			r.log.Error("Failed to scan conversation summary", "error", err)
			return nil, err
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (r *conversationRepository) Touch(ctx context.Context, conversationID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2)
		WHERE id = $1
	`, conversationID, at)
	if err != nil {
		r.log.Warn("Failed to touch conversation", "error", err, "conversation_id", conversationID)
	}
	return err
}
