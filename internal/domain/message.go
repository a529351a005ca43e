package domain

import "time"

// Message is immutable once persisted.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

const MaxHistoryPage = 200

// MessageCursor pages history backwards. A zero Limit means the full history.
type MessageCursor struct {
	BeforeID int64
	Limit    int
}
