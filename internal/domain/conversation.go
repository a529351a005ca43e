package domain

import "time"

// Conversation pairs exactly two users. ParticipantLow < ParticipantHigh always holds.
type Conversation struct {
	ID              int64      `json:"id"`
	ParticipantLow  int64      `json:"participant_low"`
	ParticipantHigh int64      `json:"participant_high"`
	CreatedAt       time.Time  `json:"created_at"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
}

// CanonicalPair orders two user ids so that an unordered pair maps to one conversation.
func CanonicalPair(a, b int64) (low, high int64) {
	if a < b {
		return a, b
	}
	return b, a
}

func (c *Conversation) HasParticipant(userID int64) bool {
	return c.ParticipantLow == userID || c.ParticipantHigh == userID
}

// Counterpart returns the participant that is not userID.
func (c *Conversation) Counterpart(userID int64) int64 {
	if c.ParticipantLow == userID {
		return c.ParticipantHigh
	}
	return c.ParticipantLow
}

type ConversationSummary struct {
	ID          int64      `json:"id"`
	OtherID     int64      `json:"other_id"`
	OtherName   string     `json:"other_name"`
	OtherEmail  string     `json:"other_email"`
	OtherRole   Role       `json:"other_role"`
	OtherImage  *string    `json:"other_image"`
	LastMessage *string    `json:"last_message"`
	LastTime    *time.Time `json:"last_time"`
}

type Participant struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Role      Role    `json:"role"`
	ImagePath *string `json:"image_path"`
}

func ParticipantFromUser(u *User) Participant {
	return Participant{
		ID:        u.ID,
		Username:  u.Username(),
		Email:     u.Email,
		Role:      u.Role,
		ImagePath: u.ImagePath,
	}
}

type StartedConversation struct {
	ConversationID int64       `json:"conversation_id"`
	Other          Participant `json:"other"`
	Created        bool        `json:"-"`
}

// ConversationUpdate refreshes inbox views after a new message.
type ConversationUpdate struct {
	ID          int64     `json:"id"`
	LastMessage string    `json:"last_message"`
	LastTime    time.Time `json:"last_time"`
}
