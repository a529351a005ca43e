package domain

import (
	"time"
)

type AuditLog struct {
	ID             int64                  `json:"id"`
	EventTime      time.Time              `json:"event_time"`
	ActorUserID    int64                  `json:"actor_user_id"`
	ActorRole      Role                   `json:"actor_role"`
	ConversationID *int64                 `json:"conversation_id,omitempty"`
	EventType      string                 `json:"event_type"`
	Payload        map[string]interface{} `json:"payload"`
}

const (
	EventTypeConversationStarted = "CONVERSATION_STARTED"
)
