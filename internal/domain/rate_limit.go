package domain

// RateLimitScope names a counter bucket. Keys are built per scope and caller.
type RateLimitScope string

const (
	RateLimitScopeConversationStart RateLimitScope = "conversation_start"
	RateLimitScopeMessageSend       RateLimitScope = "message_send"
)
