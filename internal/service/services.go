package service

import (
	"course_messaging/internal/config"
	"course_messaging/internal/repository"
	"course_messaging/pkg/logger"
)

type Services struct {
	Auth      AuthService
	Messaging MessagingService
	User      UserService
	RateLimit RateLimitService
	Audit     AuditService
}

// NewServices builds the use-case layer. The auth service is passed in because the
// realtime gateway needs it before the notifier exists.
func NewServices(repos *repository.Repositories, auth AuthService, notifier Notifier, cfg *config.Config, log logger.Logger) *Services {
	audit := NewAuditService(repos.Audit, log)

	return &Services{
		Auth:      auth,
		Messaging: NewMessagingService(repos.User, repos.Conversation, repos.Message, audit, notifier, log),
		User:      NewUserService(repos.User, log),
		RateLimit: NewRateLimitService(repos.RateLimit, cfg.RateLimit, log),
		Audit:     audit,
	}
}
