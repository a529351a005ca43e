package handler

import (
	"course_messaging/internal/config"
	"course_messaging/internal/realtime"
	"course_messaging/internal/service"
	"course_messaging/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Messaging *MessagingHandler
	WebSocket *WebSocketHandler
	Presence  *PresenceHandler
	Dev       *DevHandler
}

func NewHandlers(services *service.Services, gateway *realtime.Gateway, storage Pinger, cfg *config.Config, log logger.Logger) *Handlers {
	handlers := &Handlers{
		Health:    NewHealthHandler(storage),
		Messaging: NewMessagingHandler(services.Messaging, log),
		WebSocket: NewWebSocketHandler(gateway, cfg.Realtime, log),
		Presence:  NewPresenceHandler(gateway.Presence(), services.User),
	}

	if cfg.IsDevelopment() {
		handlers.Dev = NewDevHandler(services.Auth, log)
		log.Info("Development token endpoint enabled")
	}

	return handlers
}
