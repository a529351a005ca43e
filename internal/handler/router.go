package handler

import (
	"course_messaging/internal/config"
	"course_messaging/internal/domain"
	"course_messaging/internal/middleware"
	"course_messaging/pkg/logger"

	"github.com/gin-gonic/gin"
)

func NewRouter(
	handlers *Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Realtime.AllowedOrigins))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	router.GET("/api/health", handlers.Health.Check)

	// Handshake auth happens inside the handler so refusals use the envelope.
	router.GET("/ws", handlers.WebSocket.Connect)

	v1 := router.Group("/api/v1")
	{
		if handlers.Dev != nil {
			v1.GET("/dev/token", handlers.Dev.IssueToken)
		}

		messages := v1.Group("/messages")
		messages.Use(authMiddleware.RequireAuth())
		{
			messages.GET("/conversations", handlers.Messaging.ListConversations)
			messages.POST("/conversations/start", rateLimitMiddleware.Limit(domain.RateLimitScopeConversationStart), handlers.Messaging.StartConversation)
			messages.GET("/conversations/:id/messages", handlers.Messaging.GetMessages)
			messages.POST("/conversations/:id/messages", rateLimitMiddleware.Limit(domain.RateLimitScopeMessageSend), handlers.Messaging.SendMessage)
			messages.GET("/presence/:userId", handlers.Presence.Get)
		}
	}

	return router
}
