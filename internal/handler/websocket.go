package handler

import (
	"net/http"
	"strings"

	"course_messaging/internal/config"
	"course_messaging/internal/middleware"
	"course_messaging/internal/realtime"
	apperrors "course_messaging/pkg/errors"
	"course_messaging/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	gateway  *realtime.Gateway
	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewWebSocketHandler(gateway *realtime.Gateway, cfg config.RealtimeConfig, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		log: log,
	}
}

// Connect authenticates the handshake before upgrading so a refused client
// never reaches the event loop.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	token := handshakeToken(c.Request)
	if token == "" {
		_ = c.Error(apperrors.Wrap(apperrors.ErrUnauthorized, "Authentication error: No token"))
		return
	}

	identity, err := h.gateway.Authenticate(c.Request.Context(), token)
	if err != nil {
		_ = c.Error(apperrors.Wrap(apperrors.ErrUnauthorized, "Authentication error: Invalid token"))
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err, "user_id", identity.UserID)
		return
	}

	h.gateway.Serve(ws, *identity)
}

func handshakeToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	token, _ := middleware.BearerToken(r.Header.Get("Authorization"))
	return token
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
