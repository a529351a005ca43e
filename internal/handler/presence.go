package handler

import (
	"net/http"
	"strconv"

	"course_messaging/internal/domain"
	"course_messaging/internal/realtime"
	"course_messaging/internal/service"
	apperrors "course_messaging/pkg/errors"

	"github.com/gin-gonic/gin"
)

// PresenceHandler serves the current snapshot so a client opening a
// conversation does not have to wait for the next presence:update.
type PresenceHandler struct {
	presence realtime.PresenceRegistry
	users    service.UserService
}

func NewPresenceHandler(presence realtime.PresenceRegistry, users service.UserService) *PresenceHandler {
	return &PresenceHandler{presence: presence, users: users}
}

type presenceResponse struct {
	domain.Presence
	Username string `json:"username"`
}

func (h *PresenceHandler) Get(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		_ = c.Error(apperrors.Wrap(apperrors.ErrBadRequest, "invalid user id"))
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	respond(c, http.StatusOK, presenceResponse{
		Presence: h.presence.Snapshot(userID),
		Username: user.Username(),
	})
}
