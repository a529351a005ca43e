package handler

import (
	"net/http"
	"strconv"

	"course_messaging/internal/domain"
	"course_messaging/internal/service"
	apperrors "course_messaging/pkg/errors"
	"course_messaging/pkg/logger"

	"github.com/gin-gonic/gin"
)

// DevHandler issues tokens locally so the API can be exercised without the
// identity service. Only mounted in development.
type DevHandler struct {
	authService service.AuthService
	log         logger.Logger
}

func NewDevHandler(authService service.AuthService, log logger.Logger) *DevHandler {
	return &DevHandler{
		authService: authService,
		log:         log,
	}
}

func (h *DevHandler) IssueToken(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		_ = c.Error(apperrors.Wrap(apperrors.ErrBadRequest, "user_id must be a positive integer"))
		return
	}

	role := domain.Role(c.DefaultQuery("role", string(domain.RoleStudent)))
	if !role.Valid() {
		_ = c.Error(apperrors.Wrap(apperrors.ErrBadRequest, "role must be student, instructor or admin"))
		return
	}

	token, err := h.authService.IssueToken(userID, role)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.log.Debug("Issued development token", "user_id", userID, "role", role)
	respond(c, http.StatusOK, gin.H{"token": token})
}
