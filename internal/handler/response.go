package handler

import (
	"course_messaging/internal/domain"

	"github.com/gin-gonic/gin"
)

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// identity reads what middleware.RequireAuth stored on the context.
func identity(c *gin.Context) domain.Identity {
	userID, _ := c.Get("user_id")
	role, _ := c.Get("user_role")

	id, _ := userID.(int64)
	r, _ := role.(domain.Role)
	return domain.Identity{UserID: id, Role: r}
}
