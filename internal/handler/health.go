package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether backing storage answers. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	storage Pinger
}

// NewHealthHandler accepts a nil storage for the in-memory driver.
func NewHealthHandler(storage Pinger) *HealthHandler {
	return &HealthHandler{storage: storage}
}

func (h *HealthHandler) Check(c *gin.Context) {
	status := "memory"
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.storage.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"message": "Storage unavailable",
			})
			return
		}
		status = "ok"
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Server is running",
		"storage": status,
	})
}
