package middleware

import (
	"fmt"
	"strconv"

	"course_messaging/internal/domain"
	"course_messaging/internal/service"
	apperrors "course_messaging/pkg/errors"
	"course_messaging/pkg/logger"

	"github.com/gin-gonic/gin"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	limit            int
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, limit int, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		limit:            limit,
		log:              log,
	}
}

// Limit counts requests per authenticated user and scope, falling back to the client IP.
func (m *RateLimitMiddleware) Limit(scope domain.RateLimitScope) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:ip:%s", scope, c.ClientIP())
		if userID, ok := c.Get("user_id"); ok {
			key = fmt.Sprintf("%s:user:%v", scope, userID)
		}

		allowed, err := m.rateLimitService.Allow(c.Request.Context(), key)
		if err != nil {
			m.log.Warn("Rate limit unavailable", "error", err, "key", key)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(m.limit))
		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			_ = c.Error(apperrors.Wrap(apperrors.ErrTooManyRequests, "Too many requests"))
			c.Abort()
			return
		}

		c.Next()
	}
}
