package service

import (
	"context"

	"course_messaging/internal/config"
	"course_messaging/internal/repository"
	"course_messaging/pkg/logger"
)

type RateLimitService interface {
	// Allow reports whether another request under key fits in the current window.
	Allow(ctx context.Context, key string) (bool, error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	cfg           config.RateLimitConfig
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, cfg config.RateLimitConfig, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		cfg:           cfg,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, key string) (bool, error) {
	if !s.cfg.Enabled || s.rateLimitRepo == nil {
		return true, nil
	}

	count, err := s.rateLimitRepo.Hit(ctx, key, s.cfg.Window)
	if err != nil {
		// Fail open: an unavailable counter must not block messaging.
		s.log.Warn("Rate limit check failed, allowing request", "key", key, "error", err)
		return true, err
	}

	return count <= int64(s.cfg.Requests), nil
}
