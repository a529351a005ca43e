package service

import (
	"context"
	"errors"
	"fmt"

	"course_messaging/internal/domain"
	"course_messaging/internal/repository"
	"course_messaging/pkg/logger"
)

// UserService exposes read-only lookups on accounts owned by the identity service.
type UserService interface {
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
}

type userService struct {
	users repository.UserRepository
	log   logger.Logger
}

func NewUserService(users repository.UserRepository, log logger.Logger) UserService {
	return &userService{users: users, log: log}
}

func (s *userService) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	if userID <= 0 {
		return nil, errUserNotFound
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errUserNotFound
		}
		s.log.Error("Failed to load user", "error", err, "user_id", userID)
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}
