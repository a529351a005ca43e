package service

import (
	"context"
	"strings"

	"course_messaging/internal/domain"
	apperrors "course_messaging/pkg/errors"
	"course_messaging/pkg/jwt"
	"course_messaging/pkg/logger"
)

// AuthService verifies bearer tokens minted by the identity service.
type AuthService interface {
	ValidateToken(ctx context.Context, tokenString string) (*domain.Identity, error)
	IssueToken(userID int64, role domain.Role) (string, error)
}

type authService struct {
	tokens *jwt.Manager
	log    logger.Logger
}

func NewAuthService(tokens *jwt.Manager, log logger.Logger) AuthService {
	return &authService{
		tokens: tokens,
		log:    log,
	}
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*domain.Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, apperrors.Wrap(apperrors.ErrUnauthorized, "No token")
	}

	claims, err := s.tokens.Parse(tokenString)
	if err != nil {
		s.log.Debug("Token rejected", "error", err)
		return nil, apperrors.Wrap(apperrors.ErrUnauthorized, "Invalid token")
	}
	if claims.UserID <= 0 {
		return nil, apperrors.Wrap(apperrors.ErrUnauthorized, "Invalid token")
	}

	return &domain.Identity{
		UserID: claims.UserID,
		Role:   domain.Role(claims.Role),
	}, nil
}

func (s *authService) IssueToken(userID int64, role domain.Role) (string, error) {
	if userID <= 0 {
		return "", apperrors.Wrap(apperrors.ErrBadRequest, "user_id must be positive")
	}
	return s.tokens.Generate(userID, string(role))
}
