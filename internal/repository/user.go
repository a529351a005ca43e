package repository

import (
	"context"

	"course_messaging/internal/domain"
	"course_messaging/pkg/logger"
)

// UserRepository reads accounts owned by the identity service.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type userRepository struct {
	db  DBTX
	log logger.Logger
}

func NewUserRepository(db DBTX, log logger.Logger) UserRepository {
	return &userRepository{db: db, log: log}
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `
		SELECT id, email, username, role, image_path
		FROM users
		WHERE id = $1
	`

	user := &domain.User{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.Role, &user.ImagePath,
	)
	if err != nil {
		if err = notFound(err); err != ErrNotFound {
			r.log.Error("Failed to get user", "error", err, "user_id", id)
		}
		return nil, err
	}

	return user, nil
}

// GetByEmail matches case-insensitively; callers pass an already normalised address.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id, email, username, role, image_path
		FROM users
		WHERE LOWER(email) = $1
		LIMIT 1
	`

	user := &domain.User{}
	err := r.db.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.Role, &user.ImagePath,
	)
	if err != nil {
		if err = notFound(err); err != ErrNotFound {
			r.log.Error("Failed to get user by email", "error", err)
		}
		return nil, err
	}

	return user, nil
}
