package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authkeeper/internal/models"
)

type CreateUserParams struct {
	Username       string
	Email          string
	HashedPassword string
	Serial         string
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username or email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by it's id or email, roles included
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Add role to user; adding the same role twice is not an error
	// If role does not exist must return apperrors.ErrRoleNotFound
	AddRole(ctx context.Context, userID uuid.UUID, role string) error

	// Overwrite user serial
	// If user not found must return apperrors.ErrUserNotFound
	SetSerial(ctx context.Context, userID uuid.UUID, serial string) error
}

// Session repository interface
// All the delete methods are idempotent and return count of deleted sessions
type SessionRepo interface {
	Create(ctx context.Context, s models.Session) error

	// If session not found must return apperrors.ErrSessionNotFound
	GetByRefreshHash(ctx context.Context, refreshHash string) (models.Session, error)
	GetByAccessHash(ctx context.Context, accessHash string, userID uuid.UUID) (models.Session, error)

	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error)

	DeleteByRefreshHash(ctx context.Context, refreshHash string) (int64, error)

	// Delete sessions whose refresh hash or predecessor hash equals to the given hash
	DeleteChain(ctx context.Context, hash string) (int64, error)

	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// Delete sessions with refresh expiry strictly before the given time
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Storage interface {
	User() UserRepo
	Session() SessionRepo

	// Run fn in transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
