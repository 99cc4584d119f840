package tokenvalidator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/logger"
	"github.com/nkiryanov/authkeeper/internal/models"
	"github.com/nkiryanov/authkeeper/internal/service/auth/tokenmanager"
)

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

type sessionChecker interface {
	IsValid(ctx context.Context, access string, userID uuid.UUID) (bool, error)
}

// Validator is the per request gate for access tokens
// Signature and lifetime are expected to be verified already
type Validator struct {
	users    userFinder
	sessions sessionChecker
	logger   logger.Logger
}

func New(users userFinder, sessions sessionChecker, l logger.Logger) *Validator {
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	return &Validator{users: users, sessions: sessions, logger: l}
}

// Validate runs the checks in order and stops at the first failure
// Returns the user the token belongs to
func (v *Validator) Validate(ctx context.Context, access string, claims *tokenmanager.AccessTokenClaims) (models.User, error) {
	if claims.Empty() {
		return v.reject(apperrors.ErrTokenNoClaims)
	}

	if claims.Serial == "" {
		return v.reject(apperrors.ErrTokenNoSerial)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return v.reject(apperrors.ErrTokenNoUserID)
	}

	user, err := v.users.FindByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return v.reject(apperrors.ErrSessionStale)
	case err != nil:
		return models.User{}, fmt.Errorf("error while finding token user. Err: %w", err)
	case user.Serial != claims.Serial:
		return v.reject(apperrors.ErrSessionStale)
	}

	ok, err := v.sessions.IsValid(ctx, access, user.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("error while checking token session. Err: %w", err)
	}
	if !ok {
		return v.reject(apperrors.ErrTokenNotRecognized)
	}

	return user, nil
}

func (v *Validator) reject(reason error) (models.User, error) {
	v.logger.Debug("Access token rejected", "reason", reason)
	return models.User{}, reason
}
