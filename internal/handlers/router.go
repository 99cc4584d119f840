package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/authkeeper/internal/handlers/middleware"
	"github.com/nkiryanov/authkeeper/internal/logger"
	"github.com/nkiryanov/authkeeper/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(authService authService, logger logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)

	api := http.NewServeMux()

	api.Handle("POST /auth/register", handleRegister(authService, logger))
	api.Handle("POST /auth/authenticate", handleAuthenticate(authService, logger))
	api.Handle("POST /auth/refresh", handleRefresh(authService, logger))
	api.Handle("POST /auth/revoke", withAuth(handleRevoke(authService, logger)))

	api.Handle("GET /me", withAuth(handleUserMe()))
	api.Handle("GET /secret/user", chain(handleSecret(), withAuth, middleware.RequireRole(models.RoleBasicUser)))

	root := http.NewServeMux()
	root.Handle("/api/v1/", http.StripPrefix("/api/v1", api))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user
	// Has to return apperrors.ErrEmailTaken if email is used already
	Register(ctx context.Context, username string, email string, password string) (models.User, error)

	// Authenticate user with email and password
	// Has to return apperrors.ErrUserNotFound if user not found
	Authenticate(ctx context.Context, email string, password string, previousRefresh string) (models.TokenPair, error)

	// Refresh tokens using refresh token
	// If token can't be used: has to return apperrors.ErrRefreshTokenNotValid
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Sign out
	Revoke(ctx context.Context, userID uuid.UUID, refresh string) error

	// Get user access token belongs to
	Authorize(ctx context.Context, access string) (models.User, error)
}
