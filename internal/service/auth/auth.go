package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/logger"
	"github.com/nkiryanov/authkeeper/internal/models"
	"github.com/nkiryanov/authkeeper/internal/repository"
	"github.com/nkiryanov/authkeeper/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/authkeeper/internal/service/auth/tokenstore"
	"github.com/nkiryanov/authkeeper/internal/service/auth/tokenvalidator"
	"github.com/nkiryanov/authkeeper/internal/service/user"
)

type Config struct {
	// Hasher to use during user registration or login process
	// If not set bcrypt is used
	Hasher user.PasswordHasher

	// Roles every registered user gets
	// If not set user gets basic_user role
	DefaultRoles []string

	// Session policies
	Store tokenstore.Config
}

// Auth service
type AuthService struct {
	storage repository.Storage

	// Manager to issue and parse token pairs (access and refresh)
	tokens *tokenmanager.TokenManager

	users     *user.UserService
	store     *tokenstore.Store
	validator *tokenvalidator.Validator

	defaultRoles []string
	logger       logger.Logger
}

func NewService(cfg Config, storage repository.Storage, tokens *tokenmanager.TokenManager, l logger.Logger) (*AuthService, error) {
	if storage == nil || tokens == nil {
		return nil, errors.New("storage and token manager must not be nil")
	}

	if l == nil {
		l = logger.NewNoOpLogger()
	}

	roles := cfg.DefaultRoles
	if len(roles) == 0 {
		roles = []string{models.RoleBasicUser}
	}

	users := user.NewService(cfg.Hasher, storage.User())
	store := tokenstore.New(storage.Session(), tokens, cfg.Store, l)

	return &AuthService{
		storage:      storage,
		tokens:       tokens,
		users:        users,
		store:        store,
		validator:    tokenvalidator.New(users, store, l),
		defaultRoles: roles,
		logger:       l,
	}, nil
}

// Register new user with default roles
// Email has to be unique, duplicate is a validation error
func (s *AuthService) Register(ctx context.Context, username string, email string, password string) (models.User, error) {
	var created models.User

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		users := s.users.WithRepo(tx.User())

		_, err := users.FindByEmail(ctx, email)
		switch {
		case err == nil:
			return apperrors.ErrEmailTaken
		case !errors.Is(err, apperrors.ErrUserNotFound):
			return err
		}

		u, err := users.Create(ctx, username, email, password)
		if err != nil {
			return err
		}

		for _, role := range s.defaultRoles {
			if err := users.AddToRole(ctx, u.ID, role); err != nil {
				return fmt.Errorf("can't add user to role %q. Err: %w", role, err)
			}
		}

		created, err = users.FindByID(ctx, u.ID)
		return err
	})
	if err != nil {
		return models.User{}, err
	}

	s.logger.Info("User registered", "user_id", created.ID)
	return created, nil
}

// Authenticate user by email and password and issue new token pair
// If previous refresh token is provided its session is revoked first
func (s *AuthService) Authenticate(ctx context.Context, email string, password string, previousRefresh string) (models.TokenPair, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return models.TokenPair{}, err
	}

	if !s.users.VerifyPassword(u, password) {
		s.logger.Info("Failed sign in attempt", "user_id", u.ID)
		return models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	if previousRefresh != "" {
		if err := s.store.Revoke(ctx, u.ID, previousRefresh); err != nil {
			return models.TokenPair{}, err
		}
	}

	pair, err := s.tokens.Mint(u)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	if err := s.store.SaveTokens(ctx, u.ID, pair, ""); err != nil {
		return models.TokenPair{}, err
	}

	return pair, nil
}

// Refresh issues new token pair in exchange for valid refresh token
// The presented refresh token can be used only once
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		store := s.store.WithRepo(tx.Session())

		rec, found, err := store.Find(ctx, refresh)
		if err != nil {
			return err
		}
		if !found {
			return apperrors.ErrRefreshTokenNotValid
		}

		u, err := s.users.WithRepo(tx.User()).FindByID(ctx, rec.UserID)
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			return apperrors.ErrRefreshTokenNotValid
		case err != nil:
			return err
		}

		pair, err = s.tokens.Mint(u)
		if err != nil {
			return fmt.Errorf("token could not generated, sorry. %w", err)
		}

		return store.Rotate(ctx, rec, pair)
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	return pair, nil
}

// Revoke is user sign out
func (s *AuthService) Revoke(ctx context.Context, userID uuid.UUID, refresh string) error {
	return s.store.Revoke(ctx, userID, refresh)
}

// Authorize checks access token and returns its user
func (s *AuthService) Authorize(ctx context.Context, access string) (models.User, error) {
	claims, err := s.tokens.ParseAccess(access)
	if err != nil {
		return models.User{}, err
	}

	return s.validator.Validate(ctx, access, claims)
}

// ForceLogout invalidates every token of the user
// Access tokens become stale by serial change even if their sessions are kept elsewhere
func (s *AuthService) ForceLogout(ctx context.Context, userID uuid.UUID) error {
	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		if _, err := s.users.WithRepo(tx.User()).ResetSerial(ctx, userID); err != nil {
			return err
		}
		return s.store.WithRepo(tx.Session()).InvalidateAll(ctx, userID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("User forced to logout", "user_id", userID)
	return nil
}

// SweepExpired removes sessions with expired refresh tokens
func (s *AuthService) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.SweepExpired(ctx)
}
