package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/models"
	"github.com/nkiryanov/authkeeper/internal/repository"
	"github.com/nkiryanov/authkeeper/internal/service/fingerprint"
)

const minPasswordLength = 4

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword string, password string) error
}

// UserService is the credential store: users, passwords, roles and serials
type UserService struct {
	hasher   PasswordHasher
	userRepo repository.UserRepo
}

func NewService(hasher PasswordHasher, userRepo repository.UserRepo) *UserService {
	if hasher == nil {
		hasher = DefaultHasher
	}

	return &UserService{
		hasher:   hasher,
		userRepo: userRepo,
	}
}

// WithRepo returns service copy working over another repo (transaction scoped one for example)
func (s *UserService) WithRepo(userRepo repository.UserRepo) *UserService {
	return &UserService{hasher: s.hasher, userRepo: userRepo}
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return s.userRepo.GetUserByEmail(ctx, email)
}

func (s *UserService) FindByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.userRepo.GetUserByID(ctx, id)
}

// Create user with hashed password and fresh serial
func (s *UserService) Create(ctx context.Context, username string, email string, password string) (models.User, error) {
	var user models.User
	if len(password) < minPasswordLength {
		return user, apperrors.ErrWeakPassword
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	serial, err := fingerprint.NewSerial()
	if err != nil {
		return user, fmt.Errorf("can't generate user serial. Err: %w", err)
	}

	user, err = s.userRepo.CreateUser(ctx, repository.CreateUserParams{
		Username:       username,
		Email:          email,
		HashedPassword: hash,
		Serial:         serial,
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

func (s *UserService) VerifyPassword(user models.User, password string) bool {
	return s.hasher.Compare(user.HashedPassword, password) == nil
}

func (s *UserService) AddToRole(ctx context.Context, userID uuid.UUID, role string) error {
	return s.userRepo.AddRole(ctx, userID, role)
}

// ResetSerial sets new user serial
// Every access token issued before the call becomes stale
func (s *UserService) ResetSerial(ctx context.Context, userID uuid.UUID) (string, error) {
	serial, err := fingerprint.NewSerial()
	if err != nil {
		return "", fmt.Errorf("can't generate user serial. Err: %w", err)
	}

	if err := s.userRepo.SetSerial(ctx, userID, serial); err != nil {
		return "", err
	}

	return serial, nil
}
