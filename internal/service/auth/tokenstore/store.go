package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/logger"
	"github.com/nkiryanov/authkeeper/internal/models"
	"github.com/nkiryanov/authkeeper/internal/repository"
	"github.com/nkiryanov/authkeeper/internal/service/fingerprint"
)

type serialRecoverer interface {
	RecoverSerial(refresh string) (string, bool)
}

type Config struct {
	// If disabled every new login drops all the user's sessions
	AllowMultipleLogins bool

	// If enabled sign out drops all the user's sessions, not only the presented one
	RevokeAllOnSignout bool
}

// Store keeps session records of issued token pairs
// Only fingerprints are persisted, never the raw tokens
type Store struct {
	sessions repository.SessionRepo
	tokens   serialRecoverer
	cfg      Config
	logger   logger.Logger

	now func() time.Time
}

func New(sessions repository.SessionRepo, tokens serialRecoverer, cfg Config, l logger.Logger) *Store {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Store{
		sessions: sessions,
		tokens:   tokens,
		cfg:      cfg,
		logger:   l,
		now:      time.Now,
	}
}

// WithRepo returns store copy working over another repo (transaction scoped one for example)
func (s *Store) WithRepo(sessions repository.SessionRepo) *Store {
	c := *s
	c.sessions = sessions
	return &c
}

// Save persists the record
// The record's predecessor and its siblings are deleted first: refresh token is single use
func (s *Store) Save(ctx context.Context, rec models.Session) error {
	if !s.cfg.AllowMultipleLogins {
		if err := s.InvalidateAll(ctx, rec.UserID); err != nil {
			return err
		}
	}

	if rec.PredecessorHash != nil {
		if err := s.DeletePredecessorChain(ctx, *rec.PredecessorHash); err != nil {
			return err
		}
	}

	if rec.ID == uuid.Nil {
		id, err := fingerprint.NewSecureID()
		if err != nil {
			return fmt.Errorf("error while generating session id. Err: %w", err)
		}
		rec.ID = id
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	return s.sessions.Create(ctx, rec)
}

// SaveTokens fingerprints the issued pair and saves it as a session record
// predecessorSerial is the serial of refresh token the pair replaces, empty for a fresh login
func (s *Store) SaveTokens(ctx context.Context, userID uuid.UUID, pair models.TokenPair, predecessorSerial string) error {
	return s.Save(ctx, s.record(userID, pair, predecessorHash(predecessorSerial)))
}

// IsValid reports whether the access token belongs to a live session of the user
// Session access expiry is checked here regardless of the token own expiry
func (s *Store) IsValid(ctx context.Context, access string, userID uuid.UUID) (bool, error) {
	rec, err := s.sessions.GetByAccessHash(ctx, fingerprint.Digest(access), userID)
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound):
		return false, nil
	case err != nil:
		return false, err
	}

	return s.now().Before(rec.AccessExpiresAt), nil
}

// Find looks up the session the refresh token was issued for
// Missing, malformed or expired token is reported as not found without error
func (s *Store) Find(ctx context.Context, refresh string) (models.Session, bool, error) {
	serial, ok := s.tokens.RecoverSerial(refresh)
	if !ok {
		return models.Session{}, false, nil
	}

	rec, err := s.sessions.GetByRefreshHash(ctx, fingerprint.Digest(serial))
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound):
		return models.Session{}, false, nil
	case err != nil:
		return models.Session{}, false, err
	}

	return rec, true, nil
}

// Delete the session of the refresh token. Unrecoverable token is a no-op
func (s *Store) Delete(ctx context.Context, refresh string) error {
	serial, ok := s.tokens.RecoverSerial(refresh)
	if !ok {
		return nil
	}

	_, err := s.sessions.DeleteByRefreshHash(ctx, fingerprint.Digest(serial))
	return err
}

func (s *Store) DeletePredecessorChain(ctx context.Context, hash string) error {
	_, err := s.sessions.DeleteChain(ctx, hash)
	return err
}

func (s *Store) InvalidateAll(ctx context.Context, userID uuid.UUID) error {
	n, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}

	s.logger.Debug("User sessions invalidated", "user_id", userID, "count", n)
	return nil
}

// SweepExpired deletes sessions whose refresh expiry has passed
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now())
}

// Revoke is the sign out entry point
// refresh may be empty: then only policy driven and expired sessions are removed
func (s *Store) Revoke(ctx context.Context, userID uuid.UUID, refresh string) error {
	if s.cfg.RevokeAllOnSignout {
		if err := s.InvalidateAll(ctx, userID); err != nil {
			return err
		}
	}

	if refresh != "" {
		if serial, ok := s.tokens.RecoverSerial(refresh); ok {
			if err := s.DeletePredecessorChain(ctx, fingerprint.Digest(serial)); err != nil {
				return err
			}
		}
	}

	_, err := s.SweepExpired(ctx)
	return err
}

// Rotate replaces the previous session with a new one for the issued pair
// Only the previous session itself is deleted conditionally: if it is gone already
// (rotated before or concurrently) the rotation is rejected with apperrors.ErrRefreshTokenNotValid
// and the successor issued by the winner is kept
func (s *Store) Rotate(ctx context.Context, previous models.Session, pair models.TokenPair) error {
	n, err := s.sessions.DeleteByRefreshHash(ctx, previous.RefreshHash)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrRefreshTokenNotValid
	}

	return s.Save(ctx, s.record(previous.UserID, pair, &previous.RefreshHash))
}

func (s *Store) record(userID uuid.UUID, pair models.TokenPair, predecessor *string) models.Session {
	return models.Session{
		UserID:           userID,
		RefreshHash:      fingerprint.Digest(pair.RefreshSerial),
		PredecessorHash:  predecessor,
		AccessHash:       fingerprint.Digest(pair.Access.Value),
		RefreshExpiresAt: pair.Refresh.ExpiresAt,
		AccessExpiresAt:  pair.Access.ExpiresAt,
	}
}

func predecessorHash(serial string) *string {
	if serial == "" {
		return nil
	}
	h := fingerprint.Digest(serial)
	return &h
}
