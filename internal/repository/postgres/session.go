package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/models"
)

type SessionRepo struct {
	DB DBTX
}

const sessionColumns = `id, user_id, refresh_hash, predecessor_hash, access_hash, refresh_expires_at, access_expires_at, created_at`

const createSession = `-- name: CreateSession
INSERT INTO sessions (` + sessionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

func (r *SessionRepo) Create(ctx context.Context, s models.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	_, err := r.DB.Exec(ctx, createSession,
		s.ID, s.UserID, s.RefreshHash, s.PredecessorHash, s.AccessHash, s.RefreshExpiresAt, s.AccessExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getByRefreshHash = `-- name: GetSessionByRefreshHash
SELECT ` + sessionColumns + ` FROM sessions
WHERE refresh_hash = $1
`

// Get session by refresh hash
// It returns the session even it is expired already
func (r *SessionRepo) GetByRefreshHash(ctx context.Context, refreshHash string) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, getByRefreshHash, refreshHash)
	return collectSession(rows)
}

const getByAccessHash = `-- name: GetSessionByAccessHash
SELECT ` + sessionColumns + ` FROM sessions
WHERE access_hash = $1 AND user_id = $2
LIMIT 1
`

func (r *SessionRepo) GetByAccessHash(ctx context.Context, accessHash string, userID uuid.UUID) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, getByAccessHash, accessHash, userID)
	return collectSession(rows)
}

const listByUser = `-- name: ListSessionsByUser
SELECT ` + sessionColumns + ` FROM sessions
WHERE user_id = $1
ORDER BY created_at
`

func (r *SessionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	rows, _ := r.DB.Query(ctx, listByUser, userID)
	sessions, err := pgx.CollectRows(rows, rowToSession)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sessions, nil
}

const deleteByRefreshHash = `-- name: DeleteSessionByRefreshHash
DELETE FROM sessions WHERE refresh_hash = $1
`

func (r *SessionRepo) DeleteByRefreshHash(ctx context.Context, refreshHash string) (int64, error) {
	return r.exec(ctx, deleteByRefreshHash, refreshHash)
}

const deleteChain = `-- name: DeleteSessionChain
DELETE FROM sessions WHERE refresh_hash = $1 OR predecessor_hash = $1
`

func (r *SessionRepo) DeleteChain(ctx context.Context, hash string) (int64, error) {
	return r.exec(ctx, deleteChain, hash)
}

const deleteByUser = `-- name: DeleteSessionsByUser
DELETE FROM sessions WHERE user_id = $1
`

func (r *SessionRepo) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.exec(ctx, deleteByUser, userID)
}

const deleteExpired = `-- name: DeleteExpiredSessions
DELETE FROM sessions WHERE refresh_expires_at < $1
`

func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, deleteExpired, now)
}

func (r *SessionRepo) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := r.DB.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectSession(rows pgx.Rows) (models.Session, error) {
	s, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, pgx.ErrNoRows):
		return s, apperrors.ErrSessionNotFound
	default:
		return s, fmt.Errorf("db error: %w", err)
	}
}

func rowToSession(row pgx.CollectableRow) (models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshHash, &s.PredecessorHash, &s.AccessHash, &s.RefreshExpiresAt, &s.AccessExpiresAt, &s.CreatedAt)
	return s, err
}
