package redis

import (
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/models"
	"github.com/nkiryanov/authkeeper/internal/repository"
)

// Repo must be usable instead of the postgres one
var _ repository.SessionRepo = (*SessionRepo)(nil)

func newTestRepo(t *testing.T) (*SessionRepo, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewSessionRepo(client, "test"), mr
}

func newSession(userID uuid.UUID, refreshHash string, predecessor *string) models.Session {
	now := time.Now().Truncate(time.Microsecond)
	return models.Session{
		ID:               uuid.New(),
		UserID:           userID,
		RefreshHash:      refreshHash,
		PredecessorHash:  predecessor,
		AccessHash:       "access-" + refreshHash,
		RefreshExpiresAt: now.Add(24 * time.Hour),
		AccessExpiresAt:  now.Add(15 * time.Minute),
		CreatedAt:        now,
	}
}

func TestSessionRepo(t *testing.T) {
	t.Run("create and get by refresh hash", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		s := newSession(uuid.New(), "rh-1", nil)

		err := repo.Create(t.Context(), s)
		require.NoError(t, err)

		got, err := repo.GetByRefreshHash(t.Context(), "rh-1")
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, s.UserID, got.UserID)
		assert.Equal(t, s.AccessHash, got.AccessHash)
		assert.Nil(t, got.PredecessorHash)
		assert.True(t, s.RefreshExpiresAt.Equal(got.RefreshExpiresAt))
		assert.True(t, s.AccessExpiresAt.Equal(got.AccessExpiresAt))
		assert.True(t, s.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("create duplicate refresh hash fail", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		require.NoError(t, repo.Create(t.Context(), newSession(uuid.New(), "rh-dup", nil)))

		err := repo.Create(t.Context(), newSession(uuid.New(), "rh-dup", nil))

		require.ErrorIs(t, err, ErrSessionExists)
	})

	t.Run("get by refresh hash not found", func(t *testing.T) {
		repo, _ := newTestRepo(t)

		_, err := repo.GetByRefreshHash(t.Context(), "unknown")

		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("get by access hash checks user", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		userID := uuid.New()
		require.NoError(t, repo.Create(t.Context(), newSession(userID, "rh-a", nil)))

		got, err := repo.GetByAccessHash(t.Context(), "access-rh-a", userID)
		require.NoError(t, err)
		assert.Equal(t, "rh-a", got.RefreshHash)

		_, err = repo.GetByAccessHash(t.Context(), "access-rh-a", uuid.New())
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)

		_, err = repo.GetByAccessHash(t.Context(), "access-unknown", userID)
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("list by user sorted by creation", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		userID := uuid.New()
		first := newSession(userID, "rh-first", nil)
		second := newSession(userID, "rh-second", nil)
		second.CreatedAt = first.CreatedAt.Add(time.Second)
		require.NoError(t, repo.Create(t.Context(), second))
		require.NoError(t, repo.Create(t.Context(), first))
		require.NoError(t, repo.Create(t.Context(), newSession(uuid.New(), "rh-other", nil)))

		got, err := repo.ListByUser(t.Context(), userID)

		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "rh-first", got[0].RefreshHash)
		assert.Equal(t, "rh-second", got[1].RefreshHash)
	})

	t.Run("every key shares hash tag", func(t *testing.T) {
		repo, mr := newTestRepo(t)
		userID := uuid.New()
		prev := "rh-prev"
		require.NoError(t, repo.Create(t.Context(), newSession(userID, "rh-tagged", &prev)))

		keys := mr.Keys()
		require.Len(t, keys, 5, "session, access, user, source and expiry keys expected")
		for _, key := range keys {
			assert.Truef(t, strings.HasPrefix(key, "{test}:"), "key %q must be in the prefix slot", key)
		}
	})

	t.Run("prefix with hash tag kept as is", func(t *testing.T) {
		repo := NewSessionRepo(goredis.NewClient(&goredis.Options{}), "{app}:sessions")

		assert.Equal(t, "{app}:sessions:expiry", repo.expiryKey())
	})

	t.Run("delete by refresh hash cleans indexes", func(t *testing.T) {
		repo, mr := newTestRepo(t)
		userID := uuid.New()
		prev := "rh-prev"
		require.NoError(t, repo.Create(t.Context(), newSession(userID, "rh-del", &prev)))

		n, err := repo.DeleteByRefreshHash(t.Context(), "rh-del")
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		assert.False(t, mr.Exists(repo.sessionKey("rh-del")))
		assert.False(t, mr.Exists(repo.accessKey("access-rh-del")))
		isMember, err := repo.client.SIsMember(t.Context(), repo.userKey(userID), "rh-del").Result()
		require.NoError(t, err)
		assert.False(t, isMember)
		isMember, err = repo.client.SIsMember(t.Context(), repo.sourceKey("rh-prev"), "rh-del").Result()
		require.NoError(t, err)
		assert.False(t, isMember)
		_, err = repo.client.ZScore(t.Context(), repo.expiryKey(), "rh-del").Result()
		assert.ErrorIs(t, err, goredis.Nil)

		n, err = repo.DeleteByRefreshHash(t.Context(), "rh-del")
		require.NoError(t, err, "delete is idempotent")
		assert.EqualValues(t, 0, n)
	})

	t.Run("delete chain", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		userID := uuid.New()
		h := "rh-h"
		require.NoError(t, repo.Create(t.Context(), newSession(userID, h, nil)))
		require.NoError(t, repo.Create(t.Context(), newSession(userID, "rh-next", &h)))
		require.NoError(t, repo.Create(t.Context(), newSession(userID, "rh-unrelated", nil)))

		n, err := repo.DeleteChain(t.Context(), h)

		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		left, err := repo.ListByUser(t.Context(), userID)
		require.NoError(t, err)
		require.Len(t, left, 1)
		assert.Equal(t, "rh-unrelated", left[0].RefreshHash)
	})

	t.Run("delete chain when source is gone", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		h := "rh-rotated-away"
		require.NoError(t, repo.Create(t.Context(), newSession(uuid.New(), "rh-successor", &h)))

		n, err := repo.DeleteChain(t.Context(), h)

		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("delete by user", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		userID := uuid.New()
		otherID := uuid.New()
		require.NoError(t, repo.Create(t.Context(), newSession(userID, "rh-u1", nil)))
		require.NoError(t, repo.Create(t.Context(), newSession(userID, "rh-u2", nil)))
		require.NoError(t, repo.Create(t.Context(), newSession(otherID, "rh-o1", nil)))

		n, err := repo.DeleteByUser(t.Context(), userID)

		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		_, err = repo.GetByRefreshHash(t.Context(), "rh-o1")
		assert.NoError(t, err, "other user sessions must survive")
	})

	t.Run("delete expired", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		userID := uuid.New()
		expired := newSession(userID, "rh-exp", nil)
		expired.RefreshExpiresAt = time.Now().Add(-time.Minute)
		require.NoError(t, repo.Create(t.Context(), expired))
		require.NoError(t, repo.Create(t.Context(), newSession(userID, "rh-live", nil)))

		n, err := repo.DeleteExpired(t.Context(), time.Now())

		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		_, err = repo.GetByRefreshHash(t.Context(), "rh-exp")
		assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		_, err = repo.GetByRefreshHash(t.Context(), "rh-live")
		assert.NoError(t, err)
	})
}
