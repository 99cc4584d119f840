// Package redis keeps session records in redis.
//
// Layout under the key prefix p (wrapped in a hash tag, so every key lands in one cluster slot):
//
//	{p}:session:<refresh hash>  hash with session fields
//	{p}:access:<access hash>    refresh hash of the session
//	{p}:user:<user id>          set of refresh hashes
//	{p}:source:<hash>           set of refresh hashes rotated from the hash
//	{p}:expiry                  sorted set of refresh hashes scored by refresh expiry
//
// Session keys have no TTL: expired sessions are removed by DeleteExpired.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/models"
)

const DefaultPrefix = "authkeeper"

var ErrSessionExists = errors.New("redis error: session with the refresh hash exists already")

// KEYS: session, access, user, expiry, source (only if the session has predecessor)
const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
local rh = ARGV[1]
redis.call("HSET", KEYS[1],
  "id", ARGV[2],
  "user_id", ARGV[3],
  "access_hash", ARGV[4],
  "predecessor_hash", ARGV[5],
  "refresh_expires_at", ARGV[6],
  "access_expires_at", ARGV[7],
  "created_at", ARGV[8])
redis.call("SET", KEYS[2], rh)
redis.call("SADD", KEYS[3], rh)
redis.call("ZADD", KEYS[4], ARGV[6], rh)
if KEYS[5] then
  redis.call("SADD", KEYS[5], rh)
end
return 1
`

var createSessionLua = goredis.NewScript(createSessionScript)

// KEYS: expiry, target (session key for "one", source set for "chain", user set for "user")
// Keys of the matched sessions are derived from the prefix: they share the hash tag with KEYS
const deleteSessionsScript = `
local prefix = ARGV[1]
local mode = ARGV[2]
local target = ARGV[3]
local expiry = KEYS[1]

local function delete_session(rh)
  local key = prefix .. ":session:" .. rh
  local fields = redis.call("HMGET", key, "user_id", "access_hash", "predecessor_hash")
  redis.call("ZREM", expiry, rh)
  if not fields[1] then
    return 0
  end
  redis.call("DEL", key)
  local access_key = prefix .. ":access:" .. fields[2]
  if redis.call("GET", access_key) == rh then
    redis.call("DEL", access_key)
  end
  redis.call("SREM", prefix .. ":user:" .. fields[1], rh)
  if fields[3] and fields[3] ~= "" then
    redis.call("SREM", prefix .. ":source:" .. fields[3], rh)
  end
  return 1
end

local targets
if mode == "chain" then
  targets = redis.call("SMEMBERS", KEYS[2])
  table.insert(targets, target)
elseif mode == "user" then
  targets = redis.call("SMEMBERS", KEYS[2])
elseif mode == "expired" then
  targets = redis.call("ZRANGEBYSCORE", expiry, "-inf", "(" .. target)
else
  targets = {target}
end

local deleted = 0
for _, rh in ipairs(targets) do
  deleted = deleted + delete_session(rh)
end

if mode == "chain" or mode == "user" then
  redis.call("DEL", KEYS[2])
end

return deleted
`

var deleteSessionsLua = goredis.NewScript(deleteSessionsScript)

const (
	deleteOne     = "one"
	deleteChain   = "chain"
	deleteUser    = "user"
	deleteExpired = "expired"
)

type SessionRepo struct {
	client goredis.UniversalClient
	prefix string
}

// NewSessionRepo works over single node, sentinel or cluster client
// The prefix is wrapped in a hash tag unless it has one already
func NewSessionRepo(client goredis.UniversalClient, prefix string) *SessionRepo {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.Contains(prefix, "{") {
		prefix = "{" + prefix + "}"
	}
	return &SessionRepo{client: client, prefix: prefix}
}

func (r *SessionRepo) sessionKey(refreshHash string) string {
	return r.prefix + ":session:" + refreshHash
}

func (r *SessionRepo) accessKey(accessHash string) string {
	return r.prefix + ":access:" + accessHash
}

func (r *SessionRepo) userKey(userID uuid.UUID) string {
	return r.prefix + ":user:" + userID.String()
}

func (r *SessionRepo) sourceKey(hash string) string {
	return r.prefix + ":source:" + hash
}

func (r *SessionRepo) expiryKey() string {
	return r.prefix + ":expiry"
}

func (r *SessionRepo) Create(ctx context.Context, s models.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	keys := []string{
		r.sessionKey(s.RefreshHash),
		r.accessKey(s.AccessHash),
		r.userKey(s.UserID),
		r.expiryKey(),
	}
	var predecessor string
	if s.PredecessorHash != nil {
		predecessor = *s.PredecessorHash
		keys = append(keys, r.sourceKey(predecessor))
	}

	created, err := createSessionLua.Run(ctx, r.client, keys,
		s.RefreshHash,
		s.ID.String(),
		s.UserID.String(),
		s.AccessHash,
		predecessor,
		s.RefreshExpiresAt.UnixMicro(),
		s.AccessExpiresAt.UnixMicro(),
		s.CreatedAt.UnixMicro(),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if created == 0 {
		return ErrSessionExists
	}
	return nil
}

// Get session by refresh hash
// It returns the session even it is expired already
func (r *SessionRepo) GetByRefreshHash(ctx context.Context, refreshHash string) (models.Session, error) {
	fields, err := r.client.HGetAll(ctx, r.sessionKey(refreshHash)).Result()
	if err != nil {
		return models.Session{}, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 {
		return models.Session{}, apperrors.ErrSessionNotFound
	}
	return parseSession(refreshHash, fields)
}

func (r *SessionRepo) GetByAccessHash(ctx context.Context, accessHash string, userID uuid.UUID) (models.Session, error) {
	refreshHash, err := r.client.Get(ctx, r.accessKey(accessHash)).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		return models.Session{}, apperrors.ErrSessionNotFound
	case err != nil:
		return models.Session{}, fmt.Errorf("redis error: %w", err)
	}

	s, err := r.GetByRefreshHash(ctx, refreshHash)
	if err != nil {
		return s, err
	}
	if s.UserID != userID {
		return models.Session{}, apperrors.ErrSessionNotFound
	}
	return s, nil
}

func (r *SessionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	hashes, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}

	cmds := make([]*goredis.MapStringStringCmd, len(hashes))
	_, err = r.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, h := range hashes {
			cmds[i] = pipe.HGetAll(ctx, r.sessionKey(h))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}

	sessions := make([]models.Session, 0, len(hashes))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		s, err := parseSession(hashes[i], fields)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	slices.SortFunc(sessions, func(a, b models.Session) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return sessions, nil
}

func (r *SessionRepo) DeleteByRefreshHash(ctx context.Context, refreshHash string) (int64, error) {
	return r.delete(ctx, deleteOne, r.sessionKey(refreshHash), refreshHash)
}

// Delete the session with the hash and every session rotated from it
func (r *SessionRepo) DeleteChain(ctx context.Context, hash string) (int64, error) {
	return r.delete(ctx, deleteChain, r.sourceKey(hash), hash)
}

func (r *SessionRepo) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.delete(ctx, deleteUser, r.userKey(userID), userID.String())
}

func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.delete(ctx, deleteExpired, r.expiryKey(), strconv.FormatInt(now.UnixMicro(), 10))
}

func (r *SessionRepo) delete(ctx context.Context, mode string, targetKey string, target string) (int64, error) {
	keys := []string{r.expiryKey(), targetKey}
	n, err := deleteSessionsLua.Run(ctx, r.client, keys, r.prefix, mode, target).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return n, nil
}

func parseSession(refreshHash string, fields map[string]string) (models.Session, error) {
	s := models.Session{
		RefreshHash: refreshHash,
		AccessHash:  fields["access_hash"],
	}

	var err error
	if s.ID, err = uuid.Parse(fields["id"]); err != nil {
		return s, fmt.Errorf("redis error: corrupted session id: %w", err)
	}
	if s.UserID, err = uuid.Parse(fields["user_id"]); err != nil {
		return s, fmt.Errorf("redis error: corrupted session user id: %w", err)
	}
	if p := fields["predecessor_hash"]; p != "" {
		s.PredecessorHash = &p
	}
	if s.RefreshExpiresAt, err = parseMicro(fields["refresh_expires_at"]); err != nil {
		return s, err
	}
	if s.AccessExpiresAt, err = parseMicro(fields["access_expires_at"]); err != nil {
		return s, err
	}
	if s.CreatedAt, err = parseMicro(fields["created_at"]); err != nil {
		return s, err
	}

	return s, nil
}

func parseMicro(value string) (time.Time, error) {
	us, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis error: corrupted session timestamp %q: %w", value, err)
	}
	return time.UnixMicro(us), nil
}
