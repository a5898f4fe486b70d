// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package iam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mlforge/platform/internal/platform/apperr"
	"github.com/mlforge/platform/internal/platform/constants"
)

// # Session Store

// RedisSessionStore implements SessionStore using Redis.
//
// Each session is a JSON snapshot stored under auth:session:{id}. Session
// IDs are additionally indexed under auth:session_user:{userID} (a Redis
// set) so a user's sessions can be revoked in bulk.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a new Redis-backed SessionStore.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(sessionID string) string {
	return constants.RedisPrefixSession + sessionID
}

func sessionUserKey(userID string) string {
	return constants.RedisPrefixSessionUser + userID
}

/*
Put stores or replaces a session snapshot with the given TTL.

Parameters:
  - ctx: context.Context
  - session: The session snapshot to persist.
  - ttl: Lifetime before Redis expires the key.

Returns:
  - error: Serialization or connectivity errors
*/
func (store *RedisSessionStore) Put(ctx context.Context, session *Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis_session_marshal_failed: %w", err)
	}

	// Write the snapshot and the per-user index in one round trip.
	pipeline := store.client.TxPipeline()
	pipeline.Set(ctx, sessionKey(session.ID), payload, ttl)
	pipeline.SAdd(ctx, sessionUserKey(session.UserID), session.ID)
	// The index outlives each member slightly; stale IDs are pruned on read.
	pipeline.Expire(ctx, sessionUserKey(session.UserID), ttl)

	if _, err := pipeline.Exec(ctx); err != nil {
		return fmt.Errorf("redis_session_put_failed: %w", err)
	}
	return nil
}

/*
Get retrieves a session by ID.

Description: Returns apperr.NotFound if the session is absent or expired.

Parameters:
  - ctx: context.Context
  - sessionID: string

Returns:
  - *Session: The stored snapshot
  - error: apperr.NotFound or connectivity errors
*/
func (store *RedisSessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	payload, err := store.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("redis_session_get_failed: %w", err)
	}

	session := &Session{}
	if err := json.Unmarshal(payload, session); err != nil {
		return nil, fmt.Errorf("redis_session_unmarshal_failed: %w", err)
	}
	return session, nil
}

// Touch re-stores the session with a fresh TTL and bumps LastSeenAt.
// Refreshing therefore keeps an active session alive indefinitely while
// abandoned sessions expire on schedule.
func (store *RedisSessionStore) Touch(ctx context.Context, sessionID string, ttl time.Duration) error {
	session, err := store.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	session.LastSeenAt = time.Now()
	return store.Put(ctx, session, ttl)
}

// Delete removes a session. Absent sessions are ignored (idempotent logout).
func (store *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	// Fetch first so the user index can be cleaned up too.
	session, err := store.Get(ctx, sessionID)
	if err != nil {
		if apperr.IsAppError(err) {
			return nil
		}
		return err
	}

	pipeline := store.client.TxPipeline()
	pipeline.Del(ctx, sessionKey(sessionID))
	pipeline.SRem(ctx, sessionUserKey(session.UserID), sessionID)
	if _, err := pipeline.Exec(ctx); err != nil {
		return fmt.Errorf("redis_session_delete_failed: %w", err)
	}
	return nil
}

// DeleteAllForUser drops every session in the user's index set.
func (store *RedisSessionStore) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	sessionIDs, err := store.client.SMembers(ctx, sessionUserKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis_session_index_read_failed: %w", err)
	}
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(sessionIDs)+1)
	for _, sessionID := range sessionIDs {
		keys = append(keys, sessionKey(sessionID))
	}
	keys = append(keys, sessionUserKey(userID))

	if err := store.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("redis_session_delete_all_failed: %w", err)
	}
	return len(sessionIDs), nil
}

// # Token Store

// RedisTokenStore implements TokenStore using Redis.
//
// Tokens live under auth:verify_token:{value} / auth:reset_token:{value}
// with a reverse index auth:verify_user:{id} / auth:reset_user:{id} holding
// the user's current live token value. The index is what makes
// supersede-on-reissue possible: issuing a new token deletes the old one.
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore creates a new Redis-backed TokenStore.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

// tokenKeys returns the (token, user-index) key prefixes for a purpose.
func tokenKeys(purpose TokenPurpose) (string, string) {
	if purpose == TokenPurposePasswordReset {
		return constants.RedisPrefixResetToken, constants.RedisPrefixResetUserIndex
	}
	return constants.RedisPrefixVerifyToken, constants.RedisPrefixVerifyUserIndex
}

/*
Put stores a pending token, superseding any live token for the same user
and purpose.

Parameters:
  - ctx: context.Context
  - token: The token to persist; its ExpiresAt bounds the Redis TTL.

Returns:
  - error: Serialization or connectivity errors
*/
func (store *RedisTokenStore) Put(ctx context.Context, token *PendingToken) error {
	tokenPrefix, indexPrefix := tokenKeys(token.Purpose)
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("redis_token_put_failed: token already expired")
	}

	// Supersede: drop the user's previous live token, if any.
	previous, err := store.client.Get(ctx, indexPrefix+token.UserID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis_token_index_read_failed: %w", err)
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("redis_token_marshal_failed: %w", err)
	}

	pipeline := store.client.TxPipeline()
	if previous != "" {
		pipeline.Del(ctx, tokenPrefix+previous)
	}
	pipeline.Set(ctx, tokenPrefix+token.Token, payload, ttl)
	pipeline.Set(ctx, indexPrefix+token.UserID, token.Token, ttl)

	if _, err := pipeline.Exec(ctx); err != nil {
		return fmt.Errorf("redis_token_put_failed: %w", err)
	}
	return nil
}

/*
Consume atomically claims a single-use token.

Description: GETDEL guarantees exactly one caller can ever claim a given
token, even under concurrent requests. Unknown, expired, used, and
wrong-purpose tokens are all reported identically as apperr.NotFound.

Parameters:
  - ctx: context.Context
  - value: The raw token string from the email link.
  - purpose: Which flow the token must belong to.

Returns:
  - *PendingToken: The claimed token, marked used
  - error: apperr.NotFound or connectivity errors
*/
func (store *RedisTokenStore) Consume(ctx context.Context, value string, purpose TokenPurpose) (*PendingToken, error) {
	tokenPrefix, indexPrefix := tokenKeys(purpose)

	payload, err := store.client.GetDel(ctx, tokenPrefix+value).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperr.NotFound("Token")
		}
		return nil, fmt.Errorf("redis_token_consume_failed: %w", err)
	}

	token := &PendingToken{}
	if err := json.Unmarshal(payload, token); err != nil {
		return nil, fmt.Errorf("redis_token_unmarshal_failed: %w", err)
	}
	token.Used = true

	// Best effort: the TTL would clear the index anyway.
	store.client.Del(ctx, indexPrefix+token.UserID)

	return token, nil
}

// RevokeAllForUser invalidates the user's live token for the purpose, if any.
func (store *RedisTokenStore) RevokeAllForUser(ctx context.Context, userID string, purpose TokenPurpose) error {
	tokenPrefix, indexPrefix := tokenKeys(purpose)

	value, err := store.client.Get(ctx, indexPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("redis_token_index_read_failed: %w", err)
	}

	if err := store.client.Del(ctx, tokenPrefix+value, indexPrefix+userID).Err(); err != nil {
		return fmt.Errorf("redis_token_revoke_failed: %w", err)
	}
	return nil
}
