// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package iam_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlforge/platform/internal/iam"
	"github.com/mlforge/platform/internal/platform/apperr"
)

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return server, client
}

/*
TestRedisSessionStore_PutGet checks the JSON snapshot round trip.
*/
func TestRedisSessionStore_PutGet(t *testing.T) {
	_, client := newRedisClient(t)
	store := iam.NewRedisSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newSession("session-1", "user-1"), time.Minute))

	got, err := store.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "scientist", got.Username)
	assert.Equal(t, []string{"data_scientist"}, got.Roles)

	_, err = store.Get(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
}

/*
TestRedisSessionStore_TTLExpiry confirms Redis key expiry removes the
session.
*/
func TestRedisSessionStore_TTLExpiry(t *testing.T) {
	server, client := newRedisClient(t)
	store := iam.NewRedisSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newSession("session-1", "user-1"), time.Minute))

	server.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "session-1")
	assert.Error(t, err)
}

/*
TestRedisSessionStore_TouchSlidesTTL confirms refreshing keeps the
session alive past its original deadline.
*/
func TestRedisSessionStore_TouchSlidesTTL(t *testing.T) {
	server, client := newRedisClient(t)
	store := iam.NewRedisSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newSession("session-1", "user-1"), time.Minute))

	server.FastForward(30 * time.Second)
	require.NoError(t, store.Touch(ctx, "session-1", time.Minute))

	// Past the ORIGINAL expiry, within the slid window.
	server.FastForward(45 * time.Second)
	got, err := store.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.False(t, got.LastSeenAt.IsZero())
}

/*
TestRedisSessionStore_DeleteAllForUser checks the per-user index drives
bulk revocation.
*/
func TestRedisSessionStore_DeleteAllForUser(t *testing.T) {
	_, client := newRedisClient(t)
	store := iam.NewRedisSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newSession("a", "user-1"), time.Minute))
	require.NoError(t, store.Put(ctx, newSession("b", "user-1"), time.Minute))
	require.NoError(t, store.Put(ctx, newSession("c", "user-2"), time.Minute))

	dropped, err := store.DeleteAllForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	_, err = store.Get(ctx, "a")
	assert.Error(t, err)
	_, err = store.Get(ctx, "b")
	assert.Error(t, err)
	_, err = store.Get(ctx, "c")
	assert.NoError(t, err)
}

/*
TestRedisSessionStore_DeleteIdempotent confirms deleting an absent
session is not an error.
*/
func TestRedisSessionStore_DeleteIdempotent(t *testing.T) {
	_, client := newRedisClient(t)
	store := iam.NewRedisSessionStore(client)
	ctx := context.Background()

	assert.NoError(t, store.Delete(ctx, "never-existed"))

	require.NoError(t, store.Put(ctx, newSession("session-1", "user-1"), time.Minute))
	assert.NoError(t, store.Delete(ctx, "session-1"))
	assert.NoError(t, store.Delete(ctx, "session-1"))
}

/*
TestRedisTokenStore_SingleUse confirms GETDEL semantics: exactly one
successful consume per token.
*/
func TestRedisTokenStore_SingleUse(t *testing.T) {
	_, client := newRedisClient(t)
	store := iam.NewRedisTokenStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newPendingToken("tok-1", "user-1", iam.TokenPurposeVerifyEmail, time.Hour)))

	claimed, err := store.Consume(ctx, "tok-1", iam.TokenPurposeVerifyEmail)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claimed.UserID)
	assert.True(t, claimed.Used)

	_, err = store.Consume(ctx, "tok-1", iam.TokenPurposeVerifyEmail)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
}

/*
TestRedisTokenStore_PurposeIsolation confirms the key taxonomy keeps the
two flows apart: a verification token is invisible to the reset flow.
*/
func TestRedisTokenStore_PurposeIsolation(t *testing.T) {
	_, client := newRedisClient(t)
	store := iam.NewRedisTokenStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newPendingToken("tok-1", "user-1", iam.TokenPurposeVerifyEmail, time.Hour)))

	_, err := store.Consume(ctx, "tok-1", iam.TokenPurposePasswordReset)
	assert.Error(t, err)

	_, err = store.Consume(ctx, "tok-1", iam.TokenPurposeVerifyEmail)
	assert.NoError(t, err)
}

/*
TestRedisTokenStore_Supersede confirms re-issuing replaces the live token.
*/
func TestRedisTokenStore_Supersede(t *testing.T) {
	_, client := newRedisClient(t)
	store := iam.NewRedisTokenStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newPendingToken("old", "user-1", iam.TokenPurposePasswordReset, time.Hour)))
	require.NoError(t, store.Put(ctx, newPendingToken("new", "user-1", iam.TokenPurposePasswordReset, time.Hour)))

	_, err := store.Consume(ctx, "old", iam.TokenPurposePasswordReset)
	assert.Error(t, err, "superseded token must be dead")

	_, err = store.Consume(ctx, "new", iam.TokenPurposePasswordReset)
	assert.NoError(t, err)
}

/*
TestRedisTokenStore_TTLExpiry confirms tokens die with their Redis TTL.
*/
func TestRedisTokenStore_TTLExpiry(t *testing.T) {
	server, client := newRedisClient(t)
	store := iam.NewRedisTokenStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newPendingToken("tok-1", "user-1", iam.TokenPurposeVerifyEmail, time.Minute)))

	server.FastForward(2 * time.Minute)

	_, err := store.Consume(ctx, "tok-1", iam.TokenPurposeVerifyEmail)
	assert.Error(t, err)
}

/*
TestRedisTokenStore_RevokeAllForUser confirms revocation through the
reverse index.
*/
func TestRedisTokenStore_RevokeAllForUser(t *testing.T) {
	_, client := newRedisClient(t)
	store := iam.NewRedisTokenStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newPendingToken("verify", "user-1", iam.TokenPurposeVerifyEmail, time.Hour)))
	require.NoError(t, store.Put(ctx, newPendingToken("reset", "user-1", iam.TokenPurposePasswordReset, time.Hour)))

	require.NoError(t, store.RevokeAllForUser(ctx, "user-1", iam.TokenPurposeVerifyEmail))
	// Revoking with nothing live is a no-op.
	require.NoError(t, store.RevokeAllForUser(ctx, "user-1", iam.TokenPurposeVerifyEmail))

	_, err := store.Consume(ctx, "verify", iam.TokenPurposeVerifyEmail)
	assert.Error(t, err)

	_, err = store.Consume(ctx, "reset", iam.TokenPurposePasswordReset)
	assert.NoError(t, err)
}
