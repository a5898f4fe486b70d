// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package sec_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlforge/platform/internal/platform/sec"
)

func newTestCodec(secret string) *sec.TokenCodec {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return sec.NewTokenCodec(secret, "mlforge.platform", logger)
}

var testIdentity = sec.Identity{
	UserID:    "0191e2a0-0000-7000-8000-000000000001",
	Username:  "scientist",
	Email:     "scientist@mlforge.dev",
	Roles:     []string{"data_scientist"},
	SessionID: "0191e2a0-0000-7000-8000-00000000beef",
}

/*
TestTokenCodec_RoundTrip signs an access token and verifies every claim
survives the trip.
*/
func TestTokenCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec("unit-test-secret")

	token, err := codec.Issue(testIdentity, sec.TokenKindAccess, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := codec.Verify(token, sec.TokenKindAccess)
	require.NoError(t, err)

	assert.Equal(t, testIdentity.UserID, claims.UserID())
	assert.Equal(t, testIdentity.Username, claims.Username)
	assert.Equal(t, testIdentity.Email, claims.Email)
	assert.Equal(t, testIdentity.Roles, claims.Roles)
	assert.Equal(t, testIdentity.SessionID, claims.SessionID)
	assert.Equal(t, string(sec.TokenKindAccess), claims.TokenType)
	assert.NotEmpty(t, claims.ID, "every token carries a jti")
}

/*
TestTokenCodec_KindMismatch confirms a refresh token can never be verified
as an access token and vice versa.
*/
func TestTokenCodec_KindMismatch(t *testing.T) {
	codec := newTestCodec("unit-test-secret")

	refreshToken, err := codec.Issue(testIdentity, sec.TokenKindRefresh, time.Minute)
	require.NoError(t, err)

	_, err = codec.Verify(refreshToken, sec.TokenKindAccess)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)

	accessToken, err := codec.Issue(testIdentity, sec.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	_, err = codec.Verify(accessToken, sec.TokenKindRefresh)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)
}

/*
TestTokenCodec_Expired confirms expiry surfaces as ErrTokenExpired, not the
generic invalid error.
*/
func TestTokenCodec_Expired(t *testing.T) {
	codec := newTestCodec("unit-test-secret")

	token, err := codec.Issue(testIdentity, sec.TokenKindAccess, -time.Minute)
	require.NoError(t, err)

	_, err = codec.Verify(token, sec.TokenKindAccess)
	assert.ErrorIs(t, err, sec.ErrTokenExpired)
}

/*
TestTokenCodec_WrongSecret confirms tokens signed under another secret are
rejected.
*/
func TestTokenCodec_WrongSecret(t *testing.T) {
	token, err := newTestCodec("secret-a").Issue(testIdentity, sec.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	_, err = newTestCodec("secret-b").Verify(token, sec.TokenKindAccess)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)
}

/*
TestTokenCodec_Garbage confirms structurally malformed input is rejected.
*/
func TestTokenCodec_Garbage(t *testing.T) {
	codec := newTestCodec("unit-test-secret")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not_a_jwt", "hello world"},
		{"truncated", "eyJhbGciOiJIUzI1NiJ9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Verify(tt.token, sec.TokenKindAccess)
			assert.ErrorIs(t, err, sec.ErrTokenInvalid)
		})
	}
}

/*
TestGenerateSecureToken confirms tokens are URL-safe and unique.
*/
func TestGenerateSecureToken(t *testing.T) {
	first, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.NotContains(t, first, "+")
	assert.NotContains(t, first, "/")
	assert.NotContains(t, first, "=")
}
