// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package iam_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlforge/platform/internal/iam"
	"github.com/mlforge/platform/internal/platform/apperr"
	"github.com/mlforge/platform/internal/platform/sec"
	"github.com/mlforge/platform/pkg/uuid"
)

const testPassword = "correct-horse-battery"

type authFixture struct {
	service      *iam.AuthService
	users        *fakeUserRepository
	roles        *fakeRoleRepository
	sessionStore *iam.MemorySessionStore
	tokenCodec   *sec.TokenCodec
}

/*
newAuthFixture wires an AuthService against the fake user repository and
the real in-memory session store, with a 5-failure login limiter and the
production 30m/168h token lifetimes.
*/
func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	roles := newFakeRoleRepository()
	users := newFakeUserRepository(roles)
	sessionStore := iam.NewMemorySessionStore(ctx)
	tokenCodec := sec.NewTokenCodec("test-secret-key", "mlforge.platform", logger)
	loginLimiter := iam.NewLoginLimiter(ctx, 5, 15*time.Minute, false)

	return &authFixture{
		service: iam.NewAuthService(
			users, sessionStore, tokenCodec, loginLimiter,
			30*time.Minute, 168*time.Hour, logger,
		),
		users:        users,
		roles:        roles,
		sessionStore: sessionStore,
		tokenCodec:   tokenCodec,
	}
}

// seedUser creates an active account with a real bcrypt hash of testPassword.
func seedUser(t *testing.T, fixture *authFixture, username, email string, roleNames ...string) *iam.User {
	t.Helper()

	hash, err := sec.HashPassword(testPassword)
	require.NoError(t, err)

	userRoles := make([]iam.Role, 0, len(roleNames))
	for _, name := range roleNames {
		role := iam.Role{ID: uuid.Must(), Name: name}
		fixture.roles.add(role)
		userRoles = append(userRoles, role)
	}

	user := &iam.User{
		ID:           uuid.Must(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		Roles:        userRoles,
	}
	require.NoError(t, fixture.users.Create(context.Background(), user, nil))
	return user
}

func TestAuthService_Login(t *testing.T) {
	fixture := newAuthFixture(t)
	seeded := seedUser(t, fixture, "alice", "alice@mlforge.dev", iam.RoleDataScientist)
	ctx := context.Background()

	tokens, user, err := fixture.service.Login(ctx, "alice", testPassword, "10.0.0.1", "go-test")
	require.NoError(t, err)
	require.NotNil(t, tokens)
	require.NotNil(t, user)

	assert.Equal(t, seeded.ID, user.ID)
	assert.Equal(t, "bearer", tokens.TokenType)
	assert.Equal(t, 1800, tokens.ExpiresIn)

	claims, err := fixture.tokenCodec.Verify(tokens.AccessToken, sec.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, claims.UserID())
	assert.Equal(t, []string{iam.RoleDataScientist}, claims.Roles)
	require.NotEmpty(t, claims.SessionID)

	session, err := fixture.sessionStore.Get(ctx, claims.SessionID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, session.UserID)
	assert.Equal(t, "10.0.0.1", session.IPAddress)
	assert.Equal(t, "go-test", session.UserAgent)
}

func TestAuthService_LoginByEmail(t *testing.T) {
	fixture := newAuthFixture(t)
	seedUser(t, fixture, "alice", "alice@mlforge.dev")

	tokens, user, err := fixture.service.Login(context.Background(), "alice@mlforge.dev", testPassword, "10.0.0.1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "alice", user.Username)
}

/*
TestAuthService_LoginInvalidCredentials verifies that unknown accounts and
wrong passwords produce the exact same client-facing error, so responses
cannot be used to enumerate accounts.
*/
func TestAuthService_LoginInvalidCredentials(t *testing.T) {
	fixture := newAuthFixture(t)
	seedUser(t, fixture, "alice", "alice@mlforge.dev")

	tests := []struct {
		name     string
		login    string
		password string
	}{
		{name: "unknown_user", login: "mallory", password: testPassword},
		{name: "wrong_password", login: "alice", password: "not-the-password"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			_, _, err := fixture.service.Login(context.Background(), testCase.login, testCase.password, "10.0.0.2", "")
			require.Error(t, err)

			appErr := apperr.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, "UNAUTHORIZED", appErr.Code)
			assert.Equal(t, "Invalid credentials", appErr.Message)
		})
	}
}

/*
TestAuthService_LoginDeactivatedAccount verifies that a soft-deleted
account is indistinguishable from an unknown one at login, and that every
attempt against it burns the client's failure budget: pounding on a dead
account still trips the limiter.
*/
func TestAuthService_LoginDeactivatedAccount(t *testing.T) {
	fixture := newAuthFixture(t)
	user := seedUser(t, fixture, "alice", "alice@mlforge.dev")
	ctx := context.Background()
	require.NoError(t, fixture.users.SoftDelete(ctx, user.ID))

	for attempt := 0; attempt < 5; attempt++ {
		_, _, err := fixture.service.Login(ctx, "alice", testPassword, "10.0.0.3", "")
		require.Error(t, err)
		appErr := apperr.As(err)
		require.NotNil(t, appErr)
		assert.Equal(t, "UNAUTHORIZED", appErr.Code)
		assert.Equal(t, "Invalid credentials", appErr.Message)
	}

	_, _, err := fixture.service.Login(ctx, "alice", testPassword, "10.0.0.3", "")
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "RATE_LIMITED", appErr.Code)
}

/*
TestAuthService_LoginRateLimited exhausts the five-failure budget and then
verifies that even the CORRECT password is rejected with RATE_LIMITED, and
that the limiter keys on the client IP so other addresses are unaffected.
*/
func TestAuthService_LoginRateLimited(t *testing.T) {
	fixture := newAuthFixture(t)
	seedUser(t, fixture, "alice", "alice@mlforge.dev")
	ctx := context.Background()

	for attempt := 0; attempt < 5; attempt++ {
		_, _, err := fixture.service.Login(ctx, "alice", "wrong-password", "10.0.0.4", "")
		require.Error(t, err)
	}

	_, _, err := fixture.service.Login(ctx, "alice", testPassword, "10.0.0.4", "")
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "RATE_LIMITED", appErr.Code)

	// A different client IP still gets through.
	_, _, err = fixture.service.Login(ctx, "alice", testPassword, "10.0.0.5", "")
	assert.NoError(t, err)
}

func TestAuthService_Refresh(t *testing.T) {
	fixture := newAuthFixture(t)
	seedUser(t, fixture, "alice", "alice@mlforge.dev", iam.RoleRegularUser)
	ctx := context.Background()

	tokens, _, err := fixture.service.Login(ctx, "alice", testPassword, "10.0.0.6", "")
	require.NoError(t, err)

	refreshed, err := fixture.service.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, 1800, refreshed.ExpiresIn)

	// The new pair is bound to the ORIGINAL session.
	oldClaims, err := fixture.tokenCodec.Verify(tokens.AccessToken, sec.TokenKindAccess)
	require.NoError(t, err)
	newClaims, err := fixture.tokenCodec.Verify(refreshed.AccessToken, sec.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, oldClaims.SessionID, newClaims.SessionID)
}

func TestAuthService_RefreshRejectsAccessToken(t *testing.T) {
	fixture := newAuthFixture(t)
	seedUser(t, fixture, "alice", "alice@mlforge.dev")

	tokens, _, err := fixture.service.Login(context.Background(), "alice", testPassword, "10.0.0.7", "")
	require.NoError(t, err)

	_, err = fixture.service.Refresh(context.Background(), tokens.AccessToken)
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "Invalid or expired refresh token", appErr.Message)
}

/*
TestAuthService_RefreshAfterLogout proves the revocation model: deleting
the server-side session kills a refresh token that is still
cryptographically valid.
*/
func TestAuthService_RefreshAfterLogout(t *testing.T) {
	fixture := newAuthFixture(t)
	seedUser(t, fixture, "alice", "alice@mlforge.dev")
	ctx := context.Background()

	tokens, _, err := fixture.service.Login(ctx, "alice", testPassword, "10.0.0.8", "")
	require.NoError(t, err)

	require.True(t, fixture.service.Logout(ctx, tokens.AccessToken))

	_, err = fixture.service.Refresh(ctx, tokens.RefreshToken)
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "UNAUTHORIZED", appErr.Code)
	assert.Equal(t, "Session expired", appErr.Message)
}

func TestAuthService_RefreshDeactivatedAccount(t *testing.T) {
	fixture := newAuthFixture(t)
	user := seedUser(t, fixture, "alice", "alice@mlforge.dev")
	ctx := context.Background()

	tokens, _, err := fixture.service.Login(ctx, "alice", testPassword, "10.0.0.9", "")
	require.NoError(t, err)

	require.NoError(t, fixture.users.SoftDelete(ctx, user.ID))

	// The deactivated account is invisible to lookups, so the session is
	// orphaned and the refresh fails.
	_, err = fixture.service.Refresh(ctx, tokens.RefreshToken)
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "UNAUTHORIZED", appErr.Code)
	assert.Equal(t, "Invalid or expired refresh token", appErr.Message)

	// The orphaned session was dropped, so the next attempt sees no session.
	_, err = fixture.service.Refresh(ctx, tokens.RefreshToken)
	require.Error(t, err)
	appErr = apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "Session expired", appErr.Message)
}

func TestAuthService_RefreshCarriesCurrentRoles(t *testing.T) {
	fixture := newAuthFixture(t)
	user := seedUser(t, fixture, "alice", "alice@mlforge.dev", iam.RoleRegularUser)
	ctx := context.Background()

	tokens, _, err := fixture.service.Login(ctx, "alice", testPassword, "10.0.0.10", "")
	require.NoError(t, err)

	// Promote the account while the session is live.
	admin := iam.Role{ID: uuid.Must(), Name: iam.RoleAdmin}
	fixture.roles.add(admin)
	updated := *user
	require.NoError(t, fixture.users.Update(ctx, &updated, []string{admin.ID}))

	refreshed, err := fixture.service.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)

	claims, err := fixture.tokenCodec.Verify(refreshed.AccessToken, sec.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, []string{iam.RoleAdmin}, claims.Roles)
}

// Logout swallows unverifiable tokens: there is no session to tear down
// and the client gets its 204 either way.
func TestAuthService_LogoutGarbageToken(t *testing.T) {
	fixture := newAuthFixture(t)
	assert.True(t, fixture.service.Logout(context.Background(), "not.a.jwt"))
}

func TestAuthService_CurrentUser(t *testing.T) {
	fixture := newAuthFixture(t)
	seeded := seedUser(t, fixture, "alice", "alice@mlforge.dev")
	ctx := context.Background()

	tokens, _, err := fixture.service.Login(ctx, "alice", testPassword, "10.0.0.11", "")
	require.NoError(t, err)
	claims, err := fixture.tokenCodec.Verify(tokens.AccessToken, sec.TokenKindAccess)
	require.NoError(t, err)

	user, err := fixture.service.CurrentUser(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, user.ID)

	require.NoError(t, fixture.users.SoftDelete(ctx, seeded.ID))
	_, err = fixture.service.CurrentUser(ctx, claims)
	require.Error(t, err)

	// The orphaned session was deleted alongside the failed lookup.
	_, err = fixture.sessionStore.Get(ctx, claims.SessionID)
	require.Error(t, err)
}

/*
TestAuthService_CurrentUserAfterLogout proves that identity lookups apply
the same session-validity check as refresh: once the session is gone, a
still-valid access token no longer resolves to a user.
*/
func TestAuthService_CurrentUserAfterLogout(t *testing.T) {
	fixture := newAuthFixture(t)
	seedUser(t, fixture, "alice", "alice@mlforge.dev")
	ctx := context.Background()

	tokens, _, err := fixture.service.Login(ctx, "alice", testPassword, "10.0.0.12", "")
	require.NoError(t, err)
	claims, err := fixture.tokenCodec.Verify(tokens.AccessToken, sec.TokenKindAccess)
	require.NoError(t, err)

	require.True(t, fixture.service.Logout(ctx, tokens.AccessToken))

	_, err = fixture.service.CurrentUser(ctx, claims)
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "UNAUTHORIZED", appErr.Code)
	assert.Equal(t, "Session expired", appErr.Message)
}
