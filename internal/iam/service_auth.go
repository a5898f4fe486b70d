// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

// Application services for the identity domain.
//
// # Architecture
//
// Services orchestrate domain entities and interact with repositories
// through interfaces. They are technology-agnostic and do not know about
// HTTP or SQL.
//
// # Review Process
//
// These services are critical for security. Any changes to hashing, login,
// or token logic must be reviewed by the security team.

package iam

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mlforge/platform/internal/platform/apperr"
	"github.com/mlforge/platform/internal/platform/sec"
	"github.com/mlforge/platform/pkg/uuid"
)

// TokenResponse is the credential pair returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"` // Always "bearer".
	ExpiresIn    int    `json:"expires_in"` // Access-token lifetime in seconds.
}

// AuthService implements the authentication use cases: login, token
// refresh, and logout.
type AuthService struct {
	userRepository UserRepository
	sessionStore   SessionStore
	tokenCodec     *sec.TokenCodec
	loginLimiter   *LoginLimiter
	accessTTL      time.Duration
	refreshTTL     time.Duration
	logger         *slog.Logger
}

// NewAuthService constructs an [AuthService] with its dependencies.
func NewAuthService(
	userRepository UserRepository,
	sessionStore SessionStore,
	tokenCodec *sec.TokenCodec,
	loginLimiter *LoginLimiter,
	accessTTL time.Duration,
	refreshTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		userRepository: userRepository,
		sessionStore:   sessionStore,
		tokenCodec:     tokenCodec,
		loginLimiter:   loginLimiter,
		accessTTL:      accessTTL,
		refreshTTL:     refreshTTL,
		logger:         logger,
	}
}

// Authenticate validates credentials against the rate limiter, the user
// table, and bcrypt — in that order.
//
// # Flow
//  1. Reject if the limiter key (client IP, else the login itself) is
//     locked out. This happens before ANY database or bcrypt work.
//  2. Look up by username, falling back to email. Lookups only surface
//     active accounts, so a deactivated account fails exactly like an
//     unknown one.
//  3. Constant-time bcrypt comparison.
//
// Every failed attempt, deactivated accounts included, counts against
// the client's failure budget.
//
// # Returns
//   - [apperr.RateLimited] when the failure budget is exhausted.
//   - [apperr.Unauthorized] with a generic message for unknown users and
//     wrong passwords alike (prevents account enumeration).
func (service *AuthService) Authenticate(ctx context.Context, login, password, clientIP string) (*User, error) {
	limiterKey := clientIP
	if limiterKey == "" {
		limiterKey = login
	}

	if service.loginLimiter.IsLimited(limiterKey) {
		service.logger.Warn("auth_login_rate_limited", slog.String("key", limiterKey))
		return nil, apperr.RateLimited("Too many failed login attempts. Please try again later.")
	}

	// Flexible login: username or email.
	user, err := service.userRepository.FindByUsername(ctx, login)
	if err != nil {
		user, err = service.userRepository.FindByEmail(ctx, login)
	}
	if err != nil {
		service.loginLimiter.RecordFailure(limiterKey)
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	if !sec.CheckPasswordHash(password, user.PasswordHash) {
		service.loginLimiter.RecordFailure(limiterKey)
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	// Repository lookups filter deactivated accounts already; this guards
	// any UserRepository implementation that does not.
	if !user.IsActive {
		service.loginLimiter.RecordFailure(limiterKey)
		return nil, apperr.Unauthorized("Account is deactivated")
	}

	service.loginLimiter.RecordSuccess(limiterKey)
	return user, nil
}

// Login authenticates and establishes a session.
//
// # Flow
//  1. [AuthService.Authenticate] the credentials.
//  2. Create a server-side session snapshotting the identity.
//  3. Issue an access/refresh pair carrying the session_id claim.
//
// The session TTL equals the refresh-token lifetime: when the refresh
// token can no longer be used, the session record has nothing to protect.
func (service *AuthService) Login(ctx context.Context, login, password, clientIP, userAgent string) (*TokenResponse, *User, error) {
	user, err := service.Authenticate(ctx, login, password, clientIP)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	session := &Session{
		ID:         uuid.Must(),
		UserID:     user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Roles:      user.RoleNames(),
		IPAddress:  clientIP,
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastSeenAt: now,
	}

	if err := service.sessionStore.Put(ctx, session, service.refreshTTL); err != nil {
		return nil, nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	tokens, err := service.issuePair(user, session.ID)
	if err != nil {
		return nil, nil, err
	}

	service.logger.Info("auth_login_succeeded",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
	)
	return tokens, user, nil
}

// Refresh exchanges a valid refresh token for a fresh access/refresh pair.
//
// # Flow
//  1. Verify the JWT as refresh-kind; `sub` and `session_id` are required.
//  2. The referenced session must still resolve — deleting the session is
//     how the platform revokes refresh tokens before expiry.
//  3. The account must still exist and be active; an orphaned session is
//     deleted on sight.
//  4. Slide the session TTL and reissue tokens with the user's CURRENT
//     roles, reusing the same session_id.
func (service *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	claims, err := service.tokenCodec.Verify(refreshToken, sec.TokenKindRefresh)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}
	if claims.UserID() == "" || claims.SessionID == "" {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	if _, err := service.sessionStore.Get(ctx, claims.SessionID); err != nil {
		return nil, apperr.Unauthorized("Session expired")
	}

	user, err := service.userRepository.FindByID(ctx, claims.UserID())
	if err != nil {
		// The account vanished underneath a live session. Drop the
		// session so the refresh token dies with it.
		_ = service.sessionStore.Delete(ctx, claims.SessionID)
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}
	if !user.IsActive {
		_ = service.sessionStore.Delete(ctx, claims.SessionID)
		return nil, apperr.Unauthorized("Account is deactivated")
	}

	if err := service.sessionStore.Touch(ctx, claims.SessionID, service.refreshTTL); err != nil {
		return nil, apperr.Unauthorized("Session expired")
	}

	return service.issuePair(user, claims.SessionID)
}

// Logout tears down the session referenced by the access token.
//
// Best effort: verification failures are swallowed and reported as
// success, since a client holding a garbage token has nothing left to
// invalidate. Only a session-store failure reports false.
func (service *AuthService) Logout(ctx context.Context, accessToken string) bool {
	claims, err := service.tokenCodec.Verify(accessToken, sec.TokenKindAccess)
	if err != nil || claims.SessionID == "" {
		return true
	}

	if err := service.sessionStore.Delete(ctx, claims.SessionID); err != nil {
		service.logger.Warn("auth_logout_session_delete_failed",
			slog.String("session_id", claims.SessionID),
			slog.Any("error", err),
		)
		return false
	}

	service.logger.Info("auth_logout_succeeded", slog.String("session_id", claims.SessionID))
	return true
}

// CurrentUser loads the full account behind a set of verified claims.
//
// The session must still resolve, exactly as in [AuthService.Refresh]:
// logging out invalidates the access token for identity lookups even
// though the JWT itself stays cryptographically valid until expiry. An
// orphaned session (account gone) is deleted on sight.
func (service *AuthService) CurrentUser(ctx context.Context, claims *sec.AuthClaims) (*User, error) {
	if claims.SessionID != "" {
		if _, err := service.sessionStore.Get(ctx, claims.SessionID); err != nil {
			return nil, apperr.Unauthorized("Session expired")
		}
	}

	user, err := service.userRepository.FindByID(ctx, claims.UserID())
	if err != nil {
		if claims.SessionID != "" {
			_ = service.sessionStore.Delete(ctx, claims.SessionID)
		}
		return nil, apperr.Unauthorized("Invalid authentication credentials")
	}
	if !user.IsActive {
		return nil, apperr.Unauthorized("Account is deactivated")
	}
	return user, nil
}

// issuePair signs an access and refresh token for the user bound to the
// given session.
func (service *AuthService) issuePair(user *User, sessionID string) (*TokenResponse, error) {
	identity := sec.Identity{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Roles:     user.RoleNames(),
		SessionID: sessionID,
	}

	accessToken, err := service.tokenCodec.Issue(identity, sec.TokenKindAccess, service.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_access_token_failed: %w", err)
	}

	refreshToken, err := service.tokenCodec.Issue(identity, sec.TokenKindRefresh, service.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int(service.accessTTL.Seconds()),
	}, nil
}
