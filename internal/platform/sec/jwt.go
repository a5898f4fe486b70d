// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via small codec interfaces.
package sec

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// # Token Kinds

// TokenKind distinguishes the two bearer credentials the platform issues.
type TokenKind string

const (
	// TokenKindAccess is the short-lived credential authorizing API calls.
	TokenKindAccess TokenKind = "access"

	// TokenKindRefresh is the long-lived credential used only to mint new pairs.
	TokenKindRefresh TokenKind = "refresh"
)

// # Verification Failures

var (
	// ErrTokenInvalid is returned when the signature is wrong, the token is
	// structurally malformed, or the 'type' claim does not match the
	// expected kind.
	ErrTokenInvalid = errors.New("sec: token is invalid")

	// ErrTokenExpired is returned when the current time is past the 'exp' claim.
	ErrTokenExpired = errors.New("sec: token has expired")
)

// # Claims

// AuthClaims is the signed payload shared by access and refresh tokens.
//
// # Why custom claims?
//
// By embedding the username, email, and role names directly inside the JWT,
// the authentication middleware can reconstruct the caller's identity WITHOUT
// querying the database on every single API request.
type AuthClaims struct {
	jwt.RegisteredClaims

	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	SessionID string   `json:"session_id,omitempty"`

	// TokenType is "access" or "refresh". A token of one kind can never be
	// verified as the other.
	TokenType string `json:"type"`
}

// UserID returns the subject claim, which always carries the account ID.
func (c *AuthClaims) UserID() string {
	return c.Subject
}

// Identity is the user snapshot embedded in every issued token pair.
type Identity struct {
	UserID    string
	Username  string
	Email     string
	Roles     []string
	SessionID string
}

// # Codec

// TokenCodec signs and verifies typed, expiring bearer tokens using a
// symmetric secret and the fixed HS256 algorithm.
type TokenCodec struct {
	secret []byte
	issuer string
	logger *slog.Logger
}

// NewTokenCodec creates a new TokenCodec for the given symmetric secret.
func NewTokenCodec(secret, issuer string, logger *slog.Logger) *TokenCodec {
	return &TokenCodec{
		secret: []byte(secret),
		issuer: issuer,
		logger: logger,
	}
}

// Issue creates a signed token of the requested kind.
//
// Every token carries an absolute expiry, its kind in the 'type' claim, and a
// fresh random 'jti'. The jti is logged for audit trails but is not consulted
// by any revocation list; server-side invalidation happens through session
// deletion instead.
func (codec *TokenCodec) Issue(identity Identity, kind TokenKind, timeToLive time.Duration) (string, error) {
	currentTime := time.Now()

	jti, err := GenerateSecureToken(32)
	if err != nil {
		return "", err
	}

	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    codec.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
			ID:        jti,
		},
		Username:  identity.Username,
		Email:     identity.Email,
		Roles:     identity.Roles,
		SessionID: identity.SessionID,
		TokenType: string(kind),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(codec.secret)
	if err != nil {
		return "", errors.Join(ErrTokenInvalid, err)
	}

	codec.logger.Debug("token_issued",
		slog.String("kind", string(kind)),
		slog.String("user_id", identity.UserID),
		slog.String("jti", jti),
	)

	return signedToken, nil
}

// Verify checks the signature and validity of a token string and enforces the
// expected kind.
//
// Failure detail (bad signature vs. wrong type vs. expiry) is logged but the
// returned error only distinguishes [ErrTokenExpired] from [ErrTokenInvalid],
// so callers cannot be used as a token oracle.
func (codec *TokenCodec) Verify(tokenString string, expectedKind TokenKind) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return codec.secret, nil
	})

	if err != nil {
		codec.logger.Warn("token_verification_failed", slog.Any("error", err))
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.TokenType != string(expectedKind) {
		codec.logger.Warn("token_kind_mismatch",
			slog.String("expected", string(expectedKind)),
			slog.String("got", claims.TokenType),
		)
		return nil, ErrTokenInvalid
	}

	// The signing library already validated 'exp'; this re-check is
	// deliberate belt-and-suspenders so the codec's contract does not
	// depend on library defaults.
	if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}

	return claims, nil
}
