// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package iam

import (
	"context"
	"time"

	"github.com/mlforge/platform/pkg/pagination"
)

// UserRepository defines the data access contract for user accounts.
//
// # Review Process
//
// This interface is placed in a separate file from user.go so entity changes
// and storage-contract changes can be reviewed independently by the team.
//
// # Implementations
//
// The canonical implementation for MLForge is PostgreSQL (store_postgres.go).
type UserRepository interface {
	// FindByID returns the account with the given ID, with its full
	// role and permission graph loaded.
	//
	// Returns [apperr.NotFound] if the account does not exist or has
	// been soft-deleted.
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByEmail returns the active account with the given email.
	//
	// Returns [apperr.NotFound] if no active user holds this email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByUsername returns the active account with the given username.
	//
	// Returns [apperr.NotFound] if the username is available or belongs
	// to a soft-deleted account.
	FindByUsername(ctx context.Context, username string) (*User, error)

	// Create persists a brand-new user account and its role assignments.
	//
	// Returns a wrapped [apperr.Conflict] if a unique constraint
	// (email/username) fails.
	Create(ctx context.Context, user *User, roleIDs []string) error

	// Update persists changes to mutable profile fields (FirstName,
	// IsActive, etc). A non-nil roleIDs REPLACES the user's role set;
	// nil leaves role assignments untouched. Passwords must be updated
	// via [UserRepository.UpdatePassword].
	Update(ctx context.Context, user *User, roleIDs []string) error

	// UpdatePassword replaces only the user's password hash.
	// This is separate from [UserRepository.Update] to prevent accidental
	// overwrites during unrelated profile updates.
	UpdatePassword(ctx context.Context, userID, newHash string) error

	// MarkVerified flips the account's email-verified flag.
	MarkVerified(ctx context.Context, userID string) error

	// SoftDelete deactivates the account without removing the row.
	// This preserves relational integrity (audit trails, ownership of
	// workflows). Deleting an already-inactive account is a no-op.
	SoftDelete(ctx context.Context, id string) error

	// List returns a page of active accounts. Params.Search filters
	// against username, email, and name fields (case-insensitive
	// substring).
	List(ctx context.Context, params pagination.Params) ([]User, error)

	// Count returns the total number of active accounts matching
	// Params.Search.
	Count(ctx context.Context, params pagination.Params) (int, error)
}

// RoleRepository defines the data access contract for roles. Lookups and
// listings surface active roles only; a deactivated role reads as absent.
type RoleRepository interface {
	// FindByID returns the active role with its permissions loaded.
	//
	// Returns [apperr.NotFound] if the role does not exist or has been
	// deactivated.
	FindByID(ctx context.Context, id string) (*Role, error)

	// FindByName returns the active role with the given unique name.
	FindByName(ctx context.Context, name string) (*Role, error)

	// FindByIDs resolves a set of role IDs. Every requested ID must
	// exist; otherwise [apperr.ValidationError] is returned so callers
	// can reject assignments referencing unknown roles atomically.
	// Deactivated roles resolve here so existing assignments survive
	// unrelated updates.
	FindByIDs(ctx context.Context, ids []string) ([]Role, error)

	// Create persists a new role and its permission grants.
	Create(ctx context.Context, role *Role, permissionIDs []string) error

	// List returns every active role, permissions included.
	List(ctx context.Context) ([]Role, error)
}

// PermissionRepository defines the data access contract for permissions.
type PermissionRepository interface {
	// Create persists a new permission definition.
	Create(ctx context.Context, permission *Permission) error

	// List returns the full permission catalogue.
	List(ctx context.Context) ([]Permission, error)

	// FindByUserID returns the deduplicated permissions a user holds
	// through all of their roles. Used by the authorization middleware
	// so revoked grants take effect without waiting for token expiry.
	FindByUserID(ctx context.Context, userID string) ([]Permission, error)
}

// SessionStore defines the contract for the volatile session records that
// back refresh-token validity.
//
// # Implementations
//
// Redis is the canonical backend (store_redis.go); an in-memory fallback
// (store_memory.go) keeps single-node deployments working without Redis.
// The backend is chosen once at startup and never switched mid-flight.
type SessionStore interface {
	// Put stores or replaces a session with the given time-to-live.
	Put(ctx context.Context, session *Session, ttl time.Duration) error

	// Get returns the session with the given ID.
	//
	// Returns [apperr.NotFound] if the session is missing or expired.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Touch extends the session's lifetime by ttl from now and bumps
	// LastSeenAt. Called on every successful refresh (sliding window).
	Touch(ctx context.Context, sessionID string, ttl time.Duration) error

	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// DeleteAllForUser removes every session belonging to the user and
	// returns how many were dropped. Crucial for security event
	// responses (password reset, account deactivation).
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
}

// TokenStore defines the contract for single-use email tokens
// (verification and password reset).
type TokenStore interface {
	// Put stores a pending token until its ExpiresAt. Any live token
	// for the same (user, purpose) pair is superseded: only the most
	// recently issued token can ever be consumed.
	Put(ctx context.Context, token *PendingToken) error

	// Consume atomically validates and marks the token used.
	//
	// Returns [apperr.NotFound] if the token is unknown, expired,
	// already used, or issued for a different purpose. Callers map this
	// to a generic message to avoid leaking token state.
	Consume(ctx context.Context, value string, purpose TokenPurpose) (*PendingToken, error)

	// RevokeAllForUser invalidates any live token the user holds for
	// the given purpose.
	RevokeAllForUser(ctx context.Context, userID string, purpose TokenPurpose) error
}
