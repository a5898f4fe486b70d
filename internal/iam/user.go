// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

// Package iam defines the identity and access management domain of the
// MLForge platform: user accounts, roles, permissions, and the session
// lifecycle that protects every other subsystem.
//
// # Architecture
//
// Entities in this package represent the "Truth" of the system.
// They have no dependencies on outer layers (like databases, APIs, or libraries).
// This makes the core logic highly testable and resilient to technology changes.
package iam

import (
	"time"

	"github.com/mlforge/platform/pkg/slice"
)

// User represents a registered account on the MLForge platform.
//
// # Rules
//   - Username is unique and URL-safe.
//   - Email is unique and validated.
//   - PasswordHash is generated via Bcrypt exclusively via the services.
//   - IsActive gates every authentication path; deactivated accounts keep
//     their row (soft delete) but cannot log in or refresh.
//   - IsVerified ensures the user has confirmed their email address.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Explicitly omitted from JSON for security.
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	IsActive     bool      `json:"is_active"`
	IsVerified   bool      `json:"is_verified"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RoleNames returns the names of every role assigned to the user.
// The result is embedded into JWT claims at login time.
func (user *User) RoleNames() []string {
	return slice.Map(user.Roles, func(role Role) string { return role.Name })
}

// PermissionNames returns the deduplicated permission names granted to the
// user through all of their roles.
func (user *User) PermissionNames() []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, role := range user.Roles {
		for _, permission := range role.Permissions {
			if _, ok := seen[permission.Name]; ok {
				continue
			}
			seen[permission.Name] = struct{}{}
			names = append(names, permission.Name)
		}
	}
	return names
}

// HasRole reports whether the user holds the named role.
func (user *User) HasRole(name string) bool {
	for _, role := range user.Roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

// Role is a named bundle of permissions assignable to users.
//
// # Usage
//
// Role names (not IDs) travel inside access-token claims; claim-based
// checks therefore stay valid for the token's lifetime even if the role's
// permission set changes underneath it.
//
// IsActive soft-deletes a role definition: deactivated roles disappear
// from lookups and listings, though existing user assignments keep their
// rows.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	IsActive    bool         `json:"is_active"`
	Permissions []Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Permission represents a single grantable capability, named "resource.action"
// (e.g. "workflow.execute"). Names are unique across the system.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session is the server-side record backing a login.
//
// # Security Concept
//
// Access tokens are stateless JWTs that cannot be revoked before expiry.
// To mitigate this, MLForge pairs short-lived access tokens with a
// server-side Session keyed by the session_id claim. Refreshing requires
// the session to still resolve; deleting the session logs the user out
// even while refresh tokens remain cryptographically valid.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Roles      []string  `json:"roles"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// TokenPurpose distinguishes the two single-use token flows.
type TokenPurpose string

const (
	TokenPurposeVerifyEmail   TokenPurpose = "verify_email"
	TokenPurposePasswordReset TokenPurpose = "password_reset"
)

// PendingToken is a single-use, out-of-band token delivered over email for
// account verification or password reset.
//
// # Rules
//   - At most one live token exists per (user, purpose); issuing a new one
//     supersedes the previous token.
//   - Consuming a token marks it used; a used or expired token is
//     indistinguishable from an unknown one at the API boundary.
type PendingToken struct {
	Token     string       `json:"token"`
	UserID    string       `json:"user_id"`
	Purpose   TokenPurpose `json:"purpose"`
	IssuedAt  time.Time    `json:"issued_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	Used      bool         `json:"used"`
}

// Expired reports whether the token's validity window has passed.
func (t *PendingToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
