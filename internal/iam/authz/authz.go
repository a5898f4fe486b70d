// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

/*
Package authz implements the authorization gate for role- and
permission-based access decisions.

# Architecture

The gate is deliberately storage-agnostic: it operates on resolved name sets
(role names, permission names) and returns a decision, independent of how
roles and permissions are persisted. Handlers and middleware resolve the
caller's sets first, then ask the gate.
*/
package authz

import (
	"github.com/mlforge/platform/internal/platform/apperr"
	"github.com/mlforge/platform/pkg/slice"
)

// Capability identifies a single permitted operation as a (resource, action)
// pair, e.g. ("workflow", "execute").
type Capability struct {
	Resource string
	Action   string
}

// Name returns the canonical dotted permission name, e.g. "workflow.execute".
func (c Capability) Name() string {
	return c.Resource + "." + c.Action
}

// # Access Decisions

// RequireRoles permits iff the caller's role-name set intersects the required
// set. An empty required set always permits.
func RequireRoles(heldRoles []string, requiredRoles []string) error {
	if len(requiredRoles) == 0 {
		return nil
	}

	if !slice.Intersects(heldRoles, requiredRoles) {
		return apperr.Forbidden("Insufficient permissions")
	}

	return nil
}

// RequirePermissions permits iff the caller's permission-name set intersects
// the required set. An empty required set always permits.
//
// The held set is expected to be the union of permission names across all of
// the caller's roles.
func RequirePermissions(heldPermissions []string, requiredPermissions []string) error {
	if len(requiredPermissions) == 0 {
		return nil
	}

	if !slice.Intersects(heldPermissions, requiredPermissions) {
		return apperr.Forbidden("Insufficient permissions")
	}

	return nil
}
