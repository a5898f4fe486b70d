// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package iam_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlforge/platform/internal/iam"
	"github.com/mlforge/platform/internal/platform/apperr"
)

type roleFixture struct {
	service     *iam.RoleService
	roles       *fakeRoleRepository
	permissions *fakePermissionRepository
}

func newRoleFixture(t *testing.T) *roleFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	roles := newFakeRoleRepository()
	permissions := newFakePermissionRepository()

	return &roleFixture{
		service:     iam.NewRoleService(roles, permissions, logger),
		roles:       roles,
		permissions: permissions,
	}
}

func TestRoleService_CreateRole(t *testing.T) {
	fixture := newRoleFixture(t)

	role, err := fixture.service.CreateRole(context.Background(), iam.CreateRoleInput{
		Name:        "ml-engineer",
		Description: "Trains and deploys models",
	})
	require.NoError(t, err)
	assert.Equal(t, "ml-engineer", role.Name)
	assert.True(t, role.IsActive)
}

func TestRoleService_CreateRoleDuplicateName(t *testing.T) {
	fixture := newRoleFixture(t)
	ctx := context.Background()

	_, err := fixture.service.CreateRole(ctx, iam.CreateRoleInput{Name: "ml-engineer"})
	require.NoError(t, err)

	_, err = fixture.service.CreateRole(ctx, iam.CreateRoleInput{Name: "ml-engineer"})
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestRoleService_DeactivatedRoleInvisible(t *testing.T) {
	fixture := newRoleFixture(t)
	ctx := context.Background()

	role, err := fixture.service.CreateRole(ctx, iam.CreateRoleInput{Name: "ml-engineer"})
	require.NoError(t, err)
	keeper, err := fixture.service.CreateRole(ctx, iam.CreateRoleInput{Name: "data-steward"})
	require.NoError(t, err)

	fixture.roles.deactivate(role.ID)

	// Lookups and listings only surface live role definitions.
	_, err = fixture.service.GetRole(ctx, role.ID)
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)

	listed, err := fixture.service.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, keeper.ID, listed[0].ID)
}

func TestRoleService_CreatePermission(t *testing.T) {
	fixture := newRoleFixture(t)

	permission, err := fixture.service.CreatePermission(context.Background(), iam.CreatePermissionInput{
		Resource:    "workflow",
		Action:      "execute",
		Description: "Run workflow pipelines",
	})
	require.NoError(t, err)
	assert.Equal(t, "workflow.execute", permission.Name)
}
