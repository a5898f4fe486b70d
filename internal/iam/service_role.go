// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package iam

import (
	"context"
	"log/slog"

	"github.com/mlforge/platform/internal/iam/authz"
	"github.com/mlforge/platform/internal/platform/apperr"
	"github.com/mlforge/platform/pkg/uuid"
)

// RoleService implements the RBAC administration use cases.
type RoleService struct {
	roleRepository       RoleRepository
	permissionRepository PermissionRepository
	logger               *slog.Logger
}

// NewRoleService constructs a [RoleService] with its dependencies.
func NewRoleService(
	roleRepository RoleRepository,
	permissionRepository PermissionRepository,
	logger *slog.Logger,
) *RoleService {
	return &RoleService{
		roleRepository:       roleRepository,
		permissionRepository: permissionRepository,
		logger:               logger,
	}
}

// CreateRoleInput holds the data for defining a new role.
type CreateRoleInput struct {
	Name          string
	Description   string
	PermissionIDs []string
}

// CreateRole defines a new role and its permission grants.
//
// # Returns
//   - Returns [apperr.Conflict] if the role name is taken.
//   - Returns [apperr.ValidationError] if a permission ID is unknown.
func (service *RoleService) CreateRole(ctx context.Context, input CreateRoleInput) (*Role, error) {
	if _, err := service.roleRepository.FindByName(ctx, input.Name); err == nil {
		return nil, apperr.Conflict("Role name is already taken")
	}

	role := &Role{
		ID:          uuid.Must(),
		Name:        input.Name,
		Description: input.Description,
		IsActive:    true,
	}

	if err := service.roleRepository.Create(ctx, role, input.PermissionIDs); err != nil {
		return nil, err
	}

	service.logger.Info("role_created",
		slog.String("role_id", role.ID),
		slog.String("name", role.Name),
	)

	// Re-read so the response carries the resolved permission objects.
	return service.roleRepository.FindByID(ctx, role.ID)
}

// GetRole returns one role with its permissions.
func (service *RoleService) GetRole(ctx context.Context, id string) (*Role, error) {
	return service.roleRepository.FindByID(ctx, id)
}

// ListRoles returns every role, permissions included.
func (service *RoleService) ListRoles(ctx context.Context) ([]Role, error) {
	return service.roleRepository.List(ctx)
}

// CreatePermissionInput holds the data for defining a new permission.
// Name is derived from Resource and Action ("workflow.execute").
type CreatePermissionInput struct {
	Resource    string
	Action      string
	Description string
}

// CreatePermission registers a new grantable capability.
//
// # Returns
//   - Returns [apperr.Conflict] if the derived name already exists.
func (service *RoleService) CreatePermission(ctx context.Context, input CreatePermissionInput) (*Permission, error) {
	capability := authz.Capability{Resource: input.Resource, Action: input.Action}

	permission := &Permission{
		ID:          uuid.Must(),
		Name:        capability.Name(),
		Resource:    input.Resource,
		Action:      input.Action,
		Description: input.Description,
	}

	if err := service.permissionRepository.Create(ctx, permission); err != nil {
		return nil, err
	}

	service.logger.Info("permission_created",
		slog.String("permission_id", permission.ID),
		slog.String("name", permission.Name),
	)
	return permission, nil
}

// ListPermissions returns the full permission catalogue.
func (service *RoleService) ListPermissions(ctx context.Context) ([]Permission, error) {
	return service.permissionRepository.List(ctx)
}
