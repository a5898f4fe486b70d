// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package iam

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mlforge/platform/internal/platform/middleware"
	requestutil "github.com/mlforge/platform/internal/platform/request"
	"github.com/mlforge/platform/internal/platform/respond"
	"github.com/mlforge/platform/internal/platform/validate"
)

// RoleHandler implements the admin-only RBAC management endpoints.
type RoleHandler struct {
	roleService *RoleService
}

// NewRoleHandler constructs a [RoleHandler] with its service dependency.
func NewRoleHandler(roleService *RoleService) *RoleHandler {
	return &RoleHandler{roleService: roleService}
}

// RoleRoutes returns a [chi.Router] with the /roles route group.
//
// # Endpoints
//   - GET  /          : All roles with their permission grants.
//   - POST /          : Define a role (201).
//   - GET  /{roleID}  : One role.
func (handler *RoleHandler) RoleRoutes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequireAuth)
	router.Use(middleware.RequireRoles(RoleAdmin))

	router.Get("/", handler.listRoles)
	router.Post("/", handler.createRole)
	router.Get("/{roleID}", handler.getRole)

	return router
}

// PermissionRoutes returns a [chi.Router] with the /permissions route group.
//
// # Endpoints
//   - GET  / : Full permission catalogue.
//   - POST / : Define a permission (201).
func (handler *RoleHandler) PermissionRoutes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequireAuth)
	router.Use(middleware.RequireRoles(RoleAdmin))

	router.Get("/", handler.listPermissions)
	router.Post("/", handler.createPermission)

	return router
}

// listRoles handles GET /api/v1/auth/roles.
func (handler *RoleHandler) listRoles(writer http.ResponseWriter, request *http.Request) {
	roles, err := handler.roleService.ListRoles(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, roles)
}

// createRoleRequest represents the JSON payload for defining a role.
type createRoleRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permission_ids"`
}

// createRole handles POST /api/v1/auth/roles.
func (handler *RoleHandler) createRole(writer http.ResponseWriter, request *http.Request) {
	var input createRoleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.
		Required("name", input.Name).
		MaxLen("name", input.Name, 50)
	for _, permissionID := range input.PermissionIDs {
		validator.UUID("permission_ids", permissionID)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	role, err := handler.roleService.CreateRole(request.Context(), CreateRoleInput{
		Name:          input.Name,
		Description:   input.Description,
		PermissionIDs: input.PermissionIDs,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, role)
}

// getRole handles GET /api/v1/auth/roles/{roleID}.
func (handler *RoleHandler) getRole(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "roleID")

	validator := &validate.Validator{}
	validator.UUID("roleID", id)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	role, err := handler.roleService.GetRole(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, role)
}

// listPermissions handles GET /api/v1/auth/permissions.
func (handler *RoleHandler) listPermissions(writer http.ResponseWriter, request *http.Request) {
	permissions, err := handler.roleService.ListPermissions(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, permissions)
}

// createPermissionRequest represents the JSON payload for defining a
// permission. The unique name is derived as "resource.action".
type createPermissionRequest struct {
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// createPermission handles POST /api/v1/auth/permissions.
func (handler *RoleHandler) createPermission(writer http.ResponseWriter, request *http.Request) {
	var input createPermissionRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.
		Required("resource", input.Resource).
		MaxLen("resource", input.Resource, 50).
		Required("action", input.Action).
		MaxLen("action", input.Action, 50)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	permission, err := handler.roleService.CreatePermission(request.Context(), CreatePermissionInput{
		Resource:    input.Resource,
		Action:      input.Action,
		Description: input.Description,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, permission)
}
