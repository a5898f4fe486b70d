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
	"github.com/mlforge/platform/pkg/pagination"
	"github.com/mlforge/platform/pkg/pointer"
)

// UserHandler implements the admin-only account management endpoints.
type UserHandler struct {
	userService *UserService
}

// NewUserHandler constructs a [UserHandler] with its service dependency.
func NewUserHandler(userService *UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// Routes returns a [chi.Router] with the /users route group.
//
// Read endpoints are open to any account granted the user.read permission
// (resolved through storage on each request); write endpoints require the
// admin role carried in the verified access-token claims.
//
// # Endpoints
//   - GET    /          : Paginated, searchable account listing.
//   - POST   /          : Provision an account with roles and flags.
//   - GET    /{userID}  : One account, full role/permission graph.
//   - PUT    /{userID}  : Partial update; role_ids replaces the role set.
//   - DELETE /{userID}  : Soft delete (deactivation), 204.
func (handler *UserHandler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequireAuth)

	router.Group(func(read chi.Router) {
		read.Use(middleware.RequirePermissions(handler.userService, "user.read"))
		read.Get("/", handler.list)
		read.Get("/{userID}", handler.get)
	})

	router.Group(func(write chi.Router) {
		write.Use(middleware.RequireRoles(RoleAdmin))
		write.Post("/", handler.create)
		write.Put("/{userID}", handler.update)
		write.Delete("/{userID}", handler.remove)
	})

	return router
}

// list handles GET /api/v1/auth/users?page=&limit=&search=
func (handler *UserHandler) list(writer http.ResponseWriter, request *http.Request) {
	params := pagination.FromRequest(request)

	users, meta, err := handler.userService.ListUsers(request.Context(), params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, users, meta)
}

// createUserRequest represents the JSON payload for admin account creation.
type createUserRequest struct {
	Username   string   `json:"username"`
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	FirstName  string   `json:"first_name"`
	LastName   string   `json:"last_name"`
	RoleIDs    []string `json:"role_ids"`
	IsActive   *bool    `json:"is_active"`
	IsVerified bool     `json:"is_verified"`
}

// create handles POST /api/v1/auth/users.
func (handler *UserHandler) create(writer http.ResponseWriter, request *http.Request) {
	var input createUserRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.
		Required("username", input.Username).
		MinLen("username", input.Username, 3).
		MaxLen("username", input.Username, 50).
		Required("email", input.Email).
		Email("email", input.Email).
		Required("password", input.Password).
		MinLen("password", input.Password, 8)
	for _, roleID := range input.RoleIDs {
		validator.UUID("role_ids", roleID)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.userService.CreateUser(request.Context(), CreateUserInput{
		Username:  input.Username,
		Email:     input.Email,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		RoleIDs:   input.RoleIDs,
		// Accounts are active unless explicitly created disabled.
		IsActive:   pointer.Fallback(input.IsActive, true),
		IsVerified: input.IsVerified,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

// get handles GET /api/v1/auth/users/{userID}.
func (handler *UserHandler) get(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "userID")

	validator := &validate.Validator{}
	validator.UUID("userID", id)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.userService.GetUser(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// updateUserRequest represents a partial account update. Absent fields are
// untouched; a present role_ids REPLACES the user's role set.
type updateUserRequest struct {
	Username   *string  `json:"username"`
	Email      *string  `json:"email"`
	FirstName  *string  `json:"first_name"`
	LastName   *string  `json:"last_name"`
	IsActive   *bool    `json:"is_active"`
	IsVerified *bool    `json:"is_verified"`
	RoleIDs    []string `json:"role_ids"`
}

// update handles PUT /api/v1/auth/users/{userID}.
func (handler *UserHandler) update(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "userID")

	var input updateUserRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.UUID("userID", id)
	if input.Username != nil {
		validator.MinLen("username", *input.Username, 3).MaxLen("username", *input.Username, 50)
	}
	if input.Email != nil {
		validator.Email("email", *input.Email)
	}
	for _, roleID := range input.RoleIDs {
		validator.UUID("role_ids", roleID)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.userService.UpdateUser(request.Context(), id, UpdateUserInput{
		Username:   input.Username,
		Email:      input.Email,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		IsActive:   input.IsActive,
		IsVerified: input.IsVerified,
		RoleIDs:    input.RoleIDs,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// remove handles DELETE /api/v1/auth/users/{userID}.
//
// Soft delete: the row survives for referential integrity, the account
// stops authenticating immediately.
func (handler *UserHandler) remove(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "userID")

	validator := &validate.Validator{}
	validator.UUID("userID", id)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.userService.DeleteUser(request.Context(), id); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
