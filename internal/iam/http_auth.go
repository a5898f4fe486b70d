// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

// HTTP delivery layer for the identity domain.
//
// # Architecture
//
// Handlers act as the "gatekeepers" to the system. They are responsible for:
//   - JSON request parsing and strict input validation.
//   - Mapping HTTP contexts to service layer method calls.
//   - Standardizing JSON response formats via the [respond] package.
//
// They contain NO business logic or database queries.

package iam

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mlforge/platform/internal/platform/constants"
	"github.com/mlforge/platform/internal/platform/middleware"
	requestutil "github.com/mlforge/platform/internal/platform/request"
	"github.com/mlforge/platform/internal/platform/respond"
	"github.com/mlforge/platform/internal/platform/validate"
)

// AuthHandler implements the authentication and self-service endpoints.
type AuthHandler struct {
	authService *AuthService
	userService *UserService
}

// NewAuthHandler constructs an [AuthHandler] with its service dependencies.
func NewAuthHandler(authService *AuthService, userService *UserService) *AuthHandler {
	return &AuthHandler{authService: authService, userService: userService}
}

// Routes returns a [chi.Router] with the /auth route group.
//
// # Endpoints
//   - POST /register               : Creates a new account (201).
//   - POST /login                  : Authenticates and returns a token pair.
//   - POST /refresh                : Exchanges a refresh token for a new pair.
//   - POST /logout                 : Tears down the session (always 204).
//   - POST /verify-email?token=    : Confirms email ownership.
//   - POST /resend-verification    : Re-issues the verification token.
//   - POST /request-password-reset : Starts the forgot-password flow.
//   - POST /reset-password         : Completes the forgot-password flow.
//   - GET  /me, PUT /me            : Caller's own profile.
//   - PUT  /me/password            : Caller's own password.
func (handler *AuthHandler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)
	router.Post("/verify-email", handler.verifyEmail)
	router.Post("/resend-verification", handler.resendVerification)
	router.Post("/request-password-reset", handler.requestPasswordReset)
	router.Post("/reset-password", handler.resetPassword)

	router.Group(func(authenticated chi.Router) {
		authenticated.Use(middleware.RequireAuth)
		authenticated.Get("/me", handler.me)
		authenticated.Put("/me", handler.updateMe)
		authenticated.Put("/me/password", handler.changePassword)
	})

	return router
}

// registerRequest represents the JSON payload expected for account creation.
type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
}

// register handles POST /api/v1/auth/register.
//
// # Returns
//   - 201: The created profile (password hash never serialized).
//   - 400: Validation failures, mismatched confirmation included.
//   - 409: Email or username already taken.
func (handler *AuthHandler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest
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
		MinLen("password", input.Password, 8).
		Matches("confirm_password", input.ConfirmPassword, input.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.userService.Register(request.Context(), RegisterInput{
		Username:  input.Username,
		Email:     input.Email,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

// loginRequest represents the JSON payload expected for authentication.
// The username field also accepts the account's email.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// login handles POST /api/v1/auth/login.
//
// # Returns
//   - 200: TokenResponse plus the user profile.
//   - 401: Generic message for bad credentials (no enumeration).
//   - 429: Failure budget exhausted for this client.
func (handler *AuthHandler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.
		Required("username", input.Username).
		Required("password", input.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	tokens, user, err := handler.authService.Login(
		request.Context(),
		input.Username,
		input.Password,
		middleware.RealIP(request),
		request.Header.Get("User-Agent"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"token_type":    tokens.TokenType,
		"expires_in":    tokens.ExpiresIn,
		"user":          user,
	})
}

// refreshRequest carries the refresh token in the body, not a cookie:
// the API serves non-browser clients (SDKs, CLI) as first-class citizens.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refresh handles POST /api/v1/auth/refresh.
func (handler *AuthHandler) refresh(writer http.ResponseWriter, request *http.Request) {
	var input refreshRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required("refresh_token", input.RefreshToken)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	tokens, err := handler.authService.Refresh(request.Context(), input.RefreshToken)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, tokens)
}

// logout handles POST /api/v1/auth/logout.
//
// Always answers 204: logout is best effort, and a client holding a
// stale token has nothing actionable to do with an error.
func (handler *AuthHandler) logout(writer http.ResponseWriter, request *http.Request) {
	token, err := requestutil.BearerToken(request)
	if err == nil {
		handler.authService.Logout(request.Context(), token)
	}

	respond.NoContent(writer)
}

// verifyEmail handles POST /api/v1/auth/verify-email?token=...
//
// The token travels as a query parameter: verification links in emails
// carry it in the URL, and the frontend posts that URL straight through.
// Responds with the verified profile.
func (handler *AuthHandler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	token := request.URL.Query().Get("token")

	validator := &validate.Validator{}
	validator.Required("token", token)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.userService.VerifyEmail(request.Context(), token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// emailRequest is shared by the resend-verification and password-reset
// request endpoints.
type emailRequest struct {
	Email string `json:"email"`
}

// resendVerification handles POST /api/v1/auth/resend-verification.
//
// The response is identical whether or not the email has an account.
func (handler *AuthHandler) resendVerification(writer http.ResponseWriter, request *http.Request) {
	var input emailRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required("email", input.Email).Email("email", input.Email)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.userService.ResendVerification(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		constants.FieldMessage: "If this email is registered, a verification link has been sent.",
	})
}

// requestPasswordReset handles POST /api/v1/auth/request-password-reset.
//
// The response is identical whether or not the email has an account.
func (handler *AuthHandler) requestPasswordReset(writer http.ResponseWriter, request *http.Request) {
	var input emailRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required("email", input.Email).Email("email", input.Email)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.userService.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		constants.FieldMessage: "If this email is registered, a reset link has been sent.",
	})
}

// resetPasswordRequest completes the forgot-password flow.
type resetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// resetPassword handles POST /api/v1/auth/reset-password.
//
// Responds with the account whose password was rotated.
func (handler *AuthHandler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.
		Required("token", input.Token).
		Required("new_password", input.NewPassword).
		MinLen("new_password", input.NewPassword, 8).
		Matches("confirm_password", input.ConfirmPassword, input.NewPassword)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.userService.ResetPassword(request.Context(), input.Token, input.NewPassword)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// me handles GET /api/v1/auth/me.
func (handler *AuthHandler) me(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.CurrentUser(request.Context(), claims)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// updateMeRequest carries the fields an account holder may edit themselves.
// Username, email, roles, and flags are admin territory.
type updateMeRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// updateMe handles PUT /api/v1/auth/me.
func (handler *AuthHandler) updateMe(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input updateMeRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.userService.UpdateUser(request.Context(), userID, UpdateUserInput{
		FirstName: input.FirstName,
		LastName:  input.LastName,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// changePasswordRequest carries a self-service password change.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// changePassword handles PUT /api/v1/auth/me/password.
func (handler *AuthHandler) changePassword(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.
		Required("current_password", input.CurrentPassword).
		Required("new_password", input.NewPassword).
		MinLen("new_password", input.NewPassword, 8)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.userService.ChangePassword(request.Context(), userID, input.CurrentPassword, input.NewPassword)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		constants.FieldMessage: "Password updated successfully",
	})
}
