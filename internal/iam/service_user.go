// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package iam

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mlforge/platform/internal/platform/apperr"
	"github.com/mlforge/platform/internal/platform/sec"
	"github.com/mlforge/platform/pkg/pagination"
	"github.com/mlforge/platform/pkg/slice"
	"github.com/mlforge/platform/pkg/uuid"
)

// UserService implements the account lifecycle use cases: self-service
// registration, email verification, password reset, and admin CRUD.
type UserService struct {
	userRepository       UserRepository
	roleRepository       RoleRepository
	permissionRepository PermissionRepository
	sessionStore         SessionStore
	tokenStore           TokenStore
	mailer               Mailer
	logger               *slog.Logger
}

// NewUserService constructs a [UserService] with its dependencies.
func NewUserService(
	userRepository UserRepository,
	roleRepository RoleRepository,
	permissionRepository PermissionRepository,
	sessionStore SessionStore,
	tokenStore TokenStore,
	mailer Mailer,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		userRepository:       userRepository,
		roleRepository:       roleRepository,
		permissionRepository: permissionRepository,
		sessionStore:         sessionStore,
		tokenStore:           tokenStore,
		mailer:               mailer,
		logger:               logger,
	}
}

// RegisterInput holds the data required to enroll a new member.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register validates, hashes, and persists a brand-new account, then
// issues its email-verification token.
//
// # Business Rules
//   - Emails and usernames must be unique.
//   - New accounts start active, unverified, and with NO roles; an admin
//     grants roles later.
//   - Verification delivery failures are logged, never surfaced: the
//     account exists either way and the token can be re-sent.
//
// # Returns
//   - A pointer to the newly created [*User].
//   - Returns [apperr.Conflict] if email or username already exists.
func (service *UserService) Register(ctx context.Context, input RegisterInput) (*User, error) {
	// ── 1. Uniqueness Checks ──────────────────────────────────────────────

	// Verify email uniqueness. Return a client-safe Conflict error.
	if _, err := service.userRepository.FindByEmail(ctx, input.Email); err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}

	// Verify username uniqueness. Return a client-safe Conflict error.
	if _, err := service.userRepository.FindByUsername(ctx, input.Username); err == nil {
		return nil, apperr.Conflict("Username is already taken")
	}

	// ── 2. Security ───────────────────────────────────────────────────────

	// Prevent storing plain-text passwords. Default cost is used for balance
	// between security and CPU utilization during registration spikes.
	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user_service_hash_failed: %w", err)
	}

	// ── 3. Entity Construction ────────────────────────────────────────────

	user := &User{
		ID:           uuid.Must(), // Time-sortable ID to prevent PG index fragmentation.
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hashedPassword,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		IsActive:     true,
		IsVerified:   false,
		Roles:        []Role{},
	}

	// ── 4. Persistence ────────────────────────────────────────────────────

	if err := service.userRepository.Create(ctx, user, nil); err != nil {
		return nil, fmt.Errorf("user_service_register_failed: %w", err)
	}

	// ── 5. Verification Token ─────────────────────────────────────────────

	if err := service.issueEmailToken(ctx, user, TokenPurposeVerifyEmail); err != nil {
		service.logger.Error("user_service_verification_issue_failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	return user, nil
}

// VerifyEmail consumes a verification token, flips the account's verified
// flag, and returns the verified account. Verifying an already-verified
// account via a fresh token still succeeds; the flag update is idempotent.
func (service *UserService) VerifyEmail(ctx context.Context, tokenValue string) (*User, error) {
	token, err := service.tokenStore.Consume(ctx, tokenValue, TokenPurposeVerifyEmail)
	if err != nil {
		if apperr.IsAppError(err) {
			return nil, apperr.ValidationError("Invalid or expired verification token")
		}
		return nil, fmt.Errorf("user_service_verify_consume_failed: %w", err)
	}

	// The account can vanish between issue and consumption.
	user, err := service.userRepository.FindByID(ctx, token.UserID)
	if err != nil {
		return nil, err
	}

	if !user.IsVerified {
		if err := service.userRepository.MarkVerified(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("user_service_mark_verified_failed: %w", err)
		}
		user.IsVerified = true
	}

	service.logger.Info("user_email_verified", slog.String("user_id", user.ID))
	return user, nil
}

// ResendVerification issues a fresh verification token, superseding any
// earlier one.
//
// Always reports success to the caller: a response that varied for
// unknown or already-verified emails would leak which addresses hold
// accounts.
func (service *UserService) ResendVerification(ctx context.Context, email string) error {
	user, err := service.userRepository.FindByEmail(ctx, email)
	if err != nil || user.IsVerified {
		return nil
	}

	if err := service.issueEmailToken(ctx, user, TokenPurposeVerifyEmail); err != nil {
		return fmt.Errorf("user_service_resend_verification_failed: %w", err)
	}
	return nil
}

// RequestPasswordReset starts the forgot-password flow.
//
// Like [UserService.ResendVerification], the caller always sees success;
// only the structured log records whether a token was really issued.
func (service *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := service.userRepository.FindByEmail(ctx, email)
	if err != nil || !user.IsActive {
		return nil
	}

	if err := service.issueEmailToken(ctx, user, TokenPurposePasswordReset); err != nil {
		return fmt.Errorf("user_service_reset_request_failed: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token, replaces the account password,
// and returns the account. Every session the user holds is destroyed: a
// reset usually means the old credential is compromised.
func (service *UserService) ResetPassword(ctx context.Context, tokenValue, newPassword string) (*User, error) {
	token, err := service.tokenStore.Consume(ctx, tokenValue, TokenPurposePasswordReset)
	if err != nil {
		if apperr.IsAppError(err) {
			return nil, apperr.ValidationError("Invalid or expired reset token")
		}
		return nil, fmt.Errorf("user_service_reset_consume_failed: %w", err)
	}

	user, err := service.userRepository.FindByID(ctx, token.UserID)
	if err != nil {
		return nil, err
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("user_service_reset_hash_failed: %w", err)
	}

	if err := service.userRepository.UpdatePassword(ctx, user.ID, hashedPassword); err != nil {
		return nil, fmt.Errorf("user_service_reset_update_failed: %w", err)
	}

	dropped, err := service.sessionStore.DeleteAllForUser(ctx, user.ID)
	if err != nil {
		service.logger.Warn("user_service_reset_session_purge_failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	service.logger.Info("user_password_reset",
		slog.String("user_id", user.ID),
		slog.Int("sessions_dropped", dropped),
	)
	return user, nil
}

// issueEmailToken mints, stores, and mails a single-use token. Storing via
// [TokenStore.Put] supersedes the user's previous live token for the purpose.
func (service *UserService) issueEmailToken(ctx context.Context, user *User, purpose TokenPurpose) error {
	value, err := sec.GenerateSecureToken(SecureTokenBytes)
	if err != nil {
		return fmt.Errorf("token_generation_failed: %w", err)
	}

	ttl := VerificationTokenTTL
	if purpose == TokenPurposePasswordReset {
		ttl = ResetTokenTTL
	}

	now := time.Now()
	token := &PendingToken{
		Token:     value,
		UserID:    user.ID,
		Purpose:   purpose,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	if err := service.tokenStore.Put(ctx, token); err != nil {
		return fmt.Errorf("token_store_failed: %w", err)
	}

	if purpose == TokenPurposePasswordReset {
		return service.mailer.SendPasswordReset(ctx, user, value)
	}
	return service.mailer.SendVerification(ctx, user, value)
}

// CreateUserInput holds the data for admin-driven account creation.
type CreateUserInput struct {
	Username   string
	Email      string
	Password   string
	FirstName  string
	LastName   string
	RoleIDs    []string
	IsActive   bool
	IsVerified bool
}

// CreateUser provisions an account on behalf of an administrator. Unlike
// [UserService.Register], the caller controls roles and flags, and no
// verification email is sent.
func (service *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*User, error) {
	if _, err := service.userRepository.FindByEmail(ctx, input.Email); err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}
	if _, err := service.userRepository.FindByUsername(ctx, input.Username); err == nil {
		return nil, apperr.Conflict("Username is already taken")
	}

	// Reject the whole request if any role ID is unknown.
	roles, err := service.roleRepository.FindByIDs(ctx, input.RoleIDs)
	if err != nil {
		return nil, err
	}

	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user_service_hash_failed: %w", err)
	}

	user := &User{
		ID:           uuid.Must(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hashedPassword,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		IsActive:     input.IsActive,
		IsVerified:   input.IsVerified,
		Roles:        roles,
	}

	if err := service.userRepository.Create(ctx, user, input.RoleIDs); err != nil {
		return nil, fmt.Errorf("user_service_create_failed: %w", err)
	}

	service.logger.Info("user_created", slog.String("user_id", user.ID))
	return user, nil
}

// GetUser returns one account with its role and permission graph.
func (service *UserService) GetUser(ctx context.Context, id string) (*User, error) {
	return service.userRepository.FindByID(ctx, id)
}

// ListUsers returns a page of accounts plus pagination metadata.
func (service *UserService) ListUsers(ctx context.Context, params pagination.Params) ([]User, pagination.Meta, error) {
	users, err := service.userRepository.List(ctx, params)
	if err != nil {
		return nil, pagination.Meta{}, err
	}

	total, err := service.userRepository.Count(ctx, params)
	if err != nil {
		return nil, pagination.Meta{}, err
	}

	return users, pagination.NewMeta(params.Page, params.Limit, total), nil
}

// UpdateUserInput carries partial updates; nil fields are left untouched.
// A non-nil RoleIDs REPLACES the user's role set.
type UpdateUserInput struct {
	Username   *string
	Email      *string
	FirstName  *string
	LastName   *string
	IsActive   *bool
	IsVerified *bool
	RoleIDs    []string
}

// UpdateUser applies a partial update to an account.
//
// Deactivating an account destroys its sessions immediately; the holder
// cannot keep refreshing until token expiry.
func (service *UserService) UpdateUser(ctx context.Context, id string, input UpdateUserInput) (*User, error) {
	user, err := service.userRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Username != nil {
		user.Username = *input.Username
	}
	if input.Email != nil {
		user.Email = *input.Email
	}
	if input.FirstName != nil {
		user.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		user.LastName = *input.LastName
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}
	if input.IsVerified != nil {
		user.IsVerified = *input.IsVerified
	}

	if input.RoleIDs != nil {
		roles, err := service.roleRepository.FindByIDs(ctx, input.RoleIDs)
		if err != nil {
			return nil, err
		}
		user.Roles = roles
	}

	if err := service.userRepository.Update(ctx, user, input.RoleIDs); err != nil {
		return nil, err
	}

	if input.IsActive != nil && !*input.IsActive {
		if _, err := service.sessionStore.DeleteAllForUser(ctx, id); err != nil {
			service.logger.Warn("user_service_deactivate_session_purge_failed",
				slog.String("user_id", id),
				slog.Any("error", err),
			)
		}
	}

	// No re-read: a just-deactivated account is already invisible to
	// lookups, and Roles was resolved above when the set changed.
	return user, nil
}

// ChangePassword replaces the caller's own password after verifying the
// current one. Every session is destroyed, the caller's included: the
// access token keeps working until expiry, but refresh requires a fresh
// login with the new password.
func (service *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := service.userRepository.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if !sec.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return apperr.Unauthorized("Current password is incorrect")
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("user_service_hash_failed: %w", err)
	}

	if err := service.userRepository.UpdatePassword(ctx, userID, hashedPassword); err != nil {
		return err
	}

	if _, err := service.sessionStore.DeleteAllForUser(ctx, userID); err != nil {
		service.logger.Warn("user_service_password_session_purge_failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	service.logger.Info("user_password_changed", slog.String("user_id", userID))
	return nil
}

// DeleteUser soft-deletes an account and destroys its sessions. Deleting
// an already-deactivated account succeeds silently.
func (service *UserService) DeleteUser(ctx context.Context, id string) error {
	if err := service.userRepository.SoftDelete(ctx, id); err != nil {
		return err
	}

	if _, err := service.sessionStore.DeleteAllForUser(ctx, id); err != nil {
		service.logger.Warn("user_service_delete_session_purge_failed",
			slog.String("user_id", id),
			slog.Any("error", err),
		)
	}

	service.logger.Info("user_deactivated", slog.String("user_id", id))
	return nil
}

// ResolvePermissions implements the middleware's permission lookup: the
// names of every permission the user currently holds through their roles.
// Reading storage (rather than claims) means revoked grants bite without
// waiting for token expiry.
func (service *UserService) ResolvePermissions(request *http.Request, userID string) ([]string, error) {
	permissions, err := service.permissionRepository.FindByUserID(request.Context(), userID)
	if err != nil {
		return nil, err
	}
	return slice.Map(permissions, func(p Permission) string { return p.Name }), nil
}
