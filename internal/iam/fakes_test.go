// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package iam_test

import (
	"context"
	"strings"
	"sync"

	"github.com/mlforge/platform/internal/iam"
	"github.com/mlforge/platform/internal/platform/apperr"
	"github.com/mlforge/platform/pkg/pagination"
)

// In-memory repository fakes for service-level tests. The session and
// token stores are exercised through their real in-memory implementations;
// only the PostgreSQL repositories are faked.

type fakeRoleRepository struct {
	mu    sync.Mutex
	roles map[string]iam.Role
}

func newFakeRoleRepository() *fakeRoleRepository {
	return &fakeRoleRepository{roles: make(map[string]iam.Role)}
}

// add registers a live role, matching what CreateRole would persist.
func (r *fakeRoleRepository) add(role iam.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role.IsActive = true
	r.roles[role.ID] = role
}

// deactivate flips a role's is_active flag in place.
func (r *fakeRoleRepository) deactivate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role := r.roles[id]
	role.IsActive = false
	r.roles[id] = role
}

func (r *fakeRoleRepository) FindByID(_ context.Context, id string) (*iam.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok || !role.IsActive {
		return nil, apperr.NotFound("Role")
	}
	return &role, nil
}

func (r *fakeRoleRepository) FindByName(_ context.Context, name string) (*iam.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.Name == name && role.IsActive {
			return &role, nil
		}
	}
	return nil, apperr.NotFound("Role")
}

func (r *fakeRoleRepository) FindByIDs(_ context.Context, ids []string) ([]iam.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resolved := make([]iam.Role, 0, len(ids))
	for _, id := range ids {
		role, ok := r.roles[id]
		if !ok {
			return nil, apperr.ValidationError("Unknown role ID: " + id)
		}
		resolved = append(resolved, role)
	}
	return resolved, nil
}

func (r *fakeRoleRepository) Create(_ context.Context, role *iam.Role, permissionIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.roles {
		if existing.Name == role.Name {
			return apperr.Conflict("Role already exists")
		}
	}
	r.roles[role.ID] = *role
	return nil
}

func (r *fakeRoleRepository) List(_ context.Context) ([]iam.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]iam.Role, 0, len(r.roles))
	for _, role := range r.roles {
		if role.IsActive {
			all = append(all, role)
		}
	}
	return all, nil
}

type fakePermissionRepository struct {
	mu          sync.Mutex
	permissions map[string]iam.Permission
	byUser      map[string][]iam.Permission
}

func newFakePermissionRepository() *fakePermissionRepository {
	return &fakePermissionRepository{
		permissions: make(map[string]iam.Permission),
		byUser:      make(map[string][]iam.Permission),
	}
}

func (r *fakePermissionRepository) Create(_ context.Context, permission *iam.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.permissions {
		if existing.Name == permission.Name {
			return apperr.Conflict("Permission already exists")
		}
	}
	r.permissions[permission.ID] = *permission
	return nil
}

func (r *fakePermissionRepository) List(_ context.Context) ([]iam.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]iam.Permission, 0, len(r.permissions))
	for _, permission := range r.permissions {
		all = append(all, permission)
	}
	return all, nil
}

func (r *fakePermissionRepository) FindByUserID(_ context.Context, userID string) ([]iam.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byUser[userID], nil
}

type fakeUserRepository struct {
	mu    sync.Mutex
	users map[string]*iam.User
	roles *fakeRoleRepository
}

func newFakeUserRepository(roles *fakeRoleRepository) *fakeUserRepository {
	return &fakeUserRepository{users: make(map[string]*iam.User), roles: roles}
}

func (r *fakeUserRepository) FindByID(_ context.Context, id string) (*iam.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || !user.IsActive {
		return nil, apperr.NotFound("User")
	}
	snapshot := *user
	return &snapshot, nil
}

// get returns the raw stored record regardless of active status, so tests
// can assert on soft-deleted rows.
func (r *fakeUserRepository) get(id string) *iam.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil
	}
	snapshot := *user
	return &snapshot
}

func (r *fakeUserRepository) FindByEmail(_ context.Context, email string) (*iam.User, error) {
	return r.findBy(func(u *iam.User) bool { return u.Email == email })
}

func (r *fakeUserRepository) FindByUsername(_ context.Context, username string) (*iam.User, error) {
	return r.findBy(func(u *iam.User) bool { return u.Username == username })
}

// findBy surfaces active accounts only, mirroring the SQL repository.
func (r *fakeUserRepository) findBy(match func(*iam.User) bool) (*iam.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if match(user) && user.IsActive {
			snapshot := *user
			return &snapshot, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (r *fakeUserRepository) Create(ctx context.Context, user *iam.User, roleIDs []string) error {
	// The unique index sees soft-deleted rows too.
	r.mu.Lock()
	for _, existing := range r.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			r.mu.Unlock()
			return apperr.Conflict("User already exists")
		}
	}
	r.mu.Unlock()

	stored := *user
	if roleIDs != nil {
		resolved, err := r.roles.FindByIDs(ctx, roleIDs)
		if err != nil {
			return err
		}
		stored.Roles = resolved
	}
	if stored.Roles == nil {
		stored.Roles = []iam.Role{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = &stored
	return nil
}

func (r *fakeUserRepository) Update(ctx context.Context, user *iam.User, roleIDs []string) error {
	r.mu.Lock()
	existing, ok := r.users[user.ID]
	r.mu.Unlock()
	if !ok {
		return apperr.NotFound("User")
	}

	stored := *user
	stored.PasswordHash = existing.PasswordHash
	stored.Roles = existing.Roles
	if roleIDs != nil {
		resolved, err := r.roles.FindByIDs(ctx, roleIDs)
		if err != nil {
			return err
		}
		stored.Roles = resolved
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = &stored
	return nil
}

func (r *fakeUserRepository) UpdatePassword(_ context.Context, userID, newHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	user.PasswordHash = newHash
	return nil
}

func (r *fakeUserRepository) MarkVerified(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	user.IsVerified = true
	return nil
}

func (r *fakeUserRepository) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return apperr.NotFound("User")
	}
	user.IsActive = false
	return nil
}

func (r *fakeUserRepository) List(_ context.Context, params pagination.Params) ([]iam.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matches := make([]iam.User, 0, len(r.users))
	for _, user := range r.users {
		if !user.IsActive {
			continue
		}
		if params.Search == "" || strings.Contains(user.Username, params.Search) || strings.Contains(user.Email, params.Search) {
			matches = append(matches, *user)
		}
	}
	return matches, nil
}

func (r *fakeUserRepository) Count(ctx context.Context, params pagination.Params) (int, error) {
	matches, err := r.List(ctx, params)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

// fakeMailer records every delivery so tests can capture emailed tokens.
type fakeMailer struct {
	mu             sync.Mutex
	verifications  map[string][]string // userID -> tokens, in issue order
	passwordResets map[string][]string
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{
		verifications:  make(map[string][]string),
		passwordResets: make(map[string][]string),
	}
}

func (m *fakeMailer) SendVerification(_ context.Context, user *iam.User, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications[user.ID] = append(m.verifications[user.ID], token)
	return nil
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, user *iam.User, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passwordResets[user.ID] = append(m.passwordResets[user.ID], token)
	return nil
}

func (m *fakeMailer) lastVerification(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := m.verifications[userID]
	if len(tokens) == 0 {
		return ""
	}
	return tokens[len(tokens)-1]
}

func (m *fakeMailer) lastPasswordReset(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := m.passwordResets[userID]
	if len(tokens) == 0 {
		return ""
	}
	return tokens[len(tokens)-1]
}
