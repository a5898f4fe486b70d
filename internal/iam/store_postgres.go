// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

// PostgreSQL implementations of the identity repositories.
//
// # Architecture
//
// Repositories in this file are strictly separated from domain logic. They
// implement domain-defined interfaces (e.g., [UserRepository]) using the
// [pgxpool.Pool] connection manager.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types via the dberr package to avoid leaking storage
// implementation details.

package iam

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mlforge/platform/internal/platform/apperr"
	"github.com/mlforge/platform/internal/platform/dberr"
	"github.com/mlforge/platform/pkg/pagination"
)

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `id, username, email, password_hash, first_name, last_name, is_active, is_verified, created_at, updated_at`

// scanUser populates a User from a row ordered per [userColumns].
func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.IsActive,
		&user.IsVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID retrieves an account by primary key, including the full role and
// permission graph.
//
// # Returns
//
// Returns [*User] if found, or [apperr.NotFound] if no active account
// exists — soft-deleted rows are invisible through every lookup.
func (repository *PostgresUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return repository.findOne(ctx, `id = $1`, id)
}

// FindByEmail retrieves an active account by its unique email address.
func (repository *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return repository.findOne(ctx, `email = $1`, email)
}

// FindByUsername retrieves an active account by its unique username.
func (repository *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return repository.findOne(ctx, `username = $1`, username)
}

// findOne fetches a single account by a unique predicate and hydrates roles.
// Soft-deleted accounts are filtered here so every lookup treats them as
// gone; only the unique index still sees the row.
func (repository *PostgresUserRepository) findOne(ctx context.Context, predicate string, arg any) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s AND is_active = TRUE`, userColumns, predicate)

	user, err := scanUser(repository.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, dberr.Wrap(err, "User")
	}

	roles, err := repository.loadRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	return user, nil
}

// loadRoles hydrates a user's roles together with each role's permissions.
func (repository *PostgresUserRepository) loadRoles(ctx context.Context, userID string) ([]Role, error) {
	const query = `
		SELECT r.id, r.name, r.description, r.is_active, r.created_at,
		       p.id, p.name, p.resource, p.action, p.description, p.created_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1 AND r.is_active = TRUE
		ORDER BY r.name, p.name`

	rows, err := repository.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("user_repo_load_roles_failed: %w", err)
	}
	defer rows.Close()

	roles, err := collectRoleRows(rows)
	if err != nil {
		return nil, fmt.Errorf("user_repo_load_roles_scan_failed: %w", err)
	}
	return roles, nil
}

// collectRoleRows folds the role/permission LEFT JOIN result set into
// distinct roles. Permission columns are NULL for roles with no grants.
func collectRoleRows(rows pgx.Rows) ([]Role, error) {
	roles := make([]Role, 0)
	index := make(map[string]int)

	for rows.Next() {
		var role Role
		var permissionID, permissionName, permissionResource, permissionAction, permissionDescription *string
		var permissionCreatedAt *time.Time

		err := rows.Scan(
			&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt,
			&permissionID, &permissionName, &permissionResource, &permissionAction,
			&permissionDescription, &permissionCreatedAt,
		)
		if err != nil {
			return nil, err
		}

		position, exists := index[role.ID]
		if !exists {
			role.Permissions = make([]Permission, 0)
			roles = append(roles, role)
			position = len(roles) - 1
			index[role.ID] = position
		}

		if permissionID != nil {
			roles[position].Permissions = append(roles[position].Permissions, Permission{
				ID:          *permissionID,
				Name:        *permissionName,
				Resource:    *permissionResource,
				Action:      *permissionAction,
				Description: derefString(permissionDescription),
				CreatedAt:   derefTime(permissionCreatedAt),
			})
		}
	}

	return roles, rows.Err()
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func derefTime(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return *value
}

// Create persists a new user record and its role assignments atomically.
//
// # Parameters
//   - ctx: Context for the database operation.
//   - user: The user entity to persist.
//   - roleIDs: Role primary keys to assign (may be empty).
func (repository *PostgresUserRepository) Create(ctx context.Context, user *User, roleIDs []string) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	transaction, err := repository.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("user_repo_create_begin_failed: %w", err)
	}
	defer transaction.Rollback(ctx) //nolint:errcheck // no-op after commit

	const insertUser = `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name, is_active, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = transaction.Exec(ctx, insertUser,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.IsActive,
		user.IsVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "User")
	}

	if err := insertUserRoles(ctx, transaction, user.ID, roleIDs); err != nil {
		return err
	}

	if err := transaction.Commit(ctx); err != nil {
		return fmt.Errorf("user_repo_create_commit_failed: %w", err)
	}
	return nil
}

// Update persists mutable profile fields. A non-nil roleIDs replaces the
// user's entire role set inside the same transaction.
func (repository *PostgresUserRepository) Update(ctx context.Context, user *User, roleIDs []string) error {
	user.UpdatedAt = time.Now()

	transaction, err := repository.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("user_repo_update_begin_failed: %w", err)
	}
	defer transaction.Rollback(ctx) //nolint:errcheck // no-op after commit

	const updateUser = `
		UPDATE users
		SET username = $2, email = $3, first_name = $4, last_name = $5,
		    is_active = $6, is_verified = $7, updated_at = $8
		WHERE id = $1`

	tag, err := transaction.Exec(ctx, updateUser,
		user.ID,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.IsActive,
		user.IsVerified,
		user.UpdatedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "User")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}

	if roleIDs != nil {
		if _, err := transaction.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, user.ID); err != nil {
			return fmt.Errorf("user_repo_update_clear_roles_failed: %w", err)
		}
		if err := insertUserRoles(ctx, transaction, user.ID, roleIDs); err != nil {
			return err
		}
	}

	if err := transaction.Commit(ctx); err != nil {
		return fmt.Errorf("user_repo_update_commit_failed: %w", err)
	}
	return nil
}

// insertUserRoles links a user to each role ID inside the given transaction.
func insertUserRoles(ctx context.Context, transaction pgx.Tx, userID string, roleIDs []string) error {
	const insert = `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`
	for _, roleID := range roleIDs {
		if _, err := transaction.Exec(ctx, insert, userID, roleID); err != nil {
			return dberr.Wrap(err, "Role assignment")
		}
	}
	return nil
}

// UpdatePassword replaces only the stored password hash.
func (repository *PostgresUserRepository) UpdatePassword(ctx context.Context, userID, newHash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`

	tag, err := repository.pool.Exec(ctx, query, userID, newHash, time.Now())
	if err != nil {
		return fmt.Errorf("user_repo_update_password_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}
	return nil
}

// MarkVerified flips the email-verified flag. Verifying an already-verified
// account is a no-op, which keeps the operation idempotent.
func (repository *PostgresUserRepository) MarkVerified(ctx context.Context, userID string) error {
	const query = `UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1`

	tag, err := repository.pool.Exec(ctx, query, userID, time.Now())
	if err != nil {
		return fmt.Errorf("user_repo_mark_verified_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}
	return nil
}

// SoftDelete deactivates the account while preserving the row.
func (repository *PostgresUserRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE users SET is_active = FALSE, updated_at = $2 WHERE id = $1`

	tag, err := repository.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("user_repo_soft_delete_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}
	return nil
}

// List returns one page of accounts ordered by creation time (newest first).
// Roles are hydrated without their permission sets to keep listing cheap.
func (repository *PostgresUserRepository) List(ctx context.Context, params pagination.Params) ([]User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM users
		WHERE is_active = TRUE
		  AND ($1 = '' OR username ILIKE '%%' || $1 || '%%' OR email ILIKE '%%' || $1 || '%%'
		       OR first_name ILIKE '%%' || $1 || '%%' OR last_name ILIKE '%%' || $1 || '%%')
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userColumns)

	rows, err := repository.pool.Query(ctx, query, params.Search, params.Limit, params.Offset())
	if err != nil {
		return nil, fmt.Errorf("user_repo_list_failed: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0, params.Limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("user_repo_list_scan_failed: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user_repo_list_rows_failed: %w", err)
	}

	if err := repository.attachRoleNames(ctx, users); err != nil {
		return nil, err
	}
	return users, nil
}

// attachRoleNames bulk-loads shallow roles (no permissions) for a page of users.
func (repository *PostgresUserRepository) attachRoleNames(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}

	ids := make([]string, len(users))
	index := make(map[string]int, len(users))
	for i := range users {
		ids[i] = users[i].ID
		index[users[i].ID] = i
		users[i].Roles = make([]Role, 0)
	}

	const query = `
		SELECT ur.user_id, r.id, r.name, r.description, r.is_active, r.created_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = ANY($1) AND r.is_active = TRUE
		ORDER BY r.name`

	rows, err := repository.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("user_repo_attach_roles_failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		var role Role
		if err := rows.Scan(&userID, &role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt); err != nil {
			return fmt.Errorf("user_repo_attach_roles_scan_failed: %w", err)
		}
		position := index[userID]
		users[position].Roles = append(users[position].Roles, role)
	}
	return rows.Err()
}

// Count returns how many accounts match the search filter.
func (repository *PostgresUserRepository) Count(ctx context.Context, params pagination.Params) (int, error) {
	const query = `
		SELECT COUNT(*) FROM users
		WHERE is_active = TRUE
		  AND ($1 = '' OR username ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%'
		       OR first_name ILIKE '%' || $1 || '%' OR last_name ILIKE '%' || $1 || '%')`

	var total int
	if err := repository.pool.QueryRow(ctx, query, params.Search).Scan(&total); err != nil {
		return 0, fmt.Errorf("user_repo_count_failed: %w", err)
	}
	return total, nil
}

// PostgresRoleRepository implements the RoleRepository interface using pgx.
type PostgresRoleRepository struct {
	pool *pgxpool.Pool
}

// NewRoleRepository creates a new PostgreSQL implementation of the RoleRepository.
func NewRoleRepository(pool *pgxpool.Pool) *PostgresRoleRepository {
	return &PostgresRoleRepository{pool: pool}
}

const roleSelect = `
	SELECT r.id, r.name, r.description, r.is_active, r.created_at,
	       p.id, p.name, p.resource, p.action, p.description, p.created_at
	FROM roles r
	LEFT JOIN role_permissions rp ON rp.role_id = r.id
	LEFT JOIN permissions p ON p.id = rp.permission_id`

// FindByID returns one active role with its permissions.
func (repository *PostgresRoleRepository) FindByID(ctx context.Context, id string) (*Role, error) {
	return repository.findOne(ctx, `r.id = $1`, id)
}

// FindByName returns one active role by its unique name.
func (repository *PostgresRoleRepository) FindByName(ctx context.Context, name string) (*Role, error) {
	return repository.findOne(ctx, `r.name = $1`, name)
}

// findOne surfaces active roles only; a deactivated role reads as absent.
func (repository *PostgresRoleRepository) findOne(ctx context.Context, predicate string, arg any) (*Role, error) {
	query := roleSelect + ` WHERE ` + predicate + ` AND r.is_active = TRUE ORDER BY p.name`

	rows, err := repository.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("role_repo_find_failed: %w", err)
	}
	defer rows.Close()

	roles, err := collectRoleRows(rows)
	if err != nil {
		return nil, fmt.Errorf("role_repo_find_scan_failed: %w", err)
	}
	if len(roles) == 0 {
		return nil, apperr.NotFound("Role")
	}
	return &roles[0], nil
}

// FindByIDs resolves a batch of role IDs, rejecting the whole batch if any
// ID is unknown. That keeps role assignment all-or-nothing for callers.
// Deactivated roles still resolve here, so existing assignments survive a
// profile update untouched.
func (repository *PostgresRoleRepository) FindByIDs(ctx context.Context, ids []string) ([]Role, error) {
	if len(ids) == 0 {
		return []Role{}, nil
	}

	query := roleSelect + ` WHERE r.id = ANY($1) ORDER BY r.name, p.name`

	rows, err := repository.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("role_repo_find_by_ids_failed: %w", err)
	}
	defer rows.Close()

	roles, err := collectRoleRows(rows)
	if err != nil {
		return nil, fmt.Errorf("role_repo_find_by_ids_scan_failed: %w", err)
	}

	found := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		found[role.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return nil, apperr.ValidationError(fmt.Sprintf("Unknown role ID: %s", id))
		}
	}
	return roles, nil
}

// Create persists a new role and its permission grants atomically.
func (repository *PostgresRoleRepository) Create(ctx context.Context, role *Role, permissionIDs []string) error {
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now()
	}

	transaction, err := repository.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("role_repo_create_begin_failed: %w", err)
	}
	defer transaction.Rollback(ctx) //nolint:errcheck // no-op after commit

	const insertRole = `INSERT INTO roles (id, name, description, is_active, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := transaction.Exec(ctx, insertRole, role.ID, role.Name, role.Description, role.IsActive, role.CreatedAt); err != nil {
		return dberr.Wrap(err, "Role")
	}

	const insertGrant = `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`
	for _, permissionID := range permissionIDs {
		if _, err := transaction.Exec(ctx, insertGrant, role.ID, permissionID); err != nil {
			return dberr.Wrap(err, "Permission grant")
		}
	}

	if err := transaction.Commit(ctx); err != nil {
		return fmt.Errorf("role_repo_create_commit_failed: %w", err)
	}
	return nil
}

// List returns every active role, permissions included.
func (repository *PostgresRoleRepository) List(ctx context.Context) ([]Role, error) {
	query := roleSelect + ` WHERE r.is_active = TRUE ORDER BY r.name, p.name`

	rows, err := repository.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("role_repo_list_failed: %w", err)
	}
	defer rows.Close()

	roles, err := collectRoleRows(rows)
	if err != nil {
		return nil, fmt.Errorf("role_repo_list_scan_failed: %w", err)
	}
	return roles, nil
}

// PostgresPermissionRepository implements the PermissionRepository interface using pgx.
type PostgresPermissionRepository struct {
	pool *pgxpool.Pool
}

// NewPermissionRepository creates a new PostgreSQL implementation of the PermissionRepository.
func NewPermissionRepository(pool *pgxpool.Pool) *PostgresPermissionRepository {
	return &PostgresPermissionRepository{pool: pool}
}

// Create persists a new permission definition.
func (repository *PostgresPermissionRepository) Create(ctx context.Context, permission *Permission) error {
	if permission.CreatedAt.IsZero() {
		permission.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO permissions (id, name, resource, action, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := repository.pool.Exec(ctx, query,
		permission.ID,
		permission.Name,
		permission.Resource,
		permission.Action,
		permission.Description,
		permission.CreatedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "Permission")
	}
	return nil
}

// List returns the full permission catalogue ordered by name.
func (repository *PostgresPermissionRepository) List(ctx context.Context) ([]Permission, error) {
	const query = `SELECT id, name, resource, action, description, created_at FROM permissions ORDER BY name`

	rows, err := repository.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("permission_repo_list_failed: %w", err)
	}
	defer rows.Close()

	return collectPermissionRows(rows)
}

// FindByUserID returns the distinct permissions a user holds via all roles.
func (repository *PostgresPermissionRepository) FindByUserID(ctx context.Context, userID string) ([]Permission, error) {
	const query = `
		SELECT DISTINCT p.id, p.name, p.resource, p.action, p.description, p.created_at
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY p.name`

	rows, err := repository.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("permission_repo_find_by_user_failed: %w", err)
	}
	defer rows.Close()

	return collectPermissionRows(rows)
}

func collectPermissionRows(rows pgx.Rows) ([]Permission, error) {
	permissions := make([]Permission, 0)
	for rows.Next() {
		var permission Permission
		err := rows.Scan(
			&permission.ID,
			&permission.Name,
			&permission.Resource,
			&permission.Action,
			&permission.Description,
			&permission.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("permission_repo_scan_failed: %w", err)
		}
		permissions = append(permissions, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permission_repo_rows_failed: %w", err)
	}
	return permissions, nil
}
