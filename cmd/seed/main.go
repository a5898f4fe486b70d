// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

// Command seed populates a fresh database with the default permission
// catalogue, the built-in roles, and sample users for local development.
//
// Idempotency: re-running against a seeded database fails on the first
// unique-constraint conflict and reports it; it never duplicates rows.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/mlforge/platform/internal/iam"
	"github.com/mlforge/platform/internal/platform/config"
	"github.com/mlforge/platform/internal/platform/constants"
	"github.com/mlforge/platform/internal/platform/migration"
	pgstore "github.com/mlforge/platform/internal/platform/postgres"
	"github.com/mlforge/platform/internal/platform/sec"
	"github.com/mlforge/platform/pkg/slice"
	"github.com/mlforge/platform/pkg/uuid"
)

// permissionSeed mirrors the platform's capability catalogue. The
// resources beyond "user" belong to subsystems served elsewhere; only
// their permission names live here.
var permissionSeed = []iam.Permission{
	{Name: "user.create", Resource: "user", Action: "create", Description: "Create users"},
	{Name: "user.read", Resource: "user", Action: "read", Description: "Read user data"},
	{Name: "user.update", Resource: "user", Action: "update", Description: "Update users"},
	{Name: "user.delete", Resource: "user", Action: "delete", Description: "Delete users"},
	{Name: "project.create", Resource: "project", Action: "create", Description: "Create projects"},
	{Name: "project.read", Resource: "project", Action: "read", Description: "Read project data"},
	{Name: "workflow.create", Resource: "workflow", Action: "create", Description: "Create workflows"},
	{Name: "workflow.execute", Resource: "workflow", Action: "execute", Description: "Execute workflows"},
	{Name: "model.create", Resource: "model", Action: "create", Description: "Create models"},
	{Name: "model.deploy", Resource: "model", Action: "deploy", Description: "Deploy models"},
}

// roleSeed maps each built-in role to the permission names it grants.
// The admin role receives every permission in the catalogue.
var roleSeed = []struct {
	name        string
	description string
	permissions []string // nil means "all"
}{
	{
		name:        iam.RoleAdmin,
		description: "Administrator with full system access",
	},
	{
		name:        iam.RoleDataScientist,
		description: "Data scientist with ML workflow and model management access",
		permissions: []string{
			"project.create", "project.read", "workflow.create",
			"workflow.execute", "model.create", "model.deploy",
		},
	},
	{
		name:        iam.RoleRegularUser,
		description: "Regular user with basic access",
		permissions: []string{"project.read"},
	},
}

// userSeed defines the development accounts. Both are pre-verified so the
// login flow works without an email round trip.
var userSeed = []struct {
	username  string
	email     string
	password  string
	firstName string
	lastName  string
	role      string
}{
	{"admin", "admin@mlforge.dev", "admin123", "System", "Administrator", iam.RoleAdmin},
	{"scientist", "scientist@mlforge.dev", "scientist123", "Data", "Scientist", iam.RoleDataScientist},
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With(slog.String("app", constants.AppName+"-seed"))

	cfg, err := config.Load()
	must(log, err, "load configuration")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer pool.Close()

	// Seeding a fresh database implies the schema may not exist yet.
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	permissionRepository := iam.NewPermissionRepository(pool)
	roleRepository := iam.NewRoleRepository(pool)
	userRepository := iam.NewUserRepository(pool)

	// ── 1. Permissions ────────────────────────────────────────────────────

	permissionIDsByName := make(map[string]string, len(permissionSeed))
	for _, permission := range permissionSeed {
		permission.ID = uuid.Must()
		must(log, permissionRepository.Create(ctx, &permission), "create permission "+permission.Name)
		permissionIDsByName[permission.Name] = permission.ID
	}
	log.Info("permissions_seeded", slog.Int("count", len(permissionSeed)))

	// ── 2. Roles ──────────────────────────────────────────────────────────

	roleIDsByName := make(map[string]string, len(roleSeed))
	for _, seed := range roleSeed {
		grantNames := seed.permissions
		if grantNames == nil {
			grantNames = slice.Map(permissionSeed, func(p iam.Permission) string { return p.Name })
		}

		grantIDs := make([]string, 0, len(grantNames))
		for _, name := range grantNames {
			grantIDs = append(grantIDs, permissionIDsByName[name])
		}

		role := &iam.Role{
			ID:          uuid.Must(),
			Name:        seed.name,
			Description: seed.description,
			IsActive:    true,
		}
		must(log, roleRepository.Create(ctx, role, grantIDs), "create role "+seed.name)
		roleIDsByName[seed.name] = role.ID
	}
	log.Info("roles_seeded", slog.Int("count", len(roleSeed)))

	// ── 3. Sample Users ───────────────────────────────────────────────────

	for _, seed := range userSeed {
		passwordHash, err := sec.HashPassword(seed.password)
		must(log, err, "hash password for "+seed.username)

		user := &iam.User{
			ID:           uuid.Must(),
			Username:     seed.username,
			Email:        seed.email,
			PasswordHash: passwordHash,
			FirstName:    seed.firstName,
			LastName:     seed.lastName,
			IsActive:     true,
			IsVerified:   true,
		}
		must(log, userRepository.Create(ctx, user, []string{roleIDsByName[seed.role]}), "create user "+seed.username)
		log.Info("sample_user_seeded",
			slog.String("username", seed.username),
			slog.String("role", seed.role),
		)
	}

	log.Info("database_seeding_completed")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("seed failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
