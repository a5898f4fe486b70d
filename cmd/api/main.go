// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

// Command api is the entry point for the MLForge platform API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis if configured; fall back to in-memory stores.
//  5. Run database migrations (idempotent).
//  6. Wire domain services and HTTP handlers.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mlforge/platform/internal/api"
	"github.com/mlforge/platform/internal/iam"
	"github.com/mlforge/platform/internal/platform/config"
	"github.com/mlforge/platform/internal/platform/constants"
	"github.com/mlforge/platform/internal/platform/migration"
	pgstore "github.com/mlforge/platform/internal/platform/postgres"
	redisstore "github.com/mlforge/platform/internal/platform/redis"
	"github.com/mlforge/platform/internal/platform/sec"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Application-lifetime context. Cancelling it stops the background
	// janitor goroutines (rate limiters, in-memory store sweepers).
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Startup deadline so misconfiguration is caught quickly rather than
	// hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(appCtx, 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Session & Token Stores ─────────────────────────────────────────
	// Redis when configured, in-memory otherwise. The choice is made once,
	// here; nothing downstream knows which backend it is talking to.
	var sessionStore iam.SessionStore
	var tokenStore iam.TokenStore
	var checkSessionStore func() error

	if cfg.RedisURL != "" {
		rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		if err != nil {
			// Degraded but functional: the API can serve a single instance
			// on process-local stores while Redis is down.
			log.Error("redis unavailable, continuing on in-memory stores", slog.Any("error", err))
		} else {
			defer func() {
				log.Info("closing redis client")
				if cerr := rdb.Close(); cerr != nil {
					log.Error("redis close error", slog.Any("error", cerr))
				}
			}()

			sessionStore = iam.NewRedisSessionStore(rdb)
			tokenStore = iam.NewRedisTokenStore(rdb)
			checkSessionStore = func() error {
				return redisstore.Ping(context.Background(), rdb)
			}
			log.Info("session_backend_selected", slog.String("backend", "redis"))
		}
	}

	if sessionStore == nil {
		sessionStore = iam.NewMemorySessionStore(appCtx)
		tokenStore = iam.NewMemoryTokenStore(appCtx)
		log.Warn("session_backend_selected",
			slog.String("backend", "memory"),
			slog.String("note", "sessions will not survive restarts and are not shared between replicas"),
		)
	}

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Token Codec & Rate Limiter ─────────────────────────────────────
	tokenCodec := sec.NewTokenCodec(cfg.JWTSecret, constants.AuthIssuer, log)
	loginLimiter := iam.NewLoginLimiter(appCtx, cfg.LoginMaxAttempts, cfg.LoginAttemptWindow, cfg.LoginResetOnSuccess)

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckSessionStore: checkSessionStore,
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	userRepository := iam.NewUserRepository(pool)
	roleRepository := iam.NewRoleRepository(pool)
	permissionRepository := iam.NewPermissionRepository(pool)
	mailer := iam.NewLogMailer(cfg.AppURL, log)

	authService := iam.NewAuthService(
		userRepository, sessionStore, tokenCodec, loginLimiter,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL, log,
	)
	userService := iam.NewUserService(
		userRepository, roleRepository, permissionRepository,
		sessionStore, tokenStore, mailer, log,
	)
	roleService := iam.NewRoleService(roleRepository, permissionRepository, log)

	// ── 9. HTTP Server ────────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      iam.NewAuthHandler(authService, userService),
		User:      iam.NewUserHandler(userService),
		Role:      iam.NewRoleHandler(roleService),
	}

	server := api.NewServer(appCtx, cfg, log, tokenCodec, handlers)

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
