// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package api_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlforge/platform/internal/api"
	"github.com/mlforge/platform/internal/iam"
	"github.com/mlforge/platform/internal/platform/config"
	"github.com/mlforge/platform/internal/platform/sec"
)

// newTestServer assembles the full router. The repositories are nil: these
// tests only exercise route matching and the middleware chain, which reject
// every request before any service method runs.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{ServerPort: "0", Environment: "production"}
	tokenCodec := sec.NewTokenCodec("test-secret-key", "mlforge.platform", logger)
	loginLimiter := iam.NewLoginLimiter(ctx, 5, 15*time.Minute, false)

	authService := iam.NewAuthService(
		nil, nil, tokenCodec, loginLimiter, 30*time.Minute, 168*time.Hour, logger,
	)
	userService := iam.NewUserService(nil, nil, nil, nil, nil, nil, logger)
	roleService := iam.NewRoleService(nil, nil, logger)

	ok := func(writer http.ResponseWriter, _ *http.Request) { writer.WriteHeader(http.StatusOK) }

	server := api.NewServer(ctx, cfg, logger, tokenCodec, api.Handlers{
		Liveness:  ok,
		Readiness: ok,
		Auth:      iam.NewAuthHandler(authService, userService),
		User:      iam.NewUserHandler(userService),
		Role:      iam.NewRoleHandler(roleService),
	})
	return server.Handler()
}

func statusOf(t *testing.T, handler http.Handler, method, path string) int {
	t.Helper()

	request := httptest.NewRequest(method, path, nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder.Code
}

// The whole identity surface hangs off /api/v1/auth: admin groups are
// nested inside it, and nothing answers at the v1 root.
func TestServer_RouteLayout(t *testing.T) {
	handler := newTestServer(t)

	// Admin groups require authentication, proving the routes exist.
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, handler, http.MethodGet, "/api/v1/auth/users"))
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, handler, http.MethodGet, "/api/v1/auth/roles"))
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, handler, http.MethodGet, "/api/v1/auth/permissions"))
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, handler, http.MethodGet, "/api/v1/auth/me"))

	// The old top-level layout is gone.
	assert.Equal(t, http.StatusNotFound, statusOf(t, handler, http.MethodGet, "/api/v1/users"))
	assert.Equal(t, http.StatusNotFound, statusOf(t, handler, http.MethodGet, "/api/v1/roles"))
	assert.Equal(t, http.StatusNotFound, statusOf(t, handler, http.MethodGet, "/api/v1/permissions"))

	// Email verification is a POST; the link target is not fetchable.
	assert.Equal(t, http.StatusBadRequest, statusOf(t, handler, http.MethodPost, "/api/v1/auth/verify-email"))
	assert.Equal(t, http.StatusMethodNotAllowed, statusOf(t, handler, http.MethodGet, "/api/v1/auth/verify-email"))
}

func TestServer_HealthProbes(t *testing.T) {
	handler := newTestServer(t)

	require.Equal(t, http.StatusOK, statusOf(t, handler, http.MethodGet, "/health"))
	require.Equal(t, http.StatusOK, statusOf(t, handler, http.MethodGet, "/ready"))
}
