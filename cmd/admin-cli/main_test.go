package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/go-admin-gateway/internal/backend/auth"
	backendhttp "github.com/pribylovaa/go-admin-gateway/internal/backend/http"
	"github.com/pribylovaa/go-admin-gateway/internal/config"
	"github.com/pribylovaa/go-admin-gateway/internal/gateway"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	svc, err := auth.New(auth.Config{
		JWTSecret:  "cli-secret",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, []config.UserConfig{{Username: "admin", Password: "admin123"}}, auth.NewMemorySessions())
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(backendhttp.NewRouter(svc, backendhttp.Options{Logger: log}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{Env: envLocal}
	cfg.API = config.APIConfig{
		BaseURL:     srv.URL,
		LoginPath:   "/auth/login",
		RefreshPath: "/auth/token/refresh",
		LogoutPath:  "/auth/logout",
		LoginRoute:  "/login",
		UserAgent:   "admin-cli-test",
	}
	cfg.Session.Backend = "memory"
	cfg.Notify.Title = "Error"
	cfg.Timeouts.Request = 5 * time.Second
	cfg.Breaker = config.BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, MinRequests: 3}

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	a, err := newApp(context.Background(), cfg, log, out, errOut)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	return a, out, errOut
}

func TestRun_LoginRequestLogout(t *testing.T) {
	t.Parallel()

	a, out, _ := newTestApp(t)
	ctx := context.Background()

	require.Equal(t, exitOK, a.run(ctx, "login", []string{"-u", "admin", "-p", "admin123"}))
	require.Contains(t, out.String(), "logged in as admin")

	out.Reset()
	require.Equal(t, exitOK, a.run(ctx, "request", []string{"-q", "page_size=2", "GET", "/orders"}))
	require.Contains(t, out.String(), `"page_size": 2`)

	out.Reset()
	require.Equal(t, exitOK, a.run(ctx, "whoami", nil))
	require.Contains(t, out.String(), `"username": "admin"`)

	out.Reset()
	require.Equal(t, exitOK, a.run(ctx, "logout", nil))
	require.Equal(t, "logged out\n", out.String())

	out.Reset()
	require.Equal(t, exitOK, a.run(ctx, "status", nil))
	require.Equal(t, "not logged in\n", out.String())

	// Без токена бэкенд отвечает 401, шлюз отправляет на логин.
	require.Equal(t, exitAuth, a.run(ctx, "whoami", nil))
	route, n := a.nav.Last()
	require.Equal(t, "/login", route)
	require.Equal(t, 1, n)
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t)
	ctx := context.Background()

	require.Equal(t, exitAuth, a.run(ctx, "login", []string{"-u", "admin", "-p", "wrong"}))
	require.Equal(t, exitUsage, a.run(ctx, "request", []string{"GET"}))
	require.Equal(t, exitUsage, a.run(ctx, "request", []string{"-d", "{bad", "POST", "/orders"}))
	require.Equal(t, exitUsage, a.run(ctx, "nope", nil))

	require.Equal(t, exitOK, a.run(ctx, "login", []string{"-u", "admin", "-p", "admin123"}))
	require.Equal(t, exitApplication, a.run(ctx, "request", []string{"GET", "/orders/999"}))
}

func TestRun_ErrorNotifiedOnce(t *testing.T) {
	t.Parallel()

	a, _, errOut := newTestApp(t)
	ctx := context.Background()

	require.Equal(t, exitOK, a.run(ctx, "login", []string{"-u", "admin", "-p", "admin123"}))
	require.Empty(t, errOut.String())

	require.Equal(t, exitApplication, a.run(ctx, "request", []string{"GET", "/orders/999"}))

	lines := strings.Split(strings.TrimRight(errOut.String(), "\n"), "\n")
	require.Len(t, lines, 1)
	require.True(t, strings.HasPrefix(lines[0], "Error: "), lines[0])
}

func TestStderrNotifier_SingleSinkPerEnv(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for _, env := range []string{envLocal, envDev, envProd, ""} {
		var stderr bytes.Buffer
		log := setupLogger(env, &stderr)

		stderrNotifier(env, log, &stderr).Error(ctx, "Error", "forbidden")

		lines := strings.Split(strings.TrimRight(stderr.String(), "\n"), "\n")
		require.Len(t, lines, 1, env)
		require.Contains(t, lines[0], "forbidden", env)
	}
}

func TestSetupLogger_Levels(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		env       string
		debug     bool
		jsonLines bool
	}{
		{env: envLocal, debug: true},
		{env: "", debug: true},
		{env: envDev, debug: true, jsonLines: true},
		{env: envProd, debug: false, jsonLines: true},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		log := setupLogger(tt.env, &buf)

		require.Equal(t, tt.debug, log.Enabled(ctx, slog.LevelDebug), tt.env)
		require.True(t, log.Enabled(ctx, slog.LevelInfo), tt.env)

		log.Info("ready")
		require.Equal(t, tt.jsonLines, strings.HasPrefix(buf.String(), "{"), tt.env)
	}
}

func TestQueryFlag(t *testing.T) {
	t.Parallel()

	q := queryFlag{}
	require.NoError(t, q.Set("a=1"))
	require.NoError(t, q.Set("a=2"))
	require.NoError(t, q.Set("b="))
	require.Error(t, q.Set("novalue"))
	require.Error(t, q.Set("=x"))

	require.Equal(t, "a=1&a=2&b=", q.String())
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, exitTransport, exitCode(gateway.KindTransport))
	require.Equal(t, exitAuth, exitCode(gateway.KindAuthExpired))
	require.Equal(t, exitAuth, exitCode(gateway.KindAuthInvalid))
	require.Equal(t, exitApplication, exitCode(gateway.KindApplication))
}
