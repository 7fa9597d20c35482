package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeFile - утилита записи временного файла конфигурации.
func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	return p
}

// chdir - смена текущего рабочего каталога с авто-возвратом.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

const sampleYAML = `
env: "prod"
api:
  base_url: "https://admin.example.com/api"
  login_path: "/v1/auth/login"
  refresh_path: "/v1/auth/token/refresh"
  logout_path: "/v1/auth/logout"
  login_route: "/signin"
  user_agent: "ops-cli"
session:
  backend: "redis"
  redis_url: "redis://10.0.0.5:6379/2"
  prefix: "ops:"
notify:
  title: "Ошибка"
  telegram_token: "bot-token"
  telegram_chat_id: 42
timeouts:
  request: "3s"
  refresh: "2s"
breaker:
  max_requests: 2
  interval: "1m"
  timeout: "20s"
  min_requests: 5
backend:
  host: "127.0.0.1"
  port: "8080"
  jwt_secret: "super-secret"
  access_ttl: "5m"
  refresh_ttl: "24h"
  users:
    - username: "admin"
      password: "admin123"
    - username: "blocked"
      password: "x"
      disabled: true
`

const minimalYAML = `
env: "stage"
`

const brokenYAML = `
env: [unclosed
`

func TestBackendConfig_Addr(t *testing.T) {
	t.Parallel()
	cfg := BackendConfig{Host: "0.0.0.0", Port: "8080"}
	require.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestLoad_WithExplicitPath_OK(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", sampleYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "https://admin.example.com/api", cfg.API.BaseURL)
	require.Equal(t, "/v1/auth/login", cfg.API.LoginPath)
	require.Equal(t, "/v1/auth/token/refresh", cfg.API.RefreshPath)
	require.Equal(t, "/v1/auth/logout", cfg.API.LogoutPath)
	require.Equal(t, "/signin", cfg.API.LoginRoute)
	require.Equal(t, "ops-cli", cfg.API.UserAgent)

	require.Equal(t, "redis", cfg.Session.Backend)
	require.Equal(t, "redis://10.0.0.5:6379/2", cfg.Session.RedisURL)
	require.Equal(t, "ops:", cfg.Session.Prefix)

	require.Equal(t, "Ошибка", cfg.Notify.Title)
	require.Equal(t, "bot-token", cfg.Notify.TelegramToken)
	require.Equal(t, int64(42), cfg.Notify.TelegramChatID)

	require.Equal(t, 3*time.Second, cfg.Timeouts.Request)
	require.Equal(t, 2*time.Second, cfg.Timeouts.Refresh)

	require.Equal(t, uint32(2), cfg.Breaker.MaxRequests)
	require.Equal(t, time.Minute, cfg.Breaker.Interval)
	require.Equal(t, 20*time.Second, cfg.Breaker.Timeout)
	require.Equal(t, uint32(5), cfg.Breaker.MinRequests)

	require.Equal(t, "127.0.0.1:8080", cfg.Backend.Addr())
	require.Equal(t, "super-secret", cfg.Backend.JWTSecret)
	require.Equal(t, 5*time.Minute, cfg.Backend.AccessTTL)
	require.Equal(t, 24*time.Hour, cfg.Backend.RefreshTTL)
	require.Len(t, cfg.Backend.Users, 2)
	require.Equal(t, "admin", cfg.Backend.Users[0].Username)
	require.True(t, cfg.Backend.Users[1].Disabled)
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "min.yaml", minimalYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "stage", cfg.Env)
	require.Equal(t, "/auth/token/refresh", cfg.API.RefreshPath)
	require.Equal(t, "/login", cfg.API.LoginRoute)
	require.Equal(t, "file", cfg.Session.Backend)
	require.Equal(t, 168*time.Hour, cfg.Session.TTL)
	require.Equal(t, "Error", cfg.Notify.Title)
	require.Equal(t, 15*time.Second, cfg.Timeouts.Request)
	require.Equal(t, 30*time.Minute, cfg.Backend.AccessTTL)
	require.Equal(t, []string{"http://localhost:5180"}, cfg.Backend.CORSOrigins)
}

func TestLoad_WithExplicitPath_BrokenYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "broken.yaml", brokenYAML)

	_, err := Load(cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_WithCONFIG_PATH_OK(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "from_env_path.yaml", minimalYAML)
	t.Setenv("CONFIG_PATH", cfgPath)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "stage", cfg.Env)
}

func TestLoad_WithLocalYAML_OK(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, ".", "local.yaml", sampleYAML)
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "ops-cli", cfg.API.UserAgent)
}

// Явный путь важнее CONFIG_PATH и local.yaml.
func TestLoad_Priority_ExplicitWinsOverEnvAndLocal(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	explicit := writeFile(t, dir, "explicit.yaml", `
env: "prod"
api: { base_url: "http://explicit" }
`)
	badFromEnv := writeFile(t, dir, "bad.yaml", brokenYAML)
	t.Setenv("CONFIG_PATH", badFromEnv)
	writeFile(t, ".", "local.yaml", `
env: "local"
api: { base_url: "http://local" }
`)

	cfg, err := Load(explicit)
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "http://explicit", cfg.API.BaseURL)
}

func TestLoad_EnvOverlay_OverridesValuesFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", sampleYAML)

	t.Setenv("API_BASE_URL", "http://override:9000")
	t.Setenv("SESSION_BACKEND", "memory")
	t.Setenv("REQUEST_TIMEOUT", "7s")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "http://override:9000", cfg.API.BaseURL)
	require.Equal(t, "memory", cfg.Session.Backend)
	require.Equal(t, 7*time.Second, cfg.Timeouts.Request)
}

func TestLoad_EnvOnly_OK(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", "")

	t.Setenv("ENV", "dev")
	t.Setenv("API_BASE_URL", "http://env-only")
	t.Setenv("SESSION_FILE", "/tmp/s.json")
	t.Setenv("BACKEND_PORT", "6000")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, "http://env-only", cfg.API.BaseURL)
	require.Equal(t, "/tmp/s.json", cfg.Session.FilePath)
	require.Equal(t, "6000", cfg.Backend.Port)
}

func TestLoadDotEnv_MissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")))
}

func TestLoadDotEnv_FeedsEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", "")
	// t.Setenv регистрирует восстановление; пустое значение godotenv не перетрёт,
	// поэтому снимаем переменную целиком.
	t.Setenv("API_USER_AGENT", "")
	require.NoError(t, os.Unsetenv("API_USER_AGENT"))

	writeFile(t, dir, ".env", "API_USER_AGENT=from-dotenv\n")
	require.NoError(t, LoadDotEnv())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.API.UserAgent)
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		_ = MustLoad(filepath.Join(t.TempDir(), "nope.yaml"))
	})
}
