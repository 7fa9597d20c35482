// config - источник загрузки конфигурации для admin-cli и dev-backend.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
//
// Перед этим main может подгрузить .env через LoadDotEnv: значения из него
// попадают в окружение и участвуют в overlay наравне с обычными ENV.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	API      APIConfig     `yaml:"api"`
	Session  SessionConfig `yaml:"session"`
	Notify   NotifyConfig  `yaml:"notify"`
	Breaker  BreakerConfig `yaml:"breaker"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Backend  BackendConfig `yaml:"backend"`
}

// APIConfig - куда и как клиент ходит за данными и токенами.
type APIConfig struct {
	BaseURL     string `yaml:"base_url"     env:"API_BASE_URL"     env-default:"http://127.0.0.1:50090"`
	LoginPath   string `yaml:"login_path"   env:"API_LOGIN_PATH"   env-default:"/auth/login"`
	RefreshPath string `yaml:"refresh_path" env:"API_REFRESH_PATH" env-default:"/auth/token/refresh"`
	LogoutPath  string `yaml:"logout_path"  env:"API_LOGOUT_PATH"  env-default:"/auth/logout"`
	LoginRoute  string `yaml:"login_route"  env:"API_LOGIN_ROUTE"  env-default:"/login"`
	UserAgent   string `yaml:"user_agent"   env:"API_USER_AGENT"   env-default:"admin-cli"`
}

// TimeoutConfig - таймауты исходящих вызовов.
type TimeoutConfig struct {
	Request time.Duration `yaml:"request" env:"REQUEST_TIMEOUT" env-default:"15s"`
	Refresh time.Duration `yaml:"refresh" env:"REFRESH_TIMEOUT" env-default:"10s"`
}

// SessionConfig - где хранится пара токенов.
// Backend: memory | file | redis.
type SessionConfig struct {
	Backend  string `yaml:"backend"   env:"SESSION_BACKEND"   env-default:"file"`
	FilePath string `yaml:"file_path" env:"SESSION_FILE"      env-default:".admin-session.json"`
	RedisURL string `yaml:"redis_url" env:"SESSION_REDIS_URL" env-default:"redis://127.0.0.1:6379/0"`
	Prefix   string `yaml:"prefix"    env:"SESSION_PREFIX"    env-default:"admin:session:"`
	// TTL - срок хранения пары в Redis с последней записи (по умолчанию срок жизни refresh-токена).
	TTL time.Duration `yaml:"ttl" env:"SESSION_TTL" env-default:"168h"`
}

// NotifyConfig - куда уходят пользовательские уведомления об ошибках.
// Telegram включается, только если заданы и токен, и chat_id.
type NotifyConfig struct {
	Title          string `yaml:"title"           env:"NOTIFY_TITLE"           env-default:"Error"`
	TelegramToken  string `yaml:"telegram_token"  env:"NOTIFY_TELEGRAM_TOKEN"`
	TelegramChatID int64  `yaml:"telegram_chat_id" env:"NOTIFY_TELEGRAM_CHAT_ID"`
	TelegramPrefix string `yaml:"telegram_prefix" env:"NOTIFY_TELEGRAM_PREFIX" env-default:"admin"`
}

// BreakerConfig - circuit breaker вокруг эндпойнта выдачи токенов.
type BreakerConfig struct {
	MaxRequests uint32        `yaml:"max_requests" env:"BREAKER_MAX_REQUESTS" env-default:"1"`
	Interval    time.Duration `yaml:"interval"     env:"BREAKER_INTERVAL"     env-default:"30s"`
	Timeout     time.Duration `yaml:"timeout"      env:"BREAKER_TIMEOUT"      env-default:"15s"`
	MinRequests uint32        `yaml:"min_requests" env:"BREAKER_MIN_REQUESTS" env-default:"3"`
}

// BackendConfig - параметры dev-backend.
type BackendConfig struct {
	Host        string        `yaml:"host"         env:"BACKEND_HOST"         env-default:"0.0.0.0"`
	Port        string        `yaml:"port"         env:"BACKEND_PORT"         env-default:"50090"`
	JWTSecret   string        `yaml:"jwt_secret"   env:"BACKEND_JWT_SECRET"   env-default:"dev-secret"`
	Issuer      string        `yaml:"issuer"       env:"BACKEND_ISSUER"       env-default:"dev-backend"`
	AccessTTL   time.Duration `yaml:"access_ttl"   env:"BACKEND_ACCESS_TTL"   env-default:"30m"`
	RefreshTTL  time.Duration `yaml:"refresh_ttl"  env:"BACKEND_REFRESH_TTL"  env-default:"168h"`
	Service     time.Duration `yaml:"service"      env:"BACKEND_SERVICE_TIMEOUT" env-default:"15s"`
	CORSOrigins []string      `yaml:"cors_origins" env:"BACKEND_CORS_ORIGINS" env-default:"http://localhost:5180"`
	// RedisURL - хранилище сессий; пусто - сессии в памяти процесса.
	RedisURL    string        `yaml:"redis_url"    env:"BACKEND_REDIS_URL"`
	Users       []UserConfig  `yaml:"users"`
}

func (b BackendConfig) Addr() string { return net.JoinHostPort(b.Host, b.Port) }

// UserConfig - учётная запись dev-backend. Пароль хэшируется при старте.
type UserConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Disabled bool   `yaml:"disabled"`
}

// LoadDotEnv подгружает переменные из .env-файлов (по умолчанию ./.env).
// Отсутствие файла ошибкой не считается; уже заданные переменные не перетираются.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}

	return nil
}

// MustLoad - паника при ошибке загрузки.
func MustLoad(path string) *Config {
	cfg, err := Load(path)

	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) только ENV
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
