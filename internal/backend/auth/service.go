// auth содержит логику входа dev-backend: проверку пароля, выпуск и проверку
// JWT access/refresh токенов и сессии, к которым эти токены привязаны.
//
// Каждый вход открывает сессию. Пара токенов сессии хранится в Sessions:
// токен действителен, только пока он совпадает с сохранённым, так что после
// refresh прежняя пара перестаёт работать, а после logout - любая.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/go-admin-gateway/internal/config"
)

var (
	// ErrInvalidCredentials - неизвестный пользователь или неверный пароль.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidToken - токен не разобран, подпись неверна или токен не того типа.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired - срок действия токена истёк.
	ErrTokenExpired = errors.New("token expired")
	// ErrNotRefreshToken - на обмен передан access-токен.
	ErrNotRefreshToken = errors.New("refresh token required")
	// ErrSessionNotFound - сессия завершена или токен заменён более новым.
	ErrSessionNotFound = errors.New("session expired")
	// ErrUserDisabled - учётная запись отключена.
	ErrUserDisabled = errors.New("account disabled")
)

// TokenType - значение token_type в ответах.
const TokenType = "bearer"

// Config - параметры выпуска токенов.
type Config struct {
	JWTSecret  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// BcryptCost - стоимость хэширования паролей (0 - bcrypt.DefaultCost).
	BcryptCost int
	// Clock - источник времени для выпуска и проверки токенов (nil - time.Now).
	Clock func() time.Time
}

// ConfigFrom собирает Config из конфигурации бэкенда.
func ConfigFrom(b config.BackendConfig) Config {
	return Config{
		JWTSecret:  b.JWTSecret,
		Issuer:     b.Issuer,
		AccessTTL:  b.AccessTTL,
		RefreshTTL: b.RefreshTTL,
	}
}

// User - учётная запись.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	Disabled     bool
}

// Principal - кто выполняет запрос.
type Principal struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	SessionID string    `json:"session_id"`
}

// Pair - выпущенная пара токенов.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Service - логика входа. Безопасен для конкурентного использования,
// если безопасно переданное хранилище сессий.
type Service struct {
	cfg      Config
	sessions Sessions
	now      func() time.Time

	mu    sync.RWMutex
	users map[string]*User

	// rotating - мьютексы ротации по ID сессии: чтение сессии, сверка
	// refresh-токена и запись новой пары идут под одним замком.
	rotating sync.Map // map[string]*sync.Mutex
}

// New создаёт Service и хэширует пароли пользователей.
func New(cfg Config, users []config.UserConfig, sessions Sessions) (*Service, error) {
	const op = "auth.New"

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%s: empty jwt secret", op)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%s: token ttl must be positive", op)
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	s := &Service{
		cfg:      cfg,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
		users:    make(map[string]*User, len(users)),
	}
	if cfg.Clock != nil {
		s.now = cfg.Clock
	}

	for _, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("%s: empty username", op)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		s.users[u.Username] = &User{
			ID:           uuid.New(),
			Username:     u.Username,
			PasswordHash: string(hash),
			Disabled:     u.Disabled,
		}
	}

	return s, nil
}

// SetDisabled включает или отключает учётную запись.
func (s *Service) SetDisabled(username string, disabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return false
	}
	u.Disabled = disabled

	return true
}

func (s *Service) user(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return User{}, false
	}

	return *u, true
}

// Login проверяет пароль и открывает новую сессию.
func (s *Service) Login(ctx context.Context, username, password string) (*Pair, error) {
	const op = "auth.Login"

	u, ok := s.user(username)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if u.Disabled {
		return nil, fmt.Errorf("%s: %w", op, ErrUserDisabled)
	}

	return s.issue(ctx, u, uuid.NewString())
}

// Refresh обменивает refresh-токен сессии на новую пару.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Pair, error) {
	const op = "auth.Refresh"

	c, err := s.parse(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !c.IsRefresh {
		return nil, fmt.Errorf("%s: %w", op, ErrNotRefreshToken)
	}

	unlock := s.lockSession(c.SessionID)
	defer unlock()

	sess, err := s.session(ctx, c.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sess.RefreshToken != refreshToken {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}

	u, ok := s.user(sess.Username)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}
	if u.Disabled {
		return nil, fmt.Errorf("%s: %w", op, ErrUserDisabled)
	}

	return s.issue(ctx, u, sess.ID)
}

// Authenticate проверяет access-токен и возвращает владельца запроса.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	const op = "auth.Authenticate"

	c, err := s.parse(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if c.IsRefresh {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	sess, err := s.session(ctx, c.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sess.AccessToken != accessToken {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}

	u, ok := s.user(sess.Username)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}
	if u.Disabled {
		return nil, fmt.Errorf("%s: %w", op, ErrUserDisabled)
	}

	return &Principal{UserID: u.ID, Username: u.Username, SessionID: sess.ID}, nil
}

// Logout завершает сессию.
func (s *Service) Logout(ctx context.Context, p *Principal) error {
	const op = "auth.Logout"

	unlock := s.lockSession(p.SessionID)
	defer unlock()

	if err := s.sessions.Delete(ctx, p.SessionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.rotating.Delete(p.SessionID)

	return nil
}

// lockSession берёт замок ротации сессии id и возвращает функцию освобождения.
func (s *Service) lockSession(id string) func() {
	v, _ := s.rotating.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()

	return mu.Unlock
}

func (s *Service) session(ctx context.Context, id string) (*Session, error) {
	sess, ok, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// issue выпускает пару и перезаписывает ею сессию sessionID.
func (s *Service) issue(ctx context.Context, u User, sessionID string) (*Pair, error) {
	const op = "auth.issue"

	now := s.now()

	access, err := s.sign(u, sessionID, false, now, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	refresh, err := s.sign(u, sessionID, true, now, s.cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sess := &Session{
		ID:           sessionID,
		UserID:       u.ID,
		Username:     u.Username,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(s.cfg.RefreshTTL),
	}
	if err := s.sessions.Save(ctx, sess, s.cfg.RefreshTTL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Pair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTTL}, nil
}
