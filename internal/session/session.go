// session хранит учётные данные клиента (пару access/refresh токенов).
//
// Store - минимальный контракт key-value хранилища (get/set/remove) с
// фиксированными ключами. Session поверх него поддерживает инвариант пары:
// access и refresh токены либо оба сохранены, либо оба отсутствуют.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pribylovaa/go-admin-gateway/internal/envelope"
)

// Ключи хранилища.
const (
	KeyAccessToken  = "Access-Token"
	KeyRefreshToken = "Refresh-Token"
	KeyExpiresIn    = "Expires-In"
	KeyExpiresAt    = "Expires-At"
)

// pairKeys - всё, что удаляется при очистке сессии.
var pairKeys = []string{KeyAccessToken, KeyRefreshToken, KeyExpiresIn, KeyExpiresAt}

var (
	// ErrInvalidPair - попытка сохранить неполную пару токенов.
	ErrInvalidPair = errors.New("access and refresh tokens must both be set")
)

// Store - key-value хранилище учётных данных.
type Store interface {
	// Get возвращает значение и признак его наличия.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set сохраняет значение по ключу.
	Set(ctx context.Context, key, value string) error
	// Remove удаляет ключи; отсутствующие ключи игнорируются.
	Remove(ctx context.Context, keys ...string) error
}

// MultiSetter - хранилище, умеющее записать несколько ключей атомарно.
type MultiSetter interface {
	SetMany(ctx context.Context, kv map[string]string) error
}

// Pair - сохранённая пара токенов.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	ExpiresAt    time.Time
}

// Session - пара токенов поверх Store.
// Безопасна для конкурентного использования, если безопасен Store.
type Session struct {
	store Store
	now   func() time.Time
}

// New создаёт Session поверх store.
func New(store Store) *Session {
	return &Session{store: store, now: time.Now}
}

// Store возвращает нижележащее хранилище.
func (s *Session) Store() Store { return s.store }

// AccessToken возвращает access-токен ("" если его нет).
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyAccessToken)
}

// RefreshToken возвращает refresh-токен ("" если его нет).
func (s *Session) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyRefreshToken)
}

func (s *Session) get(ctx context.Context, key string) (string, error) {
	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("session.get %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}

	return v, nil
}

// Save сохраняет новую пару вместе со сроком жизни access-токена.
// Неполная пара не сохраняется.
func (s *Session) Save(ctx context.Context, p envelope.TokenPair) error {
	const op = "session.Save"

	if !p.Valid() {
		return fmt.Errorf("%s: %w", op, ErrInvalidPair)
	}

	kv := map[string]string{
		KeyAccessToken:  p.AccessToken,
		KeyRefreshToken: p.RefreshToken,
		KeyExpiresIn:    strconv.FormatInt(int64(p.ExpiresIn), 10),
		KeyExpiresAt:    strconv.FormatInt(s.now().Add(time.Duration(p.ExpiresIn)*time.Second).Unix(), 10),
	}

	if ms, ok := s.store.(MultiSetter); ok {
		if err := ms.SetMany(ctx, kv); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		return nil
	}

	// Без атомарной записи: при сбое откатываем всё, чтобы не оставить полпары.
	for _, k := range pairKeys {
		if err := s.store.Set(ctx, k, kv[k]); err != nil {
			_ = s.store.Remove(ctx, pairKeys...)
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

// Clear удаляет пару и сроки.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.store.Remove(ctx, pairKeys...); err != nil {
		return fmt.Errorf("session.Clear: %w", err)
	}

	return nil
}

// Load возвращает сохранённую пару. ok=false, если пары нет или она неполная.
func (s *Session) Load(ctx context.Context) (Pair, bool, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return Pair{}, false, err
	}
	refresh, err := s.RefreshToken(ctx)
	if err != nil {
		return Pair{}, false, err
	}
	if access == "" || refresh == "" {
		return Pair{}, false, nil
	}

	p := Pair{AccessToken: access, RefreshToken: refresh}

	if v, _ := s.get(ctx, KeyExpiresIn); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			p.ExpiresIn = time.Duration(n) * time.Second
		}
	}
	if v, _ := s.get(ctx, KeyExpiresAt); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			p.ExpiresAt = time.Unix(n, 0).UTC()
		}
	}

	return p, true, nil
}
