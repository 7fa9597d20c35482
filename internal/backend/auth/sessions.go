package auth

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session - открытая сессия и её текущая пара токенов.
type Session struct {
	ID           string
	UserID       uuid.UUID
	Username     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Sessions - хранилище сессий.
type Sessions interface {
	// Save создаёт или перезаписывает сессию с TTL.
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	// Get возвращает сессию и признак её наличия.
	Get(ctx context.Context, id string) (*Session, bool, error)
	// Delete удаляет сессию; отсутствие сессии ошибкой не считается.
	Delete(ctx context.Context, id string) error
}

// MemorySessions - сессии в памяти процесса.
type MemorySessions struct {
	mu   sync.Mutex
	data map[string]Session
	now  func() time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{data: make(map[string]Session), now: time.Now}
}

func (m *MemorySessions) Save(_ context.Context, s *Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	cp.ExpiresAt = m.now().Add(ttl)
	m.data[s.ID] = cp

	return nil
}

func (m *MemorySessions) Get(_ context.Context, id string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.data[id]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(s.ExpiresAt) {
		delete(m.data, id)
		return nil, false, nil
	}

	return &s, true, nil
}

func (m *MemorySessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, id)
	return nil
}

// RedisSessions - сессии в Redis Hash с полями uid, user, at, rt, exp.
type RedisSessions struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisSessions подключается к Redis по URL (redis://:pass@host:6379/0).
// Если prefix пустой - используется "backend:session:".
func NewRedisSessions(ctx context.Context, redisURL, prefix string) (*RedisSessions, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return NewRedisSessionsFromClient(rdb, prefix), nil
}

// NewRedisSessionsFromClient оборачивает готовый клиент.
func NewRedisSessionsFromClient(rdb *redis.Client, prefix string) *RedisSessions {
	if prefix == "" {
		prefix = "backend:session:"
	}

	return &RedisSessions{rdb: rdb, prefix: prefix}
}

func (r *RedisSessions) key(id string) string { return r.prefix + id }

func (r *RedisSessions) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	kv := map[string]string{
		"uid":  s.UserID.String(),
		"user": s.Username,
		"at":   s.AccessToken,
		"rt":   s.RefreshToken,
		"exp":  strconv.FormatInt(time.Now().Add(ttl).Unix(), 10),
	}

	// Перезапись целиком: старые поля не должны пережить новую пару.
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, r.key(s.ID))
	pipe.HSet(ctx, r.key(s.ID), kv)
	pipe.Expire(ctx, r.key(s.ID), ttl)

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisSessions) Get(ctx context.Context, id string) (*Session, bool, error) {
	m, err := r.rdb.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, false, err
	}

	if len(m) == 0 {
		return nil, false, nil
	}

	uid, err := uuid.Parse(m["uid"])
	if err != nil {
		return nil, false, err
	}

	expUnix, err := strconv.ParseInt(m["exp"], 10, 64)
	if err != nil {
		return nil, false, err
	}

	return &Session{
		ID:           id,
		UserID:       uid,
		Username:     m["user"],
		AccessToken:  m["at"],
		RefreshToken: m["rt"],
		ExpiresAt:    time.Unix(expUnix, 0).UTC(),
	}, true, nil
}

func (r *RedisSessions) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, r.key(id)).Err()
}

func (r *RedisSessions) Close() error { return r.rdb.Close() }
