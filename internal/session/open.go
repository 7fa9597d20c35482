package session

import (
	"context"
	"fmt"
	"io"

	"github.com/pribylovaa/go-admin-gateway/internal/config"
)

// Бэкенды хранилища.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open создаёт Store по конфигурации. Возвращаемый io.Closer нужно закрыть
// при завершении (для memory/file это no-op).
func Open(ctx context.Context, cfg config.SessionConfig) (Store, io.Closer, error) {
	const op = "session.Open"

	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nopCloser{}, nil
	case BackendFile, "":
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("%s: empty session file path", op)
		}

		return NewFileStore(cfg.FilePath), nopCloser{}, nil
	case BackendRedis:
		rs, err := NewRedisStore(ctx, cfg.RedisURL, cfg.Prefix, cfg.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}

		return rs, rs, nil
	default:
		return nil, nil, fmt.Errorf("%s: unknown session backend %q", op, cfg.Backend)
	}
}
