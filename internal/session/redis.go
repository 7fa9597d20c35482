package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hashKey - имя хэша с парой под префиксом.
const hashKey = "tokens"

// RedisStore - хранилище в Redis. Пара лежит одним Redis Hash (prefix + "tokens"),
// поля - имена ключей сессии. Запись идёт транзакцией HSET + EXPIRE,
// так что хэш живёт не дольше ttl с последнего сохранения.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой - используется "admin:session:". ttl <= 0 - без срока.
func NewRedisStore(ctx context.Context, redisURL, prefix string, ttl time.Duration) (*RedisStore, error) {
	const op = "session.NewRedisStore"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return NewRedisStoreFromClient(rdb, prefix, ttl), nil
}

// NewRedisStoreFromClient оборачивает уже созданный клиент.
func NewRedisStoreFromClient(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "admin:session:"
	}

	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key() string { return r.prefix + hashKey }

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.HGet(ctx, r.key(), key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, err
	}

	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.SetMany(ctx, map[string]string{key: value})
}

func (r *RedisStore) SetMany(ctx context.Context, kv map[string]string) error {
	if len(kv) == 0 {
		return nil
	}

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.key(), kv)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key(), r.ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Remove удаляет поля; опустевший хэш Redis удаляет сам.
func (r *RedisStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return r.rdb.HDel(ctx, r.key(), keys...).Err()
}

func (r *RedisStore) Close() error { return r.rdb.Close() }
