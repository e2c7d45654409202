package kv

import (
	"context"
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"
)

// RedisStore is the Redis backend for households running the companion hub.
// It satisfies the same Store contract as the SQLite backend.
type RedisStore struct {
	pool      *redis.Pool
	keyPrefix string
}

// NewRedisStore creates a kv store backed by a Redis pool.
func NewRedisStore(addr, keyPrefix string) *RedisStore {
	return &RedisStore{
		pool: &redis.Pool{
			MaxIdle:     3,
			IdleTimeout: 240 * time.Second,
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialContext(ctx, "tcp", addr)
			},
			TestOnBorrow: func(c redis.Conn, t time.Time) error {
				if time.Since(t) < time.Minute {
					return nil
				}
				_, err := c.Do("PING")
				return err
			},
		},
		keyPrefix: keyPrefix,
	}
}

// Close releases the connection pool.
func (r *RedisStore) Close() error {
	return r.pool.Close()
}

func (r *RedisStore) key(k string) string {
	return r.keyPrefix + k
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, false, err
	}
	defer conn.Close()

	value, err := redis.Bytes(conn.Do("GET", r.key(key)))
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("SET", r.key(key), value)
	return err
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("DEL", r.key(key))
	return err
}

func (r *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// SCAN instead of KEYS so a shared hub instance is never blocked.
	var keys []string
	cursor := 0
	for {
		values, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", r.key(prefix)+"*", "COUNT", 100))
		if err != nil {
			return nil, err
		}
		cursor, _ = redis.Int(values[0], nil)
		batch, _ := redis.Strings(values[1], nil)
		for _, k := range batch {
			keys = append(keys, k[len(r.keyPrefix):])
		}
		if cursor == 0 {
			return keys, nil
		}
	}
}
