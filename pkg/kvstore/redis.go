package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Zereker/storekit/pkg/errdefs"
)

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

// Validate 验证配置
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	return nil
}

// RedisStore keeps one hash per namespace, field = key, value = JSON.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

var _ Store = (*RedisStore)(nil)

// OpenRedisStore dials Redis and verifies the connection.
func OpenRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errdefs.Unavailable(err, "failed to connect to redis")
	}

	s := NewRedisStore(client, cfg.KeyPrefix)
	s.owned = true
	return s, nil
}

// NewRedisStore wraps an existing client. Close does not close client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "kv:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) hashKey(namespace string) string {
	return s.prefix + namespaceOr(namespace)
}

func (s *RedisStore) Put(ctx context.Context, key string, value Value, namespace string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := s.client.HSet(ctx, s.hashKey(namespace), key, raw).Err(); err != nil {
		return errdefs.Unavailable(err, "redis hset")
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string, namespace string) (Value, error) {
	raw, err := s.client.HGet(ctx, s.hashKey(namespace), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errdefs.Unavailable(err, "redis hget")
	}
	return decodeValue(raw)
}

func (s *RedisStore) GetAll(ctx context.Context, namespace string) (map[string]Value, error) {
	entries, err := s.client.HGetAll(ctx, s.hashKey(namespace)).Result()
	if err != nil {
		return nil, errdefs.Unavailable(err, "redis hgetall")
	}

	out := make(map[string]Value, len(entries))
	for key, raw := range entries {
		value, err := decodeValue([]byte(raw))
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string, namespace string) (bool, error) {
	n, err := s.client.HDel(ctx, s.hashKey(namespace), key).Result()
	if err != nil {
		return false, errdefs.Unavailable(err, "redis hdel")
	}
	return n > 0, nil
}

// Close closes the client if the store dialed it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
