package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding one field per user.
const DefaultRedisKey = "chatcore:users"

// RedisStore keeps users as fields of a single Redis hash.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore returns a store using the hash at key. An empty key uses
// DefaultRedisKey.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := NewRedisStore(client, "")
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}

	return &RedisStore{client: client, key: key}
}

// Lookup implements Store.
func (s *RedisStore) Lookup(ctx context.Context, name string) (string, bool, error) {
	secret, err := s.client.HGet(ctx, s.key, name).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("credstore: redis hget: %w", err)
	}

	return secret, secret != "", nil
}

// Insert implements Store. HSETNX makes the existence check and the write atomic.
func (s *RedisStore) Insert(ctx context.Context, name, secret string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	ok, err := s.client.HSetNX(ctx, s.key, name, secret).Result()
	if err != nil {
		return fmt.Errorf("credstore: redis hsetnx: %w", err)
	}
	if !ok {
		return ErrUserExists
	}

	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
