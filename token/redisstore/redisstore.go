package redisstore

import (
	"context"
	"fmt"

	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/token"
	"github.com/redis/go-redis/v9"
)

var _ token.Storage = (*TokenStorage)(nil)

// TokenStorage keeps session credentials in redis so several client processes on the same
// host (the CLI and a long running sync job, say) share one login.
type TokenStorage struct {
	client *redis.Client
	prefix string
}

func NewTokenStorage(client *redis.Client, prefix string) *TokenStorage {
	return &TokenStorage{client: client, prefix: prefix}
}

// Connect dials redis and checks the connection with a PING.
func Connect(ctx context.Context, addr, password string, db int, prefix string) (*TokenStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("[redisstore.Connect] ping %s: %w", addr, err)
	}
	return NewTokenStorage(client, prefix), nil
}

func (s *TokenStorage) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return "", errors.ErrKeyNotFound
	} else if err != nil {
		return "", fmt.Errorf("[redisstore.Get] %w", err)
	}
	return v, nil
}

func (s *TokenStorage) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("[redisstore.Set] %w", err)
	}
	return nil
}

func (s *TokenStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, k := range keys {
		prefixed = append(prefixed, s.prefix+k)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("[redisstore.Delete] %w", err)
	}
	return nil
}

func (s *TokenStorage) Close() error {
	return s.client.Close()
}
