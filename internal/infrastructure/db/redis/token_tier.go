package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix  = "portal:token:"
	defaultTokenTTL = 30 * 24 * time.Hour
)

// TokenTier is the durable token tier. Keys are namespaced under
// portal:token: and expire with the token they hold.
type TokenTier struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// NewTokenTier wraps client. A non-positive defaultTTL falls back to 30 days.
func NewTokenTier(client *redis.Client, defaultTTL time.Duration) *TokenTier {
	if defaultTTL <= 0 {
		defaultTTL = defaultTokenTTL
	}
	return &TokenTier{client: client, defaultTTL: defaultTTL}
}

func (t *TokenTier) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := t.client.Get(ctx, t.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("token get: %w", err)
	}
	return v, true, nil
}

func (t *TokenTier) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = t.defaultTTL
	}
	if err := t.client.Set(ctx, t.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("token set: %w", err)
	}
	return nil
}

func (t *TokenTier) Delete(ctx context.Context, key string) error {
	if err := t.client.Del(ctx, t.key(key)).Err(); err != nil {
		return fmt.Errorf("token delete: %w", err)
	}
	return nil
}

func (t *TokenTier) key(k string) string { return tokenKeyPrefix + k }
