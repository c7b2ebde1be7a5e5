package ports

import (
	"context"
	"time"
)

// TokenTier is one persistence location for the bearer token.
type TokenTier interface {
	// Get returns the stored value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key. A zero ttl means the tier's default lifetime.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// TokenStore abstracts the durable and ephemeral tiers behind a single token slot.
type TokenStore interface {
	Save(ctx context.Context, token string, durable bool) error
	Read(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}
