package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vetclinic/portal/internal/core/ports"
)

// TokenKey is the well-known slot name for the bearer token in either tier.
const TokenKey = "authToken"

// TokenKeys names the slot in each tier. The durable key is scoped to the
// browser profile, the ephemeral key to the tab.
type TokenKeys struct {
	Durable   string
	Ephemeral string
}

// KeysFor scopes the token slot to a device and a tab.
func KeysFor(tabID, deviceID string) TokenKeys {
	return TokenKeys{Durable: deviceID + ":" + TokenKey, Ephemeral: tabID + ":" + TokenKey}
}

// TokenStore keeps a single bearer token in exactly one of two tiers.
type TokenStore struct {
	durable   ports.TokenTier
	ephemeral ports.TokenTier
	keys      TokenKeys
	now       func() time.Time
}

func NewTokenStore(durable, ephemeral ports.TokenTier, keys TokenKeys) *TokenStore {
	return &TokenStore{durable: durable, ephemeral: ephemeral, keys: keys, now: time.Now}
}

// Save writes token to the durable tier when durable is true, otherwise to the
// ephemeral tier, then removes any token held by the other tier. The tier
// lifetime follows the token's exp claim when it can be decoded. When Save
// fails the previous contents of the written tier are put back.
func (s *TokenStore) Save(ctx context.Context, token string, durable bool) error {
	tier, key := s.ephemeral, s.keys.Ephemeral
	other, otherKey := s.durable, s.keys.Durable
	if durable {
		tier, key = s.durable, s.keys.Durable
		other, otherKey = s.ephemeral, s.keys.Ephemeral
	}

	prev, hadPrev, err := tier.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := tier.Set(ctx, key, token, s.ttlFor(token)); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := other.Delete(ctx, otherKey); err != nil {
		var restore error
		if hadPrev {
			restore = tier.Set(ctx, key, prev, s.ttlFor(prev))
		} else {
			restore = tier.Delete(ctx, key)
		}
		return errors.Join(fmt.Errorf("save token: drop other tier: %w", err), restore)
	}
	return nil
}

func (s *TokenStore) ttlFor(token string) time.Duration {
	exp, err := TokenExpiry(token)
	if err != nil {
		return 0
	}
	if ttl := exp.Sub(s.now()); ttl > 0 {
		return ttl
	}
	return time.Second
}

// Read returns the durable token if present, else the ephemeral one.
func (s *TokenStore) Read(ctx context.Context) (string, bool, error) {
	if token, ok, err := s.durable.Get(ctx, s.keys.Durable); err != nil {
		return "", false, fmt.Errorf("read durable token: %w", err)
	} else if ok {
		return token, true, nil
	}

	token, ok, err := s.ephemeral.Get(ctx, s.keys.Ephemeral)
	if err != nil {
		return "", false, fmt.Errorf("read ephemeral token: %w", err)
	}
	return token, ok, nil
}

// Clear removes the token from both tiers. Both deletes are always attempted.
func (s *TokenStore) Clear(ctx context.Context) error {
	return errors.Join(
		s.durable.Delete(ctx, s.keys.Durable),
		s.ephemeral.Delete(ctx, s.keys.Ephemeral),
	)
}
