// Package memory holds the in-process ephemeral token tier. Values live as
// long as the process and their TTL; nothing is written to disk.
package memory

import (
	"context"
	"sync"
	"time"
)

const defaultTTL = 12 * time.Hour

type entry struct {
	value     string
	expiresAt time.Time
}

// TokenTier is a TTL-bounded map safe for concurrent use.
type TokenTier struct {
	mu         sync.Mutex
	entries    map[string]entry
	defaultTTL time.Duration
	now        func() time.Time
}

// NewTokenTier returns an empty tier. A non-positive defaultTTL falls back to 12h.
func NewTokenTier(ttl time.Duration) *TokenTier {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &TokenTier{entries: make(map[string]entry), defaultTTL: ttl, now: time.Now}
}

func (t *TokenTier) Get(_ context.Context, key string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		return "", false, nil
	}
	if !t.now().Before(e.expiresAt) {
		delete(t.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (t *TokenTier) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = t.defaultTTL
	}
	t.mu.Lock()
	t.entries[key] = entry{value: value, expiresAt: t.now().Add(ttl)}
	t.mu.Unlock()
	return nil
}

func (t *TokenTier) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (t *TokenTier) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	n := 0
	for k, e := range t.entries {
		if !now.Before(e.expiresAt) {
			delete(t.entries, k)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is cancelled.
func (t *TokenTier) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Len reports the number of stored entries, expired or not.
func (t *TokenTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
