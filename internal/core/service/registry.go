package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultIdleTTL = 2 * time.Hour

// SessionFactory builds the Session of a new tab.
type SessionFactory func(tabID, deviceID string) *Session

// RegistryOptions tunes a Registry.
type RegistryOptions struct {
	// IdleTTL evicts tabs not seen for this long. Defaults to two hours.
	IdleTTL time.Duration
	// OnChange observes state changes of every tab's session.
	OnChange func(tabID string, prev, next State)
}

type tab struct {
	session     *Session
	lastSeen    time.Time
	unsubscribe func()
}

// Registry holds one Session per browser tab.
type Registry struct {
	newSession SessionFactory
	opts       RegistryOptions
	log        zerolog.Logger
	now        func() time.Time

	mu   sync.Mutex
	tabs map[string]*tab
}

func NewRegistry(factory SessionFactory, opts RegistryOptions, log zerolog.Logger) *Registry {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	return &Registry{
		newSession: factory,
		opts:       opts,
		log:        log,
		now:        time.Now,
		tabs:       make(map[string]*tab),
	}
}

// Session returns the tab's session, creating it on first use, and makes
// sure its loader has run.
func (r *Registry) Session(ctx context.Context, tabID, deviceID string) (*Session, error) {
	s := r.lookup(tabID, deviceID)
	if err := s.EnsureLoaded(ctx); err != nil {
		return s, err
	}
	return s, nil
}

func (r *Registry) lookup(tabID, deviceID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tabs[tabID]; ok {
		t.lastSeen = r.now()
		return t.session
	}

	s := r.newSession(tabID, deviceID)
	t := &tab{session: s, lastSeen: r.now()}
	if r.opts.OnChange != nil {
		var (
			mu   sync.Mutex
			prev State
		)
		t.unsubscribe = s.Subscribe(func(next State) {
			mu.Lock()
			p := prev
			prev = next
			mu.Unlock()
			r.opts.OnChange(tabID, p, next)
		})
	}
	r.tabs[tabID] = t
	return s
}

// Drop discards a tab's session and all of its in-memory state.
func (r *Registry) Drop(tabID string) {
	r.mu.Lock()
	t, ok := r.tabs[tabID]
	delete(r.tabs, tabID)
	r.mu.Unlock()

	if ok {
		r.release(tabID, t)
	}
}

// Len reports the number of live tabs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}

// Sweep drops tabs idle for longer than IdleTTL and returns how many went.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.opts.IdleTTL)

	r.mu.Lock()
	var stale = make(map[string]*tab)
	for id, t := range r.tabs {
		if t.lastSeen.Before(cutoff) {
			stale[id] = t
			delete(r.tabs, id)
		}
	}
	r.mu.Unlock()

	for id, t := range stale {
		r.release(id, t)
	}
	return len(stale)
}

// Run sweeps idle tabs every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.log.Debug().Int("evicted", n).Msg("idle tabs evicted")
			}
		}
	}
}

func (r *Registry) release(tabID string, t *tab) {
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
	if r.opts.OnChange != nil {
		r.opts.OnChange(tabID, t.session.State(), State{Resolved: true})
	}
}
