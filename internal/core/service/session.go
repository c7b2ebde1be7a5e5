package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vetclinic/portal/internal/core/domain"
	"github.com/vetclinic/portal/internal/core/ports"
)

// State is the observable part of a Session.
type State struct {
	Identity *domain.Identity
	// Resolved is false until the session loader has settled. Protected
	// content must not be rendered before it flips.
	Resolved bool
}

// Authenticated reports whether an identity is present.
func (s State) Authenticated() bool { return s.Identity != nil }

// Session is the authentication state of one portal tab: the identity, the
// token slot and the outbound pipeline's default Authorization header.
//
// Load, Login, Logout and UpdateProfile are serialized; reads never block on
// an in-flight identity fetch.
type Session struct {
	api    ports.ClinicAPI
	tokens ports.TokenStore
	log    zerolog.Logger
	now    func() time.Time

	flow sync.Mutex

	mu       sync.RWMutex
	identity *domain.Identity
	resolved bool
	// expires is the exp claim of the attached token; zero when unknown.
	expires time.Time
	subs    map[uint64]func(State)
	nextSub uint64
}

func NewSession(api ports.ClinicAPI, tokens ports.TokenStore, log zerolog.Logger) *Session {
	return &Session{
		api:    api,
		tokens: tokens,
		log:    log,
		now:    time.Now,
		subs:   make(map[uint64]func(State)),
	}
}

// State returns a snapshot; the identity is a copy.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Identity: s.identity.Clone(), Resolved: s.resolved}
}

func (s *Session) Identity() *domain.Identity { return s.State().Identity }

func (s *Session) Resolved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolved
}

// Token returns the bearer currently attached to the outbound pipeline, or ""
// once that token has expired.
func (s *Session) Token() string {
	if s.expired() {
		return ""
	}
	return s.api.Bearer()
}

func (s *Session) expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.expires.IsZero() && !s.expires.After(s.now())
}

// Subscribe registers fn to be called after every state change. The returned
// func removes the subscription.
func (s *Session) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// EnsureLoaded runs the loader unless the session already resolved. A
// resolved session whose token has since expired is logged out first.
func (s *Session) EnsureLoaded(ctx context.Context) error {
	if s.Resolved() && !s.expired() {
		return nil
	}
	s.flow.Lock()
	defer s.flow.Unlock()
	if s.expired() {
		s.log.Info().Msg("session token expired, evicting")
		s.evict(context.WithoutCancel(ctx))
		s.set(nil, true)
		return nil
	}
	if s.Resolved() {
		return nil
	}
	_, err := s.load(ctx)
	return err
}

// Load locates the stored token, checks its expiry, attaches it and fetches
// the identity behind it. Every failure ends in a resolved anonymous session
// with the token evicted; the only error returned is ctx's, in which case the
// stored token, the header and the session state are left as they were.
func (s *Session) Load(ctx context.Context) (*domain.Identity, error) {
	s.flow.Lock()
	defer s.flow.Unlock()
	return s.load(ctx)
}

func (s *Session) load(ctx context.Context) (*domain.Identity, error) {
	token, ok, err := s.tokens.Read(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log.Warn().Err(err).Msg("token store unreadable, continuing anonymous")
		s.api.ClearBearer()
		s.set(nil, true)
		return nil, nil
	}
	if !ok {
		s.api.ClearBearer()
		s.set(nil, true)
		return nil, nil
	}

	exp, err := TokenExpiry(token)
	if err == nil && !exp.After(s.now()) {
		err = fmt.Errorf("%w: expired at %s", domain.ErrTokenInvalid, exp.UTC().Format(time.RFC3339))
	}
	if err != nil {
		s.log.Debug().Err(err).Msg("evicting stored token")
		s.evict(ctx)
		s.set(nil, true)
		return nil, nil
	}

	previous := s.api.Bearer()
	s.api.SetBearer(token)
	id, err := s.api.CurrentUser(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.restoreBearer(previous)
			return nil, ctxErr
		}
		s.log.Info().Err(err).Msg("identity fetch failed, evicting token")
		s.evict(ctx)
		s.set(nil, true)
		return nil, nil
	}

	s.signIn(id, exp)
	return id.Clone(), nil
}

// Login exchanges credentials for a token and resolves the identity behind
// it. The token is persisted, in the durable tier when rememberMe is set, only
// once the identity fetch succeeded; on any failure the previous header,
// stored token and identity are left as they were.
func (s *Session) Login(ctx context.Context, email, password string, rememberMe bool) (*domain.Identity, error) {
	s.flow.Lock()
	defer s.flow.Unlock()

	token, err := s.api.Authenticate(ctx, email, password)
	if err != nil {
		return nil, &domain.AuthError{Op: "authenticate", Err: err}
	}
	if token == "" {
		return nil, &domain.AuthError{Op: "authenticate", Err: domain.ErrTokenInvalid}
	}

	previous := s.api.Bearer()
	s.api.SetBearer(token)

	id, err := s.api.CurrentUser(ctx)
	if err != nil {
		s.restoreBearer(previous)
		return nil, &domain.AuthError{Op: "fetch identity", Err: err}
	}

	// Save drops the other tier itself and leaves storage untouched on error.
	if err := s.tokens.Save(ctx, token, rememberMe); err != nil {
		s.restoreBearer(previous)
		return nil, &domain.AuthError{Op: "persist token", Err: err}
	}

	exp, _ := TokenExpiry(token)
	s.signIn(id, exp)
	s.log.Info().Int64("user_id", id.ID).Str("role", id.Role.String()).Bool("remember_me", rememberMe).Msg("login succeeded")
	return id.Clone(), nil
}

// Logout drops the identity, the stored token in both tiers and the default
// Authorization header. It cannot fail; storage errors are logged.
func (s *Session) Logout(ctx context.Context) {
	s.flow.Lock()
	defer s.flow.Unlock()

	s.evict(context.WithoutCancel(ctx))
	s.set(nil, true)
}

// UpdateProfile edits the current user's profile and reloads the session so
// the identity reflects the change.
func (s *Session) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (*domain.Identity, error) {
	s.flow.Lock()
	defer s.flow.Unlock()

	current := s.Identity()
	if current == nil {
		return nil, domain.ErrNotAuthenticated
	}
	if _, err := s.api.UpdateUser(ctx, current.ID, update); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	id, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("update profile: reload session: %w", err)
	}
	if id == nil {
		return nil, domain.ErrNotAuthenticated
	}
	return id, nil
}

func (s *Session) evict(ctx context.Context) {
	if err := s.tokens.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear stored token")
	}
	s.api.ClearBearer()
}

func (s *Session) restoreBearer(previous string) {
	if previous == "" {
		s.api.ClearBearer()
		return
	}
	s.api.SetBearer(previous)
}

func (s *Session) signIn(id *domain.Identity, expires time.Time) {
	s.mu.Lock()
	s.expires = expires
	s.mu.Unlock()
	s.set(id, true)
}

func (s *Session) set(id *domain.Identity, resolved bool) {
	s.mu.Lock()
	if id == nil {
		s.expires = time.Time{}
	}
	s.identity = id.Clone()
	s.resolved = resolved
	st := State{Identity: s.identity.Clone(), Resolved: s.resolved}
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// IsAuthError reports whether err came out of the login flow.
func IsAuthError(err error) bool {
	var ae *domain.AuthError
	return errors.As(err, &ae)
}
