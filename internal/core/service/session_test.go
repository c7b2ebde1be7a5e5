package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vetclinic/portal/internal/core/domain"
)

type sessionFixture struct {
	api       *stubClinicAPI
	durable   *stubTier
	ephemeral *stubTier
	session   *Session
}

func newSessionFixture() *sessionFixture {
	api := &stubClinicAPI{}
	durable, ephemeral := newStubTier(), newStubTier()
	return &sessionFixture{
		api:       api,
		durable:   durable,
		ephemeral: ephemeral,
		session:   NewSession(api, NewTokenStore(durable, ephemeral, testKeys), zerolog.Nop()),
	}
}

func (f *sessionFixture) storageEmpty() bool {
	return f.durable.len() == 0 && f.ephemeral.len() == 0
}

func TestSession_Load_NoToken(t *testing.T) {
	f := newSessionFixture()

	id, err := f.session.Load(context.Background())
	if err != nil || id != nil {
		t.Fatalf("expected anonymous, got %+v %v", id, err)
	}
	if !f.session.Resolved() {
		t.Fatalf("session must be resolved")
	}
	if f.api.currentUserCalls != 0 {
		t.Fatalf("identity must not be fetched without a token")
	}
}

func TestSession_Load_ExpiredTokenEvicted(t *testing.T) {
	for _, durable := range []bool{true, false} {
		f := newSessionFixture()
		tok := signedToken(t, time.Now().Add(-time.Second))
		if durable {
			f.durable.values[testKeys.Durable] = tok
		} else {
			f.ephemeral.values[testKeys.Ephemeral] = tok
		}

		id, err := f.session.Load(context.Background())
		if err != nil || id != nil {
			t.Fatalf("durable=%v: expected anonymous, got %+v %v", durable, id, err)
		}
		if !f.storageEmpty() {
			t.Fatalf("durable=%v: expired token must be evicted from both tiers", durable)
		}
		if f.api.Bearer() != "" {
			t.Fatalf("durable=%v: expired token must never be attached", durable)
		}
		if f.api.currentUserCalls != 0 {
			t.Fatalf("durable=%v: no identity fetch expected", durable)
		}
	}
}

func TestSession_Load_UndecodableTokenEvicted(t *testing.T) {
	f := newSessionFixture()
	f.durable.values[testKeys.Durable] = "garbage"

	if id, _ := f.session.Load(context.Background()); id != nil {
		t.Fatalf("expected anonymous")
	}
	if !f.storageEmpty() || !f.session.Resolved() {
		t.Fatalf("expected evicted token and resolved session")
	}
}

func TestSession_Load_ValidToken(t *testing.T) {
	for _, role := range domain.Roles {
		f := newSessionFixture()
		tok := signedToken(t, time.Now().Add(time.Hour))
		f.ephemeral.values[testKeys.Ephemeral] = tok
		f.api.currentUserFn = identityFor(tok, &domain.Identity{ID: 3, Role: role})

		id, err := f.session.Load(context.Background())
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if id == nil || id.Role != role {
			t.Fatalf("expected role %s, got %+v", role, id)
		}
		if f.api.Bearer() != tok {
			t.Fatalf("token must be attached to the pipeline")
		}
		if st := f.session.State(); !st.Resolved || !st.Authenticated() {
			t.Fatalf("unexpected state %+v", st)
		}
	}
}

func TestSession_Load_IdentityFetchFails(t *testing.T) {
	f := newSessionFixture()
	tok := signedToken(t, time.Now().Add(time.Hour))
	f.durable.values[testKeys.Durable] = tok
	f.api.currentUserFn = func(context.Context, string) (*domain.Identity, error) {
		return nil, domain.ErrUnauthorized
	}

	id, err := f.session.Load(context.Background())
	if err != nil || id != nil {
		t.Fatalf("expected swallowed failure, got %+v %v", id, err)
	}
	if !f.storageEmpty() || f.api.Bearer() != "" {
		t.Fatalf("token must be evicted and header removed")
	}
	if !f.session.Resolved() {
		t.Fatalf("session must resolve")
	}
}

func TestSession_Load_CancelledKeepsToken(t *testing.T) {
	f := newSessionFixture()
	tok := signedToken(t, time.Now().Add(time.Hour))
	f.durable.values[testKeys.Durable] = tok

	ctx, cancel := context.WithCancel(context.Background())
	f.api.currentUserFn = func(ctx context.Context, _ string) (*domain.Identity, error) {
		cancel()
		return nil, ctx.Err()
	}

	if _, err := f.session.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.session.Resolved() {
		t.Fatalf("cancelled load must leave the session unresolved")
	}
	if f.durable.values[testKeys.Durable] != tok {
		t.Fatalf("cancelled load must not evict the token")
	}
	if f.api.Bearer() != "" {
		t.Fatalf("header must not stay attached after a cancelled load")
	}
}

func TestSession_Load_StoreUnreadable(t *testing.T) {
	f := newSessionFixture()
	f.durable.getErr = errors.New("redis down")

	if id, err := f.session.Load(context.Background()); id != nil || err != nil {
		t.Fatalf("expected anonymous, got %+v %v", id, err)
	}
	if !f.session.Resolved() {
		t.Fatalf("session must resolve even when storage is down")
	}
}

func TestSession_Load_StoreUnreadableCancelled(t *testing.T) {
	f := newSessionFixture()
	f.durable.getErr = errors.New("redis: context canceled")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.session.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.session.Resolved() {
		t.Fatalf("a cancelled request must not settle the session as anonymous")
	}
}

func TestSession_TokenExpiresAfterLoad(t *testing.T) {
	f := newSessionFixture()
	tok := signedToken(t, time.Now().Add(time.Hour))
	f.durable.values[testKeys.Durable] = tok
	f.api.currentUserFn = identityFor(tok, &domain.Identity{ID: 1, Role: domain.RoleUser})
	if err := f.session.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if f.session.Token() != tok {
		t.Fatalf("token should be attached")
	}

	later := time.Now().Add(2 * time.Hour)
	f.session.now = func() time.Time { return later }

	if f.session.Token() != "" {
		t.Fatalf("expired token must not be handed out")
	}
	if err := f.session.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("ensure loaded: %v", err)
	}
	if f.session.Identity() != nil || !f.session.Resolved() {
		t.Fatalf("expected resolved anonymous session, got %+v", f.session.State())
	}
	if !f.storageEmpty() || f.api.Bearer() != "" {
		t.Fatalf("expired token must be evicted")
	}
	if f.api.currentUserCalls != 1 {
		t.Fatalf("expiry must not refetch the identity, got %d calls", f.api.currentUserCalls)
	}
}

func TestSession_Login_Tiers(t *testing.T) {
	for _, remember := range []bool{true, false} {
		f := newSessionFixture()
		tok := signedToken(t, time.Now().Add(time.Hour))
		f.api.authenticateFn = func(context.Context, string, string) (string, error) { return tok, nil }
		f.api.currentUserFn = identityFor(tok, &domain.Identity{ID: 1, Role: domain.RoleUser})

		if _, err := f.session.Login(context.Background(), "a@example.com", "pw", remember); err != nil {
			t.Fatalf("remember=%v: login: %v", remember, err)
		}

		durable, inDurable := f.durable.values[testKeys.Durable]
		ephemeral, inEphemeral := f.ephemeral.values[testKeys.Ephemeral]
		if remember && (!inDurable || durable != tok || inEphemeral) {
			t.Fatalf("remember=true: expected durable-only, got durable=%q ephemeral=%q", durable, ephemeral)
		}
		if !remember && (!inEphemeral || ephemeral != tok || inDurable) {
			t.Fatalf("remember=false: expected ephemeral-only, got durable=%q ephemeral=%q", durable, ephemeral)
		}
	}
}

func TestSession_Login_VeterinaryScenario(t *testing.T) {
	f := newSessionFixture()
	const tok = "T"
	f.api.authenticateFn = func(_ context.Context, email, password string) (string, error) {
		if email != "vet@example.com" || password != "pw" {
			t.Fatalf("unexpected credentials %s/%s", email, password)
		}
		return tok, nil
	}
	f.api.currentUserFn = identityFor(tok, &domain.Identity{ID: 7, Role: domain.RoleVeterinary})

	id, err := f.session.Login(context.Background(), "vet@example.com", "pw", false)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.ID != 7 || id.Role != domain.RoleVeterinary {
		t.Fatalf("unexpected identity %+v", id)
	}
	if f.ephemeral.values[testKeys.Ephemeral] != tok {
		t.Fatalf("ephemeral tier should hold T")
	}
	if f.durable.len() != 0 {
		t.Fatalf("durable tier should be empty")
	}
	if f.api.Bearer() != tok {
		t.Fatalf("token should be attached")
	}
}

func TestSession_Login_ReplacesOtherTier(t *testing.T) {
	f := newSessionFixture()
	f.durable.values[testKeys.Durable] = "old-remembered"
	f.api.authenticateFn = func(context.Context, string, string) (string, error) { return "fresh", nil }
	f.api.currentUserFn = identityFor("fresh", &domain.Identity{ID: 2, Role: domain.RoleAdmin})

	if _, err := f.session.Login(context.Background(), "a@b.c", "pw", false); err != nil {
		t.Fatalf("login: %v", err)
	}
	if f.durable.len() != 0 {
		t.Fatalf("old durable token must not shadow the new session token")
	}
}

func TestSession_Login_BadCredentials(t *testing.T) {
	f := newSessionFixture()
	f.api.authenticateFn = func(context.Context, string, string) (string, error) {
		return "", domain.ErrInvalidCredentials
	}

	_, err := f.session.Login(context.Background(), "a@b.c", "bad", true)
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) || !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected AuthError wrapping ErrInvalidCredentials, got %v", err)
	}
	if !f.storageEmpty() || f.api.Bearer() != "" {
		t.Fatalf("failed login must not touch state")
	}
}

func TestSession_Login_IdentityFetchFailsRollsBack(t *testing.T) {
	f := newSessionFixture()

	// Existing authenticated session.
	prevTok := signedToken(t, time.Now().Add(time.Hour))
	f.ephemeral.values[testKeys.Ephemeral] = prevTok
	f.api.currentUserFn = identityFor(prevTok, &domain.Identity{ID: 1, Role: domain.RoleUser})
	if _, err := f.session.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	f.api.authenticateFn = func(context.Context, string, string) (string, error) { return "new", nil }
	f.api.currentUserFn = func(context.Context, string) (*domain.Identity, error) {
		return nil, domain.ErrNetwork
	}

	_, err := f.session.Login(context.Background(), "a@b.c", "pw", true)
	if !IsAuthError(err) || !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected AuthError wrapping ErrNetwork, got %v", err)
	}
	if f.api.Bearer() != prevTok {
		t.Fatalf("previous bearer must be restored, got %q", f.api.Bearer())
	}
	if f.ephemeral.values[testKeys.Ephemeral] != prevTok || f.durable.len() != 0 {
		t.Fatalf("token storage must be unchanged")
	}
	if id := f.session.Identity(); id == nil || id.ID != 1 {
		t.Fatalf("previous identity must survive, got %+v", id)
	}
}

func TestSession_Login_PersistFails(t *testing.T) {
	f := newSessionFixture()
	f.durable.setErr = errors.New("redis down")
	f.api.authenticateFn = func(context.Context, string, string) (string, error) { return "tok", nil }
	f.api.currentUserFn = identityFor("tok", &domain.Identity{ID: 1, Role: domain.RoleUser})

	if _, err := f.session.Login(context.Background(), "a@b.c", "pw", true); !IsAuthError(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if f.api.Bearer() != "" || f.session.Identity() != nil {
		t.Fatalf("state must be rolled back")
	}
}

func TestSession_Login_PersistFailsKeepsPreviousToken(t *testing.T) {
	f := newSessionFixture()
	first := signedToken(t, time.Now().Add(time.Hour))
	f.api.authenticateFn = func(context.Context, string, string) (string, error) { return first, nil }
	f.api.currentUserFn = identityFor(first, &domain.Identity{ID: 1, Role: domain.RoleUser})
	if _, err := f.session.Login(context.Background(), "a@b.c", "pw", true); err != nil {
		t.Fatalf("first login: %v", err)
	}

	second := signedToken(t, time.Now().Add(2*time.Hour))
	f.durable.setErr = errors.New("redis down")
	f.api.authenticateFn = func(context.Context, string, string) (string, error) { return second, nil }
	f.api.currentUserFn = identityFor(second, &domain.Identity{ID: 2, Role: domain.RoleAdmin})

	if _, err := f.session.Login(context.Background(), "b@b.c", "pw", true); !IsAuthError(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if f.durable.values[testKeys.Durable] != first {
		t.Fatalf("previous token must stay stored, got %q", f.durable.values[testKeys.Durable])
	}
	if f.api.Bearer() != first {
		t.Fatalf("previous bearer must be restored")
	}
	if id := f.session.Identity(); id == nil || id.ID != 1 {
		t.Fatalf("previous identity must survive, got %+v", id)
	}

	// The stored token still backs the session on the next load.
	f.api.currentUserFn = identityFor(first, &domain.Identity{ID: 1, Role: domain.RoleUser})
	if id, err := f.session.Load(context.Background()); err != nil || id == nil || id.ID != 1 {
		t.Fatalf("reload: %+v %v", id, err)
	}
}

func TestSession_Logout(t *testing.T) {
	f := newSessionFixture()
	tok := signedToken(t, time.Now().Add(time.Hour))
	f.api.authenticateFn = func(context.Context, string, string) (string, error) { return tok, nil }
	f.api.currentUserFn = identityFor(tok, &domain.Identity{ID: 9, Role: domain.RoleEmployee})

	if _, err := f.session.Login(context.Background(), "e@x.com", "pw", true); err != nil {
		t.Fatalf("login: %v", err)
	}
	f.ephemeral.values[testKeys.Ephemeral] = "stray"

	f.session.Logout(context.Background())

	if !f.storageEmpty() {
		t.Fatalf("both tiers must be empty after logout")
	}
	if f.session.Identity() != nil || f.api.Bearer() != "" {
		t.Fatalf("identity and header must be cleared")
	}

	// Logging out an anonymous session is a no-op.
	f.session.Logout(context.Background())
	if !f.storageEmpty() || f.session.Identity() != nil {
		t.Fatalf("second logout changed state")
	}
}

func TestSession_Subscribe(t *testing.T) {
	f := newSessionFixture()
	f.api.authenticateFn = func(context.Context, string, string) (string, error) { return "tok", nil }
	f.api.currentUserFn = identityFor("tok", &domain.Identity{ID: 4, Role: domain.RoleAdmin})

	var seen []State
	unsubscribe := f.session.Subscribe(func(st State) { seen = append(seen, st) })

	if _, err := f.session.Login(context.Background(), "a@b.c", "pw", false); err != nil {
		t.Fatalf("login: %v", err)
	}
	f.session.Logout(context.Background())
	unsubscribe()
	_, _ = f.session.Load(context.Background())

	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}
	if !seen[0].Authenticated() || seen[0].Identity.ID != 4 {
		t.Fatalf("first notification should carry the identity: %+v", seen[0])
	}
	if seen[1].Authenticated() || !seen[1].Resolved {
		t.Fatalf("second notification should be resolved anonymous: %+v", seen[1])
	}
}

func TestSession_UpdateProfile(t *testing.T) {
	f := newSessionFixture()
	tok := signedToken(t, time.Now().Add(time.Hour))
	f.ephemeral.values[testKeys.Ephemeral] = tok

	current := &domain.Identity{ID: 5, Role: domain.RoleUser, Username: "old"}
	f.api.currentUserFn = func(_ context.Context, bearer string) (*domain.Identity, error) {
		if bearer != tok {
			return nil, domain.ErrUnauthorized
		}
		return current.Clone(), nil
	}
	f.api.updateUserFn = func(_ context.Context, id int64, u domain.ProfileUpdate) (*domain.Identity, error) {
		if id != 5 {
			t.Fatalf("unexpected user id %d", id)
		}
		current.Username = u.Username
		return current.Clone(), nil
	}

	if _, err := f.session.UpdateProfile(context.Background(), domain.ProfileUpdate{Username: "x"}); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated before load, got %v", err)
	}
	if _, err := f.session.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	id, err := f.session.UpdateProfile(context.Background(), domain.ProfileUpdate{Username: "new"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if id.Username != "new" || f.session.Identity().Username != "new" {
		t.Fatalf("identity not refreshed: %+v", id)
	}
}

func TestSession_UpdateProfile_CancelledReload(t *testing.T) {
	f := newSessionFixture()
	tok := signedToken(t, time.Now().Add(time.Hour))
	f.durable.values[testKeys.Durable] = tok
	f.api.currentUserFn = identityFor(tok, &domain.Identity{ID: 5, Role: domain.RoleUser})
	if _, err := f.session.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.api.updateUserFn = func(_ context.Context, id int64, _ domain.ProfileUpdate) (*domain.Identity, error) {
		cancel()
		return &domain.Identity{ID: id, Role: domain.RoleUser}, nil
	}
	f.api.currentUserFn = func(ctx context.Context, _ string) (*domain.Identity, error) {
		return nil, ctx.Err()
	}

	if _, err := f.session.UpdateProfile(ctx, domain.ProfileUpdate{Username: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.api.Bearer() != tok {
		t.Fatalf("bearer must stay attached after a cancelled reload, got %q", f.api.Bearer())
	}
	if id := f.session.Identity(); id == nil || id.ID != 5 || !f.session.Resolved() {
		t.Fatalf("session must keep its identity, got %+v", f.session.State())
	}
	if f.durable.values[testKeys.Durable] != tok {
		t.Fatalf("stored token must be kept")
	}
}

func TestSession_EnsureLoadedRunsOnce(t *testing.T) {
	f := newSessionFixture()
	tok := signedToken(t, time.Now().Add(time.Hour))
	f.ephemeral.values[testKeys.Ephemeral] = tok
	f.api.currentUserFn = identityFor(tok, &domain.Identity{ID: 1, Role: domain.RoleUser})

	for i := 0; i < 3; i++ {
		if err := f.session.EnsureLoaded(context.Background()); err != nil {
			t.Fatalf("ensure loaded: %v", err)
		}
	}
	if f.api.currentUserCalls != 1 {
		t.Fatalf("expected a single identity fetch, got %d", f.api.currentUserCalls)
	}
}
