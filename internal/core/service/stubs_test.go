package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vetclinic/portal/internal/core/domain"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubTier struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
	delErr error
}

func newStubTier() *stubTier {
	return &stubTier{values: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (t *stubTier) Get(_ context.Context, key string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.getErr != nil {
		return "", false, t.getErr
	}
	v, ok := t.values[key]
	return v, ok, nil
}

func (t *stubTier) Set(_ context.Context, key, value string, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.setErr != nil {
		return t.setErr
	}
	t.values[key] = value
	t.ttls[key] = ttl
	return nil
}

func (t *stubTier) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.delErr != nil {
		return t.delErr
	}
	delete(t.values, key)
	return nil
}

func (t *stubTier) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.values)
}

type stubClinicAPI struct {
	mu     sync.Mutex
	bearer string

	authenticateFn func(ctx context.Context, email, password string) (string, error)
	currentUserFn  func(ctx context.Context, bearer string) (*domain.Identity, error)
	updateUserFn   func(ctx context.Context, id int64, update domain.ProfileUpdate) (*domain.Identity, error)

	currentUserCalls int
}

func (a *stubClinicAPI) Authenticate(ctx context.Context, email, password string) (string, error) {
	if a.authenticateFn == nil {
		return "", errors.New("authenticate not stubbed")
	}
	return a.authenticateFn(ctx, email, password)
}

func (a *stubClinicAPI) CurrentUser(ctx context.Context) (*domain.Identity, error) {
	a.mu.Lock()
	a.currentUserCalls++
	bearer := a.bearer
	a.mu.Unlock()
	if a.currentUserFn == nil {
		return nil, errors.New("current user not stubbed")
	}
	return a.currentUserFn(ctx, bearer)
}

func (a *stubClinicAPI) UpdateUser(ctx context.Context, id int64, update domain.ProfileUpdate) (*domain.Identity, error) {
	if a.updateUserFn == nil {
		return nil, errors.New("update user not stubbed")
	}
	return a.updateUserFn(ctx, id, update)
}

func (a *stubClinicAPI) SetBearer(token string) {
	a.mu.Lock()
	a.bearer = token
	a.mu.Unlock()
}

func (a *stubClinicAPI) ClearBearer() { a.SetBearer("") }

func (a *stubClinicAPI) Bearer() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bearer
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var testKeys = KeysFor("tab-1", "device-1")

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "7",
		"exp": exp.Unix(),
	}).SignedString([]byte("upstream-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

// identityFor returns a CurrentUser stub that answers id only for token.
func identityFor(token string, id *domain.Identity) func(context.Context, string) (*domain.Identity, error) {
	return func(_ context.Context, bearer string) (*domain.Identity, error) {
		if bearer != token {
			return nil, domain.ErrUnauthorized
		}
		return id.Clone(), nil
	}
}
