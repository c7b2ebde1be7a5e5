package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vetclinic/portal/internal/core/domain"
	"github.com/vetclinic/portal/internal/core/service"
)

type stubAPI struct {
	bearer   string
	identity *domain.Identity
}

func (a *stubAPI) Authenticate(context.Context, string, string) (string, error) {
	return "tok-" + string(a.identity.Role), nil
}

func (a *stubAPI) CurrentUser(context.Context) (*domain.Identity, error) {
	if a.identity == nil || a.bearer == "" {
		return nil, domain.ErrUnauthorized
	}
	return a.identity, nil
}

func (a *stubAPI) UpdateUser(context.Context, int64, domain.ProfileUpdate) (*domain.Identity, error) {
	return nil, errors.New("not stubbed")
}

func (a *stubAPI) SetBearer(token string) { a.bearer = token }
func (a *stubAPI) ClearBearer()           { a.bearer = "" }
func (a *stubAPI) Bearer() string         { return a.bearer }

type stubTokens struct{ token string }

func (s *stubTokens) Save(_ context.Context, token string, _ bool) error {
	s.token = token
	return nil
}

func (s *stubTokens) Read(context.Context) (string, bool, error) {
	return s.token, s.token != "", nil
}

func (s *stubTokens) Clear(context.Context) error {
	s.token = ""
	return nil
}

func unresolvedSession() *service.Session {
	return service.NewSession(&stubAPI{}, &stubTokens{}, zerolog.Nop())
}

func anonymousSession(t *testing.T) *service.Session {
	t.Helper()
	s := unresolvedSession()
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func sessionAs(t *testing.T, role domain.Role) *service.Session {
	t.Helper()
	s := service.NewSession(&stubAPI{identity: &domain.Identity{ID: 7, Role: role}}, &stubTokens{}, zerolog.Nop())
	if _, err := s.Login(context.Background(), "a@b.c", "pw", false); err != nil {
		t.Fatalf("login: %v", err)
	}
	return s
}

// fixedSource always returns the same session and records what it was asked.
type fixedSource struct {
	session  *service.Session
	err      error
	tabID    string
	deviceID string
}

func (f *fixedSource) Session(_ context.Context, tabID, deviceID string) (*service.Session, error) {
	f.tabID, f.deviceID = tabID, deviceID
	return f.session, f.err
}
