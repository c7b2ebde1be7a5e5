package handler

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vetclinic/portal/internal/api/middleware"
	"github.com/vetclinic/portal/internal/core/domain"
	"github.com/vetclinic/portal/internal/core/ports"
	"github.com/vetclinic/portal/internal/core/service"
)

type stubClinicAPI struct {
	mu     sync.Mutex
	bearer string

	authenticateFn func(ctx context.Context, email, password string) (string, error)
	currentUserFn  func(ctx context.Context) (*domain.Identity, error)
	updateUserFn   func(ctx context.Context, id int64, update domain.ProfileUpdate) (*domain.Identity, error)
}

func (a *stubClinicAPI) Authenticate(ctx context.Context, email, password string) (string, error) {
	return a.authenticateFn(ctx, email, password)
}

func (a *stubClinicAPI) CurrentUser(ctx context.Context) (*domain.Identity, error) {
	return a.currentUserFn(ctx)
}

func (a *stubClinicAPI) UpdateUser(ctx context.Context, id int64, update domain.ProfileUpdate) (*domain.Identity, error) {
	if a.updateUserFn == nil {
		return nil, errors.New("update not stubbed")
	}
	return a.updateUserFn(ctx, id, update)
}

func (a *stubClinicAPI) SetBearer(token string) { a.mu.Lock(); a.bearer = token; a.mu.Unlock() }
func (a *stubClinicAPI) ClearBearer()           { a.SetBearer("") }
func (a *stubClinicAPI) Bearer() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bearer
}

type stubTokens struct {
	token   string
	durable bool
}

func (s *stubTokens) Save(_ context.Context, token string, durable bool) error {
	s.token, s.durable = token, durable
	return nil
}

func (s *stubTokens) Read(context.Context) (string, bool, error) {
	return s.token, s.token != "", nil
}

func (s *stubTokens) Clear(context.Context) error {
	s.token, s.durable = "", false
	return nil
}

// apiFor answers CurrentUser with id while a bearer is attached.
func apiFor(id *domain.Identity) *stubClinicAPI {
	api := &stubClinicAPI{}
	api.authenticateFn = func(context.Context, string, string) (string, error) { return "tok", nil }
	api.currentUserFn = func(context.Context) (*domain.Identity, error) {
		if api.Bearer() == "" || id == nil {
			return nil, domain.ErrUnauthorized
		}
		return id, nil
	}
	return api
}

func newTestSession(api ports.ClinicAPI, tokens ports.TokenStore) *service.Session {
	return service.NewSession(api, tokens, zerolog.Nop())
}

func loggedIn(id *domain.Identity) *service.Session {
	s := newTestSession(apiFor(id), &stubTokens{})
	if _, err := s.Login(context.Background(), "x@y.z", "pw", false); err != nil {
		panic(err)
	}
	return s
}

func anonymous() *service.Session {
	s := newTestSession(apiFor(nil), &stubTokens{})
	_, _ = s.Load(context.Background())
	return s
}

type fixedSource struct{ session *service.Session }

func (f fixedSource) Session(context.Context, string, string) (*service.Session, error) {
	return f.session, nil
}

// serve runs h behind the Session middleware and returns the recorder.
func serve(sess *service.Session, method, target, body string, h echo.HandlerFunc, params ...string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	e.Validator = NewValidator()

	var req = httptest.NewRequest(method, target, nil)
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if len(params) > 0 {
		names, values := make([]string, 0, len(params)/2), make([]string, 0, len(params)/2)
		for i := 0; i+1 < len(params); i += 2 {
			names = append(names, params[i])
			values = append(values, params[i+1])
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}

	err := middleware.Session(fixedSource{sess}, middleware.CookieOptions{})(h)(c)
	return rec, err
}

type stubDropper struct{ dropped []string }

func (d *stubDropper) Drop(tabID string) { d.dropped = append(d.dropped, tabID) }

type stubChatService struct {
	historyFn func(ctx context.Context, conversationID string, limit int64) ([]domain.ChatMessage, error)
	watchFn   func(ctx context.Context, conversationID string) (<-chan domain.ChatMessage, error)
	sendFn    func(ctx context.Context, sender *domain.Identity, token string, in ports.SendMessageInput) error
}

func (s *stubChatService) History(ctx context.Context, conversationID string, limit int64) ([]domain.ChatMessage, error) {
	return s.historyFn(ctx, conversationID, limit)
}

func (s *stubChatService) Watch(ctx context.Context, conversationID string) (<-chan domain.ChatMessage, error) {
	return s.watchFn(ctx, conversationID)
}

func (s *stubChatService) Send(ctx context.Context, sender *domain.Identity, token string, in ports.SendMessageInput) error {
	return s.sendFn(ctx, sender, token, in)
}
