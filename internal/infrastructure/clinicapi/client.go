// Package clinicapi is the outbound request pipeline to the clinic REST API.
//
// A Client carries a default bearer token that is attached as
// "Authorization: Bearer <token>" to every request it sends. Each portal tab
// owns its own Client (see Fork) so tabs never see each other's header.
package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vetclinic/portal/internal/core/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// Client implements ports.ClinicAPI, ports.ChatPoster and ports.ConversationGate.
type Client struct {
	base *url.URL
	http *http.Client
	now  func() time.Time

	mu     sync.RWMutex
	bearer string
}

// New returns a Client for baseURL. A nil httpClient gets a 10s timeout client.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("clinicapi: invalid base url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{base: u, http: httpClient, now: time.Now}, nil
}

// Fork returns a Client sharing the transport but with no default header.
func (c *Client) Fork() *Client {
	return &Client{base: c.base, http: c.http, now: c.now}
}

// BaseURL is the clinic API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

func (c *Client) SetBearer(token string) {
	c.mu.Lock()
	c.bearer = token
	c.mu.Unlock()
}

func (c *Client) ClearBearer() { c.SetBearer("") }

func (c *Client) Bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bearer
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Authenticate posts credentials to /auth/login. 400/401/403 map to
// domain.ErrInvalidCredentials.
func (c *Client) Authenticate(ctx context.Context, email, password string) (string, error) {
	var resp loginResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", nil, loginRequest{Email: email, Password: password}, &resp, "")
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusBadRequest || se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
			return "", fmt.Errorf("%w: %s", domain.ErrInvalidCredentials, se.Body)
		}
		return "", err
	}
	return resp.Token, nil
}

// CurrentUser fetches /users/me with the default bearer. The _t parameter
// defeats intermediary caches.
func (c *Client) CurrentUser(ctx context.Context) (*domain.Identity, error) {
	q := url.Values{"_t": {strconv.FormatInt(c.now().UnixMilli(), 10)}}
	var id domain.Identity
	if err := c.doJSON(ctx, http.MethodGet, "/users/me", q, nil, &id, c.Bearer()); err != nil {
		return nil, c.authFailure(err)
	}
	return &id, nil
}

// UpdateUser puts the profile fields to /users/{id}.
func (c *Client) UpdateUser(ctx context.Context, id int64, update domain.ProfileUpdate) (*domain.Identity, error) {
	var out domain.Identity
	path := "/users/" + strconv.FormatInt(id, 10)
	if err := c.doJSON(ctx, http.MethodPut, path, nil, update, &out, c.Bearer()); err != nil {
		return nil, c.authFailure(err)
	}
	return &out, nil
}

// PostChatMessage posts text as text/plain to /chat/{conversationID} using
// token rather than the default bearer.
func (c *Client) PostChatMessage(ctx context.Context, token, conversationID, text string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/chat/"+url.PathEscape(conversationID), nil, strings.NewReader(text), token)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return c.authFailure(c.do(req, nil))
}

// ConversationAccess fetches /consultas/{conversationID} with token. The clinic
// API only shows a consultation to its participants, so 403 and 404 map to
// domain.ErrForbidden.
func (c *Client) ConversationAccess(ctx context.Context, token, conversationID string) error {
	err := c.doJSON(ctx, http.MethodGet, "/consultas/"+url.PathEscape(conversationID), nil, nil, nil, token)
	var se *StatusError
	if errors.As(err, &se) && (se.Code == http.StatusForbidden || se.Code == http.StatusNotFound) {
		return fmt.Errorf("%w: consultation %s", domain.ErrForbidden, conversationID)
	}
	return c.authFailure(err)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any, token string) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("clinicapi: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, query, body, token)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, token string) (*http.Request, error) {
	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("clinicapi: build %s %s: %w", method, path, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", domain.ErrNetwork, req.Method, req.URL.Path, err)
	}
	return nil
}

// authFailure maps 401/403 to domain.ErrUnauthorized.
func (c *Client) authFailure(err error) error {
	var se *StatusError
	if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, se.Error())
	}
	return err
}
