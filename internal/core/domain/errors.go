package domain

import "errors"

var (
	// ErrTokenInvalid covers tokens that are expired or cannot be decoded.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrUnauthorized is returned when the clinic API rejects the bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNetwork wraps transport failures and unexpected upstream statuses.
	ErrNetwork = errors.New("clinic api unreachable")
	// ErrInvalidCredentials is returned by the clinic API for a bad email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownRole        = errors.New("unknown role")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrForbidden          = errors.New("access forbidden")
	ErrDuplicateMessage   = errors.New("duplicate chat message")
	ErrEmptyMessage       = errors.New("empty chat message")
	ErrChatUnavailable    = errors.New("chat delivery unavailable")
)

// AuthError is the single failure type surfaced by the login flow.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return "auth: " + e.Op + ": " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }
