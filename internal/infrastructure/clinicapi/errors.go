package clinicapi

import (
	"fmt"

	"github.com/vetclinic/portal/internal/core/domain"
)

// StatusError is a non-2xx answer from the clinic API. It unwraps to
// domain.ErrNetwork so callers that only care about reachability can use errors.Is.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("clinicapi: %s %s: status %d", e.Method, e.Path, e.Code)
}

func (e *StatusError) Unwrap() error { return domain.ErrNetwork }
