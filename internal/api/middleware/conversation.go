package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/vetclinic/portal/internal/core/domain"
	"github.com/vetclinic/portal/internal/core/ports"
)

// RequireParticipant lets a request through only when the session's user takes
// part in the consultation named by the param path parameter. It runs after
// RequireIdentity.
func RequireParticipant(gate ports.ConversationGate, param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := SessionFrom(c)
			if sess == nil || sess.Token() == "" {
				return domain.ErrNotAuthenticated
			}
			if err := gate.ConversationAccess(c.Request().Context(), sess.Token(), c.Param(param)); err != nil {
				return err
			}
			return next(c)
		}
	}
}
