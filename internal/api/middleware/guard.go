package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vetclinic/portal/internal/core/domain"
	"github.com/vetclinic/portal/internal/core/service"
)

// PagePath returns the portal path addressed by a /pages/* request.
func PagePath(c echo.Context) string {
	return "/" + strings.TrimPrefix(c.Param("*"), "/")
}

// GuardPages gates page navigations with routes. Unguarded paths pass
// through; a pending session renders the loading placeholder and a refused
// navigation is redirected home.
func GuardPages(routes domain.RouteTable, observe func(service.Decision)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			required, guarded := routes.Lookup(PagePath(c))
			if !guarded {
				return next(c)
			}

			switch decide(c, required, observe) {
			case service.DecisionLoading:
				return c.JSON(http.StatusOK, map[string]string{"status": "loading"})
			case service.DecisionRedirectHome:
				return c.Redirect(http.StatusFound, "/")
			}
			return next(c)
		}
	}
}

// RequireIdentity gates API endpoints. Refusals become errors for the
// HTTP error handler instead of redirects.
func RequireIdentity(required domain.Requirement, observe func(service.Decision)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch decide(c, required, observe) {
			case service.DecisionLoading:
				c.Response().Header().Set("Retry-After", "1")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "session loading")
			case service.DecisionRedirectHome:
				if sess := SessionFrom(c); sess != nil && sess.Identity() != nil {
					return domain.ErrForbidden
				}
				return domain.ErrNotAuthenticated
			}
			return next(c)
		}
	}
}

func decide(c echo.Context, required domain.Requirement, observe func(service.Decision)) service.Decision {
	var (
		identity *domain.Identity
		resolved bool
	)
	if sess := SessionFrom(c); sess != nil {
		st := sess.State()
		identity, resolved = st.Identity, st.Resolved
	}
	d := service.Guard(required, identity, resolved)
	if observe != nil {
		observe(d)
	}
	return d
}
