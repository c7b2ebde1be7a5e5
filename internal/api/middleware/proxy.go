package middleware

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

// AttachBearer replaces whatever Authorization the browser sent with the
// tab's bearer token, and strips portal cookies before the request leaves.
func AttachBearer() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			req.Header.Del(echo.HeaderAuthorization)
			req.Header.Del("Cookie")
			if sess := SessionFrom(c); sess != nil {
				if token := sess.Token(); token != "" {
					req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
				}
			}
			return next(c)
		}
	}
}

// ClinicProxy forwards /api/* to the clinic API with the prefix stripped.
func ClinicProxy(target *url.URL, transport http.RoundTripper) echo.MiddlewareFunc {
	return echomiddleware.ProxyWithConfig(echomiddleware.ProxyConfig{
		Balancer: echomiddleware.NewRoundRobinBalancer([]*echomiddleware.ProxyTarget{
			{Name: "clinic-api", URL: target},
		}),
		Rewrite: map[string]string{
			"/api/*": "/$1",
		},
		Transport: transport,
	})
}
