package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vetclinic/portal/internal/core/service"
)

const (
	TabCookie    = "portal_tab"
	DeviceCookie = "portal_device"

	sessionKey = "session"
	tabKey     = "tab_id"
	deviceKey  = "device_id"
)

// SessionSource hands out the session of a tab, loading it on first use.
type SessionSource interface {
	Session(ctx context.Context, tabID, deviceID string) (*service.Session, error)
}

// CookieOptions controls the tab and device cookies.
type CookieOptions struct {
	Secure       bool
	Domain       string
	DeviceMaxAge time.Duration
}

// Session resolves the tab and device cookies, issuing new ones when absent,
// and injects the tab's session into the context.
func Session(src SessionSource, opts CookieOptions) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tabID := cookieValue(c, TabCookie)
			if tabID == "" {
				tabID = uuid.NewString()
				c.SetCookie(opts.cookie(TabCookie, tabID, 0))
			}
			deviceID := cookieValue(c, DeviceCookie)
			if deviceID == "" {
				deviceID = uuid.NewString()
				c.SetCookie(opts.cookie(DeviceCookie, deviceID, opts.DeviceMaxAge))
			}

			sess, err := src.Session(c.Request().Context(), tabID, deviceID)
			if err != nil {
				// Only a cancelled request gets here; the client is gone.
				return err
			}

			c.Set(sessionKey, sess)
			c.Set(tabKey, tabID)
			c.Set(deviceKey, deviceID)
			return next(c)
		}
	}
}

// SessionFrom returns the session injected by Session, or nil.
func SessionFrom(c echo.Context) *service.Session {
	s, _ := c.Get(sessionKey).(*service.Session)
	return s
}

// TabID returns the tab id injected by Session.
func TabID(c echo.Context) string {
	id, _ := c.Get(tabKey).(string)
	return id
}

func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(ck.Value); err != nil {
		return ""
	}
	return ck.Value
}

func (o CookieOptions) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   o.Domain,
		MaxAge:   int(maxAge.Seconds()),
		Secure:   o.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
