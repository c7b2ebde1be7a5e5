package handler

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/vetclinic/portal/internal/api/middleware"
	"github.com/vetclinic/portal/internal/core/service"
)

var errNoSession = errors.New("session middleware not installed")

// ctxSession returns the tab session injected by the Session middleware.
// Its absence is a wiring bug, not a client error.
func ctxSession(c echo.Context) (*service.Session, error) {
	sess := middleware.SessionFrom(c)
	if sess == nil {
		return nil, errNoSession
	}
	return sess, nil
}
