package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vetclinic/portal/internal/api/metrics"
	"github.com/vetclinic/portal/internal/api/middleware"
	"github.com/vetclinic/portal/internal/core/domain"
	"github.com/vetclinic/portal/internal/core/service"
	"github.com/vetclinic/portal/pkg/logger"
)

// TabDropper discards a tab's in-memory session.
type TabDropper interface {
	Drop(tabID string)
}

type AuthHandler struct {
	tabs TabDropper
}

func NewAuthHandler(tabs TabDropper) *AuthHandler {
	return &AuthHandler{tabs: tabs}
}

type loginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

// sessionResponse describes the tab's session as the browser needs it.
type sessionResponse struct {
	Resolved      bool                 `json:"resolved"`
	Authenticated bool                 `json:"authenticated"`
	User          *domain.Identity     `json:"user,omitempty"`
	Header        domain.HeaderVariant `json:"header"`
	Redirect      string               `json:"redirect,omitempty"`
}

func newSessionResponse(st service.State, path string) sessionResponse {
	return sessionResponse{
		Resolved:      st.Resolved,
		Authenticated: st.Authenticated(),
		User:          st.Identity,
		Header:        service.SelectHeader(st.Identity, path),
	}
}

// Login exchanges credentials for a session on this tab.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}

	id, err := sess.Login(c.Request().Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		f := loginFailure(err)
		metrics.LoginAttemptsTotal.WithLabelValues(f.outcome).Inc()
		if f.status == http.StatusInternalServerError {
			return err
		}
		log := logger.Named("auth")
		log.Warn().Err(err).Str("outcome", f.outcome).Msg("login failed")
		return c.JSON(f.status, map[string]string{"error": f.message})
	}
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()

	landing := id.Role.LandingPath()
	resp := newSessionResponse(sess.State(), landing)
	resp.Redirect = landing
	return c.JSON(http.StatusOK, resp)
}

type failure struct {
	status  int
	outcome string
	message string
}

// loginFailure classifies a login error. Only the fixed message reaches the
// browser; upstream bodies and transport details stay in the log.
func loginFailure(err error) failure {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return failure{http.StatusUnauthorized, "invalid_credentials", "invalid email or password"}
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrUnknownRole):
		return failure{http.StatusUnauthorized, "unauthorized", "session rejected by clinic api"}
	case errors.Is(err, domain.ErrNetwork):
		return failure{http.StatusBadGateway, "network", "clinic api unavailable"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return failure{http.StatusGatewayTimeout, "cancelled", "login timed out"}
	}
	return failure{http.StatusInternalServerError, "error", ""}
}

// Logout ends the session and sends the tab back to the root with a clean
// in-memory state.
//
// @Summary      Logout
// @Tags         auth
// @Success      303
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}
	sess.Logout(c.Request().Context())
	h.tabs.Drop(middleware.TabID(c))
	return c.Redirect(http.StatusSeeOther, "/")
}

// Session reports the tab's current session and the header for ?path=.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Param        path  query     string  false  "Portal path used to pick the header"
// @Success      200   {object}  sessionResponse
// @Router       /session [get]
func (h *AuthHandler) Session(c echo.Context) error {
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}
	path := c.QueryParam("path")
	if path == "" {
		path = "/"
	}
	return c.JSON(http.StatusOK, newSessionResponse(sess.State(), path))
}
