package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vetclinic/portal/internal/api/middleware"
	"github.com/vetclinic/portal/internal/core/domain"
	"github.com/vetclinic/portal/internal/core/service"
)

type PageHandler struct{}

func NewPageHandler() *PageHandler { return &PageHandler{} }

type pageResponse struct {
	View   string               `json:"view"`
	Header domain.HeaderVariant `json:"header"`
	User   *domain.Identity     `json:"user,omitempty"`
}

// Show renders the shell of a portal page that passed the guard.
//
// @Summary      Page shell
// @Tags         pages
// @Produce      json
// @Param        path  path      string  true  "Portal path"
// @Success      200   {object}  pageResponse
// @Success      302
// @Router       /pages/{path} [get]
func (h *PageHandler) Show(c echo.Context) error {
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}
	path := middleware.PagePath(c)
	id := sess.Identity()
	return c.JSON(http.StatusOK, pageResponse{
		View:   path,
		Header: service.SelectHeader(id, path),
		User:   id,
	})
}
