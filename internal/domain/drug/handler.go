package drug

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Khr29/MediScanQR/internal/platform/auth"
	"github.com/Khr29/MediScanQR/internal/platform/httperr"
	"github.com/Khr29/MediScanQR/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the catalog endpoints on an authenticated group.
// Reads are open to every role; additions are doctor-only.
func (h *Handler) RegisterRoutes(authed *echo.Group) {
	authed.GET("/drugs", h.List)
	authed.GET("/drugs/:id", h.GetByID)
	authed.POST("/drugs", h.Add, auth.RequireRole(auth.RoleDoctor))
}

func (h *Handler) Add(c echo.Context) error {
	var in AddInput
	if err := c.Bind(&in); err != nil {
		return httperr.InvalidInput("request body is not valid JSON")
	}
	d, err := h.svc.Add(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Drug{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.InvalidInput("invalid drug id")
	}
	d, err := h.svc.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}
