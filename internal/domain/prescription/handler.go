package prescription

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
	// relaxedMode lets the create endpoint accept anonymous requests in
	// development. config.Validate refuses it in production.
	relaxedMode bool
}

func NewHandler(svc *Service, relaxedMode bool) *Handler {
	return &Handler{svc: svc, relaxedMode: relaxedMode}
}

// RegisterRoutes mounts the prescription endpoints. createGroup carries
// optional authentication when relaxed mode is on and full authentication
// otherwise; authed always requires a verified identity.
func (h *Handler) RegisterRoutes(createGroup, authed *echo.Group) {
	createGroup.POST("/prescriptions", h.Create)
	authed.GET("/prescriptions", h.List,
		auth.RequireRole(auth.RoleDoctor, auth.RolePharmacist, auth.RoleAdmin))
	authed.GET("/prescriptions/:id", h.GetByID,
		auth.RequireRole(auth.RoleDoctor, auth.RolePharmacist, auth.RoleAdmin))
	authed.POST("/prescriptions/:id/dispense", h.Dispense,
		auth.RequireRole(auth.RolePharmacist, auth.RoleAdmin))
	authed.POST("/prescriptions/scan", h.Scan,
		auth.RequireRole(auth.RolePharmacist, auth.RoleAdmin))
}

func (h *Handler) Create(c echo.Context) error {
	ident, ok := auth.IdentityFromContext(c.Request().Context())
	switch {
	case ok:
		if ident.Role != auth.RoleDoctor {
			return httperr.Forbidden("only doctors can create prescriptions")
		}
	case h.relaxedMode:
		// Anonymous creation, development only. The record carries no doctor.
	default:
		return httperr.Unauthenticated("authentication required")
	}

	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return httperr.InvalidInput("request body is not valid JSON")
	}

	var doctorID *uuid.UUID
	if ok {
		id := ident.AccountID
		doctorID = &id
	}
	p, err := h.svc.Create(c.Request().Context(), doctorID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) List(c echo.Context) error {
	ident, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return httperr.Unauthenticated("authentication required")
	}
	pg := pagination.FromContext(c)

	var (
		items []*Prescription
		total int
		err   error
	)
	if ident.Role == auth.RoleDoctor {
		items, total, err = h.svc.ListForDoctor(c.Request().Context(), ident.AccountID, pg.Limit, pg.Offset)
	} else {
		items, total, err = h.svc.ListAll(c.Request().Context(), pg.Limit, pg.Offset)
	}
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Prescription{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetByID(c echo.Context) error {
	ident, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return httperr.Unauthenticated("authentication required")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.InvalidInput("invalid prescription id")
	}
	p, err := h.svc.GetByID(c.Request().Context(), ident, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Dispense(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.InvalidInput("invalid prescription id")
	}
	p, err := h.svc.Dispense(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Scan(c echo.Context) error {
	ident, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return httperr.Unauthenticated("authentication required")
	}
	var in struct {
		Payload string `json:"payload"`
	}
	if err := c.Bind(&in); err != nil {
		return httperr.InvalidInput("request body is not valid JSON")
	}
	p, err := h.svc.Scan(c.Request().Context(), ident, in.Payload)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
