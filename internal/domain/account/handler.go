package account

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Khr29/MediScanQR/internal/platform/auth"
	"github.com/Khr29/MediScanQR/internal/platform/httperr"
)

type Handler struct {
	svc    *Service
	issuer *auth.Issuer
}

func NewHandler(svc *Service, issuer *auth.Issuer) *Handler {
	return &Handler{svc: svc, issuer: issuer}
}

// RegisterRoutes mounts the public credential endpoints and the
// authenticated profile endpoint.
func (h *Handler) RegisterRoutes(public, authed *echo.Group) {
	public.POST("/users/register", h.Register)
	public.POST("/users/login", h.Login)
	authed.GET("/users/profile", h.Profile)
}

// authResponse is the shape both register and login return: the public
// account fields plus a fresh token.
type authResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Token string `json:"token"`
}

func (h *Handler) authResponseFor(a *Account) (*authResponse, error) {
	token, err := h.issuer.Issue(a.ID, a.Role)
	if err != nil {
		return nil, httperr.Internal("failed to issue token", err)
	}
	return &authResponse{
		ID:    a.ID.String(),
		Name:  a.Name,
		Email: a.Email,
		Role:  string(a.Role),
		Token: token,
	}, nil
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return httperr.InvalidInput("request body is not valid JSON")
	}
	a, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	resp, err := h.authResponseFor(a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Login(c echo.Context) error {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&in); err != nil {
		return httperr.InvalidInput("request body is not valid JSON")
	}
	a, err := h.svc.Login(c.Request().Context(), in.Email, in.Password)
	if err != nil {
		return err
	}
	resp, err := h.authResponseFor(a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Profile(c echo.Context) error {
	ident, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return httperr.Unauthenticated("authentication required")
	}
	a, err := h.svc.GetByID(c.Request().Context(), ident.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}
