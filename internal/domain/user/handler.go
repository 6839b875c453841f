package user

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docreg/docreg/internal/platform/auth"
)

type Handler struct {
	svc      *Service
	secret   []byte
	tokenTTL time.Duration
}

func NewHandler(svc *Service, secret []byte, tokenTTL time.Duration) *Handler {
	return &Handler{svc: svc, secret: secret, tokenTTL: tokenTTL}
}

// RegisterRoutes wires the account endpoints. Login lives on the public
// group; everything else sits behind the JWT middleware.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/auth/login", h.Login)
	api.GET("/auth/me", h.Me)

	admin := api.Group("/users", auth.RequireRole("admin"))
	admin.POST("", h.CreateUser)
	admin.GET("", h.ListUsers)
	admin.PATCH("/:id/active", h.SetActive)
}

func userError(err error) error {
	switch {
	case errors.Is(err, ErrUsernameTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUsernameRequired), errors.Is(err, ErrPasswordTooShort),
		errors.Is(err, ErrInvalidRole), errors.Is(err, ErrDoctorLinkRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	token, err := auth.IssueToken(h.secret, auth.TokenInput{
		UserID:   u.ID.String(),
		Username: u.Username,
		Role:     u.Role,
		ScopeID:  u.ScopeID(),
	}, h.tokenTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, User: u})
}

func (h *Handler) Me(c echo.Context) error {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	u, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return userError(err)
	}
	return c.JSON(http.StatusOK, u)
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Location string `json:"location"`
	DoctorID string `json:"doctor_id"`
}

func (h *Handler) CreateUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in := CreateInput{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		FullName: req.FullName,
		Email:    req.Email,
		Location: req.Location,
	}
	if req.DoctorID != "" {
		id, err := uuid.Parse(req.DoctorID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		in.DoctorID = &id
	}
	u, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return userError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	users, err := h.svc.List(c.Request().Context())
	if err != nil {
		return userError(err)
	}
	return c.JSON(http.StatusOK, users)
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) SetActive(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req activeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetActive(c.Request().Context(), id, req.Active); err != nil {
		return userError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
