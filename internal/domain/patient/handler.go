package patient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docreg/docreg/internal/platform/auth"
	"github.com/docreg/docreg/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.RequireRole("doctor", "assistant")

	g := api.Group("", staff)
	g.GET("/patients", h.ListPatients)
	g.POST("/patients", h.CreatePatient)
	g.POST("/patients/resolve", h.ResolvePatient)
	g.GET("/patients/:id", h.GetPatient)
	g.PUT("/patients/:id", h.UpdatePatient)

	// Assistants cannot delete patient records.
	api.DELETE("/patients/:id", h.DeletePatient, auth.RequireRole("doctor"))
}

type patientRequest struct {
	FullName    string `json:"full_name"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"date_of_birth"`
}

func (req *patientRequest) apply(p *Patient) error {
	p.FullName = strings.TrimSpace(req.FullName)
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		p.Phone = &phone
	} else {
		p.Phone = nil
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		return err
	}
	p.DateOfBirth = dob
	return nil
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}

// requestScope resolves the doctor scope a request acts in. Doctors and
// assistants carry it in their token; admins name one doctor with the
// doctor_id query parameter. uuid.Nil means unrestricted (admin without
// a filter), which read paths accept and write paths reject.
func requestScope(c echo.Context) (uuid.UUID, error) {
	if s := auth.ScopeFromContext(c.Request().Context()); s != "" {
		return uuid.Parse(s)
	}
	if param := c.QueryParam("doctor_id"); param != "" {
		return uuid.Parse(param)
	}
	return uuid.Nil, nil
}

func requestUserID(c echo.Context) uuid.UUID {
	uid, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil
	}
	return uid
}

// writeError maps service failures onto HTTP responses. A blocked write
// answers 409 and carries the existing record so the caller can link to
// it.
func writeError(c echo.Context, err error) error {
	var dup *DuplicateError
	switch {
	case errors.As(err, &dup):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":    "duplicate_patient",
			"message":  dup.Error(),
			"existing": dup.Existing,
		})
	case errors.Is(err, ErrNameRequired) || errors.Is(err, ErrDoctorRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) CreatePatient(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil || scope == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := &Patient{DoctorID: scope}
	if err := req.apply(p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), p); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	scope, err := requestScope(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	p, err := h.svc.Get(c.Request().Context(), id, scope)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil || scope == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), scope, requestUserID(c), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	scope, err := requestScope(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Get(c.Request().Context(), id, scope)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if err := req.apply(p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Update(c.Request().Context(), p); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	scope, err := requestScope(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	if err := h.svc.Delete(c.Request().Context(), id, scope); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type resolveRequest struct {
	FullName  string `json:"full_name"`
	Phone     string `json:"phone"`
	ExcludeID string `json:"exclude_id"`
}

// ResolvePatient runs the duplicate check without writing anything, so
// clients can warn before submitting a form.
func (h *Handler) ResolvePatient(c echo.Context) error {
	scope, err := requestScope(c)
	if err != nil || scope == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in := ResolveInput{DoctorID: scope, FullName: req.FullName, Phone: req.Phone}
	if req.ExcludeID != "" {
		ex, err := uuid.Parse(req.ExcludeID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid exclude_id")
		}
		in.ExcludeID = &ex
	}
	verdict, err := h.svc.Resolve(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, verdict)
}
