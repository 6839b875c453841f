package visit

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docreg/docreg/internal/domain/patient"
	"github.com/docreg/docreg/internal/platform/auth"
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
	g.GET("/patients/:id/visits", h.ListVisits)
	g.POST("/patients/:id/visits", h.CreateVisit)
	g.GET("/visits/:id", h.GetVisit)
	g.POST("/visits/:id/diagnoses", h.AddDiagnosis)

	api.DELETE("/visits/:id", h.DeleteVisit, auth.RequireRole("doctor"))
}

type visitRequest struct {
	VisitDate string `json:"visit_date"`
	Clinician string `json:"clinician"`
	Notes     string `json:"notes"`
}

var visitDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseVisitDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range visitDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid visit date %q", s)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func scopeAndUser(c echo.Context) (uuid.UUID, *uuid.UUID) {
	var scope uuid.UUID
	if s := auth.ScopeFromContext(c.Request().Context()); s != "" {
		scope, _ = uuid.Parse(s)
	} else if param := c.QueryParam("doctor_id"); param != "" {
		scope, _ = uuid.Parse(param)
	}
	if uid, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
		return scope, &uid
	}
	return scope, nil
}

func visitError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "visit or patient not found")
	case errors.Is(err, ErrDescriptionRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) CreateVisit(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req visitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	when, err := parseVisitDate(req.VisitDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	scope, userID := scopeAndUser(c)
	v := &Visit{
		PatientID: patientID,
		VisitDate: when,
		Clinician: optional(req.Clinician),
		Notes:     optional(req.Notes),
		CreatedBy: userID,
	}
	if err := h.svc.CreateVisit(c.Request().Context(), scope, v); err != nil {
		return visitError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	scope, _ := scopeAndUser(c)
	v, err := h.svc.GetVisit(c.Request().Context(), scope, id)
	if err != nil {
		return visitError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListVisits(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	scope, _ := scopeAndUser(c)
	visits, err := h.svc.ListVisits(c.Request().Context(), scope, patientID)
	if err != nil {
		return visitError(err)
	}
	return c.JSON(http.StatusOK, visits)
}

type diagnosisRequest struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (h *Handler) AddDiagnosis(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	var req diagnosisRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	scope, _ := scopeAndUser(c)
	d := &Diagnosis{
		VisitID:     visitID,
		Code:        optional(req.Code),
		Description: req.Description,
	}
	if err := h.svc.AddDiagnosis(c.Request().Context(), scope, d); err != nil {
		return visitError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) DeleteVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	scope, _ := scopeAndUser(c)
	if err := h.svc.DeleteVisit(c.Request().Context(), scope, id); err != nil {
		return visitError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
