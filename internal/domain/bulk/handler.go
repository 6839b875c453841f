package bulk

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docreg/docreg/internal/domain/patient"
	"github.com/docreg/docreg/internal/domain/visit"
	"github.com/docreg/docreg/internal/platform/auth"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	rec      *Reconciler
	patients patient.PatientRepository
	visits   visit.VisitRepository
	maxRows  int
}

func NewHandler(rec *Reconciler, patients patient.PatientRepository, visits visit.VisitRepository, maxRows int) *Handler {
	return &Handler{rec: rec, patients: patients, visits: visits, maxRows: maxRows}
}

// RegisterRoutes wires the batch endpoints. Assistants get neither: imports
// write records and exports carry the whole scope out of the system.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("doctor"))
	g.POST("/patients/import", h.ImportPatients)
	g.GET("/patients/export", h.ExportPatients)
}

// requestScope is the doctor whose records the batch touches: the token's
// scope, or an explicit doctor_id filter for admins.
func requestScope(c echo.Context) uuid.UUID {
	if s := auth.ScopeFromContext(c.Request().Context()); s != "" {
		if id, err := uuid.Parse(s); err == nil {
			return id
		}
	}
	if param := c.QueryParam("doctor_id"); param != "" {
		if id, err := uuid.Parse(param); err == nil {
			return id
		}
	}
	return uuid.Nil
}

func (h *Handler) ImportPatients(c echo.Context) error {
	scope := requestScope(c)
	if scope == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, patient.ErrDoctorRequired.Error())
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	rows, parseErrs, err := ParseWorkbook(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(rows) > h.maxRows {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("import exceeds the %d row limit", h.maxRows))
	}

	var actor *uuid.UUID
	if uid, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
		actor = &uid
	}

	out, err := h.rec.Reconcile(c.Request().Context(), scope, rows, actor)
	if err != nil {
		if errors.Is(err, patient.ErrDoctorRequired) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out.Errors = append(parseErrs, out.Errors...)
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ExportPatients(c echo.Context) error {
	scope := requestScope(c)
	if scope == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, patient.ErrDoctorRequired.Error())
	}
	ctx := c.Request().Context()

	patients, err := h.patients.ListCandidates(ctx, scope, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	visits, err := h.visits.ListByDoctor(ctx, scope)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	diagnoses, err := h.visits.ListDiagnosesByDoctor(ctx, scope)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	now := time.Now()
	f, err := BuildExport(patients, visits, diagnoses, now)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer f.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, ExportFilename(now)))
	c.Response().Header().Set(echo.HeaderContentType, xlsxContentType)
	c.Response().WriteHeader(http.StatusOK)
	_, err = f.WriteTo(c.Response())
	return err
}
