package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/docreg/docreg/internal/platform/auth"
)

const auditPrefix = "/api/v1/"

// AuditEntry is one record-access event: who touched which resource, from
// where, and what the request did to it.
type AuditEntry struct {
	Timestamp    time.Time
	RequestID    string
	UserID       string
	UserRole     string
	Action       string // read, create, update or delete
	ResourceType string
	PatientID    string
	Method       string
	Path         string
	IPAddress    string
	UserAgent    string
	StatusCode   int
}

// AuditRecorder persists entries somewhere durable. The middleware logs
// every entry regardless; a recorder is an additional sink.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc adapts a function to AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error { return f(entry) }

// Audit emits one structured event per request under /api/v1/, after the
// handler has run. Identity fields are read from the request context at that
// point, since the JWT middleware attaches them by swapping the request. A
// failing recorder is logged and never fails the request itself.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	var recorder AuditRecorder
	if len(recorders) > 0 {
		recorder = recorders[0]
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().URL.Path, auditPrefix) {
				return next(c)
			}

			err := next(c)

			entry := buildAuditEntry(c)
			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "record_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("user_role", entry.UserRole).
				Str("resource_type", entry.ResourceType).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("record_access")

			return err
		}
	}
}

// buildAuditEntry reads everything off the context once the handler is done.
func buildAuditEntry(c echo.Context) AuditEntry {
	req := c.Request()
	ctx := req.Context()

	entry := AuditEntry{
		Timestamp:    time.Now().UTC(),
		UserID:       auth.UserIDFromContext(ctx),
		UserRole:     auth.RoleFromContext(ctx),
		Action:       auditAction(req.Method),
		ResourceType: auditResource(req.URL.Path),
		PatientID:    auditPatientID(c),
		Method:       req.Method,
		Path:         req.URL.Path,
		IPAddress:    c.RealIP(),
		UserAgent:    req.UserAgent(),
		StatusCode:   c.Response().Status,
	}
	if rid, ok := c.Get("request_id").(string); ok {
		entry.RequestID = rid
	}
	return entry
}

func auditAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// auditResource names the first path segment after the API prefix, the
// collection the request touched.
func auditResource(path string) string {
	rest, ok := strings.CutPrefix(path, auditPrefix)
	if !ok {
		return "unknown"
	}
	if seg, _, _ := strings.Cut(rest, "/"); seg != "" {
		return seg
	}
	return "unknown"
}

// auditPatientID pulls a patient identifier out of /api/v1/patients/<uuid>
// paths, falling back to the patient_id query parameter.
func auditPatientID(c echo.Context) string {
	if rest, ok := strings.CutPrefix(c.Request().URL.Path, auditPrefix+"patients/"); ok {
		seg, _, _ := strings.Cut(rest, "/")
		if _, err := uuid.Parse(seg); err == nil {
			return seg
		}
	}
	return c.QueryParam("patient_id")
}
