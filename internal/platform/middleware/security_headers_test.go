package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()

	tests := []struct {
		header string
		want   string
	}{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
		{"Referrer-Policy", "no-referrer"},
		{"Cache-Control", "no-store"},
	}

	t.Run("SetOnSuccess", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		handler := func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		}
		if err := SecurityHeaders()(handler)(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, tt := range tests {
			if got := rec.Header().Get(tt.header); got != tt.want {
				t.Errorf("header %s = %q, want %q", tt.header, got, tt.want)
			}
		}
	})

	t.Run("SetOnError", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/missing", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		handler := func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		err := SecurityHeaders()(handler)(c)

		httpErr, ok := err.(*echo.HTTPError)
		if !ok {
			t.Fatalf("expected echo.HTTPError, got %T", err)
		}
		if httpErr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", httpErr.Code)
		}
		if rec.Header().Get("Cache-Control") != "no-store" {
			t.Error("headers must be set before the handler can fail")
		}
	})
}
