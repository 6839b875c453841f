package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/docreg/docreg/internal/platform/db"
)

func TestHealthHandler_ReportsHealthyPool(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := db.HealthHandler("docreg", globalDB.Pool)(c); err != nil {
		t.Fatalf("health handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status    string        `json:"status"`
		Service   string        `json:"service"`
		LatencyMS int64         `json:"latency_ms"`
		Pool      *db.PoolStats `json:"pool"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q, want healthy", body.Status)
	}
	if body.Service != "docreg" {
		t.Errorf("service = %q, want docreg", body.Service)
	}
	if body.Pool == nil || body.Pool.MaxConns == 0 {
		t.Errorf("pool stats missing: %+v", body.Pool)
	}
}
