package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type testHandler struct {
	registered bool
}

func (h *testHandler) Register(e *echo.Echo) {
	h.registered = true
	e.GET("/registered", func(c echo.Context) error {
		return c.String(http.StatusOK, "yes")
	})
}

func TestNewRegistersHandlersAndHealth(t *testing.T) {
	handler := &testHandler{}
	srv := New(slog.Default(), ":0", []Handler{handler, nil})

	if !handler.registered {
		t.Fatal("handler was not registered")
	}

	for _, path := range []string{"/health", "/registered"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}
}
