package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestNewRouter_DefaultMounts(t *testing.T) {
	router := NewRouter()

	t.Run("healthz", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("admin not implemented", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil))
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("expected 501, got %d", rr.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["error"] != "not_implemented" {
			t.Fatalf("unexpected error code %v", body["error"])
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/unknown", nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["error"] != errorNotFoundCode {
			t.Fatalf("unexpected error code %v", body["error"])
		}
	})
}

func TestNewRouter_AdminRegistrarsShareGroup(t *testing.T) {
	var order []string
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "mw")
			next.ServeHTTP(w, r)
		})
	}
	first := func(r chi.Router) {
		r.Get("/first", func(w http.ResponseWriter, _ *http.Request) {
			order = append(order, "first")
			w.WriteHeader(http.StatusNoContent)
		})
	}
	second := func(r chi.Router) {
		r.Get("/second", func(w http.ResponseWriter, _ *http.Request) {
			order = append(order, "second")
			w.WriteHeader(http.StatusNoContent)
		})
	}
	router := NewRouter(WithAdminRoutes(first, nil, second), WithAdminMiddlewares(mw))

	for _, path := range []string{"/api/v1/admin/first", "/api/v1/admin/second"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("%s: expected 204, got %d", path, rr.Code)
		}
	}
	want := []string{"mw", "first", "mw", "second"}
	if len(order) != len(want) {
		t.Fatalf("unexpected call order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected call order %v", order)
		}
	}
}

func TestNewRouter_MethodNotAllowed(t *testing.T) {
	router := NewRouter()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestNewRouter_RequestTimeoutSetsDeadline(t *testing.T) {
	var remaining time.Duration
	probe := func(r chi.Router) {
		r.Get("/probe", func(w http.ResponseWriter, req *http.Request) {
			if deadline, ok := req.Context().Deadline(); ok {
				remaining = time.Until(deadline)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
	router := NewRouter(WithRequestTimeout(5*time.Second), WithAdminRoutes(probe))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/probe", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if remaining <= 0 || remaining > 5*time.Second {
		t.Fatalf("expected a deadline within 5s, got %s", remaining)
	}
}
