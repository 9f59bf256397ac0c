package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"cliphive/internal/observability/logging"
)

func TestRequestIDMiddlewareGeneratesWhenMissing(t *testing.T) {
	handler := requestIDMiddlewareWithGenerator(nil, func() string { return "generated-id" },
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := logging.RequestIDFromContext(r.Context())
			if !ok || id != "generated-id" {
				t.Errorf("context request id = %q (ok=%v)", id, ok)
			}
		}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rr.Header().Get("X-Request-Id"); got != "generated-id" {
		t.Fatalf("X-Request-Id = %q", got)
	}
}

func TestRequestIDMiddlewarePreservesCallerID(t *testing.T) {
	handler := requestIDMiddleware(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "  existing-id  ")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-Id"); got != "existing-id" {
		t.Fatalf("X-Request-Id = %q, want trimmed caller id", got)
	}
}

func TestNewRequestIDIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		id := newRequestID()
		if id == "" {
			t.Fatal("empty request id")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = struct{}{}
	}
}
