package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/formwatch/kit"
)

func chain(h http.Handler) http.Handler {
	stack := APIStack()
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}
	return h
}

func TestAPIStack_HeadersAndTrace(t *testing.T) {
	var traceID string
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = kit.GetTraceID(r.Context())
		if GetLogger(r.Context()) == nil {
			t.Error("no request logger")
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pages", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("headers: %v", rec.Header())
	}
	if len(traceID) != 8 || rec.Header().Get("X-Trace-ID") != traceID {
		t.Errorf("trace id: ctx %q header %q", traceID, rec.Header().Get("X-Trace-ID"))
	}
}

func TestAPIStack_HeadUsesGetRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(APIStack()...)
	var called bool
	r.Get("/pages", func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/pages", nil))

	if !called || rec.Code != http.StatusOK {
		t.Errorf("HEAD /pages: called=%v status=%d", called, rec.Code)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("headers: %v", rec.Header())
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	h.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/pages/x/navigate", strings.NewReader(`{"url":"https://example.com/"}`)))
	if readErr == nil {
		t.Error("expected body limit error")
	}
}

func TestGetLogger_Default(t *testing.T) {
	if GetLogger(httptest.NewRequest(http.MethodGet, "/", nil).Context()) == nil {
		t.Error("nil default logger")
	}
}
