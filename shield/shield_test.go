package shield

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/censo/dbopen"
	"github.com/hazyhaar/censo/kit"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(okHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/validar-cedula", nil))

	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestMaxJSONBody(t *testing.T) {
	var readErr error
	h := MaxJSONBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"cedula":"1234567"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if readErr == nil {
		t.Fatal("expected body limit error")
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if readErr != nil {
		t.Fatalf("small body rejected: %v", readErr)
	}
}

func TestTraceID(t *testing.T) {
	var gotID string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = kit.GetTraceID(r.Context())
		if GetLogger(r.Context()) == nil {
			t.Error("no logger in context")
		}
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if gotID == "" || w.Header().Get("X-Trace-ID") != gotID {
		t.Fatalf("trace id %q, header %q", gotID, w.Header().Get("X-Trace-ID"))
	}

	// WHAT: an upstream trace ID is kept.
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Trace-ID", "upstream-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotID != "upstream-1" {
		t.Fatalf("trace id = %q, want upstream-1", gotID)
	}
}

func TestRateLimiter_SeededRule(t *testing.T) {
	// WHAT: the seeded rule allows 10 validations per minute per IP.
	db := setupDB(t)
	h := NewRateLimiter(db).Middleware(okHandler())

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/validar-cedula", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	for i := range 10 {
		if w := do("10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, w.Code)
		}
	}
	w := do("10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("11th request: status %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body["existe"] != false {
		t.Fatalf("body = %v, %v", body, err)
	}

	if w := do("10.0.0.2"); w.Code != http.StatusOK {
		t.Fatalf("other IP limited: %d", w.Code)
	}
}

func TestRateLimiter_SetRuleAndExclude(t *testing.T) {
	db := setupDB(t)
	if err := SetRule(context.Background(), db, "GET /healthz", RateLimitConfig{MaxRequests: 1, WindowSeconds: 60, Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := SetRule(context.Background(), db, "GET /x", RateLimitConfig{MaxRequests: 1, WindowSeconds: 60, Enabled: true}); err != nil {
		t.Fatal(err)
	}
	h := NewRateLimiter(db, "/healthz").Middleware(okHandler())

	for range 3 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("excluded path limited: %d", w.Code)
		}
	}

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if got := ExtractIP(req); got != "203.0.113.9" {
		t.Fatalf("ExtractIP = %q", got)
	}
}

func TestMaintenance(t *testing.T) {
	db := setupDB(t)
	mm := NewMaintenanceMode(db, "/healthz")
	h := mm.Middleware(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/validar-cedula", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("maintenance off: status %d", w.Code)
	}

	if err := SetMaintenance(context.Background(), db, true, "Actualizando selectores"); err != nil {
		t.Fatal(err)
	}
	mm.Reload()

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/validar-cedula", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("maintenance on: status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Actualizando selectores") {
		t.Fatalf("body = %s", w.Body.String())
	}
	if w.Header().Get("Retry-After") != "300" {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("excluded path blocked: %d", w.Code)
	}

	SetMaintenance(context.Background(), db, false, "")
	mm.Reload()
	if mm.Active() {
		t.Fatal("maintenance still active")
	}
	if mm.Message() != "Actualizando selectores" {
		t.Fatalf("empty message should keep the previous one, got %q", mm.Message())
	}
}

func TestMaintenance_MissingTable(t *testing.T) {
	db := dbopen.OpenMemory(t)
	mm := NewMaintenanceMode(db)
	if mm.Active() {
		t.Fatal("missing table should mean maintenance off")
	}
}

func TestAPIStack(t *testing.T) {
	db := setupDB(t)
	stack, rl, mm := APIStack(db, 1024)
	if len(stack) != 5 || rl == nil || mm == nil {
		t.Fatalf("stack = %d middlewares", len(stack))
	}
	var h http.Handler = okHandler()
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK || w.Header().Get("X-Trace-ID") == "" {
		t.Fatalf("status %d, trace %q", w.Code, w.Header().Get("X-Trace-ID"))
	}
}
