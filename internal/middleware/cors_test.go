package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	handler := CORS([]string{"https://maang.in", "chrome-extension://*"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name        string
		origin      string
		wantOrigin  string
		wantCreds   string
		wantHeaders bool
	}{
		{name: "explicit origin", origin: "https://maang.in", wantOrigin: "https://maang.in", wantCreds: "true", wantHeaders: true},
		{name: "extension wildcard", origin: "chrome-extension://abcdef", wantOrigin: "chrome-extension://abcdef", wantHeaders: true},
		{name: "unknown origin", origin: "https://evil.example"},
		{name: "no origin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Fatalf("expected 204, got %d", rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Fatalf("Allow-Credentials = %q, want %q", got, tt.wantCreds)
			}
			if got := rec.Header().Get("Access-Control-Allow-Headers"); (got != "") != tt.wantHeaders {
				t.Fatalf("unexpected Allow-Headers %q", got)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	called := false
	handler := CORS([]string{"*"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/chat/query", nil)
	req.Header.Set("Origin", "https://maang.in")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if called {
		t.Fatal("preflight must not reach the handler")
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatal("wildcard origin must not allow credentials")
	}
}

func TestOriginAllowed(t *testing.T) {
	t.Parallel()

	allowed := []string{"https://maang.in", "chrome-extension://*"}
	if !OriginAllowed(allowed, "chrome-extension://abc") {
		t.Fatal("expected extension origin to be allowed")
	}
	if OriginAllowed(allowed, "moz-extension://abc") {
		t.Fatal("expected other scheme to be rejected")
	}
}
