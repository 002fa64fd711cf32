package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := HashAPIKey("sentry-key-1")
	if err != nil {
		t.Fatalf("HashAPIKey() error = %v", err)
	}
	auth := NewAPIKeyAuth([]string{hash}, slog.Default())
	handler := auth.Wrap(okHandler())

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"valid key", "/v1/detection/run", "Bearer sentry-key-1", http.StatusOK},
		{"wrong key", "/v1/detection/run", "Bearer wrong", http.StatusUnauthorized},
		{"missing header", "/v1/detection/run", "", http.StatusUnauthorized},
		{"malformed header", "/v1/detection/run", "Basic abc", http.StatusUnauthorized},
		{"health exempt", "/health", "", http.StatusOK},
		{"metrics exempt", "/metrics", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestAPIKeyAuth_DisabledPassesThrough(t *testing.T) {
	auth := NewAPIKeyAuth(nil, slog.Default())
	if auth.Enabled() {
		t.Error("Enabled() = true with no hashes")
	}

	handler := auth.Wrap(okHandler())
	req := httptest.NewRequest("POST", "/v1/detection/run", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want pass-through", rr.Code)
	}
}

func TestHashAPIKey_LongKey(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'k'
	}

	hash, err := HashAPIKey(string(long))
	if err != nil {
		t.Fatalf("HashAPIKey() error = %v", err)
	}

	auth := NewAPIKeyAuth([]string{hash}, slog.Default())
	if !auth.match(string(long)) {
		t.Error("long key does not verify against its own hash")
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/v1/anomalies", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rr.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}
