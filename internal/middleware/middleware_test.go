package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nugl/monetization/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func TestAuthMiddleware(t *testing.T) {
	cfg := config.AuthConfig{
		Enabled:   true,
		MasterKey: "secret",
		SkipPaths: []string{"/health", "/affiliate/click"},
	}
	h := NewAuthMiddleware(cfg, zap.NewNop()).Handler(okHandler())

	cases := []struct {
		name   string
		path   string
		key    string
		status int
	}{
		{"missing key", "/affiliate/stats", "", http.StatusUnauthorized},
		{"wrong key", "/affiliate/stats", "nope", http.StatusUnauthorized},
		{"valid key", "/affiliate/stats", "secret", http.StatusOK},
		{"skip path", "/health", "", http.StatusOK},
		{"skip prefix", "/affiliate/click", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.key != "" {
				req.Header.Set(AuthHeaderName, tc.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Errorf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestAuthMiddlewareQueryParam(t *testing.T) {
	cfg := config.AuthConfig{Enabled: true, MasterKey: "secret"}
	h := NewAuthMiddleware(cfg, zap.NewNop()).Handler(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/x?api_key=secret", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	h := NewAuthMiddleware(config.AuthConfig{Enabled: false}, zap.NewNop()).Handler(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestNewLogger(t *testing.T) {
	cases := []struct {
		level  string
		format string
		debug  bool
	}{
		{"debug", "json", true},
		{"info", "json", false},
		{"warn", "console", false},
		{"bogus", "json", false},
	}
	for _, tc := range cases {
		logger, err := NewLogger(tc.level, tc.format)
		if err != nil {
			t.Fatalf("NewLogger(%q, %q): %v", tc.level, tc.format, err)
		}
		if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.debug {
			t.Errorf("NewLogger(%q, %q) debug enabled = %v, want %v", tc.level, tc.format, got, tc.debug)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := NewRecoveryMiddleware(zap.NewNop()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRateLimitMiddlewareRejectsBurst(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled: true,
		RPS:     1, Burst: 2,
		MgmtRPS: 1, MgmtBurst: 2,
	}
	h := NewRateLimitMiddleware(cfg, zap.NewNop()).Handler(okHandler())

	got429 := false
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/affiliate/click", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			got429 = true
		}
	}
	if !got429 {
		t.Error("burst of 5 against burst limit 2 never hit 429")
	}
}

func TestRateLimitPerIP(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled: true,
		RPS:     1000, Burst: 1000,
		MgmtRPS: 1000, MgmtBurst: 1000,
	}
	h := NewRateLimitMiddleware(cfg, zap.NewNop()).Handler(okHandler())

	// One hot client exhausts its own bucket (a tenth of the shared one)
	hot429 := false
	for i := 0; i < 150; i++ {
		req := httptest.NewRequest(http.MethodPost, "/ads/impression", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			hot429 = true
		}
	}
	if !hot429 {
		t.Error("hot client never hit the per-IP limit")
	}

	// A different client is unaffected
	req := httptest.NewRequest(http.MethodPost, "/ads/impression", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("cold client status = %d, want 200", rec.Code)
	}
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: false}
	h := NewRateLimitMiddleware(cfg, zap.NewNop()).Handler(okHandler())
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
}
