package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/jobs"
	"github.com/lalithlochan/templar/internal/redis"
)

func TestOrgKeyFunc(t *testing.T) {
	tests := []struct {
		name     string
		param    string
		header   string
		expected string
	}{
		{"from route", "org-123", "", "org:org-123"},
		{"from header", "", "org-456", "org:org-456"},
		{"route takes precedence", "org-123", "org-456", "org:org-123"},
		{"no org", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result string
			r := chi.NewRouter()
			handler := func(w http.ResponseWriter, r *http.Request) { result = OrgKeyFunc(r) }
			r.Get("/orgs/{orgID}", handler)
			r.Get("/plain", handler)

			path := "/plain"
			if tt.param != "" {
				path = "/orgs/" + tt.param
			}
			req := httptest.NewRequest("GET", path, nil)
			if tt.header != "" {
				req.Header.Set("X-Org-ID", tt.header)
			}
			r.ServeHTTP(httptest.NewRecorder(), req)

			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		expected   string
	}{
		{"X-Forwarded-For", "1.2.3.4", "", "5.6.7.8:1234", "ip:1.2.3.4"},
		{"X-Real-IP", "", "1.2.3.4", "5.6.7.8:1234", "ip:1.2.3.4"},
		{"RemoteAddr fallback", "", "", "5.6.7.8:1234", "ip:5.6.7.8:1234"},
		{"Forwarded takes precedence", "1.1.1.1", "2.2.2.2", "3.3.3.3:1234", "ip:1.1.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			req.RemoteAddr = tt.remoteAddr

			result := IPKeyFunc(req)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRateLimitMiddleware_NoLimiter(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	middleware := RateLimitMiddleware(nil, nil, OrgKeyFunc)
	wrapped := middleware(handler)

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware_PerOrg(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limiter := redis.NewRateLimiter(redis.Wrap(rdb, zap.NewNop()), zap.NewNop(), redis.RateLimitConfig{
		Limit:  2,
		Window: time.Minute,
	})

	h := NewHandler(zap.NewNop(), jobs.NewMemoryQueue(16, zap.NewNop()), jobs.NewMemoryStatusStore())
	r := chi.NewRouter()
	h.Mount(r, limiter)

	sync := func(org string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/orgs/"+org+"/apps/app-1/sync", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := sync("org-1"); code != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d", i, code)
		}
	}
	if code := sync("org-1"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
	if code := sync("org-2"); code != http.StatusAccepted {
		t.Errorf("other org should not be limited, got %d", code)
	}
}
