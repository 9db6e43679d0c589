package quota

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(10, clock.NewMock())

	for i := 0; i < 10; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	if rl.Allow("alice") {
		t.Error("11th request should be denied")
	}
}

func TestRateLimiterUnlimited(t *testing.T) {
	rl := NewRateLimiter(0, nil)

	for i := 0; i < 1000; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("request %d should be allowed (unlimited)", i+1)
		}
	}
}

func TestRateLimiterRefill(t *testing.T) {
	mock := clock.NewMock()
	rl := NewRateLimiter(60, mock) // 1 token per second

	for i := 0; i < 60; i++ {
		rl.Allow("alice")
	}

	if rl.Allow("alice") {
		t.Error("should be rate limited after exhausting tokens")
	}

	mock.Add(1100 * time.Millisecond)

	if !rl.Allow("alice") {
		t.Error("should be allowed after refill")
	}
}

func TestRateLimiterRetryAfter(t *testing.T) {
	rl := NewRateLimiter(60, clock.NewMock())

	for i := 0; i < 60; i++ {
		rl.Allow("alice")
	}

	if got := rl.RetryAfter("alice"); got < 1 {
		t.Errorf("expected retry-after >= 1, got %d", got)
	}
	if got := rl.RetryAfter("bob"); got != 0 {
		t.Errorf("unknown key should not wait, got %d", got)
	}
}

func TestRateLimiterMultipleKeys(t *testing.T) {
	rl := NewRateLimiter(5, clock.NewMock())

	for i := 0; i < 5; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("alice request %d should be allowed", i+1)
		}
	}
	if rl.Allow("alice") {
		t.Error("alice should be rate limited")
	}

	if !rl.Allow("bob") {
		t.Error("bob should not be affected by alice's rate limit")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	mock := clock.NewMock()
	rl := NewRateLimiter(10, mock)

	rl.Allow("alice")
	mock.Add(2 * time.Hour)
	rl.Allow("bob")

	rl.Cleanup(time.Hour)

	rl.mu.Lock()
	count := len(rl.buckets)
	_, bobKept := rl.buckets["bob"]
	rl.mu.Unlock()

	if count != 1 || !bobKept {
		t.Errorf("expected only bob's bucket after cleanup, got %d buckets", count)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(2, clock.NewMock())
	handler := RateLimitMiddleware(rl, func(r *http.Request) string {
		return r.Header.Get("X-Test-User")
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/drive", nil)
		if user != "" {
			req.Header.Set("X-Test-User", user)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("alice"); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: got %d", i+1, rec.Code)
		}
	}
	rec := do("alice")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// Anonymous requests are charged to the remote address.
	if rec := do(""); rec.Code != http.StatusNoContent {
		t.Fatalf("anonymous request: got %d", rec.Code)
	}
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	called := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called++ })
	handler := RateLimitMiddleware(NewRateLimiter(0, nil), nil)(next)
	for i := 0; i < 50; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	if called != 50 {
		t.Errorf("expected all requests through, got %d", called)
	}
}
