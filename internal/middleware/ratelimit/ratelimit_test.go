package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perMinute int, writesOnly bool) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, WritesOnly: writesOnly})
	t.Cleanup(rl.Stop)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllowFixedWindow(t *testing.T) {
	rl, now := newTestLimiter(t, 3, false)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("4th request should be limited")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("other clients are independent")
	}

	// continuous traffic must not extend the window
	*now = now.Add(30 * time.Second)
	if rl.Allow("1.2.3.4") {
		t.Fatal("still inside the window")
	}
	*now = now.Add(31 * time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Fatal("window should have reset")
	}

	if got := rl.GetMetrics(); got.TotalHits != 2 || got.ClientCount != 2 {
		t.Fatalf("metrics = %+v", got)
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(t, 3, false)
	rl.Allow("1.2.3.4")
	*now = now.Add(11 * time.Minute)
	rl.cleanupStaleEntries()
	if got := rl.GetMetrics().ClientCount; got != 0 {
		t.Fatalf("ClientCount = %d, want 0", got)
	}
}

func TestMiddlewareWritesOnly(t *testing.T) {
	rl, _ := newTestLimiter(t, 1, true)
	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	do := func(method string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/api/expenses", nil))
		return rr
	}

	for i := 0; i < 5; i++ {
		if rr := do(http.MethodGet); rr.Code != http.StatusNoContent {
			t.Fatalf("GET should be exempt, got %d", rr.Code)
		}
	}
	if rr := do(http.MethodPost); rr.Code != http.StatusNoContent {
		t.Fatalf("first POST got %d", rr.Code)
	}
	rr := do(http.MethodPost)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second POST got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
}
