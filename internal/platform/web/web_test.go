package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRateLimiterBurstThenRefill(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatal("burst should be allowed")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("other clients have their own bucket")
	}

	now = now.Add(1100 * time.Millisecond)
	if !rl.Allow("1.2.3.4") {
		t.Fatal("token should refill after a second")
	}
}

func TestRateLimiterEvictsIdle(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	rl.Allow("a")
	now = now.Add(visitorTimeout + time.Second)
	rl.Allow("b")
	rl.evictIdle()

	if _, ok := rl.visitors["a"]; ok {
		t.Error("idle visitor not evicted")
	}
	if _, ok := rl.visitors["b"]; !ok {
		t.Error("active visitor evicted")
	}
}

func TestMiddlewareReturns429(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/jobs", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	if rec := do(); rec.Code != http.StatusAccepted {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Too Many Requests") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:4000"
	if got := ClientIP(req); got != "192.168.1.9" {
		t.Errorf("peer ip = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Errorf("forwarded ip = %q", got)
	}
}

func TestHealthHandlers(t *testing.T) {
	rec := httptest.NewRecorder()
	Alive("worker_0")(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "worker_0 is alive") {
		t.Errorf("alive: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	Ping("worker_0", time.Now().Add(-time.Minute))(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["uptime_s"].(float64) < 59 {
		t.Errorf("ping body = %v", body)
	}
}
