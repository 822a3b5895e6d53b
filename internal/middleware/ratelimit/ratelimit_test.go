package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLimiter_Allow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewLimiter(Config{RequestsPerMinute: 2, Now: clock.Now})
	defer rl.Stop()

	steps := []struct {
		name    string
		advance time.Duration
		client  string
		want    bool
	}{
		{"first", 0, "a", true},
		{"second", 10 * time.Second, "a", true},
		{"third over limit", 10 * time.Second, "a", false},
		{"other client unaffected", 0, "b", true},
		{"still limited inside window", 30 * time.Second, "a", false},
		{"window reset", 10 * time.Second, "a", true},
	}
	for _, st := range steps {
		clock.Advance(st.advance)
		if got := rl.Allow(st.client); got != st.want {
			t.Errorf("%s: Allow(%q) = %v, want %v", st.name, st.client, got, st.want)
		}
	}

	m := rl.GetMetrics()
	if m.Rejected != 2 || m.ClientCount != 2 {
		t.Errorf("GetMetrics() = %+v, want 2 rejected and 2 clients", m)
	}

	clock.Advance(11 * time.Minute)
	rl.cleanupStaleEntries()
	if got := rl.GetMetrics().ClientCount; got != 0 {
		t.Errorf("ClientCount after cleanup = %d, want 0", got)
	}
}

func TestLimiter_Middleware(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewLimiter(Config{RequestsPerMinute: 1, Now: clock.Now})
	defer rl.Stop()

	handler := rl.Middleware(
		func(*http.Request) string { return "1.2.3.4" },
		nil,
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first status = %d, want 204", rec.Code)
	}

	clock.Advance(20 * time.Second)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "40" {
		t.Errorf("Retry-After = %q, want 40", got)
	}
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewLimiter(DefaultConfig())
	rl.Stop()
	rl.Stop()
}
