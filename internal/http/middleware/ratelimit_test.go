package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestKeyByClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "203.0.113.9:12345"

	if key := KeyByClient()(c); key != "ip:203.0.113.9" {
		t.Fatalf("expected ip-based key; got %q", key)
	}
	c.Set(clientIDKey, "client:app-7")
	if key := KeyByClient()(c); key != "client:app-7" {
		t.Fatalf("expected client key; got %q", key)
	}
}

func TestCostByContentLength(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cost := CostByContentLength(1 << 20)

	cases := []struct {
		length int64
		want   int
	}{
		{-1, 1},
		{0, 1},
		{1 << 20, 1},
		{1<<20 + 1, 2},
		{10 << 20, 10},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
		c.Request.ContentLength = tc.length
		if got := cost(c); got != tc.want {
			t.Fatalf("cost(%d) = %d; want %d", tc.length, got, tc.want)
		}
	}
}

func TestNewRateLimiter_BurstCoercion_AndVisitorReuse(t *testing.T) {
	rl := NewRateLimiter(2.0, 0, KeyByClient())
	if rl.burst != 1 {
		t.Fatalf("burst coercion failed, got %d", rl.burst)
	}
	lim := rl.getVisitor("k1")
	if lim == nil || rl.getVisitor("k1") != lim {
		t.Fatalf("expected the same limiter instance to be reused")
	}
}

func TestRateLimiter_getVisitor_GC(t *testing.T) {
	rl := NewRateLimiter(1.0, 1, KeyByClient())
	rl.ttl = time.Nanosecond

	rl.mu.Lock()
	rl.visitors["old"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now().Add(-time.Hour)}
	rl.cleanupN = 4999
	rl.mu.Unlock()

	_ = rl.getVisitor("new")

	rl.mu.Lock()
	_, existsOld := rl.visitors["old"]
	_, existsNew := rl.visitors["new"]
	rl.mu.Unlock()
	if existsOld || !existsNew {
		t.Fatalf("old evicted=%v new created=%v", !existsOld, existsNew)
	}
}

func TestRateLimiter_Cost_ClampedToBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3, KeyByClient()).WithCost(func(*gin.Context) int { return 50 })
	if got := rl.cost(nil); got != 3 {
		t.Fatalf("cost = %d; want clamp to 3", got)
	}
	rl.WithCost(func(*gin.Context) int { return 0 })
	if got := rl.cost(nil); got != 1 {
		t.Fatalf("cost = %d; want minimum 1", got)
	}
}

func TestRateLimiter_Handler_AllowThenDeny(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1.0, 1, KeyByClient())

	r := gin.New()
	r.Use(RequestID(), ClientID(), rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	do := func(client string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(HeaderClientID, client)
		req.Header.Set("X-Request-ID", "rid-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := do("a"); w.Code != http.StatusOK {
		t.Fatalf("first request should be allowed, got %d", w.Code)
	}
	w := do("a")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be rate-limited, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "rate_limited" || body["request_id"] != "rid-1" {
		t.Fatalf("unexpected JSON body: %v", body)
	}

	// Buckets are per client.
	if w := do("b"); w.Code != http.StatusOK {
		t.Fatalf("other client should have its own bucket, got %d", w.Code)
	}
}

func TestRateLimiter_HeavyUploadRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(2, 4, KeyByClient()).WithCost(CostByContentLength(1 << 20))

	r := gin.New()
	r.Use(ClientID(), rl.Handler())
	r.POST("/content", func(c *gin.Context) { c.Status(http.StatusCreated) })

	upload := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/content", strings.NewReader("x"))
		req.ContentLength = 4 << 20 // four tokens
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	if w := upload(); w.Code != http.StatusCreated {
		t.Fatalf("first upload = %d", w.Code)
	}
	w := upload()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload = %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After = %q; want 2 (4 tokens at 2 rps)", got)
	}
}

func TestRateLimiter_RetryAfterZeroRate(t *testing.T) {
	rl := NewRateLimiter(0, 1, KeyByClient())
	if got := rl.retryAfter(1); got != 60 {
		t.Fatalf("retryAfter = %d", got)
	}
}
