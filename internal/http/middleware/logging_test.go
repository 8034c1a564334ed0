package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = RequestIDFrom(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	got := w.Header().Get("X-Request-ID")
	if got == "" || got != seen {
		t.Fatalf("expected generated id in header and context, header=%q ctx=%q", got, seen)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "rid-fixed")
	r.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") != "rid-fixed" || seen != "rid-fixed" {
		t.Fatalf("expected propagated id, header=%q ctx=%q", w.Header().Get("X-Request-ID"), seen)
	}
}

func TestClientID_HeaderOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ClientID())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = ClientIDFrom(c)
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"no header", "", "ip:203.0.113.9"},
		{"valid header", "indexer-2", "client:indexer-2"},
		{"malformed header falls back", "bad id with spaces", "ip:203.0.113.9"},
		{"too long falls back", strings.Repeat("a", 129), "ip:203.0.113.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.RemoteAddr = "203.0.113.9:5555"
			if tc.header != "" {
				req.Header.Set(HeaderClientID, tc.header)
			}
			r.ServeHTTP(httptest.NewRecorder(), req)
			if seen != tc.want {
				t.Fatalf("client id = %q; want %q", seen, tc.want)
			}
		})
	}
}

func TestClientIDFrom_WithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "198.51.100.4:1000"
	if got := ClientIDFrom(c); got != "ip:198.51.100.4" {
		t.Fatalf("fallback = %q", got)
	}
}

func TestRecovery_PanicBecomesJSON500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("X-Request-ID", "rid-panic")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v (%s)", err, w.Body.String())
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-panic" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestRecovery_AfterWriteKeepsPartialResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery())
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if w.Code != http.StatusOK || w.Body.String() != "partial" {
		t.Fatalf("expected partial 200 response kept, got %d %q", w.Code, w.Body.String())
	}
}

func TestLoggerFrom_FallbackNeverNil(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if LoggerFrom(c) == nil {
		t.Fatal("expected fallback logger")
	}
	c.Set(loggerKey, "not a logger")
	if LoggerFrom(c) == nil {
		t.Fatal("expected fallback logger for wrong type")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abc", 0); got != "abc" {
		t.Fatalf("max 0 = %q", got)
	}
	if got := truncate("abc", 5); got != "abc" {
		t.Fatalf("short = %q", got)
	}
	if got := truncate("abcdef", 3); got != "abc…" {
		t.Fatalf("long = %q", got)
	}
}

func TestRequestID_ReplacesMalformedInbound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "has spaces\tand tabs")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got == "" || strings.ContainsAny(got, " \t") {
		t.Fatalf("malformed inbound id should be replaced, got %q", got)
	}
}
