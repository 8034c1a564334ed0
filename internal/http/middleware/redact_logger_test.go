package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func withCapturedLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// lastLine decodes the final JSON line written to buf.
func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("invalid log line %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestRedactingLogger_MasksHeadersQueryAndPII(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RequestID(), ClientID(), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/api/v1/interactions", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	q := "actor_id=user-42&kind=like&note=a.b%2Btag%40example.com"
	req := httptest.NewRequest(http.MethodGet, "/api/v1/interactions?"+q, nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Cookie", "sid=topsecret")
	req.Header.Set("X-Api-Key", "shhh")
	req.Header.Set("X-Custom", "id=123e4567-e89b-12d3-a456-426614174000")
	req.Header.Set("X-Request-ID", "rid-1")
	req.Header.Set(HeaderClientID, "app-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	out := buf.String()
	for _, secret := range []string{"secret", "topsecret", "shhh", "user-42", "example.com", "123e4567"} {
		if strings.Contains(out, secret) {
			t.Fatalf("log leaked %q: %s", secret, out)
		}
	}

	m := lastLine(t, buf)
	if m["level"] != "info" || m["message"] != "http_request" {
		t.Fatalf("unexpected level/message: %v", m)
	}
	if m["request_id"] != "rid-1" || m["client_id"] != "client:app-1" {
		t.Fatalf("missing identity fields: %v", m)
	}
	if m["path"] != "/api/v1/interactions" || m["replay"] != false {
		t.Fatalf("unexpected path/replay: %v", m)
	}
	query, _ := m["query"].(string)
	if !strings.Contains(query, "actor_id=%5BREDACTED%5D") || !strings.Contains(query, "kind=like") {
		t.Fatalf("unexpected query: %q", query)
	}
}

func TestRedactingLogger_LevelsByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "info"},
		{http.StatusNotFound, "warn"},
		{http.StatusServiceUnavailable, "error"},
	}
	for _, tc := range cases {
		buf := withCapturedLogger(t)
		r := gin.New()
		r.Use(RedactingLogger(RedactOptions{}))
		r.GET("/s", func(c *gin.Context) { c.Status(tc.status) })

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/s", nil))
		if got := lastLine(t, buf)["level"]; got != tc.level {
			t.Fatalf("status %d logged at %v; want %s", tc.status, got, tc.level)
		}
	}
}

func TestRedactingLogger_InstallsScopedLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}))
	r.GET("/x", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("inside")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "rid-scoped")
	r.ServeHTTP(httptest.NewRecorder(), req)

	first := strings.Split(strings.TrimSpace(buf.String()), "\n")[0]
	if !strings.Contains(first, `"message":"inside"`) || !strings.Contains(first, `"request_id":"rid-scoped"`) {
		t.Fatalf("handler log missing request fields: %s", first)
	}
}

func TestRedactQuery(t *testing.T) {
	masked := lowerSet([]string{"target_id"}, nil)

	if got := redactQuery("", masked); got != "" {
		t.Fatalf("empty = %q", got)
	}
	if got := redactQuery("TARGET_ID=p1&page=2", masked); got != "TARGET_ID=%5BREDACTED%5D&page=2" {
		t.Fatalf("case-insensitive mask = %q", got)
	}
	// Hex content hashes are not phone numbers.
	h := strings.Repeat("ab", 32)
	if got := redactQuery("hash="+h, masked); got != "hash="+h {
		t.Fatalf("hash was altered: %q", got)
	}
	// Unparseable queries are scrubbed as a whole.
	if got := redactQuery("%zz&mail=a@b.com", masked); strings.Contains(got, "a@b.com") {
		t.Fatalf("unparseable query leaked: %q", got)
	}
}
