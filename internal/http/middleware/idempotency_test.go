package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// memIdem is an in-memory idempotency store keyed by client|route|key.
type memIdem struct {
	mu      sync.Mutex
	entries map[string]memEntry
	saves   int
	lookErr error
}

type memEntry struct {
	status int
	body   []byte
}

func newMemIdem() *memIdem { return &memIdem{entries: map[string]memEntry{}} }

func (m *memIdem) lookup(_ context.Context, clientID, route, key string, _ time.Time) (int, []byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookErr != nil {
		return 0, nil, false, m.lookErr
	}
	e, ok := m.entries[clientID+"|"+route+"|"+key]
	return e.status, e.body, ok, nil
}

func (m *memIdem) save(_ context.Context, clientID, route, key string, status int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.entries[clientID+"|"+route+"|"+key] = memEntry{status: status, body: append([]byte(nil), body...)}
	return nil
}

func newIdemRouter(store *memIdem, opts IdempotencyOptions, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), ClientID(), Idempotency(opts, store.lookup, store.save))
	r.POST("/api/v1/interactions", func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusAccepted, gin.H{"interaction_id": "id-" + string(rune('0'+*calls))})
	})
	r.POST("/api/v1/fail", func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "backend_unavailable"})
	})
	r.GET("/api/v1/stats", func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func post(r http.Handler, path, key, client string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	if client != "" {
		req.Header.Set(HeaderClientID, client)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := newMemIdem()
	calls := 0
	r := newIdemRouter(store, IdempotencyOptions{}, &calls)

	first := post(r, "/api/v1/interactions", "k-1", "app")
	if first.Code != http.StatusAccepted || calls != 1 {
		t.Fatalf("first: code=%d calls=%d", first.Code, calls)
	}
	if first.Header().Get(HeaderIdempotentReplay) != "" {
		t.Fatal("first response must not be marked as replay")
	}

	second := post(r, "/api/v1/interactions", "k-1", "app")
	if second.Code != http.StatusAccepted || calls != 1 {
		t.Fatalf("replay: code=%d calls=%d", second.Code, calls)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body %q != original %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get(HeaderIdempotentReplay) != "true" {
		t.Fatal("replay header missing")
	}
	if !strings.HasPrefix(second.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("content type = %q", second.Header().Get("Content-Type"))
	}
}

func TestIdempotency_ScopedByClientAndRoute(t *testing.T) {
	store := newMemIdem()
	calls := 0
	r := newIdemRouter(store, IdempotencyOptions{}, &calls)

	post(r, "/api/v1/interactions", "k", "app-a")
	post(r, "/api/v1/interactions", "k", "app-b")
	if calls != 2 {
		t.Fatalf("different clients must not share keys, calls=%d", calls)
	}
	post(r, "/api/v1/interactions", "k", "app-a")
	if calls != 2 {
		t.Fatalf("same client should replay, calls=%d", calls)
	}
}

func TestIdempotency_NoKeyOrNonPostPassesThrough(t *testing.T) {
	store := newMemIdem()
	calls := 0
	r := newIdemRouter(store, IdempotencyOptions{}, &calls)

	post(r, "/api/v1/interactions", "", "app")
	post(r, "/api/v1/interactions", "", "app")
	if calls != 2 || store.saves != 0 {
		t.Fatalf("without key: calls=%d saves=%d", calls, store.saves)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if store.saves != 0 {
		t.Fatal("GET must not be recorded")
	}
}

func TestIdempotency_InvalidKey(t *testing.T) {
	store := newMemIdem()
	calls := 0
	r := newIdemRouter(store, IdempotencyOptions{MaxLen: 8}, &calls)

	for _, key := range []string{"has space", "toolong-key", "semi;colon"} {
		w := post(r, "/api/v1/interactions", key, "app")
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("key %q: code=%d body=%s", key, w.Code, w.Body.String())
		}
	}
	if calls != 0 {
		t.Fatalf("handler ran for invalid keys: %d", calls)
	}
}

func TestIdempotency_FailuresAreNotStored(t *testing.T) {
	store := newMemIdem()
	calls := 0
	r := newIdemRouter(store, IdempotencyOptions{}, &calls)

	post(r, "/api/v1/fail", "k", "app")
	post(r, "/api/v1/fail", "k", "app")
	if calls != 2 || store.saves != 0 {
		t.Fatalf("failed responses must be retried: calls=%d saves=%d", calls, store.saves)
	}
}

func TestIdempotency_LookupErrorProceeds(t *testing.T) {
	store := newMemIdem()
	store.lookErr = errors.New("db down")
	calls := 0
	r := newIdemRouter(store, IdempotencyOptions{}, &calls)

	w := post(r, "/api/v1/interactions", "k", "app")
	if w.Code != http.StatusAccepted || calls != 1 {
		t.Fatalf("lookup error should not block: code=%d calls=%d", w.Code, calls)
	}
}

func TestIdempotency_OversizedResponseNotSaved(t *testing.T) {
	store := newMemIdem()
	calls := 0
	r := newIdemRouter(store, IdempotencyOptions{MaxBody: 4}, &calls)

	w := post(r, "/api/v1/interactions", "k", "app")
	if w.Code != http.StatusAccepted || w.Body.Len() <= 4 {
		t.Fatalf("response must still be served in full: code=%d len=%d", w.Code, w.Body.Len())
	}
	if store.saves != 0 {
		t.Fatalf("oversized response was saved")
	}
}

func TestGetIdempotencyKey_AndIsReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatal("expected no key")
	}
	if IsReplay(c) {
		t.Fatal("expected no replay")
	}
	c.Set(ctxKeyIdemKey, "abc")
	c.Set(ctxKeyIdemReplay, "yes") // wrong type reads as false
	if k, ok := GetIdempotencyKey(c); !ok || k != "abc" {
		t.Fatalf("key = %q, %v", k, ok)
	}
	if IsReplay(c) {
		t.Fatal("non-bool replay flag must read as false")
	}
}
