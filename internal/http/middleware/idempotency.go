// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for POST requests. Storing
// content and recording interactions are not naturally idempotent: a client
// that retries after a lost response would record the same interaction twice.
// With a key, the first successful response is saved per (client, route, key)
// and replayed verbatim to later requests with the same triple.
//
// Persistence stays outside the package behind two function types, so the
// middleware only deals with transport concerns.
package middleware

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotentReplay marks responses served from the idempotency store.
const HeaderIdempotentReplay = "Idempotent-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
)

// GetIdempotencyKey returns the validated key stored by Idempotency.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the response was served from a stored result.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures Idempotency.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Nil selects ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// MaxBody caps how much of a response is captured for replay. Larger
	// responses are served but not saved. Values <= 0 default to 64 KiB.
	MaxBody int
}

// IdempotencyLookup returns a stored, unexpired response for the triple.
// found=false with a nil error means "not seen"; errors are logged and the
// request proceeds normally.
type IdempotencyLookup func(ctx context.Context, clientID, route, key string, now time.Time) (status int, body []byte, found bool, err error)

// IdempotencySave stores a completed 2xx response for the triple.
type IdempotencySave func(ctx context.Context, clientID, route, key string, status int, body []byte) error

// Idempotency validates the Idempotency-Key header on POST requests and
// replays or records responses.
//
// Behavior:
//   - Non-POST requests and requests without the header pass through.
//   - A malformed key is answered with 400 bad_idempotency_key.
//   - A stored response is written back with HeaderIdempotentReplay set and
//     the chain is aborted, so rate limiting and handlers never run.
//   - Otherwise the response is captured; a 2xx result is saved.
func Idempotency(opts IdempotencyOptions, lookup IdempotencyLookup, save IdempotencySave) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	maxBody := opts.MaxBody
	if maxBody <= 0 {
		maxBody = 64 << 10
	}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		clientID := ClientIDFrom(c)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx := c.Request.Context()

		if lookup != nil {
			status, body, found, err := lookup(ctx, clientID, route, key, time.Now().UTC())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Str("route", route).Msg("idempotency lookup failed")
			case found:
				c.Set(ctxKeyIdemReplay, true)
				c.Header(HeaderIdempotentReplay, "true")
				c.Data(status, "application/json; charset=utf-8", body)
				c.Abort()
				return
			}
		}

		cw := &captureWriter{ResponseWriter: c.Writer, limit: maxBody}
		c.Writer = cw
		c.Next()
		c.Writer = cw.ResponseWriter

		status := cw.Status()
		if save == nil || status < 200 || status >= 300 || cw.overflow {
			return
		}
		// The client may already be gone; the result is still worth keeping.
		if err := save(context.WithoutCancel(ctx), clientID, route, key, status, cw.buf.Bytes()); err != nil {
			LoggerFrom(c).Warn().Err(err).Str("route", route).Msg("idempotency save failed")
		}
	}
}

// captureWriter tees the response body into buf up to limit bytes.
type captureWriter struct {
	gin.ResponseWriter
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (w *captureWriter) capture(n int, write func()) {
	if w.overflow {
		return
	}
	if w.buf.Len()+n > w.limit {
		w.overflow = true
		w.buf.Reset()
		return
	}
	write()
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.capture(len(b), func() { w.buf.Write(b) })
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.capture(len(s), func() { w.buf.WriteString(s) })
	return w.ResponseWriter.WriteString(s)
}
