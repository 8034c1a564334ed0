// Package middleware holds the Gin middleware in front of the API.
//
// Request identity comes first in the chain: RequestID assigns the
// correlation ID, ClientID names the caller for idempotency and rate
// limiting, then RedactingLogger installs the request logger that Recovery
// and the handlers write to.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HeaderClientID lets a caller name itself. Without it the caller is keyed
// by remote address.
const HeaderClientID = "X-Client-ID"

const (
	requestIDHeader = "X-Request-ID"

	requestIDKey = "requestID"
	clientIDKey  = "clientID"
	loggerKey    = "logger"

	maxQueryLogLength = 2048
)

// Both inbound identifiers share one shape: short and header-safe.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]{1,128}$`)

// RequestID reuses a well-formed inbound X-Request-ID or mints a UUIDv4,
// then echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !idPattern.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(requestIDHeader, rid)
		c.Next()
	}
}

// ClientID stores "client:<X-Client-ID>" or, when the header is absent or
// malformed, "ip:<remote address>".
func ClientID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(clientIDKey, resolveClient(c))
		c.Next()
	}
}

func resolveClient(c *gin.Context) string {
	if h := c.GetHeader(HeaderClientID); idPattern.MatchString(h) {
		return "client:" + h
	}
	return "ip:" + c.ClientIP()
}

// ClientIDFrom returns the caller identity, resolving it on the spot when
// ClientID did not run.
func ClientIDFrom(c *gin.Context) string {
	if s := ctxString(c, clientIDKey); s != "" {
		return s
	}
	return resolveClient(c)
}

// RequestIDFrom returns the correlation ID, falling back to the response
// header.
func RequestIDFrom(c *gin.Context) string {
	if s := ctxString(c, requestIDKey); s != "" {
		return s
	}
	return c.Writer.Header().Get(requestIDHeader)
}

// LoggerFrom returns the request logger, or a child of the global logger.
// It never returns nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok && lg != nil {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// Recovery turns a panic into the API's JSON 500 body. A response that has
// already started is left as is and only aborted.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := RequestIDFrom(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Str("client_id", ClientIDFrom(c)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

func ctxString(c *gin.Context, key string) string {
	v, _ := c.Get(key)
	s, _ := v.(string)
	return s
}

// truncate cuts s to max bytes plus an ellipsis; max <= 0 keeps s whole.
func truncate(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max] + "…"
	}
	return s
}
