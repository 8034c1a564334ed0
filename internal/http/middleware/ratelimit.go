// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a process-local token-bucket rate limiter with one
// bucket per client (see ClientID) and opportunistic eviction of idle buckets.
// Requests may cost more than one token: content uploads are weighted by
// their declared size so a few large blobs cannot starve small writes.
//
// For horizontally scaled deployments prefer a shared limiter. This one is
// for edge-level abuse and cost control, not authorization.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// costFunc returns how many tokens a request consumes (at least 1).
type costFunc func(*gin.Context) int

// KeyByClient keys buckets by the identity resolved by ClientID, which is
// either "client:<id>" or "ip:<addr>".
func KeyByClient() keyFunc {
	return ClientIDFrom
}

// CostByContentLength charges one token per started perMiB bytes of declared
// request body, with a minimum of one. Requests without a declared length
// cost one token.
func CostByContentLength(perMiB int64) costFunc {
	if perMiB <= 0 {
		perMiB = 1 << 20
	}
	return func(c *gin.Context) int {
		n := c.Request.ContentLength
		if n <= perMiB {
			return 1
		}
		return int((n + perMiB - 1) / perMiB)
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements a per-key token-bucket rate limiter. It is safe for
// concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	costFn   costFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter constructs a RateLimiter with the given tokens-per-second
// and burst size, keyed by keyFn. burst <= 0 is coerced to 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// WithCost sets the per-request cost function. Costs above the burst are
// clamped to the burst so a single request can always eventually pass.
func (rl *RateLimiter) WithCost(fn costFunc) *RateLimiter {
	rl.costFn = fn
	return rl
}

// getVisitor returns (and touches) the limiter for key. Every 5000 lookups it
// evicts buckets idle for at least ttl, before touching the requested one.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

func (rl *RateLimiter) cost(c *gin.Context) int {
	n := 1
	if rl.costFn != nil {
		n = rl.costFn(c)
	}
	if n < 1 {
		n = 1
	}
	if n > rl.burst {
		n = rl.burst
	}
	return n
}

// retryAfter estimates how long until n tokens are available again, in
// whole seconds (minimum 1).
func (rl *RateLimiter) retryAfter(n int) int {
	if rl.rps <= 0 {
		return 60
	}
	s := int(math.Ceil(float64(n) / float64(rl.rps)))
	if s < 1 {
		s = 1
	}
	return s
}

// Handler returns a Gin middleware that enforces the limits. Rejected
// requests get:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: <seconds>
//	{"request_id": "...", "code": "rate_limited", "message": "rate limit exceeded"}
//
// Idempotent replays are answered before this middleware runs and never
// consume tokens.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		n := rl.cost(c)
		if rl.getVisitor(rl.keyFn(c)).AllowN(time.Now(), n) {
			c.Next()
			return
		}

		c.Header("Retry-After", strconv.Itoa(rl.retryAfter(n)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
