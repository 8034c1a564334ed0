// Package httpapi wires the HTTP transport (Gin) to the assembled core,
// middleware and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation and client IDs, logging/redaction, panic recovery,
// compression, metrics, idempotency, rate limiting, CORS and security
// headers.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-availability-core/docs"
	"github.com/tbourn/go-availability-core/internal/app"
	"github.com/tbourn/go-availability-core/internal/config"
	"github.com/tbourn/go-availability-core/internal/http/handlers"
	"github.com/tbourn/go-availability-core/internal/http/middleware"
)

// uploadCostUnit is the body size charged as one rate-limit token.
const uploadCostUnit = 1 << 20

// RegisterRoutes attaches all middleware and HTTP endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID, ClientID: correlation and caller identity
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Gzip and the body size limiter
//  6. Metrics
//  7. Idempotency (before rate limiting: replays cost no tokens)
//  8. Rate limiter (per client, uploads weighted by size)
//  9. CORS and security headers
func RegisterRoutes(r *gin.Engine, core *app.Core, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID(), middleware.ClientID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Api-Key", "X-Backend-Key"},
	}))
	r.Use(middleware.Recovery())

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))
	r.Use(limitBody(cfg.MaxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.Idempotency(
		middleware.IdempotencyOptions{MaxLen: 200},
		core.IdempotencyLookup,
		core.IdempotencySave,
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClient()).
		WithCost(middleware.CostByContentLength(uploadCostUnit))
	r.Use(rl.Handler())

	r.Use(corsHandlers(cfg.CORS.AllowedOrigins)...)

	// API responses are not cacheable unless a handler says otherwise
	// (content by hash is immutable).
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(core)
	r.GET("/health", h.Health)

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase(cfg.APIBasePath)
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/content", h.StoreContent)
		api.GET("/content/:hash", h.RetrieveContent)

		api.POST("/interactions", h.RecordInteraction)
		api.GET("/interactions", h.ListInteractions)
		api.GET("/interactions/:id/verify", h.VerifyInteraction)

		api.GET("/batches/:id", h.GetBatch)
		api.POST("/batches/flush", h.FlushBatch)
		api.GET("/stats", h.GetStats)
	}
}

// corsHandlers answers preflights and sets Access-Control-Allow-Origin.
// With no configured origins every origin is allowed, and "*" is set even
// on requests without an Origin header. Otherwise a listed origin is echoed
// back with Vary: Origin.
func corsHandlers(origins []string) []gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
			middleware.HeaderClientID, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders: []string{
			"X-Request-ID", "Content-Length", "ETag", "Retry-After",
			middleware.HeaderIdempotentReplay,
		},
		MaxAge: 12 * time.Hour,
	}

	var echo gin.HandlerFunc
	if len(origins) == 0 {
		// Credentials stay off: browsers reject them with a wildcard origin.
		cc.AllowAllOrigins = true
		echo = func(c *gin.Context) {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Next()
		}
	} else {
		cc.AllowOrigins = origins
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		echo = func(c *gin.Context) {
			if o := c.GetHeader("Origin"); allowed[o] {
				c.Header("Access-Control-Allow-Origin", o)
				c.Writer.Header().Add("Vary", "Origin")
			}
			c.Next()
		}
	}
	return []gin.HandlerFunc{echo, cors.New(cc)}
}

// limitBody caps the request body at maxBytes using http.MaxBytesReader.
// Reads past the cap fail with *http.MaxBytesError. A non-positive cap
// disables the limit.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// groupWithPrefix mounts the API group; an empty or "/" prefix means root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	return r.Group(apiBase(prefix))
}

func apiBase(prefix string) string {
	if prefix == "" || prefix == "/" {
		return ""
	}
	return prefix
}
