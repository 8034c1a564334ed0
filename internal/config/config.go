// Package config loads the service configuration from the environment.
//
// Every setting has a default; malformed values fall back to that default and
// the assembled Config is then normalized and validated as a whole.
package config

import (
	"errors"
	"os"
	"strings"
	"time"
)

// Deployment environments accepted in APP_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// CORSConfig lists the origins allowed to call the API. Empty allows all.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig controls the Strict-Transport-Security header.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// BackendConfig describes the remote blob backend and the local fallback.
type BackendConfig struct {
	URL         string // BACKEND_URL; empty selects the local fallback outside production
	APIKey      string // BACKEND_API_KEY
	FallbackDir string // FALLBACK_DIR
}

// StoreConfig tunes content storage retries and limits.
type StoreConfig struct {
	MaxBlobSize       int           // MAX_BLOB_SIZE bytes
	MaxRetries        int           // STORE_MAX_RETRIES, network errors
	ServiceMaxRetries int           // SERVICE_MAX_RETRIES, backend service errors
	RetryBaseDelay    time.Duration // RETRY_BASE_DELAY
	RetryMaxDelay     time.Duration // RETRY_MAX_DELAY
	UploadTimeout     time.Duration // UPLOAD_TIMEOUT
	QueryTimeout      time.Duration // QUERY_TIMEOUT
}

// BatchConfig tunes the interaction ledger and the batcher.
type BatchConfig struct {
	Interval             time.Duration // BATCH_INTERVAL
	LedgerCapacity       int           // LEDGER_CAPACITY
	BlobMode             string        // BATCH_BLOB_MODE: off|batch|record
	Compression          string        // EVIDENCE_COMPRESSION: none|zstd|lz4
	RecordSizeEstimate   int           // RECORD_SIZE_ESTIMATE bytes
	EvidenceTimeout      time.Duration // EVIDENCE_TIMEOUT
	ShutdownFlushTimeout time.Duration // SHUTDOWN_FLUSH_TIMEOUT
}

// OTELConfig configures trace export over OTLP/gRPC.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE; plaintext when true
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG, 0..1
}

// Config is the full runtime configuration.
type Config struct {
	Port              string // PORT, without the colon
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string // "/" mounts the API at the root

	Env          string // APP_ENV
	DBPath       string
	MaxBodyBytes int64 // request body cap, uploads included

	Backend BackendConfig
	Store   StoreConfig
	Batch   BatchConfig

	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// IsProduction reports whether APP_ENV selects production.
func (c Config) IsProduction() bool { return c.Env == EnvProduction }

// MustLoad is Load for main: it panics on an invalid configuration.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the process environment.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	e := env(lookup)
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		GinMode:           e.word("GIN_MODE", "release"),

		LogLevel:       e.word("LOG_LEVEL", "info"),
		LogPretty:      e.flag("LOG_PRETTY", false),
		SwaggerEnabled: e.flag("SWAGGER_ENABLED", false),
		APIBasePath:    basePath(e.str("API_BASE_PATH", "/api/v1")),

		Env:          e.word("APP_ENV", EnvDevelopment),
		DBPath:       e.str("DB_PATH", "app.db"),
		MaxBodyBytes: int64(e.integer("MAX_BODY_BYTES", 48<<20)),

		Backend: BackendConfig{
			URL:         strings.TrimSpace(e.str("BACKEND_URL", "")),
			APIKey:      e.str("BACKEND_API_KEY", ""),
			FallbackDir: e.str("FALLBACK_DIR", "data/blobs"),
		},
		Store: StoreConfig{
			MaxBlobSize:       e.integer("MAX_BLOB_SIZE", 32_505_852),
			MaxRetries:        e.integer("STORE_MAX_RETRIES", 3),
			ServiceMaxRetries: e.integer("SERVICE_MAX_RETRIES", 1),
			RetryBaseDelay:    e.dur("RETRY_BASE_DELAY", time.Second),
			RetryMaxDelay:     e.dur("RETRY_MAX_DELAY", 10*time.Second),
			UploadTimeout:     e.dur("UPLOAD_TIMEOUT", 10*time.Second),
			QueryTimeout:      e.dur("QUERY_TIMEOUT", 5*time.Second),
		},
		Batch: BatchConfig{
			Interval:             e.dur("BATCH_INTERVAL", 10*time.Second),
			LedgerCapacity:       e.integer("LEDGER_CAPACITY", 100_000),
			BlobMode:             e.word("BATCH_BLOB_MODE", "off"),
			Compression:          e.word("EVIDENCE_COMPRESSION", "zstd"),
			RecordSizeEstimate:   e.integer("RECORD_SIZE_ESTIMATE", 256),
			EvidenceTimeout:      e.dur("EVIDENCE_TIMEOUT", 2*time.Minute),
			ShutdownFlushTimeout: e.dur("SHUTDOWN_FLUSH_TIMEOUT", 15*time.Second),
		},

		RateRPS:   e.number("RATE_RPS", 5),
		RateBurst: e.integer("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: e.flag("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.flag("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.flag("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "availability-core"),
			SampleRatio: e.number("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}
	cfg.normalize()
	return cfg, cfg.Validate()
}

// normalize folds accepted aliases into their canonical spelling.
func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.Env {
	case "prod":
		c.Env = EnvProduction
	case "dev":
		c.Env = EnvDevelopment
	}
	if !oneOf(c.GinMode, "debug", "release", "test") {
		c.GinMode = "release"
	}
}

// Validate reports the first setting that is out of range.
func (c Config) Validate() error {
	localOnly := c.Backend.URL == ""
	checks := []struct {
		bad bool
		msg string
	}{
		{!oneOf(c.LogLevel, "debug", "info", "warn", "error", "fatal", "panic"),
			"LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		{strings.TrimSpace(c.Port) == "", "PORT must not be empty"},
		{c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0,
			"server timeouts must be positive durations"},
		{c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
		{strings.TrimSpace(c.DBPath) == "", "DB_PATH must not be empty"},
		{!oneOf(c.Env, EnvDevelopment, EnvProduction, EnvTest),
			"APP_ENV must be one of: development, production, test"},
		{c.IsProduction() && localOnly, "BACKEND_URL is required in production"},
		{c.IsProduction() && strings.TrimSpace(c.Backend.APIKey) == "", "BACKEND_API_KEY is required in production"},
		{localOnly && strings.TrimSpace(c.Backend.FallbackDir) == "",
			"FALLBACK_DIR must not be empty when BACKEND_URL is unset"},
		{c.MaxBodyBytes <= 0, "MAX_BODY_BYTES must be > 0"},
		{c.Store.MaxBlobSize <= 0, "MAX_BLOB_SIZE must be > 0"},
		{c.Store.MaxRetries < 0 || c.Store.ServiceMaxRetries < 0,
			"STORE_MAX_RETRIES and SERVICE_MAX_RETRIES must be >= 0"},
		{c.Store.RetryBaseDelay <= 0 || c.Store.RetryMaxDelay < c.Store.RetryBaseDelay,
			"RETRY_BASE_DELAY must be > 0 and RETRY_MAX_DELAY >= RETRY_BASE_DELAY"},
		{c.Store.UploadTimeout <= 0 || c.Store.QueryTimeout <= 0,
			"UPLOAD_TIMEOUT and QUERY_TIMEOUT must be positive durations"},
		{c.Batch.Interval <= 0, "BATCH_INTERVAL must be > 0"},
		{c.Batch.LedgerCapacity < 1, "LEDGER_CAPACITY must be >= 1"},
		{!oneOf(c.Batch.BlobMode, "off", "batch", "record"),
			"BATCH_BLOB_MODE must be one of: off, batch, record"},
		{!oneOf(c.Batch.Compression, "none", "zstd", "lz4"),
			"EVIDENCE_COMPRESSION must be one of: none, zstd, lz4"},
		{c.Batch.RecordSizeEstimate < 1, "RECORD_SIZE_ESTIMATE must be >= 1"},
		{c.Batch.EvidenceTimeout <= 0 || c.Batch.ShutdownFlushTimeout <= 0,
			"EVIDENCE_TIMEOUT and SHUTDOWN_FLUSH_TIMEOUT must be positive durations"},
		{c.RateRPS < 0, "RATE_RPS must be >= 0"},
		{c.RateBurst < 1, "RATE_BURST must be >= 1"},
		{c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},
		{c.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0"},
		{c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	for _, chk := range checks {
		if chk.bad {
			return errors.New(chk.msg)
		}
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// basePath yields "/" or a path with a leading slash and no trailing one.
func basePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return "/"
	}
	return "/" + p
}
