// Package services – ContentService
//
// ContentService persists arbitrary content to the content-addressed blob
// backend. It hashes the payload, submits it with a per-call timeout,
// classifies failures, retries transient ones with exponential backoff and
// resolves "already exists" answers by looking up the genuine reference.
// Retrieval re-hashes the downloaded bytes and refuses data that does not
// match the requested hash.
//
// Without a backend client the service writes to a local directory instead.
// That mode exists for development only; NewContentService refuses it in
// production.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-availability-core/internal/blob"
	"github.com/tbourn/go-availability-core/internal/classify"
	"github.com/tbourn/go-availability-core/internal/observability"
)

// Store modes reported in StoreResult.Mode.
const (
	ModeRemote        = "remote"
	ModeExisting      = "existing"
	ModeLocalFallback = "local-fallback"
)

// StoreResult describes where content ended up.
type StoreResult struct {
	Hash      string `json:"hash"`
	Reference string `json:"reference"`
	Mode      string `json:"mode"`
	Attempts  int    `json:"attempts"`
}

// ContentConfig tunes ContentService. Zero values select the defaults.
type ContentConfig struct {
	// MaxBlobSize caps payloads; defaults to blob.MaxBlobSize.
	MaxBlobSize int
	// MaxRetries is the retry ceiling for network errors (default 3).
	// A negative value disables retries.
	MaxRetries int
	// ServiceMaxRetries is the retry ceiling for backend service errors
	// (default 1). A negative value disables retries.
	ServiceMaxRetries int
	// RetryBaseDelay and RetryMaxDelay shape the backoff: the n-th retry
	// waits min(RetryMaxDelay, RetryBaseDelay * 2^(n-1)).
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// UploadTimeout bounds a single submit call; QueryTimeout bounds fetch,
	// lookup and height calls.
	UploadTimeout time.Duration
	QueryTimeout  time.Duration
	// Production forbids the local fallback.
	Production bool
}

func (c *ContentConfig) withDefaults() {
	if c.MaxBlobSize <= 0 {
		c.MaxBlobSize = blob.MaxBlobSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.ServiceMaxRetries < 0 {
		c.ServiceMaxRetries = 0
	} else if c.ServiceMaxRetries == 0 {
		c.ServiceMaxRetries = 1
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = 10 * time.Second
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 5 * time.Second
	}
}

// ContentService stores and retrieves content by hash.
type ContentService struct {
	// Client is the backend transport; nil selects the local fallback.
	Client blob.Client
	// Local is the fallback store, used only when Client is nil.
	Local *blob.LocalStore
	Cfg   ContentConfig

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewContentService validates the dependency combination and applies
// defaults. A nil client in production yields ErrFallbackInProduction.
func NewContentService(client blob.Client, local *blob.LocalStore, cfg ContentConfig) (*ContentService, error) {
	if client == nil {
		if cfg.Production {
			return nil, ErrFallbackInProduction
		}
		if local == nil {
			return nil, errors.New("content service needs a backend client or a fallback directory")
		}
	}
	cfg.withDefaults()
	return &ContentService{Client: client, Local: local, Cfg: cfg, sleep: sleepCtx}, nil
}

// Hash returns the lowercase hex SHA-256 of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ValidHash reports whether h has the shape of a content hash.
func ValidHash(h string) bool {
	if len(h) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Store persists content and returns where it lives. Failures are returned
// as *ContentError.
func (s *ContentService) Store(ctx context.Context, content []byte, metadata map[string]string) (res *StoreResult, err error) {
	hash := Hash(content)

	tr := otel.Tracer("services/ContentService")
	ctx, span := tr.Start(ctx, "Store",
		trace.WithAttributes(
			attribute.String("content.hash", hash),
			attribute.Int("content.size", len(content)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.StoreLatency.Observe(time.Since(start).Seconds())
		outcome := ""
		if err != nil {
			outcome = string(KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		} else {
			outcome = res.Mode
			span.SetAttributes(attribute.String("store.mode", res.Mode), attribute.Int("store.attempts", res.Attempts))
		}
		observability.StoreOutcomes.WithLabelValues(outcome).Inc()
	}()

	if len(content) > s.Cfg.MaxBlobSize {
		return nil, contentError(classify.KindPayloadTooLarge, hash, 0, blob.ErrPayloadTooLarge)
	}

	if s.Client == nil {
		return s.storeLocal(hash, content)
	}

	bo := &backoff.ExponentialBackOff{
		InitialInterval: s.Cfg.RetryBaseDelay,
		Multiplier:      2,
		MaxInterval:     s.Cfg.RetryMaxDelay,
	}
	req := blob.SubmitRequest{Payload: content, Hash: hash, SizeLimit: s.Cfg.MaxBlobSize, Metadata: metadata}

	for attempt := 1; ; attempt++ {
		observability.StoreAttempts.Inc()
		rec, err := s.submit(ctx, req)
		if err == nil {
			log.Debug().Str("hash", hash).Int("attempts", attempt).Msg("content stored")
			return &StoreResult{Hash: hash, Reference: rec.ConfirmationReference, Mode: ModeRemote, Attempts: attempt}, nil
		}
		if errors.Is(err, blob.ErrPayloadTooLarge) {
			return nil, contentError(classify.KindPayloadTooLarge, hash, attempt, err)
		}

		cls := classify.Classify(err)
		if cls.Kind == classify.KindAlreadyExists {
			return s.resolveExisting(ctx, hash, attempt, err)
		}

		retriesUsed := attempt - 1
		if !cls.Retryable || retriesUsed >= s.ceiling(cls.Kind) {
			log.Warn().Err(err).Str("hash", hash).Str("kind", string(cls.Kind)).Int("attempts", attempt).Msg("content store failed")
			return nil, contentError(cls.Kind, hash, attempt, err)
		}

		delay := bo.NextBackOff()
		log.Warn().Err(err).Str("hash", hash).Str("kind", string(cls.Kind)).
			Int("attempt", attempt).Dur("backoff", delay).Msg("content store attempt failed, retrying")
		sleep := s.sleep
		if sleep == nil {
			sleep = sleepCtx
		}
		if serr := sleep(ctx, delay); serr != nil {
			return nil, contentError(cls.Kind, hash, attempt, fmt.Errorf("%w (retry aborted: %v)", err, serr))
		}
	}
}

func (s *ContentService) ceiling(k classify.Kind) int {
	switch k {
	case classify.KindNetwork:
		return s.Cfg.MaxRetries
	case classify.KindService:
		return s.Cfg.ServiceMaxRetries
	default:
		return 0
	}
}

func (s *ContentService) submit(ctx context.Context, req blob.SubmitRequest) (*blob.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Cfg.UploadTimeout)
	defer cancel()
	return s.Client.Submit(ctx, req)
}

// resolveExisting asks the backend for the reference of a blob it already
// holds. A failed lookup is reported, never papered over.
func (s *ContentService) resolveExisting(ctx context.Context, hash string, attempts int, cause error) (*StoreResult, error) {
	qctx, cancel := context.WithTimeout(ctx, s.Cfg.QueryTimeout)
	defer cancel()

	rec, err := s.Client.Lookup(qctx, hash)
	if err != nil || rec == nil || rec.ConfirmationReference == "" {
		if err == nil {
			err = blob.ErrNotFound
		}
		log.Warn().Err(err).Str("hash", hash).Msg("content already exists but reference lookup failed")
		return nil, contentError(classify.KindDuplicateUnresolved, hash, attempts, fmt.Errorf("%w; lookup: %v", cause, err))
	}
	return &StoreResult{Hash: hash, Reference: rec.ConfirmationReference, Mode: ModeExisting, Attempts: attempts}, nil
}

func (s *ContentService) storeLocal(hash string, content []byte) (*StoreResult, error) {
	ref, err := s.Local.Put(hash, content)
	if err != nil {
		return nil, contentError(classify.KindUnknown, hash, 0, err)
	}
	log.Warn().Str("hash", hash).Str("dir", s.Local.Dir()).Msg("content stored in local fallback; not durable")
	return &StoreResult{Hash: hash, Reference: ref, Mode: ModeLocalFallback}, nil
}

// Retrieve returns the content stored under hash after checking that it
// hashes back to the same value.
func (s *ContentService) Retrieve(ctx context.Context, hash string) (data []byte, err error) {
	tr := otel.Tracer("services/ContentService")
	ctx, span := tr.Start(ctx, "Retrieve", trace.WithAttributes(attribute.String("content.hash", hash)))
	defer span.End()

	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
			if outcome == "" {
				outcome = "invalid_hash"
			}
			span.RecordError(err)
		}
		observability.RetrieveOutcomes.WithLabelValues(outcome).Inc()
	}()

	if !ValidHash(hash) {
		return nil, ErrInvalidHash
	}

	if s.Client == nil {
		data, err = s.Local.Get(hash)
	} else {
		qctx, cancel := context.WithTimeout(ctx, s.Cfg.QueryTimeout)
		data, err = s.Client.Fetch(qctx, hash)
		cancel()
	}
	if err != nil {
		if blob.IsNotFound(err) {
			return nil, contentError(classify.KindNotFound, hash, 1, err)
		}
		return nil, contentError(classify.KindBackendUnavailable, hash, 1, err)
	}

	if got := Hash(data); got != hash {
		log.Error().Str("hash", hash).Str("actual", got).Msg("retrieved content failed integrity check")
		return nil, contentError(classify.KindIntegrity, hash, 1, fmt.Errorf("content hashes to %s", got))
	}
	return data, nil
}

// Height proxies the backend's current sequence height.
func (s *ContentService) Height(ctx context.Context) (uint64, error) {
	if s.Client == nil {
		return 0, blob.ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, s.Cfg.QueryTimeout)
	defer cancel()
	return s.Client.Height(ctx)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
