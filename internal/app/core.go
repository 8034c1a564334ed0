// Package app assembles the content gateway, the interaction ledger and the
// batcher into one service object with an explicit lifecycle.
//
// Core is the contract the HTTP layer (and any embedding application) talks
// to: store and retrieve content, record interactions, verify them, query
// their history and read aggregate stats. New wires the components, Start
// restores committed batches and launches the background loops, Close stops
// them after a final best-effort flush.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-availability-core/internal/batcher"
	"github.com/tbourn/go-availability-core/internal/blob"
	"github.com/tbourn/go-availability-core/internal/codec"
	"github.com/tbourn/go-availability-core/internal/config"
	"github.com/tbourn/go-availability-core/internal/domain"
	"github.com/tbourn/go-availability-core/internal/ledger"
	"github.com/tbourn/go-availability-core/internal/repo"
	"github.com/tbourn/go-availability-core/internal/services"
)

// ErrNotStarted is returned by Close when Start was never called.
var ErrNotStarted = errors.New("core not started")

// Deps are the external resources Core runs on.
//
// Client is the remote backend; pass a literal nil (not a typed nil pointer)
// to select the local fallback, which is refused in production. DB is
// optional: without it batches live in memory only and idempotency keys are
// not stored.
type Deps struct {
	DB     *gorm.DB
	Client blob.Client
	Local  *blob.LocalStore
}

// Core is the assembled service.
type Core struct {
	cfg config.Config
	db  *gorm.DB

	Content      *services.ContentService
	Interactions *services.InteractionService
	Batcher      *batcher.Batcher

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New wires the components from cfg. It does no I/O besides creating the
// fallback directory when the local store is selected.
func New(cfg config.Config, deps Deps) (*Core, error) {
	local := deps.Local
	if deps.Client == nil && local == nil && !cfg.IsProduction() {
		var err error
		if local, err = blob.NewLocalStore(cfg.Backend.FallbackDir); err != nil {
			return nil, err
		}
	}

	content, err := services.NewContentService(deps.Client, local, services.ContentConfig{
		MaxBlobSize:       cfg.Store.MaxBlobSize,
		MaxRetries:        retries(cfg.Store.MaxRetries),
		ServiceMaxRetries: retries(cfg.Store.ServiceMaxRetries),
		RetryBaseDelay:    cfg.Store.RetryBaseDelay,
		RetryMaxDelay:     cfg.Store.RetryMaxDelay,
		UploadTimeout:     cfg.Store.UploadTimeout,
		QueryTimeout:      cfg.Store.QueryTimeout,
		Production:        cfg.IsProduction(),
	})
	if err != nil {
		return nil, err
	}

	mode, err := batcher.ParseBlobMode(cfg.Batch.BlobMode)
	if err != nil {
		return nil, err
	}
	compression, err := codec.ParseCompression(cfg.Batch.Compression)
	if err != nil {
		return nil, err
	}

	queue := ledger.NewQueue(cfg.Batch.LedgerCapacity)
	store := batcher.NewStore()
	height := &ledger.Height{}

	b := &batcher.Batcher{
		Queue:  queue,
		Store:  store,
		Height: height,
		Config: batcher.Config{
			Interval:             cfg.Batch.Interval,
			BlobMode:             mode,
			Compression:          compression,
			RecordSizeEstimate:   int64(cfg.Batch.RecordSizeEstimate),
			QueryTimeout:         cfg.Store.QueryTimeout,
			EvidenceTimeout:      cfg.Batch.EvidenceTimeout,
			ShutdownFlushTimeout: cfg.Batch.ShutdownFlushTimeout,
		},
	}
	// Explicit nil checks keep the interfaces untyped-nil when unset.
	if deps.Client != nil {
		b.HeightSource = content
	}
	if deps.DB != nil {
		b.Persister = repo.BatchPersister{DB: deps.DB}
	}
	if mode != batcher.BlobModeOff {
		b.Evidence = evidenceStore{content: content}
	}

	return &Core{
		cfg:     cfg,
		db:      deps.DB,
		Content: content,
		Interactions: &services.InteractionService{
			Queue:  queue,
			Store:  store,
			Height: height,
		},
		Batcher: b,
	}, nil
}

// retries maps the configured retry count onto ContentConfig, where zero
// means "use the default" and a negative value disables retries.
func retries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// evidenceStore uploads batch evidence through the content gateway so it gets
// the same classification and retry policy as user content.
type evidenceStore struct {
	content *services.ContentService
}

func (e evidenceStore) StoreEvidence(ctx context.Context, data []byte, meta map[string]string) (string, error) {
	res, err := e.content.Store(ctx, data, meta)
	if err != nil {
		return "", err
	}
	return res.Reference, nil
}

// Start restores persisted batches and launches the batcher and the
// idempotency janitor. ctx bounds the restore only; the loops run until
// Close.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("core already started")
	}

	if c.db != nil {
		batches, err := repo.LoadBatches(ctx, c.db)
		if err != nil {
			return fmt.Errorf("restore batches: %w", err)
		}
		n := c.Interactions.Store.Load(batches)
		log.Info().Int("batches", n).Msg("committed batches restored")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.started = true

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Batcher.Run(runCtx)
	}()
	if c.db != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.purgeIdempotency(runCtx)
		}()
	}
	go func() {
		wg.Wait()
		close(c.done)
	}()
	return nil
}

// purgeIdempotency deletes expired idempotency keys every quarter TTL
// (between one minute and one hour).
func (c *Core) purgeIdempotency(ctx context.Context) {
	every := c.cfg.IdempotencyTTL / 4
	if every < time.Minute {
		every = time.Minute
	}
	if every > time.Hour {
		every = time.Hour
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, c.db, now.UTC())
			switch {
			case err != nil && ctx.Err() == nil:
				log.Warn().Err(err).Msg("idempotency purge failed")
			case n > 0:
				log.Debug().Int64("purged", n).Msg("expired idempotency keys purged")
			}
		}
	}
}

// Close stops the background loops. The batcher performs a final flush and
// waits for evidence uploads; ctx bounds how long Close waits for that.
func (c *Core) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	c.cancel()
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StoreContent persists content and reports where it lives.
func (c *Core) StoreContent(ctx context.Context, content []byte, metadata map[string]string) (*services.StoreResult, error) {
	return c.Content.Store(ctx, content, metadata)
}

// RetrieveContent returns integrity-checked content for hash.
func (c *Core) RetrieveContent(ctx context.Context, hash string) ([]byte, error) {
	return c.Content.Retrieve(ctx, hash)
}

// RecordInteraction validates and enqueues an interaction and returns its id.
// The only error is services.ErrInvalidInteraction.
func (c *Core) RecordInteraction(ctx context.Context, kind, actorID, targetID string, payload map[string]any) (string, error) {
	if err := services.ValidateInteraction(kind, actorID); err != nil {
		return "", err
	}
	return c.Interactions.Record(ctx, kind, actorID, targetID, payload).ID, nil
}

// VerifyInteraction reports whether id exists and, once committed, its proof.
func (c *Core) VerifyInteraction(ctx context.Context, id string) services.VerifyResult {
	return c.Interactions.Verify(ctx, id)
}

// QueryHistory returns matching interactions, newest first.
func (c *Core) QueryHistory(ctx context.Context, f services.HistoryFilter) []domain.Interaction {
	return c.Interactions.History(ctx, f)
}

// GetStats returns aggregate counters.
func (c *Core) GetStats(ctx context.Context) services.Stats {
	return c.Interactions.Stats(ctx)
}

// Flush commits everything pending now. It returns nil, nil when there is
// nothing to commit.
func (c *Core) Flush(ctx context.Context) (*domain.Batch, error) {
	return c.Batcher.Flush(ctx)
}

// Batch returns a committed batch by id.
func (c *Core) Batch(ctx context.Context, id string) (*domain.Batch, error) {
	return c.Interactions.Batch(ctx, id)
}

// Health summarizes the storage mode and what has been persisted.
type Health struct {
	Status           string     `json:"status"`
	StorageMode      string     `json:"storage_mode"`
	PersistedBatches int64      `json:"persisted_batches"`
	PersistedRecords int64      `json:"persisted_records"`
	LatestBatchAt    *time.Time `json:"latest_batch_at,omitempty"`
	Pending          int        `json:"pending"`
}

// Health reports "ok", or "degraded" when the database cannot be read.
// Local fallback storage is reported but is not a failure.
func (c *Core) Health(ctx context.Context) Health {
	h := Health{Status: "ok", StorageMode: services.ModeRemote, Pending: c.Interactions.Queue.Len()}
	if c.Content.Client == nil {
		h.StorageMode = services.ModeLocalFallback
	}
	if c.db == nil {
		return h
	}
	batches, records, latest, err := repo.BatchesStats(ctx, c.db)
	if err != nil {
		log.Warn().Err(err).Msg("health: batch stats unavailable")
		h.Status = "degraded"
		return h
	}
	h.PersistedBatches, h.PersistedRecords, h.LatestBatchAt = batches, records, latest
	return h
}

// IdempotencyLookup returns a stored response for the triple, if any.
func (c *Core) IdempotencyLookup(ctx context.Context, clientID, route, key string, now time.Time) (int, []byte, bool, error) {
	if c.db == nil {
		return 0, nil, false, nil
	}
	rec, err := repo.GetIdempotency(ctx, c.db, clientID, route, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	return rec.Status, rec.Body, true, nil
}

// IdempotencySave stores a completed response for IdempotencyTTL. A
// concurrent save of the same triple is not an error.
func (c *Core) IdempotencySave(ctx context.Context, clientID, route, key string, status int, body []byte) error {
	if c.db == nil {
		return nil
	}
	_, err := repo.CreateIdempotency(ctx, c.db, clientID, route, key, status, body, c.cfg.IdempotencyTTL)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}
