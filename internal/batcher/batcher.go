// Package batcher turns pending interactions into committed batches.
//
// On every tick the batcher drains the ledger, computes a merkle commitment
// over the drained record ids, indexes the batch in the in-memory Store,
// marks the records confirmed, persists the batch and, when enabled, uploads
// an evidence envelope to the blob backend in the background.
//
// Flush is single-flight. A drained set always becomes exactly one batch, so
// every enqueued record appears in exactly one batch.
package batcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-availability-core/internal/codec"
	"github.com/tbourn/go-availability-core/internal/domain"
	"github.com/tbourn/go-availability-core/internal/ledger"
	"github.com/tbourn/go-availability-core/internal/observability"
)

// Defaults applied when the matching Config field is unset.
const (
	DefaultInterval             = 10 * time.Second
	DefaultQueryTimeout         = 5 * time.Second
	DefaultEvidenceTimeout      = 2 * time.Minute
	DefaultShutdownFlushTimeout = 15 * time.Second
	DefaultRecordSizeEstimate   = 256
)

// BlobMode selects how committed batches are backed by evidence blobs.
type BlobMode string

const (
	BlobModeOff    BlobMode = "off"
	BlobModeBatch  BlobMode = "batch"
	BlobModeRecord BlobMode = "record"
)

// ParseBlobMode parses "off", "batch" or "record". Empty means off.
func ParseBlobMode(s string) (BlobMode, error) {
	switch m := BlobMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return BlobModeOff, nil
	case BlobModeOff, BlobModeBatch, BlobModeRecord:
		return m, nil
	default:
		return "", fmt.Errorf("unknown blob mode %q", s)
	}
}

// HeightSource reports the backend's current sequence height.
type HeightSource interface {
	Height(ctx context.Context) (uint64, error)
}

// EvidenceStore uploads an evidence envelope and returns its durable reference.
type EvidenceStore interface {
	StoreEvidence(ctx context.Context, data []byte, meta map[string]string) (string, error)
}

// Persister writes committed batches to durable storage.
type Persister interface {
	SaveBatch(ctx context.Context, b *domain.Batch) error
	SetEvidence(ctx context.Context, batchID, batchRef string, recordRefs map[string]string) error
}

// Config tunes the batcher. Zero values select the defaults above.
type Config struct {
	Interval             time.Duration
	BlobMode             BlobMode
	Compression          codec.Compression
	RecordSizeEstimate   int64
	QueryTimeout         time.Duration
	EvidenceTimeout      time.Duration
	ShutdownFlushTimeout time.Duration
}

// Batcher periodically commits the ledger. Queue and Store are required;
// the remaining dependencies are optional.
type Batcher struct {
	Queue  *ledger.Queue
	Store  *Store
	Height *ledger.Height

	HeightSource HeightSource
	Persister    Persister
	Evidence     EvidenceStore

	Config Config

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string

	flushMu sync.Mutex
	uploads sync.WaitGroup
}

// Run flushes on every tick until ctx is cancelled, then performs one final
// best-effort flush and waits for in-flight evidence uploads.
func (b *Batcher) Run(ctx context.Context) {
	interval := b.Config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	log.Info().Dur("interval", interval).Str("blob_mode", string(b.blobMode())).Msg("batcher started")
	for {
		select {
		case <-ctx.Done():
			b.finalFlush()
			b.Wait()
			log.Info().Msg("batcher stopped")
			return
		case <-t.C:
			if _, err := b.Flush(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("batch flush failed")
			}
		}
	}
}

func (b *Batcher) finalFlush() {
	timeout := b.Config.ShutdownFlushTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownFlushTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	batch, err := b.Flush(ctx)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("final batch flush failed")
	case batch != nil:
		log.Info().Str("batch_id", batch.ID).Int("records", batch.RecordCount).Msg("final batch flushed")
	}
}

// Wait blocks until background evidence uploads have finished.
func (b *Batcher) Wait() { b.uploads.Wait() }

// Flush commits everything currently pending. It returns nil, nil when the
// ledger is empty.
func (b *Batcher) Flush(ctx context.Context) (*domain.Batch, error) {
	tr := otel.Tracer("batcher/Batcher")
	ctx, span := tr.Start(ctx, "Flush")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.refreshHeight(ctx)

	pending := b.Queue.DrainAll()
	if len(pending) == 0 {
		return nil, nil
	}

	batch := b.commit(pending)
	b.Store.Commit(batch, b.Queue.Ack)

	observability.BatchesCommitted.Inc()
	observability.BatchSize.Observe(float64(batch.RecordCount))
	span.SetAttributes(
		attribute.String("batch.id", batch.ID),
		attribute.Int("batch.records", batch.RecordCount),
	)
	log.Info().
		Str("batch_id", batch.ID).
		Str("commitment", batch.Commitment).
		Int("records", batch.RecordCount).
		Int64("size_bytes", batch.SizeBytes).
		Msg("batch committed")

	if b.Persister != nil {
		if err := b.Persister.SaveBatch(ctx, batch.Clone()); err != nil {
			// The batch stays committed in memory.
			observability.PersistFailures.Inc()
			log.Error().Err(err).Str("batch_id", batch.ID).Msg("persist batch failed")
		}
	}

	if b.blobMode() != BlobModeOff && b.Evidence != nil {
		b.uploads.Add(1)
		go b.uploadEvidence(context.WithoutCancel(ctx), batch.Clone())
	}

	return batch.Clone(), nil
}

func (b *Batcher) commit(pending []domain.Interaction) *domain.Batch {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	newID := uuid.NewString
	if b.NewID != nil {
		newID = b.NewID
	}
	est := b.Config.RecordSizeEstimate
	if est <= 0 {
		est = DefaultRecordSizeEstimate
	}

	batch := &domain.Batch{
		ID:          newID(),
		CreatedAt:   now().UTC(),
		RecordCount: len(pending),
		SizeBytes:   int64(len(pending)) * est,
		Records:     pending,
	}
	for i := range batch.Records {
		r := &batch.Records[i]
		r.Status = domain.StatusConfirmed
		r.BatchID = batch.ID
		r.Position = i
	}
	batch.Commitment = Root(batch.RecordIDs())
	return batch
}

func (b *Batcher) refreshHeight(ctx context.Context) {
	if b.HeightSource == nil || b.Height == nil {
		return
	}
	timeout := b.Config.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h, err := b.HeightSource.Height(hctx)
	if err != nil {
		log.Warn().Err(err).Msg("height refresh failed")
		return
	}
	b.Height.Observe(h)
}

func (b *Batcher) blobMode() BlobMode {
	if b.Config.BlobMode == "" {
		return BlobModeOff
	}
	return b.Config.BlobMode
}

// uploadEvidence stores the envelope(s) for batch and records the resulting
// references. Failures are logged and counted; BlobIDs then stay empty.
func (b *Batcher) uploadEvidence(ctx context.Context, batch *domain.Batch) {
	defer b.uploads.Done()

	timeout := b.Config.EvidenceTimeout
	if timeout <= 0 {
		timeout = DefaultEvidenceTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tr := otel.Tracer("batcher/Batcher")
	ctx, span := tr.Start(ctx, "uploadEvidence", trace.WithAttributes(
		attribute.String("batch.id", batch.ID),
		attribute.String("blob.mode", string(b.blobMode())),
	))
	defer span.End()

	var batchRef string
	refs := make(map[string]string, len(batch.Records))

	switch b.blobMode() {
	case BlobModeBatch:
		ref, err := b.store(ctx, codec.BatchEnvelope(batch), batch, "")
		if err != nil {
			return
		}
		batchRef = ref
		for i := range batch.Records {
			refs[batch.Records[i].ID] = ref
		}
	case BlobModeRecord:
		ids := batch.RecordIDs()
		for i := range batch.Records {
			proof, err := Proof(ids, i)
			if err != nil {
				continue
			}
			ref, err := b.store(ctx, codec.RecordEnvelope(batch, i, proof), batch, batch.Records[i].ID)
			if err != nil {
				continue
			}
			refs[batch.Records[i].ID] = ref
		}
	}
	if len(refs) == 0 && batchRef == "" {
		return
	}

	b.Store.SetEvidence(batch.ID, batchRef, refs)
	if b.Persister != nil {
		if err := b.Persister.SetEvidence(ctx, batch.ID, batchRef, refs); err != nil {
			observability.PersistFailures.Inc()
			log.Error().Err(err).Str("batch_id", batch.ID).Msg("persist evidence references failed")
		}
	}
	log.Debug().Str("batch_id", batch.ID).Int("refs", len(refs)).Msg("evidence uploaded")
}

func (b *Batcher) store(ctx context.Context, env *codec.Envelope, batch *domain.Batch, recordID string) (string, error) {
	data, err := codec.EncodeEnvelope(env, b.Config.Compression)
	if err == nil {
		meta := map[string]string{
			"Envelope":   env.Kind,
			"Batch-Id":   batch.ID,
			"Commitment": batch.Commitment,
		}
		if recordID != "" {
			meta["Record-Id"] = recordID
		}
		var ref string
		ref, err = b.Evidence.StoreEvidence(ctx, data, meta)
		if err == nil {
			observability.EvidenceUploads.WithLabelValues("ok").Inc()
			return ref, nil
		}
	}
	observability.EvidenceUploads.WithLabelValues("error").Inc()
	log.Warn().Err(err).Str("batch_id", batch.ID).Str("record_id", recordID).Msg("evidence upload failed")
	return "", err
}
