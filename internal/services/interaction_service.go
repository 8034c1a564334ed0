// Package services – InteractionService
//
// InteractionService is the write and read side of the interaction ledger.
// Record appends a submitted interaction to the pending queue; Verify,
// History and Stats answer from the committed batch store and the queue
// without mutating either.
//
// Verify consults the batch store, then the queue, then the batch store once
// more. A record drained between the first two reads is visible in-flight on
// the queue until the batcher has indexed it, so the second store lookup only
// covers the ack that may land between them.
package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/tbourn/go-availability-core/internal/batcher"
	"github.com/tbourn/go-availability-core/internal/domain"
	"github.com/tbourn/go-availability-core/internal/ledger"
)

// VerifyResult answers whether an interaction exists and where it lives.
// BatchID is domain.PendingBatchID while the record waits for a batch.
type VerifyResult struct {
	Found      bool                `json:"found"`
	Record     *domain.Interaction `json:"record,omitempty"`
	BatchID    string              `json:"batch_id,omitempty"`
	Commitment string              `json:"commitment,omitempty"`
	Proof      []domain.ProofStep  `json:"proof,omitempty"`
}

// HistoryFilter narrows History. Empty fields match everything; set fields
// are combined with AND.
type HistoryFilter struct {
	ActorID  string
	TargetID string
	Kind     string
}

// Stats are aggregate counters over the current state.
type Stats struct {
	TotalInteractions int     `json:"total_interactions"`
	PendingCount      int     `json:"pending_count"`
	BatchCount        int     `json:"batch_count"`
	AvgBatchSize      float64 `json:"avg_batch_size"`
	Dropped           uint64  `json:"dropped"`
}

// InteractionService records and queries interactions.
type InteractionService struct {
	Queue  *ledger.Queue
	Store  *batcher.Store
	Height *ledger.Height

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// NormalizeKind trims and case-folds an interaction kind.
func NormalizeKind(kind string) string {
	return cases.Fold().String(strings.TrimSpace(kind))
}

// ValidateInteraction checks the fields a caller must supply.
func ValidateInteraction(kind, actorID string) error {
	if NormalizeKind(kind) == "" || strings.TrimSpace(actorID) == "" {
		return ErrInvalidInteraction
	}
	return nil
}

// Record appends a new submitted interaction to the ledger and returns it.
// It never fails; a full ledger evicts its oldest entry instead.
func (s *InteractionService) Record(ctx context.Context, kind, actorID, targetID string, payload map[string]any) domain.Interaction {
	tr := otel.Tracer("services/InteractionService")
	_, span := tr.Start(ctx, "Record",
		trace.WithAttributes(
			attribute.String("interaction.kind", kind),
			attribute.String("actor.id", actorID),
		),
	)
	defer span.End()

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	newID := uuid.NewString
	if s.NewID != nil {
		newID = s.NewID
	}

	rec := domain.Interaction{
		ID:        newID(),
		Kind:      NormalizeKind(kind),
		ActorID:   strings.TrimSpace(actorID),
		TargetID:  strings.TrimSpace(targetID),
		Payload:   payload,
		CreatedAt: now().UTC(),
		Status:    domain.StatusSubmitted,
	}
	if s.Height != nil {
		rec.SequenceHeight = s.Height.Load()
	}
	rec = rec.Clone()

	s.Queue.Enqueue(rec)
	span.SetAttributes(attribute.String("interaction.id", rec.ID))
	log.Debug().Str("interaction_id", rec.ID).Str("kind", rec.Kind).Msg("interaction recorded")
	return rec.Clone()
}

// Verify reports whether id is known and, when committed, its batch,
// commitment and inclusion proof.
func (s *InteractionService) Verify(ctx context.Context, id string) VerifyResult {
	tr := otel.Tracer("services/InteractionService")
	_, span := tr.Start(ctx, "Verify", trace.WithAttributes(attribute.String("interaction.id", id)))
	defer span.End()

	if loc, ok := s.Store.Locate(id); ok {
		return committed(loc)
	}
	if rec, ok := s.Queue.Get(id); ok {
		return VerifyResult{Found: true, Record: &rec, BatchID: domain.PendingBatchID}
	}
	if loc, ok := s.Store.Locate(id); ok {
		return committed(loc)
	}
	span.SetAttributes(attribute.Bool("interaction.found", false))
	return VerifyResult{}
}

func committed(loc *batcher.Location) VerifyResult {
	rec := loc.Record
	return VerifyResult{
		Found:      true,
		Record:     &rec,
		BatchID:    loc.BatchID,
		Commitment: loc.Commitment,
		Proof:      loc.Proof,
	}
}

// History returns committed and pending interactions matching f, newest
// first. Ties on CreatedAt are broken by ID.
func (s *InteractionService) History(ctx context.Context, f HistoryFilter) []domain.Interaction {
	tr := otel.Tracer("services/InteractionService")
	_, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("filter.actor_id", f.ActorID),
			attribute.String("filter.target_id", f.TargetID),
			attribute.String("filter.kind", f.Kind),
		),
	)
	defer span.End()

	kind := ""
	if f.Kind != "" {
		kind = NormalizeKind(f.Kind)
	}
	match := func(r *domain.Interaction) bool {
		if f.ActorID != "" && r.ActorID != f.ActorID {
			return false
		}
		if f.TargetID != "" && r.TargetID != f.TargetID {
			return false
		}
		if kind != "" && r.Kind != kind {
			return false
		}
		return true
	}

	// Snapshot first: a record drained in between is then seen in both views
	// and deduplicated, never missed.
	pending := s.Queue.Snapshot()
	committedRecs := s.Store.Records()

	seen := make(map[string]struct{}, len(committedRecs)+len(pending))
	out := make([]domain.Interaction, 0)
	for _, set := range [][]domain.Interaction{committedRecs, pending} {
		for i := range set {
			r := &set[i]
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			if match(r) {
				out = append(out, *r)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	span.SetAttributes(attribute.Int("history.count", len(out)))
	return out
}

// Stats derives aggregate counters from the queue and the batch store.
func (s *InteractionService) Stats(ctx context.Context) Stats {
	tr := otel.Tracer("services/InteractionService")
	_, span := tr.Start(ctx, "Stats")
	defer span.End()

	batches, records, pending := s.Store.Tally(s.Queue.Pending)
	st := Stats{
		TotalInteractions: records + pending,
		PendingCount:      pending,
		BatchCount:        batches,
		Dropped:           s.Queue.Dropped(),
	}
	if batches > 0 {
		st.AvgBatchSize = float64(records) / float64(batches)
	}
	return st
}

// Batch returns the committed batch with the given id.
func (s *InteractionService) Batch(ctx context.Context, id string) (*domain.Batch, error) {
	tr := otel.Tracer("services/InteractionService")
	_, span := tr.Start(ctx, "Batch", trace.WithAttributes(attribute.String("batch.id", id)))
	defer span.End()

	b, ok := s.Store.Get(id)
	if !ok {
		return nil, ErrBatchNotFound
	}
	return b, nil
}
