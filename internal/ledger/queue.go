// Package ledger holds interactions that have been recorded but not yet
// committed to a batch.
//
// The queue is bounded. When it is full the oldest pending interaction is
// evicted so that Enqueue never blocks and never fails; every eviction is
// logged and counted. DrainAll hands the whole backlog to the batcher in one
// step by swapping the backing slice under the lock. Drained records stay
// readable as in-flight until the batcher calls Ack, so a reader never finds
// a record in neither the ledger nor the batch store.
package ledger

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-availability-core/internal/domain"
	"github.com/tbourn/go-availability-core/internal/observability"
)

// DefaultCapacity bounds the pending backlog when no capacity is configured.
const DefaultCapacity = 100_000

// Queue is a bounded FIFO of pending interactions. It is safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	items    []domain.Interaction
	index    map[string]uint64 // id -> sequence number
	base     uint64            // sequence number of items[0]
	capacity int
	dropped  uint64

	inflight    []domain.Interaction
	inflightIdx map[string]int
}

// NewQueue returns an empty queue. capacity <= 0 selects DefaultCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		capacity: capacity,
		index:    make(map[string]uint64),
	}
}

// Capacity returns the configured bound.
func (q *Queue) Capacity() int { return q.capacity }

// Enqueue appends rec. If the queue is full the oldest record is dropped.
func (q *Queue) Enqueue(rec domain.Interaction) {
	q.mu.Lock()
	var evicted *domain.Interaction
	if len(q.items) >= q.capacity {
		old := q.items[0]
		evicted = &old
		delete(q.index, old.ID)
		q.items = q.items[1:]
		q.base++
		q.dropped++
	}
	q.index[rec.ID] = q.base + uint64(len(q.items))
	q.items = append(q.items, rec)
	depth := len(q.items)
	q.mu.Unlock()

	observability.LedgerDepth.Set(float64(depth))
	if evicted != nil {
		observability.LedgerDropped.Inc()
		log.Warn().
			Str("interaction_id", evicted.ID).
			Str("kind", evicted.Kind).
			Int("capacity", q.capacity).
			Msg("ledger full, dropped oldest pending interaction")
	}
}

// DrainAll removes every pending record and returns them in insertion
// order. Records enqueued concurrently land either in this drain or the next
// one. The drained set remains visible through Get and Snapshot until Ack.
func (q *Queue) DrainAll() []domain.Interaction {
	q.mu.Lock()
	drained := q.items
	q.items = nil
	q.base += uint64(len(drained))
	q.index = make(map[string]uint64)

	q.inflight = append(q.inflight, drained...)
	if q.inflightIdx == nil {
		q.inflightIdx = make(map[string]int, len(drained))
	}
	for i := len(q.inflight) - len(drained); i < len(q.inflight); i++ {
		q.inflightIdx[q.inflight[i].ID] = i
	}
	q.mu.Unlock()

	observability.LedgerDepth.Set(0)
	// inflight holds its own copy, so drained is private to the caller.
	return drained
}

// Ack forgets the in-flight records once they are readable elsewhere.
func (q *Queue) Ack() {
	q.mu.Lock()
	q.inflight = nil
	q.inflightIdx = nil
	q.mu.Unlock()
}

// Snapshot returns a copy of the in-flight and pending records, oldest first.
func (q *Queue) Snapshot() []domain.Interaction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.Interaction, 0, len(q.inflight)+len(q.items))
	for i := range q.inflight {
		out = append(out, q.inflight[i].Clone())
	}
	for i := range q.items {
		out = append(out, q.items[i].Clone())
	}
	return out
}

// Get returns the pending or in-flight record with the given id.
func (q *Queue) Get(id string) (domain.Interaction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if seq, ok := q.index[id]; ok && seq >= q.base {
		return q.items[seq-q.base].Clone(), true
	}
	if i, ok := q.inflightIdx[id]; ok {
		return q.inflight[i].Clone(), true
	}
	return domain.Interaction{}, false
}

// Len returns the number of records waiting for the next drain.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns the number of records not yet committed: those waiting for
// the next drain plus those drained but not acknowledged.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight) + len(q.items)
}

// Dropped returns the number of records evicted by the overflow policy.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
