package batcher

import (
	"sync"

	"github.com/tbourn/go-availability-core/internal/domain"
)

// Location describes where a committed record lives.
type Location struct {
	Record     domain.Interaction
	BatchID    string
	Commitment string
	Proof      []domain.ProofStep
}

type recordRef struct {
	batch *domain.Batch
	pos   int
}

// Store keeps committed batches in memory, indexed by batch id and by record
// id. Readers get copies; batches are never mutated after Add apart from the
// evidence references.
type Store struct {
	mu       sync.RWMutex
	order    []*domain.Batch
	byID     map[string]*domain.Batch
	byRecord map[string]recordRef
	records  int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		byID:     make(map[string]*domain.Batch),
		byRecord: make(map[string]recordRef),
	}
}

// Add indexes b. A batch id that is already present is ignored.
func (s *Store) Add(b *domain.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(b)
}

// Commit adds b and runs release before the lock is dropped. Pass the ledger
// acknowledgement as release so that Tally sees the records in exactly one
// place.
func (s *Store) Commit(b *domain.Batch, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(b)
	if release != nil {
		release()
	}
}

func (s *Store) addLocked(b *domain.Batch) bool {
	if _, dup := s.byID[b.ID]; dup {
		return false
	}
	s.order = append(s.order, b)
	s.byID[b.ID] = b
	for i := range b.Records {
		s.byRecord[b.Records[i].ID] = recordRef{batch: b, pos: i}
	}
	s.records += len(b.Records)
	return true
}

// Load restores previously persisted batches, oldest first. It returns the
// number of batches added.
func (s *Store) Load(batches []domain.Batch) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range batches {
		b := batches[i].Clone()
		if s.addLocked(b) {
			n++
		}
	}
	return n
}

// Get returns a copy of the batch with the given id.
func (s *Store) Get(id string) (*domain.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// Locate finds a committed record and builds its inclusion proof.
func (s *Store) Locate(recordID string) (*Location, bool) {
	s.mu.RLock()
	ref, ok := s.byRecord[recordID]
	if !ok {
		s.mu.RUnlock()
		return nil, false
	}
	loc := &Location{
		Record:     ref.batch.Records[ref.pos].Clone(),
		BatchID:    ref.batch.ID,
		Commitment: ref.batch.Commitment,
	}
	ids := ref.batch.RecordIDs()
	s.mu.RUnlock()

	// Hashing happens outside the lock.
	proof, err := Proof(ids, ref.pos)
	if err == nil {
		loc.Proof = proof
	}
	return loc, true
}

// Records returns copies of every committed record, batch by batch.
func (s *Store) Records() []domain.Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Interaction, 0, s.records)
	for _, b := range s.order {
		for i := range b.Records {
			out = append(out, b.Records[i].Clone())
		}
	}
	return out
}

// Counts returns the number of batches and committed records.
func (s *Store) Counts() (batches, records int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), s.records
}

// Tally is Counts plus pending(), read under the same lock as the counts.
func (s *Store) Tally(pending func() int) (batches, records, waiting int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), s.records, pending()
}

// SetEvidence records evidence blob references for a batch. batchRef may be
// empty; recordRefs maps record ids to references. Fields already set are
// left untouched.
func (s *Store) SetEvidence(batchID, batchRef string, recordRefs map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[batchID]
	if !ok {
		return
	}
	if b.BlobRef == "" {
		b.BlobRef = batchRef
	}
	for i := range b.Records {
		r := &b.Records[i]
		if ref, ok := recordRefs[r.ID]; ok && r.BlobID == "" {
			r.BlobID = ref
		}
	}
}
