// Package domain defines the persistence models for interaction records and
// the batches that commit them. These types are mapped with GORM and are
// shared by the ledger, the batcher, the services and the HTTP layer.
package domain

import "time"

// Status is the lifecycle state of an interaction record.
type Status string

const (
	// StatusSubmitted is set at enqueue time.
	StatusSubmitted Status = "submitted"
	// StatusConfirmed is set once the containing batch is committed.
	StatusConfirmed Status = "confirmed"
	// StatusFinalized is reserved for an external confirmation step.
	StatusFinalized Status = "finalized"
	// StatusFailed is terminal.
	StatusFailed Status = "failed"
)

// Well-known interaction kinds. Kind is an open tag; callers may use others.
const (
	KindLike             = "like"
	KindComment          = "comment"
	KindRepost           = "repost"
	KindFollow           = "follow"
	KindPost             = "post"
	KindCustomAgentEvent = "custom-agent-event"
)

// PendingBatchID tags records that are still waiting in the ledger.
const PendingBatchID = "pending"

// Interaction is a single recorded event awaiting or belonging to a batch.
//
// Fields:
//   - ID: UUID primary key generated at record time.
//   - Kind: case-folded event tag (like, comment, follow, ...).
//   - ActorID / TargetID: opaque references owned by the calling application.
//   - Payload: small JSON object with extra data (often a content hash).
//   - SequenceHeight: last observed backend height, for traceability only.
//   - Status: submitted → confirmed → finalized, or failed.
//   - BlobID: evidence blob reference, set at most once.
//   - BatchID / Position: containing batch and index inside it.
type Interaction struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	Kind           string         `json:"kind"            gorm:"type:varchar(64);not null;index:idx_interactions_kind"`
	ActorID        string         `json:"actor_id"        gorm:"type:varchar(128);not null;index:idx_interactions_actor"`
	TargetID       string         `json:"target_id"       gorm:"type:varchar(128);index:idx_interactions_target"`
	Payload        map[string]any `json:"payload,omitempty" gorm:"serializer:json;type:text"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"not null;index"`
	SequenceHeight uint64         `json:"sequence_height"`
	Status         Status         `json:"status"          gorm:"type:varchar(16);not null;check:status IN ('submitted','confirmed','finalized','failed')"`
	BlobID         string         `json:"blob_id,omitempty" gorm:"type:varchar(255)"`
	BatchID        string         `json:"batch_id,omitempty" gorm:"type:char(36);index:idx_interactions_batch,priority:1"`
	Position       int            `json:"position"        gorm:"index:idx_interactions_batch,priority:2"`
}

// TableName returns the database table name for Interaction.
func (Interaction) TableName() string { return "interactions" }

// Batch is an immutable, time-windowed group of interactions committed with
// a single merkle root. Records keep the order in which they were drained.
type Batch struct {
	ID          string        `json:"id"           gorm:"type:char(36);primaryKey"`
	Commitment  string        `json:"commitment"   gorm:"type:char(64);not null;uniqueIndex"`
	CreatedAt   time.Time     `json:"created_at"   gorm:"not null;index"`
	SizeBytes   int64         `json:"size_bytes"`
	RecordCount int           `json:"record_count"`
	BlobRef     string        `json:"blob_ref,omitempty" gorm:"type:varchar(255)"`
	Records     []Interaction `json:"records"      gorm:"foreignKey:BatchID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Batch.
func (Batch) TableName() string { return "batches" }

// ProofStep is one level of a merkle inclusion proof: the sibling hash and
// whether it sits to the left of the running hash.
type ProofStep struct {
	Hash string `json:"hash" cbor:"hash"`
	Left bool   `json:"left" cbor:"left"`
}

// RecordIDs returns the ordered record ids the commitment is computed over.
func (b *Batch) RecordIDs() []string {
	ids := make([]string, len(b.Records))
	for i := range b.Records {
		ids[i] = b.Records[i].ID
	}
	return ids
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (i Interaction) Clone() Interaction {
	if i.Payload != nil {
		i.Payload = copyMap(i.Payload)
	}
	return i
}

// copyMap copies the JSON shapes a payload can hold: nested objects and
// arrays are copied, other values are immutable.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of the batch and its records.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	out := *b
	out.Records = make([]Interaction, len(b.Records))
	for i := range b.Records {
		out.Records[i] = b.Records[i].Clone()
	}
	return &out
}
