package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/go-availability-core/internal/domain"
)

// magic prefixes every envelope; the trailing byte is the format version.
var magic = [4]byte{'A', 'V', 'E', 1}

// Envelope kinds.
const (
	KindBatch  = "batch"
	KindRecord = "record"
)

// ErrMalformedEnvelope is returned by DecodeEnvelope for truncated or
// foreign input.
var ErrMalformedEnvelope = errors.New("malformed evidence envelope")

// Envelope is the evidence document uploaded for a committed batch, or for a
// single record of it. Record envelopes carry the inclusion proof so they
// verify against Commitment on their own.
type Envelope struct {
	Kind        string               `cbor:"kind"`
	BatchID     string               `cbor:"batch_id"`
	Commitment  string               `cbor:"commitment"`
	CreatedAt   time.Time            `cbor:"created_at"`
	RecordCount int                  `cbor:"record_count"`
	Records     []domain.Interaction `cbor:"records"`
	Position    int                  `cbor:"position,omitempty"`
	Proof       []domain.ProofStep   `cbor:"proof,omitempty"`
}

// BatchEnvelope wraps every record of b.
func BatchEnvelope(b *domain.Batch) *Envelope {
	return &Envelope{
		Kind:        KindBatch,
		BatchID:     b.ID,
		Commitment:  b.Commitment,
		CreatedAt:   b.CreatedAt.UTC(),
		RecordCount: b.RecordCount,
		Records:     evidenceRecords(b.Records),
	}
}

// RecordEnvelope wraps the record at position i of b with its proof.
func RecordEnvelope(b *domain.Batch, i int, proof []domain.ProofStep) *Envelope {
	return &Envelope{
		Kind:        KindRecord,
		BatchID:     b.ID,
		Commitment:  b.Commitment,
		CreatedAt:   b.CreatedAt.UTC(),
		RecordCount: b.RecordCount,
		Records:     evidenceRecords(b.Records[i : i+1]),
		Position:    i,
		Proof:       proof,
	}
}

// evidenceRecords strips fields that are filled in after the upload, so the
// envelope bytes do not depend on upload order.
func evidenceRecords(in []domain.Interaction) []domain.Interaction {
	out := make([]domain.Interaction, len(in))
	for i := range in {
		r := in[i].Clone()
		r.BlobID = ""
		r.CreatedAt = r.CreatedAt.UTC()
		out[i] = r
	}
	return out
}

// EncodeEnvelope serializes env. When c does not shrink the body the
// envelope is written uncompressed and tagged accordingly.
func EncodeEnvelope(env *Envelope, c Compression) ([]byte, error) {
	raw, err := Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	body, err := compress(raw, c)
	if errors.Is(err, errIncompressible) {
		body, c = raw, CompressionNone
	} else if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(magic)+1+binary.MaxVarintLen64+len(body))
	out = append(out, magic[:]...)
	out = append(out, byte(c))
	out = binary.AppendUvarint(out, uint64(len(raw)))
	return append(out, body...), nil
}

// DecodeEnvelope parses bytes produced by EncodeEnvelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) < len(magic)+2 || [4]byte(data[:4]) != magic {
		return nil, ErrMalformedEnvelope
	}
	c := Compression(data[4])
	size, n := binary.Uvarint(data[5:])
	if n <= 0 {
		return nil, ErrMalformedEnvelope
	}
	// Reject absurd sizes before allocating.
	if size > 1<<30 {
		return nil, fmt.Errorf("%w: declared size %d", ErrMalformedEnvelope, size)
	}
	raw, err := decompress(data[5+n:], c, int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	var env Envelope
	if err := Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return &env, nil
}
