package batcher

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/tbourn/go-availability-core/internal/domain"
)

// Domain separation prefixes keep a leaf from ever hashing like an inner node.
const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01
)

// ErrProofIndex is returned by Proof for an index outside the id list.
var ErrProofIndex = errors.New("proof index out of range")

func leafHash(id string) []byte {
	h := sha256.New()
	h.Write([]byte{leafPrefix})
	h.Write([]byte(id))
	return h.Sum(nil)
}

func nodeHash(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte{nodePrefix})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// levels builds every level of the tree, leaves first. An odd node at the
// end of a level is promoted unchanged.
func levels(ids []string) [][][]byte {
	level := make([][]byte, len(ids))
	for i, id := range ids {
		level[i] = leafHash(id)
	}
	out := [][][]byte{level}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, nodeHash(level[i], level[i+1]))
		}
		out = append(out, next)
		level = next
	}
	return out
}

// Root returns the hex merkle root over ids in order. Any change to the set
// or its order changes the root. An empty list has no root and returns "".
func Root(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	lv := levels(ids)
	return hex.EncodeToString(lv[len(lv)-1][0])
}

// Proof returns the inclusion proof for ids[index].
func Proof(ids []string, index int) ([]domain.ProofStep, error) {
	if index < 0 || index >= len(ids) {
		return nil, ErrProofIndex
	}
	lv := levels(ids)
	var proof []domain.ProofStep
	for _, level := range lv[:len(lv)-1] {
		sib := index ^ 1
		if sib < len(level) {
			proof = append(proof, domain.ProofStep{
				Hash: hex.EncodeToString(level[sib]),
				Left: sib < index,
			})
		}
		index /= 2
	}
	return proof, nil
}

// VerifyProof reports whether id is included under root via proof.
func VerifyProof(root, id string, proof []domain.ProofStep) bool {
	want, err := hex.DecodeString(root)
	if err != nil || len(want) != sha256.Size {
		return false
	}
	cur := leafHash(id)
	for _, step := range proof {
		sib, err := hex.DecodeString(step.Hash)
		if err != nil || len(sib) != sha256.Size {
			return false
		}
		if step.Left {
			cur = nodeHash(sib, cur)
		} else {
			cur = nodeHash(cur, sib)
		}
	}
	return bytes.Equal(cur, want)
}
