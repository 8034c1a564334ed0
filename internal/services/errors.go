// Package services defines the business logic for content storage and
// interaction records. This file centralizes service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-availability-core/internal/classify"
)

var (
	// ErrInvalidHash is returned when a content hash is not 64 lowercase hex
	// characters.
	ErrInvalidHash = errors.New("invalid content hash")

	// ErrFallbackInProduction is returned by NewContentService when no
	// backend client is configured in a production environment. Silent local
	// storage would pretend durability that does not exist.
	ErrFallbackInProduction = errors.New("local fallback storage is not allowed in production")

	// ErrBatchNotFound indicates that the requested batch does not exist.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrInvalidInteraction is returned when an interaction lacks a kind or
	// an actor.
	ErrInvalidInteraction = errors.New("interaction requires kind and actor_id")
)

// ContentError is a classified content store failure. It wraps the raw
// backend error so errors.Is and errors.As see through it.
type ContentError struct {
	Kind       classify.Kind
	Hash       string
	Hint       string
	RetryLater bool
	Attempts   int
	Err        error
}

func (e *ContentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (hash %s)", e.Kind, e.Hash)
	}
	return fmt.Sprintf("%s (hash %s, attempts %d): %v", e.Kind, e.Hash, e.Attempts, e.Err)
}

func (e *ContentError) Unwrap() error { return e.Err }

func contentError(kind classify.Kind, hash string, attempts int, err error) *ContentError {
	return &ContentError{
		Kind:       kind,
		Hash:       hash,
		Hint:       kind.Hint(),
		RetryLater: kind == classify.KindNetwork || kind == classify.KindService || kind == classify.KindBackendUnavailable || kind == classify.KindDuplicateUnresolved,
		Attempts:   attempts,
		Err:        err,
	}
}

// KindOf returns the classified kind of err, or "" when err is not a
// *ContentError.
func KindOf(err error) classify.Kind {
	var ce *ContentError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
