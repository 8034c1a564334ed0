// Package blob is the transport adapter for the remote durability network.
// It submits and fetches opaque byte blobs over the backend's REST API,
// enforces the maximum blob size, and surfaces raw transport errors
// unchanged so the classify package can decide what they mean.
//
// The package never retries and never interprets failures: that policy
// lives in services.ContentService.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// MaxBlobSize is the largest payload the backend accepts in a single blob.
const MaxBlobSize = 32_505_852

var (
	// ErrPayloadTooLarge is returned before any network I/O when a payload
	// exceeds the client's size limit.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum blob size")

	// ErrNotConfigured is returned by NewHTTPClient when the endpoint or the
	// credentials are missing.
	ErrNotConfigured = errors.New("blob backend not configured")

	// ErrNotFound is returned by Fetch and Lookup when the backend has no
	// blob for the requested hash.
	ErrNotFound = errors.New("blob not found")
)

// SubmitRequest is the wire shape of a blob upload.
type SubmitRequest struct {
	Payload   []byte
	Hash      string // hex content hash computed by the caller
	SizeLimit int
	Metadata  map[string]string
}

// Receipt is the backend's proof of durability for a submitted blob.
type Receipt struct {
	ID                    string `json:"id"`
	ConfirmationReference string `json:"confirmation_reference"`
}

// Client is the contract the gateway and batcher depend on.
// Implementations must be safe for concurrent use.
type Client interface {
	// Submit uploads a payload. A payload over the size limit fails with
	// ErrPayloadTooLarge without touching the network.
	Submit(ctx context.Context, req SubmitRequest) (*Receipt, error)
	// Fetch downloads the blob stored under hash.
	Fetch(ctx context.Context, hash string) ([]byte, error)
	// Lookup returns the durable receipt for a blob that already exists.
	Lookup(ctx context.Context, hash string) (*Receipt, error)
	// Height returns the backend's current sequence height.
	Height(ctx context.Context) (uint64, error)
}

// BackendError is a structured, non-2xx answer from the backend.
type BackendError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *BackendError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("backend %d %s: %s", e.StatusCode, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("backend %d: %s", e.StatusCode, e.Message)
	case e.Code != "":
		return fmt.Sprintf("backend %d %s", e.StatusCode, e.Code)
	default:
		return fmt.Sprintf("backend %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
}
