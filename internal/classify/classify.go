// Package classify maps raw backend and transport failures onto the fixed
// error taxonomy used by the content gateway and the batcher.
//
// Classify is pure: it inspects error values, codes and message text only,
// and never performs I/O. Callers decide retry policy from the result.
package classify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/tbourn/go-availability-core/internal/blob"
)

// Kind is a taxonomy label. Classify only ever yields the first five; the
// rest are produced by the gateway itself and share the type so callers can
// switch on a single field.
type Kind string

const (
	KindInsufficientFunds Kind = "insufficient_funds"
	KindNetwork           Kind = "network_error"
	KindService           Kind = "service_error"
	KindAlreadyExists     Kind = "already_exists"
	KindUnknown           Kind = "unknown_error"

	KindPayloadTooLarge     Kind = "payload_too_large"
	KindIntegrity           Kind = "integrity_error"
	KindNotFound            Kind = "not_found"
	KindBackendUnavailable  Kind = "backend_unavailable"
	KindDuplicateUnresolved Kind = "duplicate_unresolved"
)

// Hint returns a short remediation message suitable for end users.
func (k Kind) Hint() string {
	switch k {
	case KindInsufficientFunds:
		return "insufficient funds: add funds to the storage account and retry"
	case KindNetwork:
		return "temporary network issue: the upload will be retried automatically"
	case KindService:
		return "the storage service reported an error: retry later"
	case KindAlreadyExists:
		return "content is already stored"
	case KindPayloadTooLarge:
		return "payload is too large: shrink or split the content"
	case KindIntegrity:
		return "retrieved content does not match its hash: do not trust this data"
	case KindNotFound:
		return "no content is stored under this hash"
	case KindBackendUnavailable:
		return "the storage backend is unavailable: retry later"
	case KindDuplicateUnresolved:
		return "content is already stored but its reference could not be obtained: retry later"
	default:
		return "unexpected storage failure"
	}
}

// Classification is the result of Classify.
type Classification struct {
	Kind      Kind
	Retryable bool
}

var (
	networkCodes = []string{"econnreset", "econnrefused", "enotfound", "etimedout", "eai_again"}
	networkText  = []string{"unavailable", "overloaded", "timeout", "timed out", "connection reset", "connection refused", "no such host", "broken pipe"}
	existsCodes  = map[string]struct{}{"already_exists": {}, "blob_exists": {}, "duplicate_blob": {}}
)

// Classify maps err onto the taxonomy. A nil error yields the zero value.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var be *blob.BackendError
	isBackend := errors.As(err, &be)
	msg := strings.ToLower(err.Error())

	switch {
	case isAlreadyExists(be, msg):
		return Classification{Kind: KindAlreadyExists}
	case isInsufficientFunds(msg):
		return Classification{Kind: KindInsufficientFunds}
	case isNetwork(err, be, msg):
		return Classification{Kind: KindNetwork, Retryable: true}
	case isBackend:
		return Classification{Kind: KindService, Retryable: true}
	default:
		return Classification{Kind: KindUnknown}
	}
}

func isAlreadyExists(be *blob.BackendError, msg string) bool {
	if be != nil {
		if be.StatusCode == http.StatusConflict {
			return true
		}
		if _, ok := existsCodes[strings.ToLower(be.Code)]; ok {
			return true
		}
	}
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "already stored")
}

// isInsufficientFunds is deliberately narrow: a shortfall phrase alone
// ("insufficient permissions", "insufficient funds") is not enough, the
// message must also name the balance or gas.
func isInsufficientFunds(msg string) bool {
	shortfall := strings.Contains(msg, "insufficient funds") || strings.Contains(msg, "insufficient balance")
	if !shortfall {
		return false
	}
	return strings.Contains(msg, "balance") || strings.Contains(msg, "gas")
}

func isNetwork(err error, be *blob.BackendError, msg string) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	if be != nil {
		switch be.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		code := strings.ToLower(be.Code)
		for _, c := range networkCodes {
			if code == c {
				return true
			}
		}
	}

	for _, c := range networkCodes {
		if strings.Contains(msg, c) {
			return true
		}
	}
	for _, t := range networkText {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}
