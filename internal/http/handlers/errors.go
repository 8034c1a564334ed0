// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Content
// store failures reuse the classification kind as their code, so a client
// sees "insufficient_funds" or "network_error" rather than a generic 5xx.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "message": "batch not found"
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-availability-core/internal/classify"
	"github.com/tbourn/go-availability-core/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeTimeout          = "timeout"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeInvalidHash        = "invalid_hash"
	ErrCodeInvalidInteraction = "invalid_interaction"
	ErrCodePayloadTooLarge    = "payload_too_large"
	ErrCodeFlushFailed        = "flush_failed"
)

// retryAfterSeconds is the hint sent with transient backend failures.
const retryAfterSeconds = 5

// failService maps a service error onto the error envelope.
func failService(c *gin.Context, err error) {
	var ce *services.ContentError
	switch {
	case errors.As(err, &ce):
		failContent(c, ce)
	case errors.Is(err, services.ErrInvalidHash):
		fail(c, http.StatusBadRequest, ErrCodeInvalidHash, "hash must be 64 lowercase hex characters")
	case errors.Is(err, services.ErrInvalidInteraction):
		fail(c, http.StatusBadRequest, ErrCodeInvalidInteraction, err.Error())
	case errors.Is(err, services.ErrBatchNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "batch not found")
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

func failContent(c *gin.Context, ce *services.ContentError) {
	msg := ce.Hint
	if msg == "" {
		msg = string(ce.Kind)
	}
	if ce.RetryLater {
		retryAfter(c, retryAfterSeconds)
	}
	fail(c, contentStatus(ce.Kind), string(ce.Kind), msg)
}

func contentStatus(k classify.Kind) int {
	switch k {
	case classify.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case classify.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case classify.KindNotFound:
		return http.StatusNotFound
	case classify.KindAlreadyExists:
		return http.StatusConflict
	case classify.KindNetwork, classify.KindService, classify.KindBackendUnavailable, classify.KindDuplicateUnresolved:
		return http.StatusServiceUnavailable
	default:
		// unknown_error, integrity_error
		return http.StatusBadGateway
	}
}
