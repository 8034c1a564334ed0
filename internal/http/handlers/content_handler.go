// Content HTTP handlers.
//
//   - POST /content         (store; JSON or raw octet-stream)
//   - GET  /content/{hash}  (retrieve; immutable, ETag support)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-availability-core/internal/http/middleware"
	"github.com/tbourn/go-availability-core/internal/services"
)

// metaHeaderPrefix marks request headers copied into blob metadata on raw
// uploads.
const metaHeaderPrefix = "X-Meta-"

// StoreContentRequest is the JSON payload for storing content.
type StoreContentRequest struct {
	// Content is the raw payload, base64-encoded in JSON.
	Content []byte `json:"content" swaggertype:"string" format:"base64" example:"aGVsbG8gd29ybGQ="`
	// Metadata is forwarded to the backend as-is.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// StoreContent godoc
// @ID          storeContent
// @Summary     Store content
// @Description Stores content in the content-addressed backend and returns its hash and durable reference. Accepts a JSON body with base64 content, or a raw application/octet-stream body with X-Meta-* headers as metadata.
// @Tags        Content
// @Accept      json
// @Accept      octet-stream
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Replays the first response for the same key"
// @Param       body             body    handlers.StoreContentRequest  true  "Content payload"
//
// @Success     201  {object}  services.StoreResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     402  {object}  handlers.ErrorResponse  "Insufficient funds"
// @Failure     413  {object}  handlers.ErrorResponse  "Payload too large"
// @Failure     503  {object}  handlers.ErrorResponse  "Backend temporarily unavailable"
// @Router      /content [post]
func (h *Handlers) StoreContent(c *gin.Context) {
	var req StoreContentRequest
	if strings.HasPrefix(c.ContentType(), "application/octet-stream") {
		data, err := c.GetRawData()
		if err != nil {
			failBody(c, err)
			return
		}
		req.Content = data
		req.Metadata = metaHeaders(c.Request.Header)
	} else if err := c.ShouldBindJSON(&req); err != nil {
		failBody(c, err)
		return
	}
	if req.Content == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content is required")
		return
	}

	res, err := h.svc.StoreContent(c.Request.Context(), req.Content, req.Metadata)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// RetrieveContent godoc
// @ID          retrieveContent
// @Summary     Retrieve content by hash
// @Description Returns the stored bytes after re-verifying their hash. Responses are immutable; a matching If-None-Match yields 304 without touching the backend.
// @Tags        Content
// @Produce     octet-stream
//
// @Param       hash           path    string  true   "SHA-256 hex digest"  example(b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
//
// @Success     200  {file}    binary
// @Header      200  {string}  ETag  "Strong ETag (the hash)"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid hash"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Integrity check failed"
// @Failure     503  {object}  handlers.ErrorResponse  "Backend temporarily unavailable"
// @Router      /content/{hash} [get]
func (h *Handlers) RetrieveContent(c *gin.Context) {
	hash := c.Param("hash")
	if !services.ValidHash(hash) {
		failService(c, services.ErrInvalidHash)
		return
	}
	if c.GetHeader("If-None-Match") == `"`+hash+`"` {
		middleware.CacheImmutable(c, hash)
		c.Status(http.StatusNotModified)
		return
	}

	data, err := h.svc.RetrieveContent(c.Request.Context(), hash)
	if err != nil {
		failService(c, err)
		return
	}
	middleware.CacheImmutable(c, hash)
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// failBody reports an unreadable request body, distinguishing the body cap.
func failBody(c *gin.Context, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body too large")
		return
	}
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
}

func metaHeaders(hdr http.Header) map[string]string {
	var out map[string]string
	for k, v := range hdr {
		if !strings.HasPrefix(k, metaHeaderPrefix) || len(v) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[strings.TrimPrefix(k, metaHeaderPrefix)] = v[0]
	}
	return out
}
