// Batch and stats HTTP handlers.
//
//   - GET  /batches/{id}    (committed batch, weak ETag support)
//   - POST /batches/flush   (commit pending interactions now)
//   - GET  /stats           (aggregate counters)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetBatch godoc
// @ID          getBatch
// @Summary     Get a committed batch
// @Description Returns the batch with its ordered records and commitment. The weak ETag changes once evidence is uploaded.
// @Tags        Batches
// @Produce     json
//
// @Param       id             path    string  true   "Batch ID (UUID)"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
//
// @Success     200  {object}  domain.Batch
// @Header      200  {string}  ETag  "Weak ETag for the batch state"
// @Success     304  {string}  string  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Batch not found"
// @Router      /batches/{id} [get]
func (h *Handlers) GetBatch(c *gin.Context) {
	b, err := h.svc.Batch(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}

	etag := fmt.Sprintf(`W/"batch:%s:%s"`, b.ID, b.BlobRef)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	ok(c, http.StatusOK, b)
}

// FlushBatch godoc
// @ID          flushBatch
// @Summary     Flush pending interactions
// @Description Commits everything pending as one batch. Returns 204 when nothing was pending.
// @Tags        Batches
// @Produce     json
//
// @Success     200  {object}  domain.Batch
// @Success     204  {string}  string  "Nothing to flush"
// @Failure     500  {object}  handlers.ErrorResponse  "Flush failed"
// @Router      /batches/flush [post]
func (h *Handlers) FlushBatch(c *gin.Context) {
	b, err := h.svc.Flush(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeFlushFailed, err.Error())
		return
	}
	if b == nil {
		noContent(c)
		return
	}
	ok(c, http.StatusOK, b)
}

// GetStats godoc
// @ID          getStats
// @Summary     Aggregate counters
// @Tags        Batches
// @Produce     json
// @Success     200  {object}  services.Stats
// @Router      /stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.GetStats(c.Request.Context()))
}
