// Interaction HTTP handlers.
//
//   - POST /interactions               (record)
//   - GET  /interactions               (history, filtered and paginated)
//   - GET  /interactions/{id}/verify   (existence and inclusion proof)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-availability-core/internal/domain"
	"github.com/tbourn/go-availability-core/internal/services"
	"github.com/tbourn/go-availability-core/internal/utils"
)

// RecordInteractionRequest is the JSON payload for recording an interaction.
type RecordInteractionRequest struct {
	// Kind is an event tag such as like, comment, follow. Case-insensitive.
	Kind string `json:"kind" binding:"required,max=64" example:"like"`
	// ActorID references whoever performed the interaction.
	ActorID string `json:"actor_id" binding:"required,max=128" example:"user-42"`
	// TargetID optionally references what was interacted with.
	TargetID string `json:"target_id" binding:"max=128" example:"post-7"`
	// Payload carries small extra data, often a content hash.
	Payload map[string]any `json:"payload,omitempty"`
}

// RecordInteractionResponse carries the id of the recorded interaction.
type RecordInteractionResponse struct {
	InteractionID string `json:"interaction_id" example:"0b6f3c1e-8d0a-4c55-9a55-2f1f3b0f7f7e"`
}

// ListInteractionsResponse wraps a page of interactions.
type ListInteractionsResponse struct {
	Interactions []domain.Interaction `json:"interactions"`
	Pagination   Pagination           `json:"pagination"`
}

// RecordInteraction godoc
// @ID          recordInteraction
// @Summary     Record an interaction
// @Description Appends an interaction to the pending ledger. It is committed with the next batch.
// @Tags        Interactions
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Replays the first response for the same key"
// @Param       body             body    handlers.RecordInteractionRequest  true  "Interaction"
//
// @Success     202  {object}  handlers.RecordInteractionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Router      /interactions [post]
func (h *Handlers) RecordInteraction(c *gin.Context) {
	var req RecordInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBody(c, err)
		return
	}

	id, err := h.svc.RecordInteraction(c.Request.Context(), req.Kind, req.ActorID, req.TargetID, req.Payload)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusAccepted, RecordInteractionResponse{InteractionID: id})
}

// VerifyInteraction godoc
// @ID          verifyInteraction
// @Summary     Verify an interaction
// @Description Reports whether the interaction exists. Committed records include the batch commitment and a merkle inclusion proof; pending ones report batch_id "pending". Unknown ids return found=false.
// @Tags        Interactions
// @Produce     json
//
// @Param       id  path  string  true  "Interaction ID (UUID)"
//
// @Success     200  {object}  services.VerifyResult
// @Router      /interactions/{id}/verify [get]
func (h *Handlers) VerifyInteraction(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.VerifyInteraction(c.Request.Context(), c.Param("id")))
}

// ListInteractions godoc
// @ID          listInteractions
// @Summary     Interaction history
// @Description Returns committed and pending interactions matching all given filters, newest first.
// @Tags        Interactions
// @Produce     json
//
// @Param       actor_id   query  string  false  "Filter by actor"
// @Param       target_id  query  string  false  "Filter by target"
// @Param       kind       query  string  false  "Filter by kind (case-insensitive)"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListInteractionsResponse
// @Router      /interactions [get]
func (h *Handlers) ListInteractions(c *gin.Context) {
	page, pageSize := clampPagination(c)
	f := services.HistoryFilter{
		ActorID:  strings.TrimSpace(c.Query("actor_id")),
		TargetID: strings.TrimSpace(c.Query("target_id")),
		Kind:     strings.TrimSpace(c.Query("kind")),
	}

	p := utils.Paginate(h.svc.QueryHistory(c.Request.Context(), f), page, pageSize)
	ok(c, http.StatusOK, ListInteractionsResponse{
		Interactions: p.Items,
		Pagination:   paginationOf(p),
	})
}
