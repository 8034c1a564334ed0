// Package handlers exposes the content gateway and the interaction ledger
// over HTTP:
//   - POST /content, GET /content/{hash}
//   - POST /interactions, GET /interactions, GET /interactions/{id}/verify
//   - GET /batches/{id}, POST /batches/flush
//   - GET /stats
//
// Handlers are transport-thin: they validate input, call the service and
// translate results into HTTP responses, including conditional ones.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-availability-core/internal/app"
	"github.com/tbourn/go-availability-core/internal/domain"
	"github.com/tbourn/go-availability-core/internal/services"
	"github.com/tbourn/go-availability-core/internal/utils"
)

// Service is the application surface consumed by the handlers. *app.Core
// implements it.
//
// Implementations must be safe for concurrent use and honor ctx.
type Service interface {
	StoreContent(ctx context.Context, content []byte, metadata map[string]string) (*services.StoreResult, error)
	RetrieveContent(ctx context.Context, hash string) ([]byte, error)
	RecordInteraction(ctx context.Context, kind, actorID, targetID string, payload map[string]any) (string, error)
	VerifyInteraction(ctx context.Context, id string) services.VerifyResult
	QueryHistory(ctx context.Context, f services.HistoryFilter) []domain.Interaction
	GetStats(ctx context.Context) services.Stats
	Flush(ctx context.Context) (*domain.Batch, error)
	Batch(ctx context.Context, id string) (*domain.Batch, error)
	Health(ctx context.Context) app.Health
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	svc Service
}

// New constructs Handlers bound to svc.
func New(svc Service) *Handlers {
	return &Handlers{svc: svc}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func paginationOf[T any](p utils.Page[T]) Pagination {
	return Pagination{
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      int64(p.Total),
		TotalPages: p.TotalPages,
		HasNext:    p.HasNext,
	}
}

// clampPagination parses and bounds page and page_size query params,
// returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// Health godoc
// @ID          health
// @Summary     Service health
// @Description Reports the storage mode and what has been persisted. Status is "degraded" when the database cannot be read.
// @Tags        Health
// @Produce     json
// @Success     200  {object}  app.Health
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.Health(c.Request.Context()))
}
