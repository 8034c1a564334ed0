package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-availability-core/internal/domain"
	"github.com/tbourn/go-availability-core/internal/services"
)

func TestRecordInteraction(t *testing.T) {
	var got struct {
		kind, actor, target string
		payload             map[string]any
	}
	svc := &fakeService{record: func(_ context.Context, kind, actor, target string, payload map[string]any) (string, error) {
		if err := services.ValidateInteraction(kind, actor); err != nil {
			return "", err
		}
		got.kind, got.actor, got.target, got.payload = kind, actor, target, payload
		return "id-1", nil
	}}
	r := newRouter(svc, 0)

	w := do(r, http.MethodPost, "/interactions", jsonBody(t, map[string]any{
		"kind": "LIKE", "actor_id": "u1", "target_id": "p1", "payload": map[string]any{"hash": "abc"},
	}), nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if resp := decode[RecordInteractionResponse](t, w); resp.InteractionID != "id-1" {
		t.Fatalf("response = %+v", resp)
	}
	if got.kind != "LIKE" || got.actor != "u1" || got.target != "p1" || got.payload["hash"] != "abc" {
		t.Fatalf("service got %+v", got)
	}

	// Binding: actor_id missing.
	if w := do(r, http.MethodPost, "/interactions", strings.NewReader(`{"kind":"like"}`), nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing actor -> %d", w.Code)
	}
	// Whitespace kind passes binding but not validation.
	w = do(r, http.MethodPost, "/interactions", strings.NewReader(`{"kind":"  ","actor_id":"u1"}`), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank kind -> %d", w.Code)
	}
	if er := decode[ErrorResponse](t, w); er.Code != ErrCodeInvalidInteraction {
		t.Fatalf("code = %q", er.Code)
	}
}

func TestVerifyInteraction(t *testing.T) {
	svc := &fakeService{verify: func(_ context.Context, id string) services.VerifyResult {
		switch id {
		case "pending-1":
			return services.VerifyResult{Found: true, BatchID: domain.PendingBatchID, Record: &domain.Interaction{ID: id}}
		case "done-1":
			return services.VerifyResult{
				Found: true, BatchID: "b1", Commitment: strings.Repeat("c", 64),
				Record: &domain.Interaction{ID: id, Status: domain.StatusConfirmed},
				Proof:  []domain.ProofStep{{Hash: strings.Repeat("d", 64), Left: true}},
			}
		}
		return services.VerifyResult{}
	}}
	r := newRouter(svc, 0)

	res := decode[services.VerifyResult](t, do(r, http.MethodGet, "/interactions/pending-1/verify", nil, nil))
	if !res.Found || res.BatchID != domain.PendingBatchID || res.Commitment != "" {
		t.Fatalf("pending = %+v", res)
	}
	res = decode[services.VerifyResult](t, do(r, http.MethodGet, "/interactions/done-1/verify", nil, nil))
	if !res.Found || res.BatchID != "b1" || len(res.Proof) != 1 || !res.Proof[0].Left {
		t.Fatalf("committed = %+v", res)
	}

	// Unknown ids are an answer, not an error.
	w := do(r, http.MethodGet, "/interactions/nope/verify", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unknown -> %d", w.Code)
	}
	if res := decode[services.VerifyResult](t, w); res.Found || res.Record != nil {
		t.Fatalf("unknown = %+v", res)
	}
}

func TestListInteractions_FiltersAndPages(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	all := make([]domain.Interaction, 25)
	for i := range all {
		all[i] = domain.Interaction{ID: fmt.Sprintf("i%02d", i), Kind: "like", ActorID: "u1", CreatedAt: base.Add(-time.Duration(i) * time.Minute)}
	}
	var gotFilter services.HistoryFilter
	svc := &fakeService{history: func(_ context.Context, f services.HistoryFilter) []domain.Interaction {
		gotFilter = f
		return all
	}}
	r := newRouter(svc, 0)

	w := do(r, http.MethodGet, "/interactions?actor_id=u1&kind=%20Like%20&page=2&page_size=10", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if gotFilter.ActorID != "u1" || gotFilter.Kind != "Like" || gotFilter.TargetID != "" {
		t.Fatalf("filter = %+v", gotFilter)
	}
	resp := decode[ListInteractionsResponse](t, w)
	if len(resp.Interactions) != 10 || resp.Interactions[0].ID != "i10" {
		t.Fatalf("page 2 = %d items starting %v", len(resp.Interactions), resp.Interactions)
	}
	p := resp.Pagination
	if p.Page != 2 || p.PageSize != 10 || p.Total != 25 || p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("pagination = %+v", p)
	}

	// Past the end: empty array, not null.
	w = do(r, http.MethodGet, "/interactions?page=9", nil, nil)
	if !strings.Contains(w.Body.String(), `"interactions":[]`) {
		t.Fatalf("past-end body = %s", w.Body.String())
	}
}
