package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	if (Interaction{}).TableName() != "interactions" {
		t.Fatalf("Interaction.TableName() = %q", (Interaction{}).TableName())
	}
	if (Batch{}).TableName() != "batches" {
		t.Fatalf("Batch.TableName() = %q", (Batch{}).TableName())
	}
	if (Idempotency{}).TableName() != "idempotency" {
		t.Fatalf("Idempotency.TableName() = %q", (Idempotency{}).TableName())
	}
}

func TestMigrations_Indexes_AndPayloadRoundTrip(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Batch{}, &Interaction{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, idx := range []string{"idx_interactions_actor", "idx_interactions_target", "idx_interactions_kind", "idx_interactions_batch"} {
		if !m.HasIndex(&Interaction{}, idx) {
			t.Fatalf("expected index %s on interactions", idx)
		}
	}

	now := time.Now().UTC()
	b := &Batch{
		ID:          "b1",
		Commitment:  "00000000000000000000000000000000000000000000000000000000000000aa",
		CreatedAt:   now,
		RecordCount: 2,
		Records: []Interaction{
			{ID: "r1", Kind: KindLike, ActorID: "u1", TargetID: "p1", CreatedAt: now, Status: StatusConfirmed, Position: 0, Payload: map[string]any{"hash": "abc"}},
			{ID: "r2", Kind: KindFollow, ActorID: "u2", TargetID: "u1", CreatedAt: now, Status: StatusConfirmed, Position: 1},
		},
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("create batch: %v", err)
	}

	var got Batch
	if err := db.Preload("Records", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		First(&got, "id = ?", "b1").Error; err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if len(got.Records) != 2 || got.Records[0].ID != "r1" || got.Records[1].ID != "r2" {
		t.Fatalf("records not loaded in order: %+v", got.Records)
	}
	if got.Records[0].Payload["hash"] != "abc" {
		t.Fatalf("payload not round-tripped: %#v", got.Records[0].Payload)
	}
	if got.Records[0].BatchID != "b1" {
		t.Fatalf("batch id not set on child: %q", got.Records[0].BatchID)
	}

	// Cascade: deleting the batch removes its records.
	if err := db.Delete(&Batch{}, "id = ?", "b1").Error; err != nil {
		t.Fatalf("delete batch: %v", err)
	}
	var n int64
	db.Model(&Interaction{}).Where("batch_id = ?", "b1").Count(&n)
	if n != 0 {
		t.Fatalf("expected cascade delete, %d records remain", n)
	}
}

func TestStatusCheckConstraint(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Batch{}, &Interaction{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	bad := &Interaction{ID: "x", Kind: "like", ActorID: "u", CreatedAt: time.Now(), Status: Status("bogus")}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected check constraint violation for unknown status")
	}
}

func TestBatch_RecordIDsAndClone(t *testing.T) {
	b := &Batch{ID: "b", Records: []Interaction{
		{ID: "a", Payload: map[string]any{"k": "v"}},
		{ID: "b"},
	}}
	ids := b.RecordIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("RecordIDs = %v", ids)
	}

	c := b.Clone()
	c.Records[0].ID = "changed"
	c.Records[0].Payload["k"] = "changed"
	if b.Records[0].ID != "a" || b.Records[0].Payload["k"] != "v" {
		t.Fatalf("Clone shares state with the original")
	}
	if (*Batch)(nil).Clone() != nil {
		t.Fatalf("nil Clone should be nil")
	}
}

func TestInteractionClone_CopiesNestedPayload(t *testing.T) {
	orig := Interaction{ID: "r1", Payload: map[string]any{
		"meta": map[string]any{"lang": "en"},
		"tags": []any{"a", map[string]any{"k": "v"}},
		"n":    1.0,
	}}
	c := orig.Clone()

	c.Payload["meta"].(map[string]any)["lang"] = "fr"
	tags := c.Payload["tags"].([]any)
	tags[0] = "z"
	tags[1].(map[string]any)["k"] = "w"
	c.Payload["n"] = 2.0

	if orig.Payload["meta"].(map[string]any)["lang"] != "en" {
		t.Fatalf("nested map aliased: %#v", orig.Payload["meta"])
	}
	origTags := orig.Payload["tags"].([]any)
	if origTags[0] != "a" || origTags[1].(map[string]any)["k"] != "v" {
		t.Fatalf("nested slice aliased: %#v", origTags)
	}
	if orig.Payload["n"] != 1.0 {
		t.Fatalf("top-level value aliased: %#v", orig.Payload["n"])
	}
	if (Interaction{}).Clone().Payload != nil {
		t.Fatalf("nil payload should stay nil")
	}
}
