// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file persists committed batches together with their
// interaction records, and restores them at startup.
//
// Batches are written once. The only later update fills in the evidence blob
// references, and only where they are still empty.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-availability-core/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// SaveBatch inserts b and its records in one transaction.
func SaveBatch(ctx context.Context, db *gorm.DB, b *domain.Batch) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		records := b.Records
		head := *b
		head.Records = nil
		if err := tx.Create(&head).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(&records, 200).Error
	})
}

// SetEvidence stores evidence references for a batch. Only empty columns are
// written.
func SetEvidence(ctx context.Context, db *gorm.DB, batchID, batchRef string, recordRefs map[string]string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if batchRef != "" {
			if err := tx.Model(&domain.Batch{}).
				Where("id = ? AND (blob_ref IS NULL OR blob_ref = '')", batchID).
				Update("blob_ref", batchRef).Error; err != nil {
				return err
			}
		}
		for recordID, ref := range recordRefs {
			if err := tx.Model(&domain.Interaction{}).
				Where("id = ? AND batch_id = ? AND (blob_id IS NULL OR blob_id = '')", recordID, batchID).
				Update("blob_id", ref).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetBatch fetches a batch with its records in position order, or ErrNotFound.
func GetBatch(ctx context.Context, db *gorm.DB, id string) (*domain.Batch, error) {
	var b domain.Batch
	err := db.WithContext(ctx).
		Preload("Records", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadBatches returns every persisted batch, oldest first, with records in
// position order.
func LoadBatches(ctx context.Context, db *gorm.DB) ([]domain.Batch, error) {
	var out []domain.Batch
	err := db.WithContext(ctx).
		Preload("Records", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// BatchPersister adapts the free functions above to the batcher's Persister.
type BatchPersister struct {
	DB *gorm.DB
}

func (p BatchPersister) SaveBatch(ctx context.Context, b *domain.Batch) error {
	return SaveBatch(ctx, p.DB, b)
}

func (p BatchPersister) SetEvidence(ctx context.Context, batchID, batchRef string, recordRefs map[string]string) error {
	return SetEvidence(ctx, p.DB, batchID, batchRef, recordRefs)
}
