// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries over persisted
// batches, used by the health endpoint to report what survived a restart.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-availability-core/internal/domain"
)

// BatchesStats returns the number of persisted batches and records and the
// CreatedAt of the newest batch. latest is nil when there are no batches.
func BatchesStats(ctx context.Context, db *gorm.DB) (batches, records int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Batch{})

	if err = q.Count(&batches).Error; err != nil {
		return 0, 0, nil, err
	}
	if batches == 0 {
		return 0, 0, nil, nil
	}
	if err = db.WithContext(ctx).Model(&domain.Interaction{}).Where("batch_id <> ''").Count(&records).Error; err != nil {
		return 0, 0, nil, err
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Batch{}).Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return batches, records, &row.CreatedAt, nil
}
