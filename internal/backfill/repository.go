package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/crypto-index/pkg/models"
)

// Repository holds the set-based gap queries of the backfill scheduler
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new backfill repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ListGappedAssets flags every asset missing yesterday's slot in any watched
// table, in one query. Assets fully current cost zero external calls, which
// is the dominant cost-saving property of the whole scheduler.
func (r *Repository) ListGappedAssets(ctx context.Context, yesterday time.Time) ([]models.Asset, error) {
	yesterday = yesterday.UTC().Truncate(24 * time.Hour)

	query := `
		SELECT a.id, a.symbol, a.name, a.external_id, a.image_url, a.categories, a.created_at
		FROM assets a
		WHERE a.external_id IS NOT NULL
		  AND (
			NOT EXISTS (
				SELECT 1 FROM daily_closes dc
				WHERE dc.asset_id = a.id AND dc.date = $1
			)
			OR NOT EXISTS (
				SELECT 1 FROM price_points pp
				WHERE pp.asset_id = a.id AND pp.ts = $1
			)
		  )
		ORDER BY a.id
	`

	var out []models.Asset
	if err := r.db.SelectContext(ctx, &out, query, yesterday); err != nil {
		return nil, fmt.Errorf("failed to list gapped assets: %w", err)
	}
	return out, nil
}

// PresentCloseDates returns the daily-close dates present in [from, to]
func (r *Repository) PresentCloseDates(ctx context.Context, assetID int64, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	err := r.db.SelectContext(ctx, &out, `
		SELECT date FROM daily_closes
		WHERE asset_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date`, assetID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list close dates for asset %d: %w", assetID, err)
	}
	return out, nil
}

// PresentPointDays returns the dates whose canonical daily (00:00:00 UTC)
// price point slot is present in [from, to]. Sub-daily rows do not satisfy
// the daily slot.
func (r *Repository) PresentPointDays(ctx context.Context, assetID int64, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	err := r.db.SelectContext(ctx, &out, `
		SELECT ts FROM price_points
		WHERE asset_id = $1 AND ts >= $2 AND ts <= $3
		  AND ts = date_trunc('day', ts)
		ORDER BY ts`, assetID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list point days for asset %d: %w", assetID, err)
	}
	return out, nil
}
