package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/crypto-index/pkg/models"
)

// Repository handles log return and moving average storage
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new returns repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ListEligibleAssets returns ids of assets with enough daily closes before
// the cutoff, in one set-based query.
func (r *Repository) ListEligibleAssets(ctx context.Context, minPoints int, before time.Time) ([]int64, error) {
	var out []int64
	err := r.db.SelectContext(ctx, &out, `
		SELECT asset_id FROM daily_closes
		WHERE date < $1
		GROUP BY asset_id
		HAVING COUNT(*) >= $2
		ORDER BY asset_id`, before, minPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible assets: %w", err)
	}
	return out, nil
}

// ExistingReturnDates returns the dates that already have a log return
func (r *Repository) ExistingReturnDates(ctx context.Context, assetID int64) (map[time.Time]bool, error) {
	return r.dateSet(ctx, `SELECT date FROM log_returns WHERE asset_id = $1`, assetID)
}

// ExistingAverageDates returns the dates that already have a moving average
func (r *Repository) ExistingAverageDates(ctx context.Context, assetID int64) (map[time.Time]bool, error) {
	return r.dateSet(ctx, `SELECT date FROM moving_averages WHERE asset_id = $1`, assetID)
}

func (r *Repository) dateSet(ctx context.Context, query string, assetID int64) (map[time.Time]bool, error) {
	var dates []time.Time
	if err := r.db.SelectContext(ctx, &dates, query, assetID); err != nil {
		return nil, fmt.Errorf("failed to load date set for asset %d: %w", assetID, err)
	}
	set := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		set[d.UTC().Truncate(24*time.Hour)] = true
	}
	return set, nil
}

// InsertLogReturn writes one row unless the key already exists
func (r *Repository) InsertLogReturn(ctx context.Context, lr *models.LogReturn) (bool, error) {
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO log_returns (asset_id, date, log_return)
		VALUES (:asset_id, :date, :log_return)
		ON CONFLICT (asset_id, date) DO NOTHING`, lr)
	if err != nil {
		return false, fmt.Errorf("failed to insert log return for asset %d: %w", lr.AssetID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertMovingAverage writes one row unless the key already exists
func (r *Repository) InsertMovingAverage(ctx context.Context, ma *models.MovingAverage) (bool, error) {
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO moving_averages (asset_id, date, window_days, value)
		VALUES (:asset_id, :date, :window_days, :value)
		ON CONFLICT (asset_id, date, window_days) DO NOTHING`, ma)
	if err != nil {
		return false, fmt.Errorf("failed to insert moving average for asset %d: %w", ma.AssetID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetLogReturns returns an asset's chronological log returns strictly before
// the cutoff date.
func (r *Repository) GetLogReturns(ctx context.Context, assetID int64, before time.Time) ([]models.LogReturn, error) {
	var out []models.LogReturn
	err := r.db.SelectContext(ctx, &out, `
		SELECT asset_id, date, log_return FROM log_returns
		WHERE asset_id = $1 AND date < $2
		ORDER BY date ASC`, assetID, before)
	if err != nil {
		return nil, fmt.Errorf("failed to get log returns for asset %d: %w", assetID, err)
	}
	return out, nil
}

// ListReturnDates returns every distinct date present in log_returns
func (r *Repository) ListReturnDates(ctx context.Context) ([]time.Time, error) {
	var out []time.Time
	err := r.db.SelectContext(ctx, &out,
		`SELECT DISTINCT date FROM log_returns ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list return dates: %w", err)
	}
	return out, nil
}
