package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/crypto-index/pkg/models"
)

// Repository handles raw price points and the canonical daily close series
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new market data repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// UpsertPricePoint writes one raw observation. Zero-guarded fields (price,
// supply, volume) never overwrite an existing non-zero value with zero;
// everything else refreshes unconditionally.
func (r *Repository) UpsertPricePoint(ctx context.Context, p *models.PricePoint) error {
	query := `
		INSERT INTO price_points (
			asset_id, ts, price, circulating_supply, volume_24h,
			pct_change_1h, pct_change_24h, pct_change_7d, pct_change_14d,
			pct_change_30d, pct_change_200d, pct_change_1y,
			market_cap_rank, total_supply, max_supply, fully_diluted_valuation
		) VALUES (
			:asset_id, :ts, :price, :circulating_supply, :volume_24h,
			:pct_change_1h, :pct_change_24h, :pct_change_7d, :pct_change_14d,
			:pct_change_30d, :pct_change_200d, :pct_change_1y,
			:market_cap_rank, :total_supply, :max_supply, :fully_diluted_valuation
		)
		ON CONFLICT (asset_id, ts) DO UPDATE SET
			price = CASE WHEN EXCLUDED.price = 0 THEN price_points.price ELSE EXCLUDED.price END,
			circulating_supply = CASE WHEN EXCLUDED.circulating_supply = 0
				THEN price_points.circulating_supply ELSE EXCLUDED.circulating_supply END,
			volume_24h = CASE WHEN EXCLUDED.volume_24h = 0
				THEN price_points.volume_24h ELSE EXCLUDED.volume_24h END,
			pct_change_1h = EXCLUDED.pct_change_1h,
			pct_change_24h = EXCLUDED.pct_change_24h,
			pct_change_7d = EXCLUDED.pct_change_7d,
			pct_change_14d = EXCLUDED.pct_change_14d,
			pct_change_30d = EXCLUDED.pct_change_30d,
			pct_change_200d = EXCLUDED.pct_change_200d,
			pct_change_1y = EXCLUDED.pct_change_1y,
			market_cap_rank = EXCLUDED.market_cap_rank,
			total_supply = EXCLUDED.total_supply,
			max_supply = EXCLUDED.max_supply,
			fully_diluted_valuation = EXCLUDED.fully_diluted_valuation
	`

	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("failed to upsert price point for asset %d: %w", p.AssetID, err)
	}
	return nil
}

// UpsertDailyClose writes one daily reference row, refreshing the price and
// zero-guarding volume and market cap.
func (r *Repository) UpsertDailyClose(ctx context.Context, c *models.DailyClose) error {
	query := `
		INSERT INTO daily_closes (asset_id, date, open, high, low, close, volume, market_cap)
		VALUES (:asset_id, :date, :open, :high, :low, :close, :volume, :market_cap)
		ON CONFLICT (asset_id, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = CASE WHEN EXCLUDED.volume = 0 THEN daily_closes.volume ELSE EXCLUDED.volume END,
			market_cap = CASE WHEN EXCLUDED.market_cap = 0
				THEN daily_closes.market_cap ELSE EXCLUDED.market_cap END
	`

	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("failed to upsert daily close for asset %d: %w", c.AssetID, err)
	}
	return nil
}

// InsertDailyCloseIfMissing inserts one backfilled close only when the slot
// is still empty. Returns whether a row was written.
func (r *Repository) InsertDailyCloseIfMissing(ctx context.Context, c *models.DailyClose) (bool, error) {
	query := `
		INSERT INTO daily_closes (asset_id, date, open, high, low, close, volume, market_cap)
		VALUES (:asset_id, :date, :open, :high, :low, :close, :volume, :market_cap)
		ON CONFLICT (asset_id, date) DO NOTHING
	`

	res, err := r.db.NamedExecContext(ctx, query, c)
	if err != nil {
		return false, fmt.Errorf("failed to insert daily close for asset %d: %w", c.AssetID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertPricePointIfMissing inserts one backfilled raw point only when the
// slot is still empty. Returns whether a row was written.
func (r *Repository) InsertPricePointIfMissing(ctx context.Context, p *models.PricePoint) (bool, error) {
	query := `
		INSERT INTO price_points (asset_id, ts, price, circulating_supply, volume_24h)
		VALUES (:asset_id, :ts, :price, :circulating_supply, :volume_24h)
		ON CONFLICT (asset_id, ts) DO NOTHING
	`

	res, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return false, fmt.Errorf("failed to insert price point for asset %d: %w", p.AssetID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetCloses returns an asset's chronological daily closes strictly before
// the given cutoff date (normally today UTC, which is still incomplete).
func (r *Repository) GetCloses(ctx context.Context, assetID int64, before time.Time) ([]models.DailyClose, error) {
	var out []models.DailyClose
	err := r.db.SelectContext(ctx, &out, `
		SELECT asset_id, date, open, high, low, close, volume, market_cap
		FROM daily_closes
		WHERE asset_id = $1 AND date < $2
		ORDER BY date ASC`, assetID, before)
	if err != nil {
		return nil, fmt.Errorf("failed to get closes for asset %d: %w", assetID, err)
	}
	return out, nil
}

// CountCloses returns the number of daily closes strictly before the cutoff
func (r *Repository) CountCloses(ctx context.Context, assetID int64, before time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM daily_closes WHERE asset_id = $1 AND date < $2`,
		assetID, before)
	if err != nil {
		return 0, fmt.Errorf("failed to count closes for asset %d: %w", assetID, err)
	}
	return count, nil
}

// CountRecentPricePoints counts raw points in a trailing window, the input
// to the fine-granularity completeness check.
func (r *Repository) CountRecentPricePoints(ctx context.Context, assetID int64, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM price_points WHERE asset_id = $1 AND ts >= $2`,
		assetID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count price points for asset %d: %w", assetID, err)
	}
	return count, nil
}
