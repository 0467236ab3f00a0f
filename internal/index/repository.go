package index

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/selivandex/crypto-index/pkg/models"
)

// Repository handles index configuration, level history and constituent
// storage
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new index repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// SnapshotAsset is one asset's market state at a snapshot timestamp,
// carrying the category tags the constituent filter needs.
type SnapshotAsset struct {
	AssetID           int64           `db:"asset_id"`
	Symbol            string          `db:"symbol"`
	Categories        pq.StringArray  `db:"categories"`
	Price             decimal.Decimal `db:"price"`
	CirculatingSupply decimal.Decimal `db:"circulating_supply"`
	Volume24h         decimal.Decimal `db:"volume_24h"`
}

// MarketCap returns price times circulating supply
func (s *SnapshotAsset) MarketCap() decimal.Decimal {
	return s.Price.Mul(s.CirculatingSupply)
}

// GetActiveConfig returns the active configuration with the given name,
// creating it when absent. A fresh configuration starts with divisor 1.0,
// which marks it uninitialized.
func (r *Repository) GetActiveConfig(ctx context.Context, name string, baseLevel float64, maxConstituents int) (*models.IndexConfig, error) {
	var cfg models.IndexConfig
	err := r.db.GetContext(ctx, &cfg, `
		SELECT id, name, base_level, divisor, base_date, max_constituents, active, created_at
		FROM index_configs
		WHERE name = $1 AND active`, name)
	if err == nil {
		return &cfg, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	err = r.db.GetContext(ctx, &cfg, `
		INSERT INTO index_configs (name, base_level, max_constituents)
		VALUES ($1, $2, $3)
		RETURNING id, name, base_level, divisor, base_date, max_constituents, active, created_at`,
		name, baseLevel, maxConstituents)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Anchor fixes the divisor and base date of a configuration. Called exactly
// once per configuration, from the earliest available snapshot.
func (r *Repository) Anchor(ctx context.Context, configID int64, divisor float64, baseDate time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE index_configs
		SET divisor = $2, base_date = $3
		WHERE id = $1 AND divisor = 1.0`, configID, divisor, baseDate)
	return err
}

// EarliestSnapshotTime returns the oldest price point timestamp, or zero
// time when no market data exists yet
func (r *Repository) EarliestSnapshotTime(ctx context.Context) (time.Time, error) {
	var ts sql.NullTime
	err := r.db.GetContext(ctx, &ts, `SELECT MIN(ts) FROM price_points`)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time.UTC(), nil
}

// MissingTimestamps returns snapshot timestamps at or after the base date
// that have no index level yet, ascending
func (r *Repository) MissingTimestamps(ctx context.Context, configID int64, baseDate time.Time) ([]time.Time, error) {
	var stamps []time.Time
	err := r.db.SelectContext(ctx, &stamps, `
		SELECT DISTINCT p.ts
		FROM price_points p
		WHERE p.ts >= $2
		  AND NOT EXISTS (
			SELECT 1 FROM index_history h
			WHERE h.index_config_id = $1 AND h.ts = p.ts
		  )
		ORDER BY p.ts ASC`, configID, baseDate)
	return stamps, err
}

// MarketSnapshotAt returns all assets with a price point at the exact
// timestamp, joined with their category tags
func (r *Repository) MarketSnapshotAt(ctx context.Context, ts time.Time) ([]SnapshotAsset, error) {
	var snapshot []SnapshotAsset
	err := r.db.SelectContext(ctx, &snapshot, `
		SELECT p.asset_id, a.symbol, a.categories, p.price, p.circulating_supply, p.volume_24h
		FROM price_points p
		JOIN assets a ON a.id = p.asset_id
		WHERE p.ts = $1`, ts)
	return snapshot, err
}

// SaveLevel upserts one index level and fully replaces its constituent rows
// in a single transaction
func (r *Repository) SaveLevel(ctx context.Context, history *models.IndexHistory, constituents []models.IndexConstituent) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var historyID int64
	err = tx.GetContext(ctx, &historyID, `
		INSERT INTO index_history (index_config_id, ts, total_market_cap, level, num_constituents, divisor, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (index_config_id, ts) DO UPDATE SET
			total_market_cap = EXCLUDED.total_market_cap,
			level            = EXCLUDED.level,
			num_constituents = EXCLUDED.num_constituents,
			divisor          = EXCLUDED.divisor,
			duration_ms      = EXCLUDED.duration_ms
		RETURNING id`,
		history.IndexConfigID, history.Timestamp, history.TotalMarketCap,
		history.Level, history.NumConstituents, history.Divisor, history.DurationMs)
	if err != nil {
		return err
	}
	history.ID = historyID

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_constituents WHERE index_history_id = $1`, historyID); err != nil {
		return err
	}

	for i := range constituents {
		constituents[i].IndexHistoryID = historyID
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO index_constituents (index_history_id, asset_id, rank, price, circulating_supply, market_cap, weight_pct)
			VALUES (:index_history_id, :asset_id, :rank, :price, :circulating_supply, :market_cap, :weight_pct)`,
			&constituents[i])
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// History returns index levels for a named active configuration within
// [from, to], ascending
func (r *Repository) History(ctx context.Context, name string, from, to time.Time) ([]models.IndexHistory, error) {
	var levels []models.IndexHistory
	err := r.db.SelectContext(ctx, &levels, `
		SELECT h.id, h.index_config_id, h.ts, h.total_market_cap, h.level,
		       h.num_constituents, h.divisor, h.duration_ms
		FROM index_history h
		JOIN index_configs c ON c.id = h.index_config_id
		WHERE c.name = $1 AND c.active AND h.ts >= $2 AND h.ts <= $3
		ORDER BY h.ts ASC`, name, from, to)
	return levels, err
}

// LatestLevel returns the most recent level for a named active
// configuration, or nil when none has been computed
func (r *Repository) LatestLevel(ctx context.Context, name string) (*models.IndexHistory, error) {
	var level models.IndexHistory
	err := r.db.GetContext(ctx, &level, `
		SELECT h.id, h.index_config_id, h.ts, h.total_market_cap, h.level,
		       h.num_constituents, h.divisor, h.duration_ms
		FROM index_history h
		JOIN index_configs c ON c.id = h.index_config_id
		WHERE c.name = $1 AND c.active
		ORDER BY h.ts DESC
		LIMIT 1`, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &level, nil
}

// Constituents returns the constituent rows of one history entry ordered by
// rank
func (r *Repository) Constituents(ctx context.Context, historyID int64) ([]models.IndexConstituent, error) {
	var rows []models.IndexConstituent
	err := r.db.SelectContext(ctx, &rows, `
		SELECT index_history_id, asset_id, rank, price, circulating_supply, market_cap, weight_pct
		FROM index_constituents
		WHERE index_history_id = $1
		ORDER BY rank ASC`, historyID)
	return rows, err
}
