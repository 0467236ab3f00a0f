package portfolio

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/selivandex/crypto-index/pkg/models"
)

// Repository handles portfolio volatility storage and candidate queries
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new portfolio repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Candidate is one asset eligible for the volatility portfolio at a date
type Candidate struct {
	AssetID    int64           `db:"asset_id"`
	Symbol     string          `db:"symbol"`
	Categories pq.StringArray  `db:"categories"`
	MarketCap  decimal.Decimal `db:"market_cap"`
	Volume     decimal.Decimal `db:"volume"`
}

// CandidatePool returns every liquid asset at a date ranked by market cap.
// The caller applies category exclusions before capping the pool, so
// excluded assets must not be limited away here. Assets without a daily
// close at the date are not candidates.
func (r *Repository) CandidatePool(ctx context.Context, date time.Time, minVolume float64) ([]Candidate, error) {
	var pool []Candidate
	err := r.db.SelectContext(ctx, &pool, `
		SELECT d.asset_id, a.symbol, a.categories, d.market_cap, d.volume
		FROM daily_closes d
		JOIN assets a ON a.id = d.asset_id
		WHERE d.date = $1 AND d.market_cap > 0 AND d.volume >= $2
		ORDER BY d.market_cap DESC`, date, minVolume)
	return pool, err
}

// MissingDates returns dates that have log returns but no portfolio
// volatility row for the configuration. Newest first: each date is
// computed independently, and recent dates are the ones consumers read.
func (r *Repository) MissingDates(ctx context.Context, configID int64) ([]time.Time, error) {
	var dates []time.Time
	err := r.db.SelectContext(ctx, &dates, `
		SELECT DISTINCT lr.date
		FROM log_returns lr
		WHERE NOT EXISTS (
			SELECT 1 FROM portfolio_volatility pv
			WHERE pv.index_config_id = $1 AND pv.date = lr.date
		)
		ORDER BY lr.date DESC`, configID)
	return dates, err
}

// ReturnsThrough returns an asset's log returns up to and including the
// date, ascending
func (r *Repository) ReturnsThrough(ctx context.Context, assetID int64, date time.Time) ([]float64, error) {
	var values []float64
	err := r.db.SelectContext(ctx, &values, `
		SELECT log_return
		FROM log_returns
		WHERE asset_id = $1 AND date <= $2
		ORDER BY date ASC`, assetID, date)
	return values, err
}

// Save inserts one portfolio volatility row with its constituents in a
// single transaction
func (r *Repository) Save(ctx context.Context, pv *models.PortfolioVolatility, constituents []models.PortfolioVolatilityConstituent) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.GetContext(ctx, &id, `
		INSERT INTO portfolio_volatility (index_config_id, date, window_days, daily_volatility,
			annualized_volatility, num_constituents, total_market_cap, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (index_config_id, date) DO UPDATE SET
			window_days           = EXCLUDED.window_days,
			daily_volatility      = EXCLUDED.daily_volatility,
			annualized_volatility = EXCLUDED.annualized_volatility,
			num_constituents      = EXCLUDED.num_constituents,
			total_market_cap      = EXCLUDED.total_market_cap,
			duration_ms           = EXCLUDED.duration_ms
		RETURNING id`,
		pv.IndexConfigID, pv.Date, pv.WindowDays, pv.DailyVol,
		pv.AnnualizedVol, pv.NumConstituents, pv.TotalMarketCap, pv.DurationMs)
	if err != nil {
		return err
	}
	pv.ID = id

	if _, err := tx.ExecContext(ctx, `DELETE FROM portfolio_volatility_constituents WHERE portfolio_volatility_id = $1`, id); err != nil {
		return err
	}

	for i := range constituents {
		constituents[i].PortfolioVolatilityID = id
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO portfolio_volatility_constituents (portfolio_volatility_id, asset_id,
				weight, daily_volatility, annualized_volatility, market_cap)
			VALUES (:portfolio_volatility_id, :asset_id, :weight, :daily_volatility,
				:annualized_volatility, :market_cap)`,
			&constituents[i])
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Latest returns the most recent portfolio volatility for the
// configuration, or nil when none has been computed
func (r *Repository) Latest(ctx context.Context, configID int64) (*models.PortfolioVolatility, error) {
	var pv models.PortfolioVolatility
	err := r.db.GetContext(ctx, &pv, `
		SELECT id, index_config_id, date, window_days, daily_volatility,
		       annualized_volatility, num_constituents, total_market_cap, duration_ms
		FROM portfolio_volatility
		WHERE index_config_id = $1
		ORDER BY date DESC
		LIMIT 1`, configID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pv, nil
}

// History returns portfolio volatility rows within [from, to], ascending
func (r *Repository) History(ctx context.Context, configID int64, from, to time.Time) ([]models.PortfolioVolatility, error) {
	var rows []models.PortfolioVolatility
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, index_config_id, date, window_days, daily_volatility,
		       annualized_volatility, num_constituents, total_market_cap, duration_ms
		FROM portfolio_volatility
		WHERE index_config_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC`, configID, from, to)
	return rows, err
}

// Constituents returns the constituent rows of one volatility entry ordered
// by weight, heaviest first
func (r *Repository) Constituents(ctx context.Context, portfolioVolatilityID int64) ([]models.PortfolioVolatilityConstituent, error) {
	var rows []models.PortfolioVolatilityConstituent
	err := r.db.SelectContext(ctx, &rows, `
		SELECT portfolio_volatility_id, asset_id, weight, daily_volatility,
		       annualized_volatility, market_cap
		FROM portfolio_volatility_constituents
		WHERE portfolio_volatility_id = $1
		ORDER BY weight DESC`, portfolioVolatilityID)
	return rows, err
}
