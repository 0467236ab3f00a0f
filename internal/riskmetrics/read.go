package riskmetrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/selivandex/crypto-index/pkg/models"
)

// VolatilityRanking pairs an asset with its most recent window standard
// deviation for leaderboard queries.
type VolatilityRanking struct {
	AssetID int64     `db:"asset_id"`
	Symbol  string    `db:"symbol"`
	StdDev  float64   `db:"std_dev"`
	Date    time.Time `db:"date"`
}

// LatestVaR returns the most recent VaR record for an asset
func (r *Repository) LatestVaR(ctx context.Context, assetID int64) (*models.VaRRecord, error) {
	var rec models.VaRRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT asset_id, date, window_days, mean_return, std_dev, min_return, max_return,
		       var_95, cvar_95, var_99, cvar_99
		FROM var_records
		WHERE asset_id = $1
		ORDER BY date DESC
		LIMIT 1`, assetID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// VaRHistory returns VaR records for an asset within [from, to], ascending
func (r *Repository) VaRHistory(ctx context.Context, assetID int64, from, to time.Time) ([]models.VaRRecord, error) {
	var recs []models.VaRRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT asset_id, date, window_days, mean_return, std_dev, min_return, max_return,
		       var_95, cvar_95, var_99, cvar_99
		FROM var_records
		WHERE asset_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC`, assetID, from, to)
	return recs, err
}

// LatestBeta returns the most recent beta record for an asset
func (r *Repository) LatestBeta(ctx context.Context, assetID int64) (*models.BetaRecord, error) {
	var rec models.BetaRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT asset_id, date, window_days, beta, alpha, r_squared, benchmark_mean
		FROM beta_records
		WHERE asset_id = $1
		ORDER BY date DESC
		LIMIT 1`, assetID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// BetaHistory returns beta records for an asset within [from, to], ascending
func (r *Repository) BetaHistory(ctx context.Context, assetID int64, from, to time.Time) ([]models.BetaRecord, error) {
	var recs []models.BetaRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT asset_id, date, window_days, beta, alpha, r_squared, benchmark_mean
		FROM beta_records
		WHERE asset_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC`, assetID, from, to)
	return recs, err
}

// LatestDistribution returns the most recent distribution stats for an asset
func (r *Repository) LatestDistribution(ctx context.Context, assetID int64) (*models.DistributionStat, error) {
	var rec models.DistributionStat
	err := r.db.GetContext(ctx, &rec, `
		SELECT asset_id, date, window_days, skewness, kurtosis, observations
		FROM distribution_stats
		WHERE asset_id = $1
		ORDER BY date DESC
		LIMIT 1`, assetID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LatestSML returns the most recent security-market-line record for an asset
func (r *Repository) LatestSML(ctx context.Context, assetID int64) (*models.SMLRecord, error) {
	var rec models.SMLRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT asset_id, date, beta, expected_return, actual_return, deviation, valuation
		FROM sml_records
		WHERE asset_id = $1
		ORDER BY date DESC
		LIMIT 1`, assetID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SMLHistory returns SML records for an asset within [from, to], ascending
func (r *Repository) SMLHistory(ctx context.Context, assetID int64, from, to time.Time) ([]models.SMLRecord, error) {
	var recs []models.SMLRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT asset_id, date, beta, expected_return, actual_return, deviation, valuation
		FROM sml_records
		WHERE asset_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC`, assetID, from, to)
	return recs, err
}

// MostVolatile ranks assets by their latest window standard deviation,
// highest first
func (r *Repository) MostVolatile(ctx context.Context, limit int) ([]VolatilityRanking, error) {
	return r.volatilityRanking(ctx, limit, "DESC")
}

// LeastVolatile ranks assets by their latest window standard deviation,
// lowest first
func (r *Repository) LeastVolatile(ctx context.Context, limit int) ([]VolatilityRanking, error) {
	return r.volatilityRanking(ctx, limit, "ASC")
}

func (r *Repository) volatilityRanking(ctx context.Context, limit int, order string) ([]VolatilityRanking, error) {
	// order is fixed by the two exported callers, never user input
	query := fmt.Sprintf(`
		SELECT asset_id, symbol, std_dev, date FROM (
			SELECT DISTINCT ON (v.asset_id) v.asset_id, a.symbol, v.std_dev, v.date
			FROM var_records v
			JOIN assets a ON a.id = v.asset_id
			ORDER BY v.asset_id, v.date DESC
		) latest
		ORDER BY std_dev %s
		LIMIT $1`, order)

	var rankings []VolatilityRanking
	err := r.db.SelectContext(ctx, &rankings, query, limit)
	return rankings, err
}
