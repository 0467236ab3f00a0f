package riskmetrics

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/crypto-index/pkg/models"
	"github.com/selivandex/crypto-index/pkg/quant"
)

// Repository handles storage for VaR, distribution, beta and SML records
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new risk metrics repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ExistingDates returns the already-computed dates for one asset in the
// given metric table. Table names are fixed by the callers, never user
// input.
func (r *Repository) existingDates(ctx context.Context, table string, assetID int64) (map[time.Time]bool, error) {
	var dates []time.Time
	query := fmt.Sprintf(`SELECT date FROM %s WHERE asset_id = $1`, table)
	if err := r.db.SelectContext(ctx, &dates, query, assetID); err != nil {
		return nil, fmt.Errorf("failed to load %s dates for asset %d: %w", table, assetID, err)
	}
	set := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		set[d.UTC().Truncate(24*time.Hour)] = true
	}
	return set, nil
}

// ExistingVaRDates returns dates already present in var_records
func (r *Repository) ExistingVaRDates(ctx context.Context, assetID int64) (map[time.Time]bool, error) {
	return r.existingDates(ctx, "var_records", assetID)
}

// ExistingDistributionDates returns dates already present in distribution_stats
func (r *Repository) ExistingDistributionDates(ctx context.Context, assetID int64) (map[time.Time]bool, error) {
	return r.existingDates(ctx, "distribution_stats", assetID)
}

// ExistingBetaDates returns dates already present in beta_records
func (r *Repository) ExistingBetaDates(ctx context.Context, assetID int64) (map[time.Time]bool, error) {
	return r.existingDates(ctx, "beta_records", assetID)
}

// ExistingSMLDates returns dates already present in sml_records
func (r *Repository) ExistingSMLDates(ctx context.Context, assetID int64) (map[time.Time]bool, error) {
	return r.existingDates(ctx, "sml_records", assetID)
}

// InsertVaR writes one VaR row unless the key already exists
func (r *Repository) InsertVaR(ctx context.Context, rec *models.VaRRecord) (bool, error) {
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO var_records (
			asset_id, date, window_days, mean_return, std_dev,
			min_return, max_return, var_95, cvar_95, var_99, cvar_99
		) VALUES (
			:asset_id, :date, :window_days, :mean_return, :std_dev,
			:min_return, :max_return, :var_95, :cvar_95, :var_99, :cvar_99
		)
		ON CONFLICT (asset_id, date, window_days) DO NOTHING`, rec)
	if err != nil {
		return false, fmt.Errorf("failed to insert VaR for asset %d: %w", rec.AssetID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertDistribution writes one distribution row unless the key exists
func (r *Repository) InsertDistribution(ctx context.Context, rec *models.DistributionStat) (bool, error) {
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO distribution_stats (asset_id, date, window_days, skewness, kurtosis, observations)
		VALUES (:asset_id, :date, :window_days, :skewness, :kurtosis, :observations)
		ON CONFLICT (asset_id, date, window_days) DO NOTHING`, rec)
	if err != nil {
		return false, fmt.Errorf("failed to insert distribution stats for asset %d: %w", rec.AssetID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertBeta writes one beta row unless the key exists
func (r *Repository) InsertBeta(ctx context.Context, rec *models.BetaRecord) (bool, error) {
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO beta_records (asset_id, date, window_days, beta, alpha, r_squared, benchmark_mean)
		VALUES (:asset_id, :date, :window_days, :beta, :alpha, :r_squared, :benchmark_mean)
		ON CONFLICT (asset_id, date, window_days) DO NOTHING`, rec)
	if err != nil {
		return false, fmt.Errorf("failed to insert beta for asset %d: %w", rec.AssetID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertSML writes one SML row unless the key exists
func (r *Repository) InsertSML(ctx context.Context, rec *models.SMLRecord) (bool, error) {
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO sml_records (asset_id, date, beta, expected_return, actual_return, deviation, valuation)
		VALUES (:asset_id, :date, :beta, :expected_return, :actual_return, :deviation, :valuation)
		ON CONFLICT (asset_id, date) DO NOTHING`, rec)
	if err != nil {
		return false, fmt.Errorf("failed to insert SML record for asset %d: %w", rec.AssetID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// BenchmarkReturns returns the benchmark index's daily log returns keyed by
// date: the last computed level of each day, differenced in return space.
func (r *Repository) BenchmarkReturns(ctx context.Context, indexName string, before time.Time) (map[time.Time]float64, error) {
	type levelRow struct {
		Date  time.Time `db:"date"`
		Level float64   `db:"level"`
	}

	var rows []levelRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (ih.ts::date) ih.ts::date AS date, ih.level
		FROM index_history ih
		JOIN index_configs ic ON ic.id = ih.index_config_id
		WHERE ic.active AND ic.name = $1 AND ih.ts < $2
		ORDER BY ih.ts::date ASC, ih.ts DESC`, indexName, before)
	if err != nil {
		return nil, fmt.Errorf("failed to load benchmark levels: %w", err)
	}

	out := make(map[time.Time]float64, len(rows))
	for i := 1; i < len(rows); i++ {
		value, ok := quant.LogReturn(rows[i-1].Level, rows[i].Level)
		if !ok {
			continue
		}
		date := rows[i].Date.UTC().Truncate(24 * time.Hour)
		out[date] = value
	}
	return out, nil
}
