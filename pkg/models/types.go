package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// Asset represents a tracked cryptocurrency. Created on first market-data
// fetch; symbol is the natural key. External id, image and categories are
// enrichable after creation, everything else is immutable.
type Asset struct {
	ID         int64          `db:"id"`
	Symbol     string         `db:"symbol"`
	Name       string         `db:"name"`
	ExternalID sql.NullString `db:"external_id"`
	ImageURL   sql.NullString `db:"image_url"`
	Categories pq.StringArray `db:"categories"`
	CreatedAt  time.Time      `db:"created_at"`
}

// PricePoint is one raw market observation for an asset at a timestamp.
// The canonical series is daily (00:00:00 UTC); a finer-grained series is
// stored for completeness checks only and never feeds return calculations.
type PricePoint struct {
	AssetID           int64               `db:"asset_id"`
	Timestamp         time.Time           `db:"ts"`
	Price             decimal.Decimal     `db:"price"`
	CirculatingSupply decimal.Decimal     `db:"circulating_supply"`
	Volume24h         decimal.Decimal     `db:"volume_24h"`
	PctChange1h       sql.NullFloat64     `db:"pct_change_1h"`
	PctChange24h      sql.NullFloat64     `db:"pct_change_24h"`
	PctChange7d       sql.NullFloat64     `db:"pct_change_7d"`
	PctChange14d      sql.NullFloat64     `db:"pct_change_14d"`
	PctChange30d      sql.NullFloat64     `db:"pct_change_30d"`
	PctChange200d     sql.NullFloat64     `db:"pct_change_200d"`
	PctChange1y       sql.NullFloat64     `db:"pct_change_1y"`
	MarketCapRank     sql.NullInt64       `db:"market_cap_rank"`
	TotalSupply       decimal.NullDecimal `db:"total_supply"`
	MaxSupply         decimal.NullDecimal `db:"max_supply"`
	FullyDilutedVal   decimal.NullDecimal `db:"fully_diluted_valuation"`
}

// DailyClose is the canonical (asset, date) closing row. No intraday OHLC is
// modeled: open=high=low=close=daily reference price. This series is the sole
// source for log-return computation.
type DailyClose struct {
	AssetID   int64           `db:"asset_id"`
	Date      time.Time       `db:"date"`
	Open      decimal.Decimal `db:"open"`
	High      decimal.Decimal `db:"high"`
	Low       decimal.Decimal `db:"low"`
	Close     decimal.Decimal `db:"close"`
	Volume    decimal.Decimal `db:"volume"`
	MarketCap decimal.Decimal `db:"market_cap"`
}

// LogReturn is ln(close[date] / close[previous date]) for an asset
type LogReturn struct {
	AssetID int64     `db:"asset_id"`
	Date    time.Time `db:"date"`
	Value   float64   `db:"log_return"`
}

// MovingAverage holds a trailing simple moving average. WindowDays is the
// actual number of observations used, which grows from the configured minimum
// up to the target as history accumulates.
type MovingAverage struct {
	AssetID    int64     `db:"asset_id"`
	Date       time.Time `db:"date"`
	WindowDays int       `db:"window_days"`
	Value      float64   `db:"value"`
}

// VaRRecord holds historical VaR/CVaR over a trailing return window
type VaRRecord struct {
	AssetID    int64     `db:"asset_id"`
	Date       time.Time `db:"date"`
	WindowDays int       `db:"window_days"`
	MeanReturn float64   `db:"mean_return"`
	StdDev     float64   `db:"std_dev"`
	MinReturn  float64   `db:"min_return"`
	MaxReturn  float64   `db:"max_return"`
	VaR95      float64   `db:"var_95"`
	CVaR95     float64   `db:"cvar_95"`
	VaR99      float64   `db:"var_99"`
	CVaR99     float64   `db:"cvar_99"`
}

// DistributionStat holds higher-moment statistics of a trailing return window
type DistributionStat struct {
	AssetID      int64     `db:"asset_id"`
	Date         time.Time `db:"date"`
	WindowDays   int       `db:"window_days"`
	Skewness     float64   `db:"skewness"`
	Kurtosis     float64   `db:"kurtosis"`
	Observations int       `db:"observations"`
}

// BetaRecord holds CAPM regression results against the benchmark index
type BetaRecord struct {
	AssetID       int64     `db:"asset_id"`
	Date          time.Time `db:"date"`
	WindowDays    int       `db:"window_days"`
	Beta          float64   `db:"beta"`
	Alpha         float64   `db:"alpha"`
	RSquared      float64   `db:"r_squared"`
	BenchmarkMean float64   `db:"benchmark_mean"`
}

// Valuation flags an asset's position relative to the security market line
type Valuation string

const (
	ValuationOvervalued  Valuation = "overvalued"
	ValuationUndervalued Valuation = "undervalued"
	ValuationFair        Valuation = "fair"
)

// SMLRecord compares realized return against the CAPM-expected return
type SMLRecord struct {
	AssetID        int64     `db:"asset_id"`
	Date           time.Time `db:"date"`
	Beta           float64   `db:"beta"`
	ExpectedReturn float64   `db:"expected_return"`
	ActualReturn   float64   `db:"actual_return"`
	Deviation      float64   `db:"deviation"`
	Valuation      Valuation `db:"valuation"`
}

// IndexConfig is a named index definition. The divisor is anchored once from
// the earliest market snapshot and immutable afterwards; 1.0 marks an
// uninitialized configuration.
type IndexConfig struct {
	ID              int64        `db:"id"`
	Name            string       `db:"name"`
	BaseLevel       float64      `db:"base_level"`
	Divisor         float64      `db:"divisor"`
	BaseDate        sql.NullTime `db:"base_date"`
	MaxConstituents int          `db:"max_constituents"`
	Active          bool         `db:"active"`
	CreatedAt       time.Time    `db:"created_at"`
}

// Initialized reports whether the divisor has been anchored
func (c *IndexConfig) Initialized() bool {
	return c.Divisor != 1.0 && c.BaseDate.Valid
}

// IndexHistory is one computed index level at a market-data timestamp
type IndexHistory struct {
	ID              int64           `db:"id"`
	IndexConfigID   int64           `db:"index_config_id"`
	Timestamp       time.Time       `db:"ts"`
	TotalMarketCap  decimal.Decimal `db:"total_market_cap"`
	Level           float64         `db:"level"`
	NumConstituents int             `db:"num_constituents"`
	Divisor         float64         `db:"divisor"`
	DurationMs      int64           `db:"duration_ms"`
}

// IndexConstituent is one asset's share of an IndexHistory row. Rows are
// fully replaced whenever the parent history row is recomputed.
type IndexConstituent struct {
	IndexHistoryID    int64           `db:"index_history_id"`
	AssetID           int64           `db:"asset_id"`
	Rank              int             `db:"rank"`
	Price             decimal.Decimal `db:"price"`
	CirculatingSupply decimal.Decimal `db:"circulating_supply"`
	MarketCap         decimal.Decimal `db:"market_cap"`
	WeightPct         float64         `db:"weight_pct"`
}

// PortfolioVolatility is the covariance-based portfolio volatility for the
// active index configuration at a date.
type PortfolioVolatility struct {
	ID              int64           `db:"id"`
	IndexConfigID   int64           `db:"index_config_id"`
	Date            time.Time       `db:"date"`
	WindowDays      int             `db:"window_days"`
	DailyVol        float64         `db:"daily_volatility"`
	AnnualizedVol   float64         `db:"annualized_volatility"`
	NumConstituents int             `db:"num_constituents"`
	TotalMarketCap  decimal.Decimal `db:"total_market_cap"`
	DurationMs      int64           `db:"duration_ms"`
}

// PortfolioVolatilityConstituent is one asset's contribution to a
// PortfolioVolatility row.
type PortfolioVolatilityConstituent struct {
	PortfolioVolatilityID int64           `db:"portfolio_volatility_id"`
	AssetID               int64           `db:"asset_id"`
	Weight                float64         `db:"weight"`
	DailyVol              float64         `db:"daily_volatility"`
	AnnualizedVol         float64         `db:"annualized_volatility"`
	MarketCap             decimal.Decimal `db:"market_cap"`
}
