package coingecko

import (
	"context"
	"time"
)

// SnapshotEntry is one asset row of the paginated top-N market snapshot
type SnapshotEntry struct {
	ID                    string   `json:"id"`
	Symbol                string   `json:"symbol"`
	Name                  string   `json:"name"`
	Image                 string   `json:"image"`
	CurrentPrice          float64  `json:"current_price"`
	MarketCap             float64  `json:"market_cap"`
	MarketCapRank         *int64   `json:"market_cap_rank"`
	FullyDilutedValuation *float64 `json:"fully_diluted_valuation"`
	TotalVolume           float64  `json:"total_volume"`
	CirculatingSupply     float64  `json:"circulating_supply"`
	TotalSupply           *float64 `json:"total_supply"`
	MaxSupply             *float64 `json:"max_supply"`
	PctChange1h           *float64 `json:"price_change_percentage_1h_in_currency"`
	PctChange24h          *float64 `json:"price_change_percentage_24h_in_currency"`
	PctChange7d           *float64 `json:"price_change_percentage_7d_in_currency"`
	PctChange14d          *float64 `json:"price_change_percentage_14d_in_currency"`
	PctChange30d          *float64 `json:"price_change_percentage_30d_in_currency"`
	PctChange200d         *float64 `json:"price_change_percentage_200d_in_currency"`
	PctChange1y           *float64 `json:"price_change_percentage_1y_in_currency"`
}

// SeriesPoint is one (timestamp, value) observation of a historical series
type SeriesPoint struct {
	Timestamp time.Time
	Value     float64
}

// HistoricalSeries is one market-chart response. Granularity is provider
// determined: daily for spans over 90 days, finer below.
type HistoricalSeries struct {
	Prices     []SeriesPoint
	MarketCaps []SeriesPoint
	Volumes    []SeriesPoint
}

// AssetMetadata is categorical/descriptive enrichment, independent of prices
type AssetMetadata struct {
	Categories  []string
	Description string
	Homepage    string
}

// Provider is the external market-data capability the pipeline consumes
type Provider interface {
	// FetchMarketSnapshot returns one page of the top-N asset snapshot,
	// ordered by market cap descending.
	FetchMarketSnapshot(ctx context.Context, page, pageSize int) ([]SnapshotEntry, error)

	// FetchHistoricalSeries returns up to `days` of history for one asset
	FetchHistoricalSeries(ctx context.Context, externalID string, days int) (*HistoricalSeries, error)

	// FetchAssetMetadata returns category/description enrichment for one asset
	FetchAssetMetadata(ctx context.Context, externalID string) (*AssetMetadata, error)

	// GetName returns provider name
	GetName() string
}
