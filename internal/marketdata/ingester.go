package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/selivandex/crypto-index/internal/adapters/coingecko"
	"github.com/selivandex/crypto-index/internal/adapters/config"
	"github.com/selivandex/crypto-index/internal/assets"
	"github.com/selivandex/crypto-index/pkg/logger"
	"github.com/selivandex/crypto-index/pkg/models"
)

// Ingester polls the paginated top-N market snapshot, registering unknown
// assets and writing raw price points plus today's daily reference row.
type Ingester struct {
	cfg       *config.ProviderConfig
	provider  coingecko.Provider
	assetRepo *assets.Repository
	repo      *Repository
}

// NewIngester creates new snapshot ingester
func NewIngester(cfg *config.ProviderConfig, provider coingecko.Provider, assetRepo *assets.Repository, repo *Repository) *Ingester {
	return &Ingester{
		cfg:       cfg,
		provider:  provider,
		assetRepo: assetRepo,
		repo:      repo,
	}
}

// Run ingests one full snapshot. A failed page is counted and the remaining
// pages still run.
func (ing *Ingester) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := models.NewRunSummary("snapshot_ingest")

	// Snapshot rows share one timestamp so the index engine sees a single
	// coherent market observation.
	snapshotTime := time.Now().UTC().Truncate(time.Hour)

	for page := 1; page <= ing.cfg.Pages; page++ {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		entries, err := ing.provider.FetchMarketSnapshot(ctx, page, ing.cfg.PageSize)
		if err != nil {
			logger.Warn("snapshot page fetch failed",
				zap.Int("page", page),
				zap.Error(err),
			)
			summary.Error(fmt.Sprintf("page %d", page), err)
			continue
		}

		for i := range entries {
			if err := ing.ingestEntry(ctx, &entries[i], snapshotTime); err != nil {
				summary.Error(entries[i].Symbol, err)
				continue
			}
			summary.Success(1)
		}
	}

	logger.Info("snapshot ingest finished", summary.Fields()...)
	return summary, nil
}

func (ing *Ingester) ingestEntry(ctx context.Context, e *coingecko.SnapshotEntry, ts time.Time) error {
	if e.CurrentPrice <= 0 {
		return fmt.Errorf("non-positive price %v", e.CurrentPrice)
	}

	asset, created, err := ing.assetRepo.GetOrCreate(ctx, e.Symbol, e.Name, e.ID, e.Image)
	if err != nil {
		return err
	}
	if created {
		logger.Info("new asset registered",
			zap.String("symbol", asset.Symbol),
			zap.String("external_id", e.ID),
		)
	}

	point := snapshotToPricePoint(asset.ID, e, ts)
	if err := ing.repo.UpsertPricePoint(ctx, point); err != nil {
		return err
	}

	// Today's daily reference row; finalized once the day rolls over
	price := models.NewDecimal(e.CurrentPrice)
	dayClose := &models.DailyClose{
		AssetID:   asset.ID,
		Date:      ts.Truncate(24 * time.Hour),
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    models.NewDecimal(e.TotalVolume),
		MarketCap: models.NewDecimal(e.MarketCap),
	}
	return ing.repo.UpsertDailyClose(ctx, dayClose)
}

func snapshotToPricePoint(assetID int64, e *coingecko.SnapshotEntry, ts time.Time) *models.PricePoint {
	p := &models.PricePoint{
		AssetID:           assetID,
		Timestamp:         ts,
		Price:             models.NewDecimal(e.CurrentPrice),
		CirculatingSupply: models.NewDecimal(e.CirculatingSupply),
		Volume24h:         models.NewDecimal(e.TotalVolume),
		PctChange1h:       nullFloat(e.PctChange1h),
		PctChange24h:      nullFloat(e.PctChange24h),
		PctChange7d:       nullFloat(e.PctChange7d),
		PctChange14d:      nullFloat(e.PctChange14d),
		PctChange30d:      nullFloat(e.PctChange30d),
		PctChange200d:     nullFloat(e.PctChange200d),
		PctChange1y:       nullFloat(e.PctChange1y),
	}
	if e.MarketCapRank != nil {
		p.MarketCapRank = sql.NullInt64{Int64: *e.MarketCapRank, Valid: true}
	}
	if e.TotalSupply != nil {
		p.TotalSupply = decimal.NewNullDecimal(models.NewDecimal(*e.TotalSupply))
	}
	if e.MaxSupply != nil {
		p.MaxSupply = decimal.NewNullDecimal(models.NewDecimal(*e.MaxSupply))
	}
	if e.FullyDilutedValuation != nil {
		p.FullyDilutedVal = decimal.NewNullDecimal(models.NewDecimal(*e.FullyDilutedValuation))
	}
	return p
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
