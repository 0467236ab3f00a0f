package backfill

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/crypto-index/internal/adapters/coingecko"
	"github.com/selivandex/crypto-index/internal/adapters/config"
	"github.com/selivandex/crypto-index/pkg/logger"
	"github.com/selivandex/crypto-index/pkg/models"
)

// assetLister provides the tracked assets the fine pass iterates
type assetLister interface {
	ListWithExternalID(ctx context.Context) ([]models.Asset, error)
}

// pointStore is the market-data write surface the scheduler repairs through
type pointStore interface {
	InsertDailyCloseIfMissing(ctx context.Context, c *models.DailyClose) (bool, error)
	InsertPricePointIfMissing(ctx context.Context, p *models.PricePoint) (bool, error)
	CountRecentPricePoints(ctx context.Context, assetID int64, since time.Time) (int, error)
}

// Scheduler detects per-asset gaps in the daily series and repairs them with
// one bounded historical fetch per gapped asset. Safe to re-trigger: a crash
// mid-run leaves partial state the next run detects and completes.
type Scheduler struct {
	cfg        *config.BackfillConfig
	provider   coingecko.Provider
	repo       *Repository
	assetRepo  assetLister
	marketRepo pointStore
}

// NewScheduler creates new backfill scheduler
func NewScheduler(cfg *config.BackfillConfig, provider coingecko.Provider, repo *Repository, assetRepo assetLister, marketRepo pointStore) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		provider:   provider,
		repo:       repo,
		assetRepo:  assetRepo,
		marketRepo: marketRepo,
	}
}

// Run executes one backfill pass: the cheap currency check, the detailed
// per-asset gap repair, then the fine-granularity supplementary pass.
func (s *Scheduler) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := models.NewRunSummary("historical_backfill")

	today := time.Now().UTC().Truncate(24 * time.Hour)
	yesterday := today.AddDate(0, 0, -1)

	// Cheap pass: one set-based query. A fully current system performs no
	// external fetch at all.
	gapped, err := s.repo.ListGappedAssets(ctx, yesterday)
	if err != nil {
		return summary, fmt.Errorf("gap flagging failed: %w", err)
	}

	if len(gapped) == 0 {
		logger.Info("all assets current, no backfill needed",
			zap.String("run_id", summary.RunID),
		)
	}

	for i := range gapped {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		s.backfillAsset(ctx, &gapped[i], today, summary)
	}

	if err := s.finePass(ctx, today, summary); err != nil {
		return summary, err
	}

	logger.Info("backfill finished", summary.Fields()...)
	return summary, nil
}

// backfillAsset runs the detailed pass for one flagged asset. Failures are
// recorded and the run continues; there are no in-run retries.
func (s *Scheduler) backfillAsset(ctx context.Context, asset *models.Asset, today time.Time, summary *models.RunSummary) {
	from := today.AddDate(0, 0, -s.cfg.RecoveryWindowDays)

	presentCloses, err := s.repo.PresentCloseDates(ctx, asset.ID, from, today)
	if err != nil {
		summary.Error(asset.Symbol, err)
		return
	}
	presentPoints, err := s.repo.PresentPointDays(ctx, asset.ID, from, today)
	if err != nil {
		summary.Error(asset.Symbol, err)
		return
	}

	report := DetectGaps(today, s.cfg.RecoveryWindowDays, presentCloses, presentPoints)
	if !report.HasGaps() {
		// Flagged by the cheap pass but complete on close inspection
		summary.Skip()
		return
	}

	lookBack := RequiredLookBack(today, report.OldestMissing,
		s.cfg.BufferDays, s.cfg.MinCallSpanDays, s.cfg.RecoveryWindowDays)

	logger.Debug("backfilling asset",
		zap.String("symbol", asset.Symbol),
		zap.Int("look_back_days", lookBack),
		zap.Int("missing_closes", len(report.MissingCloses)),
		zap.Int("missing_points", len(report.MissingPoints)),
	)

	series, err := s.provider.FetchHistoricalSeries(ctx, asset.ExternalID.String, lookBack)
	if err != nil {
		logger.Warn("historical fetch failed",
			zap.String("symbol", asset.Symbol),
			zap.Error(err),
		)
		summary.Error(asset.Symbol, err)
		return
	}

	inserted := 0
	for _, obs := range AggregateDaily(series, today) {
		if obs.Price <= 0 {
			continue
		}

		// Both tables fill from the same fetch, each filtered against its
		// own missing set.
		if report.MissingCloses[obs.Date] {
			ok, err := s.marketRepo.InsertDailyCloseIfMissing(ctx, dayToClose(asset.ID, obs))
			if err != nil {
				summary.Error(asset.Symbol, err)
				return
			}
			if ok {
				inserted++
			}
		}
		if report.MissingPoints[obs.Date] {
			ok, err := s.marketRepo.InsertPricePointIfMissing(ctx, dayToPoint(asset.ID, obs))
			if err != nil {
				summary.Error(asset.Symbol, err)
				return
			}
			if ok {
				inserted++
			}
		}
	}

	summary.Success(inserted)
}

// finePass re-fetches a short span at sub-daily granularity for assets whose
// raw point density fell below the threshold. Only price_points is touched;
// the daily close series never sees sub-daily data.
func (s *Scheduler) finePass(ctx context.Context, today time.Time, summary *models.RunSummary) error {
	tracked, err := s.assetRepo.ListWithExternalID(ctx)
	if err != nil {
		return fmt.Errorf("fine pass asset listing failed: %w", err)
	}

	since := today.AddDate(0, 0, -s.cfg.FineWindowDays)

	for i := range tracked {
		asset := &tracked[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}

		count, err := s.marketRepo.CountRecentPricePoints(ctx, asset.ID, since)
		if err != nil {
			summary.Error(asset.Symbol, err)
			continue
		}
		if count >= s.cfg.FineMinPoints {
			summary.Skip()
			continue
		}

		series, err := s.provider.FetchHistoricalSeries(ctx, asset.ExternalID.String, s.cfg.FineWindowDays)
		if err != nil {
			logger.Warn("fine-granularity fetch failed",
				zap.String("symbol", asset.Symbol),
				zap.Error(err),
			)
			summary.Error(asset.Symbol, err)
			continue
		}

		inserted := 0
		failed := false
		caps := indexByTime(series.MarketCaps)
		vols := indexByTime(series.Volumes)
		for _, p := range series.Prices {
			if p.Value <= 0 {
				continue
			}
			point := &models.PricePoint{
				AssetID:   asset.ID,
				Timestamp: p.Timestamp,
				Price:     models.NewDecimal(p.Value),
			}
			if mcap, ok := caps[p.Timestamp]; ok && mcap > 0 {
				point.CirculatingSupply = models.NewDecimal(mcap / p.Value)
			}
			if vol, ok := vols[p.Timestamp]; ok {
				point.Volume24h = models.NewDecimal(vol)
			}
			ok, err := s.marketRepo.InsertPricePointIfMissing(ctx, point)
			if err != nil {
				summary.Error(asset.Symbol, err)
				failed = true
				break
			}
			if ok {
				inserted++
			}
		}
		switch {
		case failed:
			// Already counted as a failure
		case inserted == 0:
			// Below the density threshold but the fetch added nothing new
			summary.Skip()
		default:
			summary.Success(inserted)
		}
	}

	return nil
}

func dayToClose(assetID int64, obs DayObservation) *models.DailyClose {
	price := models.NewDecimal(obs.Price)
	return &models.DailyClose{
		AssetID:   assetID,
		Date:      obs.Date,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    models.NewDecimal(obs.Volume),
		MarketCap: models.NewDecimal(obs.MarketCap),
	}
}

func dayToPoint(assetID int64, obs DayObservation) *models.PricePoint {
	point := &models.PricePoint{
		AssetID:   assetID,
		Timestamp: obs.Date,
		Price:     models.NewDecimal(obs.Price),
		Volume24h: models.NewDecimal(obs.Volume),
	}
	// Supply reconstructed from cap when the provider gives no direct figure
	if obs.Price > 0 && obs.MarketCap > 0 {
		point.CirculatingSupply = models.NewDecimal(obs.MarketCap / obs.Price)
	}
	return point
}

func indexByTime(points []coingecko.SeriesPoint) map[time.Time]float64 {
	out := make(map[time.Time]float64, len(points))
	for _, p := range points {
		out[p.Timestamp] = p.Value
	}
	return out
}
