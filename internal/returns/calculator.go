package returns

import (
	"context"
	"strconv"
	"time"

	"github.com/cinar/indicator"
	"go.uber.org/zap"

	"github.com/selivandex/crypto-index/internal/adapters/config"
	"github.com/selivandex/crypto-index/internal/marketdata"
	"github.com/selivandex/crypto-index/pkg/logger"
	"github.com/selivandex/crypto-index/pkg/models"
	"github.com/selivandex/crypto-index/pkg/quant"
)

// Calculator backfills day-over-day log returns and trailing simple moving
// averages for every asset with enough daily history.
type Calculator struct {
	cfg        *config.ReturnsConfig
	marketRepo *marketdata.Repository
	repo       *Repository
}

// NewCalculator creates new returns calculator
func NewCalculator(cfg *config.ReturnsConfig, marketRepo *marketdata.Repository, repo *Repository) *Calculator {
	return &Calculator{
		cfg:        cfg,
		marketRepo: marketRepo,
		repo:       repo,
	}
}

// Run executes one backfill pass over all eligible assets, ascending by
// date within each asset. Re-running against unchanged data inserts nothing.
func (c *Calculator) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := models.NewRunSummary("returns_calculation")

	today := time.Now().UTC().Truncate(24 * time.Hour)

	eligible, err := c.repo.ListEligibleAssets(ctx, c.cfg.MinimumDataPoints, today)
	if err != nil {
		return summary, err
	}

	for _, assetID := range eligible {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		inserted, err := c.calculateAsset(ctx, assetID, today)
		if err != nil {
			summary.Error(assetIDKey(assetID), err)
			continue
		}
		if inserted == 0 {
			summary.Skip()
		} else {
			summary.Success(inserted)
		}
	}

	logger.Info("returns calculation finished", summary.Fields()...)
	return summary, nil
}

func (c *Calculator) calculateAsset(ctx context.Context, assetID int64, today time.Time) (int, error) {
	closes, err := c.marketRepo.GetCloses(ctx, assetID, today)
	if err != nil {
		return 0, err
	}
	if len(closes) < 2 {
		return 0, nil
	}

	inserted, err := c.backfillReturns(ctx, assetID, closes)
	if err != nil {
		return inserted, err
	}

	maInserted, err := c.backfillAverages(ctx, assetID, closes)
	if err != nil {
		return inserted + maInserted, err
	}

	return inserted + maInserted, nil
}

func (c *Calculator) backfillReturns(ctx context.Context, assetID int64, closes []models.DailyClose) (int, error) {
	existing, err := c.repo.ExistingReturnDates(ctx, assetID)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for i := 1; i < len(closes); i++ {
		date := closes[i].Date.UTC().Truncate(24 * time.Hour)
		if existing[date] {
			continue
		}

		// Defined only against the immediately preceding distinct date and
		// only for positive closes.
		value, ok := quant.LogReturn(
			models.ToFloat64(closes[i-1].Close),
			models.ToFloat64(closes[i].Close),
		)
		if !ok {
			logger.Debug("log return undefined",
				zap.Int64("asset_id", assetID),
				zap.Time("date", date),
			)
			continue
		}

		wrote, err := c.repo.InsertLogReturn(ctx, &models.LogReturn{
			AssetID: assetID,
			Date:    date,
			Value:   value,
		})
		if err != nil {
			return inserted, err
		}
		if wrote {
			inserted++
		}
	}

	return inserted, nil
}

func (c *Calculator) backfillAverages(ctx context.Context, assetID int64, closes []models.DailyClose) (int, error) {
	existing, err := c.repo.ExistingAverageDates(ctx, assetID)
	if err != nil {
		return 0, err
	}

	values := make([]float64, len(closes))
	for i := range closes {
		values[i] = models.ToFloat64(closes[i].Close)
	}

	points := MovingAverages(values, c.cfg.MinWindowDays, c.cfg.DefaultWindowDays)

	inserted := 0
	for _, p := range points {
		date := closes[p.Index].Date.UTC().Truncate(24 * time.Hour)
		if existing[date] {
			continue
		}

		wrote, err := c.repo.InsertMovingAverage(ctx, &models.MovingAverage{
			AssetID:    assetID,
			Date:       date,
			WindowDays: p.WindowDays,
			Value:      p.Value,
		})
		if err != nil {
			return inserted, err
		}
		if wrote {
			inserted++
		}
	}

	return inserted, nil
}

// AveragePoint is one computed moving average, positioned by index into the
// chronological close sequence.
type AveragePoint struct {
	Index      int
	WindowDays int
	Value      float64
}

// MovingAverages computes the trailing simple moving average for every
// close from the minWindow-th observation onward. The window grows with the
// data, window(i) = min(i+1, targetWindow), which is exactly what
// indicator.Sma produces before its period fills.
func MovingAverages(closes []float64, minWindow, targetWindow int) []AveragePoint {
	if len(closes) < minWindow {
		return nil
	}

	sma := indicator.Sma(targetWindow, closes)

	out := make([]AveragePoint, 0, len(closes)-minWindow+1)
	for i := minWindow - 1; i < len(closes); i++ {
		window := i + 1
		if window > targetWindow {
			window = targetWindow
		}
		out = append(out, AveragePoint{
			Index:      i,
			WindowDays: window,
			Value:      sma[i],
		})
	}
	return out
}

func assetIDKey(id int64) string {
	return "asset " + strconv.FormatInt(id, 10)
}
