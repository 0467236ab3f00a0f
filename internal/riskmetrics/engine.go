package riskmetrics

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/selivandex/crypto-index/internal/adapters/config"
	"github.com/selivandex/crypto-index/internal/returns"
	"github.com/selivandex/crypto-index/pkg/logger"
	"github.com/selivandex/crypto-index/pkg/models"
	"github.com/selivandex/crypto-index/pkg/quant"
)

// Engine backfills rolling-window risk statistics per asset per date:
// VaR/CVaR, distribution moments, CAPM beta/alpha against the benchmark
// index, and security-market-line deviation. Every metric follows the same
// shape: trailing window ending at each date, insert-if-absent, skip dates
// lacking minimum history.
type Engine struct {
	cfg         *config.RiskConfig
	indexName   string
	returnsRepo *returns.Repository
	repo        *Repository
}

// NewEngine creates new risk metrics engine
func NewEngine(cfg *config.RiskConfig, indexName string, returnsRepo *returns.Repository, repo *Repository) *Engine {
	return &Engine{
		cfg:         cfg,
		indexName:   indexName,
		returnsRepo: returnsRepo,
		repo:        repo,
	}
}

// Run executes one backfill pass over all assets with return history
func (e *Engine) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := models.NewRunSummary("risk_metrics")

	today := time.Now().UTC().Truncate(24 * time.Hour)

	eligible, err := e.returnsRepo.ListEligibleAssets(ctx, e.cfg.MinimumDataPoints, today)
	if err != nil {
		return summary, err
	}

	// Benchmark returns exist only after the index engine has run; betas
	// for dates without a benchmark are simply not yet available.
	benchmark, err := e.repo.BenchmarkReturns(ctx, e.indexName, today)
	if err != nil {
		return summary, err
	}

	for _, assetID := range eligible {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		inserted, err := e.backfillAsset(ctx, assetID, today, benchmark)
		if err != nil {
			summary.Error("asset "+strconv.FormatInt(assetID, 10), err)
			continue
		}
		if inserted == 0 {
			summary.Skip()
		} else {
			summary.Success(inserted)
		}
	}

	logger.Info("risk metrics backfill finished", summary.Fields()...)
	return summary, nil
}

func (e *Engine) backfillAsset(ctx context.Context, assetID int64, today time.Time, benchmark map[time.Time]float64) (int, error) {
	series, err := e.returnsRepo.GetLogReturns(ctx, assetID, today)
	if err != nil {
		return 0, err
	}
	if len(series) < e.cfg.MinimumDataPoints {
		return 0, nil
	}

	existingVaR, err := e.repo.ExistingVaRDates(ctx, assetID)
	if err != nil {
		return 0, err
	}
	existingDist, err := e.repo.ExistingDistributionDates(ctx, assetID)
	if err != nil {
		return 0, err
	}
	existingBeta, err := e.repo.ExistingBetaDates(ctx, assetID)
	if err != nil {
		return 0, err
	}
	existingSML, err := e.repo.ExistingSMLDates(ctx, assetID)
	if err != nil {
		return 0, err
	}

	values := make([]float64, len(series))
	dates := make([]time.Time, len(series))
	for i := range series {
		values[i] = series[i].Value
		dates[i] = series[i].Date.UTC().Truncate(24 * time.Hour)
	}

	inserted := 0

	// Ascending-date processing: the window-length assumption only holds
	// when earlier dates are computed first.
	for i := e.cfg.MinimumDataPoints - 1; i < len(values); i++ {
		date := dates[i]
		window, ok := quant.EffectiveWindow(i+1, e.cfg.MinimumDataPoints, e.cfg.MaxWindowDays)
		if !ok {
			continue
		}
		win := values[i+1-window : i+1]

		if !existingVaR[date] {
			wrote, err := e.insertVaR(ctx, assetID, date, window, win)
			if err != nil {
				return inserted, err
			}
			if wrote {
				inserted++
			}
		}

		if !existingDist[date] {
			skew, kurt := quant.Distribution(win)
			wrote, err := e.repo.InsertDistribution(ctx, &models.DistributionStat{
				AssetID:      assetID,
				Date:         date,
				WindowDays:   window,
				Skewness:     skew,
				Kurtosis:     kurt,
				Observations: window,
			})
			if err != nil {
				return inserted, err
			}
			if wrote {
				inserted++
			}
		}

		needBeta := !existingBeta[date]
		needSML := !existingSML[date]
		if needBeta || needSML {
			n, err := e.insertCAPM(ctx, assetID, date, window,
				dates[i+1-window:i+1], win, benchmark, needBeta, needSML)
			if err != nil {
				return inserted, err
			}
			inserted += n
		}
	}

	return inserted, nil
}

func (e *Engine) insertVaR(ctx context.Context, assetID int64, date time.Time, window int, win []float64) (bool, error) {
	s := quant.ComputeWindowStats(win)
	return e.repo.InsertVaR(ctx, &models.VaRRecord{
		AssetID:    assetID,
		Date:       date,
		WindowDays: window,
		MeanReturn: s.Mean,
		StdDev:     s.StdDev,
		MinReturn:  s.Min,
		MaxReturn:  s.Max,
		VaR95:      s.VaR95,
		CVaR95:     s.CVaR95,
		VaR99:      s.VaR99,
		CVaR99:     s.CVaR99,
	})
}

// insertCAPM writes the beta regression and SML deviation for one date.
// Both need a benchmark return for every date of the window; a benchmark
// younger than the asset's window means "not yet available", not an error.
func (e *Engine) insertCAPM(ctx context.Context, assetID int64, date time.Time, window int,
	winDates []time.Time, win []float64, benchmark map[time.Time]float64, needBeta, needSML bool) (int, error) {

	benchWin := make([]float64, 0, len(winDates))
	assetWin := make([]float64, 0, len(winDates))
	for j, d := range winDates {
		b, ok := benchmark[d]
		if !ok {
			continue
		}
		benchWin = append(benchWin, b)
		assetWin = append(assetWin, win[j])
	}

	// A partial overlap is tolerated; below minimum it is a skip
	if len(benchWin) < e.cfg.MinimumDataPoints {
		return 0, nil
	}

	reg, err := quant.Regress(benchWin, assetWin)
	if err != nil {
		// Degenerate benchmark window (e.g. zero variance): skip, retry
		// once more history accrues.
		logger.Debug("beta regression skipped",
			zap.Int64("asset_id", assetID),
			zap.Time("date", date),
			zap.Error(err),
		)
		return 0, nil
	}

	benchmarkMean := stat.Mean(benchWin, nil)
	inserted := 0

	if needBeta {
		wrote, err := e.repo.InsertBeta(ctx, &models.BetaRecord{
			AssetID:       assetID,
			Date:          date,
			WindowDays:    window,
			Beta:          reg.Beta,
			Alpha:         reg.Alpha,
			RSquared:      reg.RSquared,
			BenchmarkMean: benchmarkMean,
		})
		if err != nil {
			return inserted, err
		}
		if wrote {
			inserted++
		}
	}

	if needSML {
		expected := quant.ExpectedReturn(e.cfg.RiskFreeRate, reg.Beta, benchmarkMean)
		actual := stat.Mean(assetWin, nil)
		deviation := actual - expected

		wrote, err := e.repo.InsertSML(ctx, &models.SMLRecord{
			AssetID:        assetID,
			Date:           date,
			Beta:           reg.Beta,
			ExpectedReturn: expected,
			ActualReturn:   actual,
			Deviation:      deviation,
			Valuation:      classifyValuation(deviation, e.cfg.SMLTolerance),
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

// classifyValuation flags an asset relative to the security market line.
// Returning above the CAPM-expected line reads as undervalued.
func classifyValuation(deviation, tolerance float64) models.Valuation {
	switch {
	case deviation > tolerance:
		return models.ValuationUndervalued
	case deviation < -tolerance:
		return models.ValuationOvervalued
	default:
		return models.ValuationFair
	}
}
