package portfolio

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/selivandex/crypto-index/internal/adapters/config"
	"github.com/selivandex/crypto-index/internal/index"
	"github.com/selivandex/crypto-index/pkg/logger"
	"github.com/selivandex/crypto-index/pkg/models"
	"github.com/selivandex/crypto-index/pkg/quant"
)

// Engine computes market-cap-weighted portfolio volatility from the full
// covariance matrix of the largest liquid assets, one row per return date.
// The portfolio is rebuilt from scratch at every date, so membership drifts
// with market caps rather than being pinned.
type Engine struct {
	cfg       *config.PortfolioConfig
	indexCfg  *config.IndexConfig
	indexRepo *index.Repository
	repo      *Repository
}

// NewEngine creates new portfolio volatility engine
func NewEngine(cfg *config.PortfolioConfig, indexCfg *config.IndexConfig, indexRepo *index.Repository, repo *Repository) *Engine {
	return &Engine{
		cfg:       cfg,
		indexCfg:  indexCfg,
		indexRepo: indexRepo,
		repo:      repo,
	}
}

// Member is one portfolio candidate together with its return history
type Member struct {
	Candidate
	Returns []float64
}

// Basket is a resolved portfolio: members truncated to a shared window
type Basket struct {
	Members    []Member
	WindowDays int
}

// Run computes portfolio volatility for every return date still missing one
func (e *Engine) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := models.NewRunSummary("portfolio_volatility")

	cfg, err := e.indexRepo.GetActiveConfig(ctx, e.indexCfg.Name, e.indexCfg.BaseLevel, e.indexCfg.MaxConstituents)
	if err != nil {
		return summary, err
	}

	missing, err := e.repo.MissingDates(ctx, cfg.ID)
	if err != nil {
		return summary, err
	}

	for _, date := range missing {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		if err := e.computeDate(ctx, cfg.ID, date); err != nil {
			summary.Error(date.Format("2006-01-02"), err)
			continue
		}
		summary.Success(1)
	}

	logger.Info("portfolio volatility backfill finished", summary.Fields()...)
	return summary, nil
}

func (e *Engine) computeDate(ctx context.Context, configID int64, date time.Time) error {
	started := time.Now()

	ranked, err := e.repo.CandidatePool(ctx, date, e.cfg.MinVolume24h)
	if err != nil {
		return err
	}
	pool := SelectPool(ranked, e.indexCfg.ExcludedCategories, e.cfg.CandidatePoolSize)

	members := make([]Member, 0, len(pool))
	for _, c := range pool {
		returns, err := e.repo.ReturnsThrough(ctx, c.AssetID, date)
		if err != nil {
			return err
		}
		members = append(members, Member{Candidate: c, Returns: returns})
	}

	basket, dropped, err := BuildBasket(members, e.cfg.MinWindowDays, e.cfg.DefaultWindowDays, e.cfg.MaxConstituents, e.cfg.MinConstituents)
	if err != nil {
		return err
	}
	if dropped > 0 {
		logger.Warn("portfolio constituents dropped for short history",
			zap.Time("date", date),
			zap.Int("dropped", dropped),
			zap.Int("kept", len(basket.Members)),
		)
	}

	result, err := ComputeVolatility(basket, e.cfg.TradingPeriodsPerYear)
	if err != nil {
		return err
	}
	if delta := math.Abs(result.WeightSum - 1); delta > 1e-9 {
		logger.Warn("portfolio weights do not sum to one",
			zap.Time("date", date),
			zap.Float64("weight_sum", result.WeightSum),
		)
	}

	totalCap := decimal.Zero
	for _, m := range basket.Members {
		totalCap = totalCap.Add(m.MarketCap)
	}

	pv := &models.PortfolioVolatility{
		IndexConfigID:   configID,
		Date:            date,
		WindowDays:      basket.WindowDays,
		DailyVol:        result.DailyVol,
		AnnualizedVol:   result.AnnualizedVol,
		NumConstituents: len(basket.Members),
		TotalMarketCap:  totalCap,
		DurationMs:      time.Since(started).Milliseconds(),
	}

	constituents := make([]models.PortfolioVolatilityConstituent, len(basket.Members))
	for i, m := range basket.Members {
		constituents[i] = models.PortfolioVolatilityConstituent{
			AssetID:       m.AssetID,
			Weight:        result.Weights[i],
			DailyVol:      result.MemberDailyVol[i],
			AnnualizedVol: quant.Annualize(result.MemberDailyVol[i], e.cfg.TradingPeriodsPerYear),
			MarketCap:     m.MarketCap,
		}
	}

	return e.repo.Save(ctx, pv, constituents)
}

// SelectPool drops candidates carrying an excluded category and then caps
// the pool at poolSize. Exclusion runs first so a filtered asset never
// consumes a pool slot.
func SelectPool(ranked []Candidate, excludedCategories []string, poolSize int) []Candidate {
	pool := make([]Candidate, 0, poolSize)
	for _, c := range ranked {
		if index.HasExcludedCategory(c.Categories, excludedCategories) {
			continue
		}
		pool = append(pool, c)
		if len(pool) == poolSize {
			break
		}
	}
	return pool
}

// BuildBasket resolves the shared return window and final membership.
// Candidates below the minimum history never enter; the window is the
// longest history among entrants capped at defaultWindow; entrants shorter
// than the resolved window are then dropped and counted. Fewer than
// minMembers survivors is an error for the date.
func BuildBasket(candidates []Member, minWindow, defaultWindow, maxMembers, minMembers int) (Basket, int, error) {
	eligible := make([]Member, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Returns) < minWindow {
			continue
		}
		eligible = append(eligible, c)
		if len(eligible) == maxMembers {
			break
		}
	}

	longest := 0
	for _, m := range eligible {
		if len(m.Returns) > longest {
			longest = len(m.Returns)
		}
	}

	window, ok := quant.SharedWindow(longest, minWindow, defaultWindow)
	if !ok {
		return Basket{}, 0, fmt.Errorf("no candidate has %d return observations", minWindow)
	}

	kept := make([]Member, 0, len(eligible))
	dropped := 0
	for _, m := range eligible {
		if len(m.Returns) < window {
			dropped++
			continue
		}
		m.Returns = quant.Tail(m.Returns, window)
		kept = append(kept, m)
	}

	if len(kept) < minMembers {
		return Basket{}, dropped, fmt.Errorf("only %d constituents with %d-day history, need %d", len(kept), window, minMembers)
	}

	return Basket{Members: kept, WindowDays: window}, dropped, nil
}

// VolatilityResult carries the covariance outputs for one basket
type VolatilityResult struct {
	DailyVol       float64
	AnnualizedVol  float64
	Weights        []float64
	WeightSum      float64
	MemberDailyVol []float64
}

// ComputeVolatility runs the covariance computation over a resolved basket:
// market-cap weights, sample covariance matrix, portfolio variance as the
// weighted quadratic form, annualized by the square root of time.
func ComputeVolatility(basket Basket, periodsPerYear float64) (VolatilityResult, error) {
	n := len(basket.Members)
	if n == 0 {
		return VolatilityResult{}, fmt.Errorf("empty basket")
	}

	totalCap := 0.0
	caps := make([]float64, n)
	for i, m := range basket.Members {
		caps[i] = models.ToFloat64(m.MarketCap)
		totalCap += caps[i]
	}
	if totalCap <= 0 {
		return VolatilityResult{}, fmt.Errorf("basket total market cap is not positive")
	}

	result := VolatilityResult{
		Weights:        make([]float64, n),
		MemberDailyVol: make([]float64, n),
	}
	series := make([][]float64, n)
	for i, m := range basket.Members {
		result.Weights[i] = caps[i] / totalCap
		result.WeightSum += result.Weights[i]
		series[i] = m.Returns
		if len(m.Returns) > 1 {
			result.MemberDailyVol[i] = stat.StdDev(m.Returns, nil)
		}
	}

	cov, err := quant.CovarianceMatrix(series)
	if err != nil {
		return VolatilityResult{}, err
	}

	variance, err := quant.PortfolioVariance(result.Weights, cov)
	if err != nil {
		return VolatilityResult{}, err
	}
	if variance < 0 {
		// Numerical noise near zero
		variance = 0
	}
	result.DailyVol = math.Sqrt(variance)
	result.AnnualizedVol = quant.Annualize(result.DailyVol, periodsPerYear)

	return result, nil
}
