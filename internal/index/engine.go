package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/selivandex/crypto-index/internal/adapters/config"
	"github.com/selivandex/crypto-index/pkg/logger"
	"github.com/selivandex/crypto-index/pkg/models"
)

// Engine maintains a market-cap-weighted index. On first run it anchors the
// divisor from the earliest market snapshot so the index starts at the base
// level; afterwards it backfills one level per snapshot timestamp that has
// no level yet.
type Engine struct {
	cfg  *config.IndexConfig
	repo *Repository
}

// NewEngine creates new index engine
func NewEngine(cfg *config.IndexConfig, repo *Repository) *Engine {
	return &Engine{cfg: cfg, repo: repo}
}

// Run computes all missing index levels for the active configuration
func (e *Engine) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := models.NewRunSummary("index")

	cfg, err := e.repo.GetActiveConfig(ctx, e.cfg.Name, e.cfg.BaseLevel, e.cfg.MaxConstituents)
	if err != nil {
		return summary, err
	}

	if !cfg.Initialized() {
		initialized, err := e.initialize(ctx, cfg)
		if err != nil {
			return summary, err
		}
		if !initialized {
			// No market data yet, nothing to anchor against
			summary.Skip()
			return summary, nil
		}
		cfg, err = e.repo.GetActiveConfig(ctx, e.cfg.Name, e.cfg.BaseLevel, e.cfg.MaxConstituents)
		if err != nil {
			return summary, err
		}
	}

	missing, err := e.repo.MissingTimestamps(ctx, cfg.ID, cfg.BaseDate.Time)
	if err != nil {
		return summary, err
	}

	for _, ts := range missing {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		if err := e.computeLevel(ctx, cfg, ts); err != nil {
			summary.Error(ts.Format(time.RFC3339), err)
			continue
		}
		summary.Success(1)
	}

	logger.Info("index backfill finished", summary.Fields()...)
	return summary, nil
}

// initialize anchors the divisor from the earliest snapshot so that the
// level at the base date equals the configured base level. Returns false
// when no market data exists yet.
func (e *Engine) initialize(ctx context.Context, cfg *models.IndexConfig) (bool, error) {
	baseTime, err := e.repo.EarliestSnapshotTime(ctx)
	if err != nil {
		return false, err
	}
	if baseTime.IsZero() {
		return false, nil
	}

	snapshot, err := e.repo.MarketSnapshotAt(ctx, baseTime)
	if err != nil {
		return false, err
	}

	selected, err := SelectConstituents(snapshot, e.cfg.ExcludedCategories, e.cfg.MinVolume24h, cfg.MaxConstituents)
	if err != nil {
		return false, fmt.Errorf("base snapshot at %s: %w", baseTime.Format(time.RFC3339), err)
	}

	baseCap := totalMarketCap(selected)
	divisor := models.ToFloat64(baseCap) / cfg.BaseLevel

	if err := e.repo.Anchor(ctx, cfg.ID, divisor, baseTime); err != nil {
		return false, err
	}

	logger.Info("index divisor anchored",
		zap.String("index", cfg.Name),
		zap.Time("base_date", baseTime),
		zap.Float64("divisor", divisor),
		zap.String("base_market_cap", baseCap.String()),
	)
	return true, nil
}

func (e *Engine) computeLevel(ctx context.Context, cfg *models.IndexConfig, ts time.Time) error {
	started := time.Now()

	snapshot, err := e.repo.MarketSnapshotAt(ctx, ts)
	if err != nil {
		return err
	}

	selected, err := SelectConstituents(snapshot, e.cfg.ExcludedCategories, e.cfg.MinVolume24h, cfg.MaxConstituents)
	if err != nil {
		return err
	}

	totalCap := totalMarketCap(selected)
	level := models.ToFloat64(totalCap) / cfg.Divisor

	history := &models.IndexHistory{
		IndexConfigID:   cfg.ID,
		Timestamp:       ts,
		TotalMarketCap:  totalCap,
		Level:           level,
		NumConstituents: len(selected),
		Divisor:         cfg.Divisor,
		DurationMs:      time.Since(started).Milliseconds(),
	}

	constituents := make([]models.IndexConstituent, len(selected))
	totalCapF := models.ToFloat64(totalCap)
	for i, s := range selected {
		constituents[i] = models.IndexConstituent{
			AssetID:           s.AssetID,
			Rank:              i + 1,
			Price:             s.Price,
			CirculatingSupply: s.CirculatingSupply,
			MarketCap:         s.MarketCap(),
			WeightPct:         models.ToFloat64(s.MarketCap()) / totalCapF * 100,
		}
	}

	return e.repo.SaveLevel(ctx, history, constituents)
}

// SelectConstituents filters a market snapshot down to the index basket:
// excluded categories out, minimum 24h volume, then the top maxConstituents
// by market cap. A snapshot that cannot fill the basket is an error so the
// level for that timestamp is reported instead of silently computed thin.
func SelectConstituents(snapshot []SnapshotAsset, excludedCategories []string, minVolume float64, maxConstituents int) ([]SnapshotAsset, error) {
	eligible := make([]SnapshotAsset, 0, len(snapshot))
	for _, s := range snapshot {
		if !s.MarketCap().IsPositive() {
			continue
		}
		if models.ToFloat64(s.Volume24h) < minVolume {
			continue
		}
		if HasExcludedCategory(s.Categories, excludedCategories) {
			continue
		}
		eligible = append(eligible, s)
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].MarketCap().GreaterThan(eligible[j].MarketCap())
	})

	if len(eligible) < maxConstituents {
		return nil, fmt.Errorf("only %d eligible assets, need %d", len(eligible), maxConstituents)
	}
	return eligible[:maxConstituents], nil
}

// HasExcludedCategory reports whether any of the asset's category tags
// contains one of the excluded substrings, case-insensitive
func HasExcludedCategory(categories []string, excluded []string) bool {
	for _, category := range categories {
		lower := strings.ToLower(category)
		for _, ex := range excluded {
			if ex == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(ex)) {
				return true
			}
		}
	}
	return false
}

func totalMarketCap(assets []SnapshotAsset) decimal.Decimal {
	total := decimal.Zero
	for _, a := range assets {
		total = total.Add(a.MarketCap())
	}
	return total
}
