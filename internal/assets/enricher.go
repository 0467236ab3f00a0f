package assets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/selivandex/crypto-index/internal/adapters/coingecko"
	"github.com/selivandex/crypto-index/pkg/logger"
	"github.com/selivandex/crypto-index/pkg/models"
)

// Enricher fills in category tags for assets that lack them. Categories feed
// the index exclusion filter, so assets without them never get excluded on
// category grounds until this pass has run.
type Enricher struct {
	repo     *Repository
	provider coingecko.Provider
}

// NewEnricher creates new metadata enricher
func NewEnricher(repo *Repository, provider coingecko.Provider) *Enricher {
	return &Enricher{repo: repo, provider: provider}
}

// Run fetches metadata for every unenriched asset. Per-asset failures are
// counted and skipped, never fatal.
func (e *Enricher) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := models.NewRunSummary("asset_enrichment")

	pending, err := e.repo.ListMissingCategories(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list unenriched assets: %w", err)
	}

	for _, asset := range pending {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		meta, err := e.provider.FetchAssetMetadata(ctx, asset.ExternalID.String)
		if err != nil {
			logger.Warn("metadata fetch failed",
				zap.String("symbol", asset.Symbol),
				zap.Error(err),
			)
			summary.Error(asset.Symbol, err)
			continue
		}

		if len(meta.Categories) == 0 {
			summary.Skip()
			continue
		}

		if err := e.repo.UpdateCategories(ctx, asset.ID, meta.Categories); err != nil {
			summary.Error(asset.Symbol, err)
			continue
		}
		summary.Success(1)
	}

	logger.Info("asset enrichment finished", summary.Fields()...)
	return summary, nil
}
