package assets

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/selivandex/crypto-index/pkg/models"
)

// Repository handles asset registry storage
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new assets repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetOrCreate inserts an asset on first sight and enriches external id and
// image on later sightings. Symbol is the natural key; symbols are stored
// uppercase. Returns the stored row and whether it was newly created.
func (r *Repository) GetOrCreate(ctx context.Context, symbol, name, externalID, imageURL string) (*models.Asset, bool, error) {
	symbol = strings.ToUpper(symbol)

	query := `
		INSERT INTO assets (symbol, name, external_id, image_url)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (symbol) DO UPDATE SET
			external_id = COALESCE(assets.external_id, EXCLUDED.external_id),
			image_url   = COALESCE(assets.image_url, EXCLUDED.image_url)
		RETURNING id, symbol, name, external_id, image_url, categories, created_at,
		          (xmax = 0) AS inserted
	`

	var asset models.Asset
	var inserted bool
	err := r.db.QueryRowxContext(ctx, query, symbol, name, externalID, imageURL).Scan(
		&asset.ID,
		&asset.Symbol,
		&asset.Name,
		&asset.ExternalID,
		&asset.ImageURL,
		&asset.Categories,
		&asset.CreatedAt,
		&inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert asset %s: %w", symbol, err)
	}

	return &asset, inserted, nil
}

// GetBySymbol returns one asset by its natural key
func (r *Repository) GetBySymbol(ctx context.Context, symbol string) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.GetContext(ctx, &asset,
		`SELECT * FROM assets WHERE symbol = $1`, strings.ToUpper(symbol))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", symbol, err)
	}
	return &asset, nil
}

// ListWithExternalID returns every asset the provider can be queried for
func (r *Repository) ListWithExternalID(ctx context.Context) ([]models.Asset, error) {
	var out []models.Asset
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM assets WHERE external_id IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return out, nil
}

// ListMissingCategories returns assets still lacking category enrichment
func (r *Repository) ListMissingCategories(ctx context.Context) ([]models.Asset, error) {
	var out []models.Asset
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM assets
		WHERE external_id IS NOT NULL
		  AND (categories IS NULL OR cardinality(categories) = 0)
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unenriched assets: %w", err)
	}
	return out, nil
}

// UpdateCategories stores category tags for one asset
func (r *Repository) UpdateCategories(ctx context.Context, assetID int64, categories []string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE assets SET categories = $2 WHERE id = $1`,
		assetID, pq.Array(categories))
	if err != nil {
		return fmt.Errorf("failed to update categories for asset %d: %w", assetID, err)
	}
	return nil
}
