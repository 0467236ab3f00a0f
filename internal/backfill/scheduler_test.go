package backfill

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/selivandex/crypto-index/internal/adapters/coingecko"
	"github.com/selivandex/crypto-index/internal/adapters/config"
	"github.com/selivandex/crypto-index/pkg/models"
)

type fakeProvider struct {
	series *coingecko.HistoricalSeries
	err    error
}

func (f *fakeProvider) FetchMarketSnapshot(ctx context.Context, page, pageSize int) ([]coingecko.SnapshotEntry, error) {
	return nil, nil
}

func (f *fakeProvider) FetchHistoricalSeries(ctx context.Context, externalID string, days int) (*coingecko.HistoricalSeries, error) {
	return f.series, f.err
}

func (f *fakeProvider) FetchAssetMetadata(ctx context.Context, externalID string) (*coingecko.AssetMetadata, error) {
	return nil, nil
}

func (f *fakeProvider) GetName() string { return "fake" }

type fakeAssetLister struct {
	assets []models.Asset
}

func (f *fakeAssetLister) ListWithExternalID(ctx context.Context) ([]models.Asset, error) {
	return f.assets, nil
}

type fakePointStore struct {
	pointCount int
	insertOK   bool
	inserts    int
}

func (f *fakePointStore) InsertDailyCloseIfMissing(ctx context.Context, c *models.DailyClose) (bool, error) {
	return false, nil
}

func (f *fakePointStore) InsertPricePointIfMissing(ctx context.Context, p *models.PricePoint) (bool, error) {
	f.inserts++
	return f.insertOK, nil
}

func (f *fakePointStore) CountRecentPricePoints(ctx context.Context, assetID int64, since time.Time) (int, error) {
	return f.pointCount, nil
}

func externalAsset(id int64, symbol string) models.Asset {
	return models.Asset{
		ID:         id,
		Symbol:     symbol,
		ExternalID: sql.NullString{String: symbol, Valid: true},
	}
}

func fineScheduler(provider coingecko.Provider, lister assetLister, store pointStore) *Scheduler {
	cfg := &config.BackfillConfig{
		FineWindowDays: 90,
		FineMinPoints:  500,
	}
	return NewScheduler(cfg, provider, nil, lister, store)
}

func TestFinePassSkipsDenseAssets(t *testing.T) {
	store := &fakePointStore{pointCount: 600}
	s := fineScheduler(&fakeProvider{}, &fakeAssetLister{assets: []models.Asset{externalAsset(1, "btc")}}, store)

	summary := models.NewRunSummary("historical_backfill")
	if err := s.finePass(context.Background(), time.Now().UTC().Truncate(24*time.Hour), summary); err != nil {
		t.Fatalf("finePass() error = %v", err)
	}

	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 (asset above the density threshold)", summary.Skipped)
	}
	if summary.Succeeded != 0 {
		t.Errorf("succeeded = %d, want 0", summary.Succeeded)
	}
	if store.inserts != 0 {
		t.Errorf("inserts attempted = %d, want 0", store.inserts)
	}
}

func TestFinePassSkipsWhenNothingInserted(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	provider := &fakeProvider{series: &coingecko.HistoricalSeries{
		Prices: []coingecko.SeriesPoint{{Timestamp: ts, Value: 100}},
	}}
	store := &fakePointStore{pointCount: 10, insertOK: false}
	s := fineScheduler(provider, &fakeAssetLister{assets: []models.Asset{externalAsset(1, "btc")}}, store)

	summary := models.NewRunSummary("historical_backfill")
	if err := s.finePass(context.Background(), time.Now().UTC().Truncate(24*time.Hour), summary); err != nil {
		t.Fatalf("finePass() error = %v", err)
	}

	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 (every point already present)", summary.Skipped)
	}
	if summary.Succeeded != 0 {
		t.Errorf("succeeded = %d, want 0", summary.Succeeded)
	}
	if summary.Inserted != 0 {
		t.Errorf("inserted = %d, want 0", summary.Inserted)
	}
}

func TestFinePassCountsInsertedPoints(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	provider := &fakeProvider{series: &coingecko.HistoricalSeries{
		Prices: []coingecko.SeriesPoint{
			{Timestamp: ts, Value: 100},
			{Timestamp: ts.Add(time.Hour), Value: 101},
		},
		MarketCaps: []coingecko.SeriesPoint{{Timestamp: ts, Value: 1e9}},
	}}
	store := &fakePointStore{pointCount: 10, insertOK: true}
	s := fineScheduler(provider, &fakeAssetLister{assets: []models.Asset{externalAsset(1, "btc")}}, store)

	summary := models.NewRunSummary("historical_backfill")
	if err := s.finePass(context.Background(), time.Now().UTC().Truncate(24*time.Hour), summary); err != nil {
		t.Fatalf("finePass() error = %v", err)
	}

	if summary.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", summary.Succeeded)
	}
	if summary.Inserted != 2 {
		t.Errorf("inserted = %d, want 2", summary.Inserted)
	}
	if summary.Skipped != 0 {
		t.Errorf("skipped = %d, want 0", summary.Skipped)
	}
}
