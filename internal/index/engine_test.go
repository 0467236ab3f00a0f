package index

import (
	"testing"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/selivandex/crypto-index/pkg/models"
)

func snap(assetID int64, symbol string, price, supply, volume float64, categories ...string) SnapshotAsset {
	return SnapshotAsset{
		AssetID:           assetID,
		Symbol:            symbol,
		Categories:        pq.StringArray(categories),
		Price:             decimal.NewFromFloat(price),
		CirculatingSupply: decimal.NewFromFloat(supply),
		Volume24h:         decimal.NewFromFloat(volume),
	}
}

func TestHasExcludedCategory(t *testing.T) {
	excluded := []string{"stablecoin", "wrapped", "staking"}

	tests := []struct {
		name       string
		categories []string
		want       bool
	}{
		{"direct match", []string{"Stablecoins"}, true},
		{"substring match", []string{"Wrapped Tokens"}, true},
		{"case insensitive", []string{"LIQUID STAKING TOKENS"}, true},
		{"no match", []string{"Layer 1", "Smart Contract Platform"}, false},
		{"nil categories", nil, false},
		{"second tag matches", []string{"DeFi", "Eth 2.0 Staking"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasExcludedCategory(tt.categories, excluded); got != tt.want {
				t.Errorf("HasExcludedCategory(%v) = %v, want %v", tt.categories, got, tt.want)
			}
		})
	}
}

func TestSelectConstituents(t *testing.T) {
	excluded := []string{"stablecoin", "wrapped"}

	snapshot := []SnapshotAsset{
		snap(1, "BTC", 50000, 19_000_000, 2e10, "Layer 1"),
		snap(2, "ETH", 3000, 120_000_000, 1.5e10, "Layer 1", "Smart Contract Platform"),
		snap(3, "USDT", 1, 90_000_000_000, 4e10, "Stablecoins"),
		snap(4, "WBTC", 50000, 150_000, 3e8, "Wrapped Tokens"),
		snap(5, "SOL", 100, 400_000_000, 2e9, "Layer 1"),
		snap(6, "THIN", 10, 1_000_000, 1e5, "Layer 1"), // volume below threshold
		snap(7, "DEAD", 0, 1_000_000, 1e9, "Layer 1"),  // zero price
	}

	selected, err := SelectConstituents(snapshot, excluded, 1e7, 3)
	if err != nil {
		t.Fatalf("SelectConstituents() error = %v", err)
	}

	if len(selected) != 3 {
		t.Fatalf("got %d constituents, want 3", len(selected))
	}
	wantOrder := []string{"BTC", "ETH", "SOL"}
	for i, want := range wantOrder {
		if selected[i].Symbol != want {
			t.Errorf("rank %d = %s, want %s", i+1, selected[i].Symbol, want)
		}
	}
}

func TestSelectConstituentsTooFewEligible(t *testing.T) {
	snapshot := []SnapshotAsset{
		snap(1, "BTC", 50000, 19_000_000, 2e10, "Layer 1"),
		snap(2, "USDT", 1, 90_000_000_000, 4e10, "Stablecoins"),
	}

	_, err := SelectConstituents(snapshot, []string{"stablecoin"}, 1e7, 2)
	if err == nil {
		t.Fatal("expected error when eligible assets cannot fill the basket")
	}
}

func TestDivisorAnchorsBaseLevel(t *testing.T) {
	// Two assets totaling a 500B market cap and a base level of 100 give a
	// divisor of 5B; a later 10% cap increase must read as level 110.
	base := []SnapshotAsset{
		snap(1, "BTC", 40000, 10_000_000, 2e10),
		snap(2, "ETH", 1000, 100_000_000, 1.5e10),
	}

	baseCap := totalMarketCap(base)
	if want := decimal.NewFromFloat(500e9); !baseCap.Equal(want) {
		t.Fatalf("base market cap = %s, want %s", baseCap, want)
	}

	divisor := models.ToFloat64(baseCap) / 100
	if divisor != 5e9 {
		t.Fatalf("divisor = %v, want 5e9", divisor)
	}

	later := []SnapshotAsset{
		snap(1, "BTC", 44000, 10_000_000, 2e10),
		snap(2, "ETH", 1100, 100_000_000, 1.5e10),
	}
	level := models.ToFloat64(totalMarketCap(later)) / divisor
	if diff := level - 110; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("level = %v, want 110", level)
	}
}

func TestConstituentWeightsSumToHundred(t *testing.T) {
	snapshot := []SnapshotAsset{
		snap(1, "BTC", 50000, 19_000_000, 2e10),
		snap(2, "ETH", 3000, 120_000_000, 1.5e10),
		snap(3, "SOL", 100, 400_000_000, 2e9),
	}

	selected, err := SelectConstituents(snapshot, nil, 1e7, 3)
	if err != nil {
		t.Fatalf("SelectConstituents() error = %v", err)
	}

	total := models.ToFloat64(totalMarketCap(selected))
	sum := 0.0
	for _, s := range selected {
		sum += models.ToFloat64(s.MarketCap()) / total * 100
	}
	if diff := sum - 100; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("weights sum to %v, want 100", sum)
	}
}
