package backfill

import (
	"testing"
	"time"

	"github.com/selivandex/crypto-index/internal/adapters/coingecko"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad date %s: %v", s, err)
	}
	return d.UTC()
}

func TestDetectGaps_EmptyTables(t *testing.T) {
	today := day(t, "2025-06-15")

	report := DetectGaps(today, 730, nil, nil)

	if len(report.MissingCloses) != 730 {
		t.Errorf("expected 730 missing close dates, got %d", len(report.MissingCloses))
	}
	if len(report.MissingPoints) != 730 {
		t.Errorf("expected 730 missing point dates, got %d", len(report.MissingPoints))
	}
	wantOldest := today.AddDate(0, 0, -730)
	if !report.OldestMissing.Equal(wantOldest) {
		t.Errorf("oldest missing = %v, want %v", report.OldestMissing, wantOldest)
	}

	// Look-back capped at the recovery window
	lookBack := RequiredLookBack(today, report.OldestMissing, 5, 2, 730)
	if lookBack != 730 {
		t.Errorf("look-back = %d, want 730 (capped)", lookBack)
	}
}

func TestDetectGaps_FullyCurrent(t *testing.T) {
	today := day(t, "2025-06-15")

	var closes, points []time.Time
	for offset := 1; offset <= 730; offset++ {
		d := today.AddDate(0, 0, -offset)
		closes = append(closes, d)
		points = append(points, d)
	}

	report := DetectGaps(today, 730, closes, points)
	if report.HasGaps() {
		t.Errorf("fully populated tables should report no gaps, got %d/%d",
			len(report.MissingCloses), len(report.MissingPoints))
	}
}

func TestDetectGaps_OnlyYesterdayMissing(t *testing.T) {
	today := day(t, "2025-06-15")
	yesterday := today.AddDate(0, 0, -1)

	var closes, points []time.Time
	for offset := 2; offset <= 730; offset++ {
		d := today.AddDate(0, 0, -offset)
		closes = append(closes, d)
		points = append(points, d)
	}
	// Points are complete through yesterday, closes stop a day earlier
	points = append(points, yesterday)

	report := DetectGaps(today, 730, closes, points)
	if len(report.MissingCloses) != 1 || !report.MissingCloses[yesterday] {
		t.Errorf("expected only yesterday missing in closes, got %v", report.MissingCloses)
	}
	if len(report.MissingPoints) != 0 {
		t.Errorf("expected no missing points, got %v", report.MissingPoints)
	}
	if !report.OldestMissing.Equal(yesterday) {
		t.Errorf("oldest missing = %v, want %v", report.OldestMissing, yesterday)
	}

	// Small constant look-back: 1 day to the gap + buffer
	lookBack := RequiredLookBack(today, report.OldestMissing, 5, 2, 730)
	if lookBack != 6 {
		t.Errorf("look-back = %d, want 6 (1 day + 5 buffer)", lookBack)
	}
}

func TestRequiredLookBack_MinSpanFloor(t *testing.T) {
	today := day(t, "2025-06-15")
	lookBack := RequiredLookBack(today, today.AddDate(0, 0, -1), 0, 2, 730)
	if lookBack != 2 {
		t.Errorf("look-back = %d, want floor of 2", lookBack)
	}
}

func TestDetectGaps_TrackedPerTable(t *testing.T) {
	today := day(t, "2025-06-15")
	d1 := today.AddDate(0, 0, -3)
	d2 := today.AddDate(0, 0, -2)

	var closes, points []time.Time
	for offset := 1; offset <= 10; offset++ {
		d := today.AddDate(0, 0, -offset)
		if !d.Equal(d1) {
			closes = append(closes, d)
		}
		if !d.Equal(d2) {
			points = append(points, d)
		}
	}

	report := DetectGaps(today, 10, closes, points)
	if !report.MissingCloses[d1] || report.MissingCloses[d2] {
		t.Errorf("close gaps tracked incorrectly: %v", report.MissingCloses)
	}
	if !report.MissingPoints[d2] || report.MissingPoints[d1] {
		t.Errorf("point gaps tracked incorrectly: %v", report.MissingPoints)
	}
	if !report.OldestMissing.Equal(d1) {
		t.Errorf("oldest missing = %v, want %v (oldest across all tables)", report.OldestMissing, d1)
	}
}

func TestAggregateDaily(t *testing.T) {
	today := day(t, "2025-06-15")
	d1 := today.AddDate(0, 0, -2)
	d2 := today.AddDate(0, 0, -1)

	series := &coingecko.HistoricalSeries{
		Prices: []coingecko.SeriesPoint{
			{Timestamp: d1.Add(3 * time.Hour), Value: 100},
			{Timestamp: d1.Add(15 * time.Hour), Value: 105}, // last point of d1 wins
			{Timestamp: d2.Add(12 * time.Hour), Value: 110},
			{Timestamp: today.Add(2 * time.Hour), Value: 999}, // incomplete day, discarded
		},
		MarketCaps: []coingecko.SeriesPoint{
			{Timestamp: d1.Add(15 * time.Hour), Value: 2_000_000},
			{Timestamp: d2.Add(12 * time.Hour), Value: 2_200_000},
		},
		Volumes: []coingecko.SeriesPoint{
			{Timestamp: d2.Add(12 * time.Hour), Value: 50_000},
		},
	}

	obs := AggregateDaily(series, today)
	if len(obs) != 2 {
		t.Fatalf("expected 2 daily observations, got %d", len(obs))
	}
	if !obs[0].Date.Equal(d1) || obs[0].Price != 105 {
		t.Errorf("d1 observation = %+v, want last-point price 105", obs[0])
	}
	if obs[0].MarketCap != 2_000_000 {
		t.Errorf("d1 market cap = %v, want 2000000", obs[0].MarketCap)
	}
	if !obs[1].Date.Equal(d2) || obs[1].Price != 110 || obs[1].Volume != 50_000 {
		t.Errorf("d2 observation = %+v", obs[1])
	}
}

func TestAggregateDaily_Empty(t *testing.T) {
	obs := AggregateDaily(&coingecko.HistoricalSeries{}, day(t, "2025-06-15"))
	if len(obs) != 0 {
		t.Errorf("empty series should yield no observations, got %d", len(obs))
	}
}
