package backfill

import (
	"sort"
	"time"

	"github.com/selivandex/crypto-index/internal/adapters/coingecko"
)

// GapReport describes which expected daily slots are missing for one asset,
// per watched table, within the recovery window.
type GapReport struct {
	MissingCloses map[time.Time]bool
	MissingPoints map[time.Time]bool
	OldestMissing time.Time
}

// HasGaps reports whether any watched table is missing a slot
func (g *GapReport) HasGaps() bool {
	return len(g.MissingCloses) > 0 || len(g.MissingPoints) > 0
}

// DetectGaps enumerates every expected date in [today-recoveryWindowDays,
// yesterday] and subtracts the dates actually present per table. All dates
// are UTC midnights.
func DetectGaps(today time.Time, recoveryWindowDays int, presentCloses, presentPoints []time.Time) GapReport {
	today = today.UTC().Truncate(24 * time.Hour)

	closeSet := toDateSet(presentCloses)
	pointSet := toDateSet(presentPoints)

	report := GapReport{
		MissingCloses: make(map[time.Time]bool),
		MissingPoints: make(map[time.Time]bool),
	}

	for offset := recoveryWindowDays; offset >= 1; offset-- {
		date := today.AddDate(0, 0, -offset)

		missing := false
		if !closeSet[date] {
			report.MissingCloses[date] = true
			missing = true
		}
		if !pointSet[date] {
			report.MissingPoints[date] = true
			missing = true
		}
		if missing && report.OldestMissing.IsZero() {
			report.OldestMissing = date
		}
	}

	return report
}

// RequiredLookBack returns the historical span to request: days back to the
// oldest missing slot plus a safety buffer, clamped to [minSpanDays,
// recoveryWindowDays]. One fetch of this span covers every gap, so API cost
// is bounded by gapped assets, not by missing days.
func RequiredLookBack(today, oldestMissing time.Time, bufferDays, minSpanDays, recoveryWindowDays int) int {
	today = today.UTC().Truncate(24 * time.Hour)
	oldestMissing = oldestMissing.UTC().Truncate(24 * time.Hour)

	days := int(today.Sub(oldestMissing).Hours()/24) + bufferDays
	if days < minSpanDays {
		days = minSpanDays
	}
	if days > recoveryWindowDays {
		days = recoveryWindowDays
	}
	return days
}

// DayObservation is one aggregated daily observation built from a fetched
// historical series.
type DayObservation struct {
	Date      time.Time
	Price     float64
	MarketCap float64
	Volume    float64
}

// AggregateDaily reduces a fetched series to one observation per UTC day,
// last point of the day winning for sub-daily data. Today's (incomplete) day
// is discarded. Output is sorted ascending by date.
func AggregateDaily(series *coingecko.HistoricalSeries, today time.Time) []DayObservation {
	today = today.UTC().Truncate(24 * time.Hour)

	byDay := make(map[time.Time]*DayObservation)
	order := make([]time.Time, 0)

	for _, p := range series.Prices {
		date := p.Timestamp.UTC().Truncate(24 * time.Hour)
		if !date.Before(today) {
			continue
		}
		obs, ok := byDay[date]
		if !ok {
			obs = &DayObservation{Date: date}
			byDay[date] = obs
			order = append(order, date)
		}
		obs.Price = p.Value
	}
	for _, p := range series.MarketCaps {
		date := p.Timestamp.UTC().Truncate(24 * time.Hour)
		if obs, ok := byDay[date]; ok {
			obs.MarketCap = p.Value
		}
	}
	for _, p := range series.Volumes {
		date := p.Timestamp.UTC().Truncate(24 * time.Hour)
		if obs, ok := byDay[date]; ok {
			obs.Volume = p.Value
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })
	out := make([]DayObservation, 0, len(order))
	for _, date := range order {
		out = append(out, *byDay[date])
	}
	return out
}

func toDateSet(dates []time.Time) map[time.Time]bool {
	set := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		set[d.UTC().Truncate(24*time.Hour)] = true
	}
	return set
}
