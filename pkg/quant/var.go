package quant

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats summarizes one trailing return window for an asset
type WindowStats struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	VaR95  float64
	CVaR95 float64
	VaR99  float64
	CVaR99 float64
}

// ComputeWindowStats computes mean, sample standard deviation, min/max and
// historical VaR/CVaR at 95% and 99% over one trailing log-return window.
func ComputeWindowStats(returns []float64) WindowStats {
	if len(returns) == 0 {
		return WindowStats{}
	}

	s := WindowStats{
		Mean: stat.Mean(returns, nil),
		Min:  returns[0],
		Max:  returns[0],
	}
	if len(returns) > 1 {
		s.StdDev = stat.StdDev(returns, nil)
	}
	for _, r := range returns {
		s.Min = math.Min(s.Min, r)
		s.Max = math.Max(s.Max, r)
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	s.VaR95, s.CVaR95 = varFromSorted(sorted, 0.95)
	s.VaR99, s.CVaR99 = varFromSorted(sorted, 0.99)

	return s
}

// HistoricalVaR computes VaR and CVaR at the given confidence level from a
// return series. Losses are reported as positive numbers.
//
// Quantile method: nearest-rank (lower) on the ascending-sorted distribution,
// idx = floor((1-confidence) * n). At small sample sizes this differs from
// linear interpolation; the choice is fixed here so stored values stay
// comparable across runs.
func HistoricalVaR(returns []float64, confidence float64) (varValue, cvar float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)
	return varFromSorted(sorted, confidence)
}

func varFromSorted(sorted []float64, confidence float64) (varValue, cvar float64) {
	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	threshold := sorted[idx]
	if threshold < 0 {
		varValue = -threshold
	}

	// CVaR: mean of returns at or below the VaR threshold
	var tailSum float64
	tailN := 0
	for _, r := range sorted {
		if r > threshold {
			break
		}
		tailSum += r
		tailN++
	}
	if tailN > 0 {
		tailMean := tailSum / float64(tailN)
		if tailMean < 0 {
			cvar = -tailMean
		}
	}

	return varValue, cvar
}
