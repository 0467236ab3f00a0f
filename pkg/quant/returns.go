package quant

import "math"

// LogReturn returns ln(current/previous). Defined only when both closes are
// strictly positive; the second return reports definedness.
func LogReturn(previous, current float64) (float64, bool) {
	if previous <= 0 || current <= 0 {
		return 0, false
	}
	return math.Log(current / previous), true
}

// Annualize scales a per-period volatility by sqrt of periods per year
func Annualize(periodVol float64, periodsPerYear float64) float64 {
	return periodVol * math.Sqrt(periodsPerYear)
}

// Tail returns the last n elements of xs (right-aligned truncation).
// If xs is shorter than n the whole slice is returned.
func Tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
