package quant

import "gonum.org/v1/gonum/stat"

// Distribution returns sample skewness and excess kurtosis of a return
// window. Degenerate windows (too short or zero variance) report 0 for both
// rather than NaN, so callers can persist the row unconditionally.
func Distribution(returns []float64) (skewness, kurtosis float64) {
	if len(returns) < 4 {
		return 0, 0
	}
	if stat.Variance(returns, nil) == 0 {
		return 0, 0
	}
	return stat.Skew(returns, nil), stat.ExKurtosis(returns, nil)
}
