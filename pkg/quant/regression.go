package quant

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// CAPMRegression holds the result of regressing asset returns on benchmark
// returns over one trailing window.
type CAPMRegression struct {
	Alpha    float64
	Beta     float64
	RSquared float64
}

// Regress fits asset = alpha + beta * benchmark over aligned return windows
func Regress(benchmark, asset []float64) (CAPMRegression, error) {
	if len(benchmark) != len(asset) {
		return CAPMRegression{}, fmt.Errorf("series length mismatch: benchmark %d, asset %d", len(benchmark), len(asset))
	}
	if len(benchmark) < 2 {
		return CAPMRegression{}, fmt.Errorf("need at least 2 observations, got %d", len(benchmark))
	}
	if stat.Variance(benchmark, nil) == 0 {
		return CAPMRegression{}, fmt.Errorf("benchmark series has zero variance")
	}

	alpha, beta := stat.LinearRegression(benchmark, asset, nil, false)
	r2 := stat.RSquared(benchmark, asset, nil, alpha, beta)

	return CAPMRegression{Alpha: alpha, Beta: beta, RSquared: r2}, nil
}

// ExpectedReturn derives the CAPM expected return from the security market
// line: rf + beta * (benchmark - rf).
func ExpectedReturn(riskFree, beta, benchmarkReturn float64) float64 {
	return riskFree + beta*(benchmarkReturn-riskFree)
}
