package quant

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CovarianceMatrix builds the full sample covariance matrix over aligned,
// equal-length return series. series[i] is asset i's returns, oldest first;
// every series must have the same length >= 2.
func CovarianceMatrix(series [][]float64) (*mat.SymDense, error) {
	n := len(series)
	if n == 0 {
		return nil, fmt.Errorf("no return series")
	}
	length := len(series[0])
	if length < 2 {
		return nil, fmt.Errorf("series too short for covariance: %d observations", length)
	}
	for i := range series {
		if len(series[i]) != length {
			return nil, fmt.Errorf("series %d has %d observations, expected %d", i, len(series[i]), length)
		}
	}

	// Sample covariance (n-1 denominator) per pair; the matrix is symmetric
	// so only the upper triangle is computed.
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, stat.Covariance(series[i], series[j], nil))
		}
	}

	return cov, nil
}

// PortfolioVariance computes w' Σ w for the given weight vector and
// covariance matrix.
func PortfolioVariance(weights []float64, cov *mat.SymDense) (float64, error) {
	n, _ := cov.Dims()
	if len(weights) != n {
		return 0, fmt.Errorf("weight vector length %d does not match covariance order %d", len(weights), n)
	}
	w := mat.NewVecDense(len(weights), weights)
	return mat.Inner(w, cov, w), nil
}
