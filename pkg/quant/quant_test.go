package quant

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestEffectiveWindow(t *testing.T) {
	tests := []struct {
		name      string
		available int
		minObs    int
		maxWindow int
		want      int
		ok        bool
	}{
		{"below minimum", 5, 7, 90, 0, false},
		{"at minimum", 7, 7, 90, 7, true},
		{"growing", 45, 7, 90, 45, true},
		{"at cap", 90, 7, 90, 90, true},
		{"above cap", 400, 7, 90, 90, true},
	}

	for _, tt := range tests {
		got, ok := EffectiveWindow(tt.available, tt.minObs, tt.maxWindow)
		if got != tt.want || ok != tt.ok {
			t.Errorf("%s: EffectiveWindow(%d,%d,%d) = (%d,%v), want (%d,%v)",
				tt.name, tt.available, tt.minObs, tt.maxWindow, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSharedWindow(t *testing.T) {
	if w, ok := SharedWindow(60, 7, 90); !ok || w != 60 {
		t.Errorf("SharedWindow(60,7,90) = (%d,%v), want (60,true)", w, ok)
	}
	if w, ok := SharedWindow(200, 7, 90); !ok || w != 90 {
		t.Errorf("SharedWindow(200,7,90) = (%d,%v), want (90,true)", w, ok)
	}
	if _, ok := SharedWindow(3, 7, 90); ok {
		t.Error("SharedWindow below minimum should not be ok")
	}
}

func TestLogReturn(t *testing.T) {
	// ln(110/100) = ln(1.1)
	r, ok := LogReturn(100, 110)
	if !ok {
		t.Fatal("log return for positive closes should be defined")
	}
	if !almostEqual(r, 0.0953101798, 1e-9) {
		t.Errorf("LogReturn(100,110) = %v, want ln(1.1)", r)
	}

	// 110 -> 121 is the same 10% step
	r2, _ := LogReturn(110, 121)
	if !almostEqual(r, r2, 1e-12) {
		t.Errorf("equal ratios should give equal log returns: %v vs %v", r, r2)
	}

	if _, ok := LogReturn(0, 100); ok {
		t.Error("zero previous close should be undefined")
	}
	if _, ok := LogReturn(100, -5); ok {
		t.Error("negative close should be undefined")
	}
}

func TestComputeWindowStats_ConstantZero(t *testing.T) {
	returns := make([]float64, 50)

	s := ComputeWindowStats(returns)
	if s.VaR95 != 0 || s.CVaR95 != 0 || s.VaR99 != 0 || s.CVaR99 != 0 {
		t.Errorf("constant-zero series should give zero VaR/CVaR, got %+v", s)
	}
	if s.StdDev != 0 {
		t.Errorf("constant-zero series should give zero std dev, got %v", s.StdDev)
	}
	if s.Min != 0 || s.Max != 0 {
		t.Errorf("min/max of zero series should be zero, got %v/%v", s.Min, s.Max)
	}
}

func TestHistoricalVaR_NearestRank(t *testing.T) {
	// 20 observations: at 95% the nearest-rank index is floor(0.05*20) = 1,
	// i.e. the second-worst return.
	returns := make([]float64, 20)
	for i := range returns {
		returns[i] = float64(i-5) / 100 // -0.05 .. 0.14
	}

	varValue, cvar := HistoricalVaR(returns, 0.95)
	if !almostEqual(varValue, 0.04, 1e-12) {
		t.Errorf("VaR95 = %v, want 0.04 (second-worst return)", varValue)
	}
	// tail = {-0.05, -0.04}, mean -0.045
	if !almostEqual(cvar, 0.045, 1e-12) {
		t.Errorf("CVaR95 = %v, want 0.045", cvar)
	}

	// At 99% the index is floor(0.01*20) = 0: the worst return
	varValue, cvar = HistoricalVaR(returns, 0.99)
	if !almostEqual(varValue, 0.05, 1e-12) {
		t.Errorf("VaR99 = %v, want 0.05", varValue)
	}
	if !almostEqual(cvar, 0.05, 1e-12) {
		t.Errorf("CVaR99 = %v, want 0.05", cvar)
	}
}

func TestHistoricalVaR_AllGains(t *testing.T) {
	returns := []float64{0.01, 0.02, 0.03, 0.04, 0.05}
	varValue, cvar := HistoricalVaR(returns, 0.95)
	if varValue != 0 || cvar != 0 {
		t.Errorf("all-gain series should have zero VaR/CVaR, got %v/%v", varValue, cvar)
	}
}

func TestCovarianceMatrix_TwoAssets(t *testing.T) {
	a := []float64{0.01, -0.02, 0.015}
	b := []float64{0.02, -0.01, 0.01}

	cov, err := CovarianceMatrix([][]float64{a, b})
	if err != nil {
		t.Fatalf("CovarianceMatrix: %v", err)
	}

	// Hand-computed sample covariances (n-1 denominator)
	if !almostEqual(cov.At(0, 0), 0.000358333333, 1e-10) {
		t.Errorf("var(A) = %v, want 3.58333e-4", cov.At(0, 0))
	}
	if !almostEqual(cov.At(1, 1), 0.000233333333, 1e-10) {
		t.Errorf("var(B) = %v, want 2.33333e-4", cov.At(1, 1))
	}
	if !almostEqual(cov.At(0, 1), 0.000258333333, 1e-10) {
		t.Errorf("cov(A,B) = %v, want 2.58333e-4", cov.At(0, 1))
	}
	if cov.At(0, 1) != cov.At(1, 0) {
		t.Error("covariance matrix must be symmetric")
	}

	variance, err := PortfolioVariance([]float64{0.5, 0.5}, cov)
	if err != nil {
		t.Fatalf("PortfolioVariance: %v", err)
	}
	// w'Σw = 0.25*(varA + varB + 2*cov)
	if !almostEqual(variance, 0.000277083333, 1e-10) {
		t.Errorf("portfolio variance = %v, want 2.770833e-4", variance)
	}
}

func TestCovarianceMatrix_Mismatched(t *testing.T) {
	_, err := CovarianceMatrix([][]float64{{0.01, 0.02}, {0.01}})
	if err == nil {
		t.Error("mismatched series lengths should error")
	}
	_, err = CovarianceMatrix(nil)
	if err == nil {
		t.Error("empty input should error")
	}
}

func TestPortfolioVariance_WeightMismatch(t *testing.T) {
	cov, err := CovarianceMatrix([][]float64{{0.01, -0.02, 0.015}, {0.02, -0.01, 0.01}})
	if err != nil {
		t.Fatalf("CovarianceMatrix: %v", err)
	}
	if _, err := PortfolioVariance([]float64{1.0}, cov); err == nil {
		t.Error("weight/matrix size mismatch should error")
	}
}

func TestRegress(t *testing.T) {
	benchmark := []float64{0.01, 0.02, -0.01, 0.03, 0.005}
	asset := make([]float64, len(benchmark))
	for i, r := range benchmark {
		asset[i] = 2*r + 0.001
	}

	reg, err := Regress(benchmark, asset)
	if err != nil {
		t.Fatalf("Regress: %v", err)
	}
	if !almostEqual(reg.Beta, 2.0, 1e-9) {
		t.Errorf("beta = %v, want 2.0", reg.Beta)
	}
	if !almostEqual(reg.Alpha, 0.001, 1e-9) {
		t.Errorf("alpha = %v, want 0.001", reg.Alpha)
	}
	if !almostEqual(reg.RSquared, 1.0, 1e-9) {
		t.Errorf("r² = %v, want 1.0 for exact linear relation", reg.RSquared)
	}
}

func TestRegress_ZeroVarianceBenchmark(t *testing.T) {
	benchmark := []float64{0.01, 0.01, 0.01}
	asset := []float64{0.02, -0.01, 0.03}
	if _, err := Regress(benchmark, asset); err == nil {
		t.Error("zero-variance benchmark should error")
	}
}

func TestExpectedReturn(t *testing.T) {
	// rf=0: expected = beta * benchmark
	if got := ExpectedReturn(0, 1.5, 0.02); !almostEqual(got, 0.03, 1e-12) {
		t.Errorf("ExpectedReturn = %v, want 0.03", got)
	}
	// with a risk-free rate
	if got := ExpectedReturn(0.001, 2.0, 0.02); !almostEqual(got, 0.039, 1e-12) {
		t.Errorf("ExpectedReturn = %v, want 0.039", got)
	}
}

func TestAnnualize(t *testing.T) {
	got := Annualize(0.02, 365)
	if !almostEqual(got, 0.02*math.Sqrt(365), 1e-12) {
		t.Errorf("Annualize = %v", got)
	}
}

func TestTail(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	got := Tail(xs, 3)
	if len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Errorf("Tail(xs,3) = %v, want [3 4 5]", got)
	}
	if got := Tail(xs, 10); len(got) != 5 {
		t.Errorf("Tail with n>len should return whole slice, got %v", got)
	}
}
