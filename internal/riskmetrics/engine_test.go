package riskmetrics

import (
	"testing"

	"github.com/selivandex/crypto-index/pkg/models"
)

func TestClassifyValuation(t *testing.T) {
	tests := []struct {
		name      string
		deviation float64
		tolerance float64
		want      models.Valuation
	}{
		{"above line", 0.01, 0.005, models.ValuationUndervalued},
		{"below line", -0.01, 0.005, models.ValuationOvervalued},
		{"within tolerance", 0.003, 0.005, models.ValuationFair},
		{"exactly at tolerance", 0.005, 0.005, models.ValuationFair},
		{"exactly at negative tolerance", -0.005, 0.005, models.ValuationFair},
		{"zero deviation", 0, 0.005, models.ValuationFair},
		{"zero tolerance positive", 0.0001, 0, models.ValuationUndervalued},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyValuation(tt.deviation, tt.tolerance)
			if got != tt.want {
				t.Errorf("classifyValuation(%v, %v) = %q, want %q", tt.deviation, tt.tolerance, got, tt.want)
			}
		})
	}
}
