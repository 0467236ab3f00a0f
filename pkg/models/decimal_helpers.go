package models

import "github.com/shopspring/decimal"

// ToFloat64 safely converts decimal to float64
func ToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// MarketCap returns price * circulating supply
func MarketCap(price, supply decimal.Decimal) decimal.Decimal {
	return price.Mul(supply)
}
