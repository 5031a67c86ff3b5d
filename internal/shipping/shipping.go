// Package shipping computes progress towards the free-shipping threshold.
package shipping

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Progress towards free shipping. Percent is in [0, 100] and only reaches 100 once the
// threshold is met.
type Progress struct {
	Remaining decimal.Decimal `json:"remaining"`
	Percent   float64         `json:"percent"`
	Qualifies bool            `json:"qualifies"`
}

// ComputeProgress derives the amount left to spend and the percentage reached.
// A non-positive threshold means shipping is always free.
func ComputeProgress(subtotal, threshold decimal.Decimal) Progress {
	if !threshold.IsPositive() {
		return Progress{Remaining: decimal.Zero, Percent: 100, Qualifies: true}
	}
	if !subtotal.IsPositive() {
		return Progress{Remaining: threshold, Percent: 0}
	}
	if subtotal.GreaterThanOrEqual(threshold) {
		return Progress{Remaining: decimal.Zero, Percent: 100, Qualifies: true}
	}
	// truncate so an almost-met threshold never displays as 100
	pct, _ := subtotal.Div(threshold).Mul(hundred).Truncate(2).Float64()
	return Progress{Remaining: threshold.Sub(subtotal), Percent: pct}
}
