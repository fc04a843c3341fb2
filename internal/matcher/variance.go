package matcher

import (
	"github.com/shopspring/decimal"
)

// VarianceResult holds the monetary variance of a matched group.
//
// Variance is the worst-case deviation from the mean, not a standard
// deviation: max(|amount_i - average|) over all members. The percentage is
// variance over the absolute average.
type VarianceResult struct {
	Variance    decimal.Decimal `json:"variance"`
	VariancePct decimal.Decimal `json:"variancePercentage"`

	// Degenerate is set when the average is exactly zero while the variance
	// is nonzero, which leaves the percentage undefined. It is a warning, not
	// a failure: batch runs must not abort on one pathological group.
	Degenerate bool `json:"degenerate,omitempty"`
}

// ComputeVariance computes the variance of a group of amounts
func ComputeVariance(amounts []decimal.Decimal) VarianceResult {
	if len(amounts) == 0 {
		return VarianceResult{Variance: decimal.Zero, VariancePct: decimal.Zero}
	}

	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(a)
	}
	average := sum.Div(decimal.NewFromInt(int64(len(amounts))))

	variance := decimal.Zero
	for _, a := range amounts {
		dev := a.Sub(average).Abs()
		if dev.GreaterThan(variance) {
			variance = dev
		}
	}

	result := VarianceResult{Variance: variance, VariancePct: decimal.Zero}

	if average.IsZero() {
		if !variance.IsZero() {
			result.Degenerate = true
		}
		return result
	}

	result.VariancePct = variance.Div(average.Abs()).Mul(decimal.NewFromInt(100))
	return result
}

// SumAmounts returns the total of the given amounts
func SumAmounts(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
