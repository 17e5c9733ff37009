package calculator

import (
	"fmt"
	"math"

	"BetaLens/internal/model"
)

// ToLogReturns converts prices into ln(p[i]/p[i-1]) for i = 1..n-1.
func ToLogReturns(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 prices for returns, have %d", model.ErrInsufficientData, len(prices))
	}
	for i, p := range prices {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("%w: price %v at index %d", model.ErrInvalidPrice, p, i)
		}
	}
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = math.Log(prices[i] / prices[i-1])
	}
	return returns, nil
}

// SeriesLogReturns computes log-returns over a series' closes.
func SeriesLogReturns(series *model.PriceSeries) ([]float64, error) {
	if series == nil {
		return nil, fmt.Errorf("%w: nil series", model.ErrInsufficientData)
	}
	return ToLogReturns(series.Closes())
}

// Align truncates both slices to the shorter length, keeping the most
// recent (trailing) elements of each.
func Align(a, b []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return a[len(a)-n:], b[len(b)-n:]
}
