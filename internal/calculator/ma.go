package calculator

import (
	"fmt"

	"BetaLens/internal/model"
)

// CalculateSMA computes the simple moving average of the last period values.
func CalculateSMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("%w: period must be positive", model.ErrInvalidInput)
	}
	if len(values) < period {
		return 0, fmt.Errorf("%w: need %d values for SMA, have %d", model.ErrInsufficientData, period, len(values))
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}
