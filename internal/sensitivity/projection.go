package sensitivity

import (
	"fmt"
	"math"

	"BetaLens/internal/model"
)

// ProjectMove estimates the altcoin's percentage move for a hypothetical
// BTC move under a linear model. It is an approximation only.
func ProjectMove(sensitivity, btcMovePct float64) (float64, error) {
	if !finite(sensitivity) || !finite(btcMovePct) {
		return 0, fmt.Errorf("%w: projection inputs must be finite", model.ErrInvalidInput)
	}
	return btcMovePct * sensitivity, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
