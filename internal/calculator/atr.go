package calculator

import (
	"fmt"
	"math"

	"BetaLens/internal/model"
)

// DefaultATRWindow is the conventional ATR(14) period.
const DefaultATRWindow = 14

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// TrueRanges computes the true range of every bar that has a previous close.
// The first bar is excluded, so the result is one shorter than bars.
func TrueRanges(bars []model.OHLCV) []float64 {
	if len(bars) < 2 {
		return nil
	}
	trs := make([]float64, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		trs[i-1] = TrueRange(bars[i].High, bars[i].Low, bars[i-1].Close)
	}
	return trs
}

// ATR returns the average true range over the last window bars.
// It needs window+1 bars because the first bar has no previous close.
func ATR(bars []model.OHLCV, window int) (float64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("%w: ATR window must be positive", model.ErrInvalidInput)
	}
	if len(bars) < window+1 {
		return 0, fmt.Errorf("%w: ATR(%d) needs %d bars, have %d", model.ErrInsufficientData, window, window+1, len(bars))
	}
	return CalculateSMA(TrueRanges(bars), window)
}
