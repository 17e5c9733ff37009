package calculator

import (
	"fmt"

	"BetaLens/internal/model"
)

// DegeneratePolicy decides what a ratio returns when the BTC baseline
// has no movement.
type DegeneratePolicy int

const (
	// ReturnZero reports 0 so a caller always has a number to show.
	ReturnZero DegeneratePolicy = iota
	// Fail reports model.ErrDegenerateInput.
	Fail
)

// ParseDegeneratePolicy maps config values to a policy.
func ParseDegeneratePolicy(s string) (DegeneratePolicy, error) {
	switch s {
	case "", "return_zero", "zero":
		return ReturnZero, nil
	case "fail", "error":
		return Fail, nil
	}
	return ReturnZero, fmt.Errorf("%w: unknown degenerate policy %q", model.ErrInvalidInput, s)
}

func (p DegeneratePolicy) String() string {
	if p == Fail {
		return "fail"
	}
	return "return_zero"
}

func (p DegeneratePolicy) resolve(what string) (float64, error) {
	if p == Fail {
		return 0, fmt.Errorf("%w: %s is zero", model.ErrDegenerateInput, what)
	}
	return 0, nil
}

func checkPair(btc, alt []float64) error {
	if len(btc) != len(alt) {
		return fmt.Errorf("%w: btc=%d alt=%d", model.ErrLengthMismatch, len(btc), len(alt))
	}
	if len(btc) < 2 {
		return fmt.Errorf("%w: need at least 2 returns, have %d", model.ErrInsufficientData, len(btc))
	}
	return nil
}

// Beta returns cov(alt, btc) / var(btc) over aligned return series.
func Beta(btcReturns, altReturns []float64, policy DegeneratePolicy) (float64, error) {
	if err := checkPair(btcReturns, altReturns); err != nil {
		return 0, err
	}
	variance := sampleVariance(btcReturns)
	if variance == 0 {
		return policy.resolve("btc variance")
	}
	return sampleCovariance(altReturns, btcReturns) / variance, nil
}

// VolatilityMultiplierStdDev returns stddev(alt) / stddev(btc).
func VolatilityMultiplierStdDev(btcReturns, altReturns []float64, policy DegeneratePolicy) (float64, error) {
	if err := checkPair(btcReturns, altReturns); err != nil {
		return 0, err
	}
	btcStd := sampleStdDev(btcReturns)
	if btcStd == 0 {
		return policy.resolve("btc stddev")
	}
	return sampleStdDev(altReturns) / btcStd, nil
}

// VolatilityMultiplierATR returns (ATR(alt)/close(alt)) / (ATR(btc)/close(btc)).
func VolatilityMultiplierATR(btcBars, altBars []model.OHLCV, window int, policy DegeneratePolicy) (float64, error) {
	btcNorm, err := normalizedATR(btcBars, window)
	if err != nil {
		return 0, fmt.Errorf("btc: %w", err)
	}
	altNorm, err := normalizedATR(altBars, window)
	if err != nil {
		return 0, fmt.Errorf("alt: %w", err)
	}
	if btcNorm == 0 {
		return policy.resolve("btc normalized ATR")
	}
	return altNorm / btcNorm, nil
}

func normalizedATR(bars []model.OHLCV, window int) (float64, error) {
	atr, err := ATR(bars, window)
	if err != nil {
		return 0, err
	}
	last := bars[len(bars)-1].Close
	if last <= 0 {
		return 0, fmt.Errorf("%w: last close %v", model.ErrInvalidPrice, last)
	}
	return atr / last, nil
}
