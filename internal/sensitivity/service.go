// Package sensitivity runs the fetch → transform → estimate pipeline that
// relates an altcoin's price moves to Bitcoin's.
package sensitivity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"BetaLens/internal/calculator"
	"BetaLens/internal/collector"
	"BetaLens/internal/metrics"
	"BetaLens/internal/model"
)

// Service computes sensitivities for coins against the BTC baseline.
type Service struct {
	Collector *collector.Collector
	Window    int
	Policy    calculator.DegeneratePolicy
	// ExportLimit caps batch size when the caller passes limit <= 0.
	ExportLimit int
	Metrics     *metrics.Metrics
	now         func() time.Time
}

// DefaultExportLimit keeps batch exports inside public API rate limits.
const DefaultExportLimit = 10

// NewService creates a Service with ATR window 14 and the ReturnZero policy.
func NewService(col *collector.Collector, m *metrics.Metrics) *Service {
	return &Service{
		Collector:   col,
		Window:      calculator.DefaultATRWindow,
		Policy:      calculator.ReturnZero,
		ExportLimit: DefaultExportLimit,
		Metrics:     m,
		now:         time.Now,
	}
}

// Compute returns the sensitivity of coinID in the given mode. window <= 0
// uses the service default and only matters for the ATR mode.
// The result is either complete or nil with a typed error.
func (s *Service) Compute(ctx context.Context, coinID string, mode model.Mode, window int) (*model.SensitivityResult, error) {
	if err := s.Collector.Validate(ctx, coinID); err != nil {
		s.Metrics.ObserveComputation(string(mode), err)
		return nil, err
	}
	baseline, err := s.Collector.Baseline(ctx, mode.FetchMode())
	if err != nil {
		s.Metrics.ObserveComputation(string(mode), err)
		return nil, fmt.Errorf("baseline: %w", err)
	}
	res, err := s.computeAgainst(ctx, baseline, coinID, mode, window)
	s.Metrics.ObserveComputation(string(mode), err)
	return res, err
}

func (s *Service) computeAgainst(ctx context.Context, baseline *model.PriceSeries, coinID string, mode model.Mode, window int) (*model.SensitivityResult, error) {
	if window <= 0 {
		window = s.Window
	}
	alt, err := s.Collector.Collect(ctx, coinID, mode.FetchMode())
	if err != nil {
		return nil, err
	}
	// Providers differ in bar timing and, for close-only fetches, granularity.
	if baseline.Provider != alt.Provider {
		log.Warn().
			Str("coin", coinID).
			Str("mode", string(mode)).
			Str("baseline_provider", baseline.Provider).
			Str("alt_provider", alt.Provider).
			Msg("baseline and coin come from different providers, bars may not line up")
	}

	value, err := Estimate(baseline, alt, mode, window, s.Policy)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", coinID, mode.DisplayName(), err)
	}

	res := &model.SensitivityResult{
		CoinID:           coinID,
		Mode:             mode,
		Value:            value,
		Days:             s.Collector.Days,
		BaselineProvider: baseline.Provider,
		AltProvider:      alt.Provider,
		ComputedAt:       s.now(),
	}
	if mode == model.ModeVolatilityATR {
		res.Window = window
	}
	log.Debug().
		Str("coin", coinID).
		Str("mode", string(mode)).
		Float64("value", value).
		Str("provider", alt.Provider).
		Msg("sensitivity computed")
	return res, nil
}

// Estimate derives the coefficient from two already-fetched series.
// Return-based modes align the log-returns on their most recent values.
func Estimate(btc, alt *model.PriceSeries, mode model.Mode, window int, policy calculator.DegeneratePolicy) (float64, error) {
	switch mode {
	case model.ModeVolatilityATR:
		return calculator.VolatilityMultiplierATR(btc.Bars, alt.Bars, window, policy)
	case model.ModeBeta, model.ModeVolatilityStdDev:
		btcReturns, err := calculator.SeriesLogReturns(btc)
		if err != nil {
			return 0, fmt.Errorf("btc returns: %w", err)
		}
		altReturns, err := calculator.SeriesLogReturns(alt)
		if err != nil {
			return 0, fmt.Errorf("alt returns: %w", err)
		}
		btcReturns, altReturns = calculator.Align(btcReturns, altReturns)
		if mode == model.ModeBeta {
			return calculator.Beta(btcReturns, altReturns, policy)
		}
		return calculator.VolatilityMultiplierStdDev(btcReturns, altReturns, policy)
	}
	return 0, fmt.Errorf("%w: unknown mode %q", model.ErrInvalidInput, mode)
}
