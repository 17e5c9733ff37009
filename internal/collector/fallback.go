package collector

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"BetaLens/internal/metrics"
	"BetaLens/internal/model"
)

// FallbackFetcher tries Primary and, on any failure, Fallback once.
type FallbackFetcher struct {
	Primary  Fetcher
	Fallback Fetcher
	Metrics  *metrics.Metrics
}

// NewFallbackFetcher pairs a primary provider with its fallback.
func NewFallbackFetcher(primary, fallback Fetcher, m *metrics.Metrics) *FallbackFetcher {
	return &FallbackFetcher{Primary: primary, Fallback: fallback, Metrics: m}
}

func (f *FallbackFetcher) Name() string {
	return f.Primary.Name() + "+" + f.Fallback.Name()
}

func (f *FallbackFetcher) FetchHistory(ctx context.Context, coinID string, days int, mode model.FetchMode) (*model.PriceSeries, error) {
	series, err := f.Primary.FetchHistory(ctx, coinID, days, mode)
	if err == nil && series.Len() > 0 {
		return series, nil
	}
	if err == nil {
		err = fmt.Errorf("%s: empty series", f.Primary.Name())
	}
	log.Warn().Err(err).
		Str("coin", coinID).
		Str("primary", f.Primary.Name()).
		Str("fallback", f.Fallback.Name()).
		Msg("primary fetch failed, trying fallback")

	series, fbErr := f.Fallback.FetchHistory(ctx, coinID, days, mode)
	if fbErr == nil && series.Len() > 0 {
		f.Metrics.IncFallback()
		return series, nil
	}
	if fbErr == nil {
		fbErr = fmt.Errorf("%s: empty series", f.Fallback.Name())
	}
	return nil, fmt.Errorf("%w: %s: %s failed: %w; %s failed: %w",
		model.ErrDataUnavailable, coinID, f.Primary.Name(), err, f.Fallback.Name(), fbErr)
}
