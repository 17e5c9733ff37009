package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"BetaLens/internal/cache"
	"BetaLens/internal/metrics"
	"BetaLens/internal/model"
)

// DefaultCacheTTL bounds outbound request rate for repeated lookups.
const DefaultCacheTTL = time.Hour

// CachedFetcher memoizes another fetcher's results for a bounded time.
// Entries are keyed by (provider, coin, days, mode). Callers must tolerate
// data up to TTL old. Store failures degrade to a direct fetch.
type CachedFetcher struct {
	inner   Fetcher
	store   cache.Store
	ttl     time.Duration
	metrics *metrics.Metrics
}

func NewCachedFetcher(inner Fetcher, store cache.Store, ttl time.Duration, m *metrics.Metrics) *CachedFetcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedFetcher{inner: inner, store: store, ttl: ttl, metrics: m}
}

// CacheKey builds the store key for one series.
func CacheKey(provider, coinID string, days int, mode model.FetchMode) string {
	return fmt.Sprintf("series:%s:%s:%d:%s", provider, coinID, days, mode)
}

func (f *CachedFetcher) Name() string { return f.inner.Name() }

func (f *CachedFetcher) FetchHistory(ctx context.Context, coinID string, days int, mode model.FetchMode) (*model.PriceSeries, error) {
	key := CacheKey(f.inner.Name(), coinID, days, mode)

	if series, ok := f.lookup(ctx, key); ok {
		f.metrics.ObserveCache(true)
		return series, nil
	}
	f.metrics.ObserveCache(false)

	series, err := f.inner.FetchHistory(ctx, coinID, days, mode)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(series); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache encode failed")
	} else if err := f.store.Set(ctx, key, b, f.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Str("store", f.store.Name()).Msg("cache write failed")
	}
	return series, nil
}

func (f *CachedFetcher) lookup(ctx context.Context, key string) (*model.PriceSeries, bool) {
	b, ok, err := f.store.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Str("store", f.store.Name()).Msg("cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var series model.PriceSeries
	if err := json.Unmarshal(b, &series); err != nil || series.Len() == 0 {
		log.Warn().Err(err).Str("key", key).Msg("discarding unreadable cache entry")
		return nil, false
	}
	return &series, true
}
