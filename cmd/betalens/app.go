package main

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"BetaLens/internal/cache"
	"BetaLens/internal/collector"
	"BetaLens/internal/config"
	"BetaLens/internal/logging"
	"BetaLens/internal/metrics"
	"BetaLens/internal/sensitivity"
)

// app is the wired pipeline shared by every command.
type app struct {
	cfg       *config.Config
	store     cache.Store
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	directory *collector.CoinDirectory
	service   *sensitivity.Service
	logCloser io.Closer
	closed    bool
}

func newApp(cfgPath, logLevel string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	closer, err := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	store, err := cache.Open(cfg.CacheOptions())
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.Cache.Backend).Msg("cache backend unavailable, using memory")
		store = cache.NewMemoryStore()
	}
	if n, err := cache.PurgeExpired(context.Background(), store); err != nil {
		log.Warn().Err(err).Str("cache", store.Name()).Msg("purge expired cache entries")
	} else if n > 0 {
		log.Debug().Int64("removed", n).Str("cache", store.Name()).Msg("purged expired cache entries")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := collector.TransportOptions{
		Timeout:       cfg.Providers.Timeout,
		Proxy:         cfg.Proxy,
		RatePerSecond: cfg.Providers.RatePerSecond,
		Burst:         cfg.Providers.Burst,
		Metrics:       m,
	}
	gecko := collector.NewCoinGeckoFetcher(cfg.Providers.CoinGeckoURL, opts)
	binance := collector.NewBinanceFetcher(cfg.Providers.BinanceURL, cfg.Providers.Quote, cfg.Providers.SymbolOverrides, opts)

	fetcher := collector.NewFallbackFetcher(
		collector.NewCachedFetcher(gecko, store, cfg.Cache.TTL, m),
		collector.NewCachedFetcher(binance, store, cfg.Cache.TTL, m),
		m,
	)
	dir := collector.NewCoinDirectory(gecko, store, cfg.Cache.TTL)
	col := collector.NewCollector(fetcher, dir, cfg.Analysis.Days)

	svc := sensitivity.NewService(col, m)
	svc.Window = cfg.Analysis.Window
	svc.Policy = cfg.DegeneratePolicy()
	svc.ExportLimit = cfg.Analysis.ExportLimit

	log.Debug().
		Str("data_source", fetcher.Name()).
		Str("cache", store.Name()).
		Int("days", cfg.Analysis.Days).
		Int("window", cfg.Analysis.Window).
		Msg("pipeline ready")

	return &app{
		cfg:       cfg,
		store:     store,
		registry:  reg,
		metrics:   m,
		directory: dir,
		service:   svc,
		logCloser: closer,
	}, nil
}

// Close releases the cache and the log file. It is safe to call twice.
func (a *app) Close() {
	if a.closed {
		return
	}
	a.closed = true
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("close cache")
	}
	a.logCloser.Close()
}
