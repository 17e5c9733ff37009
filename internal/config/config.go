package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"BetaLens/internal/cache"
	"BetaLens/internal/calculator"
	"BetaLens/internal/collector"
	"BetaLens/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Providers struct {
		CoinGeckoURL    string            `yaml:"coingecko_url"`
		BinanceURL      string            `yaml:"binance_url"`
		Quote           string            `yaml:"quote"`
		SymbolOverrides map[string]string `yaml:"symbol_overrides"`
		Timeout         time.Duration     `yaml:"timeout"`
		RatePerSecond   float64           `yaml:"rate_per_second"`
		Burst           int               `yaml:"burst"`
	} `yaml:"providers"`
	Cache struct {
		Backend    string        `yaml:"backend"`
		TTL        time.Duration `yaml:"ttl"`
		SQLitePath string        `yaml:"sqlite_path"`
		RedisAddr  string        `yaml:"redis_addr"`
		BadgerDir  string        `yaml:"badger_dir"`
		PurgeCron  string        `yaml:"purge_cron"`
	} `yaml:"cache"`
	Analysis struct {
		Days         int    `yaml:"days"`
		Window       int    `yaml:"window"`
		OnDegenerate string `yaml:"on_degenerate"`
		ExportLimit  int    `yaml:"export_limit"`
	} `yaml:"analysis"`
	Schedule struct {
		ExportCron string   `yaml:"export_cron"`
		Coins      []string `yaml:"coins"`
		Mode       string   `yaml:"mode"`
		OutputDir  string   `yaml:"output_dir"`
	} `yaml:"schedule"`
	Server struct {
		Addr           string        `yaml:"addr"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"server"`
	Telegram struct {
		APIURL   string `yaml:"api_url"`
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads .env (if present), the YAML file at path, applies environment
// overrides and then defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("COINGECKO_BASE_URL"); v != "" {
		c.Providers.CoinGeckoURL = v
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		c.Providers.BinanceURL = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CACHE_TTL: %w", err)
		}
		c.Cache.TTL = d
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Cache.SQLitePath = v
	}
	if v := os.Getenv("BADGER_DIR"); v != "" {
		c.Cache.BadgerDir = v
	}
	if v := os.Getenv("ANALYSIS_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ANALYSIS_DAYS: %w", err)
		}
		c.Analysis.Days = n
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CRON_EXPORT"); v != "" {
		c.Schedule.ExportCron = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Providers.CoinGeckoURL == "" {
		c.Providers.CoinGeckoURL = collector.DefaultCoinGeckoURL
	}
	if c.Providers.BinanceURL == "" {
		c.Providers.BinanceURL = collector.DefaultBinanceURL
	}
	if c.Providers.Quote == "" {
		c.Providers.Quote = collector.DefaultQuote
	}
	if c.Providers.Timeout == 0 {
		c.Providers.Timeout = collector.DefaultTimeout
	}
	if c.Providers.RatePerSecond == 0 {
		c.Providers.RatePerSecond = 0.5
	}
	if c.Providers.Burst == 0 {
		c.Providers.Burst = 3
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = cache.BackendMemory
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = collector.DefaultCacheTTL
	}
	if c.Cache.SQLitePath == "" {
		c.Cache.SQLitePath = "data/betalens_cache.db"
	}
	if c.Cache.BadgerDir == "" {
		c.Cache.BadgerDir = "data/badger"
	}
	if c.Cache.PurgeCron == "" {
		c.Cache.PurgeCron = "0 30 * * * *"
	}
	// Daily fallback klines need window+1 bars, so look back further than 14 days.
	if c.Analysis.Days == 0 {
		c.Analysis.Days = 30
	}
	if c.Analysis.Window == 0 {
		c.Analysis.Window = calculator.DefaultATRWindow
	}
	if c.Analysis.OnDegenerate == "" {
		c.Analysis.OnDegenerate = "return_zero"
	}
	if c.Analysis.ExportLimit == 0 {
		c.Analysis.ExportLimit = 10
	}
	if c.Schedule.ExportCron == "" {
		c.Schedule.ExportCron = "0 0 * * * *"
	}
	if len(c.Schedule.Coins) == 0 {
		c.Schedule.Coins = []string{"bitcoin", "ethereum"}
	}
	if c.Schedule.Mode == "" {
		c.Schedule.Mode = string(model.ModeBeta)
	}
	if c.Schedule.OutputDir == "" {
		c.Schedule.OutputDir = "data/exports"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 60 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.Analysis.Days <= 0 {
		return fmt.Errorf("analysis.days must be positive")
	}
	if c.Analysis.Window <= 0 {
		return fmt.Errorf("analysis.window must be positive")
	}
	if c.Analysis.Days+1 < c.Analysis.Window+1 {
		return fmt.Errorf("analysis.days (%d) too short for ATR window %d", c.Analysis.Days, c.Analysis.Window)
	}
	if _, err := calculator.ParseDegeneratePolicy(c.Analysis.OnDegenerate); err != nil {
		return fmt.Errorf("analysis.on_degenerate: %w", err)
	}
	if c.Analysis.ExportLimit < 0 {
		return fmt.Errorf("analysis.export_limit must not be negative")
	}
	if _, err := model.ParseMode(c.Schedule.Mode); err != nil {
		return fmt.Errorf("schedule.mode: %w", err)
	}
	switch c.Cache.Backend {
	case cache.BackendMemory, cache.BackendNone, cache.BackendSQLite, cache.BackendBadger:
	case cache.BackendRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q is not one of memory|none|sqlite|redis|badger", c.Cache.Backend)
	}
	if c.Providers.Timeout < 0 {
		return fmt.Errorf("providers.timeout must not be negative")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	for id, sym := range c.Providers.SymbolOverrides {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("providers.symbol_overrides[%s] is empty", id)
		}
	}
	return nil
}

// TelegramEnabled reports whether chat notifications are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// CacheOptions maps the cache section to store options.
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		Backend:    c.Cache.Backend,
		SQLitePath: c.Cache.SQLitePath,
		RedisAddr:  c.Cache.RedisAddr,
		BadgerDir:  c.Cache.BadgerDir,
	}
}

// DegeneratePolicy returns the parsed analysis.on_degenerate value.
func (c *Config) DegeneratePolicy() calculator.DegeneratePolicy {
	p, _ := calculator.ParseDegeneratePolicy(c.Analysis.OnDegenerate)
	return p
}
