package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"BetaLens/internal/model"
)

// DefaultBinanceURL is the public Binance spot REST API.
const DefaultBinanceURL = "https://api.binance.com/api/v3"

// BinanceFetcher is the fallback provider. It queries daily klines for the
// pair derived by BinanceSymbol over a start/end time range.
type BinanceFetcher struct {
	client    *httpClient
	Quote     string
	Interval  string
	Overrides map[string]string
	now       func() time.Time
}

// NewBinanceFetcher creates a fetcher against baseURL.
func NewBinanceFetcher(baseURL, quote string, overrides map[string]string, opts TransportOptions) *BinanceFetcher {
	if baseURL == "" {
		baseURL = DefaultBinanceURL
	}
	return &BinanceFetcher{
		client:    newHTTPClient("binance", baseURL, opts),
		Quote:     quote,
		Interval:  "1d",
		Overrides: overrides,
		now:       time.Now,
	}
}

func (f *BinanceFetcher) Name() string { return "binance" }

func (f *BinanceFetcher) FetchHistory(ctx context.Context, coinID string, days int, mode model.FetchMode) (*model.PriceSeries, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", model.ErrInvalidInput)
	}
	if mode != model.FetchOHLC && mode != model.FetchCloseOnly {
		return nil, fmt.Errorf("%w: unknown fetch mode %q", model.ErrInvalidInput, mode)
	}

	end := f.now()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	limit := days + 1
	if limit > 1000 {
		limit = 1000
	}
	params := map[string]string{
		"symbol":    BinanceSymbol(coinID, f.Quote, f.Overrides),
		"interval":  f.Interval,
		"startTime": strconv.FormatInt(start.UnixMilli(), 10),
		"endTime":   strconv.FormatInt(end.UnixMilli(), 10),
		"limit":     strconv.Itoa(limit),
	}
	body, err := f.client.get(ctx, "/klines", params)
	if err != nil {
		return nil, err
	}
	bars, err := decodeKlines(body)
	if err != nil {
		return nil, err
	}
	if mode == model.FetchCloseOnly {
		for i := range bars {
			c := bars[i].Close
			bars[i].Open, bars[i].High, bars[i].Low = c, c, c
		}
	}

	bars = model.NormalizeBars(bars)
	if len(bars) == 0 {
		return nil, fmt.Errorf("binance: no klines for %s", params["symbol"])
	}
	return &model.PriceSeries{
		CoinID:    coinID,
		Provider:  f.Name(),
		Mode:      mode,
		Bars:      bars,
		FetchedAt: end,
	}, nil
}

// decodeKlines reads positional kline tuples:
// [openTime, open, high, low, close, volume, closeTime, ...].
func decodeKlines(body []byte) ([]model.OHLCV, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance decode klines: %w", err)
	}
	bars := make([]model.OHLCV, 0, len(rows))
	for i, r := range rows {
		if len(r) < 5 {
			return nil, fmt.Errorf("binance decode klines: row %d has %d fields", i, len(r))
		}
		var vals [6]float64
		n := 5
		if len(r) > 5 {
			n = 6
		}
		for j := 0; j < n; j++ {
			v, err := rawFloat(r[j])
			if err != nil {
				return nil, fmt.Errorf("binance decode klines: row %d field %d: %w", i, j, err)
			}
			vals[j] = v
		}
		bars = append(bars, model.OHLCV{
			Time:   time.UnixMilli(int64(vals[0])).UTC(),
			Open:   vals[1],
			High:   vals[2],
			Low:    vals[3],
			Close:  vals[4],
			Volume: vals[5],
		})
	}
	return bars, nil
}

// rawFloat accepts a JSON number or a decimal string.
func rawFloat(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, errors.New("not a number")
	}
	return strconv.ParseFloat(s, 64)
}
