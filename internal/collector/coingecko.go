package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"BetaLens/internal/model"
)

// DefaultCoinGeckoURL is the public CoinGecko v3 API.
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// CoinGeckoFetcher is the primary provider. It serves OHLC candles,
// plain price histories and the coin list.
type CoinGeckoFetcher struct {
	client     *httpClient
	VsCurrency string
	now        func() time.Time
}

// NewCoinGeckoFetcher creates a fetcher against baseURL.
func NewCoinGeckoFetcher(baseURL string, opts TransportOptions) *CoinGeckoFetcher {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGeckoFetcher{
		client:     newHTTPClient("coingecko", baseURL, opts),
		VsCurrency: "usd",
		now:        time.Now,
	}
}

func (f *CoinGeckoFetcher) Name() string { return "coingecko" }

// marketChart is the response of /coins/{id}/market_chart.
type marketChart struct {
	Prices [][]float64 `json:"prices"`
}

func (f *CoinGeckoFetcher) FetchHistory(ctx context.Context, coinID string, days int, mode model.FetchMode) (*model.PriceSeries, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", model.ErrInvalidInput)
	}
	params := map[string]string{
		"vs_currency": f.VsCurrency,
		"days":        strconv.Itoa(days),
	}

	var (
		bars []model.OHLCV
		err  error
	)
	switch mode {
	case model.FetchOHLC:
		bars, err = f.fetchOHLC(ctx, coinID, params)
	case model.FetchCloseOnly:
		bars, err = f.fetchPrices(ctx, coinID, params)
	default:
		return nil, fmt.Errorf("%w: unknown fetch mode %q", model.ErrInvalidInput, mode)
	}
	if err != nil {
		return nil, err
	}

	bars = model.NormalizeBars(bars)
	if len(bars) == 0 {
		return nil, errors.New("coingecko: no data returned")
	}
	return &model.PriceSeries{
		CoinID:    coinID,
		Provider:  f.Name(),
		Mode:      mode,
		Bars:      bars,
		FetchedAt: f.now(),
	}, nil
}

func (f *CoinGeckoFetcher) fetchOHLC(ctx context.Context, coinID string, params map[string]string) ([]model.OHLCV, error) {
	body, err := f.client.get(ctx, "/coins/"+url.PathEscape(coinID)+"/ohlc", params)
	if err != nil {
		return nil, err
	}
	var rows [][]float64
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("coingecko decode ohlc: %w", err)
	}
	bars := make([]model.OHLCV, 0, len(rows))
	for i, r := range rows {
		if len(r) < 5 {
			return nil, fmt.Errorf("coingecko decode ohlc: row %d has %d fields", i, len(r))
		}
		bars = append(bars, model.OHLCV{
			Time:  time.UnixMilli(int64(r[0])).UTC(),
			Open:  r[1],
			High:  r[2],
			Low:   r[3],
			Close: r[4],
		})
	}
	return bars, nil
}

func (f *CoinGeckoFetcher) fetchPrices(ctx context.Context, coinID string, params map[string]string) ([]model.OHLCV, error) {
	body, err := f.client.get(ctx, "/coins/"+url.PathEscape(coinID)+"/market_chart", params)
	if err != nil {
		return nil, err
	}
	var chart marketChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("coingecko decode market_chart: %w", err)
	}
	bars := make([]model.OHLCV, 0, len(chart.Prices))
	for i, p := range chart.Prices {
		if len(p) < 2 {
			return nil, fmt.Errorf("coingecko decode market_chart: point %d has %d fields", i, len(p))
		}
		bars = append(bars, model.OHLCV{
			Time:  time.UnixMilli(int64(p[0])).UTC(),
			Open:  p[1],
			High:  p[1],
			Low:   p[1],
			Close: p[1],
		})
	}
	return bars, nil
}

// ListCoins fetches every coin CoinGecko knows about.
func (f *CoinGeckoFetcher) ListCoins(ctx context.Context) ([]model.Coin, error) {
	body, err := f.client.get(ctx, "/coins/list", nil)
	if err != nil {
		return nil, err
	}
	var coins []model.Coin
	if err := json.Unmarshal(body, &coins); err != nil {
		return nil, fmt.Errorf("coingecko decode coin list: %w", err)
	}
	if len(coins) == 0 {
		return nil, errors.New("coingecko: empty coin list")
	}
	return coins, nil
}
