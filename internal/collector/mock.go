package collector

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"BetaLens/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// Series wins over generated data; Errs forces a failure for a coin.
type MockFetcher struct {
	ProviderName string
	Series       map[string]*model.PriceSeries
	Errs         map[string]error
	// Prices seeds generated bars per coin; coins absent from both maps fail.
	Prices map[string]float64
	Calls  int

	mu sync.Mutex
}

func (m *MockFetcher) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockFetcher) FetchHistory(_ context.Context, coinID string, days int, mode model.FetchMode) (*model.PriceSeries, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if err, ok := m.Errs[coinID]; ok {
		return nil, err
	}
	if s, ok := m.Series[coinID]; ok {
		cp := *s
		cp.Bars = append([]model.OHLCV(nil), s.Bars...)
		return &cp, nil
	}
	price, ok := m.Prices[coinID]
	if !ok {
		return nil, fmt.Errorf("%s: no data for %s", m.Name(), coinID)
	}
	return &model.PriceSeries{
		CoinID:    coinID,
		Provider:  m.Name(),
		Mode:      mode,
		Bars:      generateMockBars(price, days+1),
		FetchedAt: time.Now(),
	}, nil
}

func generateMockBars(basePrice float64, count int) []model.OHLCV {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.OHLCV, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + 0.02*math.Sin(float64(i)*0.7))
		bars[i] = model.OHLCV{
			Time:   start.AddDate(0, 0, i),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

// StaticCoinList serves a fixed coin list.
type StaticCoinList []model.Coin

func (l StaticCoinList) ListCoins(_ context.Context) ([]model.Coin, error) {
	if len(l) == 0 {
		return nil, fmt.Errorf("empty coin list")
	}
	return l, nil
}
