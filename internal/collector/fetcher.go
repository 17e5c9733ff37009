package collector

import (
	"context"

	"BetaLens/internal/model"
)

// Fetcher retrieves a price history for one coin.
// Implementations return a non-empty, chronologically ordered series or an error.
type Fetcher interface {
	FetchHistory(ctx context.Context, coinID string, days int, mode model.FetchMode) (*model.PriceSeries, error)
	Name() string
}

// CoinLister returns the provider's list of supported coins.
type CoinLister interface {
	ListCoins(ctx context.Context) ([]model.Coin, error)
}
