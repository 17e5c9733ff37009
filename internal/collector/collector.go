package collector

import (
	"context"
	"errors"
	"fmt"

	"BetaLens/internal/model"
)

// BaselineCoinID is the coin every sensitivity is measured against.
const BaselineCoinID = "bitcoin"

// Collector validates coin ids and fetches histories over a fixed look-back.
type Collector struct {
	Fetcher   Fetcher
	Directory *CoinDirectory
	Days      int
}

// NewCollector creates a new Collector. A nil directory disables coin-id validation.
func NewCollector(fetcher Fetcher, dir *CoinDirectory, days int) *Collector {
	return &Collector{Fetcher: fetcher, Directory: dir, Days: days}
}

// Validate checks the look-back and that coinID is a known identifier.
func (c *Collector) Validate(ctx context.Context, coinID string) error {
	if c.Days <= 0 {
		return fmt.Errorf("%w: days must be positive, got %d", model.ErrInvalidInput, c.Days)
	}
	if coinID == "" {
		return fmt.Errorf("%w: empty coin id", model.ErrUnknownCoin)
	}
	if c.Directory == nil {
		return nil
	}
	_, ok, err := c.Directory.Lookup(ctx, coinID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownCoin, coinID)
	}
	return nil
}

// Collect validates coinID and fetches its history.
func (c *Collector) Collect(ctx context.Context, coinID string, mode model.FetchMode) (*model.PriceSeries, error) {
	if err := c.Validate(ctx, coinID); err != nil {
		return nil, err
	}
	series, err := c.Fetcher.FetchHistory(ctx, coinID, c.Days, mode)
	if err != nil {
		if !errors.Is(err, model.ErrDataUnavailable) && !errors.Is(err, model.ErrInvalidInput) {
			err = fmt.Errorf("%w: %w", model.ErrDataUnavailable, err)
		}
		return nil, fmt.Errorf("fetch %s: %w", coinID, err)
	}
	return series, nil
}

// Baseline fetches the BTC reference series.
func (c *Collector) Baseline(ctx context.Context, mode model.FetchMode) (*model.PriceSeries, error) {
	return c.Collect(ctx, BaselineCoinID, mode)
}
