package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"BetaLens/internal/cache"
	"BetaLens/internal/model"
)

const coinListKey = "coins:list"

// CoinDirectory answers "is this a known coin id" and coin searches,
// backed by a provider's coin list memoized in the cache store.
type CoinDirectory struct {
	lister CoinLister
	store  cache.Store
	ttl    time.Duration
}

func NewCoinDirectory(lister CoinLister, store cache.Store, ttl time.Duration) *CoinDirectory {
	if store == nil {
		store = cache.NewNoopStore()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CoinDirectory{lister: lister, store: store, ttl: ttl}
}

// Coins returns the full coin list.
func (d *CoinDirectory) Coins(ctx context.Context) ([]model.Coin, error) {
	if b, ok, err := d.store.Get(ctx, coinListKey); err == nil && ok {
		var coins []model.Coin
		if err := json.Unmarshal(b, &coins); err == nil && len(coins) > 0 {
			return coins, nil
		}
	}

	coins, err := d.lister.ListCoins(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: coin list: %w", model.ErrDataUnavailable, err)
	}
	if b, err := json.Marshal(coins); err == nil {
		if err := d.store.Set(ctx, coinListKey, b, d.ttl); err != nil {
			log.Warn().Err(err).Msg("cache write failed for coin list")
		}
	}
	return coins, nil
}

// Lookup finds a coin by exact id.
func (d *CoinDirectory) Lookup(ctx context.Context, id string) (model.Coin, bool, error) {
	coins, err := d.Coins(ctx)
	if err != nil {
		return model.Coin{}, false, err
	}
	for _, c := range coins {
		if c.ID == id {
			return c, true, nil
		}
	}
	return model.Coin{}, false, nil
}

// Search matches query against coin names and symbols, case-insensitively.
// An empty query returns every coin. Results keep list order.
func (d *CoinDirectory) Search(ctx context.Context, query string) ([]model.Coin, error) {
	coins, err := d.Coins(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return coins, nil
	}
	var out []model.Coin
	for _, c := range coins {
		if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Symbol), q) {
			out = append(out, c)
		}
	}
	return out, nil
}

// SearchIDs resolves a search query to the ids of the matching coins.
// A blank query is rejected so a search never expands to the whole list.
func (d *CoinDirectory) SearchIDs(ctx context.Context, query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", model.ErrInvalidInput)
	}
	coins, err := d.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(coins) == 0 {
		return nil, fmt.Errorf("%w: no coin matches %q", model.ErrUnknownCoin, query)
	}
	return IDs(coins), nil
}

// IDs extracts coin ids in order.
func IDs(coins []model.Coin) []string {
	ids := make([]string, len(coins))
	for i, c := range coins {
		ids[i] = c.ID
	}
	return ids
}
