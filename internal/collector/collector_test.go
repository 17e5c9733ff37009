package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BetaLens/internal/cache"
	"BetaLens/internal/metrics"
	"BetaLens/internal/model"
)

var testCoins = []model.Coin{
	{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"},
	{ID: "ethereum", Symbol: "eth", Name: "Ethereum"},
	{ID: "wrapped-bitcoin", Symbol: "wbtc", Name: "Wrapped Bitcoin"},
}

func newCoinGeckoServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/coins/bitcoin/ohlc", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "14", r.URL.Query().Get("days"))
		// Out of order with a duplicate timestamp.
		fmt.Fprint(w, `[[1700000200000,3,4,2,3.5],[1700000000000,1,2,0.5,1.5],[1700000100000,2,3,1,2.5],[1700000200000,3,4,2,3.6]]`)
	})
	mux.HandleFunc("/coins/bitcoin/market_chart", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		fmt.Fprint(w, `{"prices":[[1700000000000,100.5],[1700003600000,101.25]]}`)
	})
	mux.HandleFunc("/coins/garbage/ohlc", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		fmt.Fprint(w, `{"unexpected":true}`)
	})
	mux.HandleFunc("/coins/list", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		require.NoError(t, json.NewEncoder(w).Encode(testCoins))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		http.Error(w, `{"error":"coin not found"}`, http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newBinanceServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		require.Equal(t, "/klines", r.URL.Path)
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" {
			http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
			return
		}
		assert.Equal(t, "1d", q.Get("interval"))
		assert.NotEmpty(t, q.Get("startTime"))
		assert.NotEmpty(t, q.Get("endTime"))
		fmt.Fprint(w, `[
			[1700000000000,"100.0","110.0","95.0","105.0","12.5",1700086399999,"0",10,"0","0","0"],
			[1700086400000,"105.0","112.0","101.0","108.0","9.1",1700172799999,"0",10,"0","0","0"]
		]`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCoinGeckoFetcher_OHLC(t *testing.T) {
	var hits int32
	srv := newCoinGeckoServer(t, &hits)
	f := NewCoinGeckoFetcher(srv.URL, TransportOptions{})

	s, err := f.FetchHistory(context.Background(), "bitcoin", 14, model.FetchOHLC)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, "coingecko", s.Provider)
	for i := 1; i < s.Len(); i++ {
		assert.True(t, s.Bars[i].Time.After(s.Bars[i-1].Time))
	}
	assert.Equal(t, 3.6, s.Bars[s.Len()-1].Close)
	assert.Equal(t, 1.0, s.Bars[0].Open)
}

func TestCoinGeckoFetcher_CloseOnly(t *testing.T) {
	var hits int32
	srv := newCoinGeckoServer(t, &hits)
	f := NewCoinGeckoFetcher(srv.URL, TransportOptions{})

	s, err := f.FetchHistory(context.Background(), "bitcoin", 14, model.FetchCloseOnly)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, []float64{100.5, 101.25}, s.Closes())
	assert.Equal(t, s.Bars[1].Close, s.Bars[1].High)
}

func TestCoinGeckoFetcher_Failures(t *testing.T) {
	var hits int32
	srv := newCoinGeckoServer(t, &hits)
	f := NewCoinGeckoFetcher(srv.URL, TransportOptions{})
	ctx := context.Background()

	_, err := f.FetchHistory(ctx, "nope", 14, model.FetchOHLC)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)

	_, err = f.FetchHistory(ctx, "garbage", 14, model.FetchOHLC)
	assert.ErrorContains(t, err, "decode ohlc")

	_, err = f.FetchHistory(ctx, "bitcoin", 0, model.FetchOHLC)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestCoinGeckoFetcher_ListCoins(t *testing.T) {
	var hits int32
	srv := newCoinGeckoServer(t, &hits)
	f := NewCoinGeckoFetcher(srv.URL, TransportOptions{})

	coins, err := f.ListCoins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testCoins, coins)
}

func TestBinanceFetcher(t *testing.T) {
	var hits int32
	srv := newBinanceServer(t, &hits)
	f := NewBinanceFetcher(srv.URL, "", nil, TransportOptions{})
	ctx := context.Background()

	s, err := f.FetchHistory(ctx, "bitcoin", 2, model.FetchOHLC)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, "binance", s.Provider)
	assert.Equal(t, model.OHLCV{
		Time: time.UnixMilli(1700000000000).UTC(), Open: 100, High: 110, Low: 95, Close: 105, Volume: 12.5,
	}, s.Bars[0])

	s, err = f.FetchHistory(ctx, "bitcoin", 2, model.FetchCloseOnly)
	require.NoError(t, err)
	assert.Equal(t, 108.0, s.Bars[1].High)

	_, err = f.FetchHistory(ctx, "ethereum", 2, model.FetchOHLC)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

func TestDecodeKlines_Malformed(t *testing.T) {
	_, err := decodeKlines([]byte(`[[1700000000000,"1","2"]]`))
	assert.Error(t, err)
	_, err = decodeKlines([]byte(`[[1700000000000,"x","2","1","1.5"]]`))
	assert.Error(t, err)
	_, err = decodeKlines([]byte(`{}`))
	assert.Error(t, err)
}

func TestBinanceSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", BinanceSymbol("bitcoin", "", nil))
	assert.Equal(t, "BTCUSDT", BinanceSymbol(" Bitcoin ", "usdt", nil))
	assert.Equal(t, "ETHEREUMUSDT", BinanceSymbol("ethereum", "", nil))
	assert.Equal(t, "ETHUSDT", BinanceSymbol("ethereum", "", map[string]string{"ethereum": "eth"}))
	assert.Equal(t, "BTCBUSD", BinanceSymbol("bitcoin", "BUSD", nil))
}

func TestHTTPClient_BreakerOpensOnServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newHTTPClient("flaky", srv.URL, TransportOptions{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := c.get(ctx, "/x", nil)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.breakerState())

	_, err := c.get(ctx, "/x", nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestHTTPClient_ClientErrorsKeepBreakerClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newHTTPClient("strict", srv.URL, TransportOptions{})
	for i := 0; i < 5; i++ {
		_, err := c.get(context.Background(), "/x", nil)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, c.breakerState())
}

func TestHTTPClient_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	c := newHTTPClient("slow", srv.URL, TransportOptions{RatePerSecond: 0.001, Burst: 1})
	_, err := c.get(context.Background(), "/x", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.get(ctx, "/x", nil)
	assert.ErrorContains(t, err, "rate limit")
}

func TestFallbackFetcher(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	primary := &MockFetcher{ProviderName: "primary", Prices: map[string]float64{"bitcoin": 100}}
	fallback := &MockFetcher{ProviderName: "fallback", Prices: map[string]float64{"bitcoin": 100, "ethereum": 5}}
	f := NewFallbackFetcher(primary, fallback, m)

	s, err := f.FetchHistory(ctx, "bitcoin", 5, model.FetchOHLC)
	require.NoError(t, err)
	assert.Equal(t, "primary", s.Provider)
	assert.Equal(t, 0, fallback.Calls)

	s, err = f.FetchHistory(ctx, "ethereum", 5, model.FetchOHLC)
	require.NoError(t, err)
	assert.Equal(t, "fallback", s.Provider)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks))

	_, err = f.FetchHistory(ctx, "dogecoin", 5, model.FetchOHLC)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
	assert.ErrorContains(t, err, "primary")
	assert.ErrorContains(t, err, "fallback")
}

func TestFallbackFetcher_HTTPProviders(t *testing.T) {
	var cgHits, bnHits int32
	cg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&cgHits, 1)
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer cg.Close()
	bn := newBinanceServer(t, &bnHits)

	f := NewFallbackFetcher(
		NewCoinGeckoFetcher(cg.URL, TransportOptions{}),
		NewBinanceFetcher(bn.URL, DefaultQuote, nil, TransportOptions{}),
		nil,
	)
	s, err := f.FetchHistory(context.Background(), "bitcoin", 2, model.FetchOHLC)
	require.NoError(t, err)
	assert.Equal(t, "binance", s.Provider)
	assert.Equal(t, int32(1), atomic.LoadInt32(&cgHits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&bnHits))
}

func TestCachedFetcher(t *testing.T) {
	ctx := context.Background()
	inner := &MockFetcher{ProviderName: "p", Prices: map[string]float64{"bitcoin": 100}}
	store := cache.NewMemoryStore()
	f := NewCachedFetcher(inner, store, time.Hour, nil)

	a, err := f.FetchHistory(ctx, "bitcoin", 5, model.FetchOHLC)
	require.NoError(t, err)
	b, err := f.FetchHistory(ctx, "bitcoin", 5, model.FetchOHLC)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.Calls)
	assert.Equal(t, a.Closes(), b.Closes())

	// Mutating a returned series never leaks into the cache.
	b.Bars[0].Close = -1
	c, err := f.FetchHistory(ctx, "bitcoin", 5, model.FetchOHLC)
	require.NoError(t, err)
	assert.Equal(t, a.Bars[0].Close, c.Bars[0].Close)

	_, err = f.FetchHistory(ctx, "bitcoin", 6, model.FetchOHLC)
	require.NoError(t, err)
	_, err = f.FetchHistory(ctx, "bitcoin", 5, model.FetchCloseOnly)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.Calls)

	_, ok, err := store.Get(ctx, CacheKey("p", "bitcoin", 5, model.FetchOHLC))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCachedFetcher_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &MockFetcher{Errs: map[string]error{"bitcoin": errors.New("down")}}
	f := NewCachedFetcher(inner, cache.NewMemoryStore(), time.Hour, nil)

	_, err := f.FetchHistory(ctx, "bitcoin", 5, model.FetchOHLC)
	require.Error(t, err)
	_, err = f.FetchHistory(ctx, "bitcoin", 5, model.FetchOHLC)
	require.Error(t, err)
	assert.Equal(t, 2, inner.Calls)
}

func TestCoinDirectory(t *testing.T) {
	ctx := context.Background()
	var hits int32
	srv := newCoinGeckoServer(t, &hits)
	dir := NewCoinDirectory(NewCoinGeckoFetcher(srv.URL, TransportOptions{}), cache.NewMemoryStore(), time.Hour)

	c, ok, err := dir.Lookup(ctx, "ethereum")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "eth", c.Symbol)

	_, ok, err = dir.Lookup(ctx, "badcoinid")
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := dir.Search(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, []string{"bitcoin", "wrapped-bitcoin"}, IDs(found))

	found, err = dir.Search(ctx, "ether")
	require.NoError(t, err)
	assert.Equal(t, []string{"ethereum"}, IDs(found))

	all, err := dir.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ids, err := dir.SearchIDs(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, []string{"bitcoin", "wrapped-bitcoin"}, ids)

	_, err = dir.SearchIDs(ctx, "  ")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = dir.SearchIDs(ctx, "dogecoin")
	assert.ErrorIs(t, err, model.ErrUnknownCoin)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCoinDirectory_Unavailable(t *testing.T) {
	dir := NewCoinDirectory(StaticCoinList(nil), nil, 0)
	_, _, err := dir.Lookup(context.Background(), "bitcoin")
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
}

func TestCollector(t *testing.T) {
	ctx := context.Background()
	dir := NewCoinDirectory(StaticCoinList(testCoins), nil, 0)
	f := &MockFetcher{Prices: map[string]float64{"bitcoin": 100}}
	c := NewCollector(f, dir, 10)

	s, err := c.Baseline(ctx, model.FetchOHLC)
	require.NoError(t, err)
	assert.Equal(t, 11, s.Len())

	_, err = c.Collect(ctx, "badcoinid", model.FetchOHLC)
	assert.ErrorIs(t, err, model.ErrUnknownCoin)
	assert.Equal(t, 1, f.Calls)

	// Known coin without data from a single provider still surfaces as unavailable.
	_, err = c.Collect(ctx, "ethereum", model.FetchOHLC)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)

	c.Days = 0
	_, err = c.Collect(ctx, "bitcoin", model.FetchOHLC)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
