package sensitivity

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BetaLens/internal/calculator"
	"BetaLens/internal/collector"
	"BetaLens/internal/model"
)

var coins = collector.StaticCoinList{
	{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"},
	{ID: "ethereum", Symbol: "eth", Name: "Ethereum"},
	{ID: "flatcoin", Symbol: "flat", Name: "Flat"},
	{ID: "shortcoin", Symbol: "short", Name: "Short"},
}

func btcBars(n int) []model.OHLCV {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.OHLCV, n)
	for i := range bars {
		p := 60000 * (1 + 0.03*math.Sin(float64(i)*0.9))
		bars[i] = model.OHLCV{Time: start.AddDate(0, 0, i), Open: p, High: p * 1.01, Low: p * 0.99, Close: p}
	}
	return bars
}

// squaredBars has log-returns exactly twice those of src.
func squaredBars(src []model.OHLCV) []model.OHLCV {
	out := make([]model.OHLCV, len(src))
	for i, b := range src {
		c := 10 * math.Pow(b.Close/60000, 2)
		out[i] = model.OHLCV{Time: b.Time, Open: c, High: c * 1.03, Low: c * 0.97, Close: c}
	}
	return out
}

func newTestService(t *testing.T, fetcher collector.Fetcher) *Service {
	t.Helper()
	dir := collector.NewCoinDirectory(coins, nil, 0)
	return NewService(collector.NewCollector(fetcher, dir, 30), nil)
}

func seriesFetcher() *collector.MockFetcher {
	btc := btcBars(31)
	flat := make([]model.OHLCV, 31)
	for i := range flat {
		flat[i] = model.OHLCV{Time: btc[i].Time, Open: 1, High: 1, Low: 1, Close: 1}
	}
	return &collector.MockFetcher{Series: map[string]*model.PriceSeries{
		"bitcoin":   {CoinID: "bitcoin", Provider: "mock", Bars: btc},
		"ethereum":  {CoinID: "ethereum", Provider: "mock", Bars: squaredBars(btc[11:])},
		"flatcoin":  {CoinID: "flatcoin", Provider: "mock", Bars: flat},
		"shortcoin": {CoinID: "shortcoin", Provider: "mock", Bars: btc[:1]},
	}}
}

func TestCompute_Beta(t *testing.T) {
	svc := newTestService(t, seriesFetcher())
	ctx := context.Background()

	res, err := svc.Compute(ctx, "bitcoin", model.ModeBeta, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Value, 1e-9)
	assert.Equal(t, model.ModeBeta, res.Mode)
	assert.Equal(t, 30, res.Days)
	assert.Zero(t, res.Window)

	// ethereum has fewer bars; trailing alignment keeps the relation exact.
	res, err = svc.Compute(ctx, "ethereum", model.ModeBeta, 0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Value, 1e-9)
	assert.Equal(t, "mock", res.AltProvider)
}

func TestCompute_WarnsOnMixedProviders(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	fetcher := seriesFetcher()
	svc := newTestService(t, fetcher)
	ctx := context.Background()

	_, err := svc.Compute(ctx, "ethereum", model.ModeBeta, 0)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "different providers")

	fetcher.Series["ethereum"].Provider = "binance"
	res, err := svc.Compute(ctx, "ethereum", model.ModeBeta, 0)
	require.NoError(t, err)
	assert.Equal(t, "mock", res.BaselineProvider)
	assert.Equal(t, "binance", res.AltProvider)
	out := buf.String()
	assert.Contains(t, out, "different providers")
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"alt_provider":"binance"`)
}

func TestCompute_StdDev(t *testing.T) {
	svc := newTestService(t, seriesFetcher())

	res, err := svc.Compute(context.Background(), "ethereum", model.ModeVolatilityStdDev, 0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Value, 1e-9)
}

func TestCompute_ATR(t *testing.T) {
	svc := newTestService(t, seriesFetcher())
	ctx := context.Background()

	res, err := svc.Compute(ctx, "bitcoin", model.ModeVolatilityATR, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Value, 1e-9)
	assert.Equal(t, calculator.DefaultATRWindow, res.Window)

	res, err = svc.Compute(ctx, "ethereum", model.ModeVolatilityATR, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Window)
	assert.Greater(t, res.Value, 0.0)

	_, err = svc.Compute(ctx, "ethereum", model.ModeVolatilityATR, 25)
	assert.ErrorIs(t, err, model.ErrInsufficientData)
}

func TestCompute_Errors(t *testing.T) {
	svc := newTestService(t, seriesFetcher())
	ctx := context.Background()

	res, err := svc.Compute(ctx, "badcoinid", model.ModeBeta, 0)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, model.ErrUnknownCoin)

	_, err = svc.Compute(ctx, "shortcoin", model.ModeBeta, 0)
	assert.ErrorIs(t, err, model.ErrInsufficientData)

	down := &collector.MockFetcher{Errs: map[string]error{"bitcoin": errors.New("down")}}
	svc = newTestService(t, down)
	_, err = svc.Compute(ctx, "ethereum", model.ModeBeta, 0)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
}

func TestCompute_DegeneratePolicy(t *testing.T) {
	// A flat baseline against itself has zero variance.
	f := seriesFetcher()
	f.Series["bitcoin"] = f.Series["flatcoin"]
	svc := newTestService(t, f)
	ctx := context.Background()

	res, err := svc.Compute(ctx, "ethereum", model.ModeBeta, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Value)

	svc.Policy = calculator.Fail
	_, err = svc.Compute(ctx, "ethereum", model.ModeBeta, 0)
	assert.ErrorIs(t, err, model.ErrDegenerateInput)
}

func TestEstimate_UnknownMode(t *testing.T) {
	s := &model.PriceSeries{Bars: btcBars(20)}
	_, err := Estimate(s, s, model.Mode("gamma"), 14, calculator.ReturnZero)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestProjectMove(t *testing.T) {
	v, err := ProjectMove(1.5, 4.0)
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)

	v, err = ProjectMove(0.8, -10)
	require.NoError(t, err)
	assert.InDelta(t, -8.0, v, 1e-12)

	_, err = ProjectMove(math.NaN(), 1)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = ProjectMove(1, math.Inf(1))
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestExportBatch_SkipsInvalidCoins(t *testing.T) {
	f := &collector.MockFetcher{Prices: map[string]float64{"bitcoin": 60000, "ethereum": 3000}}
	svc := newTestService(t, f)

	report := svc.ExportBatch(context.Background(), []string{"bitcoin", "ethereum", "badcoinid"}, model.ModeBeta, 10)
	rows := report.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "bitcoin", rows[0].CoinID)
	assert.Equal(t, "ethereum", rows[1].CoinID)
	assert.InDelta(t, 1.0, rows[0].Value, 1e-9)

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "badcoinid", failures[0].CoinID)
	assert.ErrorIs(t, failures[0].Err, model.ErrUnknownCoin)
	assert.Len(t, report.Results, 3)
}

func TestExportBatch_Limit(t *testing.T) {
	f := &collector.MockFetcher{Prices: map[string]float64{"bitcoin": 60000, "ethereum": 3000}}
	svc := newTestService(t, f)
	ctx := context.Background()

	report := svc.ExportBatch(ctx, []string{"ethereum", "bitcoin", "flatcoin"}, model.ModeBeta, 1)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "ethereum", report.Results[0].CoinID)

	svc.ExportLimit = 2
	report = svc.ExportBatch(ctx, []string{"ethereum", "badcoinid", "bitcoin"}, model.ModeBeta, 0)
	assert.Len(t, report.Results, 2)
	assert.Len(t, report.Rows(), 1)
}

func TestExportBatch_BaselineFailure(t *testing.T) {
	f := &collector.MockFetcher{
		Prices: map[string]float64{"ethereum": 3000},
		Errs:   map[string]error{"bitcoin": errors.New("down")},
	}
	svc := newTestService(t, f)

	report := svc.ExportBatch(context.Background(), []string{"ethereum", "bitcoin"}, model.ModeVolatilityATR, 10)
	assert.Empty(t, report.Rows())
	require.Len(t, report.Failures(), 2)
	assert.ErrorIs(t, report.Failures()[0].Err, model.ErrDataUnavailable)
}

func TestCSV_RoundTrip(t *testing.T) {
	rows := []model.ExportRow{
		{CoinID: "bitcoin", Value: 1},
		{CoinID: "ethereum", Value: 1.2345678901234567},
		{CoinID: "dogecoin", Value: -0.000123},
		{CoinID: "tiny", Value: 3e-17},
		{CoinID: "zero", Value: 0},
	}
	for _, mode := range model.Modes {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, mode, rows))
		assert.True(t, strings.HasPrefix(buf.String(), "Coin,"+mode.DisplayName()+"\n"))

		gotMode, got, err := ReadCSV(&buf)
		require.NoError(t, err)
		assert.Equal(t, mode, gotMode)
		assert.Equal(t, rows, got)
	}
}

func TestCSV_Format(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, model.ModeBeta, []model.ExportRow{{CoinID: "bitcoin", Value: 1.5}}))
	assert.Equal(t, "Coin,Beta\nbitcoin,1.5\n", buf.String())

	assert.Error(t, WriteCSV(&bytes.Buffer{}, model.ModeBeta, []model.ExportRow{{CoinID: "x", Value: math.NaN()}}))
}

func TestCSV_Malformed(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, _, err = ReadCSV(strings.NewReader("Ticker,Beta\n"))
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, _, err = ReadCSV(strings.NewReader("Coin,Beta\nbitcoin,abc\n"))
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, _, err = ReadCSV(strings.NewReader("Coin,Beta\nbitcoin\n"))
	assert.Error(t, err)
}

func TestExportFileName(t *testing.T) {
	assert.Equal(t, "altcoin_beta.csv", ExportFileName(model.ModeBeta))
}
