package model

import (
	"sort"
	"time"
)

// FetchMode selects between full OHLC bars and a plain price history.
type FetchMode string

const (
	FetchOHLC      FetchMode = "ohlc"
	FetchCloseOnly FetchMode = "close"
)

// OHLCV represents a single candlestick bar.
// Close-only histories carry the price in all four fields.
type OHLCV struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume,omitempty"`
}

// PriceSeries holds a chronologically ordered price history for one coin.
type PriceSeries struct {
	CoinID    string    `json:"coin_id"`
	Provider  string    `json:"provider"`
	Mode      FetchMode `json:"mode"`
	Bars      []OHLCV   `json:"bars"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Closes extracts the close prices in order.
func (s *PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// NormalizeBars sorts bars by time and drops duplicated timestamps,
// keeping the bar that arrived last.
func NormalizeBars(bars []OHLCV) []OHLCV {
	if len(bars) == 0 {
		return nil
	}
	sorted := make([]OHLCV, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	out := sorted[:0]
	for _, b := range sorted {
		if n := len(out); n > 0 && out[n-1].Time.Equal(b.Time) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
