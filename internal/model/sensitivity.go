package model

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the sensitivity metric being computed.
type Mode string

const (
	ModeBeta             Mode = "beta"
	ModeVolatilityATR    Mode = "atr"
	ModeVolatilityStdDev Mode = "stddev"
)

// Modes lists every supported mode in display order.
var Modes = []Mode{ModeBeta, ModeVolatilityATR, ModeVolatilityStdDev}

var modeNames = map[Mode]string{
	ModeBeta:             "Beta",
	ModeVolatilityATR:    "Volatility Multiplier",
	ModeVolatilityStdDev: "Volatility Multiplier (StdDev)",
}

// DisplayName is the human label, also used as the CSV value header.
func (m Mode) DisplayName() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return string(m)
}

// FetchMode returns the kind of price history the mode consumes.
func (m Mode) FetchMode() FetchMode {
	if m == ModeVolatilityATR {
		return FetchOHLC
	}
	return FetchCloseOnly
}

// ParseMode accepts a short alias or a display name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	switch key {
	case "beta", "":
		return ModeBeta, nil
	case "atr", "vol", "volatility", "volatility multiplier":
		return ModeVolatilityATR, nil
	case "stddev", "std", "volatility multiplier (stddev)":
		return ModeVolatilityStdDev, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, s)
}

// SensitivityResult is a single computed coefficient for one coin.
type SensitivityResult struct {
	CoinID           string    `json:"coin_id"`
	Mode             Mode      `json:"mode"`
	Value            float64   `json:"value"`
	Window           int       `json:"window,omitempty"`
	Days             int       `json:"days"`
	BaselineProvider string    `json:"baseline_provider"`
	AltProvider      string    `json:"alt_provider"`
	ComputedAt       time.Time `json:"computed_at"`
}

// ExportRow is one line of a sensitivity export.
type ExportRow struct {
	CoinID string
	Value  float64
}
