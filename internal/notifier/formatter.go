package notifier

import (
	"fmt"
	"html"
	"strings"

	"BetaLens/internal/model"
	"BetaLens/internal/sensitivity"
)

// FormatExportReport summarizes a scheduled export for a chat message.
func FormatExportReport(report *sensitivity.ExportReport, path string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>BetaLens export</b> | %s\n\n", html.EscapeString(report.Mode.DisplayName())))
	for _, row := range report.Rows() {
		b.WriteString(fmt.Sprintf("%s: %.4f\n", html.EscapeString(row.CoinID), row.Value))
	}
	if failures := report.Failures(); len(failures) > 0 {
		b.WriteString("\n⚠️ <b>Skipped:</b>\n")
		for _, f := range failures {
			b.WriteString(fmt.Sprintf("  %s: %s\n", html.EscapeString(f.CoinID), html.EscapeString(f.Err.Error())))
		}
	}
	if path != "" {
		b.WriteString(fmt.Sprintf("\nFile: %s", html.EscapeString(path)))
	}
	return b.String()
}

// FormatSensitivity formats one result, with a projection when btcMovePct is non-nil.
func FormatSensitivity(res *model.SensitivityResult, btcMovePct *float64) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>%s</b> %s vs BTC: %.4f\n",
		html.EscapeString(res.CoinID), res.Mode.DisplayName(), res.Value))
	b.WriteString(fmt.Sprintf("Look-back: %d days", res.Days))
	if res.Mode == model.ModeVolatilityATR && res.Window > 0 {
		b.WriteString(fmt.Sprintf(", ATR window %d", res.Window))
	}
	b.WriteString("\n")
	if btcMovePct != nil {
		if projected, err := sensitivity.ProjectMove(res.Value, *btcMovePct); err == nil {
			b.WriteString(fmt.Sprintf("BTC %+.2f%% → %+.2f%% (linear approximation)\n", *btcMovePct, projected))
		}
	}
	return b.String()
}
