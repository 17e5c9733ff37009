package sensitivity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"BetaLens/internal/model"
)

// ItemResult is the outcome for one coin of a batch export.
type ItemResult struct {
	CoinID string
	Value  float64
	Err    error
}

// ExportReport collects every item result of a batch in input order.
type ExportReport struct {
	Mode    model.Mode
	Results []ItemResult
}

// Rows returns the successful items only, in input order.
func (r *ExportReport) Rows() []model.ExportRow {
	rows := make([]model.ExportRow, 0, len(r.Results))
	for _, it := range r.Results {
		if it.Err == nil {
			rows = append(rows, model.ExportRow{CoinID: it.CoinID, Value: it.Value})
		}
	}
	return rows
}

// Failures returns the failed items.
func (r *ExportReport) Failures() []ItemResult {
	var out []ItemResult
	for _, it := range r.Results {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// ExportBatch computes the sensitivity of up to limit coins, one at a time.
// A failing coin is recorded and skipped; it never aborts the batch.
// limit <= 0 uses the service's ExportLimit.
func (s *Service) ExportBatch(ctx context.Context, coinIDs []string, mode model.Mode, limit int) *ExportReport {
	if limit <= 0 {
		limit = s.ExportLimit
	}
	if limit > 0 && len(coinIDs) > limit {
		coinIDs = coinIDs[:limit]
	}
	report := &ExportReport{Mode: mode, Results: make([]ItemResult, 0, len(coinIDs))}

	baseline, baseErr := s.Collector.Baseline(ctx, mode.FetchMode())
	if baseErr != nil {
		baseErr = fmt.Errorf("baseline: %w", baseErr)
	}

	for _, id := range coinIDs {
		item := ItemResult{CoinID: id}
		if baseErr != nil {
			item.Err = baseErr
		} else if res, err := s.computeAgainst(ctx, baseline, id, mode, 0); err != nil {
			item.Err = err
		} else {
			item.Value = res.Value
		}

		s.Metrics.ObserveExportItem(item.Err)
		s.Metrics.ObserveComputation(string(mode), item.Err)
		if item.Err != nil {
			log.Warn().Err(item.Err).Str("coin", id).Str("mode", string(mode)).Msg("export item skipped")
		}
		report.Results = append(report.Results, item)
	}

	log.Info().
		Str("mode", string(mode)).
		Int("requested", len(coinIDs)).
		Int("exported", len(report.Rows())).
		Msg("export batch finished")
	return report
}
