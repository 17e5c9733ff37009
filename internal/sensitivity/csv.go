package sensitivity

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"BetaLens/internal/model"
)

// WriteCSV writes rows as a two-column table headed "Coin,<mode name>".
// Values use the shortest decimal form that reads back to the same float.
func WriteCSV(w io.Writer, mode model.Mode, rows []model.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Coin", mode.DisplayName()}); err != nil {
		return err
	}
	for _, r := range rows {
		if !finite(r.Value) {
			return fmt.Errorf("%w: non-finite value for %s", model.ErrInvalidInput, r.CoinID)
		}
		if err := cw.Write([]string{r.CoinID, decimal.NewFromFloat(r.Value).String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a file produced by WriteCSV.
func ReadCSV(r io.Reader) (model.Mode, []model.ExportRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("%w: empty export", model.ErrInvalidInput)
	}
	if err != nil {
		return "", nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != "Coin" {
		return "", nil, fmt.Errorf("%w: unexpected header %q", model.ErrInvalidInput, header[0])
	}
	mode, err := model.ParseMode(header[1])
	if err != nil {
		return "", nil, err
	}

	var rows []model.ExportRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("read row: %w", err)
		}
		d, err := decimal.NewFromString(rec[1])
		if err != nil {
			return "", nil, fmt.Errorf("%w: value for %s: %v", model.ErrInvalidInput, rec[0], err)
		}
		v, _ := d.Float64()
		rows = append(rows, model.ExportRow{CoinID: rec[0], Value: v})
	}
	return mode, rows, nil
}

// ExportFileName is the conventional download name for a mode.
func ExportFileName(mode model.Mode) string {
	return fmt.Sprintf("altcoin_%s.csv", mode)
}
