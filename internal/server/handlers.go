package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"BetaLens/internal/model"
	"BetaLens/internal/sensitivity"
)

const maxSearchResults = 50

type errorResponse struct {
	Error string `json:"error"`
}

type sensitivityResponse struct {
	*model.SensitivityResult
	DisplayName  string   `json:"display_name"`
	BTCMovePct   *float64 `json:"btc_move_pct,omitempty"`
	ProjectedPct *float64 `json:"projected_move_pct,omitempty"`
}

type exportFailure struct {
	CoinID string `json:"coin_id"`
	Error  string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) coins(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		writeError(w, http.StatusServiceUnavailable, "coin directory not configured")
		return
	}
	coins, err := s.directory.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if len(coins) > maxSearchResults {
		coins = coins[:maxSearchResults]
	}
	if coins == nil {
		coins = []model.Coin{}
	}
	writeJSON(w, http.StatusOK, coins)
}

func (s *Server) sensitivity(w http.ResponseWriter, r *http.Request) {
	coinID := mux.Vars(r)["coin"]
	q := r.URL.Query()

	mode, err := model.ParseMode(q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	window := 0
	if v := q.Get("window"); v != "" {
		window, err = strconv.Atoi(v)
		if err != nil || window <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid window %q", v))
			return
		}
	}
	var move *float64
	if v := q.Get("move"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid move %q", v))
			return
		}
		move = &f
	}

	res, err := s.service.Compute(r.Context(), coinID, mode, window)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := sensitivityResponse{SensitivityResult: res, DisplayName: mode.DisplayName()}
	if move != nil {
		projected, err := sensitivity.ProjectMove(res.Value, *move)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp.BTCMovePct = move
		resp.ProjectedPct = &projected
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := model.ParseMode(q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := s.config.ExportLimit
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
	}

	var ids []string
	for _, id := range strings.Split(q.Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if query := q.Get("q"); query != "" {
		if s.directory == nil {
			writeError(w, http.StatusServiceUnavailable, "coin directory not configured")
			return
		}
		found, err := s.directory.SearchIDs(r.Context(), query)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		ids = append(ids, found...)
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids or q is required")
		return
	}

	report := s.service.ExportBatch(r.Context(), ids, mode, limit)

	var buf bytes.Buffer
	if err := sensitivity.WriteCSV(&buf, mode, report.Rows()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	failures := report.Failures()
	if len(failures) > 0 {
		out := make([]exportFailure, 0, len(failures))
		for _, f := range failures {
			out = append(out, exportFailure{CoinID: f.CoinID, Error: f.Err.Error()})
		}
		if b, err := json.Marshal(out); err == nil {
			w.Header().Set("X-Export-Failures", string(b))
		}
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sensitivity.ExportFileName(mode)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Warn().Err(err).Msg("write export response")
	}
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrUnknownCoin):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsufficientData),
		errors.Is(err, model.ErrDegenerateInput),
		errors.Is(err, model.ErrInvalidPrice),
		errors.Is(err, model.ErrLengthMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrDataUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}
