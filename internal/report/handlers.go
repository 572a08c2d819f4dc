package report

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AurifyAE/bullionpro-ledger/internal/model"
)

// statementResponse rounds the balance fields to branch precision for
// display while leaving the line entries untouched.
type statementResponse struct {
	*Statement
	OpeningRounded BalanceSet `json:"opening_rounded"`
	ClosingRounded BalanceSet `json:"closing_rounded"`
}

// HandleStatement handles GET /api/v1/accounts/{partyID}/statement
// Query: ?from=RFC3339&to=RFC3339 (from defaults to the epoch, to to now).
func (e *Engine) HandleStatement(w http.ResponseWriter, r *http.Request) {
	partyID := chi.URLParam(r, "partyID")
	from, to := parseWindow(r)

	st, err := e.Statement(r.Context(), partyID, from, to)
	if err != nil {
		writeReportError(w, err)
		return
	}

	resp := statementResponse{
		Statement:      st,
		OpeningRounded: st.Opening.Rounded(st.Settings),
		ClosingRounded: st.Closing.Rounded(st.Settings),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleFixingRegister handles GET /api/v1/accounts/{partyID}/register
func (e *Engine) HandleFixingRegister(w http.ResponseWriter, r *http.Request) {
	partyID := chi.URLParam(r, "partyID")
	from, to := parseWindow(r)

	lines, err := e.FixingRegister(r.Context(), partyID, from, to)
	if err != nil {
		writeReportError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lines)
}

// HandleStockReport handles GET /api/v1/accounts/{partyID}/stock
func (e *Engine) HandleStockReport(w http.ResponseWriter, r *http.Request) {
	partyID := chi.URLParam(r, "partyID")
	from, to := parseWindow(r)

	lines, err := e.StockReport(r.Context(), partyID, from, to)
	if err != nil {
		writeReportError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lines)
}

func parseWindow(r *http.Request) (from, to time.Time) {
	to = time.Now().UTC()
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		}
	}
	return from, to
}

func writeReportError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, model.ErrNotFound) {
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
