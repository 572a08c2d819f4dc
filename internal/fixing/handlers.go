package fixing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AurifyAE/bullionpro-ledger/internal/model"
	"github.com/AurifyAE/bullionpro-ledger/internal/store"
)

// actorID pulls the acting user id propagated by the auth middleware.
// Authentication itself lives outside the core.
func actorID(r *http.Request) string {
	return r.Header.Get("X-Actor-ID")
}

// HandleCreate handles POST /api/v1/fixings
func (s *Service) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := s.Create(r.Context(), req, actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tx)
}

// HandleGet handles GET /api/v1/fixings/{fixingID}
func (s *Service) HandleGet(w http.ResponseWriter, r *http.Request) {
	tx, err := s.Get(r.Context(), chi.URLParam(r, "fixingID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

// HandleUpdate handles PUT /api/v1/fixings/{fixingID}
func (s *Service) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := s.Update(r.Context(), chi.URLParam(r, "fixingID"), req, actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

// HandleDelete handles DELETE /api/v1/fixings/{fixingID}
func (s *Service) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.Delete(r.Context(), chi.URLParam(r, "fixingID"), actorID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeAck(w)
}

// HandleCancel handles POST /api/v1/fixings/{fixingID}/cancel
func (s *Service) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.Cancel(r.Context(), chi.URLParam(r, "fixingID"), actorID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeAck(w)
}

// HandleRestore handles POST /api/v1/fixings/{fixingID}/restore
func (s *Service) HandleRestore(w http.ResponseWriter, r *http.Request) {
	if err := s.Restore(r.Context(), chi.URLParam(r, "fixingID"), actorID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeAck(w)
}

// HandlePermanentDelete handles DELETE /api/v1/fixings/{fixingID}/permanent
func (s *Service) HandlePermanentDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.PermanentDelete(r.Context(), chi.URLParam(r, "fixingID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeAck(w)
}

// ListResponse is one page of transactions plus paging metadata.
type ListResponse struct {
	Items []model.FixingTransaction `json:"items"`
	Total int                       `json:"total"`
	Page  int                       `json:"page"`
	Limit int                       `json:"limit"`
}

// HandleList handles GET /api/v1/fixings
// Filters: ?party_id=&type=&status=&from=&to=&page=&limit=
func (s *Service) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ListFilter{
		PartyID: q.Get("party_id"),
		Type:    model.TransactionType(q.Get("type")),
		Status:  model.TransactionStatus(q.Get("status")),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = t
		}
	}

	items, total, err := s.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if items == nil {
		items = []model.FixingTransaction{}
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListResponse{Items: items, Total: total, Page: f.Page, Limit: f.Limit})
}

// HandleGetAccount handles GET /api/v1/accounts/{partyID}
func (s *Service) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.store.Account(r.Context(), chi.URLParam(r, "partyID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(acct)
}

func writeAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// writeDomainError maps the error taxonomy to HTTP status codes.
// Consistency errors signal data corruption and fall through to 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrConflict):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrValidation):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
