package report_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AurifyAE/bullionpro-ledger/internal/model"
	"github.com/AurifyAE/bullionpro-ledger/internal/report"
	"github.com/AurifyAE/bullionpro-ledger/internal/store"
)

func newReportServer(t *testing.T, ms *store.MemoryStore) *httptest.Server {
	t.Helper()
	eng := report.NewEngine(ms)

	r := chi.NewRouter()
	r.Route("/api/v1/accounts/{partyID}", func(r chi.Router) {
		r.Get("/statement", eng.HandleStatement)
		r.Get("/register", eng.HandleFixingRegister)
		r.Get("/stock", eng.HandleStockReport)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleStatement(t *testing.T) {
	ms := store.NewMemoryStore()
	seed(t, ms, []model.RegistryEntry{
		goldEntry("PF1", day(0), "PF1", 0, 10.1234),
		cashEntry("PF1", day(0), "PF1", 5000, 0, "AED"),
	}, nil)
	srv := newReportServer(t, ms)

	url := srv.URL + "/api/v1/accounts/party-x/statement?from=" +
		day(0).Format(time.RFC3339) + "&to=" + day(1).Format(time.RFC3339)
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get statement: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Opening        report.BalanceSet `json:"opening"`
		Closing        report.BalanceSet `json:"closing"`
		ClosingRounded report.BalanceSet `json:"closing_rounded"`
		Lines          []json.RawMessage `json:"lines"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Lines) != 2 {
		t.Errorf("lines = %d, want 2", len(body.Lines))
	}
	if got := body.Closing.Gold.String(); got != "-10.1234" {
		t.Errorf("closing gold = %s, want -10.1234", got)
	}
	if got := body.ClosingRounded.Gold.String(); got != "-10.123" {
		t.Errorf("closing_rounded gold = %s, want -10.123", got)
	}
}

func TestHandleStockReport(t *testing.T) {
	ms := store.NewMemoryStore()
	seed(t, ms, []model.RegistryEntry{
		goldEntry("PF1", day(0), "PF1", 0, 10),
	}, nil)
	srv := newReportServer(t, ms)

	resp, err := http.Get(srv.URL + "/api/v1/accounts/party-x/stock?from=" + day(0).Format(time.RFC3339))
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var lines []report.StockLine
	if err := json.NewDecoder(resp.Body).Decode(&lines); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(lines) != 1 || lines[0].FixingTransactionID != "PF1" {
		t.Fatalf("lines = %+v", lines)
	}
	if !lines[0].Out.Equal(d(10)) {
		t.Errorf("out = %s, want 10", lines[0].Out)
	}
}
