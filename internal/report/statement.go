// Package report implements the read-only ledger replay engines: party
// statements with opening/running/closing balances, the fixing register,
// and the stock movement report.
//
// Replay never touches account aggregates: balances are reconstructed from
// registry postings alone, so these reports double as a reconciliation
// check against the posting engine.
package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AurifyAE/bullionpro-ledger/internal/model"
	"github.com/AurifyAE/bullionpro-ledger/internal/store"
)

// Unit conversion constants for the synthetic rate fallback: a per-gram
// local-currency rate is converted to a per-troy-ounce USD bid.
var (
	troyOunceGrams = decimal.NewFromFloat(31.1035)
	usdPegFactor   = decimal.NewFromFloat(3.674)
)

// Engine runs read-only report queries against the ledger store.
type Engine struct {
	store store.Store
}

// NewEngine creates a report engine.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// BalanceSet is a gold balance plus per-currency cash balances at one
// instant. Values are unrounded; apply branch settings at presentation.
type BalanceSet struct {
	Gold decimal.Decimal            `json:"gold"`
	Cash map[string]decimal.Decimal `json:"cash"`
}

func newBalanceSet() BalanceSet {
	return BalanceSet{Gold: decimal.Zero, Cash: make(map[string]decimal.Decimal)}
}

func (b BalanceSet) clone() BalanceSet {
	cp := BalanceSet{Gold: b.Gold, Cash: make(map[string]decimal.Decimal, len(b.Cash))}
	for cur, amt := range b.Cash {
		cp.Cash[cur] = amt
	}
	return cp
}

// apply folds one posting into the balance using the type classification:
// gold-only entries move the gold accumulator, cash-only entries the cash
// accumulator. Mixed fixing entries are excluded here: their legs are
// already mirrored by the two balance postings emitted alongside them, and
// counting both would double every trade.
func (b *BalanceSet) apply(e *model.RegistryEntry) {
	switch e.Type {
	case model.EntryPartyGoldBalance:
		b.Gold = b.Gold.Add(e.GoldDelta())
	case model.EntryPartyCashBalance:
		b.Cash[e.CurrencyID] = b.Cash[e.CurrencyID].Add(e.CashDelta())
	}
}

// Rounded returns a copy rounded to the branch presentation precision.
func (b BalanceSet) Rounded(bs model.BranchSettings) BalanceSet {
	out := BalanceSet{Gold: b.Gold.Round(bs.MetalDecimals), Cash: make(map[string]decimal.Decimal, len(b.Cash))}
	for cur, amt := range b.Cash {
		out.Cash[cur] = amt.Round(bs.AmountDecimals)
	}
	return out
}

// StatementLine is one posting with the running balance after applying it.
type StatementLine struct {
	Entry   model.RegistryEntry `json:"entry"`
	Running BalanceSet          `json:"running"`
}

// Statement is the replay result for one party over [From, To].
type Statement struct {
	PartyID  string               `json:"party_id"`
	From     time.Time            `json:"from"`
	To       time.Time            `json:"to"`
	Opening  BalanceSet           `json:"opening"`
	Lines    []StatementLine      `json:"lines"`
	Closing  BalanceSet           `json:"closing"`
	Settings model.BranchSettings `json:"settings"`
}

// Statement replays the party's postings in (TransactionDate, Reference)
// order. The opening balance accumulates every posting strictly before
// `from`; postings inside the window become lines carrying the running
// balance forward. The accumulator itself is never rounded; rounding to
// branch precision happens only when a figure is rendered.
func (e *Engine) Statement(ctx context.Context, partyID string, from, to time.Time) (*Statement, error) {
	entries, err := e.store.RegistryEntriesByParty(ctx, partyID, to)
	if err != nil {
		return nil, err
	}
	settings, err := e.store.BranchSettings(ctx)
	if err != nil {
		return nil, err
	}

	st := &Statement{
		PartyID:  partyID,
		From:     from,
		To:       to,
		Opening:  newBalanceSet(),
		Lines:    []StatementLine{},
		Settings: settings,
	}

	running := newBalanceSet()
	for i := range entries {
		en := &entries[i]
		if en.TransactionDate.Before(from) {
			st.Opening.apply(en)
			running.apply(en)
			continue
		}
		running.apply(en)
		st.Lines = append(st.Lines, StatementLine{Entry: *en, Running: running.clone()})
	}
	st.Closing = running
	return st, nil
}

// RegisterLine is one fixing posting with both legs and the resolved rate.
type RegisterLine struct {
	Entry model.RegistryEntry `json:"entry"`
	Gold  decimal.Decimal     `json:"gold"`
	Cash  decimal.Decimal     `json:"cash"`
	Rate  decimal.Decimal     `json:"rate"`
}

// FixingRegister replays the mixed-type fixing postings for a party,
// resolving each line's display rate through the fallback chain. Every
// report that shows a rate goes through this same resolution so reports
// can never disagree with each other.
func (e *Engine) FixingRegister(ctx context.Context, partyID string, from, to time.Time) ([]RegisterLine, error) {
	entries, err := e.store.RegistryEntriesByParty(ctx, partyID, to)
	if err != nil {
		return nil, err
	}

	snapshots := make(map[string][]model.FixingPriceSnapshot)
	lines := []RegisterLine{}
	for i := range entries {
		en := &entries[i]
		if en.Type != model.EntryPurchaseFixing && en.Type != model.EntrySalesFixing {
			continue
		}
		if en.TransactionDate.Before(from) {
			continue
		}

		snaps, ok := snapshots[en.FixingTransactionID]
		if !ok {
			snaps, err = e.store.FixingPricesByTransaction(ctx, en.FixingTransactionID)
			if err != nil {
				return nil, err
			}
			snapshots[en.FixingTransactionID] = snaps
		}

		lines = append(lines, RegisterLine{
			Entry: *en,
			Gold:  en.GoldDelta(),
			Cash:  en.CashDelta(),
			Rate:  ResolveRate(en, snaps),
		})
	}
	return lines, nil
}

// ResolveRate picks the display rate for a fixing posting:
//  1. the bid captured in the transaction's price snapshot, if positive;
//  2. the entry's own stored rate, if positive;
//  3. a synthetic per-ounce bid derived from the entry's net cash over net
//     gold, converted through the troy-ounce and USD peg constants.
func ResolveRate(e *model.RegistryEntry, snaps []model.FixingPriceSnapshot) decimal.Decimal {
	for i := range snaps {
		if snaps[i].BidValue.IsPositive() {
			return snaps[i].BidValue
		}
	}
	if e.Rate.IsPositive() {
		return e.Rate
	}

	netGold := e.GoldDelta().Abs()
	netCash := e.CashDelta().Abs()
	if netGold.IsZero() {
		return decimal.Zero
	}
	perGram := netCash.Div(netGold)
	return perGram.Mul(troyOunceGrams).Div(usdPegFactor)
}

// StockLine is the net metal movement for one fixing transaction.
type StockLine struct {
	FixingTransactionID string          `json:"fixing_transaction_id"`
	Date                time.Time       `json:"date"`
	In                  decimal.Decimal `json:"in"`
	Out                 decimal.Decimal `json:"out"`
}

// StockReport aggregates gold movement per fixing transaction over the
// window: sales debit metal in, purchases credit it out, following the
// counter-party claim convention the posting engine uses.
func (e *Engine) StockReport(ctx context.Context, partyID string, from, to time.Time) ([]StockLine, error) {
	entries, err := e.store.RegistryEntriesByParty(ctx, partyID, to)
	if err != nil {
		return nil, err
	}

	byTx := make(map[string]*StockLine)
	var order []string
	for i := range entries {
		en := &entries[i]
		if en.Type != model.EntryPartyGoldBalance || en.TransactionDate.Before(from) {
			continue
		}
		line, ok := byTx[en.FixingTransactionID]
		if !ok {
			line = &StockLine{
				FixingTransactionID: en.FixingTransactionID,
				Date:                en.TransactionDate,
				In:                  decimal.Zero,
				Out:                 decimal.Zero,
			}
			byTx[en.FixingTransactionID] = line
			order = append(order, en.FixingTransactionID)
		}
		line.In = line.In.Add(en.Debit)
		line.Out = line.Out.Add(en.Credit)
	}

	lines := make([]StockLine, 0, len(order))
	for _, id := range order {
		lines = append(lines, *byTx[id])
	}
	return lines, nil
}
