// Package posting implements the ledger posting and reversal engine.
//
// Posting computes the signed gold and per-currency cash deltas of a fixing
// transaction and emits the immutable registry entries and rate snapshots
// that record it. Reversal recomputes those deltas from the stored
// transaction and negates them; it never trusts a cached delta, so a
// reversal is always consistent with what was actually posted.
package posting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AurifyAE/bullionpro-ledger/internal/model"
)

// Delta is the signed balance effect of a transaction: gold in grams and
// cash per currency id.
type Delta struct {
	Gold decimal.Decimal
	Cash map[string]decimal.Decimal
}

// Neg returns the exact negation of the delta.
func (d *Delta) Neg() *Delta {
	out := &Delta{Gold: d.Gold.Neg(), Cash: make(map[string]decimal.Decimal, len(d.Cash))}
	for cur, amt := range d.Cash {
		out.Cash[cur] = amt.Neg()
	}
	return out
}

// ApplyTo mutates the account by the delta, enrolling currency slots lazily.
func (d *Delta) ApplyTo(acct *model.Account) {
	acct.GoldBalance = acct.GoldBalance.Add(d.Gold)
	for cur, amt := range d.Cash {
		acct.AddCash(cur, amt)
	}
}

// Result is everything a posting produces: the balance deltas plus the
// registry entries and rate snapshots to persist alongside them.
type Result struct {
	Delta     Delta
	Entries   []model.RegistryEntry
	Snapshots []model.FixingPriceSnapshot
}

// goldSign returns the sign applied to resolved weights. The account balance
// represents the counter-party's claim: a purchase credits gold away from the
// party, a sale debits it. This convention must match reversal exactly.
func goldSign(t model.TransactionType) decimal.Decimal {
	if t == model.TypePurchase {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

func cashSign(t model.TransactionType) decimal.Decimal {
	return goldSign(t).Neg()
}

// computeDeltas recomputes the signed balance effect from the transaction's
// orders and type. Shared by Post and Reverse so the two can never diverge.
func computeDeltas(tx *model.FixingTransaction) (*Delta, error) {
	gs := goldSign(tx.Type)
	cs := cashSign(tx.Type)

	d := &Delta{Gold: decimal.Zero, Cash: make(map[string]decimal.Decimal)}
	for i := range tx.Orders {
		o := &tx.Orders[i]
		w, ok := o.ResolvedWeight()
		if !ok {
			return nil, model.Validationf("orders", "order %d has no positive weight (pure, quantity or gross)", i)
		}
		d.Gold = d.Gold.Add(gs.Mul(w))
		d.Cash[o.CurrencyID] = d.Cash[o.CurrencyID].Add(cs.Mul(o.Price))
	}
	return d, nil
}

// Post computes the balance deltas for the transaction and emits exactly
// three registry entries per order line: one gold-balance posting, one
// fixing posting carrying both legs, and one cash-balance posting. The
// whole posting aborts on the first order that fails weight resolution;
// no partial output is ever returned.
func Post(tx *model.FixingTransaction, now time.Time) (*Result, error) {
	if !tx.Type.Valid() {
		return nil, model.Validationf("type", "unknown transaction type %q", tx.Type)
	}
	if len(tx.Orders) == 0 {
		return nil, model.Validationf("orders", "at least one order is required")
	}

	delta, err := computeDeltas(tx)
	if err != nil {
		return nil, err
	}

	txDate := tx.VoucherDate
	if txDate.IsZero() {
		txDate = now
	}

	fixingType := model.EntryPurchaseFixing
	if tx.Type == model.TypeSale {
		fixingType = model.EntrySalesFixing
	}

	res := &Result{
		Delta:     *delta,
		Entries:   make([]model.RegistryEntry, 0, 3*len(tx.Orders)),
		Snapshots: make([]model.FixingPriceSnapshot, 0, len(tx.Orders)),
	}

	for i := range tx.Orders {
		o := &tx.Orders[i]
		w, _ := o.ResolvedWeight() // validated by computeDeltas

		base := model.RegistryEntry{
			FixingTransactionID: tx.ID,
			PartyID:             tx.PartyID,
			Rate:                o.OneGramRate,
			TransactionDate:     txDate,
			Reference:           tx.ID,
		}

		// Gold-balance posting mirrors the gold leg.
		gold := base
		gold.ID = uuid.New().String()
		gold.Type = model.EntryPartyGoldBalance
		gold.Value = w
		if tx.Type == model.TypePurchase {
			gold.Credit = w
		} else {
			gold.Debit = w
		}
		res.Entries = append(res.Entries, gold)

		// Fixing posting carries both legs in one record.
		fix := base
		fix.ID = uuid.New().String()
		fix.Type = fixingType
		fix.Value = o.Price
		fix.CurrencyID = o.CurrencyID
		fix.Debit = gold.Debit
		fix.Credit = gold.Credit
		if tx.Type == model.TypePurchase {
			fix.CashDebit = o.Price
		} else {
			fix.CashCredit = o.Price
		}
		res.Entries = append(res.Entries, fix)

		// Cash-balance posting mirrors the cash leg.
		cash := base
		cash.ID = uuid.New().String()
		cash.Type = model.EntryPartyCashBalance
		cash.Value = o.Price
		cash.CurrencyID = o.CurrencyID
		cash.CashDebit = fix.CashDebit
		cash.CashCredit = fix.CashCredit
		res.Entries = append(res.Entries, cash)

		res.Snapshots = append(res.Snapshots, model.FixingPriceSnapshot{
			ID:                  uuid.New().String(),
			FixingTransactionID: tx.ID,
			RateInGram:          o.OneGramRate,
			BidValue:            o.BidValue,
			CurrentBidValue:     o.CurrentBidValue,
			FixedAt:             now,
			Status:              string(model.StatusActive),
		})
	}

	return res, nil
}

// ApplyTo ensures a cash balance slot exists for every currency the posting
// touches, then mutates the account by the computed deltas.
func (r *Result) ApplyTo(acct *model.Account) {
	for cur := range r.Delta.Cash {
		acct.EnsureCurrency(cur)
	}
	r.Delta.ApplyTo(acct)
}

// Reverse recomputes the balance effect of a previously posted transaction
// from its currently stored orders and type, and returns the exact negation.
// A stored order that no longer resolves to a positive weight means the
// transaction was corrupted after posting: that is a fatal consistency
// error, never patched over.
func Reverse(tx *model.FixingTransaction) (*Delta, error) {
	d, err := computeDeltas(tx)
	if err != nil {
		return nil, &model.ConsistencyError{
			TransactionID: tx.ID,
			Reason:        "stored orders no longer resolve: " + err.Error(),
		}
	}
	return d.Neg(), nil
}
