// Package model defines the core domain types shared across the ledger engine.
// All weights, rates and monetary values use shopspring/decimal, never
// float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes the two directions of a fixing trade.
type TransactionType string

const (
	TypePurchase TransactionType = "PURCHASE"
	TypeSale     TransactionType = "SALE"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TypePurchase || t == TypeSale
}

// IDPrefix returns the human-readable id prefix for transactions of this type.
func (t TransactionType) IDPrefix() string {
	if t == TypePurchase {
		return "PF"
	}
	return "SF"
}

// TransactionStatus is the soft-delete marker on a fixing transaction.
type TransactionStatus string

const (
	StatusActive    TransactionStatus = "active"
	StatusCancelled TransactionStatus = "cancelled"
)

// EntryType tags a registry entry with the kind of posting it records.
// Gold-only and cash-only entries mirror one leg; the fixing entries carry
// both legs of the trade in a single record.
type EntryType string

const (
	EntryPartyGoldBalance EntryType = "PARTY_GOLD_BALANCE"
	EntryPartyCashBalance EntryType = "PARTY_CASH_BALANCE"
	EntryPurchaseFixing   EntryType = "PURCHASE_FIXING"
	EntrySalesFixing      EntryType = "SALES_FIXING"
)

// HasGoldLeg reports whether entries of this type populate Debit/Credit.
func (t EntryType) HasGoldLeg() bool {
	return t == EntryPartyGoldBalance || t == EntryPurchaseFixing || t == EntrySalesFixing
}

// HasCashLeg reports whether entries of this type populate CashDebit/CashCredit.
func (t EntryType) HasCashLeg() bool {
	return t == EntryPartyCashBalance || t == EntryPurchaseFixing || t == EntrySalesFixing
}

// CashBalance is one per-currency balance slot on an account. Slots are
// created lazily the first time a currency is posted against the account.
type CashBalance struct {
	CurrencyID string          `json:"currency_id" db:"currency_id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
}

// Account is the mutable balance aggregate for one trading party.
//
// INVARIANT: GoldBalance and every CashBalances[i].Amount equal the signed
// sum of all registry postings referencing this account for that asset, at
// every committed instant. Mutated only through the posting/reversal engine.
type Account struct {
	ID           string          `json:"id" db:"id"`
	PartyCode    string          `json:"party_code" db:"party_code"`
	Name         string          `json:"name" db:"name"`
	GoldBalance  decimal.Decimal `json:"gold_balance_grams" db:"gold_balance_grams"`
	CashBalances []CashBalance   `json:"cash_balances" db:"cash_balances"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// CashBalance returns the balance for a currency, zero if never enrolled.
func (a *Account) CashBalance(currencyID string) decimal.Decimal {
	for _, cb := range a.CashBalances {
		if cb.CurrencyID == currencyID {
			return cb.Amount
		}
	}
	return decimal.Zero
}

// EnsureCurrency enrolls a zero balance slot for the currency if missing.
func (a *Account) EnsureCurrency(currencyID string) {
	for _, cb := range a.CashBalances {
		if cb.CurrencyID == currencyID {
			return
		}
	}
	a.CashBalances = append(a.CashBalances, CashBalance{CurrencyID: currencyID, Amount: decimal.Zero})
}

// AddCash applies a signed delta to the currency slot, enrolling it if needed.
func (a *Account) AddCash(currencyID string, delta decimal.Decimal) {
	for i := range a.CashBalances {
		if a.CashBalances[i].CurrencyID == currencyID {
			a.CashBalances[i].Amount = a.CashBalances[i].Amount.Add(delta)
			return
		}
	}
	a.CashBalances = append(a.CashBalances, CashBalance{CurrencyID: currencyID, Amount: delta})
}

// Clone returns a deep copy so callers can mutate without aliasing the store.
func (a *Account) Clone() *Account {
	cp := *a
	cp.CashBalances = make([]CashBalance, len(a.CashBalances))
	copy(cp.CashBalances, a.CashBalances)
	return &cp
}

// Order is one metal line inside a fixing transaction. Weight resolution
// follows a fixed priority: PureWeight, then QuantityGm, then GrossWeight.
type Order struct {
	MetalType       string          `json:"metal_type" db:"metal_type"`
	GrossWeight     decimal.Decimal `json:"gross_weight" db:"gross_weight"`
	PureWeight      decimal.Decimal `json:"pure_weight" db:"pure_weight"`
	QuantityGm      decimal.Decimal `json:"quantity_gm" db:"quantity_gm"`
	OneGramRate     decimal.Decimal `json:"one_gram_rate" db:"one_gram_rate"`
	BidValue        decimal.Decimal `json:"bid_value" db:"bid_value"`
	CurrentBidValue decimal.Decimal `json:"current_bid_value" db:"current_bid_value"`
	Price           decimal.Decimal `json:"price" db:"price"`
	CurrencyID      string          `json:"currency_id" db:"currency_id"`
}

// ResolvedWeight returns the first positive weight field in priority order.
// ok is false when all three are missing or non-positive.
func (o *Order) ResolvedWeight() (decimal.Decimal, bool) {
	for _, w := range []decimal.Decimal{o.PureWeight, o.QuantityGm, o.GrossWeight} {
		if w.IsPositive() {
			return w, true
		}
	}
	return decimal.Zero, false
}

// FixingTransaction is a purchase or sale of metal against cash at a fixed
// rate, composed of one or more order lines. Orders are embedded and owned;
// they are not separately addressable.
type FixingTransaction struct {
	ID          string            `json:"id" db:"id"`
	PartyID     string            `json:"party_id" db:"party_id"`
	Type        TransactionType   `json:"type" db:"type"`
	Orders      []Order           `json:"orders" db:"orders"`
	Status      TransactionStatus `json:"status" db:"status"`
	VoucherDate time.Time         `json:"voucher_date" db:"voucher_date"`
	CreatedBy   string            `json:"created_by" db:"created_by"`
	UpdatedBy   string            `json:"updated_by" db:"updated_by"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy including the embedded orders.
func (tx *FixingTransaction) Clone() *FixingTransaction {
	cp := *tx
	cp.Orders = make([]Order, len(tx.Orders))
	copy(cp.Orders, tx.Orders)
	return &cp
}

// RegistryEntry is an immutable ledger posting. Once created, entries are
// never modified; a transaction's entries are deleted only en masse by
// FixingTransactionID when the transaction is reversed.
//
// Sign convention: debit increases the balance, credit decreases it.
// Gold-leg fields are populated iff Type.HasGoldLeg(); cash-leg fields iff
// Type.HasCashLeg().
type RegistryEntry struct {
	ID                  string          `json:"id" db:"id"`
	Type                EntryType       `json:"type" db:"type"`
	FixingTransactionID string          `json:"fixing_transaction_id" db:"fixing_transaction_id"`
	PartyID             string          `json:"party_id" db:"party_id"`
	Debit               decimal.Decimal `json:"debit" db:"debit"`
	Credit              decimal.Decimal `json:"credit" db:"credit"`
	CashDebit           decimal.Decimal `json:"cash_debit" db:"cash_debit"`
	CashCredit          decimal.Decimal `json:"cash_credit" db:"cash_credit"`
	CurrencyID          string          `json:"currency_id" db:"currency_id"`
	Value               decimal.Decimal `json:"value" db:"value"`
	Rate                decimal.Decimal `json:"rate" db:"rate"`
	TransactionDate     time.Time       `json:"transaction_date" db:"transaction_date"`
	Reference           string          `json:"reference" db:"reference"`
}

// GoldDelta is the signed effect of this entry on the party's gold balance.
func (e *RegistryEntry) GoldDelta() decimal.Decimal {
	return e.Debit.Sub(e.Credit)
}

// CashDelta is the signed effect of this entry on the party's cash balance
// in e.CurrencyID.
func (e *RegistryEntry) CashDelta() decimal.Decimal {
	return e.CashDebit.Sub(e.CashCredit)
}

// FixingPriceSnapshot captures the rate used at posting time, one per order
// line. Immutable; the authoritative rate source for reports.
type FixingPriceSnapshot struct {
	ID                  string          `json:"id" db:"id"`
	FixingTransactionID string          `json:"fixing_transaction_id" db:"fixing_transaction_id"`
	RateInGram          decimal.Decimal `json:"rate_in_gram" db:"rate_in_gram"`
	BidValue            decimal.Decimal `json:"bid_value" db:"bid_value"`
	CurrentBidValue     decimal.Decimal `json:"current_bid_value" db:"current_bid_value"`
	FixedAt             time.Time       `json:"fixed_at" db:"fixed_at"`
	Status              string          `json:"status" db:"status"`
}

// BranchSettings holds presentation precision for reports. The running
// accumulators themselves stay unrounded; these decimals apply only when a
// figure is rendered.
type BranchSettings struct {
	MetalDecimals  int32 `json:"metal_decimals" db:"metal_decimals"`
	AmountDecimals int32 `json:"amount_decimals" db:"amount_decimals"`
}

// DefaultBranchSettings matches the back-office defaults: 3 decimals for
// metal weight, 2 for cash amounts.
func DefaultBranchSettings() BranchSettings {
	return BranchSettings{MetalDecimals: 3, AmountDecimals: 2}
}
