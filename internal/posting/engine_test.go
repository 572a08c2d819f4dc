package posting_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AurifyAE/bullionpro-ledger/internal/model"
	"github.com/AurifyAE/bullionpro-ledger/internal/posting"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func purchase(orders ...model.Order) *model.FixingTransaction {
	return &model.FixingTransaction{
		ID:          "PF100001",
		PartyID:     "party-1",
		Type:        model.TypePurchase,
		Orders:      orders,
		Status:      model.StatusActive,
		VoucherDate: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func sale(orders ...model.Order) *model.FixingTransaction {
	tx := purchase(orders...)
	tx.ID = "SF100001"
	tx.Type = model.TypeSale
	return tx
}

func order(weight, price float64, currency string) model.Order {
	return model.Order{
		MetalType:   "GOLD",
		PureWeight:  d(weight),
		OneGramRate: d(price / weight),
		Price:       d(price),
		CurrencyID:  currency,
	}
}

func TestPost_PurchaseSigns(t *testing.T) {
	res, err := posting.Post(purchase(order(10, 5000, "AED")), time.Now().UTC())
	require.NoError(t, err)

	// A purchase credits gold away from the party and debits cash in.
	assert.True(t, res.Delta.Gold.Equal(d(-10)), "gold delta = %s", res.Delta.Gold)
	assert.True(t, res.Delta.Cash["AED"].Equal(d(5000)), "cash delta = %s", res.Delta.Cash["AED"])
}

func TestPost_SaleSigns(t *testing.T) {
	res, err := posting.Post(sale(order(4, 2000, "AED")), time.Now().UTC())
	require.NoError(t, err)

	assert.True(t, res.Delta.Gold.Equal(d(4)))
	assert.True(t, res.Delta.Cash["AED"].Equal(d(-2000)))
}

func TestPost_ThreeEntriesPerOrder(t *testing.T) {
	res, err := posting.Post(purchase(order(10, 5000, "AED"), order(5, 2500, "AED")), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, res.Entries, 6)
	require.Len(t, res.Snapshots, 2)

	// Per order: gold-balance, fixing, cash-balance, in that sequence.
	for i := 0; i < len(res.Entries); i += 3 {
		gold, fix, cash := res.Entries[i], res.Entries[i+1], res.Entries[i+2]

		assert.Equal(t, model.EntryPartyGoldBalance, gold.Type)
		assert.Equal(t, model.EntryPurchaseFixing, fix.Type)
		assert.Equal(t, model.EntryPartyCashBalance, cash.Type)

		// The fixing entry mirrors both legs exactly.
		assert.True(t, fix.GoldDelta().Equal(gold.GoldDelta()), "fixing gold leg mismatch")
		assert.True(t, fix.CashDelta().Equal(cash.CashDelta()), "fixing cash leg mismatch")

		// Back-reference for bulk reversal.
		assert.Equal(t, "PF100001", gold.FixingTransactionID)
		assert.Equal(t, "PF100001", fix.FixingTransactionID)
		assert.Equal(t, "PF100001", cash.FixingTransactionID)
	}
}

func TestPost_EntriesReconcileWithDelta(t *testing.T) {
	res, err := posting.Post(purchase(order(10, 5000, "AED"), order(3, 1200, "USD")), time.Now().UTC())
	require.NoError(t, err)

	goldSum := decimal.Zero
	cashSum := map[string]decimal.Decimal{}
	for _, e := range res.Entries {
		switch e.Type {
		case model.EntryPartyGoldBalance:
			goldSum = goldSum.Add(e.GoldDelta())
		case model.EntryPartyCashBalance:
			cashSum[e.CurrencyID] = cashSum[e.CurrencyID].Add(e.CashDelta())
		}
	}

	assert.True(t, goldSum.Equal(res.Delta.Gold), "balance postings must reconstruct the gold delta")
	for cur, want := range res.Delta.Cash {
		assert.True(t, cashSum[cur].Equal(want), "balance postings must reconstruct cash delta for %s", cur)
	}
}

func TestPost_MultiCurrencyGrouping(t *testing.T) {
	res, err := posting.Post(purchase(
		order(10, 5000, "AED"),
		order(5, 2500, "AED"),
		order(2, 800, "USD"),
	), time.Now().UTC())
	require.NoError(t, err)

	assert.True(t, res.Delta.Cash["AED"].Equal(d(7500)))
	assert.True(t, res.Delta.Cash["USD"].Equal(d(800)))
	assert.True(t, res.Delta.Gold.Equal(d(-17)))
}

func TestPost_WeightPriorityResolution(t *testing.T) {
	tests := []struct {
		name  string
		order model.Order
		want  decimal.Decimal
	}{
		{
			name:  "pure weight wins over the others",
			order: model.Order{PureWeight: d(10), QuantityGm: d(11), GrossWeight: d(12), Price: d(1), CurrencyID: "AED"},
			want:  d(10),
		},
		{
			name:  "quantity used when pure missing",
			order: model.Order{QuantityGm: d(11), GrossWeight: d(12), Price: d(1), CurrencyID: "AED"},
			want:  d(11),
		},
		{
			name:  "gross is the last resort",
			order: model.Order{GrossWeight: d(12), Price: d(1), CurrencyID: "AED"},
			want:  d(12),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := posting.Post(purchase(tt.order), time.Now().UTC())
			require.NoError(t, err)
			assert.True(t, res.Delta.Gold.Equal(tt.want.Neg()))
		})
	}
}

func TestPost_MissingWeightAbortsWholePosting(t *testing.T) {
	res, err := posting.Post(purchase(
		order(10, 5000, "AED"),
		model.Order{Price: d(100), CurrencyID: "AED"}, // no weight at all
	), time.Now().UTC())

	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrValidation))
	assert.Nil(t, res, "a failed posting must produce no partial output")
}

func TestPost_LazyCurrencyEnrollment(t *testing.T) {
	acct := &model.Account{ID: "party-1", GoldBalance: decimal.Zero}

	res, err := posting.Post(purchase(order(10, 5000, "AED")), time.Now().UTC())
	require.NoError(t, err)
	res.ApplyTo(acct)

	require.Len(t, acct.CashBalances, 1)
	assert.Equal(t, "AED", acct.CashBalances[0].CurrencyID)
	assert.True(t, acct.CashBalance("AED").Equal(d(5000)))
}

func TestReverse_RestoresExactPrePostingState(t *testing.T) {
	acct := &model.Account{ID: "party-1", GoldBalance: d(42.5)}
	acct.AddCash("AED", d(100))
	before := acct.Clone()

	tx := purchase(order(10, 5000, "AED"), order(2.345, 1234.56, "USD"))
	res, err := posting.Post(tx, time.Now().UTC())
	require.NoError(t, err)
	res.ApplyTo(acct)

	rev, err := posting.Reverse(tx)
	require.NoError(t, err)
	rev.ApplyTo(acct)

	assert.True(t, acct.GoldBalance.Equal(before.GoldBalance),
		"gold: got %s want %s", acct.GoldBalance, before.GoldBalance)
	assert.True(t, acct.CashBalance("AED").Equal(before.CashBalance("AED")))
	assert.True(t, acct.CashBalance("USD").IsZero(), "touched currency must return to zero")
}

func TestReverse_IsExactNegation(t *testing.T) {
	tx := sale(order(4, 2000, "AED"))

	res, err := posting.Post(tx, time.Now().UTC())
	require.NoError(t, err)
	rev, err := posting.Reverse(tx)
	require.NoError(t, err)

	assert.True(t, rev.Gold.Equal(res.Delta.Gold.Neg()))
	assert.True(t, rev.Cash["AED"].Equal(res.Delta.Cash["AED"].Neg()))
}

func TestReverse_CorruptedOrdersIsConsistencyError(t *testing.T) {
	tx := purchase(order(10, 5000, "AED"))
	tx.Orders[0].PureWeight = decimal.Zero // externally corrupted after posting

	_, err := posting.Reverse(tx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConsistency))

	var ce *model.ConsistencyError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "PF100001", ce.TransactionID)
}
