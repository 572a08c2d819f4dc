package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AurifyAE/bullionpro-ledger/internal/model"
	"github.com/AurifyAE/bullionpro-ledger/internal/store"
)

func seedAccount(t *testing.T, ms *store.MemoryStore, id string) {
	t.Helper()
	err := ms.CreateAccount(context.Background(), &model.Account{
		ID:        id,
		PartyCode: "PC-" + id,
		Name:      "Party " + id,
	})
	require.NoError(t, err)
}

func TestMemoryStore_UnitOfWorkCommits(t *testing.T) {
	ms := store.NewMemoryStore()
	seedAccount(t, ms, "party-1")

	err := ms.RunInUnitOfWork(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		acct, err := uow.Account(ctx, "party-1")
		if err != nil {
			return err
		}
		acct.GoldBalance = decimal.NewFromInt(7)
		return uow.SaveAccount(ctx, acct)
	})
	require.NoError(t, err)

	acct, err := ms.Account(context.Background(), "party-1")
	require.NoError(t, err)
	assert.True(t, acct.GoldBalance.Equal(decimal.NewFromInt(7)))
}

func TestMemoryStore_UnitOfWorkAbortsAtomically(t *testing.T) {
	ms := store.NewMemoryStore()
	seedAccount(t, ms, "party-1")

	boom := errors.New("injected failure")
	err := ms.RunInUnitOfWork(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		acct, err := uow.Account(ctx, "party-1")
		if err != nil {
			return err
		}
		acct.GoldBalance = decimal.NewFromInt(99)
		if err := uow.SaveAccount(ctx, acct); err != nil {
			return err
		}
		if err := uow.InsertRegistryEntries(ctx, []model.RegistryEntry{{
			ID:                  "e1",
			Type:                model.EntryPartyGoldBalance,
			FixingTransactionID: "PF100001",
			PartyID:             "party-1",
			TransactionDate:     time.Now().UTC(),
			Reference:           "PF100001",
		}}); err != nil {
			return err
		}
		return boom // fail after all writes
	})
	require.ErrorIs(t, err, boom)

	// Nothing from the aborted unit of work is visible.
	acct, err := ms.Account(context.Background(), "party-1")
	require.NoError(t, err)
	assert.True(t, acct.GoldBalance.IsZero())
	assert.Equal(t, 0, ms.RegistryEntryCount("PF100001"))
}

func TestMemoryStore_EntriesSortedByDateThenReference(t *testing.T) {
	ms := store.NewMemoryStore()
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	entries := []model.RegistryEntry{
		{ID: "3", PartyID: "p", TransactionDate: base.Add(time.Hour), Reference: "A"},
		{ID: "2", PartyID: "p", TransactionDate: base, Reference: "B"},
		{ID: "1", PartyID: "p", TransactionDate: base, Reference: "A"},
	}
	err := ms.RunInUnitOfWork(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		return uow.InsertRegistryEntries(ctx, entries)
	})
	require.NoError(t, err)

	got, err := ms.RegistryEntriesByParty(context.Background(), "p", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestMemoryStore_EntriesUntilCutoff(t *testing.T) {
	ms := store.NewMemoryStore()
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	err := ms.RunInUnitOfWork(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		return uow.InsertRegistryEntries(ctx, []model.RegistryEntry{
			{ID: "in", PartyID: "p", TransactionDate: base},
			{ID: "out", PartyID: "p", TransactionDate: base.Add(48 * time.Hour)},
		})
	})
	require.NoError(t, err)

	got, err := ms.RegistryEntriesByParty(context.Background(), "p", base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "in", got[0].ID)
}

func TestMemoryStore_ListFiltersAndPages(t *testing.T) {
	ms := store.NewMemoryStore()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	err := ms.RunInUnitOfWork(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		for i, tx := range []model.FixingTransaction{
			{ID: "PF000001", PartyID: "p1", Type: model.TypePurchase, Status: model.StatusActive},
			{ID: "PF000002", PartyID: "p1", Type: model.TypePurchase, Status: model.StatusCancelled},
			{ID: "SF000001", PartyID: "p2", Type: model.TypeSale, Status: model.StatusActive},
		} {
			tx.VoucherDate = base.AddDate(0, 0, i)
			if err := uow.InsertFixingTransaction(ctx, &tx); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	items, total, err := ms.ListFixingTransactions(context.Background(), store.ListFilter{PartyID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	items, total, err = ms.ListFixingTransactions(context.Background(), store.ListFilter{Status: model.StatusActive})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	items, total, err = ms.ListFixingTransactions(context.Background(), store.ListFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 1)
}

func TestMemoryStore_DeleteEntriesByTransaction(t *testing.T) {
	ms := store.NewMemoryStore()

	err := ms.RunInUnitOfWork(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		return uow.InsertRegistryEntries(ctx, []model.RegistryEntry{
			{ID: "a", PartyID: "p", FixingTransactionID: "PF1"},
			{ID: "b", PartyID: "p", FixingTransactionID: "PF1"},
			{ID: "c", PartyID: "p", FixingTransactionID: "PF2"},
		})
	})
	require.NoError(t, err)

	err = ms.RunInUnitOfWork(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		return uow.DeleteRegistryEntries(ctx, "PF1")
	})
	require.NoError(t, err)

	assert.Equal(t, 0, ms.RegistryEntryCount("PF1"))
	assert.Equal(t, 1, ms.RegistryEntryCount("PF2"))
}
