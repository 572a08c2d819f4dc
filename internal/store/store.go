// Package store defines the persistence interface for the ledger engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache for report reads), and in-memory (for testing).
package store

import (
	"context"
	"time"

	"github.com/AurifyAE/bullionpro-ledger/internal/model"
)

// UnitOfWork is the mutation surface of one atomic lifecycle operation.
// Every write the posting, reversal and lifecycle layers perform goes
// through a UnitOfWork, never directly against the store, so that a
// failure anywhere aborts the whole operation with no partial ledger
// writes or partial balance mutation observable.
type UnitOfWork interface {
	// Account loads a party's balance aggregate for update. The row is
	// locked for the remainder of the unit of work where the backend
	// supports it.
	Account(ctx context.Context, id string) (*model.Account, error)

	// SaveAccount persists the mutated balance aggregate.
	SaveAccount(ctx context.Context, acct *model.Account) error

	// FixingTransaction loads a transaction with its embedded orders.
	FixingTransaction(ctx context.Context, id string) (*model.FixingTransaction, error)

	InsertFixingTransaction(ctx context.Context, tx *model.FixingTransaction) error
	UpdateFixingTransaction(ctx context.Context, tx *model.FixingTransaction) error
	DeleteFixingTransaction(ctx context.Context, id string) error

	// InsertRegistryEntries appends immutable postings. Entries are never
	// updated in place.
	InsertRegistryEntries(ctx context.Context, entries []model.RegistryEntry) error

	// DeleteRegistryEntries removes all postings for one transaction in a
	// single filtered bulk operation, keyed by the back-reference every
	// entry carries. The reversal engine relies on this.
	DeleteRegistryEntries(ctx context.Context, fixingTransactionID string) error

	InsertFixingPrices(ctx context.Context, snaps []model.FixingPriceSnapshot) error
	DeleteFixingPrices(ctx context.Context, fixingTransactionID string) error
}

// ListFilter narrows and pages a read-only transaction listing.
type ListFilter struct {
	PartyID string
	Type    model.TransactionType
	Status  model.TransactionStatus
	From    time.Time
	To      time.Time
	Page    int // 1-based
	Limit   int
}

// Store is the persistence interface. RunInUnitOfWork executes fn atomically:
// if fn returns an error, every mutation made through the UnitOfWork is
// discarded. Read methods are not isolated from concurrent writes; report
// reads are advisory and tolerate eventual consistency.
type Store interface {
	RunInUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error

	// --- Accounts ---

	CreateAccount(ctx context.Context, acct *model.Account) error
	Account(ctx context.Context, id string) (*model.Account, error)

	// --- Fixing transactions (read-only) ---

	FixingTransaction(ctx context.Context, id string) (*model.FixingTransaction, error)
	FixingTransactionIDExists(ctx context.Context, id string) (bool, error)

	// ListFixingTransactions returns one page plus the unpaged total count.
	ListFixingTransactions(ctx context.Context, f ListFilter) ([]model.FixingTransaction, int, error)

	// --- Ledger reads (report path) ---

	// RegistryEntriesByParty returns the party's postings with
	// TransactionDate <= until, ascending by (TransactionDate, Reference).
	RegistryEntriesByParty(ctx context.Context, partyID string, until time.Time) ([]model.RegistryEntry, error)

	FixingPricesByTransaction(ctx context.Context, fixingTransactionID string) ([]model.FixingPriceSnapshot, error)

	// --- Settings ---

	BranchSettings(ctx context.Context) (model.BranchSettings, error)
}
