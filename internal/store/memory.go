package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AurifyAE/bullionpro-ledger/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
//
// RunInUnitOfWork works on a deep copy of the whole state and swaps it in
// only when fn succeeds, so atomicity behaves exactly like the PostgreSQL
// transaction it stands in for.
type MemoryStore struct {
	mu       sync.RWMutex
	state    memState
	settings model.BranchSettings
}

type memState struct {
	accounts map[string]*model.Account
	txs      map[string]*model.FixingTransaction
	entries  []model.RegistryEntry
	prices   []model.FixingPriceSnapshot
}

// NewMemoryStore creates a new in-memory store with default branch settings.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memState{
			accounts: make(map[string]*model.Account),
			txs:      make(map[string]*model.FixingTransaction),
		},
		settings: model.DefaultBranchSettings(),
	}
}

// SetBranchSettings overrides the report precision settings.
func (s *MemoryStore) SetBranchSettings(bs model.BranchSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = bs
}

func (st memState) clone() memState {
	cp := memState{
		accounts: make(map[string]*model.Account, len(st.accounts)),
		txs:      make(map[string]*model.FixingTransaction, len(st.txs)),
		entries:  make([]model.RegistryEntry, len(st.entries)),
		prices:   make([]model.FixingPriceSnapshot, len(st.prices)),
	}
	for id, a := range st.accounts {
		cp.accounts[id] = a.Clone()
	}
	for id, tx := range st.txs {
		cp.txs[id] = tx.Clone()
	}
	copy(cp.entries, st.entries)
	copy(cp.prices, st.prices)
	return cp
}

// RunInUnitOfWork executes fn against a private copy of the store state and
// commits the copy only if fn returns nil.
func (s *MemoryStore) RunInUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &memUOW{state: &work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, acct *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.accounts[acct.ID]; ok {
		return model.Validationf("id", "account %s already exists", acct.ID)
	}
	s.state.accounts[acct.ID] = acct.Clone()
	return nil
}

func (s *MemoryStore) Account(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.state.accounts[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "account", ID: id}
	}
	return a.Clone(), nil
}

func (s *MemoryStore) FixingTransaction(_ context.Context, id string) (*model.FixingTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.state.txs[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "fixing transaction", ID: id}
	}
	return tx.Clone(), nil
}

func (s *MemoryStore) FixingTransactionIDExists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.state.txs[id]
	return ok, nil
}

func (s *MemoryStore) ListFixingTransactions(_ context.Context, f ListFilter) ([]model.FixingTransaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []model.FixingTransaction
	for _, tx := range s.state.txs {
		if f.PartyID != "" && tx.PartyID != f.PartyID {
			continue
		}
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if f.Status != "" && tx.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && tx.VoucherDate.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && tx.VoucherDate.After(f.To) {
			continue
		}
		all = append(all, *tx.Clone())
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].VoucherDate.Equal(all[j].VoucherDate) {
			return all[i].VoucherDate.After(all[j].VoucherDate)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	page, limit := normalizePage(f.Page, f.Limit)
	start := (page - 1) * limit
	if start >= total {
		return []model.FixingTransaction{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (s *MemoryStore) RegistryEntriesByParty(_ context.Context, partyID string, until time.Time) ([]model.RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.RegistryEntry
	for _, e := range s.state.entries {
		if e.PartyID != partyID {
			continue
		}
		if !until.IsZero() && e.TransactionDate.After(until) {
			continue
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func (s *MemoryStore) FixingPricesByTransaction(_ context.Context, txID string) ([]model.FixingPriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.FixingPriceSnapshot
	for _, p := range s.state.prices {
		if p.FixingTransactionID == txID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) BranchSettings(_ context.Context) (model.BranchSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

// RegistryEntryCount returns the number of postings referencing the
// transaction. Test helper for atomicity assertions.
func (s *MemoryStore) RegistryEntryCount(fixingTransactionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.state.entries {
		if e.FixingTransactionID == fixingTransactionID {
			n++
		}
	}
	return n
}

// sortEntries orders postings ascending by (TransactionDate, Reference) for
// deterministic replay when several postings share an instant.
func sortEntries(entries []model.RegistryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].TransactionDate.Equal(entries[j].TransactionDate) {
			return entries[i].TransactionDate.Before(entries[j].TransactionDate)
		}
		return strings.Compare(entries[i].Reference, entries[j].Reference) < 0
	})
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return page, limit
}

// --- Unit of work over the working copy ---

type memUOW struct {
	state *memState
}

func (u *memUOW) Account(_ context.Context, id string) (*model.Account, error) {
	a, ok := u.state.accounts[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "account", ID: id}
	}
	return a.Clone(), nil
}

func (u *memUOW) SaveAccount(_ context.Context, acct *model.Account) error {
	u.state.accounts[acct.ID] = acct.Clone()
	return nil
}

func (u *memUOW) FixingTransaction(_ context.Context, id string) (*model.FixingTransaction, error) {
	tx, ok := u.state.txs[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "fixing transaction", ID: id}
	}
	return tx.Clone(), nil
}

func (u *memUOW) InsertFixingTransaction(_ context.Context, tx *model.FixingTransaction) error {
	if _, ok := u.state.txs[tx.ID]; ok {
		return model.Validationf("id", "fixing transaction %s already exists", tx.ID)
	}
	u.state.txs[tx.ID] = tx.Clone()
	return nil
}

func (u *memUOW) UpdateFixingTransaction(_ context.Context, tx *model.FixingTransaction) error {
	if _, ok := u.state.txs[tx.ID]; !ok {
		return &model.NotFoundError{Kind: "fixing transaction", ID: tx.ID}
	}
	u.state.txs[tx.ID] = tx.Clone()
	return nil
}

func (u *memUOW) DeleteFixingTransaction(_ context.Context, id string) error {
	if _, ok := u.state.txs[id]; !ok {
		return &model.NotFoundError{Kind: "fixing transaction", ID: id}
	}
	delete(u.state.txs, id)
	return nil
}

func (u *memUOW) InsertRegistryEntries(_ context.Context, entries []model.RegistryEntry) error {
	u.state.entries = append(u.state.entries, entries...)
	return nil
}

func (u *memUOW) DeleteRegistryEntries(_ context.Context, txID string) error {
	kept := u.state.entries[:0]
	for _, e := range u.state.entries {
		if e.FixingTransactionID != txID {
			kept = append(kept, e)
		}
	}
	u.state.entries = kept
	return nil
}

func (u *memUOW) InsertFixingPrices(_ context.Context, snaps []model.FixingPriceSnapshot) error {
	u.state.prices = append(u.state.prices, snaps...)
	return nil
}

func (u *memUOW) DeleteFixingPrices(_ context.Context, txID string) error {
	kept := u.state.prices[:0]
	for _, p := range u.state.prices {
		if p.FixingTransactionID != txID {
			kept = append(kept, p)
		}
	}
	u.state.prices = kept
	return nil
}
