package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AurifyAE/bullionpro-ledger/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot report-path reads: account aggregates and branch
// settings. Lifecycle mutations go to the primary and invalidate whatever
// accounts and transactions the unit of work touched after commit. Report
// reads tolerate the resulting brief staleness.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

// RunInUnitOfWork delegates to the primary, recording which accounts and
// transactions fn touches so their cache keys can be dropped after a
// successful commit. Invalidation never runs on abort: the cache still
// matches the unrolled-back state.
func (s *CachedStore) RunInUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	rec := &recordingUOW{}
	err := s.primary.RunInUnitOfWork(ctx, func(ctx context.Context, uow UnitOfWork) error {
		rec.UnitOfWork = uow
		return fn(ctx, rec)
	})
	if err != nil {
		return err
	}
	for _, id := range rec.accounts {
		s.rdb.Del(ctx, accountKey(id))
	}
	for _, id := range rec.transactions {
		s.rdb.Del(ctx, transactionKey(id))
	}
	return nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAccount(ctx context.Context, acct *model.Account) error {
	if err := s.primary.CreateAccount(ctx, acct); err != nil {
		return err
	}
	s.cacheJSON(ctx, accountKey(acct.ID), acct)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) Account(ctx context.Context, id string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.Account(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, accountKey(id), a)
	return a, nil
}

func (s *CachedStore) FixingTransaction(ctx context.Context, id string) (*model.FixingTransaction, error) {
	data, err := s.rdb.Get(ctx, transactionKey(id)).Bytes()
	if err == nil {
		var tx model.FixingTransaction
		if json.Unmarshal(data, &tx) == nil {
			return &tx, nil
		}
	}

	tx, err := s.primary.FixingTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, transactionKey(id), tx)
	return tx, nil
}

func (s *CachedStore) BranchSettings(ctx context.Context) (model.BranchSettings, error) {
	data, err := s.rdb.Get(ctx, settingsKey()).Bytes()
	if err == nil {
		var bs model.BranchSettings
		if json.Unmarshal(data, &bs) == nil {
			return bs, nil
		}
	}

	bs, err := s.primary.BranchSettings(ctx)
	if err != nil {
		return model.BranchSettings{}, err
	}
	s.cacheJSON(ctx, settingsKey(), bs)
	return bs, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) FixingTransactionIDExists(ctx context.Context, id string) (bool, error) {
	return s.primary.FixingTransactionIDExists(ctx, id)
}

func (s *CachedStore) ListFixingTransactions(ctx context.Context, f ListFilter) ([]model.FixingTransaction, int, error) {
	return s.primary.ListFixingTransactions(ctx, f)
}

func (s *CachedStore) RegistryEntriesByParty(ctx context.Context, partyID string, until time.Time) ([]model.RegistryEntry, error) {
	return s.primary.RegistryEntriesByParty(ctx, partyID, until)
}

func (s *CachedStore) FixingPricesByTransaction(ctx context.Context, txID string) ([]model.FixingPriceSnapshot, error) {
	return s.primary.FixingPricesByTransaction(ctx, txID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func accountKey(id string) string     { return fmt.Sprintf("account:%s", id) }
func transactionKey(id string) string { return fmt.Sprintf("fixing:%s", id) }
func settingsKey() string             { return "branch:settings" }

// recordingUOW forwards to the real unit of work while noting which
// aggregates were written.
type recordingUOW struct {
	UnitOfWork
	accounts     []string
	transactions []string
}

func (r *recordingUOW) SaveAccount(ctx context.Context, acct *model.Account) error {
	r.accounts = append(r.accounts, acct.ID)
	return r.UnitOfWork.SaveAccount(ctx, acct)
}

func (r *recordingUOW) InsertFixingTransaction(ctx context.Context, tx *model.FixingTransaction) error {
	r.transactions = append(r.transactions, tx.ID)
	return r.UnitOfWork.InsertFixingTransaction(ctx, tx)
}

func (r *recordingUOW) UpdateFixingTransaction(ctx context.Context, tx *model.FixingTransaction) error {
	r.transactions = append(r.transactions, tx.ID)
	return r.UnitOfWork.UpdateFixingTransaction(ctx, tx)
}

func (r *recordingUOW) DeleteFixingTransaction(ctx context.Context, id string) error {
	r.transactions = append(r.transactions, id)
	return r.UnitOfWork.DeleteFixingTransaction(ctx, id)
}
