// Package fixing implements the fixing-transaction lifecycle: create,
// update, delete, cancel, restore and permanent delete, each executed as
// one atomic unit of work combining the reversal engine, the posting
// engine, registry writes and the account aggregate save.
package fixing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AurifyAE/bullionpro-ledger/internal/ident"
	"github.com/AurifyAE/bullionpro-ledger/internal/lock"
	"github.com/AurifyAE/bullionpro-ledger/internal/metrics"
	"github.com/AurifyAE/bullionpro-ledger/internal/model"
	"github.com/AurifyAE/bullionpro-ledger/internal/posting"
	"github.com/AurifyAE/bullionpro-ledger/internal/store"
)

// Service orchestrates the transaction lifecycle. Concurrent operations
// against the same account are serialized by a per-account lock held across
// the whole reverse-then-repost sequence; the store's unit of work supplies
// atomicity underneath it.
type Service struct {
	store store.Store
	ids   ident.Generator
	locks *lock.Keyed
	wsHub *WSHub

	// reverseOnCancel controls whether cancel reverses balances the way
	// delete does, or is a pure status flip. The back office historically
	// treated cancel as presentation-only; the behavior is explicit here
	// rather than guessed.
	reverseOnCancel bool
}

// Option configures a Service.
type Option func(*Service)

// WithReverseOnCancel makes cancel reverse ledger postings (and restore
// re-post them) instead of only flipping the status flag.
func WithReverseOnCancel(on bool) Option {
	return func(s *Service) { s.reverseOnCancel = on }
}

// WithHub attaches a WebSocket hub for post-commit balance broadcasts.
func WithHub(hub *WSHub) Option {
	return func(s *Service) { s.wsHub = hub }
}

// NewService creates the lifecycle service.
func NewService(st store.Store, ids ident.Generator, opts ...Option) *Service {
	s := &Service{
		store: st,
		ids:   ids,
		locks: lock.NewKeyed(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest is the payload for creating a fixing transaction.
type CreateRequest struct {
	PartyID     string                `json:"party_id"`
	Type        model.TransactionType `json:"type"`
	Orders      []model.Order         `json:"orders"`
	VoucherDate time.Time             `json:"voucher_date"`
}

// UpdateRequest replaces a transaction's orders and type. The party is
// fixed at creation; moving a transaction between accounts is a delete
// plus a create.
type UpdateRequest struct {
	Type        model.TransactionType `json:"type"`
	Orders      []model.Order         `json:"orders"`
	VoucherDate time.Time             `json:"voucher_date"`
}

// validateOrders applies the eager field checks shared by create and
// update, before any write happens.
func validateOrders(typ model.TransactionType, orders []model.Order) error {
	if !typ.Valid() {
		return model.Validationf("type", "must be PURCHASE or SALE")
	}
	if len(orders) == 0 {
		return model.Validationf("orders", "at least one order is required")
	}
	for i := range orders {
		o := &orders[i]
		if _, ok := o.ResolvedWeight(); !ok {
			return model.Validationf("orders", "order %d has no positive weight (pure, quantity or gross)", i)
		}
		if !o.Price.IsPositive() {
			return model.Validationf("orders", "order %d price must be positive", i)
		}
		if o.CurrencyID == "" {
			return model.Validationf("orders", "order %d is missing a currency", i)
		}
	}
	return nil
}

// Create validates the payload, posts it and persists the transaction,
// its registry entries and rate snapshots atomically.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID string) (*model.FixingTransaction, error) {
	if req.PartyID == "" {
		return nil, s.fail("create", model.Validationf("party_id", "is required"))
	}
	if err := validateOrders(req.Type, req.Orders); err != nil {
		return nil, s.fail("create", err)
	}

	id, err := s.ids.Next(ctx, req.Type.IDPrefix())
	if err != nil {
		if errors.Is(err, ident.ErrExhausted) {
			err = model.ErrConflict
		}
		return nil, s.fail("create", err)
	}

	now := time.Now().UTC()
	voucherDate := req.VoucherDate
	if voucherDate.IsZero() {
		voucherDate = now
	}
	tx := &model.FixingTransaction{
		ID:          id,
		PartyID:     req.PartyID,
		Type:        req.Type,
		Orders:      req.Orders,
		Status:      model.StatusActive,
		VoucherDate: voucherDate,
		CreatedBy:   actorID,
		UpdatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	start := time.Now()
	s.locks.Lock(req.PartyID)
	defer s.locks.Unlock(req.PartyID)

	var result *posting.Result
	err = s.store.RunInUnitOfWork(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		acct, err := uow.Account(ctx, req.PartyID)
		if err != nil {
			return err
		}

		result, err = posting.Post(tx, now)
		if err != nil {
			return err
		}

		if err := uow.InsertRegistryEntries(ctx, result.Entries); err != nil {
			return err
		}
		if err := uow.InsertFixingPrices(ctx, result.Snapshots); err != nil {
			return err
		}
		if err := uow.InsertFixingTransaction(ctx, tx); err != nil {
			return err
		}

		result.ApplyTo(acct)
		return uow.SaveAccount(ctx, acct)
	})
	if err != nil {
		return nil, s.fail("create", err)
	}

	s.committed("create", start, tx, result.Entries)
	return tx, nil
}

// Update reverses the stored transaction's postings, deletes its registry
// rows and snapshots, then posts the new state, all in one unit of work.
// A no-op update leaves balances and ledger totals unchanged.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest, actorID string) (*model.FixingTransaction, error) {
	if err := validateOrders(req.Type, req.Orders); err != nil {
		return nil, s.fail("update", err)
	}

	// The party lock key is only known after loading the transaction.
	existing, err := s.store.FixingTransaction(ctx, id)
	if err != nil {
		return nil, s.fail("update", err)
	}

	start := time.Now()
	s.locks.Lock(existing.PartyID)
	defer s.locks.Unlock(existing.PartyID)

	now := time.Now().UTC()
	var updated *model.FixingTransaction
	var result *posting.Result
	err = s.store.RunInUnitOfWork(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		// Reload inside the unit of work; the pre-lock read only picked
		// the lock key.
		old, err := uow.FixingTransaction(ctx, id)
		if err != nil {
			return err
		}
		acct, err := uow.Account(ctx, old.PartyID)
		if err != nil {
			return err
		}

		reversal, err := posting.Reverse(old)
		if err != nil {
			return err
		}
		metrics.ReversalsTotal.WithLabelValues("update").Inc()
		reversal.ApplyTo(acct)

		if err := uow.DeleteRegistryEntries(ctx, id); err != nil {
			return err
		}
		if err := uow.DeleteFixingPrices(ctx, id); err != nil {
			return err
		}

		updated = old.Clone()
		updated.Type = req.Type
		updated.Orders = req.Orders
		if !req.VoucherDate.IsZero() {
			updated.VoucherDate = req.VoucherDate
		}
		updated.UpdatedBy = actorID
		updated.UpdatedAt = now

		result, err = posting.Post(updated, now)
		if err != nil {
			return err
		}
		if err := uow.InsertRegistryEntries(ctx, result.Entries); err != nil {
			return err
		}
		if err := uow.InsertFixingPrices(ctx, result.Snapshots); err != nil {
			return err
		}
		result.ApplyTo(acct)

		if err := uow.SaveAccount(ctx, acct); err != nil {
			return err
		}
		return uow.UpdateFixingTransaction(ctx, updated)
	})
	if err != nil {
		return nil, s.fail("update", err)
	}

	s.committed("update", start, updated, result.Entries)
	return updated, nil
}

// Delete reverses the transaction's postings, removes all of its registry
// entries and snapshots in filtered bulk deletes, then removes the
// transaction itself. Hard and irreversible.
func (s *Service) Delete(ctx context.Context, id string, actorID string) error {
	return s.hardDelete(ctx, "delete", id)
}

// PermanentDelete removes a transaction for good. A transaction cancelled
// with reversal already has no postings applied, so only its row is
// removed; otherwise this follows the same reverse-then-delete path as
// Delete.
func (s *Service) PermanentDelete(ctx context.Context, id string) error {
	return s.hardDelete(ctx, "permanent_delete", id)
}

func (s *Service) hardDelete(ctx context.Context, op, id string) error {
	existing, err := s.store.FixingTransaction(ctx, id)
	if err != nil {
		return s.fail(op, err)
	}

	start := time.Now()
	s.locks.Lock(existing.PartyID)
	defer s.locks.Unlock(existing.PartyID)

	var tx *model.FixingTransaction
	err = s.store.RunInUnitOfWork(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		old, err := uow.FixingTransaction(ctx, id)
		if err != nil {
			return err
		}
		tx = old

		// A reversed-on-cancel transaction holds no postings; nothing to
		// undo before dropping the row.
		if !(old.Status == model.StatusCancelled && s.reverseOnCancel) {
			acct, err := uow.Account(ctx, old.PartyID)
			if err != nil {
				return err
			}
			reversal, err := posting.Reverse(old)
			if err != nil {
				return err
			}
			metrics.ReversalsTotal.WithLabelValues(op).Inc()
			reversal.ApplyTo(acct)
			if err := uow.SaveAccount(ctx, acct); err != nil {
				return err
			}
		}

		if err := uow.DeleteRegistryEntries(ctx, id); err != nil {
			return err
		}
		if err := uow.DeleteFixingPrices(ctx, id); err != nil {
			return err
		}
		return uow.DeleteFixingTransaction(ctx, id)
	})
	if err != nil {
		return s.fail(op, err)
	}

	s.committed(op, start, tx, nil)
	return nil
}

// Cancel marks the transaction cancelled. With reverse-on-cancel enabled it
// also undoes the postings exactly as delete does, leaving the row behind
// as a restorable tombstone; otherwise it is a pure status flip.
func (s *Service) Cancel(ctx context.Context, id string, actorID string) error {
	existing, err := s.store.FixingTransaction(ctx, id)
	if err != nil {
		return s.fail("cancel", err)
	}

	start := time.Now()
	s.locks.Lock(existing.PartyID)
	defer s.locks.Unlock(existing.PartyID)

	var tx *model.FixingTransaction
	err = s.store.RunInUnitOfWork(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		old, err := uow.FixingTransaction(ctx, id)
		if err != nil {
			return err
		}
		if old.Status == model.StatusCancelled {
			return model.Validationf("status", "transaction %s is already cancelled", id)
		}

		if s.reverseOnCancel {
			acct, err := uow.Account(ctx, old.PartyID)
			if err != nil {
				return err
			}
			reversal, err := posting.Reverse(old)
			if err != nil {
				return err
			}
			metrics.ReversalsTotal.WithLabelValues("cancel").Inc()
			reversal.ApplyTo(acct)
			if err := uow.SaveAccount(ctx, acct); err != nil {
				return err
			}
			if err := uow.DeleteRegistryEntries(ctx, id); err != nil {
				return err
			}
			if err := uow.DeleteFixingPrices(ctx, id); err != nil {
				return err
			}
		}

		old.Status = model.StatusCancelled
		old.UpdatedBy = actorID
		old.UpdatedAt = time.Now().UTC()
		tx = old
		return uow.UpdateFixingTransaction(ctx, old)
	})
	if err != nil {
		return s.fail("cancel", err)
	}

	s.committed("cancel", start, tx, nil)
	return nil
}

// Restore flips a cancelled transaction back to active. With
// reverse-on-cancel enabled it re-posts the stored orders so balances and
// registry rows come back with the status.
func (s *Service) Restore(ctx context.Context, id string, actorID string) error {
	existing, err := s.store.FixingTransaction(ctx, id)
	if err != nil {
		return s.fail("restore", err)
	}

	start := time.Now()
	s.locks.Lock(existing.PartyID)
	defer s.locks.Unlock(existing.PartyID)

	now := time.Now().UTC()
	var tx *model.FixingTransaction
	var entries []model.RegistryEntry
	err = s.store.RunInUnitOfWork(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		old, err := uow.FixingTransaction(ctx, id)
		if err != nil {
			return err
		}
		if old.Status != model.StatusCancelled {
			return model.Validationf("status", "transaction %s is not cancelled", id)
		}

		old.Status = model.StatusActive
		old.UpdatedBy = actorID
		old.UpdatedAt = now

		if s.reverseOnCancel {
			acct, err := uow.Account(ctx, old.PartyID)
			if err != nil {
				return err
			}
			result, err := posting.Post(old, now)
			if err != nil {
				return err
			}
			if err := uow.InsertRegistryEntries(ctx, result.Entries); err != nil {
				return err
			}
			if err := uow.InsertFixingPrices(ctx, result.Snapshots); err != nil {
				return err
			}
			result.ApplyTo(acct)
			if err := uow.SaveAccount(ctx, acct); err != nil {
				return err
			}
			entries = result.Entries
		}

		tx = old
		return uow.UpdateFixingTransaction(ctx, old)
	})
	if err != nil {
		return s.fail("restore", err)
	}

	s.committed("restore", start, tx, entries)
	return nil
}

// Get returns a transaction by id, read-only.
func (s *Service) Get(ctx context.Context, id string) (*model.FixingTransaction, error) {
	return s.store.FixingTransaction(ctx, id)
}

// List returns one page of transactions plus the unpaged total. Read-only,
// no ledger side effects.
func (s *Service) List(ctx context.Context, f store.ListFilter) ([]model.FixingTransaction, int, error) {
	return s.store.ListFixingTransactions(ctx, f)
}

// fail records the aborted operation and returns err unchanged: the core
// never degrades a posting to best-effort.
func (s *Service) fail(op string, err error) error {
	metrics.LifecycleFailures.WithLabelValues(op, failureKind(err)).Inc()
	slog.Error("fixing lifecycle aborted", "op", op, "err", err)
	return err
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrConsistency):
		return "consistency"
	default:
		return "store"
	}
}

// committed records metrics and broadcasts the post-commit balance state.
func (s *Service) committed(op string, start time.Time, tx *model.FixingTransaction, entries []model.RegistryEntry) {
	metrics.LifecycleLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	for i := range entries {
		metrics.PostingsTotal.WithLabelValues(string(entries[i].Type)).Inc()
	}

	slog.Info("fixing transaction "+op,
		"id", tx.ID,
		"party", tx.PartyID,
		"type", string(tx.Type),
		"status", string(tx.Status),
		"orders", len(tx.Orders),
	)

	if s.wsHub != nil {
		msg := WSMessage{
			Type:          "fixing_" + op,
			TransactionID: tx.ID,
			PartyID:       tx.PartyID,
			Status:        string(tx.Status),
		}
		if acct, err := s.store.Account(context.Background(), tx.PartyID); err == nil {
			msg.GoldBalance = acct.GoldBalance.String()
		}
		s.wsHub.Broadcast(msg)
	}
}
