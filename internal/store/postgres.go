package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/AurifyAE/bullionpro-ledger/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All weights and monetary values are stored as NUMERIC for exact decimal
// precision. Every lifecycle mutation runs inside one pgx transaction; the
// account row is locked FOR UPDATE for the duration of the unit of work.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		party_code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		gold_balance NUMERIC NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS account_cash_balances (
		account_id TEXT NOT NULL REFERENCES accounts(id),
		currency_id TEXT NOT NULL,
		amount NUMERIC NOT NULL DEFAULT 0,
		PRIMARY KEY (account_id, currency_id)
	);

	CREATE TABLE IF NOT EXISTS fixing_transactions (
		id TEXT PRIMARY KEY,
		party_id TEXT NOT NULL REFERENCES accounts(id),
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		orders JSONB NOT NULL,
		voucher_date TIMESTAMPTZ NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		updated_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS registry_entries (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		fixing_transaction_id TEXT NOT NULL,
		party_id TEXT NOT NULL,
		debit NUMERIC NOT NULL DEFAULT 0,
		credit NUMERIC NOT NULL DEFAULT 0,
		cash_debit NUMERIC NOT NULL DEFAULT 0,
		cash_credit NUMERIC NOT NULL DEFAULT 0,
		currency_id TEXT NOT NULL DEFAULT '',
		value NUMERIC NOT NULL DEFAULT 0,
		rate NUMERIC NOT NULL DEFAULT 0,
		transaction_date TIMESTAMPTZ NOT NULL,
		reference TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_registry_party_date
		ON registry_entries (party_id, transaction_date, reference);
	CREATE INDEX IF NOT EXISTS idx_registry_fixing_tx
		ON registry_entries (fixing_transaction_id);

	CREATE TABLE IF NOT EXISTS fixing_prices (
		id TEXT PRIMARY KEY,
		fixing_transaction_id TEXT NOT NULL,
		rate_in_gram NUMERIC NOT NULL DEFAULT 0,
		bid_value NUMERIC NOT NULL DEFAULT 0,
		current_bid_value NUMERIC NOT NULL DEFAULT 0,
		fixed_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fixing_prices_tx
		ON fixing_prices (fixing_transaction_id);

	CREATE TABLE IF NOT EXISTS branch_settings (
		id INT PRIMARY KEY DEFAULT 1,
		metal_decimals INT NOT NULL DEFAULT 3,
		amount_decimals INT NOT NULL DEFAULT 2
	);
	INSERT INTO branch_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so read helpers can
// run inside or outside a unit of work.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RunInUnitOfWork runs fn inside one pgx transaction. Any error from fn
// rolls the whole transaction back.
func (s *PostgresStore) RunInUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgUOW{tx: tx})
	})
}

func (s *PostgresStore) CreateAccount(ctx context.Context, acct *model.Account) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO accounts (id, party_code, name, gold_balance, created_at, updated_at)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)`,
			acct.ID, acct.PartyCode, acct.Name, acct.GoldBalance.String(),
			acct.CreatedAt, acct.UpdatedAt,
		)
		if err != nil {
			return err
		}
		return upsertCashBalances(ctx, tx, acct)
	})
}

func (s *PostgresStore) Account(ctx context.Context, id string) (*model.Account, error) {
	return loadAccount(ctx, s.pool, id, false)
}

func (s *PostgresStore) FixingTransaction(ctx context.Context, id string) (*model.FixingTransaction, error) {
	return loadTransaction(ctx, s.pool, id)
}

func (s *PostgresStore) FixingTransactionIDExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM fixing_transactions WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) ListFixingTransactions(ctx context.Context, f ListFilter) ([]model.FixingTransaction, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.PartyID != "" {
		where += ` AND party_id = ` + arg(f.PartyID)
	}
	if f.Type != "" {
		where += ` AND type = ` + arg(string(f.Type))
	}
	if f.Status != "" {
		where += ` AND status = ` + arg(string(f.Status))
	}
	if !f.From.IsZero() {
		where += ` AND voucher_date >= ` + arg(f.From)
	}
	if !f.To.IsZero() {
		where += ` AND voucher_date <= ` + arg(f.To)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM fixing_transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(f.Page, f.Limit)
	query := `SELECT id, party_id, type, status, orders, voucher_date,
	                 created_by, updated_by, created_at, updated_at
	          FROM fixing_transactions` + where +
		` ORDER BY voucher_date DESC, id ASC LIMIT ` + arg(limit) + ` OFFSET ` + arg((page-1)*limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	txs := []model.FixingTransaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		txs = append(txs, *tx)
	}
	return txs, total, rows.Err()
}

func (s *PostgresStore) RegistryEntriesByParty(ctx context.Context, partyID string, until time.Time) ([]model.RegistryEntry, error) {
	query := `SELECT id, type, fixing_transaction_id, party_id,
	                 debit::TEXT, credit::TEXT, cash_debit::TEXT, cash_credit::TEXT,
	                 currency_id, value::TEXT, rate::TEXT, transaction_date, reference
	          FROM registry_entries WHERE party_id = $1`
	args := []any{partyID}
	if !until.IsZero() {
		query += ` AND transaction_date <= $2`
		args = append(args, until)
	}
	query += ` ORDER BY transaction_date ASC, reference ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.RegistryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) FixingPricesByTransaction(ctx context.Context, txID string) ([]model.FixingPriceSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, fixing_transaction_id, rate_in_gram::TEXT, bid_value::TEXT,
		        current_bid_value::TEXT, fixed_at, status
		 FROM fixing_prices WHERE fixing_transaction_id = $1 ORDER BY fixed_at`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.FixingPriceSnapshot
	for rows.Next() {
		var p model.FixingPriceSnapshot
		var rate, bid, current string
		if err := rows.Scan(&p.ID, &p.FixingTransactionID, &rate, &bid, &current, &p.FixedAt, &p.Status); err != nil {
			return nil, err
		}
		p.RateInGram, _ = decimal.NewFromString(rate)
		p.BidValue, _ = decimal.NewFromString(bid)
		p.CurrentBidValue, _ = decimal.NewFromString(current)
		snaps = append(snaps, p)
	}
	return snaps, rows.Err()
}

func (s *PostgresStore) BranchSettings(ctx context.Context) (model.BranchSettings, error) {
	var bs model.BranchSettings
	err := s.pool.QueryRow(ctx,
		`SELECT metal_decimals, amount_decimals FROM branch_settings WHERE id = 1`).
		Scan(&bs.MetalDecimals, &bs.AmountDecimals)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultBranchSettings(), nil
	}
	return bs, err
}

// --- Unit of work over one pgx transaction ---

type pgUOW struct {
	tx pgx.Tx
}

func (u *pgUOW) Account(ctx context.Context, id string) (*model.Account, error) {
	return loadAccount(ctx, u.tx, id, true)
}

func (u *pgUOW) SaveAccount(ctx context.Context, acct *model.Account) error {
	tag, err := u.tx.Exec(ctx,
		`UPDATE accounts SET gold_balance = $2::NUMERIC, updated_at = $3 WHERE id = $1`,
		acct.ID, acct.GoldBalance.String(), time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "account", ID: acct.ID}
	}
	return upsertCashBalances(ctx, u.tx, acct)
}

func (u *pgUOW) FixingTransaction(ctx context.Context, id string) (*model.FixingTransaction, error) {
	return loadTransaction(ctx, u.tx, id)
}

func (u *pgUOW) InsertFixingTransaction(ctx context.Context, tx *model.FixingTransaction) error {
	orders, err := json.Marshal(tx.Orders)
	if err != nil {
		return err
	}
	_, err = u.tx.Exec(ctx,
		`INSERT INTO fixing_transactions
		   (id, party_id, type, status, orders, voucher_date, created_by, updated_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.ID, tx.PartyID, string(tx.Type), string(tx.Status), orders,
		tx.VoucherDate, tx.CreatedBy, tx.UpdatedBy, tx.CreatedAt, tx.UpdatedAt,
	)
	return err
}

func (u *pgUOW) UpdateFixingTransaction(ctx context.Context, tx *model.FixingTransaction) error {
	orders, err := json.Marshal(tx.Orders)
	if err != nil {
		return err
	}
	tag, err := u.tx.Exec(ctx,
		`UPDATE fixing_transactions
		 SET party_id = $2, type = $3, status = $4, orders = $5,
		     voucher_date = $6, updated_by = $7, updated_at = $8
		 WHERE id = $1`,
		tx.ID, tx.PartyID, string(tx.Type), string(tx.Status), orders,
		tx.VoucherDate, tx.UpdatedBy, tx.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "fixing transaction", ID: tx.ID}
	}
	return nil
}

func (u *pgUOW) DeleteFixingTransaction(ctx context.Context, id string) error {
	tag, err := u.tx.Exec(ctx, `DELETE FROM fixing_transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "fixing transaction", ID: id}
	}
	return nil
}

func (u *pgUOW) InsertRegistryEntries(ctx context.Context, entries []model.RegistryEntry) error {
	for i := range entries {
		e := &entries[i]
		_, err := u.tx.Exec(ctx,
			`INSERT INTO registry_entries
			   (id, type, fixing_transaction_id, party_id, debit, credit,
			    cash_debit, cash_credit, currency_id, value, rate, transaction_date, reference)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC,
			         $9, $10::NUMERIC, $11::NUMERIC, $12, $13)`,
			e.ID, string(e.Type), e.FixingTransactionID, e.PartyID,
			e.Debit.String(), e.Credit.String(), e.CashDebit.String(), e.CashCredit.String(),
			e.CurrencyID, e.Value.String(), e.Rate.String(), e.TransactionDate, e.Reference,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (u *pgUOW) DeleteRegistryEntries(ctx context.Context, txID string) error {
	_, err := u.tx.Exec(ctx, `DELETE FROM registry_entries WHERE fixing_transaction_id = $1`, txID)
	return err
}

func (u *pgUOW) InsertFixingPrices(ctx context.Context, snaps []model.FixingPriceSnapshot) error {
	for i := range snaps {
		p := &snaps[i]
		_, err := u.tx.Exec(ctx,
			`INSERT INTO fixing_prices
			   (id, fixing_transaction_id, rate_in_gram, bid_value, current_bid_value, fixed_at, status)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7)`,
			p.ID, p.FixingTransactionID,
			p.RateInGram.String(), p.BidValue.String(), p.CurrentBidValue.String(),
			p.FixedAt, p.Status,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (u *pgUOW) DeleteFixingPrices(ctx context.Context, txID string) error {
	_, err := u.tx.Exec(ctx, `DELETE FROM fixing_prices WHERE fixing_transaction_id = $1`, txID)
	return err
}

// --- Shared scan helpers ---

func loadAccount(ctx context.Context, q querier, id string, forUpdate bool) (*model.Account, error) {
	query := `SELECT id, party_code, name, gold_balance::TEXT, created_at, updated_at
	          FROM accounts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var a model.Account
	var gold string
	err := q.QueryRow(ctx, query, id).
		Scan(&a.ID, &a.PartyCode, &a.Name, &gold, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Kind: "account", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	a.GoldBalance, _ = decimal.NewFromString(gold)

	rows, err := q.Query(ctx,
		`SELECT currency_id, amount::TEXT FROM account_cash_balances
		 WHERE account_id = $1 ORDER BY currency_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var cb model.CashBalance
		var amt string
		if err := rows.Scan(&cb.CurrencyID, &amt); err != nil {
			return nil, err
		}
		cb.Amount, _ = decimal.NewFromString(amt)
		a.CashBalances = append(a.CashBalances, cb)
	}
	return &a, rows.Err()
}

func upsertCashBalances(ctx context.Context, q querier, acct *model.Account) error {
	for _, cb := range acct.CashBalances {
		_, err := q.Exec(ctx,
			`INSERT INTO account_cash_balances (account_id, currency_id, amount)
			 VALUES ($1, $2, $3::NUMERIC)
			 ON CONFLICT (account_id, currency_id) DO UPDATE SET amount = EXCLUDED.amount`,
			acct.ID, cb.CurrencyID, cb.Amount.String(),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func loadTransaction(ctx context.Context, q querier, id string) (*model.FixingTransaction, error) {
	row := q.QueryRow(ctx,
		`SELECT id, party_id, type, status, orders, voucher_date,
		        created_by, updated_by, created_at, updated_at
		 FROM fixing_transactions WHERE id = $1`, id)

	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Kind: "fixing transaction", ID: id}
	}
	return tx, err
}

func scanTransaction(row pgx.Row) (*model.FixingTransaction, error) {
	var tx model.FixingTransaction
	var typ, status string
	var orders []byte
	if err := row.Scan(&tx.ID, &tx.PartyID, &typ, &status, &orders, &tx.VoucherDate,
		&tx.CreatedBy, &tx.UpdatedBy, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return nil, err
	}
	tx.Type = model.TransactionType(typ)
	tx.Status = model.TransactionStatus(status)
	if err := json.Unmarshal(orders, &tx.Orders); err != nil {
		return nil, fmt.Errorf("decode orders for %s: %w", tx.ID, err)
	}
	return &tx, nil
}

func scanEntry(row pgx.Row) (*model.RegistryEntry, error) {
	var e model.RegistryEntry
	var typ, debit, credit, cashDebit, cashCredit, value, rate string
	if err := row.Scan(&e.ID, &typ, &e.FixingTransactionID, &e.PartyID,
		&debit, &credit, &cashDebit, &cashCredit,
		&e.CurrencyID, &value, &rate, &e.TransactionDate, &e.Reference); err != nil {
		return nil, err
	}
	e.Type = model.EntryType(typ)
	e.Debit, _ = decimal.NewFromString(debit)
	e.Credit, _ = decimal.NewFromString(credit)
	e.CashDebit, _ = decimal.NewFromString(cashDebit)
	e.CashCredit, _ = decimal.NewFromString(cashCredit)
	e.Value, _ = decimal.NewFromString(value)
	e.Rate, _ = decimal.NewFromString(rate)
	return &e, nil
}
