package coa

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// TxRepository exposes chart of accounts persistence inside a transaction.
type TxRepository interface {
	GetGroup(ctx context.Context, id int64) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	InsertGroup(ctx context.Context, g Group) (Group, error)
	UpdateGroup(ctx context.Context, g Group) error
	DeleteGroup(ctx context.Context, id int64) error
	GroupUsage(ctx context.Context, id int64) (children, accounts int, err error)
	UpsertGroup(ctx context.Context, name string, parentID *int64) (int64, bool, error)

	GetAccount(ctx context.Context, id int64) (Account, error)
	ListAccounts(ctx context.Context, activeOnly bool) ([]Account, error)
	InsertAccount(ctx context.Context, a Account) (Account, error)
	UpdateAccount(ctx context.Context, a Account) error
	DeleteAccount(ctx context.Context, id int64) error
	AccountLineCount(ctx context.Context, id int64) (int, error)
	SetAccountsActive(ctx context.Context, ids []int64, active bool) (int64, error)
	UpsertAccount(ctx context.Context, a Account) (bool, error)
	PostedBalanceAsOf(ctx context.Context, id int64, asOf time.Time) (debit, credit decimal.Decimal, err error)
}

// Repository persists chart of accounts entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn within a ledger transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("coa repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

// Store implements TxRepository over any Querier.
type Store struct {
	q db.Querier
}

// NewStore binds queries to q, usually a pgx.Tx owned by another package.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

const groupColumns = `id, name, parent_id, description, created_at, updated_at`

func scanGroup(row pgx.Row) (Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.Name, &g.ParentID, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func (s *Store) GetGroup(ctx context.Context, id int64) (Group, error) {
	g, err := scanGroup(s.q.QueryRow(ctx, `SELECT `+groupColumns+` FROM account_groups WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, shared.ErrGroupNotFound
	}
	return g, err
}

func (s *Store) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.q.Query(ctx, `SELECT `+groupColumns+` FROM account_groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *Store) InsertGroup(ctx context.Context, g Group) (Group, error) {
	err := s.q.QueryRow(ctx, `INSERT INTO account_groups (name, parent_id, description)
VALUES ($1,$2,$3) RETURNING id, created_at, updated_at`, g.Name, g.ParentID, g.Description).
		Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return Group{}, shared.ErrDuplicate
	}
	return g, err
}

func (s *Store) UpdateGroup(ctx context.Context, g Group) error {
	cmd, err := s.q.Exec(ctx, `UPDATE account_groups SET name=$2, parent_id=$3, description=$4, updated_at=NOW() WHERE id=$1`,
		g.ID, g.Name, g.ParentID, g.Description)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrGroupNotFound
	}
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	cmd, err := s.q.Exec(ctx, `DELETE FROM account_groups WHERE id=$1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.ErrGroupInUse
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrGroupNotFound
	}
	return nil
}

func (s *Store) GroupUsage(ctx context.Context, id int64) (int, int, error) {
	var children, accounts int
	err := s.q.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM account_groups WHERE parent_id=$1),
  (SELECT COUNT(*) FROM accounts WHERE group_id=$1)`, id).Scan(&children, &accounts)
	return children, accounts, err
}

// UpsertGroup creates or re-parents the group with the given name and reports
// whether a row was inserted.
func (s *Store) UpsertGroup(ctx context.Context, name string, parentID *int64) (int64, bool, error) {
	var id int64
	var inserted bool
	err := s.q.QueryRow(ctx, `INSERT INTO account_groups (name, parent_id) VALUES ($1,$2)
ON CONFLICT (name) DO UPDATE SET parent_id=EXCLUDED.parent_id, updated_at=NOW()
RETURNING id, (xmax = 0)`, name, parentID).Scan(&id, &inserted)
	return id, inserted, err
}

const accountColumns = `id, number, name, description, group_id, type, pl_section, currency, is_active,
allow_direct_posting, is_control_account, control_party_type, current_balance, balance_last_updated, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Number, &a.Name, &a.Description, &a.GroupID, &a.Type, &a.PLSection, &a.Currency, &a.IsActive,
		&a.AllowDirectPosting, &a.IsControlAccount, &a.ControlPartyType, &a.CurrentBalance, &a.BalanceLastUpdated, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) GetAccount(ctx context.Context, id int64) (Account, error) {
	a, err := scanAccount(s.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrAccountNotFound
	}
	return a, err
}

// GetAccountForUpdate locks the account row until the transaction ends.
func (s *Store) GetAccountForUpdate(ctx context.Context, id int64) (Account, error) {
	a, err := scanAccount(s.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrAccountNotFound
	}
	return a, err
}

// GetAccounts loads the accounts with the supplied ids keyed by id.
func (s *Store) GetAccounts(ctx context.Context, ids []int64) (map[int64]Account, error) {
	rows, err := s.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (s *Store) ListAccounts(ctx context.Context, activeOnly bool) ([]Account, error) {
	rows, err := s.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE ($1 = false OR is_active) ORDER BY number`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) InsertAccount(ctx context.Context, a Account) (Account, error) {
	err := s.q.QueryRow(ctx, `INSERT INTO accounts (number, name, description, group_id, type, pl_section, currency, is_active,
allow_direct_posting, is_control_account, control_party_type)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, current_balance, created_at, updated_at`,
		a.Number, a.Name, a.Description, a.GroupID, a.Type, a.PLSection, a.Currency, a.IsActive,
		a.AllowDirectPosting, a.IsControlAccount, a.ControlPartyType).
		Scan(&a.ID, &a.CurrentBalance, &a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return Account{}, shared.ErrDuplicate
	}
	return a, err
}

func (s *Store) UpdateAccount(ctx context.Context, a Account) error {
	cmd, err := s.q.Exec(ctx, `UPDATE accounts SET number=$2, name=$3, description=$4, group_id=$5, type=$6, pl_section=$7,
currency=$8, is_active=$9, allow_direct_posting=$10, is_control_account=$11, control_party_type=$12, updated_at=NOW()
WHERE id=$1`, a.ID, a.Number, a.Name, a.Description, a.GroupID, a.Type, a.PLSection, a.Currency, a.IsActive,
		a.AllowDirectPosting, a.IsControlAccount, a.ControlPartyType)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	cmd, err := s.q.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.ErrAccountInUse
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (s *Store) AccountLineCount(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM voucher_lines WHERE account_id=$1`, id).Scan(&n)
	return n, err
}

func (s *Store) SetAccountsActive(ctx context.Context, ids []int64, active bool) (int64, error) {
	cmd, err := s.q.Exec(ctx, `UPDATE accounts SET is_active=$2, updated_at=NOW() WHERE id = ANY($1) AND is_active <> $2`, ids, active)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// UpsertAccount creates or refreshes an account keyed by number. The cached
// balance is never touched.
func (s *Store) UpsertAccount(ctx context.Context, a Account) (bool, error) {
	var inserted bool
	err := s.q.QueryRow(ctx, `INSERT INTO accounts (number, name, description, group_id, type, pl_section, currency, is_active,
allow_direct_posting, is_control_account, control_party_type)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (number) DO UPDATE SET name=EXCLUDED.name, description=EXCLUDED.description, group_id=EXCLUDED.group_id,
  type=EXCLUDED.type, pl_section=EXCLUDED.pl_section, currency=EXCLUDED.currency, is_active=EXCLUDED.is_active,
  allow_direct_posting=EXCLUDED.allow_direct_posting, is_control_account=EXCLUDED.is_control_account,
  control_party_type=EXCLUDED.control_party_type, updated_at=NOW()
RETURNING (xmax = 0)`,
		a.Number, a.Name, a.Description, a.GroupID, a.Type, a.PLSection, a.Currency, a.IsActive,
		a.AllowDirectPosting, a.IsControlAccount, a.ControlPartyType).Scan(&inserted)
	return inserted, err
}

func (s *Store) PostedBalanceAsOf(ctx context.Context, id int64, asOf time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	err := s.q.QueryRow(ctx, `SELECT
  COALESCE(SUM(l.amount) FILTER (WHERE l.dr_cr='DEBIT'), 0),
  COALESCE(SUM(l.amount) FILTER (WHERE l.dr_cr='CREDIT'), 0)
FROM voucher_lines l JOIN vouchers v ON v.id = l.voucher_id
WHERE l.account_id=$1 AND v.status='POSTED' AND v.date <= $2`, id, asOf).Scan(&debit, &credit)
	return debit, credit, err
}

// ApplyBalanceDelta adds delta to the cached balance. Only balance
// propagation calls it, with the account row already locked.
func (s *Store) ApplyBalanceDelta(ctx context.Context, id int64, delta decimal.Decimal, at time.Time) error {
	cmd, err := s.q.Exec(ctx, `UPDATE accounts SET current_balance = current_balance + $2, balance_last_updated=$3 WHERE id=$1`,
		id, delta, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}
