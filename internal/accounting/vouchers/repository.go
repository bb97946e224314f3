package vouchers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/parties"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// TxRepository exposes the voucher engine's persistence inside one
// transaction, including the reads it needs from neighbouring packages.
type TxRepository interface {
	sequence.Store

	GetVoucher(ctx context.Context, id int64) (Voucher, error)
	GetVoucherForUpdate(ctx context.Context, id int64) (Voucher, error)
	ListVouchers(ctx context.Context, filter ListFilter) ([]Voucher, error)
	InsertVoucher(ctx context.Context, v Voucher) (Voucher, error)
	UpdateVoucher(ctx context.Context, v Voucher) error
	ReplaceLines(ctx context.Context, voucherID int64, lines []Line) ([]Line, error)
	DeleteVoucher(ctx context.Context, id int64) error
	UpdateWorkflow(ctx context.Context, id int64, status Status, number *string) error
	InsertApproval(ctx context.Context, a Approval) (Approval, error)
	ListApprovals(ctx context.Context, voucherID int64) ([]Approval, error)

	GetAccounts(ctx context.Context, ids []int64) (map[int64]coa.Account, error)
	GetPeriod(ctx context.Context, id int64) (periods.Period, error)
	FindPeriodByDate(ctx context.Context, date time.Time) (periods.Period, error)
	GetParty(ctx context.Context, id int64) (parties.Party, error)
}

// Repository persists vouchers.
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
		return errors.New("voucher repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

// Store implements TxRepository over any Querier.
type Store struct {
	*sequence.PGStore
	q        db.Querier
	accounts *coa.Store
	periods  *periods.Store
	parties  *parties.Store
}

// NewStore binds queries to q.
func NewStore(q db.Querier) *Store {
	return &Store{
		PGStore:  sequence.NewPGStore(q),
		q:        q,
		accounts: coa.NewStore(q),
		periods:  periods.NewStore(q),
		parties:  parties.NewStore(q),
	}
}

const voucherColumns = `id, voucher_number, voucher_type, status, date, effective_date, party_id, period_id, narration,
reference, balances_updated, reversal_of, created_by, created_at, updated_at, posted_at`

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	err := row.Scan(&v.ID, &v.Number, &v.Type, &v.Status, &v.Date, &v.EffectiveDate, &v.PartyID, &v.PeriodID, &v.Narration,
		&v.Reference, &v.BalancesUpdated, &v.ReversalOf, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt, &v.PostedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Voucher{}, shared.ErrVoucherNotFound
	}
	return v, err
}

func (s *Store) GetVoucher(ctx context.Context, id int64) (Voucher, error) {
	return s.withLines(ctx, s.q.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id=$1`, id))
}

// GetVoucherForUpdate locks the voucher header until the transaction ends.
func (s *Store) GetVoucherForUpdate(ctx context.Context, id int64) (Voucher, error) {
	return s.withLines(ctx, s.q.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id=$1 FOR UPDATE`, id))
}

func (s *Store) withLines(ctx context.Context, row pgx.Row) (Voucher, error) {
	v, err := scanVoucher(row)
	if err != nil {
		return Voucher{}, err
	}
	v.Lines, err = s.lines(ctx, v.ID)
	return v, err
}

func (s *Store) lines(ctx context.Context, voucherID int64) ([]Line, error) {
	rows, err := s.q.Query(ctx, `SELECT id, voucher_id, account_id, dr_cr, amount, narration
FROM voucher_lines WHERE voucher_id=$1 ORDER BY id`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.VoucherID, &l.AccountID, &l.DrCr, &l.Amount, &l.Narration); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListVouchers returns headers only, newest first.
func (s *Store) ListVouchers(ctx context.Context, f ListFilter) ([]Voucher, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(f.Status))
	}
	if f.Type != "" {
		where = append(where, "voucher_type = "+arg(f.Type))
	}
	if f.From != nil {
		where = append(where, "date >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "date <= "+arg(*f.To))
	}
	query := `SELECT ` + voucherColumns + ` FROM vouchers`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += ` ORDER BY date DESC, id DESC LIMIT ` + arg(limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	err := s.q.QueryRow(ctx, `INSERT INTO vouchers (voucher_number, voucher_type, status, date, effective_date, party_id, period_id,
narration, reference, reversal_of, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at, updated_at`,
		v.Number, v.Type, v.Status, v.Date, v.EffectiveDate, v.PartyID, v.PeriodID, v.Narration, v.Reference, v.ReversalOf, v.CreatedBy).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Voucher{}, shared.ErrDuplicate
		}
		return Voucher{}, err
	}
	v.Lines, err = s.ReplaceLines(ctx, v.ID, v.Lines)
	return v, err
}

func (s *Store) UpdateVoucher(ctx context.Context, v Voucher) error {
	cmd, err := s.q.Exec(ctx, `UPDATE vouchers SET voucher_type=$2, date=$3, effective_date=$4, party_id=$5, period_id=$6,
narration=$7, reference=$8, updated_at=NOW() WHERE id=$1`,
		v.ID, v.Type, v.Date, v.EffectiveDate, v.PartyID, v.PeriodID, v.Narration, v.Reference)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrVoucherNotFound
	}
	return nil
}

// ReplaceLines deletes the voucher's lines and inserts lines in order.
func (s *Store) ReplaceLines(ctx context.Context, voucherID int64, lines []Line) ([]Line, error) {
	if _, err := s.q.Exec(ctx, `DELETE FROM voucher_lines WHERE voucher_id=$1`, voucherID); err != nil {
		return nil, err
	}
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		l.VoucherID = voucherID
		if err := s.q.QueryRow(ctx, `INSERT INTO voucher_lines (voucher_id, account_id, dr_cr, amount, narration)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, voucherID, l.AccountID, l.DrCr, l.Amount, l.Narration).Scan(&l.ID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Store) DeleteVoucher(ctx context.Context, id int64) error {
	cmd, err := s.q.Exec(ctx, `DELETE FROM vouchers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrVoucherNotFound
	}
	return nil
}

// UpdateWorkflow moves the voucher to status and records its number. The
// number column is write-once.
func (s *Store) UpdateWorkflow(ctx context.Context, id int64, status Status, number *string) error {
	cmd, err := s.q.Exec(ctx, `UPDATE vouchers SET status=$2, voucher_number=COALESCE(voucher_number, $3),
posted_at=CASE WHEN $2='POSTED' THEN NOW() ELSE posted_at END, updated_at=NOW() WHERE id=$1`, id, status, number)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrVoucherNotFound
	}
	return nil
}

func (s *Store) InsertApproval(ctx context.Context, a Approval) (Approval, error) {
	err := s.q.QueryRow(ctx, `INSERT INTO voucher_approvals (voucher_id, user_id, action_type, from_status, to_status, comments)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`, a.VoucherID, a.UserID, a.Action, a.FromStatus, a.ToStatus, a.Comments).
		Scan(&a.ID, &a.CreatedAt)
	return a, err
}

func (s *Store) ListApprovals(ctx context.Context, voucherID int64) ([]Approval, error) {
	rows, err := s.q.Query(ctx, `SELECT id, voucher_id, user_id, action_type, from_status, to_status, comments, created_at
FROM voucher_approvals WHERE voucher_id=$1 ORDER BY created_at, id`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Approval
	for rows.Next() {
		var a Approval
		if err := rows.Scan(&a.ID, &a.VoucherID, &a.UserID, &a.Action, &a.FromStatus, &a.ToStatus, &a.Comments, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkBalancesUpdated sets the propagation flag once. It reports false when
// the flag was already set.
func (s *Store) MarkBalancesUpdated(ctx context.Context, id int64) (bool, error) {
	cmd, err := s.q.Exec(ctx, `UPDATE vouchers SET balances_updated=true, updated_at=NOW() WHERE id=$1 AND NOT balances_updated`, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// ClearBalancesUpdated resets a flag set on a voucher that is not POSTED.
func (s *Store) ClearBalancesUpdated(ctx context.Context, id int64) error {
	_, err := s.q.Exec(ctx, `UPDATE vouchers SET balances_updated=false, updated_at=NOW() WHERE id=$1 AND balances_updated`, id)
	return err
}

// ListUnpropagated returns POSTED vouchers still waiting for balance
// propagation that were posted before cutoff.
func (s *Store) ListUnpropagated(ctx context.Context, cutoff time.Time) ([]Voucher, error) {
	rows, err := s.q.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers
WHERE status='POSTED' AND NOT balances_updated AND COALESCE(posted_at, updated_at) < $1 ORDER BY id`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) GetAccounts(ctx context.Context, ids []int64) (map[int64]coa.Account, error) {
	return s.accounts.GetAccounts(ctx, ids)
}

func (s *Store) GetPeriod(ctx context.Context, id int64) (periods.Period, error) {
	return s.periods.GetPeriod(ctx, id)
}

func (s *Store) FindPeriodByDate(ctx context.Context, date time.Time) (periods.Period, error) {
	return s.periods.FindPeriodByDate(ctx, date)
}

func (s *Store) GetParty(ctx context.Context, id int64) (parties.Party, error) {
	return s.parties.GetParty(ctx, id)
}
