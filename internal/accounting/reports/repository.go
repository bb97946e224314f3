package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Reader loads the posted history reports are derived from.
type Reader interface {
	ListGroups(ctx context.Context) ([]coa.Group, error)
	ListAccounts(ctx context.Context, activeOnly bool) ([]coa.Account, error)
	GetAccount(ctx context.Context, id int64) (coa.Account, error)
	// PostedTotals sums posted lines per account dated within [from, to];
	// a nil from means since the beginning.
	PostedTotals(ctx context.Context, from *time.Time, to time.Time) (map[int64]Totals, error)
	// OpeningTotals sums posted lines for the account dated strictly before date.
	OpeningTotals(ctx context.Context, accountID int64, partyID *int64, before time.Time) (Totals, error)
	LedgerLines(ctx context.Context, accountID int64, partyID *int64, start, end *time.Time) ([]PostedLine, error)
	// PropagatedTotals sums lines of posted vouchers already applied to
	// account balances.
	PropagatedTotals(ctx context.Context) (map[int64]Totals, error)
}

// PGReader implements Reader on PostgreSQL.
type PGReader struct {
	q        db.Querier
	accounts *coa.Store
}

// NewPGReader constructs PGReader.
func NewPGReader(q db.Querier) *PGReader {
	return &PGReader{q: q, accounts: coa.NewStore(q)}
}

// Snapshot runs fn in a read-only REPEATABLE READ transaction when the
// reader sits on a pool; inside an existing transaction fn reuses it.
func (r *PGReader) Snapshot(ctx context.Context, fn func(context.Context, Reader) error) error {
	pool, ok := r.q.(*pgxpool.Pool)
	if !ok {
		return fn(ctx, r)
	}
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return db.WithTxOptions(ctx, pool, opts, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, NewPGReader(tx))
	})
}

func (r *PGReader) ListGroups(ctx context.Context) ([]coa.Group, error) {
	return r.accounts.ListGroups(ctx)
}

func (r *PGReader) ListAccounts(ctx context.Context, activeOnly bool) ([]coa.Account, error) {
	return r.accounts.ListAccounts(ctx, activeOnly)
}

func (r *PGReader) GetAccount(ctx context.Context, id int64) (coa.Account, error) {
	return r.accounts.GetAccount(ctx, id)
}

const sumColumns = `COALESCE(SUM(l.amount) FILTER (WHERE l.dr_cr='DEBIT'), 0),
  COALESCE(SUM(l.amount) FILTER (WHERE l.dr_cr='CREDIT'), 0)`

func (r *PGReader) PostedTotals(ctx context.Context, from *time.Time, to time.Time) (map[int64]Totals, error) {
	rows, err := r.q.Query(ctx, `SELECT l.account_id, `+sumColumns+`
FROM voucher_lines l JOIN vouchers v ON v.id = l.voucher_id
WHERE v.status='POSTED' AND v.date <= $2 AND ($1::date IS NULL OR v.date >= $1)
GROUP BY l.account_id`, from, to)
	if err != nil {
		return nil, err
	}
	return scanTotals(rows)
}

func (r *PGReader) PropagatedTotals(ctx context.Context) (map[int64]Totals, error) {
	rows, err := r.q.Query(ctx, `SELECT l.account_id, `+sumColumns+`
FROM voucher_lines l JOIN vouchers v ON v.id = l.voucher_id
WHERE v.status='POSTED' AND v.balances_updated
GROUP BY l.account_id`)
	if err != nil {
		return nil, err
	}
	return scanTotals(rows)
}

func scanTotals(rows pgx.Rows) (map[int64]Totals, error) {
	defer rows.Close()
	out := make(map[int64]Totals)
	for rows.Next() {
		var id int64
		var t Totals
		if err := rows.Scan(&id, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out[id] = t
	}
	return out, rows.Err()
}

func (r *PGReader) OpeningTotals(ctx context.Context, accountID int64, partyID *int64, before time.Time) (Totals, error) {
	var t Totals
	err := r.q.QueryRow(ctx, `SELECT `+sumColumns+`
FROM voucher_lines l JOIN vouchers v ON v.id = l.voucher_id
WHERE l.account_id=$1 AND v.status='POSTED' AND v.date < $2 AND ($3::bigint IS NULL OR v.party_id = $3)`,
		accountID, before, partyID).Scan(&t.Debit, &t.Credit)
	return t, err
}

func (r *PGReader) LedgerLines(ctx context.Context, accountID int64, partyID *int64, start, end *time.Time) ([]PostedLine, error) {
	rows, err := r.q.Query(ctx, `SELECT l.id, v.id, COALESCE(v.voucher_number, ''), v.voucher_type, v.date, v.created_at,
  l.dr_cr, l.amount, l.narration, v.narration, v.reference
FROM voucher_lines l JOIN vouchers v ON v.id = l.voucher_id
WHERE l.account_id=$1 AND v.status='POSTED'
  AND ($2::bigint IS NULL OR v.party_id = $2)
  AND ($3::date IS NULL OR v.date >= $3)
  AND ($4::date IS NULL OR v.date <= $4)
ORDER BY v.date, v.created_at, l.id`, accountID, partyID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PostedLine
	for rows.Next() {
		var pl PostedLine
		var amount decimal.Decimal
		if err := rows.Scan(&pl.LineID, &pl.VoucherID, &pl.VoucherNumber, &pl.VoucherType, &pl.Date, &pl.CreatedAt,
			&pl.DrCr, &amount, &pl.Narration, &pl.VoucherNarration, &pl.Reference); err != nil {
			return nil, err
		}
		pl.Amount = amount
		out = append(out, pl)
	}
	return out, rows.Err()
}
