package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// TxRepository exposes period persistence inside a transaction.
type TxRepository interface {
	GetFiscalYear(ctx context.Context, id int64) (FiscalYear, error)
	GetFiscalYearForUpdate(ctx context.Context, id int64) (FiscalYear, error)
	ListFiscalYears(ctx context.Context) ([]FiscalYear, error)
	InsertFiscalYear(ctx context.Context, fy FiscalYear) (FiscalYear, error)
	ActivateFiscalYear(ctx context.Context, id int64) error
	CloseFiscalYear(ctx context.Context, id, closedBy int64, at time.Time) error
	CountUnlockedPeriods(ctx context.Context, fiscalYearID int64) (int, error)

	GetPeriod(ctx context.Context, id int64) (Period, error)
	GetPeriodForUpdate(ctx context.Context, id int64) (Period, error)
	ListPeriods(ctx context.Context, fiscalYearID int64) ([]Period, error)
	InsertPeriod(ctx context.Context, p Period) (Period, error)
	SetPeriodLocked(ctx context.Context, id int64, locked bool) error
	FindPeriodByDate(ctx context.Context, date time.Time) (Period, error)
}

// Repository persists fiscal years and accounting periods.
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
		return errors.New("periods repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

// Store implements TxRepository over any Querier.
type Store struct {
	q db.Querier
}

// NewStore binds queries to q.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

const fiscalYearColumns = `id, name, start_date, end_date, status, is_active, closed_by, closed_at, created_at, updated_at`

func scanFiscalYear(row pgx.Row) (FiscalYear, error) {
	var fy FiscalYear
	err := row.Scan(&fy.ID, &fy.Name, &fy.StartDate, &fy.EndDate, &fy.Status, &fy.IsActive, &fy.ClosedBy, &fy.ClosedAt, &fy.CreatedAt, &fy.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return FiscalYear{}, shared.ErrFiscalYearNotFound
	}
	return fy, err
}

func (s *Store) GetFiscalYear(ctx context.Context, id int64) (FiscalYear, error) {
	return scanFiscalYear(s.q.QueryRow(ctx, `SELECT `+fiscalYearColumns+` FROM fiscal_years WHERE id=$1`, id))
}

func (s *Store) GetFiscalYearForUpdate(ctx context.Context, id int64) (FiscalYear, error) {
	return scanFiscalYear(s.q.QueryRow(ctx, `SELECT `+fiscalYearColumns+` FROM fiscal_years WHERE id=$1 FOR UPDATE`, id))
}

func (s *Store) ListFiscalYears(ctx context.Context) ([]FiscalYear, error) {
	rows, err := s.q.Query(ctx, `SELECT `+fiscalYearColumns+` FROM fiscal_years ORDER BY start_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FiscalYear
	for rows.Next() {
		fy, err := scanFiscalYear(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fy)
	}
	return out, rows.Err()
}

func (s *Store) InsertFiscalYear(ctx context.Context, fy FiscalYear) (FiscalYear, error) {
	err := s.q.QueryRow(ctx, `INSERT INTO fiscal_years (name, start_date, end_date, status, is_active)
VALUES ($1,$2,$3,$4,false) RETURNING id, created_at, updated_at`, fy.Name, fy.StartDate, fy.EndDate, fy.Status).
		Scan(&fy.ID, &fy.CreatedAt, &fy.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return FiscalYear{}, shared.ErrDuplicate
	}
	return fy, err
}

// ActivateFiscalYear clears the active flag on every other year before
// setting it on id.
func (s *Store) ActivateFiscalYear(ctx context.Context, id int64) error {
	if _, err := s.q.Exec(ctx, `UPDATE fiscal_years SET is_active=false, updated_at=NOW() WHERE is_active AND id <> $1`, id); err != nil {
		return err
	}
	cmd, err := s.q.Exec(ctx, `UPDATE fiscal_years SET is_active=true, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrFiscalYearNotFound
	}
	return nil
}

func (s *Store) CloseFiscalYear(ctx context.Context, id, closedBy int64, at time.Time) error {
	cmd, err := s.q.Exec(ctx, `UPDATE fiscal_years SET status='CLOSED', is_active=false, closed_by=$2, closed_at=$3, updated_at=NOW() WHERE id=$1`, id, closedBy, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrFiscalYearNotFound
	}
	return nil
}

func (s *Store) CountUnlockedPeriods(ctx context.Context, fiscalYearID int64) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM accounting_periods WHERE fiscal_year_id=$1 AND NOT locked`, fiscalYearID).Scan(&n)
	return n, err
}

const periodColumns = `id, fiscal_year_id, name, start_date, end_date, locked, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.FiscalYearID, &p.Name, &p.StartDate, &p.EndDate, &p.Locked, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, err
}

func (s *Store) GetPeriod(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(s.q.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE id=$1`, id))
}

func (s *Store) GetPeriodForUpdate(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(s.q.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE id=$1 FOR UPDATE`, id))
}

func (s *Store) ListPeriods(ctx context.Context, fiscalYearID int64) ([]Period, error) {
	rows, err := s.q.Query(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE fiscal_year_id=$1 ORDER BY start_date`, fiscalYearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) InsertPeriod(ctx context.Context, p Period) (Period, error) {
	err := s.q.QueryRow(ctx, `INSERT INTO accounting_periods (fiscal_year_id, name, start_date, end_date, locked)
VALUES ($1,$2,$3,$4,false) RETURNING id, created_at, updated_at`, p.FiscalYearID, p.Name, p.StartDate, p.EndDate).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return Period{}, shared.ErrDuplicate
	}
	return p, err
}

func (s *Store) SetPeriodLocked(ctx context.Context, id int64, locked bool) error {
	cmd, err := s.q.Exec(ctx, `UPDATE accounting_periods SET locked=$2, updated_at=NOW() WHERE id=$1`, id, locked)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrPeriodNotFound
	}
	return nil
}

// FindPeriodByDate returns the period covering date whether or not it is locked.
func (s *Store) FindPeriodByDate(ctx context.Context, date time.Time) (Period, error) {
	return scanPeriod(s.q.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE $1 BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, Day(date)))
}
