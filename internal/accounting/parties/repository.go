package parties

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// TxRepository exposes party persistence inside a transaction.
type TxRepository interface {
	GetParty(ctx context.Context, id int64) (Party, error)
	ListParties(ctx context.Context, partyType coa.PartyType, activeOnly bool) ([]Party, error)
	InsertParty(ctx context.Context, p Party) (Party, error)
	UpdateParty(ctx context.Context, p Party) error
	GetAccount(ctx context.Context, id int64) (coa.Account, error)
	ControlTotals(ctx context.Context, partyID, accountID int64, upTo *time.Time) (debit, credit decimal.Decimal, err error)
}

// Repository persists parties.
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
		return errors.New("parties repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

// Store implements TxRepository over any Querier.
type Store struct {
	q        db.Querier
	accounts *coa.Store
}

// NewStore binds queries to q.
func NewStore(q db.Querier) *Store {
	return &Store{q: q, accounts: coa.NewStore(q)}
}

const partyColumns = `id, party_type, name, control_account_id, credit_limit, is_active, email, phone, address, created_at, updated_at`

func scanParty(row pgx.Row) (Party, error) {
	var p Party
	err := row.Scan(&p.ID, &p.Type, &p.Name, &p.ControlAccountID, &p.CreditLimit, &p.IsActive, &p.Email, &p.Phone, &p.Address, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Party{}, shared.ErrPartyNotFound
	}
	return p, err
}

func (s *Store) GetParty(ctx context.Context, id int64) (Party, error) {
	return scanParty(s.q.QueryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE id=$1`, id))
}

func (s *Store) ListParties(ctx context.Context, partyType coa.PartyType, activeOnly bool) ([]Party, error) {
	rows, err := s.q.Query(ctx, `SELECT `+partyColumns+` FROM parties
WHERE ($1 = '' OR party_type = $1) AND ($2 = false OR is_active) ORDER BY name`, string(partyType), activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) InsertParty(ctx context.Context, p Party) (Party, error) {
	err := s.q.QueryRow(ctx, `INSERT INTO parties (party_type, name, control_account_id, credit_limit, is_active, email, phone, address)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at, updated_at`,
		p.Type, p.Name, p.ControlAccountID, p.CreditLimit, p.IsActive, p.Email, p.Phone, p.Address).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return Party{}, shared.ErrDuplicate
	}
	return p, err
}

func (s *Store) UpdateParty(ctx context.Context, p Party) error {
	cmd, err := s.q.Exec(ctx, `UPDATE parties SET party_type=$2, name=$3, control_account_id=$4, credit_limit=$5, is_active=$6,
email=$7, phone=$8, address=$9, updated_at=NOW() WHERE id=$1`,
		p.ID, p.Type, p.Name, p.ControlAccountID, p.CreditLimit, p.IsActive, p.Email, p.Phone, p.Address)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrPartyNotFound
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (coa.Account, error) {
	return s.accounts.GetAccount(ctx, id)
}

// ControlTotals sums posted lines on the control account tagged with the party.
func (s *Store) ControlTotals(ctx context.Context, partyID, accountID int64, upTo *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	err := s.q.QueryRow(ctx, `SELECT
  COALESCE(SUM(l.amount) FILTER (WHERE l.dr_cr='DEBIT'), 0),
  COALESCE(SUM(l.amount) FILTER (WHERE l.dr_cr='CREDIT'), 0)
FROM voucher_lines l JOIN vouchers v ON v.id = l.voucher_id
WHERE l.account_id=$1 AND v.party_id=$2 AND v.status='POSTED' AND ($3::date IS NULL OR v.date <= $3::date)`,
		accountID, partyID, upTo).Scan(&debit, &credit)
	return debit, credit, err
}
