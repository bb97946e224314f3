package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	q db.Querier
}

// NewPGStore binds the store to q, normally the voucher transaction.
func NewPGStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

func (s *PGStore) EnsureSequence(ctx context.Context, seq Sequence) error {
	_, err := s.q.Exec(ctx, `INSERT INTO voucher_sequences (voucher_type, period_id, prefix, padding_digits, last_number)
VALUES ($1,$2,$3,$4,0) ON CONFLICT (voucher_type, period_id) DO NOTHING`,
		seq.VoucherType, seq.PeriodID, seq.Prefix, seq.PaddingDigits)
	return err
}

func (s *PGStore) GetSequence(ctx context.Context, voucherType string, periodID int64) (Sequence, error) {
	return s.scan(s.q.QueryRow(ctx, `SELECT id, voucher_type, period_id, prefix, padding_digits, last_number
FROM voucher_sequences WHERE voucher_type=$1 AND period_id=$2`, voucherType, periodID))
}

func (s *PGStore) LockSequence(ctx context.Context, voucherType string, periodID int64) (Sequence, error) {
	return s.scan(s.q.QueryRow(ctx, `SELECT id, voucher_type, period_id, prefix, padding_digits, last_number
FROM voucher_sequences WHERE voucher_type=$1 AND period_id=$2 FOR UPDATE`, voucherType, periodID))
}

func (s *PGStore) SetLastNumber(ctx context.Context, id, last int64) error {
	cmd, err := s.q.Exec(ctx, `UPDATE voucher_sequences SET last_number=$2, updated_at=NOW() WHERE id=$1 AND last_number < $2`, id, last)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrSequenceMissing
	}
	return nil
}

func (s *PGStore) scan(row pgx.Row) (Sequence, error) {
	var seq Sequence
	err := row.Scan(&seq.ID, &seq.VoucherType, &seq.PeriodID, &seq.Prefix, &seq.PaddingDigits, &seq.LastNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sequence{}, shared.ErrSequenceMissing
	}
	return seq, err
}
