package balances

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool     *pgxpool.Pool
	vouchers *vouchers.Store
}

// NewPGStore constructs PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, vouchers: vouchers.NewStore(pool)}
}

// WithTx executes fn within a ledger transaction.
func (s *PGStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txStore{vouchers: vouchers.NewStore(tx), accounts: coa.NewStore(tx)})
	})
}

func (s *PGStore) GetVoucher(ctx context.Context, id int64) (vouchers.Voucher, error) {
	return s.vouchers.GetVoucher(ctx, id)
}

func (s *PGStore) MarkBalancesUpdated(ctx context.Context, id int64) (bool, error) {
	return s.vouchers.MarkBalancesUpdated(ctx, id)
}

func (s *PGStore) ClearBalancesUpdated(ctx context.Context, id int64) error {
	return s.vouchers.ClearBalancesUpdated(ctx, id)
}

type txStore struct {
	vouchers *vouchers.Store
	accounts *coa.Store
}

func (t *txStore) GetVoucherForUpdate(ctx context.Context, id int64) (vouchers.Voucher, error) {
	return t.vouchers.GetVoucherForUpdate(ctx, id)
}

func (t *txStore) GetAccountForUpdate(ctx context.Context, id int64) (coa.Account, error) {
	return t.accounts.GetAccountForUpdate(ctx, id)
}

func (t *txStore) ApplyBalanceDelta(ctx context.Context, id int64, delta decimal.Decimal, at time.Time) error {
	return t.accounts.ApplyBalanceDelta(ctx, id, delta, at)
}
