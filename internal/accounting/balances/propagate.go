// Package balances applies posted voucher lines to the cached account
// balances. Propagation runs out of band and is keyed by voucher id.
package balances

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Store reads and flags vouchers outside the balance transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	GetVoucher(ctx context.Context, id int64) (vouchers.Voucher, error)
	MarkBalancesUpdated(ctx context.Context, id int64) (bool, error)
	ClearBalancesUpdated(ctx context.Context, id int64) error
}

// TxStore applies balance deltas inside one transaction.
type TxStore interface {
	GetVoucherForUpdate(ctx context.Context, id int64) (vouchers.Voucher, error)
	GetAccountForUpdate(ctx context.Context, id int64) (coa.Account, error)
	ApplyBalanceDelta(ctx context.Context, id int64, delta decimal.Decimal, at time.Time) error
}

// Invalidator drops cached report payloads after balances move.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Outcome reports what a propagation run did.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeNotPosted      Outcome = "not_posted"
)

// Result summarises a propagation run.
type Result struct {
	VoucherID int64
	Outcome   Outcome
	Accounts  map[int64]decimal.Decimal
}

// Propagator applies a posted voucher to account balances exactly once per
// successful run.
type Propagator struct {
	store  Store
	cache  Invalidator
	logger *slog.Logger
	now    func() time.Time
}

// NewPropagator constructs a Propagator. cache may be nil.
func NewPropagator(store Store, cache Invalidator, logger *slog.Logger) *Propagator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Propagator{store: store, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (p *Propagator) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Propagate applies voucher id's lines. Errors satisfying Retryable may be
// retried; anything else must not be.
func (p *Propagator) Propagate(ctx context.Context, id int64) (Result, error) {
	result := Result{VoucherID: id}
	v, err := p.store.GetVoucher(ctx, id)
	if err != nil {
		return result, fmt.Errorf("balances: load voucher %d: %w", id, err)
	}
	if v.BalancesUpdated && v.Status == vouchers.StatusPosted {
		result.Outcome = OutcomeAlreadyApplied
		return result, nil
	}
	if v.Status != vouchers.StatusPosted {
		result.Outcome = OutcomeNotPosted
		if v.BalancesUpdated {
			p.logger.Warn("clearing balances flag on voucher that is not posted",
				slog.Int64("voucher_id", id), slog.String("status", string(v.Status)))
			if err := p.store.ClearBalancesUpdated(ctx, id); err != nil {
				return result, fmt.Errorf("balances: clear flag %d: %w", id, err)
			}
		}
		return result, nil
	}

	stamp := p.now()
	applied := map[int64]decimal.Decimal{}
	var skipped Outcome
	err = p.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		clear(applied)
		locked, err := tx.GetVoucherForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case locked.Status != vouchers.StatusPosted:
			skipped = OutcomeNotPosted
			return nil
		case locked.BalancesUpdated:
			skipped = OutcomeAlreadyApplied
			return nil
		}
		deltas, err := p.deltas(ctx, tx, locked)
		if err != nil {
			return err
		}
		for accountID, delta := range deltas {
			if err := tx.ApplyBalanceDelta(ctx, accountID, delta, stamp); err != nil {
				return err
			}
			applied[accountID] = delta
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("balances: apply voucher %d: %w", id, err)
	}
	if skipped != "" {
		result.Outcome = skipped
		return result, nil
	}

	marked, err := p.store.MarkBalancesUpdated(ctx, id)
	if err != nil || !marked {
		if err == nil {
			err = errors.New("flag already set by a concurrent run")
		}
		p.logger.Log(ctx, shared.LevelCritical, "balances applied but voucher not flagged; manual reconciliation required",
			slog.Int64("voucher_id", id),
			slog.String("number", v.NumberOrEmpty()),
			slog.Any("error", err))
		return result, fmt.Errorf("balances: mark voucher %d: %w: %w", id, shared.ErrInconsistentState, err)
	}

	result.Outcome = OutcomeApplied
	result.Accounts = applied
	if p.cache != nil {
		if err := p.cache.Bump(ctx); err != nil {
			p.logger.Warn("report cache bump failed", slog.Int64("voucher_id", id), slog.Any("error", err))
		}
	}
	p.logger.Info("balances propagated", slog.Int64("voucher_id", id), slog.Int("accounts", len(applied)))
	return result, nil
}

// deltas locks each touched account in id order and sums the signed line
// amounts per account.
func (p *Propagator) deltas(ctx context.Context, tx TxStore, v vouchers.Voucher) (map[int64]decimal.Decimal, error) {
	ids := v.AccountIDs()
	slices.Sort(ids)
	accounts := make(map[int64]coa.Account, len(ids))
	for _, accountID := range ids {
		acc, err := tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return nil, err
		}
		accounts[accountID] = acc
	}
	out := make(map[int64]decimal.Decimal, len(ids))
	for _, line := range v.Lines {
		acc := accounts[line.AccountID]
		out[line.AccountID] = out[line.AccountID].Add(acc.Nature().Signed(line.DrCr, line.Amount))
	}
	return out, nil
}

// Retryable reports whether a propagation error is worth retrying. Only
// transient database failures qualify; a failure after balances committed
// never does.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, shared.ErrInconsistentState) {
		return false
	}
	if errors.Is(err, shared.ErrVoucherNotFound) || errors.Is(err, shared.ErrAccountNotFound) {
		return false
	}
	return db.IsTransient(err)
}
