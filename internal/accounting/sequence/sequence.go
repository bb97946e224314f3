// Package sequence assigns voucher numbers from per (voucher type, period)
// counters. Increments run under a row lock; numbers are never reused.
package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// DefaultPadding is the zero-padding width of new sequences.
const DefaultPadding = 4

// Sequence is the counter row for one scope.
type Sequence struct {
	ID            int64
	VoucherType   string
	PeriodID      int64
	Prefix        string
	PaddingDigits int
	LastNumber    int64
}

// Scope identifies a sequence.
type Scope struct {
	VoucherType string
	Period      periods.Period
}

// Store persists sequences. Implementations must share the caller's
// transaction so the lock taken by LockSequence lasts until commit.
type Store interface {
	EnsureSequence(ctx context.Context, seq Sequence) error
	GetSequence(ctx context.Context, voucherType string, periodID int64) (Sequence, error)
	LockSequence(ctx context.Context, voucherType string, periodID int64) (Sequence, error)
	SetLastNumber(ctx context.Context, id, last int64) error
}

// DefaultPrefix derives "{TYPE[:2]}-{YEAR}Q{quarter}-" from the period start.
func DefaultPrefix(voucherType string, periodStart time.Time) string {
	code := strings.ToUpper(voucherType)
	if len(code) > 2 {
		code = code[:2]
	}
	quarter := (int(periodStart.Month())-1)/3 + 1
	return fmt.Sprintf("%s-%dQ%d-", code, periodStart.Year(), quarter)
}

// Format renders a voucher number.
func Format(prefix string, padding int, n int64) string {
	if padding < 1 {
		padding = 1
	}
	return fmt.Sprintf("%s%0*d", prefix, padding, n)
}

// GetOrCreate returns the scope's sequence, creating it with defaults.
func GetOrCreate(ctx context.Context, store Store, scope Scope) (Sequence, error) {
	if err := validateScope(scope); err != nil {
		return Sequence{}, err
	}
	if err := store.EnsureSequence(ctx, Sequence{
		VoucherType:   scope.VoucherType,
		PeriodID:      scope.Period.ID,
		Prefix:        DefaultPrefix(scope.VoucherType, scope.Period.StartDate),
		PaddingDigits: DefaultPadding,
	}); err != nil {
		return Sequence{}, err
	}
	return store.GetSequence(ctx, scope.VoucherType, scope.Period.ID)
}

// Next increments the scope's counter under lock and returns the formatted
// number. The caller persists it on the voucher within the same transaction.
func Next(ctx context.Context, store Store, scope Scope) (string, error) {
	if err := validateScope(scope); err != nil {
		return "", err
	}
	if scope.Period.Locked {
		return "", &shared.PeriodLockedError{Period: scope.Period.String()}
	}
	if _, err := GetOrCreate(ctx, store, scope); err != nil {
		return "", err
	}
	seq, err := store.LockSequence(ctx, scope.VoucherType, scope.Period.ID)
	if err != nil {
		return "", err
	}
	next := seq.LastNumber + 1
	if err := store.SetLastNumber(ctx, seq.ID, next); err != nil {
		return "", err
	}
	return Format(seq.Prefix, seq.PaddingDigits, next), nil
}

func validateScope(scope Scope) error {
	verr := &shared.ValidationError{}
	if strings.TrimSpace(scope.VoucherType) == "" {
		verr.Add("voucher_type", "voucher type is required for numbering")
	}
	if scope.Period.ID == 0 {
		verr.Add("accounting_period", "accounting period is required for numbering")
	}
	return verr.OrNil()
}
