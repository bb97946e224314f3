package vouchers

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// CheckBalanced compares debit and credit totals exactly.
func CheckBalanced(v Voucher) error {
	debit, credit := v.Totals()
	if !debit.Equal(credit) {
		return &shared.BalanceError{Debit: debit, Credit: credit}
	}
	return nil
}

// CheckPeriod ensures the period is open and covers the voucher date.
func CheckPeriod(v Voucher, period periods.Period) error {
	if period.Locked {
		return &shared.PeriodLockedError{Period: period.String()}
	}
	if !period.Contains(v.Date) {
		return shared.NewValidationError("date", fmt.Sprintf("date %s is outside accounting period %s", v.Date.Format("2006-01-02"), period.String()))
	}
	return nil
}

// CheckAccounts ensures every line hits an existing account that accepts
// direct postings.
func CheckAccounts(v Voucher, accounts map[int64]coa.Account) error {
	verr := &shared.ValidationError{}
	for i, line := range v.Lines {
		field := fmt.Sprintf("lines[%d].account_id", i)
		if line.AccountID == 0 {
			verr.Add(field, "account is required")
			continue
		}
		acc, ok := accounts[line.AccountID]
		switch {
		case !ok:
			verr.Add(field, fmt.Sprintf("account %d does not exist", line.AccountID))
		case !acc.IsActive:
			verr.Add(field, fmt.Sprintf("account %s is inactive", acc.Number))
		case !acc.AllowDirectPosting:
			verr.Add(field, fmt.Sprintf("account %s does not allow direct posting", acc.Number))
		}
	}
	return verr.OrNil()
}

// validateEssentials runs the checks every transition out of DRAFT repeats
// and returns the voucher's period.
func validateEssentials(ctx context.Context, tx TxRepository, v Voucher) (periods.Period, error) {
	if len(v.Lines) == 0 {
		return periods.Period{}, shared.NewValidationError("lines", "voucher must have at least one line")
	}
	for i, line := range v.Lines {
		if !line.Amount.IsPositive() {
			return periods.Period{}, shared.NewValidationError(fmt.Sprintf("lines[%d].amount", i), "amount must be greater than zero")
		}
	}
	if err := CheckBalanced(v); err != nil {
		return periods.Period{}, err
	}
	if v.PeriodID == 0 {
		return periods.Period{}, shared.NewValidationError("accounting_period_id", "accounting period is required")
	}
	period, err := tx.GetPeriod(ctx, v.PeriodID)
	if err != nil {
		if errors.Is(err, shared.ErrPeriodNotFound) {
			return periods.Period{}, shared.NewValidationError("accounting_period_id", "accounting period does not exist")
		}
		return periods.Period{}, err
	}
	if err := CheckPeriod(v, period); err != nil {
		return periods.Period{}, err
	}
	accounts, err := tx.GetAccounts(ctx, v.AccountIDs())
	if err != nil {
		return periods.Period{}, err
	}
	if err := CheckAccounts(v, accounts); err != nil {
		return periods.Period{}, err
	}
	return period, nil
}
