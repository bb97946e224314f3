package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBalanceErrorIsValidation(t *testing.T) {
	err := fmt.Errorf("submit: %w", &BalanceError{Debit: decimal.NewFromInt(100), Credit: decimal.NewFromInt(90)})
	require.ErrorIs(t, err, ErrUnbalanced)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "debit 100.00, credit 90.00")

	var be *BalanceError
	require.True(t, errors.As(err, &be))
	require.True(t, be.Debit.Equal(decimal.NewFromInt(100)))
}

func TestValidationErrorFields(t *testing.T) {
	verr := &ValidationError{}
	require.NoError(t, verr.OrNil())
	verr.Add("date", "required")
	verr.Add("date", "ignored")
	verr.Add("lines", "at least one line")
	require.Equal(t, "required", verr.Fields["date"])
	require.Equal(t, "ledger: validation failed: date: required; lines: at least one line", verr.Error())
	require.ErrorIs(t, verr.OrNil(), ErrValidation)
}

func TestInvalidStateError(t *testing.T) {
	err := NewInvalidStateError("DRAFT", "PENDING_APPROVAL", "REJECTED")
	require.ErrorIs(t, err, ErrInvalidState)
	require.Contains(t, err.Error(), "current DRAFT, expected PENDING_APPROVAL|REJECTED")
	require.True(t, UserFacing(err))
	require.False(t, UserFacing(ErrSequenceMissing))
}

func TestPeriodLockedError(t *testing.T) {
	err := &PeriodLockedError{Period: "2024-01"}
	require.ErrorIs(t, err, ErrPeriodLocked)
	require.False(t, errors.Is(err, ErrValidation))
	require.Equal(t, "ledger: period locked: 2024-01", err.Error())
}
