package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation marks user-correctable input problems.
	ErrValidation = errors.New("ledger: validation failed")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("ledger: voucher lines must balance")
	// ErrPeriodLocked indicates a locked accounting period.
	ErrPeriodLocked = errors.New("ledger: period locked")
	// ErrInvalidState indicates an illegal workflow transition.
	ErrInvalidState = errors.New("ledger: invalid status transition")
	// ErrWorkflow indicates a workflow failure that is not a plain state mismatch.
	ErrWorkflow = errors.New("ledger: workflow error")
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("ledger: duplicate entry")

	// ErrVoucherNotFound indicates a missing voucher.
	ErrVoucherNotFound = errors.New("ledger: voucher not found")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrGroupNotFound indicates a missing account group.
	ErrGroupNotFound = errors.New("ledger: account group not found")
	// ErrPartyNotFound indicates a missing party.
	ErrPartyNotFound = errors.New("ledger: party not found")
	// ErrPeriodNotFound indicates no accounting period matched.
	ErrPeriodNotFound = errors.New("ledger: accounting period not found")
	// ErrFiscalYearNotFound indicates a missing fiscal year.
	ErrFiscalYearNotFound = errors.New("ledger: fiscal year not found")

	// ErrGroupInUse blocks deleting a group with children or accounts.
	ErrGroupInUse = errors.New("ledger: account group has child groups or accounts")
	// ErrAccountInUse blocks deleting an account referenced by voucher lines.
	ErrAccountInUse = errors.New("ledger: account referenced by voucher lines")

	// ErrSequenceMissing is a system error: the sequence row vanished under lock.
	ErrSequenceMissing = errors.New("ledger: voucher sequence row missing")
	// ErrInconsistentState is a system error requiring operator attention.
	ErrInconsistentState = errors.New("ledger: inconsistent ledger state")
)

// ValidationError carries field-attributable messages.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Add records a message for field, keeping the first message per field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Empty reports whether no field has been flagged.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil returns nil when the error carries no fields.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// BalanceError reports an unbalanced voucher.
type BalanceError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("%s (debit %s, credit %s)", ErrUnbalanced.Error(), e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

// Is matches ErrUnbalanced and ErrValidation.
func (e *BalanceError) Is(target error) bool {
	return target == ErrUnbalanced || target == ErrValidation
}

// PeriodLockedError names the locked period.
type PeriodLockedError struct {
	Period string
}

func (e *PeriodLockedError) Error() string {
	if e.Period == "" {
		return ErrPeriodLocked.Error()
	}
	return fmt.Sprintf("%s: %s", ErrPeriodLocked.Error(), e.Period)
}

// Is matches ErrPeriodLocked.
func (e *PeriodLockedError) Is(target error) bool {
	return target == ErrPeriodLocked
}

// InvalidStateError reports current vs expected workflow state.
type InvalidStateError struct {
	Current  string
	Expected []string
	Message  string
}

// NewInvalidStateError builds an InvalidStateError.
func NewInvalidStateError(current string, expected ...string) *InvalidStateError {
	return &InvalidStateError{Current: current, Expected: expected}
}

func (e *InvalidStateError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = ErrInvalidState.Error()
	}
	return fmt.Sprintf("%s: current %s, expected %s", msg, e.Current, strings.Join(e.Expected, "|"))
}

// Is matches ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// WorkflowError wraps workflow failures that are not state mismatches.
type WorkflowError struct {
	Message string
	Err     error
}

func (e *WorkflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrWorkflow.Error(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrWorkflow.Error(), e.Message)
}

// Is matches ErrWorkflow.
func (e *WorkflowError) Is(target error) bool {
	return target == ErrWorkflow
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// UserFacing reports whether err can be shown to API callers as-is.
func UserFacing(err error) bool {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrPeriodLocked),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrWorkflow),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrVoucherNotFound),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrGroupNotFound),
		errors.Is(err, ErrPartyNotFound),
		errors.Is(err, ErrPeriodNotFound),
		errors.Is(err, ErrFiscalYearNotFound),
		errors.Is(err, ErrGroupInUse),
		errors.Is(err, ErrAccountInUse):
		return true
	}
	return false
}
