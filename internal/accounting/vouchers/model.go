// Package vouchers implements the voucher engine: balanced drafts, the
// submit/approve/reject workflow, reversals and the approval trail.
package vouchers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
)

// Type classifies vouchers and scopes their numbering.
type Type string

const (
	TypeGeneral    Type = "GENERAL"
	TypeSales      Type = "SALES"
	TypePurchase   Type = "PURCHASE"
	TypePayment    Type = "PAYMENT"
	TypeReceipt    Type = "RECEIPT"
	TypeContra     Type = "CONTRA"
	TypeDebitNote  Type = "DEBIT_NOTE"
	TypeCreditNote Type = "CREDIT_NOTE"
)

// Valid reports whether t is a known voucher type.
func (t Type) Valid() bool {
	switch t {
	case TypeGeneral, TypeSales, TypePurchase, TypePayment, TypeReceipt,
		TypeContra, TypeDebitNote, TypeCreditNote:
		return true
	}
	return false
}

// Status enumerates workflow states.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusPosted          Status = "POSTED"
	StatusRejected        Status = "REJECTED"
	StatusCancelled       Status = "CANCELLED"
)

// Action is the approval trail action type.
type Action string

const (
	ActionSubmitted Action = "SUBMITTED"
	ActionApproved  Action = "APPROVED"
	ActionRejected  Action = "REJECTED"
	ActionCommented Action = "COMMENTED"
)

// Voucher is a transaction header with its lines.
type Voucher struct {
	ID              int64      `json:"id"`
	Number          *string    `json:"voucher_number"`
	Type            Type       `json:"voucher_type"`
	Status          Status     `json:"status"`
	Date            time.Time  `json:"date"`
	EffectiveDate   time.Time  `json:"effective_date"`
	PartyID         *int64     `json:"party_id,omitempty"`
	PeriodID        int64      `json:"accounting_period_id"`
	Narration       string     `json:"narration"`
	Reference       string     `json:"reference"`
	BalancesUpdated bool       `json:"balances_updated"`
	ReversalOf      *int64     `json:"reversal_of,omitempty"`
	CreatedBy       int64      `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Lines           []Line     `json:"lines"`
	PostedAt        *time.Time `json:"posted_at,omitempty"`
}

// Line is one debit or credit of a voucher.
type Line struct {
	ID        int64           `json:"id"`
	VoucherID int64           `json:"voucher_id"`
	AccountID int64           `json:"account_id"`
	DrCr      coa.Side        `json:"dr_cr"`
	Amount    decimal.Decimal `json:"amount"`
	Narration string          `json:"narration"`
}

// Approval is an append-only audit row.
type Approval struct {
	ID         int64     `json:"id"`
	VoucherID  int64     `json:"voucher_id"`
	UserID     int64     `json:"user_id"`
	Action     Action    `json:"action_type"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	Comments   string    `json:"comments"`
	CreatedAt  time.Time `json:"created_at"`
}

// Totals sums debit and credit line amounts.
func (v Voucher) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range v.Lines {
		switch l.DrCr {
		case coa.SideDebit:
			debit = debit.Add(l.Amount)
		case coa.SideCredit:
			credit = credit.Add(l.Amount)
		}
	}
	return debit, credit
}

// NumberOrEmpty returns the assigned number or "".
func (v Voucher) NumberOrEmpty() string {
	if v.Number == nil {
		return ""
	}
	return *v.Number
}

// AccountIDs returns the distinct account ids referenced by the lines.
func (v Voucher) AccountIDs() []int64 {
	seen := make(map[int64]struct{}, len(v.Lines))
	ids := make([]int64, 0, len(v.Lines))
	for _, l := range v.Lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		ids = append(ids, l.AccountID)
	}
	return ids
}

// ListFilter narrows voucher listings. Zero values disable a filter.
type ListFilter struct {
	Status Status
	Type   Type
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
