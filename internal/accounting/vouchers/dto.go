package vouchers

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// LineInput describes a voucher line in a draft request.
type LineInput struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	DrCr      coa.Side        `json:"dr_cr" validate:"required,oneof=DEBIT CREDIT"`
	Amount    decimal.Decimal `json:"amount"`
	Narration string          `json:"narration" validate:"max=500"`
}

// DraftInput groups the editable fields of a DRAFT voucher. Lines replace
// the existing set as a whole on update.
type DraftInput struct {
	Type          Type        `json:"voucher_type" validate:"required"`
	Date          time.Time   `json:"date" validate:"required"`
	EffectiveDate *time.Time  `json:"effective_date"`
	PeriodID      *int64      `json:"accounting_period_id"`
	PartyID       *int64      `json:"party_id"`
	Narration     string      `json:"narration" validate:"max=1000"`
	Reference     string      `json:"reference" validate:"max=100"`
	Lines         []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// Validate checks the draft's shape. Balance, period state and account
// postability are checked on submit.
func (in DraftInput) Validate() error {
	verr := &shared.ValidationError{}
	if !in.Type.Valid() {
		verr.Add("voucher_type", fmt.Sprintf("unknown voucher type %q", in.Type))
	}
	if in.Date.IsZero() {
		verr.Add("date", "date is required")
	}
	if in.EffectiveDate != nil && !in.Date.IsZero() && periods.Day(*in.EffectiveDate).Before(periods.Day(in.Date)) {
		verr.Add("effective_date", "effective date cannot precede the voucher date")
	}
	if len(in.Lines) == 0 {
		verr.Add("lines", "at least one line is required")
	}
	for i, line := range in.Lines {
		prefix := fmt.Sprintf("lines[%d].", i)
		if line.AccountID <= 0 {
			verr.Add(prefix+"account_id", "account is required")
		}
		if !line.DrCr.Valid() {
			verr.Add(prefix+"dr_cr", "must be DEBIT or CREDIT")
		}
		if !line.Amount.IsPositive() {
			verr.Add(prefix+"amount", "amount must be greater than zero")
		}
	}
	return verr.OrNil()
}

func (in DraftInput) voucher() Voucher {
	date := periods.Day(in.Date)
	effective := date
	if in.EffectiveDate != nil {
		effective = periods.Day(*in.EffectiveDate)
	}
	v := Voucher{
		Type:          in.Type,
		Status:        StatusDraft,
		Date:          date,
		EffectiveDate: effective,
		PartyID:       in.PartyID,
		Narration:     strings.TrimSpace(in.Narration),
		Reference:     strings.TrimSpace(in.Reference),
	}
	if in.PeriodID != nil {
		v.PeriodID = *in.PeriodID
	}
	v.Lines = make([]Line, 0, len(in.Lines))
	for _, l := range in.Lines {
		v.Lines = append(v.Lines, Line{
			AccountID: l.AccountID,
			DrCr:      l.DrCr,
			Amount:    l.Amount,
			Narration: strings.TrimSpace(l.Narration),
		})
	}
	return v
}

// ReverseInput wraps parameters for a reversal.
type ReverseInput struct {
	ReversalDate    *time.Time `json:"reversal_date"`
	Type            Type       `json:"voucher_type"`
	PostImmediately bool       `json:"post_immediately"`
}

// CommentInput carries approval or rejection comments.
type CommentInput struct {
	Comments string `json:"comments" validate:"max=2000"`
}
