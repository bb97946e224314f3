// Package parties holds sub-ledger entities (customers, suppliers) whose
// balances are derived from lines posted to their control account.
package parties

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
)

// Party is a customer, supplier or other counterparty.
type Party struct {
	ID               int64
	Type             coa.PartyType
	Name             string
	ControlAccountID *int64
	CreditLimit      decimal.Decimal
	IsActive         bool
	Email            string
	Phone            string
	Address          string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreditStatus summarises the party's position against its credit limit.
type CreditStatus string

const (
	CreditNoLimit     CreditStatus = "NO_LIMIT"
	CreditWithinLimit CreditStatus = "WITHIN_LIMIT"
	CreditOverLimit   CreditStatus = "OVER_LIMIT"
)

// Input carries create/update fields for a party.
type Input struct {
	Type             coa.PartyType   `json:"type" validate:"required"`
	Name             string          `json:"name" validate:"required,max=200"`
	ControlAccountID *int64          `json:"control_account_id"`
	CreditLimit      decimal.Decimal `json:"credit_limit"`
	IsActive         bool            `json:"is_active"`
	Email            string          `json:"email" validate:"omitempty,email"`
	Phone            string          `json:"phone" validate:"max=30"`
	Address          string          `json:"address"`
}

// Party materialises the input.
func (in Input) Party() Party {
	return Party{
		Type:             in.Type,
		Name:             in.Name,
		ControlAccountID: in.ControlAccountID,
		CreditLimit:      in.CreditLimit,
		IsActive:         in.IsActive,
		Email:            in.Email,
		Phone:            in.Phone,
		Address:          in.Address,
	}
}

// Balance is a party's outstanding position as of a date.
type Balance struct {
	PartyID          int64           `json:"party_id"`
	ControlAccountID int64           `json:"control_account_id"`
	AsOf             *time.Time      `json:"as_of,omitempty"`
	Debit            decimal.Decimal `json:"debit"`
	Credit           decimal.Decimal `json:"credit"`
	Outstanding      decimal.Decimal `json:"outstanding"`
}
