// Package coa holds the chart of accounts: account groups, accounts and the
// fixed type/nature/P&L section rules balances are computed against.
package coa

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
	AccountTypeCOGS      AccountType = "COGS"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity,
		AccountTypeIncome, AccountTypeExpense, AccountTypeCOGS:
		return true
	}
	return false
}

// IsProfitAndLoss reports whether the type belongs on the income statement.
func (t AccountType) IsProfitAndLoss() bool {
	return t == AccountTypeIncome || t == AccountTypeExpense || t == AccountTypeCOGS
}

// Nature is the side on which an account's balance normally increases.
type Nature string

const (
	NatureDebit  Nature = "DEBIT"
	NatureCredit Nature = "CREDIT"
)

// NatureOf derives the account nature from its type.
func NatureOf(t AccountType) Nature {
	switch t {
	case AccountTypeAsset, AccountTypeExpense, AccountTypeCOGS:
		return NatureDebit
	default:
		return NatureCredit
	}
}

// Side is the debit/credit side of a voucher line.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// Valid reports whether s is DEBIT or CREDIT.
func (s Side) Valid() bool {
	return s == SideDebit || s == SideCredit
}

// Flip returns the opposite side.
func (s Side) Flip() Side {
	if s == SideDebit {
		return SideCredit
	}
	return SideDebit
}

// Signed returns amount as it moves a balance of nature n: positive when the
// line sits on the nature's side, negative otherwise.
func (n Nature) Signed(side Side, amount decimal.Decimal) decimal.Decimal {
	if string(side) == string(n) {
		return amount
	}
	return amount.Neg()
}

// SignedBalance converts raw debit/credit totals into a nature-signed balance.
func (n Nature) SignedBalance(debit, credit decimal.Decimal) decimal.Decimal {
	if n == NatureDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// PLSection classifies P&L accounts for income statement presentation.
type PLSection string

const (
	PLSectionRevenue          PLSection = "REVENUE"
	PLSectionCOGS             PLSection = "COGS"
	PLSectionOperatingExpense PLSection = "OPERATING_EXPENSE"
	PLSectionOtherIncome      PLSection = "OTHER_INCOME"
	PLSectionOtherExpense     PLSection = "OTHER_EXPENSE"
	PLSectionTaxExpense       PLSection = "TAX_EXPENSE"
	PLSectionDeprAmort        PLSection = "DEPR_AMORT"
	PLSectionNone             PLSection = "NONE"
)

// Valid reports whether s is a known section.
func (s PLSection) Valid() bool {
	switch s {
	case PLSectionRevenue, PLSectionCOGS, PLSectionOperatingExpense, PLSectionOtherIncome,
		PLSectionOtherExpense, PLSectionTaxExpense, PLSectionDeprAmort, PLSectionNone:
		return true
	}
	return false
}

// DefaultPLSection returns the section seeded for a type.
func DefaultPLSection(t AccountType) PLSection {
	switch t {
	case AccountTypeIncome:
		return PLSectionRevenue
	case AccountTypeCOGS:
		return PLSectionCOGS
	case AccountTypeExpense:
		return PLSectionOperatingExpense
	default:
		return PLSectionNone
	}
}

// PartyType enumerates sub-ledger party kinds.
type PartyType string

const (
	PartyTypeCustomer PartyType = "CUSTOMER"
	PartyTypeSupplier PartyType = "SUPPLIER"
	PartyTypeEmployee PartyType = "EMPLOYEE"
	PartyTypeOther    PartyType = "OTHER"
)

// Valid reports whether p is a known party type.
func (p PartyType) Valid() bool {
	switch p {
	case PartyTypeCustomer, PartyTypeSupplier, PartyTypeEmployee, PartyTypeOther:
		return true
	}
	return false
}

// DefaultCurrency is applied when an account is created without one.
const DefaultCurrency = "INR"

// Group is a node of the account classification tree.
type Group struct {
	ID          int64
	Name        string
	ParentID    *int64
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Account is a ledger.
type Account struct {
	ID                 int64
	Number             string
	Name               string
	Description        string
	GroupID            int64
	Type               AccountType
	PLSection          PLSection
	Currency           string
	IsActive           bool
	AllowDirectPosting bool
	IsControlAccount   bool
	ControlPartyType   *PartyType
	CurrentBalance     decimal.Decimal
	BalanceLastUpdated *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Nature derives the account nature from its type.
func (a Account) Nature() Nature {
	return NatureOf(a.Type)
}

// Postable reports whether voucher lines may hit the account.
func (a Account) Postable() bool {
	return a.IsActive && a.AllowDirectPosting
}

// GroupInput carries create/update fields for a group.
type GroupInput struct {
	Name        string `json:"name" validate:"required,max=150"`
	ParentID    *int64 `json:"parent_id"`
	Description string `json:"description" validate:"max=500"`
}

// AccountInput carries create/update fields for an account. Nature is never
// accepted from callers.
type AccountInput struct {
	Number             string      `json:"number" validate:"required,max=20"`
	Name               string      `json:"name" validate:"required,max=150"`
	Description        string      `json:"description"`
	GroupID            int64       `json:"group_id" validate:"required,gt=0"`
	Type               AccountType `json:"type" validate:"required"`
	PLSection          PLSection   `json:"pl_section"`
	Currency           string      `json:"currency" validate:"omitempty,len=3"`
	IsActive           bool        `json:"is_active"`
	AllowDirectPosting bool        `json:"allow_direct_posting"`
	IsControlAccount   bool        `json:"is_control_account"`
	ControlPartyType   *PartyType  `json:"control_party_type"`
}

// Account materialises the input as an Account with defaults applied.
func (in AccountInput) Account() Account {
	acc := Account{
		Number:             in.Number,
		Name:               in.Name,
		Description:        in.Description,
		GroupID:            in.GroupID,
		Type:               in.Type,
		PLSection:          in.PLSection,
		Currency:           in.Currency,
		IsActive:           in.IsActive,
		AllowDirectPosting: in.AllowDirectPosting,
		IsControlAccount:   in.IsControlAccount,
		ControlPartyType:   in.ControlPartyType,
	}
	if acc.Currency == "" {
		acc.Currency = DefaultCurrency
	}
	if acc.PLSection == "" {
		acc.PLSection = DefaultPLSection(acc.Type)
	}
	return acc
}
