package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
)

// Totals holds raw debit and credit sums of posted lines.
type Totals struct {
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// Add returns the column-wise sum.
func (t Totals) Add(o Totals) Totals {
	return Totals{Debit: t.Debit.Add(o.Debit), Credit: t.Credit.Add(o.Credit)}
}

// IsZero reports whether both columns are zero.
func (t Totals) IsZero() bool {
	return t.Debit.IsZero() && t.Credit.IsZero()
}

// Columns converts raw totals into the displayed trial balance columns:
// the nature-signed balance is shown on the nature's side when positive and
// on the opposite side when negative.
func Columns(nature coa.Nature, raw Totals) Totals {
	balance := nature.SignedBalance(raw.Debit, raw.Credit)
	normal := balance.Sign() >= 0
	if !normal {
		balance = balance.Neg()
	}
	if (nature == coa.NatureDebit) == normal {
		return Totals{Debit: balance, Credit: decimal.Zero}
	}
	return Totals{Debit: decimal.Zero, Credit: balance}
}

var trialBalanceTree = Tree[Totals]{
	Add:  Totals.Add,
	Keep: func(t Totals) bool { return !t.IsZero() },
}

// TrialBalance is the grouped trial balance as of a date.
type TrialBalance struct {
	AsOf        time.Time       `json:"as_of"`
	Rows        []Node[Totals]  `json:"rows"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	IsBalanced  bool            `json:"is_balanced"`
}

// BuildTrialBalance lists every active account with its displayed columns
// grouped under the account hierarchy. raw holds posted totals keyed by
// account id; accounts without activity show zero.
func BuildTrialBalance(asOf time.Time, groups []coa.Group, accounts []coa.Account, raw map[int64]Totals) TrialBalance {
	leaves := make([]Leaf[Totals], 0, len(accounts))
	for _, acc := range accounts {
		if !acc.IsActive {
			continue
		}
		cols := Columns(acc.Nature(), raw[acc.ID])
		leaves = append(leaves, Leaf[Totals]{GroupID: acc.GroupID, Account: acc, Value: cols})
	}
	rows := trialBalanceTree.Build(groups, leaves)
	total := trialBalanceTree.Sum(rows)
	return TrialBalance{
		AsOf:        asOf,
		Rows:        rows,
		TotalDebit:  total.Debit,
		TotalCredit: total.Credit,
		IsBalanced:  total.Debit.Equal(total.Credit),
	}
}
