package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
)

// PostedLine is a posted voucher line as read for ledger reconstruction.
type PostedLine struct {
	LineID           int64
	VoucherID        int64
	VoucherNumber    string
	VoucherType      string
	Date             time.Time
	CreatedAt        time.Time
	DrCr             coa.Side
	Amount           decimal.Decimal
	Narration        string
	VoucherNarration string
	Reference        string
}

// LedgerRow is one line of an account ledger with its running balance.
type LedgerRow struct {
	Date          time.Time       `json:"date"`
	VoucherID     int64           `json:"voucher_id"`
	VoucherNumber string          `json:"voucher_number"`
	VoucherType   string          `json:"voucher_type"`
	Narration     string          `json:"narration"`
	Reference     string          `json:"reference"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Balance       decimal.Decimal `json:"balance"`
}

// LedgerAccount identifies the account a ledger was built for.
type LedgerAccount struct {
	ID     int64      `json:"id"`
	Number string     `json:"number"`
	Name   string     `json:"name"`
	Nature coa.Nature `json:"nature"`
}

// Ledger is an account (or party) ledger over an optional date window.
type Ledger struct {
	Account        LedgerAccount   `json:"account"`
	PartyID        *int64          `json:"party_id,omitempty"`
	Start          *time.Time      `json:"start_date,omitempty"`
	End            *time.Time      `json:"end_date,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Rows           []LedgerRow     `json:"rows"`
	TotalDebit     decimal.Decimal `json:"total_debit"`
	TotalCredit    decimal.Decimal `json:"total_credit"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}

// BuildLedger walks lines in (date, creation, line id) order from opening,
// applying each line per the account's nature.
func BuildLedger(acc coa.Account, opening decimal.Decimal, lines []PostedLine) Ledger {
	sorted := make([]PostedLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.LineID < b.LineID
	})

	nature := acc.Nature()
	ledger := Ledger{
		Account:        LedgerAccount{ID: acc.ID, Number: acc.Number, Name: acc.Name, Nature: nature},
		OpeningBalance: opening,
		Rows:           make([]LedgerRow, 0, len(sorted)),
		TotalDebit:     decimal.Zero,
		TotalCredit:    decimal.Zero,
	}
	running := opening
	for _, l := range sorted {
		row := LedgerRow{
			Date:          l.Date,
			VoucherID:     l.VoucherID,
			VoucherNumber: l.VoucherNumber,
			VoucherType:   l.VoucherType,
			Narration:     l.Narration,
			Reference:     l.Reference,
			Debit:         decimal.Zero,
			Credit:        decimal.Zero,
		}
		if row.Narration == "" {
			row.Narration = l.VoucherNarration
		}
		if l.DrCr == coa.SideDebit {
			row.Debit = l.Amount
			ledger.TotalDebit = ledger.TotalDebit.Add(l.Amount)
		} else {
			row.Credit = l.Amount
			ledger.TotalCredit = ledger.TotalCredit.Add(l.Amount)
		}
		running = running.Add(nature.Signed(l.DrCr, l.Amount))
		row.Balance = running
		ledger.Rows = append(ledger.Rows, row)
	}
	ledger.ClosingBalance = running
	return ledger
}
