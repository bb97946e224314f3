package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
)

// Computed P&L subtotal sections.
const (
	SectionGrossProfit     = "GROSS_PROFIT"
	SectionProfitBeforeTax = "PROFIT_BEFORE_TAX"
	SectionNetIncome       = "NET_INCOME"
)

// Amount is the favorable-positive movement of a P&L account or group.
type Amount struct {
	Amount decimal.Decimal `json:"amount"`
}

var profitAndLossTree = Tree[Amount]{
	Add: func(a, b Amount) Amount { return Amount{Amount: a.Amount.Add(b.Amount)} },
}

// ProfitAndLossSection is one block of the income statement. Computed
// sections carry only a total.
type ProfitAndLossSection struct {
	Section  string          `json:"section"`
	Label    string          `json:"label"`
	Computed bool            `json:"computed"`
	Total    decimal.Decimal `json:"total"`
	Rows     []Node[Amount]  `json:"rows,omitempty"`
}

// ProfitAndLoss contains the structured output for the report.
type ProfitAndLoss struct {
	Start            time.Time              `json:"start_date"`
	End              time.Time              `json:"end_date"`
	Sections         []ProfitAndLossSection `json:"sections"`
	Revenue          decimal.Decimal        `json:"revenue"`
	COGS             decimal.Decimal        `json:"cogs"`
	GrossProfit      decimal.Decimal        `json:"gross_profit"`
	OperatingExpense decimal.Decimal        `json:"operating_expense"`
	DeprAmort        decimal.Decimal        `json:"depr_amort"`
	OperatingProfit  decimal.Decimal        `json:"operating_profit"`
	OtherIncome      decimal.Decimal        `json:"other_income"`
	OtherExpense     decimal.Decimal        `json:"other_expense"`
	ProfitBeforeTax  decimal.Decimal        `json:"profit_before_tax"`
	TaxExpense       decimal.Decimal        `json:"tax_expense"`
	NetIncome        decimal.Decimal        `json:"net_income"`
}

var sectionLabels = map[coa.PLSection]string{
	coa.PLSectionRevenue:          "Revenue",
	coa.PLSectionCOGS:             "Cost of Goods Sold",
	coa.PLSectionOperatingExpense: "Operating Expenses",
	coa.PLSectionDeprAmort:        "Depreciation & Amortization",
	coa.PLSectionOtherIncome:      "Other Income",
	coa.PLSectionOtherExpense:     "Other Expenses",
	coa.PLSectionTaxExpense:       "Tax Expense",
}

// BuildProfitAndLoss buckets P&L accounts by section and interleaves the
// computed subtotals. Sections without activity are left out while the
// computed subtotals are always present. raw holds posted totals within the
// window keyed by account id.
func BuildProfitAndLoss(start, end time.Time, groups []coa.Group, accounts []coa.Account, raw map[int64]Totals) ProfitAndLoss {
	leaves := make(map[coa.PLSection][]Leaf[Amount])
	for _, acc := range accounts {
		if !acc.Type.IsProfitAndLoss() {
			continue
		}
		if _, ok := sectionLabels[acc.PLSection]; !ok {
			continue
		}
		t, ok := raw[acc.ID]
		if !ok || t.IsZero() {
			continue
		}
		amount := acc.Nature().SignedBalance(t.Debit, t.Credit)
		leaves[acc.PLSection] = append(leaves[acc.PLSection], Leaf[Amount]{GroupID: acc.GroupID, Account: acc, Value: Amount{Amount: amount}})
	}

	pl := ProfitAndLoss{Start: start, End: end}
	section := func(s coa.PLSection) decimal.Decimal {
		rows := profitAndLossTree.Build(groups, leaves[s])
		total := profitAndLossTree.Sum(rows).Amount
		if len(rows) == 0 && total.IsZero() {
			return total
		}
		pl.Sections = append(pl.Sections, ProfitAndLossSection{Section: string(s), Label: sectionLabels[s], Total: total, Rows: rows})
		return total
	}
	computed := func(name, label string, total decimal.Decimal) {
		pl.Sections = append(pl.Sections, ProfitAndLossSection{Section: name, Label: label, Computed: true, Total: total})
	}

	pl.Revenue = section(coa.PLSectionRevenue)
	pl.COGS = section(coa.PLSectionCOGS)
	pl.GrossProfit = pl.Revenue.Sub(pl.COGS)
	computed(SectionGrossProfit, "Gross Profit", pl.GrossProfit)

	pl.OperatingExpense = section(coa.PLSectionOperatingExpense)
	pl.DeprAmort = section(coa.PLSectionDeprAmort)
	pl.OperatingProfit = pl.GrossProfit.Sub(pl.OperatingExpense).Sub(pl.DeprAmort)

	pl.OtherIncome = section(coa.PLSectionOtherIncome)
	pl.OtherExpense = section(coa.PLSectionOtherExpense)
	pl.ProfitBeforeTax = pl.OperatingProfit.Add(pl.OtherIncome).Sub(pl.OtherExpense)
	computed(SectionProfitBeforeTax, "Profit Before Tax", pl.ProfitBeforeTax)

	pl.TaxExpense = section(coa.PLSectionTaxExpense)
	pl.NetIncome = pl.ProfitBeforeTax.Sub(pl.TaxExpense)
	computed(SectionNetIncome, "Net Income", pl.NetIncome)
	return pl
}
