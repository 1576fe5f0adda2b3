package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Group is a named, ordered list of accounts within a statement section.
type Group struct {
	Name     string
	Accounts []string
}

// Taxonomy is the fixed chart the financial statement is rendered against.
type Taxonomy struct {
	Revenues    Group
	Expenses    Group
	Assets      Group
	Liabilities Group
	Equity      Group
}

// DefaultTaxonomy returns the chart of accounts used by the statement report.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Revenues: Group{Name: "Revenues", Accounts: []string{
			"Sales Revenue",
		}},
		Expenses: Group{Name: "Expenses", Accounts: []string{
			"Cost of Goods Sold",
			"Salaries Expense",
			"Rent Expense",
			"Utilities Expense",
			"Interest Expense",
			"Tax Expense",
		}},
		Assets: Group{Name: "Assets", Accounts: []string{
			"Cash",
			"Accounts Receivable",
			"Inventory",
			"Fixed Assets",
			"Prepaid Expenses",
		}},
		Liabilities: Group{Name: "Liabilities", Accounts: []string{
			"Accounts Payable",
			"Loan Payable",
			"Sales Tax Payable",
			"Accrued Liabilities",
			"Unearned Revenue",
			"Dividends Payable",
		}},
		Equity: Group{Name: "Equity", Accounts: []string{
			"Common Stock",
			"Retained Earnings",
		}},
	}
}

func (t Taxonomy) groups() []Group {
	return []Group{t.Revenues, t.Expenses, t.Assets, t.Liabilities, t.Equity}
}

// StatementLines renders the financial statement with the default taxonomy.
func StatementLines(rows []Row) []string {
	return DefaultTaxonomy().Lines(rows)
}

// Lines accumulates debit - credit per taxonomy account and renders the
// income statement, balance sheet and accounting identity line. Rows for
// accounts outside the taxonomy are ignored. The identity line is display
// only; an unbalanced ledger is not an error.
func (t Taxonomy) Lines(rows []Row) []string {
	balances := make(map[string]decimal.Decimal)
	for _, g := range t.groups() {
		for _, a := range g.Accounts {
			balances[a] = decimal.Zero
		}
	}
	for _, r := range rows {
		if bal, ok := balances[r.Account]; ok {
			balances[r.Account] = bal.Add(r.Net())
		}
	}

	var out []string
	emit := func(g Group) decimal.Decimal {
		total := decimal.Zero
		for _, a := range g.Accounts {
			out = append(out, line(a, balances[a]))
			total = total.Add(balances[a])
		}
		return total
	}

	out = append(out, "Basic Financial Statement", "", "Income Statement")
	totalRevenue := emit(t.Revenues)
	totalExpenses := emit(t.Expenses)
	netIncome := totalRevenue.Sub(totalExpenses)
	out = append(out, line("Net Income", netIncome), "")

	out = append(out, "Balance Sheet", t.Assets.Name)
	totalAssets := emit(t.Assets)
	out = append(out, line("Total Assets", totalAssets), "")

	out = append(out, t.Liabilities.Name)
	totalLiabilities := emit(t.Liabilities)
	out = append(out, line("Total Liabilities", totalLiabilities), "")

	out = append(out, t.Equity.Name)
	totalEquity := emit(t.Equity)
	out = append(out, line("Retained Earnings (Net Income)", netIncome))
	totalEquity = totalEquity.Add(netIncome)
	out = append(out, line("Total Equity", totalEquity), "")

	out = append(out, fmt.Sprintf("Assets = Liabilities + Equity, %s = %s",
		money(totalAssets), money(totalLiabilities.Add(totalEquity))))
	return out
}
