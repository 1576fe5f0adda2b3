package ledger

import "github.com/shopspring/decimal"

const balanceHeader = "Account,Balance"

// BalanceLines accumulates debit - credit per account. Accounts are emitted
// in the order they are first seen.
func BalanceLines(rows []Row) []string {
	var order []string
	balances := make(map[string]decimal.Decimal)

	for _, r := range rows {
		bal, seen := balances[r.Account]
		if !seen {
			order = append(order, r.Account)
		}
		balances[r.Account] = bal.Add(r.Net())
	}

	lines := make([]string, 0, len(order)+1)
	lines = append(lines, balanceHeader)
	for _, account := range order {
		lines = append(lines, line(account, balances[account]))
	}
	return lines
}
