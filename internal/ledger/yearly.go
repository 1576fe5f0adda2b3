package ledger

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	yearlyHeader = "Financial Year,Cash Balance"
	cashAccount  = "Cash"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// YearlyLines accumulates debit - credit of the Cash account per calendar
// year, sorted by year key.
func YearlyLines(rows []Row) ([]string, error) {
	byYear := make(map[string]decimal.Decimal)
	for _, r := range rows {
		if r.Account != cashAccount {
			continue
		}
		year, err := Year(r.Date)
		if err != nil {
			return nil, err
		}
		key := strconv.Itoa(year)
		byYear[key] = byYear[key].Add(r.Net())
	}

	years := make([]string, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Strings(years)

	lines := make([]string, 0, len(years)+1)
	lines = append(lines, yearlyHeader)
	for _, y := range years {
		lines = append(lines, line(y, byYear[y]))
	}
	return lines, nil
}

// Year extracts the calendar year of a ledger date.
func Year(date string) (int, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Year(), nil
		}
	}
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil {
			return y, nil
		}
	}
	return 0, fmt.Errorf("parsing date %q: unrecognized format", date)
}
