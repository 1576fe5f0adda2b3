package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ledgerreports/internal/core"
)

// Builder turns a snapshot of ledger rows into report lines.
type Builder func(rows []Row) ([]string, error)

var builders = map[core.Kind]Builder{
	core.KindBalance:   infallible(BalanceLines),
	core.KindYearly:    YearlyLines,
	core.KindStatement: infallible(StatementLines),
}

func infallible(f func([]Row) []string) Builder {
	return func(rows []Row) ([]string, error) {
		return f(rows), nil
	}
}

// Supports reports whether kind has a registered report builder.
func Supports(kind core.Kind) bool {
	_, ok := builders[kind]
	return ok
}

// Build renders the report body for kind from rows.
func Build(kind core.Kind, rows []Row) (string, error) {
	b, ok := builders[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", core.ErrUnknownKind, string(kind))
	}
	lines, err := b(rows)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// Generate reads the ledger directory, excluding the kind's own output file
// name, and renders the report body.
func Generate(dir string, kind core.Kind) (string, error) {
	if !Supports(kind) {
		return "", fmt.Errorf("%w: %q", core.ErrUnknownKind, string(kind))
	}
	rows, err := ReadDir(dir, kind.FileName())
	if err != nil {
		return "", err
	}
	return Build(kind, rows)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func line(label string, amount decimal.Decimal) string {
	return label + "," + money(amount)
}
