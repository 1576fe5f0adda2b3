// Package ledger reads transaction-ledger CSV files and aggregates them into
// report bodies.
//
// Input rows have the shape date,account,_,debit,credit. The third column is
// carried by the ingestion format but not used by any report.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	colDate    = 0
	colAccount = 1
	colDebit   = 3
	colCredit  = 4

	minFields = 2
)

// Row is one ledger transaction line.
type Row struct {
	Date    string
	Account string
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// Net returns debit minus credit.
func (r Row) Net() decimal.Decimal {
	return r.Debit.Sub(r.Credit)
}

// ReadDir reads every *.csv file in dir in name order, skipping the file
// named exclude.
func ReadDir(dir, exclude string) ([]Row, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading ledger directory: %w", err)
	}

	var rows []Row
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.EqualFold(filepath.Ext(name), ".csv") || name == exclude {
			continue
		}
		fileRows, err := readFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		rows = append(rows, fileRows...)
	}
	return rows, nil
}

func readFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger file: %w", err)
	}
	defer f.Close()

	rows, err := ReadRows(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// ReadRows parses ledger rows from r. Blank lines are skipped, as is a leading
// header line whose first field is "date".
func ReadRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows []Row
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ledger CSV: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if first {
			first = false
			if strings.EqualFold(strings.TrimSpace(rec[colDate]), "date") {
				continue
			}
		}
		if isBlank(rec) {
			continue
		}

		row, err := UnmarshalRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// UnmarshalRow converts a CSV record to a Row. Missing or empty amounts are zero.
func UnmarshalRow(record []string) (Row, error) {
	if len(record) < minFields {
		return Row{}, fmt.Errorf("expected at least %d fields, got %d", minFields, len(record))
	}

	debit, err := parseAmount(field(record, colDebit))
	if err != nil {
		return Row{}, fmt.Errorf("parsing debit %q: %w", field(record, colDebit), err)
	}
	credit, err := parseAmount(field(record, colCredit))
	if err != nil {
		return Row{}, fmt.Errorf("parsing credit %q: %w", field(record, colCredit), err)
	}

	return Row{
		Date:    strings.TrimSpace(record[colDate]),
		Account: strings.TrimSpace(record[colAccount]),
		Debit:   debit,
		Credit:  credit,
	}, nil
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
