package core

import (
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"accounts", KindBalance, true},
		{"balance", KindBalance, true},
		{"yearly", KindYearly, true},
		{"fs", KindStatement, true},
		{" Statement ", KindStatement, true},
		{"monthly", "", false},
		{"", "", false},
	}
	for i, tc := range cases {
		got, err := ParseKind(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrUnknownKind) {
				t.Fatalf("case %d expected ErrUnknownKind, got %v", i, err)
			}
			continue
		}
		if got != tc.want {
			t.Fatalf("case %d: got %q want %q", i, got, tc.want)
		}
	}
}

func TestKindFileName(t *testing.T) {
	want := map[Kind]string{
		KindBalance:   "accounts.csv",
		KindYearly:    "yearly.csv",
		KindStatement: "fs.csv",
	}
	for _, k := range AllKinds() {
		if got := k.FileName(); got != want[k] {
			t.Fatalf("%s: got %q want %q", k, got, want[k])
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusError, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusError, false},
		{StatusError, StatusPending, false},
		{StatusError, StatusProcessing, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.ok)
		}
	}
	if !StatusCompleted.IsTerminal() || !StatusError.IsTerminal() {
		t.Fatalf("completed and error must be terminal")
	}
	if StatusPending.IsTerminal() || StatusProcessing.IsTerminal() {
		t.Fatalf("pending and processing must not be terminal")
	}
}

func TestStatusText(t *testing.T) {
	cases := []struct {
		r    ReportRequest
		want string
	}{
		{ReportRequest{Status: StatusPending}, "pending"},
		{ReportRequest{Status: StatusProcessing}, "processing"},
		{ReportRequest{Status: StatusError, ErrorMessage: "boom"}, "error"},
		{ReportRequest{Status: StatusCompleted, ProcessingDurationMs: 1234}, "finished in 1.23"},
		{ReportRequest{Status: StatusCompleted, ProcessingDurationMs: 0}, "finished in 0.00"},
	}
	for i, tc := range cases {
		if got := tc.r.StatusText(); got != tc.want {
			t.Fatalf("case %d: got %q want %q", i, got, tc.want)
		}
	}
}

func TestReportRequestValidate(t *testing.T) {
	good := []ReportRequest{
		{RequestID: "r1", Kind: KindBalance, Status: StatusPending},
		{RequestID: "r1", Kind: KindYearly, Status: StatusCompleted, OutputLocation: "out/r1/yearly.csv", ProcessingDurationMs: 3},
		{RequestID: "r1", Kind: KindStatement, Status: StatusError, ErrorMessage: "missing input"},
	}
	for i, r := range good {
		if err := r.Validate(); err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
	}

	bads := []ReportRequest{
		{RequestID: "", Kind: KindBalance, Status: StatusPending},
		{RequestID: "r1", Kind: "monthly", Status: StatusPending},
		{RequestID: "r1", Kind: KindBalance, Status: "done"},
		{RequestID: "r1", Kind: KindBalance, Status: StatusCompleted},
		{RequestID: "r1", Kind: KindBalance, Status: StatusError},
		{RequestID: "r1", Kind: KindBalance, Status: StatusPending, OutputLocation: "x"},
	}
	for i, r := range bads {
		if err := r.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestErrorWrapping(t *testing.T) {
	se := &StoreError{Op: "get", Err: ErrNotFound}
	if !errors.Is(se, ErrNotFound) {
		t.Fatalf("StoreError should unwrap to ErrNotFound")
	}
	ae := &AggregationError{Kind: KindYearly, Err: errors.New("open tmp: no such file")}
	if ae.Error() != "yearly report: open tmp: no such file" {
		t.Fatalf("unexpected message %q", ae.Error())
	}
	var target *AggregationError
	if !errors.As(error(ae), &target) {
		t.Fatalf("errors.As should match AggregationError")
	}
}
