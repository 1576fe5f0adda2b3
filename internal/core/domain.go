package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	KindBalance   Kind = "accounts"
	KindYearly    Kind = "yearly"
	KindStatement Kind = "fs"
)

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

type (
	// Kind identifies one of the three report types produced per request.
	Kind string

	// Status is the lifecycle state of a single report request.
	Status string

	// ReportRequest is one row per (RequestID, Kind).
	ReportRequest struct {
		ID                   int64
		RequestID            string
		Kind                 Kind
		Status               Status
		ErrorMessage         string // set only when Status == StatusError
		OutputLocation       string // set only when Status == StatusCompleted
		ProcessingDurationMs int64  // set only when Status == StatusCompleted
		CreatedAt            time.Time
		UpdatedAt            time.Time
	}
)

var (
	ErrNotFound          = errors.New("report request not found")
	ErrUnknownKind       = errors.New("unknown report kind")
	ErrInvalidStatus     = errors.New("invalid report status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyRequestID    = errors.New("empty request id")
)

// NotFoundText is what a status query returns for a (requestId, kind) that does not exist.
const NotFoundText = "not found"

// AllKinds returns every report kind in canonical order.
func AllKinds() []Kind {
	return []Kind{KindBalance, KindYearly, KindStatement}
}

// ParseKind maps a wire token (or its descriptive alias) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accounts", "balance":
		return KindBalance, nil
	case "yearly":
		return KindYearly, nil
	case "fs", "statement":
		return KindStatement, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

func (k Kind) Validate() error {
	switch k {
	case KindBalance, KindYearly, KindStatement:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
	}
}

// FileName is the conventional output file name of the kind. Aggregators also
// skip an input file with this name so a report never reads its own output.
func (k Kind) FileName() string {
	return string(k) + ".csv"
}

func (k Kind) String() string {
	return string(k)
}

// ParseStatus maps a stored token to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether the processor may move a request from s to next.
// Operator requeue (error -> pending) is not a processor transition.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusError
	default:
		return false
	}
}

// StatusText renders the client-facing status of a request:
// "finished in X.XX" (seconds) when completed, the raw token otherwise.
func (r ReportRequest) StatusText() string {
	if r.Status == StatusCompleted {
		return fmt.Sprintf("finished in %.2f", float64(r.ProcessingDurationMs)/1000)
	}
	return string(r.Status)
}

func (r ReportRequest) Validate() error {
	if strings.TrimSpace(r.RequestID) == "" {
		return ErrEmptyRequestID
	}
	if err := r.Kind.Validate(); err != nil {
		return err
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	switch r.Status {
	case StatusCompleted:
		if r.OutputLocation == "" {
			return errors.New("completed request without output location")
		}
		if r.ErrorMessage != "" {
			return errors.New("completed request with error message")
		}
	case StatusError:
		if r.ErrorMessage == "" {
			return errors.New("errored request without error message")
		}
		if r.OutputLocation != "" {
			return errors.New("errored request with output location")
		}
	default:
		if r.OutputLocation != "" || r.ErrorMessage != "" || r.ProcessingDurationMs != 0 {
			return fmt.Errorf("%s request carries terminal fields", r.Status)
		}
	}
	return nil
}

// StoreError wraps a failure of the durable request store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// AggregationError wraps a failure while computing or writing a report body.
type AggregationError struct {
	Kind Kind
	Err  error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("%s report: %v", e.Kind, e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}
