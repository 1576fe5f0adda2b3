package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerreports/internal/artifact"
	"ledgerreports/internal/core"
	"ledgerreports/internal/ledger"
	"ledgerreports/internal/log"
)

// StatusUpdater is the slice of the request store the processor writes to.
type StatusUpdater interface {
	MarkProcessing(ctx context.Context, requestID string, kind core.Kind) error
	MarkCompleted(ctx context.Context, requestID string, kind core.Kind, outputLocation string, duration time.Duration) error
	MarkError(ctx context.Context, requestID string, kind core.Kind, message string) error
}

// Aggregator produces the body of one report kind.
type Aggregator interface {
	Supports(kind core.Kind) bool
	Aggregate(ctx context.Context, kind core.Kind) (string, error)
}

// Notifier is told about every request that reaches a terminal status.
type Notifier interface {
	Notify(ctx context.Context, r core.ReportRequest) error
}

// LedgerAggregator reads the ledger directory on every call.
type LedgerAggregator struct {
	Dir string
}

func (a LedgerAggregator) Supports(kind core.Kind) bool {
	return ledger.Supports(kind)
}

func (a LedgerAggregator) Aggregate(_ context.Context, kind core.Kind) (string, error) {
	return ledger.Generate(a.Dir, kind)
}

// ReportProcessor runs a single report request to a terminal status.
type ReportProcessor struct {
	store      StatusUpdater
	aggregator Aggregator
	artifacts  artifact.Store
	notifier   Notifier
	logger     *log.Logger
	now        func() time.Time
}

// NewReportProcessor creates a processor. notifier may be nil.
func NewReportProcessor(store StatusUpdater, aggregator Aggregator, artifacts artifact.Store, notifier Notifier, logger *log.Logger) *ReportProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportProcessor{
		store:      store,
		aggregator: aggregator,
		artifacts:  artifacts,
		notifier:   notifier,
		logger:     logger.WithComponent(log.ComponentProcessor),
		now:        time.Now,
	}
}

// Process moves req from pending through processing to completed or error.
//
// Aggregation and artifact failures are recorded on the request and are not
// returned. The returned error is always a store failure. A kind without an
// aggregator is logged and left untouched.
func (p *ReportProcessor) Process(ctx context.Context, req core.ReportRequest) error {
	fields := log.NewFields().WithReport(req.RequestID, string(req.Kind))

	if !p.aggregator.Supports(req.Kind) {
		p.logger.WarnContext(ctx, "No aggregator for report kind, leaving request untouched", fields.ToSlice()...)
		return nil
	}

	// A dispatched item runs to a terminal status even if the caller gives up.
	ctx = context.WithoutCancel(ctx)

	if err := p.store.MarkProcessing(ctx, req.RequestID, req.Kind); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	p.logger.InfoContext(ctx, "Processing report request", fields.ToSlice()...)

	start := p.now()
	location, runErr := p.run(ctx, req)
	elapsed := p.now().Sub(start)

	sl := log.NewStructuredLogger(p.logger)

	if runErr != nil {
		aggErr := &core.AggregationError{Kind: req.Kind, Err: runErr}
		if err := p.store.MarkError(ctx, req.RequestID, req.Kind, aggErr.Error()); err != nil {
			return fmt.Errorf("mark error: %w", err)
		}
		sl.LogReportFinished(ctx, req.RequestID, string(req.Kind), string(core.StatusError), elapsed.Milliseconds(), aggErr)

		req.Status = core.StatusError
		req.ErrorMessage = aggErr.Error()
		p.notify(ctx, req)
		return nil
	}

	if err := p.store.MarkCompleted(ctx, req.RequestID, req.Kind, location, elapsed); err != nil {
		// Best effort: a row left in processing is never picked up again.
		msg := "record completion: " + err.Error()
		if markErr := p.store.MarkError(ctx, req.RequestID, req.Kind, msg); markErr != nil {
			return errors.Join(fmt.Errorf("mark completed: %w", err), fmt.Errorf("mark error: %w", markErr))
		}
		sl.LogReportFinished(ctx, req.RequestID, string(req.Kind), string(core.StatusError), elapsed.Milliseconds(), err)

		req.Status = core.StatusError
		req.ErrorMessage = msg
		p.notify(ctx, req)
		return fmt.Errorf("mark completed: %w", err)
	}
	sl.LogReportFinished(ctx, req.RequestID, string(req.Kind), string(core.StatusCompleted), elapsed.Milliseconds(), nil)

	req.Status = core.StatusCompleted
	req.OutputLocation = location
	req.ProcessingDurationMs = elapsed.Milliseconds()
	p.notify(ctx, req)
	return nil
}

// run aggregates and writes the artifact. A panic in either step is turned
// into an error so it lands on this request only.
func (p *ReportProcessor) run(ctx context.Context, req core.ReportRequest) (location string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	body, err := p.aggregator.Aggregate(ctx, req.Kind)
	if err != nil {
		return "", err
	}
	location, err = p.artifacts.Write(ctx, req.RequestID, req.Kind, []byte(body))
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return location, nil
}

func (p *ReportProcessor) notify(ctx context.Context, req core.ReportRequest) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, req); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish report notification",
			log.NewFields().
				WithReport(req.RequestID, string(req.Kind)).
				WithOperation(log.OpNotify).
				WithError(err).
				ToSlice()...)
	}
}
