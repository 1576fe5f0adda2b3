package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ledgerreports/internal/core"
)

// RequestStore is the slice of the request store used by callers that create
// and inspect report requests.
type RequestStore interface {
	CreateBatch(ctx context.Context, kinds []core.Kind) (string, error)
	Get(ctx context.Context, requestID string, kind core.Kind) (core.ReportRequest, error)
	ListByRequest(ctx context.Context, requestID string) ([]core.ReportRequest, error)
	Requeue(ctx context.Context, requestID string, kind core.Kind) error
	Stats(ctx context.Context) (map[core.Status]int64, error)
}

// ReportService is the entry point for generation and status queries.
type ReportService struct {
	store RequestStore
}

func NewReportService(store RequestStore) *ReportService {
	return &ReportService{store: store}
}

// Generate creates one pending request per kind and returns their shared id.
func (s *ReportService) Generate(ctx context.Context) (string, error) {
	return s.store.CreateBatch(ctx, core.AllKinds())
}

// Status returns "finished in X.XX", the raw status token, or "not found".
// The error is non-nil only when the store itself failed.
func (s *ReportService) Status(ctx context.Context, requestID string, kind core.Kind) (string, error) {
	if strings.TrimSpace(requestID) == "" || kind.Validate() != nil {
		return core.NotFoundText, nil
	}
	r, err := s.store.Get(ctx, requestID, kind)
	if errors.Is(err, core.ErrNotFound) {
		return core.NotFoundText, nil
	}
	if err != nil {
		return "", err
	}
	return r.StatusText(), nil
}

// StatusAll returns the status text of every kind, keyed by the kind's
// output file name.
func (s *ReportService) StatusAll(ctx context.Context, requestID string) (map[string]string, error) {
	out := make(map[string]string, len(core.AllKinds()))
	for _, k := range core.AllKinds() {
		out[k.FileName()] = core.NotFoundText
	}
	if strings.TrimSpace(requestID) == "" {
		return out, nil
	}

	siblings, err := s.store.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	for _, r := range siblings {
		out[r.Kind.FileName()] = r.StatusText()
	}
	return out, nil
}

// Get returns the full request record.
func (s *ReportService) Get(ctx context.Context, requestID string, kind core.Kind) (core.ReportRequest, error) {
	return s.store.Get(ctx, requestID, kind)
}

// Requeue sends an errored request back to pending.
func (s *ReportService) Requeue(ctx context.Context, requestID string, kind core.Kind) error {
	if err := kind.Validate(); err != nil {
		return err
	}
	if err := s.store.Requeue(ctx, requestID, kind); err != nil {
		return fmt.Errorf("requeue %s/%s: %w", requestID, kind, err)
	}
	return nil
}

// Stats returns the number of requests per status, zero-filled.
func (s *ReportService) Stats(ctx context.Context) (map[core.Status]int64, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range []core.Status{core.StatusPending, core.StatusProcessing, core.StatusCompleted, core.StatusError} {
		if _, ok := stats[st]; !ok {
			stats[st] = 0
		}
	}
	return stats, nil
}
