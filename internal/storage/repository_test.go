package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ledgerreports/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "reports.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// fixedClock returns a clock that advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := cur
		cur = cur.Add(step)
		return t
	}
}

func TestCreateBatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreateBatch(ctx, core.AllKinds())
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if id == "" {
		t.Fatal("expected a request id")
	}

	for _, k := range core.AllKinds() {
		r, err := repo.Get(ctx, id, k)
		if err != nil {
			t.Fatalf("Get %s: %v", k, err)
		}
		if r.Status != core.StatusPending {
			t.Errorf("%s: expected pending, got %s", k, r.Status)
		}
		if r.OutputLocation != "" || r.ErrorMessage != "" || r.ProcessingDurationMs != 0 {
			t.Errorf("%s: pending request carries terminal fields: %+v", k, r)
		}
		if err := r.Validate(); err != nil {
			t.Errorf("%s: invalid row: %v", k, err)
		}
	}

	siblings, err := repo.ListByRequest(ctx, id)
	if err != nil {
		t.Fatalf("ListByRequest: %v", err)
	}
	if len(siblings) != 3 {
		t.Fatalf("expected 3 siblings, got %d", len(siblings))
	}
	for i, k := range core.AllKinds() {
		if siblings[i].Kind != k {
			t.Errorf("sibling %d: expected %s, got %s", i, k, siblings[i].Kind)
		}
	}

	other, err := repo.CreateBatch(ctx, core.AllKinds())
	if err != nil {
		t.Fatalf("second CreateBatch: %v", err)
	}
	if other == id {
		t.Fatal("request ids must be unique")
	}
}

func TestCreateBatch_Atomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// The duplicate kind violates the (request_id, kind) uniqueness on the
	// second insert; the first must be rolled back with it.
	_, err := repo.CreateBatch(ctx, []core.Kind{core.KindBalance, core.KindYearly, core.KindBalance})
	if err == nil {
		t.Fatal("expected error for duplicate kind")
	}
	var se *core.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %T", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 0 {
		t.Fatalf("expected no rows after failed batch, got %v", stats)
	}
}

func TestCreateBatch_RejectsUnknownKind(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.CreateBatch(context.Background(), []core.Kind{core.KindBalance, "monthly"})
	if !errors.Is(err, core.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Get(context.Background(), "never-created", core.KindBalance)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindPending_OrderAndLimit(t *testing.T) {
	repo := newTestRepo(t)
	repo.now = fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := repo.CreateBatch(ctx, core.AllKinds())
		if err != nil {
			t.Fatalf("CreateBatch: %v", err)
		}
		ids = append(ids, id)
	}

	pending, err := repo.FindPending(ctx, 10)
	if err != nil {
		t.Fatalf("FindPending: %v", err)
	}
	if len(pending) != 10 {
		t.Fatalf("expected 10 pending, got %d", len(pending))
	}

	// Siblings share a timestamp; insertion order breaks the tie.
	for i, r := range pending {
		wantID := ids[i/3]
		wantKind := core.AllKinds()[i%3]
		if r.RequestID != wantID || r.Kind != wantKind {
			t.Fatalf("position %d: got %s/%s want %s/%s", i, r.RequestID, r.Kind, wantID, wantKind)
		}
	}

	// Items that leave pending are no longer selected.
	if err := repo.MarkProcessing(ctx, ids[0], core.KindBalance); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	pending, err = repo.FindPending(ctx, 1)
	if err != nil {
		t.Fatalf("FindPending: %v", err)
	}
	if len(pending) != 1 || pending[0].RequestID != ids[0] || pending[0].Kind != core.KindYearly {
		t.Fatalf("unexpected head of queue: %+v", pending)
	}
}

func TestLifecycle_Completed(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreateBatch(ctx, core.AllKinds())
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	if err := repo.MarkProcessing(ctx, id, core.KindBalance); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	r, _ := repo.Get(ctx, id, core.KindBalance)
	if r.Status != core.StatusProcessing {
		t.Fatalf("expected processing, got %s", r.Status)
	}

	if err := repo.MarkCompleted(ctx, id, core.KindBalance, "out/"+id+"/accounts.csv", 1530*time.Millisecond); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	r, _ = repo.Get(ctx, id, core.KindBalance)
	if r.Status != core.StatusCompleted {
		t.Fatalf("expected completed, got %s", r.Status)
	}
	if r.OutputLocation != "out/"+id+"/accounts.csv" || r.ProcessingDurationMs != 1530 {
		t.Fatalf("unexpected completion fields: %+v", r)
	}
	if got := r.StatusText(); got != "finished in 1.53" {
		t.Fatalf("unexpected status text %q", got)
	}

	// Terminal: no transition leaves completed.
	if err := repo.MarkError(ctx, id, core.KindBalance, "late failure"); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := repo.MarkProcessing(ctx, id, core.KindBalance); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestLifecycle_ErrorAndRequeue(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, _ := repo.CreateBatch(ctx, core.AllKinds())

	// Cannot fail an item that was never dispatched.
	if err := repo.MarkError(ctx, id, core.KindYearly, "boom"); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := repo.MarkProcessing(ctx, id, core.KindYearly); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := repo.MarkError(ctx, id, core.KindYearly, "reading ledger directory: no such file"); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	r, _ := repo.Get(ctx, id, core.KindYearly)
	if r.Status != core.StatusError || r.ErrorMessage == "" || r.OutputLocation != "" {
		t.Fatalf("unexpected error row: %+v", r)
	}

	// Siblings are untouched.
	for _, k := range []core.Kind{core.KindBalance, core.KindStatement} {
		s, _ := repo.Get(ctx, id, k)
		if s.Status != core.StatusPending {
			t.Fatalf("%s: expected pending, got %s", k, s.Status)
		}
	}

	if err := repo.Requeue(ctx, id, core.KindYearly); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	r, _ = repo.Get(ctx, id, core.KindYearly)
	if r.Status != core.StatusPending || r.ErrorMessage != "" {
		t.Fatalf("unexpected requeued row: %+v", r)
	}

	// Only errored items can be requeued.
	if err := repo.Requeue(ctx, id, core.KindBalance); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdate_MissingRow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	checks := map[string]error{
		"processing": repo.MarkProcessing(ctx, "missing", core.KindBalance),
		"completed":  repo.MarkCompleted(ctx, "missing", core.KindBalance, "x", time.Millisecond),
		"error":      repo.MarkError(ctx, "missing", core.KindBalance, "x"),
		"requeue":    repo.Requeue(ctx, "missing", core.KindBalance),
	}
	for name, err := range checks {
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestFailStaleProcessing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, _ := repo.CreateBatch(ctx, core.AllKinds())
	_ = repo.MarkProcessing(ctx, id, core.KindStatement)

	n, err := repo.FailStaleProcessing(ctx, "interrupted")
	if err != nil {
		t.Fatalf("FailStaleProcessing: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
	r, _ := repo.Get(ctx, id, core.KindStatement)
	if r.Status != core.StatusError || r.ErrorMessage != "interrupted" {
		t.Fatalf("unexpected row: %+v", r)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[core.StatusPending] != 2 || stats[core.StatusError] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, _ := repo.CreateBatch(ctx, core.AllKinds())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			r, err := repo.Get(ctx, id, core.KindBalance)
			if err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
			if err := r.Validate(); err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
		}
	}()

	if err := repo.MarkProcessing(ctx, id, core.KindBalance); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := repo.MarkCompleted(ctx, id, core.KindBalance, "loc", 10*time.Millisecond); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	close(stop)
	wg.Wait()

	select {
	case err := <-errCh:
		t.Fatalf("reader observed inconsistent row: %v", err)
	default:
	}
}
