package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"ledgerreports/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the durable report request store.
//
// Each status transition is a single guarded UPDATE, so a concurrent reader
// sees either the previous field cluster or the new one, never a mix.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

// DSN builds the modernc sqlite connection string. WAL lets status polling
// read while the scheduler writes; busy_timeout absorbs writer contention.
func DSN(dbPath string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", dbPath)
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateBatch inserts one pending request per kind under a fresh request id.
// Either every row is committed or none is.
func (r *SQLiteRepository) CreateBatch(ctx context.Context, kinds []core.Kind) (string, error) {
	if len(kinds) == 0 {
		return "", storeErr("create batch", errors.New("no report kinds given"))
	}
	for _, k := range kinds {
		if err := k.Validate(); err != nil {
			return "", storeErr("create batch", err)
		}
	}

	requestID := uuid.NewString()
	now := r.now().UnixNano()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", storeErr("create batch", fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	for _, k := range kinds {
		if _, err := qtx.CreateReportRequest(ctx, CreateReportRequestParams{
			RequestID: requestID,
			Kind:      string(k),
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return "", storeErr("create batch", fmt.Errorf("insert %s request: %w", k, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return "", storeErr("create batch", fmt.Errorf("commit: %w", err))
	}

	slog.InfoContext(ctx, "Report requests created",
		"request_id", requestID,
		"kinds", len(kinds))

	return requestID, nil
}

// FindPending returns up to limit pending requests, oldest first.
func (r *SQLiteRepository) FindPending(ctx context.Context, limit int) ([]core.ReportRequest, error) {
	rows, err := r.queries.ListPendingReportRequests(ctx, int64(limit))
	if err != nil {
		return nil, storeErr("find pending", err)
	}
	return toCoreList(rows)
}

// Get returns the request for (requestID, kind), or core.ErrNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, requestID string, kind core.Kind) (core.ReportRequest, error) {
	row, err := r.queries.GetReportRequest(ctx, GetReportRequestParams{
		RequestID: requestID,
		Kind:      string(kind),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.ReportRequest{}, core.ErrNotFound
	}
	if err != nil {
		return core.ReportRequest{}, storeErr("get", err)
	}
	return toCore(row)
}

// ListByRequest returns the sibling requests of requestID in creation order.
func (r *SQLiteRepository) ListByRequest(ctx context.Context, requestID string) ([]core.ReportRequest, error) {
	rows, err := r.queries.ListReportRequestsByRequestID(ctx, requestID)
	if err != nil {
		return nil, storeErr("list by request", err)
	}
	return toCoreList(rows)
}

// MarkProcessing moves a request from pending to processing.
func (r *SQLiteRepository) MarkProcessing(ctx context.Context, requestID string, kind core.Kind) error {
	n, err := r.queries.MarkReportProcessing(ctx, MarkReportProcessingParams{
		UpdatedAt: r.now().UnixNano(),
		RequestID: requestID,
		Kind:      string(kind),
	})
	return r.checkUpdate(ctx, "mark processing", requestID, kind, core.StatusProcessing, n, err)
}

// MarkCompleted moves a request from processing to completed, recording the
// output location and duration in the same statement.
func (r *SQLiteRepository) MarkCompleted(ctx context.Context, requestID string, kind core.Kind, outputLocation string, duration time.Duration) error {
	n, err := r.queries.MarkReportCompleted(ctx, MarkReportCompletedParams{
		OutputLocation:       outputLocation,
		ProcessingDurationMs: duration.Milliseconds(),
		UpdatedAt:            r.now().UnixNano(),
		RequestID:            requestID,
		Kind:                 string(kind),
	})
	return r.checkUpdate(ctx, "mark completed", requestID, kind, core.StatusCompleted, n, err)
}

// MarkError moves a request from processing to error with a message.
func (r *SQLiteRepository) MarkError(ctx context.Context, requestID string, kind core.Kind, message string) error {
	if message == "" {
		message = "unknown error"
	}
	n, err := r.queries.MarkReportError(ctx, MarkReportErrorParams{
		ErrorMessage: message,
		UpdatedAt:    r.now().UnixNano(),
		RequestID:    requestID,
		Kind:         string(kind),
	})
	return r.checkUpdate(ctx, "mark error", requestID, kind, core.StatusError, n, err)
}

// Requeue is the operator recovery path: error -> pending, clearing the
// error message. The scheduler never calls it.
func (r *SQLiteRepository) Requeue(ctx context.Context, requestID string, kind core.Kind) error {
	n, err := r.queries.RequeueReport(ctx, RequeueReportParams{
		UpdatedAt: r.now().UnixNano(),
		RequestID: requestID,
		Kind:      string(kind),
	})
	if err := r.checkUpdate(ctx, "requeue", requestID, kind, core.StatusPending, n, err); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Report request requeued by operator",
		"request_id", requestID,
		"kind", kind)
	return nil
}

// FailStaleProcessing marks every request left in processing (by a process
// that died mid-item) as error. Returns the number of rows affected.
func (r *SQLiteRepository) FailStaleProcessing(ctx context.Context, message string) (int64, error) {
	n, err := r.queries.FailStaleProcessing(ctx, FailStaleProcessingParams{
		ErrorMessage: message,
		UpdatedAt:    r.now().UnixNano(),
	})
	if err != nil {
		return 0, storeErr("fail stale processing", err)
	}
	if n > 0 {
		slog.WarnContext(ctx, "Stale processing requests marked as error", "count", n)
	}
	return n, nil
}

// Stats returns the number of requests per status.
func (r *SQLiteRepository) Stats(ctx context.Context) (map[core.Status]int64, error) {
	rows, err := r.queries.CountReportRequestsByStatus(ctx)
	if err != nil {
		return nil, storeErr("stats", err)
	}
	stats := make(map[core.Status]int64, len(rows))
	for _, row := range rows {
		stats[core.Status(row.Status)] = row.Total
	}
	return stats, nil
}

// checkUpdate turns a zero-row guarded update into ErrNotFound or
// ErrInvalidTransition so a missed transition is never silent.
func (r *SQLiteRepository) checkUpdate(ctx context.Context, op, requestID string, kind core.Kind, target core.Status, n int64, err error) error {
	if err != nil {
		return storeErr(op, err)
	}
	if n > 0 {
		return nil
	}

	current, getErr := r.Get(ctx, requestID, kind)
	if errors.Is(getErr, core.ErrNotFound) {
		return storeErr(op, fmt.Errorf("%s/%s: %w", requestID, kind, core.ErrNotFound))
	}
	if getErr != nil {
		return getErr
	}
	return storeErr(op, fmt.Errorf("%s/%s %s -> %s: %w",
		requestID, kind, current.Status, target, core.ErrInvalidTransition))
}

func storeErr(op string, err error) error {
	return &core.StoreError{Op: op, Err: err}
}

func toCore(row ReportRequest) (core.ReportRequest, error) {
	status, err := core.ParseStatus(row.Status)
	if err != nil {
		return core.ReportRequest{}, storeErr("decode", err)
	}
	return core.ReportRequest{
		ID:                   row.ID,
		RequestID:            row.RequestID,
		Kind:                 core.Kind(row.Kind),
		Status:               status,
		ErrorMessage:         row.ErrorMessage.String,
		OutputLocation:       row.OutputLocation.String,
		ProcessingDurationMs: row.ProcessingDurationMs.Int64,
		CreatedAt:            time.Unix(0, row.CreatedAt),
		UpdatedAt:            time.Unix(0, row.UpdatedAt),
	}, nil
}

func toCoreList(rows []ReportRequest) ([]core.ReportRequest, error) {
	out := make([]core.ReportRequest, 0, len(rows))
	for _, row := range rows {
		r, err := toCore(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
