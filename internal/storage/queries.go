package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

type ReportRequest struct {
	ID                   int64
	RequestID            string
	Kind                 string
	Status               string
	ErrorMessage         sql.NullString
	OutputLocation       sql.NullString
	ProcessingDurationMs sql.NullInt64
	CreatedAt            int64
	UpdatedAt            int64
}

const reportRequestColumns = `id, request_id, kind, status, error_message, output_location, processing_duration_ms, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReportRequest(row rowScanner) (ReportRequest, error) {
	var i ReportRequest
	err := row.Scan(
		&i.ID,
		&i.RequestID,
		&i.Kind,
		&i.Status,
		&i.ErrorMessage,
		&i.OutputLocation,
		&i.ProcessingDurationMs,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createReportRequest = `-- name: CreateReportRequest :one
INSERT INTO report_requests (request_id, kind, status, created_at, updated_at)
VALUES (?, ?, 'pending', ?, ?)
RETURNING ` + reportRequestColumns

type CreateReportRequestParams struct {
	RequestID string
	Kind      string
	CreatedAt int64
	UpdatedAt int64
}

func (q *Queries) CreateReportRequest(ctx context.Context, arg CreateReportRequestParams) (ReportRequest, error) {
	row := q.db.QueryRowContext(ctx, createReportRequest,
		arg.RequestID,
		arg.Kind,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanReportRequest(row)
}

const getReportRequest = `-- name: GetReportRequest :one
SELECT ` + reportRequestColumns + `
FROM report_requests
WHERE request_id = ? AND kind = ?`

type GetReportRequestParams struct {
	RequestID string
	Kind      string
}

func (q *Queries) GetReportRequest(ctx context.Context, arg GetReportRequestParams) (ReportRequest, error) {
	row := q.db.QueryRowContext(ctx, getReportRequest, arg.RequestID, arg.Kind)
	return scanReportRequest(row)
}

const listPendingReportRequests = `-- name: ListPendingReportRequests :many
SELECT ` + reportRequestColumns + `
FROM report_requests
WHERE status = 'pending'
ORDER BY created_at ASC, id ASC
LIMIT ?`

func (q *Queries) ListPendingReportRequests(ctx context.Context, limit int64) ([]ReportRequest, error) {
	return q.list(ctx, listPendingReportRequests, limit)
}

const listReportRequestsByRequestID = `-- name: ListReportRequestsByRequestID :many
SELECT ` + reportRequestColumns + `
FROM report_requests
WHERE request_id = ?
ORDER BY id ASC`

func (q *Queries) ListReportRequestsByRequestID(ctx context.Context, requestID string) ([]ReportRequest, error) {
	return q.list(ctx, listReportRequestsByRequestID, requestID)
}

func (q *Queries) list(ctx context.Context, query string, args ...interface{}) ([]ReportRequest, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReportRequest
	for rows.Next() {
		i, err := scanReportRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markReportProcessing = `-- name: MarkReportProcessing :execrows
UPDATE report_requests
SET status = 'processing', updated_at = ?
WHERE request_id = ? AND kind = ? AND status = 'pending'`

type MarkReportProcessingParams struct {
	UpdatedAt int64
	RequestID string
	Kind      string
}

func (q *Queries) MarkReportProcessing(ctx context.Context, arg MarkReportProcessingParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markReportProcessing, arg.UpdatedAt, arg.RequestID, arg.Kind)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markReportCompleted = `-- name: MarkReportCompleted :execrows
UPDATE report_requests
SET status = 'completed',
    output_location = ?,
    processing_duration_ms = ?,
    error_message = NULL,
    updated_at = ?
WHERE request_id = ? AND kind = ? AND status = 'processing'`

type MarkReportCompletedParams struct {
	OutputLocation       string
	ProcessingDurationMs int64
	UpdatedAt            int64
	RequestID            string
	Kind                 string
}

func (q *Queries) MarkReportCompleted(ctx context.Context, arg MarkReportCompletedParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markReportCompleted,
		arg.OutputLocation,
		arg.ProcessingDurationMs,
		arg.UpdatedAt,
		arg.RequestID,
		arg.Kind,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markReportError = `-- name: MarkReportError :execrows
UPDATE report_requests
SET status = 'error',
    error_message = ?,
    output_location = NULL,
    processing_duration_ms = NULL,
    updated_at = ?
WHERE request_id = ? AND kind = ? AND status = 'processing'`

type MarkReportErrorParams struct {
	ErrorMessage string
	UpdatedAt    int64
	RequestID    string
	Kind         string
}

func (q *Queries) MarkReportError(ctx context.Context, arg MarkReportErrorParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markReportError,
		arg.ErrorMessage,
		arg.UpdatedAt,
		arg.RequestID,
		arg.Kind,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const requeueReport = `-- name: RequeueReport :execrows
UPDATE report_requests
SET status = 'pending',
    error_message = NULL,
    output_location = NULL,
    processing_duration_ms = NULL,
    updated_at = ?
WHERE request_id = ? AND kind = ? AND status = 'error'`

type RequeueReportParams struct {
	UpdatedAt int64
	RequestID string
	Kind      string
}

func (q *Queries) RequeueReport(ctx context.Context, arg RequeueReportParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, requeueReport, arg.UpdatedAt, arg.RequestID, arg.Kind)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const failStaleProcessing = `-- name: FailStaleProcessing :execrows
UPDATE report_requests
SET status = 'error', error_message = ?, updated_at = ?
WHERE status = 'processing'`

type FailStaleProcessingParams struct {
	ErrorMessage string
	UpdatedAt    int64
}

func (q *Queries) FailStaleProcessing(ctx context.Context, arg FailStaleProcessingParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, failStaleProcessing, arg.ErrorMessage, arg.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countReportRequestsByStatus = `-- name: CountReportRequestsByStatus :many
SELECT status, COUNT(*) AS total
FROM report_requests
GROUP BY status`

type CountReportRequestsByStatusRow struct {
	Status string
	Total  int64
}

func (q *Queries) CountReportRequestsByStatus(ctx context.Context) ([]CountReportRequestsByStatusRow, error) {
	rows, err := q.db.QueryContext(ctx, countReportRequestsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountReportRequestsByStatusRow
	for rows.Next() {
		var i CountReportRequestsByStatusRow
		if err := rows.Scan(&i.Status, &i.Total); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
