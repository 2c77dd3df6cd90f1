// Package postgres persists leave requests and their audit trail in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"leaveflow/internal/domain/leave"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const requestColumns = `id, employee_id, leave_type, start_date, end_date, reason, status, created_at, is_deleted`

func (s *Store) Get(ctx context.Context, id int64) (leave.LeaveRequest, error) {
	return getRequest(ctx, s.DB, id, false)
}

func (s *Store) Find(ctx context.Context, filter leave.Filter) ([]leave.LeaveRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM leave_requests WHERE NOT is_deleted`
	var args []any
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		query += " AND employee_id = $1"
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		if len(args) == 1 {
			query += " AND status = $1"
		} else {
			query += " AND status = $2"
		}
	}
	query += " ORDER BY id"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.LeaveRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *Store) History(ctx context.Context, leaveID int64) ([]leave.StatusHistoryEntry, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, leave_id, previous_status, new_status, changed_by, changed_at, remarks
    FROM leave_status_history
    WHERE leave_id = $1
    ORDER BY changed_at, id
  `, leaveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.StatusHistoryEntry
	for rows.Next() {
		var (
			entry leave.StatusHistoryEntry
			prev  *string
			next  string
		)
		if err := rows.Scan(&entry.ID, &entry.LeaveID, &prev, &next, &entry.ChangedBy, &entry.ChangedAt, &entry.Remarks); err != nil {
			return nil, err
		}
		if prev != nil {
			entry.PreviousStatus = leave.Status(*prev).Ptr()
		}
		entry.NewStatus = leave.Status(next)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.DB.Ping(ctx)
}

func (s *Store) Begin(ctx context.Context) (leave.UnitOfWork, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &unit{tx: tx}, nil
}

type unit struct {
	tx       pgx.Tx
	affected int
}

// Get locks the row for the rest of the transaction.
func (u *unit) Get(ctx context.Context, id int64) (leave.LeaveRequest, error) {
	return getRequest(ctx, u.tx, id, true)
}

func (u *unit) Add(ctx context.Context, req *leave.LeaveRequest) error {
	if err := u.tx.QueryRow(ctx, `
    INSERT INTO leave_requests (employee_id, leave_type, start_date, end_date, reason, status, created_at, is_deleted)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    RETURNING id
  `, req.EmployeeID, req.LeaveType, req.StartDate, req.EndDate, req.Reason, string(req.Status), req.CreatedAt, req.IsDeleted).Scan(&req.ID); err != nil {
		return err
	}
	u.affected++
	return nil
}

func (u *unit) Update(ctx context.Context, req leave.LeaveRequest) error {
	tag, err := u.tx.Exec(ctx, `
    UPDATE leave_requests
    SET leave_type = $2, start_date = $3, end_date = $4, reason = $5, status = $6, is_deleted = $7
    WHERE id = $1
  `, req.ID, req.LeaveType, req.StartDate, req.EndDate, req.Reason, string(req.Status), req.IsDeleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return leave.ErrNotFound
	}
	u.affected += int(tag.RowsAffected())
	return nil
}

func (u *unit) AppendHistory(ctx context.Context, entry *leave.StatusHistoryEntry) error {
	var prev *string
	if entry.PreviousStatus != nil {
		p := string(*entry.PreviousStatus)
		prev = &p
	}
	if err := u.tx.QueryRow(ctx, `
    INSERT INTO leave_status_history (leave_id, previous_status, new_status, changed_by, changed_at, remarks)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id
  `, entry.LeaveID, prev, string(entry.NewStatus), entry.ChangedBy, entry.ChangedAt, entry.Remarks).Scan(&entry.ID); err != nil {
		return err
	}
	u.affected++
	return nil
}

func (u *unit) Commit(ctx context.Context) (int, error) {
	if err := u.tx.Commit(ctx); err != nil {
		return 0, err
	}
	return u.affected, nil
}

func (u *unit) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	if err != nil {
		slog.Warn("leave store rollback failed", "err", err)
	}
	return err
}

func getRequest(ctx context.Context, q Querier, id int64, lock bool) (leave.LeaveRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM leave_requests WHERE id = $1 AND NOT is_deleted`
	if lock {
		query += " FOR UPDATE"
	}
	req, err := scanRequest(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.LeaveRequest{}, leave.ErrNotFound
	}
	return req, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (leave.LeaveRequest, error) {
	var (
		req    leave.LeaveRequest
		status string
	)
	if err := row.Scan(&req.ID, &req.EmployeeID, &req.LeaveType, &req.StartDate, &req.EndDate, &req.Reason, &status, &req.CreatedAt, &req.IsDeleted); err != nil {
		return leave.LeaveRequest{}, err
	}
	req.Status = leave.Status(status)
	req.StartDate = leave.DateOnly(req.StartDate)
	req.EndDate = leave.DateOnly(req.EndDate)
	return req, nil
}
