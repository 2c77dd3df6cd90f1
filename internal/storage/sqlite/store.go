// Package sqlite persists leave requests in a single-file SQLite database.
// Dates are stored as YYYY-MM-DD text, timestamps as RFC 3339 text. Write
// transactions start with BEGIN IMMEDIATE so the reserved lock is taken before
// the status is read.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"leaveflow/internal/domain/leave"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = time.RFC3339Nano
)

type Store struct {
	db *sql.DB
}

// New opens (and creates, if needed) the database at path and applies the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS leave_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('Pending', 'Approved', 'Rejected')),
		created_at TEXT NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee ON leave_requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status ON leave_requests(status);

	CREATE TABLE IF NOT EXISTS leave_status_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		leave_id INTEGER NOT NULL REFERENCES leave_requests(id),
		previous_status TEXT,
		new_status TEXT NOT NULL,
		changed_by TEXT NOT NULL,
		changed_at TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_leave_status_history_leave ON leave_status_history(leave_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const requestColumns = `id, employee_id, leave_type, start_date, end_date, reason, status, created_at, is_deleted`

func (s *Store) Get(ctx context.Context, id int64) (leave.LeaveRequest, error) {
	return getRequest(ctx, s.db, id)
}

func (s *Store) Find(ctx context.Context, filter leave.Filter) ([]leave.LeaveRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM leave_requests WHERE is_deleted = 0`
	var args []any
	if filter.EmployeeID != "" {
		query += " AND employee_id = ?"
		args = append(args, filter.EmployeeID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, leave_id, previous_status, new_status, changed_by, changed_at, remarks
		FROM leave_status_history
		WHERE leave_id = ?
		ORDER BY changed_at, id
	`, leaveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.StatusHistoryEntry
	for rows.Next() {
		var (
			entry     leave.StatusHistoryEntry
			prev      sql.NullString
			next      string
			changedAt string
		)
		if err := rows.Scan(&entry.ID, &entry.LeaveID, &prev, &next, &entry.ChangedBy, &changedAt, &entry.Remarks); err != nil {
			return nil, err
		}
		if prev.Valid {
			entry.PreviousStatus = leave.Status(prev.String).Ptr()
		}
		entry.NewStatus = leave.Status(next)
		if entry.ChangedAt, err = time.Parse(timestampLayout, changedAt); err != nil {
			return nil, fmt.Errorf("history %d: %w", entry.ID, err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Begin(ctx context.Context) (leave.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &unit{tx: tx}, nil
}

type unit struct {
	tx       *sql.Tx
	affected int
}

func (u *unit) Get(ctx context.Context, id int64) (leave.LeaveRequest, error) {
	return getRequest(ctx, u.tx, id)
}

func (u *unit) Add(ctx context.Context, req *leave.LeaveRequest) error {
	res, err := u.tx.ExecContext(ctx, `
		INSERT INTO leave_requests (employee_id, leave_type, start_date, end_date, reason, status, created_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, req.EmployeeID, req.LeaveType, req.StartDate.Format(dateLayout), req.EndDate.Format(dateLayout),
		req.Reason, string(req.Status), req.CreatedAt.UTC().Format(timestampLayout), req.IsDeleted)
	if err != nil {
		return err
	}
	if req.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	u.affected++
	return nil
}

func (u *unit) Update(ctx context.Context, req leave.LeaveRequest) error {
	res, err := u.tx.ExecContext(ctx, `
		UPDATE leave_requests
		SET leave_type = ?, start_date = ?, end_date = ?, reason = ?, status = ?, is_deleted = ?
		WHERE id = ?
	`, req.LeaveType, req.StartDate.Format(dateLayout), req.EndDate.Format(dateLayout),
		req.Reason, string(req.Status), req.IsDeleted, req.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return leave.ErrNotFound
	}
	u.affected += int(n)
	return nil
}

func (u *unit) AppendHistory(ctx context.Context, entry *leave.StatusHistoryEntry) error {
	var prev sql.NullString
	if entry.PreviousStatus != nil {
		prev = sql.NullString{String: string(*entry.PreviousStatus), Valid: true}
	}
	res, err := u.tx.ExecContext(ctx, `
		INSERT INTO leave_status_history (leave_id, previous_status, new_status, changed_by, changed_at, remarks)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.LeaveID, prev, string(entry.NewStatus), entry.ChangedBy, entry.ChangedAt.UTC().Format(timestampLayout), entry.Remarks)
	if err != nil {
		return err
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	u.affected++
	return nil
}

func (u *unit) Commit(ctx context.Context) (int, error) {
	if err := u.tx.Commit(); err != nil {
		return 0, err
	}
	return u.affected, nil
}

func (u *unit) Rollback(ctx context.Context) error {
	err := u.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func getRequest(ctx context.Context, q queryer, id int64) (leave.LeaveRequest, error) {
	req, err := scanRequest(q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ? AND is_deleted = 0`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveRequest{}, leave.ErrNotFound
	}
	return req, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (leave.LeaveRequest, error) {
	var (
		req                         leave.LeaveRequest
		start, end, status, created string
	)
	if err := row.Scan(&req.ID, &req.EmployeeID, &req.LeaveType, &start, &end, &req.Reason, &status, &created, &req.IsDeleted); err != nil {
		return leave.LeaveRequest{}, err
	}
	var err error
	if req.StartDate, err = time.Parse(dateLayout, start); err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("leave %d start date: %w", req.ID, err)
	}
	if req.EndDate, err = time.Parse(dateLayout, end); err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("leave %d end date: %w", req.ID, err)
	}
	if req.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("leave %d created at: %w", req.ID, err)
	}
	req.Status = leave.Status(status)
	return req, nil
}
