package leave

import "context"

// Filter narrows Find. Zero-valued fields do not constrain the result.
// Soft-deleted requests are never returned.
type Filter struct {
	EmployeeID string
	Status     Status
}

func (f Filter) Match(req LeaveRequest) bool {
	if req.IsDeleted {
		return false
	}
	if f.EmployeeID != "" && req.EmployeeID != f.EmployeeID {
		return false
	}
	if f.Status != "" && req.Status != f.Status {
		return false
	}
	return true
}

// Store is the persistent entity store. It carries no business rules.
type Store interface {
	Get(ctx context.Context, id int64) (LeaveRequest, error)
	Find(ctx context.Context, filter Filter) ([]LeaveRequest, error)
	History(ctx context.Context, leaveID int64) ([]StatusHistoryEntry, error)
	Begin(ctx context.Context) (UnitOfWork, error)
	Ping(ctx context.Context) error
}

// UnitOfWork groups the request mutation and its audit entry into one
// transaction. Get inside a unit of work reads under the store's write isolation
// so a concurrent transition on the same row observes the winner's status.
type UnitOfWork interface {
	Get(ctx context.Context, id int64) (LeaveRequest, error)
	Add(ctx context.Context, req *LeaveRequest) error
	Update(ctx context.Context, req LeaveRequest) error
	HistoryWriter
	Commit(ctx context.Context) (int, error)
	Rollback(ctx context.Context) error
}

// HistoryWriter appends audit entries. There is no update or delete.
type HistoryWriter interface {
	AppendHistory(ctx context.Context, entry *StatusHistoryEntry) error
}

// Notifier delivers best-effort messages. Implementations must not block on delivery.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}
