// Package memory keeps leave requests and their audit trail in process memory.
// A unit of work holds the store's write lock from Begin until Commit or
// Rollback, which serializes transitions the way a row lock would.
package memory

import (
	"context"
	"errors"
	"sync"

	"leaveflow/internal/domain/leave"
)

var ErrUnitClosed = errors.New("unit of work already finished")

type Store struct {
	mu            sync.RWMutex
	requests      map[int64]leave.LeaveRequest
	history       []leave.StatusHistoryEntry
	nextID        int64
	nextHistoryID int64
}

func New() *Store {
	return &Store{requests: make(map[int64]leave.LeaveRequest)}
}

func (s *Store) Get(ctx context.Context, id int64) (leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return leave.LeaveRequest{}, leave.ErrNotFound
	}
	return req, nil
}

func (s *Store) Find(ctx context.Context, filter leave.Filter) ([]leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leave.LeaveRequest
	for _, req := range s.requests {
		if filter.Match(req) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *Store) History(ctx context.Context, leaveID int64) ([]leave.StatusHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leave.StatusHistoryEntry
	for _, entry := range s.history {
		if entry.LeaveID == leaveID {
			out = append(out, copyEntry(entry))
		}
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) Begin(ctx context.Context) (leave.UnitOfWork, error) {
	s.mu.Lock()
	return &unit{store: s, updates: make(map[int64]leave.LeaveRequest)}, nil
}

type unit struct {
	store   *Store
	added   []int64
	updates map[int64]leave.LeaveRequest
	history []leave.StatusHistoryEntry
	done    bool
}

func (u *unit) Get(ctx context.Context, id int64) (leave.LeaveRequest, error) {
	if u.done {
		return leave.LeaveRequest{}, ErrUnitClosed
	}
	if req, ok := u.updates[id]; ok {
		return req, nil
	}
	req, ok := u.store.requests[id]
	if !ok {
		return leave.LeaveRequest{}, leave.ErrNotFound
	}
	return req, nil
}

func (u *unit) Add(ctx context.Context, req *leave.LeaveRequest) error {
	if u.done {
		return ErrUnitClosed
	}
	u.store.nextID++
	req.ID = u.store.nextID
	u.added = append(u.added, req.ID)
	u.updates[req.ID] = *req
	return nil
}

func (u *unit) Update(ctx context.Context, req leave.LeaveRequest) error {
	if u.done {
		return ErrUnitClosed
	}
	if _, ok := u.updates[req.ID]; !ok {
		if _, ok := u.store.requests[req.ID]; !ok {
			return leave.ErrNotFound
		}
	}
	u.updates[req.ID] = req
	return nil
}

func (u *unit) AppendHistory(ctx context.Context, entry *leave.StatusHistoryEntry) error {
	if u.done {
		return ErrUnitClosed
	}
	u.store.nextHistoryID++
	entry.ID = u.store.nextHistoryID
	u.history = append(u.history, copyEntry(*entry))
	return nil
}

func (u *unit) Commit(ctx context.Context) (int, error) {
	if u.done {
		return 0, ErrUnitClosed
	}
	for id, req := range u.updates {
		u.store.requests[id] = req
	}
	u.store.history = append(u.store.history, u.history...)
	affected := len(u.updates) + len(u.history)
	u.finish()
	return affected, nil
}

func (u *unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.finish()
	return nil
}

func (u *unit) finish() {
	u.done = true
	u.store.mu.Unlock()
}

func copyEntry(entry leave.StatusHistoryEntry) leave.StatusHistoryEntry {
	if entry.PreviousStatus != nil {
		prev := *entry.PreviousStatus
		entry.PreviousStatus = &prev
	}
	return entry
}
