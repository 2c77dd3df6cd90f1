package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"leaveflow/internal/platform/metrics"
)

const (
	remarksApplied   = "Leave applied"
	remarksCancelled = "Cancelled by employee"

	notifyDateLayout = "02 Jan 2006"
)

// Service is the leave workflow engine. Writes go through a unit of work that
// pairs every status change with exactly one audit entry; reads go through the
// read cache.
type Service struct {
	store     Store
	cache     *ReadCache
	recorder  *Recorder
	notifier  Notifier
	dashboard *Aggregator
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, readCache *ReadCache, notifier Notifier, aggregator *Aggregator, opts ...Option) *Service {
	s := &Service{
		store:     store,
		cache:     readCache,
		notifier:  notifier,
		dashboard: aggregator,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recorder = NewRecorder(s.now)
	return s
}

func (s *Service) Apply(ctx context.Context, employeeID string, in ApplyInput) (int64, error) {
	if err := validateApply(employeeID, in); err != nil {
		return 0, err
	}
	ctx = context.WithoutCancel(ctx)

	uow, err := s.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			rollback(ctx, uow, transitionApply)
		}
	}()

	req := LeaveRequest{
		EmployeeID: employeeID,
		LeaveType:  strings.TrimSpace(in.LeaveType),
		StartDate:  DateOnly(in.StartDate),
		EndDate:    DateOnly(in.EndDate),
		Reason:     in.Reason,
		Status:     StatusPending,
		CreatedAt:  s.now().UTC(),
	}
	if err := uow.Add(ctx, &req); err != nil {
		slog.Error("leave apply persist failed", "employeeId", employeeID, "err", err)
		return 0, err
	}
	if _, err := s.recorder.Record(ctx, uow, req.ID, nil, StatusPending, employeeID, remarksApplied); err != nil {
		slog.Error("leave apply history failed", "leaveId", req.ID, "err", err)
		return 0, err
	}
	if _, err := uow.Commit(ctx); err != nil {
		slog.Error("leave apply commit failed", "leaveId", req.ID, "err", err)
		return 0, err
	}
	committed = true
	metrics.Transitions.WithLabelValues(string(transitionApply)).Inc()
	slog.Info("leave applied", "leaveId", req.ID, "employeeId", employeeID, "leaveType", req.LeaveType)

	s.notify(ctx, employeeID, "Leave request submitted",
		fmt.Sprintf("Leave %d from %s to %s submitted.", req.ID, req.StartDate.Format(notifyDateLayout), req.EndDate.Format(notifyDateLayout)))
	s.cache.invalidate(employeeID)
	return req.ID, nil
}

// Cancel withdraws the employee's own Pending request. Cancellation is
// recorded as a rejection.
func (s *Service) Cancel(ctx context.Context, leaveID int64, employeeID string) (bool, error) {
	return s.transition(ctx, transitionCancel, leaveID, employeeID, remarksCancelled, cancelGuard(employeeID),
		func(req LeaveRequest) (string, string) {
			return "Leave request cancelled", fmt.Sprintf("Your leave request %d has been cancelled.", req.ID)
		})
}

func (s *Service) Approve(ctx context.Context, leaveID int64, managerID, remarks string) (bool, error) {
	return s.transition(ctx, transitionApprove, leaveID, managerID, remarks, decideGuard(StatusApproved),
		func(req LeaveRequest) (string, string) {
			return "Leave request approved", fmt.Sprintf("Your leave request %d has been approved.", req.ID)
		})
}

func (s *Service) Reject(ctx context.Context, leaveID int64, managerID, remarks string) (bool, error) {
	return s.transition(ctx, transitionReject, leaveID, managerID, remarks, decideGuard(StatusRejected),
		func(req LeaveRequest) (string, string) {
			return "Leave request rejected", fmt.Sprintf("Your leave request %d has been rejected.", req.ID)
		})
}

// Override lets HR set any status, including moving a request out of Approved
// or Rejected. Setting the current status again is a no-op.
func (s *Service) Override(ctx context.Context, leaveID int64, hrID string, newStatus Status, remarks string) (bool, error) {
	if !newStatus.Valid() {
		return false, newValidationError("status", "invalid status for override")
	}
	return s.transition(ctx, transitionOverride, leaveID, hrID, remarks, overrideGuard(newStatus),
		func(req LeaveRequest) (string, string) {
			return "Leave request status overridden", fmt.Sprintf("Your leave request %d status has been changed to %s.", req.ID, req.Status)
		})
}

func (s *Service) transition(ctx context.Context, t transition, leaveID int64, actorID, remarks string, allow guard, message func(LeaveRequest) (string, string)) (bool, error) {
	ctx = context.WithoutCancel(ctx)

	uow, err := s.store.Begin(ctx)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			rollback(ctx, uow, t)
		}
	}()

	req, err := uow.Get(ctx, leaveID)
	if errors.Is(err, ErrNotFound) {
		metrics.NoOps.WithLabelValues(string(t)).Inc()
		return false, nil
	}
	if err != nil {
		return false, err
	}

	target, ok := allow(req)
	if !ok {
		metrics.NoOps.WithLabelValues(string(t)).Inc()
		slog.Debug("leave transition refused", "transition", t, "leaveId", leaveID, "status", req.Status, "actorId", actorID)
		return false, nil
	}

	previous := req.Status
	req.Status = target
	if err := uow.Update(ctx, req); err != nil {
		slog.Error("leave "+string(t)+" persist failed", "leaveId", leaveID, "err", err)
		return false, err
	}
	if _, err := s.recorder.Record(ctx, uow, req.ID, previous.Ptr(), target, actorID, remarks); err != nil {
		slog.Error("leave "+string(t)+" history failed", "leaveId", leaveID, "err", err)
		return false, err
	}
	if _, err := uow.Commit(ctx); err != nil {
		slog.Error("leave "+string(t)+" commit failed", "leaveId", leaveID, "err", err)
		return false, err
	}
	committed = true
	metrics.Transitions.WithLabelValues(string(t)).Inc()
	slog.Info("leave status changed", "transition", t, "leaveId", leaveID, "from", previous, "to", target, "actorId", actorID)

	subject, body := message(req)
	s.notify(ctx, req.EmployeeID, subject, body)
	s.cache.invalidate(req.EmployeeID)
	return true, nil
}

func (s *Service) Get(ctx context.Context, leaveID int64) (LeaveRequest, error) {
	return s.store.Get(ctx, leaveID)
}

func (s *Service) History(ctx context.Context, leaveID int64) ([]StatusHistoryEntry, error) {
	entries, err := s.store.History(ctx, leaveID)
	if err != nil {
		return nil, err
	}
	SortHistory(entries)
	return entries, nil
}

func (s *Service) ListForEmployee(ctx context.Context, employeeID string) ([]Summary, error) {
	return s.cache.load(ctx, s.store, employeeQuery(employeeID))
}

// ListPendingForManagers returns every Pending request, oldest first.
func (s *Service) ListPendingForManagers(ctx context.Context) ([]Summary, error) {
	return s.cache.load(ctx, s.store, pendingQuery())
}

func (s *Service) ListAll(ctx context.Context) ([]Summary, error) {
	return s.cache.load(ctx, s.store, allQuery())
}

func (s *Service) Dashboard(ctx context.Context, employeeID string) (Dashboard, error) {
	requests, err := s.ListForEmployee(ctx, employeeID)
	if err != nil {
		return Dashboard{}, err
	}
	return s.dashboard.Dashboard(requests), nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) notify(ctx context.Context, recipient, subject, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, recipient, subject, body); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		slog.Warn("leave notification failed", "recipient", recipient, "subject", subject, "err", err)
	}
}

func rollback(ctx context.Context, uow UnitOfWork, t transition) {
	if err := uow.Rollback(ctx); err != nil {
		slog.Warn("leave "+string(t)+" rollback failed", "err", err)
	}
}

func validateApply(employeeID string, in ApplyInput) error {
	if strings.TrimSpace(employeeID) == "" {
		return newValidationError("employeeId", "employee id is required")
	}
	if strings.TrimSpace(in.LeaveType) == "" {
		return newValidationError("leaveType", "leave type is required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return newValidationError("startDate", "start and end dates are required")
	}
	if DateOnly(in.EndDate).Before(DateOnly(in.StartDate)) {
		return newValidationError("endDate", "end date earlier than start date")
	}
	return nil
}
