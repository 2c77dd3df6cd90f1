package leave

import "strings"

type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

var Statuses = []Status{StatusPending, StatusApproved, StatusRejected}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

func (s Status) Ptr() *Status {
	return &s
}

// ParseStatus matches a status name case-insensitively. Unknown names come back
// unchanged so callers can reject them with a validation error.
func ParseStatus(value string) Status {
	trimmed := strings.TrimSpace(value)
	for _, s := range Statuses {
		if strings.EqualFold(trimmed, string(s)) {
			return s
		}
	}
	return Status(trimmed)
}

type transition string

const (
	transitionApply    transition = "apply"
	transitionCancel   transition = "cancel"
	transitionApprove  transition = "approve"
	transitionReject   transition = "reject"
	transitionOverride transition = "override"
)

// guard decides the target status for a transition given the current request.
// ok=false means the transition is a no-op for this request.
type guard func(req LeaveRequest) (target Status, ok bool)

func cancelGuard(employeeID string) guard {
	return func(req LeaveRequest) (Status, bool) {
		if req.EmployeeID != employeeID || req.Status != StatusPending {
			return "", false
		}
		return StatusRejected, true
	}
}

func decideGuard(target Status) guard {
	return func(req LeaveRequest) (Status, bool) {
		if req.Status != StatusPending {
			return "", false
		}
		return target, true
	}
}

// overrideGuard is not gated on Pending; only a redundant target is refused.
func overrideGuard(target Status) guard {
	return func(req LeaveRequest) (Status, bool) {
		if req.Status == target {
			return "", false
		}
		return target, true
	}
}
