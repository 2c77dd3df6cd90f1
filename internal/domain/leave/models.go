package leave

import "time"

type LeaveRequest struct {
	ID         int64     `json:"id"`
	EmployeeID string    `json:"employeeId"`
	LeaveType  string    `json:"leaveType"`
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`
	Reason     string    `json:"reason,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	IsDeleted  bool      `json:"-"`
}

// StatusHistoryEntry is one immutable row of the audit trail. PreviousStatus is
// nil only for the creation entry.
type StatusHistoryEntry struct {
	ID             int64     `json:"id"`
	LeaveID        int64     `json:"leaveId"`
	PreviousStatus *Status   `json:"previousStatus"`
	NewStatus      Status    `json:"newStatus"`
	ChangedBy      string    `json:"changedBy"`
	ChangedAt      time.Time `json:"changedAt"`
	Remarks        string    `json:"remarks,omitempty"`
}

// Summary is the read-model row served from the cache.
type Summary struct {
	ID         int64     `json:"id"`
	EmployeeID string    `json:"employeeId"`
	LeaveType  string    `json:"leaveType"`
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Balance struct {
	LeaveType     string `json:"leaveType"`
	AllowanceDays int    `json:"allowanceDays"`
	UsedDays      int    `json:"usedDays"`
	RemainingDays int    `json:"remainingDays"`
}

type Dashboard struct {
	Requests []Summary `json:"requests"`
	Balances []Balance `json:"balances"`
}

// ApplyInput carries an employee's new leave request.
type ApplyInput struct {
	LeaveType string
	StartDate time.Time
	EndDate   time.Time
	Reason    string
}

func summarize(req LeaveRequest) Summary {
	return Summary{
		ID:         req.ID,
		EmployeeID: req.EmployeeID,
		LeaveType:  req.LeaveType,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Status:     req.Status,
		CreatedAt:  req.CreatedAt,
	}
}
