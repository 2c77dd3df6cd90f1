package leave

import (
	"fmt"
	"strconv"
	"strings"
)

type Allowance struct {
	LeaveType string
	Days      int
}

// AllowanceTable is the fixed yearly allowance per leave type. Lookups ignore case;
// iteration keeps the configured order.
type AllowanceTable []Allowance

func DefaultAllowances() AllowanceTable {
	return AllowanceTable{
		{LeaveType: "Annual", Days: 20},
		{LeaveType: "Sick", Days: 10},
		{LeaveType: "Casual", Days: 7},
	}
}

// ParseAllowances reads "Annual=20,Sick=10" style definitions.
func ParseAllowances(raw string) (AllowanceTable, error) {
	var table AllowanceTable
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, days, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("allowance %q: expected Type=Days", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(days))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("allowance %q: days must be a non-negative integer", part)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, fmt.Errorf("allowance %q: duplicate leave type", name)
		}
		seen[key] = true
		table = append(table, Allowance{LeaveType: name, Days: n})
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("no allowances defined")
	}
	return table, nil
}

// Aggregator builds the employee dashboard from a request list. Leave types
// missing from the table are not reported.
type Aggregator struct {
	allowances AllowanceTable
}

func NewAggregator(allowances AllowanceTable) *Aggregator {
	return &Aggregator{allowances: allowances}
}

func (a *Aggregator) Balances(requests []Summary) []Balance {
	used := make(map[string]int)
	for _, r := range requests {
		if r.Status != StatusApproved {
			continue
		}
		used[strings.ToLower(r.LeaveType)] += InclusiveDays(r.StartDate, r.EndDate)
	}

	balances := make([]Balance, 0, len(a.allowances))
	for _, al := range a.allowances {
		u := used[strings.ToLower(al.LeaveType)]
		balances = append(balances, Balance{
			LeaveType:     al.LeaveType,
			AllowanceDays: al.Days,
			UsedDays:      u,
			RemainingDays: al.Days - u,
		})
	}
	return balances
}

func (a *Aggregator) Dashboard(requests []Summary) Dashboard {
	return Dashboard{Requests: requests, Balances: a.Balances(requests)}
}
