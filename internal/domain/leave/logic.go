package leave

import "time"

// DateOnly drops the clock part of t and pins it to UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// InclusiveDays returns the day count between start and end with both ends included.
// No holiday or weekend calendar is applied.
func InclusiveDays(start, end time.Time) int {
	return int(DateOnly(end).Sub(DateOnly(start)).Hours()/24) + 1
}
