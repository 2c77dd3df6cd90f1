package leave

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Recorder appends audit entries inside a unit of work. It exposes no way to
// change or remove an entry once written.
type Recorder struct {
	now func() time.Time
}

func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

func (r *Recorder) Record(ctx context.Context, w HistoryWriter, leaveID int64, previous *Status, next Status, actorID, remarks string) (StatusHistoryEntry, error) {
	if previous == nil && next != StatusPending {
		return StatusHistoryEntry{}, fmt.Errorf("%w: creation entry must be Pending, got %s", ErrHistoryOutOfOrder, next)
	}
	if previous != nil && *previous == next {
		return StatusHistoryEntry{}, fmt.Errorf("%w: %s to itself", ErrHistoryOutOfOrder, next)
	}
	entry := StatusHistoryEntry{
		LeaveID:        leaveID,
		PreviousStatus: previous,
		NewStatus:      next,
		ChangedBy:      actorID,
		ChangedAt:      r.now().UTC(),
		Remarks:        remarks,
	}
	if err := w.AppendHistory(ctx, &entry); err != nil {
		return StatusHistoryEntry{}, err
	}
	return entry, nil
}

// SortHistory orders entries by timestamp with insertion id as the tiebreak.
func SortHistory(entries []StatusHistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ChangedAt.Equal(entries[j].ChangedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].ChangedAt.Before(entries[j].ChangedAt)
	})
}
