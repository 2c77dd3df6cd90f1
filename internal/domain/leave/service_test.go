package leave_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaveflow/internal/domain/leave"
	"leaveflow/internal/platform/cache"
	"leaveflow/internal/storage/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMessage struct {
	recipient, subject, body string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{recipient, subject, body})
	return n.err
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

var errCommit = errors.New("commit failed")

// failingStore fails every commit after releasing the underlying unit of work.
type failingStore struct {
	*memory.Store
}

func (s failingStore) Begin(ctx context.Context) (leave.UnitOfWork, error) {
	uow, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failingUnit{uow}, nil
}

type failingUnit struct {
	leave.UnitOfWork
}

func (u failingUnit) Commit(ctx context.Context) (int, error) {
	_ = u.UnitOfWork.Rollback(ctx)
	return 0, errCommit
}

type harness struct {
	svc      *leave.Service
	store    *memory.Store
	notifier *recordingNotifier
	clock    *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, memory.New(), nil)
}

func newHarnessWithStore(t *testing.T, base *memory.Store, wrap func(*memory.Store) leave.Store) *harness {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	entries, err := cache.New[[]leave.Summary](64, clock.Now)
	require.NoError(t, err)
	var store leave.Store = base
	if wrap != nil {
		store = wrap(base)
	}
	notifier := &recordingNotifier{}
	svc := leave.NewService(store, leave.NewReadCache(entries), notifier, leave.NewAggregator(leave.DefaultAllowances()), leave.WithClock(clock.Now))
	return &harness{svc: svc, store: base, notifier: notifier, clock: clock}
}

func day(month time.Month, d int) time.Time {
	return time.Date(2024, month, d, 0, 0, 0, 0, time.UTC)
}

func (h *harness) apply(t *testing.T, employeeID, leaveType string, start, end time.Time) int64 {
	t.Helper()
	id, err := h.svc.Apply(context.Background(), employeeID, leave.ApplyInput{LeaveType: leaveType, StartDate: start, EndDate: end})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	return id
}

// insertDirect writes a request behind the service's back so cache staleness is observable.
func (h *harness) insertDirect(t *testing.T, employeeID string, status leave.Status) int64 {
	t.Helper()
	ctx := context.Background()
	uow, err := h.store.Begin(ctx)
	require.NoError(t, err)
	req := leave.LeaveRequest{EmployeeID: employeeID, LeaveType: "Sick", StartDate: day(7, 1), EndDate: day(7, 1), Status: status, CreatedAt: h.clock.Now()}
	require.NoError(t, uow.Add(ctx, &req))
	_, err = uow.Commit(ctx)
	require.NoError(t, err)
	return req.ID
}

func balanceFor(t *testing.T, d leave.Dashboard, leaveType string) leave.Balance {
	t.Helper()
	for _, b := range d.Balances {
		if b.LeaveType == leaveType {
			return b
		}
	}
	t.Fatalf("no balance for %s", leaveType)
	return leave.Balance{}
}

func TestApplyApproveDashboardScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.apply(t, "emp1", "Annual", day(6, 10), day(6, 12))
	assert.Equal(t, int64(1), id)

	req, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, req.Status)

	changed, err := h.svc.Approve(ctx, id, "mgr1", "")
	require.NoError(t, err)
	assert.True(t, changed)

	req, err = h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, req.Status)

	history, err := h.svc.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Nil(t, history[0].PreviousStatus)
	assert.Equal(t, leave.StatusPending, history[0].NewStatus)
	assert.Equal(t, "Leave applied", history[0].Remarks)
	require.NotNil(t, history[1].PreviousStatus)
	assert.Equal(t, leave.StatusPending, *history[1].PreviousStatus)
	assert.Equal(t, leave.StatusApproved, history[1].NewStatus)
	assert.Equal(t, "mgr1", history[1].ChangedBy)

	dash, err := h.svc.Dashboard(ctx, "emp1")
	require.NoError(t, err)
	require.Len(t, dash.Requests, 1)
	annual := balanceFor(t, dash, "Annual")
	assert.Equal(t, 20, annual.AllowanceDays)
	assert.Equal(t, 3, annual.UsedDays)
	assert.Equal(t, 17, annual.RemainingDays)
	assert.Equal(t, leave.Balance{LeaveType: "Sick", AllowanceDays: 10, RemainingDays: 10}, balanceFor(t, dash, "Sick"))
	assert.Equal(t, leave.Balance{LeaveType: "Casual", AllowanceDays: 7, RemainingDays: 7}, balanceFor(t, dash, "Casual"))
}

func TestApplyNotifiesEmployee(t *testing.T) {
	h := newHarness(t)
	id := h.apply(t, "emp1", "Annual", day(6, 10), day(6, 12))

	sent := h.notifier.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "emp1", sent[0].recipient)
	assert.Equal(t, "Leave request submitted", sent[0].subject)
	assert.Equal(t, "Leave 1 from 10 Jun 2024 to 12 Jun 2024 submitted.", sent[0].body)

	_, err := h.svc.Reject(context.Background(), id, "mgr1", "busy")
	require.NoError(t, err)
	sent = h.notifier.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "Leave request rejected", sent[1].subject)
	assert.Equal(t, "Your leave request 1 has been rejected.", sent[1].body)
}

func TestApplyInvertedRangePersistsNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	all, err := h.svc.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
	h.insertDirect(t, "emp9", leave.StatusPending)

	_, err = h.svc.Apply(ctx, "emp1", leave.ApplyInput{LeaveType: "Annual", StartDate: day(6, 12), EndDate: day(6, 10)})
	require.Error(t, err)
	assert.True(t, leave.IsValidation(err))
	var verr *leave.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end date earlier than start date", verr.Message)

	found, err := h.store.Find(ctx, leave.Filter{EmployeeID: "emp1"})
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Empty(t, h.notifier.messages())

	all, err = h.svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "a failed apply must not invalidate the cache")
}

func TestApplyRequiresLeaveTypeAndEmployee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Apply(ctx, "emp1", leave.ApplyInput{LeaveType: " ", StartDate: day(6, 1), EndDate: day(6, 1)})
	assert.True(t, leave.IsValidation(err))

	_, err = h.svc.Apply(ctx, "", leave.ApplyInput{LeaveType: "Annual", StartDate: day(6, 1), EndDate: day(6, 1)})
	assert.True(t, leave.IsValidation(err))
}

func TestApplySameDayIsValid(t *testing.T) {
	h := newHarness(t)
	id := h.apply(t, "emp1", "Sick", day(6, 3), day(6, 3))
	req, err := h.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, leave.InclusiveDays(req.StartDate, req.EndDate))
}

func TestApplySurvivesCancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id, err := h.svc.Apply(ctx, "emp1", leave.ApplyInput{LeaveType: "Annual", StartDate: day(6, 10), EndDate: day(6, 10)})
	require.NoError(t, err)

	changed, err := h.svc.Approve(ctx, id, "mgr1", "")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestDecisionsArePendingGated(t *testing.T) {
	ctx := context.Background()
	for _, terminal := range []leave.Status{leave.StatusApproved, leave.StatusRejected} {
		t.Run(string(terminal), func(t *testing.T) {
			h := newHarness(t)
			id := h.apply(t, "emp1", "Annual", day(6, 10), day(6, 12))
			changed, err := h.svc.Override(ctx, id, "hr1", terminal, "")
			require.NoError(t, err)
			require.True(t, changed)
			before, err := h.svc.History(ctx, id)
			require.NoError(t, err)
			sentBefore := len(h.notifier.messages())

			attempts := map[string]func() (bool, error){
				"approve": func() (bool, error) { return h.svc.Approve(ctx, id, "mgr1", "") },
				"reject":  func() (bool, error) { return h.svc.Reject(ctx, id, "mgr1", "") },
				"cancel":  func() (bool, error) { return h.svc.Cancel(ctx, id, "emp1") },
			}
			for name, attempt := range attempts {
				changed, err := attempt()
				require.NoError(t, err, name)
				assert.False(t, changed, name)
			}

			req, err := h.svc.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, terminal, req.Status)
			after, err := h.svc.History(ctx, id)
			require.NoError(t, err)
			assert.Len(t, after, len(before))
			assert.Len(t, h.notifier.messages(), sentBefore)
		})
	}
}

func TestNoOpDoesNotInvalidateCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.apply(t, "emp1", "Annual", day(6, 10), day(6, 12))
	changed, err := h.svc.Approve(ctx, id, "mgr1", "")
	require.NoError(t, err)
	require.True(t, changed)

	pending, err := h.svc.ListPendingForManagers(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	h.insertDirect(t, "emp2", leave.StatusPending)

	changed, err = h.svc.Reject(ctx, id, "mgr1", "")
	require.NoError(t, err)
	require.False(t, changed)

	pending, err = h.svc.ListPendingForManagers(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "cached list must survive a no-op")

	h.apply(t, "emp3", "Casual", day(8, 1), day(8, 2))
	pending, err = h.svc.ListPendingForManagers(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestCancelRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.apply(t, "emp1", "Annual", day(6, 10), day(6, 12))

	changed, err := h.svc.Cancel(ctx, id, "emp2")
	require.NoError(t, err)
	assert.False(t, changed)
	req, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, req.Status)

	changed, err = h.svc.Cancel(ctx, id, "emp1")
	require.NoError(t, err)
	assert.True(t, changed)
	req, err = h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, req.Status)

	history, err := h.svc.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Cancelled by employee", history[1].Remarks)
	assert.Equal(t, "emp1", history[1].ChangedBy)

	sent := h.notifier.messages()
	assert.Equal(t, "Your leave request 1 has been cancelled.", sent[len(sent)-1].body)

	changed, err = h.svc.Cancel(ctx, id, "emp1")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMissingRequestIsNoOp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for name, attempt := range map[string]func() (bool, error){
		"cancel":   func() (bool, error) { return h.svc.Cancel(ctx, 99, "emp1") },
		"approve":  func() (bool, error) { return h.svc.Approve(ctx, 99, "mgr1", "") },
		"reject":   func() (bool, error) { return h.svc.Reject(ctx, 99, "mgr1", "") },
		"override": func() (bool, error) { return h.svc.Override(ctx, 99, "hr1", leave.StatusApproved, "") },
	} {
		changed, err := attempt()
		require.NoError(t, err, name)
		assert.False(t, changed, name)
	}

	_, err := h.svc.Get(ctx, 99)
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestOverrideUnlocksTerminalState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.apply(t, "emp1", "Annual", day(6, 10), day(6, 12))

	changed, err := h.svc.Approve(ctx, id, "mgr1", "")
	require.NoError(t, err)
	require.True(t, changed)
	h.clock.Advance(time.Minute)

	changed, err = h.svc.Override(ctx, id, "hr1", leave.StatusPending, "reopen")
	require.NoError(t, err)
	assert.True(t, changed)
	h.clock.Advance(time.Minute)

	changed, err = h.svc.Approve(ctx, id, "mgr1", "")
	require.NoError(t, err)
	assert.True(t, changed)

	history, err := h.svc.History(ctx, id)
	require.NoError(t, err)
	got := make([]leave.Status, 0, len(history))
	for _, e := range history {
		got = append(got, e.NewStatus)
	}
	assert.Equal(t, []leave.Status{leave.StatusPending, leave.StatusApproved, leave.StatusPending, leave.StatusApproved}, got)

	sent := h.notifier.messages()
	assert.Contains(t, sent, sentMessage{"emp1", "Leave request status overridden", "Your leave request 1 status has been changed to Pending."})
}

func TestOverrideToCurrentStatusIsNoOp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.apply(t, "emp1", "Annual", day(6, 10), day(6, 12))

	changed, err := h.svc.Override(ctx, id, "hr1", leave.StatusPending, "")
	require.NoError(t, err)
	assert.False(t, changed)

	history, err := h.svc.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestOverrideRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.apply(t, "emp1", "Annual", day(6, 10), day(6, 12))

	_, err := h.svc.Override(ctx, id, "hr1", leave.Status("Cancelled"), "")
	require.Error(t, err)
	assert.True(t, leave.IsValidation(err))
	assert.Equal(t, "invalid status for override", err.Error())
}

func TestHistoryMatchesEveryTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.apply(t, "emp1", "Sick", day(6, 10), day(6, 11))

	steps := []struct {
		run  func() (bool, error)
		want leave.Status
	}{
		{func() (bool, error) { return h.svc.Reject(ctx, id, "mgr1", "no") }, leave.StatusRejected},
		{func() (bool, error) { return h.svc.Override(ctx, id, "hr1", leave.StatusApproved, "") }, leave.StatusApproved},
		{func() (bool, error) { return h.svc.Override(ctx, id, "hr1", leave.StatusRejected, "") }, leave.StatusRejected},
	}
	for _, step := range steps {
		h.clock.Advance(time.Second)
		changed, err := step.run()
		require.NoError(t, err)
		require.True(t, changed)

		req, err := h.svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, step.want, req.Status)
		history, err := h.svc.History(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, step.want, history[len(history)-1].NewStatus)
	}

	history, err := h.svc.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, len(steps)+1)
	for i := 1; i < len(history); i++ {
		require.NotNil(t, history[i].PreviousStatus)
		assert.Equal(t, history[i-1].NewStatus, *history[i].PreviousStatus)
	}
}

func TestReadsReflectWritesImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.apply(t, "emp1", "Annual", day(6, 10), day(6, 12))

	mine, err := h.svc.ListForEmployee(ctx, "emp1")
	require.NoError(t, err)
	pending, err := h.svc.ListPendingForManagers(ctx)
	require.NoError(t, err)
	all, err := h.svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Len(t, pending, 1)
	require.Len(t, all, 1)

	changed, err := h.svc.Approve(ctx, id, "mgr1", "")
	require.NoError(t, err)
	require.True(t, changed)

	mine, err = h.svc.ListForEmployee(ctx, "emp1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, mine[0].Status)
	pending, err = h.svc.ListPendingForManagers(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	all, err = h.svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, all[0].Status)
}

func TestListOrdering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.apply(t, "emp1", "Annual", day(6, 10), day(6, 12))
	second := h.apply(t, "emp2", "Sick", day(6, 3), day(6, 3))
	third := h.apply(t, "emp1", "Casual", day(7, 1), day(7, 2))

	mine, err := h.svc.ListForEmployee(ctx, "emp1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, []int64{third, first}, []int64{mine[0].ID, mine[1].ID})

	pending, err := h.svc.ListPendingForManagers(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []int64{first, second, third}, []int64{pending[0].ID, pending[1].ID, pending[2].ID})

	all, err := h.svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{third, second, first}, []int64{all[0].ID, all[1].ID, all[2].ID})
}

func TestNotifierFailureIsAbsorbed(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("smtp down")
	ctx := context.Background()

	id, err := h.svc.Apply(ctx, "emp1", leave.ApplyInput{LeaveType: "Annual", StartDate: day(6, 10), EndDate: day(6, 12)})
	require.NoError(t, err)

	changed, err := h.svc.Approve(ctx, id, "mgr1", "")
	require.NoError(t, err)
	assert.True(t, changed)

	mine, err := h.svc.ListForEmployee(ctx, "emp1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, leave.StatusApproved, mine[0].Status)
}

func TestCommitFailurePropagatesAndLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	seed := newHarnessWithStore(t, base, nil)
	id := seed.apply(t, "emp1", "Annual", day(6, 10), day(6, 12))

	h := newHarnessWithStore(t, base, func(s *memory.Store) leave.Store { return failingStore{s} })

	changed, err := h.svc.Approve(ctx, id, "mgr1", "")
	assert.ErrorIs(t, err, errCommit)
	assert.False(t, changed)
	assert.Empty(t, h.notifier.messages())

	req, err := base.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, req.Status)
	history, err := base.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = h.svc.Apply(ctx, "emp2", leave.ApplyInput{LeaveType: "Sick", StartDate: day(6, 1), EndDate: day(6, 1)})
	assert.ErrorIs(t, err, errCommit)
	found, err := base.Find(ctx, leave.Filter{EmployeeID: "emp2"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestConcurrentApprovalsHaveOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.apply(t, "emp1", "Annual", day(6, 10), day(6, 12))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var changed bool
			var err error
			if i%2 == 0 {
				changed, err = h.svc.Approve(ctx, id, "mgr1", "")
			} else {
				changed, err = h.svc.Reject(ctx, id, "mgr2", "")
			}
			if err == nil && changed {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	history, err := h.svc.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
