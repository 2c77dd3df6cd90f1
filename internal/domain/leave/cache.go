package leave

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"leaveflow/internal/platform/cache"
	"leaveflow/internal/platform/metrics"
)

const (
	pendingCacheKey        = "leave:pending"
	allCacheKey            = "leave:all"
	employeeCacheKeyPrefix = "leave:employee:"

	familyEmployee = "employee"
	familyPending  = "pending"
	familyAll      = "all"
)

var (
	EmployeePolicy = cache.Policy{Absolute: 5 * time.Minute, Sliding: time.Minute}
	PendingPolicy  = cache.Policy{Absolute: 2 * time.Minute}
	AllPolicy      = cache.Policy{Absolute: 2 * time.Minute}
)

func EmployeeCacheKey(employeeID string) string {
	return employeeCacheKeyPrefix + employeeID
}

type order int

const (
	newestFirst order = iota
	oldestFirst
)

type query struct {
	key    string
	family string
	policy cache.Policy
	filter Filter
	order  order
}

func employeeQuery(employeeID string) query {
	return query{key: EmployeeCacheKey(employeeID), family: familyEmployee, policy: EmployeePolicy, filter: Filter{EmployeeID: employeeID}, order: newestFirst}
}

func pendingQuery() query {
	return query{key: pendingCacheKey, family: familyPending, policy: PendingPolicy, filter: Filter{Status: StatusPending}, order: oldestFirst}
}

func allQuery() query {
	return query{key: allCacheKey, family: familyAll, policy: AllPolicy, order: newestFirst}
}

// ReadCache serves the three list projections. A miss reads the store without
// holding the cache lock; concurrent misses on one key share a single read.
type ReadCache struct {
	entries *cache.Cache[[]Summary]
	group   singleflight.Group
}

func NewReadCache(entries *cache.Cache[[]Summary]) *ReadCache {
	return &ReadCache{entries: entries}
}

func (c *ReadCache) load(ctx context.Context, store Store, q query) ([]Summary, error) {
	if rows, ok := c.entries.Get(q.key); ok {
		metrics.CacheLookups.WithLabelValues(q.family, "hit").Inc()
		return rows, nil
	}
	metrics.CacheLookups.WithLabelValues(q.family, "miss").Inc()

	v, err, _ := c.group.Do(q.key, func() (any, error) {
		gen := c.entries.Generation(q.key)
		reqs, err := store.Find(ctx, q.filter)
		if err != nil {
			return nil, err
		}
		rows := project(reqs, q.order)
		if !c.entries.SetIfGeneration(q.key, gen, rows, q.policy) {
			slog.Debug("leave cache fill skipped after invalidation", "key", q.key)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	rows, ok := v.([]Summary)
	if !ok {
		return project(nil, q.order), nil
	}
	return rows, nil
}

// invalidate drops the owner's list and both global lists.
func (c *ReadCache) invalidate(employeeID string) {
	c.remove(EmployeeCacheKey(employeeID), familyEmployee)
	c.remove(pendingCacheKey, familyPending)
	c.remove(allCacheKey, familyAll)
}

func (c *ReadCache) remove(key, family string) {
	c.entries.Remove(key)
	c.group.Forget(key)
	metrics.CacheInvalidations.WithLabelValues(family).Inc()
}

func project(reqs []LeaveRequest, o order) []Summary {
	rows := make([]Summary, 0, len(reqs))
	for _, req := range reqs {
		rows = append(rows, summarize(req))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			if o == oldestFirst {
				return a.ID < b.ID
			}
			return a.ID > b.ID
		}
		if o == oldestFirst {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return rows
}
