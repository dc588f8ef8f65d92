// Package quota implements the Quota Engine (spec §4.4): point-in-time
// counters and sliding-window queues, both serializable per (org_id,
// resource), exposed through a single atomic check_and_consume.
package quota

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coreforge/agentcore/pkg/apierr"
	"github.com/coreforge/agentcore/pkg/config"
)

var (
	admitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_admits_total",
		Help: "Number of check_and_consume calls that admitted.",
	}, []string{"resource"})

	denialsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_denials_total",
		Help: "Number of check_and_consume calls that were denied.",
	}, []string{"resource"})
)

func init() {
	// org_id is deliberately excluded from these labels: it is
	// high-cardinality and unbounded, which would make the metric a
	// cardinality bomb under Prometheus's storage model.
	prometheus.MustRegister(admitsTotal, denialsTotal)
}

// orgState holds one organization's quota limits, point-in-time counters,
// and sliding-window queues. Every method on orgState requires mu to be
// held, guaranteeing the linear-history requirement for a single key; an
// operation on one resource never blocks a concurrent operation on another
// org's state because each org gets its own orgState and its own lock.
type orgState struct {
	mu       sync.Mutex
	limits   map[config.QuotaResource]int
	counters map[config.QuotaResource]int
	windows  map[config.QuotaResource][]time.Time
}

// Engine tracks per-org quota state in memory. Persistence is not part of
// the spec's contract for this subsystem: usage counters are expected to
// reset on process restart along with in-flight workflows (recovered
// separately by pkg/workflow).
type Engine struct {
	mu   sync.Mutex
	orgs map[string]*orgState
}

// New constructs an empty Engine.
func New() *Engine {
	return &Engine{orgs: make(map[string]*orgState)}
}

func (e *Engine) stateFor(orgID string, limits map[config.QuotaResource]int) *orgState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.orgs[orgID]
	if !ok {
		st = &orgState{
			limits:   cloneLimits(limits),
			counters: make(map[config.QuotaResource]int),
			windows:  make(map[config.QuotaResource][]time.Time),
		}
		e.orgs[orgID] = st
	}
	return st
}

func cloneLimits(in map[config.QuotaResource]int) map[config.QuotaResource]int {
	out := make(map[config.QuotaResource]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SetLimits atomically replaces an org's quota limits while preserving
// current usage counters (spec §4.3: set_plan downgrade/upgrade semantics).
func (e *Engine) SetLimits(orgID string, limits map[config.QuotaResource]int) {
	st := e.stateFor(orgID, limits)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.limits = cloneLimits(limits)
}

// Result is the outcome of CheckAndConsume.
type Result struct {
	Admitted  bool
	Remaining int
}

// CheckAndConsume is the engine's sole entry point. It is atomic per
// (org_id, resource): a rejected consume never mutates state.
func (e *Engine) CheckAndConsume(orgID string, resource config.QuotaResource, limits map[config.QuotaResource]int, n int, now time.Time) (Result, error) {
	st := e.stateFor(orgID, limits)
	st.mu.Lock()
	defer st.mu.Unlock()

	limit, ok := st.limits[resource]
	if !ok {
		return Result{}, apierr.New(apierr.KindInvalidInput, "unknown quota resource")
	}

	var res Result
	switch config.ResourceWindows[resource] {
	case config.WindowPointInTime:
		res = st.checkAndConsumePointInTime(resource, limit, n)
	default:
		res = st.checkAndConsumeSliding(resource, limit, n, now)
	}

	if res.Admitted {
		admitsTotal.WithLabelValues(string(resource)).Inc()
	} else {
		denialsTotal.WithLabelValues(string(resource)).Inc()
	}
	return res, nil
}

func (st *orgState) checkAndConsumePointInTime(resource config.QuotaResource, limit, n int) Result {
	current := st.counters[resource]
	if current+n > limit {
		return Result{Admitted: false, Remaining: limit - current}
	}
	st.counters[resource] = current + n
	return Result{Admitted: true, Remaining: limit - (current + n)}
}

func (st *orgState) checkAndConsumeSliding(resource config.QuotaResource, limit, n int, now time.Time) Result {
	window := config.ResourceWindowDuration(resource)
	queue := purge(st.windows[resource], now, window)

	if len(queue)+n > limit {
		st.windows[resource] = queue
		return Result{Admitted: false, Remaining: limit - len(queue)}
	}

	for i := 0; i < n; i++ {
		queue = append(queue, now)
	}
	st.windows[resource] = queue
	return Result{Admitted: true, Remaining: limit - len(queue)}
}

func purge(queue []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	idx := 0
	for idx < len(queue) && queue[idx].Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return queue
	}
	remaining := make([]time.Time, len(queue)-idx)
	copy(remaining, queue[idx:])
	return remaining
}

// Release decrements a point-in-time resource's counter by n (spec §4.4).
// Releasing a sliding-window resource is a no-op: those entries expire on
// their own via the window, and there is no "in-flight" unit to give back.
func (e *Engine) Release(orgID string, resource config.QuotaResource, limits map[config.QuotaResource]int, n int) {
	if config.ResourceWindows[resource] != config.WindowPointInTime {
		return
	}
	st := e.stateFor(orgID, limits)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.counters[resource] -= n
	if st.counters[resource] < 0 {
		st.counters[resource] = 0
	}
}

// Usage returns the current counter (point-in-time) or queue length
// (sliding) for a resource, for reporting/tests.
func (e *Engine) Usage(orgID string, resource config.QuotaResource, now time.Time) int {
	e.mu.Lock()
	st, ok := e.orgs[orgID]
	e.mu.Unlock()
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if config.ResourceWindows[resource] == config.WindowPointInTime {
		return st.counters[resource]
	}
	window := config.ResourceWindowDuration(resource)
	queue := purge(st.windows[resource], now, window)
	st.windows[resource] = queue
	return len(queue)
}
