package observability

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor records per-route request counts and latencies.
// RecordRequest is safe for concurrent use from any worker.
type Monitor struct {
	enabled atomic.Bool
	routes  sync.Map // route key -> *RouteMetrics
	global  struct {
		totalRequests atomic.Uint64
		totalErrors   atomic.Uint64
		totalDuration atomic.Uint64
	}
}

// RouteMetrics stores per-route metrics
type RouteMetrics struct {
	Name           string
	Count          atomic.Uint64
	Errors         atomic.Uint64
	TotalDuration  atomic.Uint64
	MinDuration    atomic.Uint64
	MaxDuration    atomic.Uint64
	latencyBuckets [len(bucketBounds) + 1]atomic.Uint64
}

// Upper bounds of the latency histogram buckets; the last bucket is open
var bucketBounds = [...]time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
	10 * time.Second,
}

// Bottleneck represents a performance issue
type Bottleneck struct {
	Type     string
	Location string
	Severity int
	Impact   float64
	Details  string
}

// RouteSnapshot is a point-in-time copy of RouteMetrics
type RouteSnapshot struct {
	Name    string          `json:"name"`
	Count   uint64          `json:"count"`
	Errors  uint64          `json:"errors"`
	Avg     time.Duration   `json:"avg_ns"`
	Min     time.Duration   `json:"min_ns"`
	Max     time.Duration   `json:"max_ns"`
	Buckets []uint64        `json:"buckets"`
	Bounds  []time.Duration `json:"bounds_ns"`
}

// NewMonitor creates an enabled monitor
func NewMonitor() *Monitor {
	m := &Monitor{}
	m.enabled.Store(true)
	return m
}

// SetEnabled turns recording on or off
func (m *Monitor) SetEnabled(on bool) {
	m.enabled.Store(on)
}

// RecordRequest records one finished request. isError marks 5xx responses
// and aborted handlers.
func (m *Monitor) RecordRequest(route string, duration time.Duration, isError bool) {
	if !m.enabled.Load() {
		return
	}

	val, ok := m.routes.Load(route)
	if !ok {
		val, _ = m.routes.LoadOrStore(route, &RouteMetrics{Name: route})
	}
	metrics := val.(*RouteMetrics)

	metrics.Count.Add(1)
	if isError {
		metrics.Errors.Add(1)
		m.global.totalErrors.Add(1)
	}

	d := uint64(duration.Nanoseconds())
	metrics.TotalDuration.Add(d)
	updateMinMax(metrics, d)
	metrics.latencyBuckets[bucketIndex(duration)].Add(1)

	m.global.totalRequests.Add(1)
	m.global.totalDuration.Add(d)
}

func updateMinMax(rm *RouteMetrics, d uint64) {
	for {
		min := rm.MinDuration.Load()
		if min != 0 && d >= min {
			break
		}
		if rm.MinDuration.CompareAndSwap(min, d) {
			break
		}
	}
	for {
		max := rm.MaxDuration.Load()
		if d <= max {
			break
		}
		if rm.MaxDuration.CompareAndSwap(max, d) {
			break
		}
	}
}

func bucketIndex(d time.Duration) int {
	for i, bound := range bucketBounds {
		if d < bound {
			return i
		}
	}
	return len(bucketBounds)
}

// Totals returns global request, error counts and the mean latency
func (m *Monitor) Totals() (requests, errors uint64, avg time.Duration) {
	requests = m.global.totalRequests.Load()
	errors = m.global.totalErrors.Load()
	if requests > 0 {
		avg = time.Duration(m.global.totalDuration.Load() / requests)
	}
	return requests, errors, avg
}

// Snapshot returns the metrics of every route, sorted by name
func (m *Monitor) Snapshot() []RouteSnapshot {
	out := make([]RouteSnapshot, 0)
	m.routes.Range(func(_, value any) bool {
		rm := value.(*RouteMetrics)
		count := rm.Count.Load()
		snap := RouteSnapshot{
			Name:    rm.Name,
			Count:   count,
			Errors:  rm.Errors.Load(),
			Min:     time.Duration(rm.MinDuration.Load()),
			Max:     time.Duration(rm.MaxDuration.Load()),
			Buckets: make([]uint64, len(rm.latencyBuckets)),
			Bounds:  bucketBounds[:],
		}
		if count > 0 {
			snap.Avg = time.Duration(rm.TotalDuration.Load() / count)
		}
		for i := range rm.latencyBuckets {
			snap.Buckets[i] = rm.latencyBuckets[i].Load()
		}
		out = append(out, snap)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Bottlenecks reports routes with high average latency (>100ms) or an error
// rate above 5%
func (m *Monitor) Bottlenecks() []Bottleneck {
	bottlenecks := make([]Bottleneck, 0)

	for _, snap := range m.Snapshot() {
		if snap.Count == 0 {
			continue
		}

		if snap.Avg > 100*time.Millisecond {
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:     "latency",
				Location: snap.Name,
				Severity: 8,
				Impact:   100.0,
				Details:  fmt.Sprintf("High latency (%v avg)", snap.Avg),
			})
		}

		rate := float64(snap.Errors) / float64(snap.Count)
		if snap.Errors > 0 && rate > 0.05 {
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:     "errors",
				Location: snap.Name,
				Severity: 10,
				Impact:   rate * 100,
				Details:  fmt.Sprintf("%.1f%% error rate", rate*100),
			})
		}
	}

	return bottlenecks
}
