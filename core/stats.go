package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/searchktools/mini-server/core/http"
	"github.com/searchktools/mini-server/core/observability"
	"github.com/searchktools/mini-server/core/pools"
)

// Stats is a point-in-time view of the engine
type Stats struct {
	OpenConns    int                           `json:"open_conns"`
	Requests     uint64                        `json:"requests"`
	Errors       uint64                        `json:"errors"`
	AvgLatency   time.Duration                 `json:"avg_latency_ns"`
	Workers      pools.WorkerPoolStats         `json:"workers"`
	ReadBuffers  pools.BytePoolStats           `json:"read_buffers"`
	WriteBuffers pools.BufferStats             `json:"write_buffers"`
	Routes       []observability.RouteSnapshot `json:"routes"`
}

// Stats collects statistics from the pools and the monitor
func (e *Engine) Stats() Stats {
	stats := Stats{
		OpenConns:    e.OpenConns(),
		ReadBuffers:  e.readBufs.Stats(),
		WriteBuffers: e.writeBufs.Stats(),
		Routes:       e.monitor.Snapshot(),
	}
	stats.Requests, stats.Errors, stats.AvgLatency = e.monitor.Totals()

	e.mu.Lock()
	pool := e.pool
	e.mu.Unlock()
	if pool != nil {
		stats.Workers = pool.Stats()
	}

	return stats
}

// StatsJSON returns engine statistics as JSON string
func (e *Engine) StatsJSON() string {
	data, _ := json.MarshalIndent(e.Stats(), "", "  ")
	return string(data)
}

// StatsText returns engine statistics as human-readable text
func (e *Engine) StatsText() string {
	s := e.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, `Server Statistics
=================

Connections:  %d open
Requests:     %d (%d errors, avg %v)

Worker Pool:
  Workers:    %d (%d busy)
  Submitted:  %d
  Completed:  %d
  Pending:    %d
  Dropped:    %d
  Panicked:   %d

Read Buffers:
  Gets:       %d
  Puts:       %d
  Allocs:     %d

Write Buffers:
  Gets:       %d (small %d, medium %d, large %d)
  Oversized:  %d
`,
		s.OpenConns,
		s.Requests, s.Errors, s.AvgLatency,
		s.Workers.NumWorkers, s.Workers.Busy,
		s.Workers.TasksSubmitted,
		s.Workers.TasksCompleted,
		s.Workers.TasksPending,
		s.Workers.TasksDropped,
		s.Workers.TasksPanicked,
		s.ReadBuffers.Gets, s.ReadBuffers.Puts, s.ReadBuffers.Allocs,
		s.WriteBuffers.TotalGets, s.WriteBuffers.SmallHits, s.WriteBuffers.MediumHits, s.WriteBuffers.LargeHits,
		s.WriteBuffers.Oversized,
	)

	if len(s.Routes) > 0 {
		b.WriteString("\nRoutes:\n")
		for _, r := range s.Routes {
			fmt.Fprintf(&b, "  %-40s %6d req  %4d err  avg %v\n", r.Name, r.Count, r.Errors, r.Avg)
		}
	}

	return b.String()
}

// StatsHandler serves Stats as JSON
func (e *Engine) StatsHandler() HandlerFunc {
	return func(req *http.Request, res *http.Response) {
		res.WriteJSON(200, e.Stats())
	}
}
