package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"

	"github.com/searchktools/mini-server/core/http"
	"github.com/searchktools/mini-server/core/middleware"
	"github.com/searchktools/mini-server/core/observability"
	"github.com/searchktools/mini-server/core/pools"
	"github.com/searchktools/mini-server/core/router"
)

// HandlerFunc handles a routed request by filling in the response
type HandlerFunc = router.HandlerFunc

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithWorkers sets the worker count; n <= 0 uses the number of CPUs
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithBufferSize sets the per-connection read buffer size
func WithBufferSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.bufferSize = n
		}
	}
}

// WithReadTimeout bounds how long a connection may wait for a request
func WithReadTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.readTimeout = d
		}
	}
}

// WithWriteTimeout bounds how long writing a response may take
func WithWriteTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.writeTimeout = d
		}
	}
}

// WithMaxConns caps concurrently open connections; 0 means unbounded
func WithMaxConns(n int) Option {
	return func(e *Engine) { e.maxConns = n }
}

// WithReasonPhrases writes standard reason phrases ("404 Not Found")
// instead of the default "OK" on every status line
func WithReasonPhrases(on bool) Option {
	return func(e *Engine) {
		if on {
			e.reason = http.StatusText
		} else {
			e.reason = http.AlwaysOK
		}
	}
}

// WithMonitor replaces the request monitor
func WithMonitor(m *observability.Monitor) Option {
	return func(e *Engine) {
		if m != nil {
			e.monitor = m
		}
	}
}

// Engine is a small HTTP/1.1 server: one acceptor goroutine hands each
// connection to a fixed worker pool, which runs the connection until it
// closes.
//
// Routes and middleware must be registered before Run or Serve; the engine
// panics on registration once it has started.
type Engine struct {
	router *router.Router
	chain  *middleware.Chain

	log     zerolog.Logger
	monitor *observability.Monitor
	reason  http.ReasonFunc

	workers      int
	bufferSize   int
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxConns     int

	readBufs  *pools.BytePool
	writeBufs *pools.BufferPool

	mu       sync.Mutex
	listener net.Listener
	pool     *pools.WorkerPool

	conns   *xsync.MapOf[uint64, *connection]
	nextID  atomic.Uint64
	running atomic.Bool
	closing atomic.Bool
}

// NewEngine creates a new engine instance
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		router:       router.New(),
		chain:        middleware.NewChain(),
		log:          zerolog.Nop(),
		monitor:      observability.NewMonitor(),
		reason:       http.AlwaysOK,
		bufferSize:   DefaultBufferSize,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		readBufs:     pools.NewBytePool(),
		writeBufs:    pools.NewBufferPool(),
		conns:        xsync.NewMapOf[uint64, *connection](),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) mustNotRun(what string) {
	if e.running.Load() {
		panic("miniserver: " + what + " after the engine started")
	}
}

// Use appends a gate to the middleware chain
func (e *Engine) Use(gate middleware.Gate) {
	e.mustNotRun("Use")
	e.chain.Use(gate)
}

// Handle registers a handler for method and pattern
func (e *Engine) Handle(method, pattern string, handler HandlerFunc) {
	e.mustNotRun("route registration")
	e.router.Add(method, pattern, handler)
}

// GET registers a GET route
func (e *Engine) GET(pattern string, handler HandlerFunc) {
	e.Handle("GET", pattern, handler)
}

// POST registers a POST route
func (e *Engine) POST(pattern string, handler HandlerFunc) {
	e.Handle("POST", pattern, handler)
}

// PUT registers a PUT route
func (e *Engine) PUT(pattern string, handler HandlerFunc) {
	e.Handle("PUT", pattern, handler)
}

// DELETE registers a DELETE route
func (e *Engine) DELETE(pattern string, handler HandlerFunc) {
	e.Handle("DELETE", pattern, handler)
}

// PATCH registers a PATCH route
func (e *Engine) PATCH(pattern string, handler HandlerFunc) {
	e.Handle("PATCH", pattern, handler)
}

// HEAD registers a HEAD route
func (e *Engine) HEAD(pattern string, handler HandlerFunc) {
	e.Handle("HEAD", pattern, handler)
}

// OPTIONS registers an OPTIONS route
func (e *Engine) OPTIONS(pattern string, handler HandlerFunc) {
	e.Handle("OPTIONS", pattern, handler)
}

// Routes lists registered routes in registration order
func (e *Engine) Routes() []router.Route {
	return e.router.Routes()
}

// Monitor returns the request monitor
func (e *Engine) Monitor() *observability.Monitor {
	return e.monitor
}

// Run listens on addr (e.g. ":8080") and serves until Shutdown
func (e *Engine) Run(addr string) error {
	lc := net.ListenConfig{Control: controlListener}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("miniserver: listen %s: %w", addr, err)
	}
	return e.Serve(ln)
}

// Serve accepts connections on ln until Shutdown, which makes it return
// ErrServerClosed. Serve takes ownership of ln.
func (e *Engine) Serve(ln net.Listener) error {
	if e.closing.Load() {
		ln.Close()
		return ErrServerClosed
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrEngineRunning
	}

	if e.maxConns > 0 {
		ln = netutil.LimitListener(ln, e.maxConns)
	}

	pool := pools.NewWorkerPool(e.workers)
	pool.OnPanic = func(v any) {
		e.log.Error().Interface("panic", v).Msg("worker task panicked")
	}

	e.mu.Lock()
	e.listener = ln
	e.pool = pool
	e.mu.Unlock()

	// Shutdown may have run before the listener was published
	if e.closing.Load() {
		ln.Close()
		pool.Close()
		return ErrServerClosed
	}

	stats := pool.Stats()
	e.log.Info().
		Str("addr", ln.Addr().String()).
		Int("workers", stats.NumWorkers).
		Int("buffer_size", e.bufferSize).
		Int("max_conns", e.maxConns).
		Msg("server listening")
	for _, r := range e.router.Routes() {
		e.log.Debug().Str("method", r.Method).Str("pattern", r.Pattern).Msg("route")
	}

	return e.acceptLoop(ln, pool)
}

func (e *Engine) acceptLoop(ln net.Listener, pool *pools.WorkerPool) error {
	var backoff time.Duration

	for {
		nc, err := ln.Accept()
		if err != nil {
			if e.closing.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("miniserver: accept: %w", err)
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
			}
			if backoff > time.Second {
				backoff = time.Second
			}
			e.log.Warn().Err(err).Dur("retry_in", backoff).Msg("accept error")
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		c := e.newConnection(nc)
		e.conns.Store(c.id, c)
		if !pool.Submit(c.serve) {
			c.close()
		}
	}
}

// Shutdown stops accepting, wakes idle connections, lets in-flight requests
// finish and closes connections still waiting in the queue. If ctx expires
// first, every remaining connection is closed and ctx's error returned.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.closing.CompareAndSwap(false, true) {
		return nil
	}

	e.mu.Lock()
	ln, pool := e.listener, e.pool
	e.mu.Unlock()

	if ln != nil {
		ln.Close()
	}

	// Unblock connections parked in Read
	e.conns.Range(func(_ uint64, c *connection) bool {
		c.conn.SetReadDeadline(time.Unix(1, 0))
		return true
	})

	if pool == nil {
		return nil
	}

	done := make(chan int, 1)
	go func() { done <- pool.Close() }()

	select {
	case dropped := <-done:
		n := e.closeAll()
		e.log.Info().Int("dropped", dropped).Int("closed", n).Msg("server stopped")
		return nil
	case <-ctx.Done():
		n := e.closeAll()
		e.log.Warn().Int("closed", n).Msg("shutdown deadline exceeded")
		return ctx.Err()
	}
}

func (e *Engine) closeAll() int {
	n := 0
	e.conns.Range(func(_ uint64, c *connection) bool {
		c.close()
		n++
		return true
	})
	return n
}

// OpenConns returns the number of tracked connections
func (e *Engine) OpenConns() int {
	return e.conns.Size()
}
