package pools

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Task represents a unit of work
type Task func()

// WorkerPool runs tasks on a fixed set of long-lived goroutines that share
// one unbounded FIFO queue.
//
// Submit never blocks on in-flight work. Close stops the workers after their
// current task; tasks still queued at that point are dropped, not run.
type WorkerPool struct {
	numWorkers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	head   int
	closed bool

	wg sync.WaitGroup

	// OnPanic, if set, is called with the recovered value when a task panics.
	// The worker survives either way.
	OnPanic func(v any)

	// Statistics, padded so workers and the submitter do not share lines
	stats struct {
		_              cpu.CacheLinePad
		tasksSubmitted atomic.Uint64
		_              cpu.CacheLinePad
		tasksCompleted atomic.Uint64
		_              cpu.CacheLinePad
		tasksDropped   atomic.Uint64
		tasksPanicked  atomic.Uint64
		busy           atomic.Int64
		_              cpu.CacheLinePad
	}
}

// NewWorkerPool starts numWorkers workers. numWorkers <= 0 uses the number
// of CPUs.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	pool := &WorkerPool{
		numWorkers: numWorkers,
		queue:      make([]Task, 0, 256),
	}
	pool.cond = sync.NewCond(&pool.mu)

	pool.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go pool.run()
	}

	return pool
}

// Submit enqueues a task. It returns false, without queuing, once the pool
// is closed.
func (p *WorkerPool) Submit(task Task) bool {
	if task == nil {
		return false
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()

	p.stats.tasksSubmitted.Add(1)
	p.cond.Signal()
	return true
}

// run is the main loop for a worker goroutine
func (p *WorkerPool) run() {
	defer p.wg.Done()

	for {
		task, ok := p.next()
		if !ok {
			return
		}
		p.execute(task)
	}
}

// next blocks until a task is available or the pool is closed
func (p *WorkerPool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.closed && p.head == len(p.queue) {
		p.cond.Wait()
	}
	if p.closed {
		return nil, false
	}

	task := p.queue[p.head]
	p.queue[p.head] = nil
	p.head++

	// Compact once the consumed prefix dominates the slice
	if p.head == len(p.queue) {
		p.queue = p.queue[:0]
		p.head = 0
	} else if p.head > 1024 && p.head*2 > len(p.queue) {
		n := copy(p.queue, p.queue[p.head:])
		clear(p.queue[n:])
		p.queue = p.queue[:n]
		p.head = 0
	}

	return task, true
}

func (p *WorkerPool) execute(task Task) {
	p.stats.busy.Add(1)
	defer func() {
		p.stats.busy.Add(-1)
		p.stats.tasksCompleted.Add(1)
		if v := recover(); v != nil {
			p.stats.tasksPanicked.Add(1)
			if p.OnPanic != nil {
				p.OnPanic(v)
			}
		}
	}()
	task()
}

// Close signals the workers to stop, waits for running tasks to finish and
// returns the number of queued tasks that were dropped.
func (p *WorkerPool) Close() int {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0
	}
	p.closed = true
	dropped := len(p.queue) - p.head
	clear(p.queue)
	p.queue = nil
	p.head = 0
	p.mu.Unlock()

	p.stats.tasksDropped.Add(uint64(dropped))
	p.cond.Broadcast()
	p.wg.Wait()

	return dropped
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	p.mu.Lock()
	pending := len(p.queue) - p.head
	p.mu.Unlock()

	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		Busy:           int(p.stats.busy.Load()),
		TasksSubmitted: p.stats.tasksSubmitted.Load(),
		TasksCompleted: p.stats.tasksCompleted.Load(),
		TasksPending:   pending,
		TasksDropped:   p.stats.tasksDropped.Load(),
		TasksPanicked:  p.stats.tasksPanicked.Load(),
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int    `json:"num_workers"`
	Busy           int    `json:"busy"`
	TasksSubmitted uint64 `json:"tasks_submitted"`
	TasksCompleted uint64 `json:"tasks_completed"`
	TasksPending   int    `json:"tasks_pending"`
	TasksDropped   uint64 `json:"tasks_dropped"`
	TasksPanicked  uint64 `json:"tasks_panicked"`
}
