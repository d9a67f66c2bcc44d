package pools

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Test timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorkerPool_Basic(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64

	for i := 0; i < 100; i++ {
		if !pool.Submit(func() {
			counter.Add(1)
		}) {
			t.Fatal("Submit rejected on open pool")
		}
	}

	waitFor(t, func() bool { return pool.Stats().TasksCompleted >= 100 })

	if counter.Load() != 100 {
		t.Errorf("Expected 100 tasks completed, got %d", counter.Load())
	}
	if stats := pool.Stats(); stats.TasksSubmitted != 100 || stats.NumWorkers != 4 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestWorkerPool_DefaultSize(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	if pool.Stats().NumWorkers <= 0 {
		t.Error("Expected at least one worker")
	}
}

func TestWorkerPool_FIFO(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	var mu sync.Mutex
	order := make([]int, 0, 50)
	for i := 0; i < 50; i++ {
		i := i
		pool.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	waitFor(t, func() bool { return pool.Stats().TasksCompleted >= 50 })

	for i, v := range order {
		if v != i {
			t.Fatalf("Expected FIFO order, got %v", order)
		}
	}
}

func TestWorkerPool_Parallel(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	// Four tasks that only finish together prove four workers run at once
	var barrier sync.WaitGroup
	barrier.Add(4)
	done := make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		pool.Submit(func() {
			barrier.Done()
			barrier.Wait()
			done <- struct{}{}
		})
	}

	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Workers did not run concurrently")
		}
	}
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	ran := atomic.Bool{}
	if pool.Submit(func() { ran.Store(true) }) {
		t.Error("Submit after Close must be rejected")
	}
	time.Sleep(20 * time.Millisecond)
	if ran.Load() {
		t.Error("Rejected task must not run")
	}

	// Close is idempotent
	if n := pool.Close(); n != 0 {
		t.Errorf("Second Close should drop nothing, got %d", n)
	}
}

func TestWorkerPool_CloseFinishesRunningDropsQueued(t *testing.T) {
	pool := NewWorkerPool(1)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished, queuedRan atomic.Bool

	pool.Submit(func() {
		close(started)
		<-release
		finished.Store(true)
	})
	<-started

	for i := 0; i < 3; i++ {
		pool.Submit(func() { queuedRan.Store(true) })
	}

	closed := make(chan int)
	go func() { closed <- pool.Close() }()

	// Close must wait for the running task
	select {
	case <-closed:
		t.Fatal("Close returned before the running task finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	dropped := <-closed

	if !finished.Load() {
		t.Error("Running task should finish before Close returns")
	}
	if queuedRan.Load() {
		t.Error("Queued tasks must be dropped, not run")
	}
	if dropped != 3 {
		t.Errorf("Expected 3 dropped tasks, got %d", dropped)
	}
	if stats := pool.Stats(); stats.TasksDropped != 3 {
		t.Errorf("Expected TasksDropped=3, got %d", stats.TasksDropped)
	}
}

func TestWorkerPool_PanicRecovered(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	var recovered atomic.Value
	pool.OnPanic = func(v any) { recovered.Store(v) }

	pool.Submit(func() { panic("boom") })

	var after atomic.Bool
	pool.Submit(func() { after.Store(true) })

	waitFor(t, after.Load)

	if recovered.Load() != "boom" {
		t.Errorf("Expected recovered value boom, got %v", recovered.Load())
	}
	if pool.Stats().TasksPanicked != 1 {
		t.Errorf("Expected 1 panicked task, got %d", pool.Stats().TasksPanicked)
	}
}

func TestBytePool(t *testing.T) {
	bp := NewBytePoolWithSizes([]int{1024, 4096})

	buf := bp.Get(1000)
	if len(buf) != 1000 || cap(buf) != 1024 {
		t.Errorf("Expected len 1000 cap 1024, got len %d cap %d", len(buf), cap(buf))
	}
	bp.Put(buf)

	big := bp.Get(10000)
	if len(big) != 10000 {
		t.Errorf("Expected direct allocation of 10000, got %d", len(big))
	}
	bp.Put(big)

	if stats := bp.Stats(); stats.Gets != 2 || stats.Puts != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestBufferPool(t *testing.T) {
	bp := NewBufferPool()

	buf := bp.Get(100)
	if len(*buf) != 0 || cap(*buf) < 100 {
		t.Errorf("Expected empty buffer with capacity, got len %d cap %d", len(*buf), cap(*buf))
	}
	*buf = append(*buf, "hello"...)
	bp.Put(buf)

	bp.Get(MediumBufferSize)
	bp.Get(LargeBufferSize * 2)

	stats := bp.Stats()
	if stats.TotalGets != 3 || stats.SmallHits != 1 || stats.MediumHits != 1 || stats.LargeHits != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	huge := make([]byte, 0, LargeBufferSize*4)
	bp.Put(&huge)
	if bp.Stats().Oversized != 1 {
		t.Error("Expected oversized buffer to be dropped")
	}
}

func BenchmarkWorkerPool_Submit(b *testing.B) {
	pool := NewWorkerPool(8)
	defer pool.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			pool.Submit(func() {
				_ = 1 + 1
			})
		}
	})

	for pool.Stats().TasksCompleted < uint64(b.N) {
		time.Sleep(1 * time.Millisecond)
	}
}
