package imageproc

import (
	"runtime"
	"sync"
)

// WorkerPool - fixed set of goroutines running preprocessing jobs
type WorkerPool struct {
	workers  int
	jobQueue chan func()
	once     sync.Once
	mu       sync.RWMutex
	started  bool
	closed   bool
}

// NewWorkerPool - workers <= 0 uses one worker per CPU
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Start - launch the workers (idempotent)
func (wp *WorkerPool) Start() {
	wp.once.Do(func() {
		wp.mu.Lock()
		defer wp.mu.Unlock()
		if wp.closed {
			return
		}
		for i := 0; i < wp.workers; i++ {
			go wp.worker()
		}
		wp.started = true
	})
}

func (wp *WorkerPool) worker() {
	for job := range wp.jobQueue {
		job()
	}
}

// TrySubmit - queue a job without blocking. False when the pool is not
// running or the queue is full; the caller runs the work itself.
func (wp *WorkerPool) TrySubmit(job func()) bool {
	if wp == nil {
		return false
	}

	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if !wp.started || wp.closed {
		return false
	}

	select {
	case wp.jobQueue <- job:
		return true
	default:
		return false
	}
}

// Close - stop accepting jobs and let workers drain
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return
	}
	wp.closed = true
	close(wp.jobQueue)
}
