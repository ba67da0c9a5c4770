// Package revalidate runs background cache refreshes on a fixed set of workers
// draining a bounded queue.
//
// Submit never blocks: when the queue is full the task is dropped and Submit
// returns false. Dropped tasks are not retried; the next request past the
// freshness window schedules a new attempt. A panicking task is recovered and
// counted, and the worker keeps running.
package revalidate

import (
	"sync"
	"sync/atomic"
)

const (
	DefaultWorkers = 10
	DefaultQueue   = 100
)

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Submitted uint64
	Dropped   uint64
	Completed uint64
	Panicked  uint64
	Queued    int
}

type Pool struct {
	q  chan func()
	wg sync.WaitGroup

	mu     sync.RWMutex // guards closed against Submit racing Close
	closed bool
	once   sync.Once

	onPanic func(v any)

	submitted atomic.Uint64
	dropped   atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

type Option func(*Pool)

// WithPanicHandler is called (on the worker goroutine) with the recovered value.
func WithPanicHandler(fn func(v any)) Option {
	return func(p *Pool) { p.onPanic = fn }
}

// New starts workers goroutines draining a queue of qlen tasks.
// Non-positive values select DefaultWorkers / DefaultQueue.
func New(workers, qlen int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if qlen <= 0 {
		qlen = DefaultQueue
	}

	p := &Pool{q: make(chan func(), qlen)}
	for _, o := range opts {
		o(p)
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for f := range p.q {
				p.run(f)
			}
		}()
	}
	return p
}

// Submit enqueues task without blocking. It returns false if the task was dropped
// because the queue is full or the pool is closed.
func (p *Pool) Submit(task func()) bool {
	if task == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return false
	}
	select {
	case p.q <- task:
		p.submitted.Add(1)
		return true
	default: // drop
		p.dropped.Add(1)
		return false
	}
}

// Close stops accepting tasks, runs what is already queued and waits for workers.
// Safe to call more than once.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.q)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Queued:    len(p.q),
	}
}

func (p *Pool) run(f func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			if p.onPanic != nil {
				p.onPanic(r)
			}
			return
		}
		p.completed.Add(1)
	}()
	f()
}
