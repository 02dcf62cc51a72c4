// Package parallel runs CPU-side precomputation, such as distortion mesh
// generation, across a fixed set of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a fixed set of goroutines that execute batches of jobs.
//
// Each worker owns a queue. An idle worker steals from the other queues
// before blocking on its own, which evens out batches whose jobs differ in
// cost (for example mesh rows near the lens edge, where the spline is
// evaluated further out).
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case <-p.done:
			drain(own)
			return
		case job := <-own:
			job()
			continue
		default:
		}

		if job := p.steal(id); job != nil {
			job()
			continue
		}

		select {
		case <-p.done:
			drain(own)
			return
		case job := <-own:
			job()
		}
	}
}

func drain(queue chan func()) {
	for {
		select {
		case job := <-queue:
			job()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case job := <-p.queues[i]:
			return job
		default:
		}
	}
	return nil
}

// ForEach calls fn(i) for every i in [0, n) across the workers and waits
// for all calls to return. On a closed pool the calls run on the caller's
// goroutine.
func (p *WorkerPool) ForEach(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if !p.running.Load() {
		for i := range n {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		job := func() {
			defer wg.Done()
			fn(i)
		}
		select {
		case p.queues[i%p.workers] <- job:
		case <-p.done:
			job()
		}
	}
	wg.Wait()
}

// Close stops the workers after draining queued jobs.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}
