package thread

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Worker is a goroutine locked to its own OS thread that runs a function
// each time it is signalled.
//
// Lifecycle: created → idle → running → idle → ... → terminating → joined.
// At most one run is outstanding; signalling while a run is in progress
// schedules a single follow-up run, never more.
type Worker struct {
	name string

	mu sync.Mutex
	fn func()

	workAvailable *Signal // auto-reset
	workDone      *Signal // manual-reset

	terminate atomic.Bool
	exited    chan struct{}
}

// NewWorker starts a worker that will run fn when signalled.
// It returns once the worker goroutine is ready, so an immediate Join does
// not block.
func NewWorker(name string, fn func()) *Worker {
	w := &Worker{
		name:          name,
		fn:            fn,
		workAvailable: NewSignal(true),
		workDone:      NewSignal(false),
		exited:        make(chan struct{}),
	}
	go w.loop()
	w.workDone.Wait(Infinite)
	return w
}

// Name returns the worker name.
func (w *Worker) Name() string {
	return w.name
}

func (w *Worker) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.exited)

	for {
		w.workDone.Raise()
		w.workAvailable.Wait(Infinite)
		if w.terminate.Load() {
			w.workDone.Raise()
			return
		}

		w.mu.Lock()
		fn := w.fn
		w.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}

// Signal wakes the worker to run its function once.
func (w *Worker) Signal() {
	w.workDone.Clear()
	w.workAvailable.Raise()
}

// Join blocks until the worker is idle.
func (w *Worker) Join() {
	w.workDone.Wait(Infinite)
}

// Submit waits for the current run to finish, replaces the function and
// signals the worker.
func (w *Worker) Submit(fn func()) {
	w.Join()
	w.mu.Lock()
	w.fn = fn
	w.mu.Unlock()
	w.Signal()
}

// Destroy stops the worker after its current run and waits for the
// goroutine to exit. Destroy is safe to call multiple times.
func (w *Worker) Destroy() {
	if w.terminate.Swap(true) {
		<-w.exited
		return
	}
	w.Signal()
	<-w.exited
}
