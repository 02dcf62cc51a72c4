package thread

import (
	"context"
	"sync"
	"time"
)

// Infinite makes Signal.Wait block until the signal is raised.
const Infinite time.Duration = -1

// Signal is an event that goroutines can wait on.
//
// An auto-reset signal clears itself when it releases a waiter. A
// manual-reset signal stays raised until Clear is called and releases every
// waiter in the meantime.
type Signal struct {
	mu        sync.Mutex
	autoReset bool
	raised    bool
	waiting   int

	// wake is closed and replaced on every Raise.
	wake chan struct{}
}

// NewSignal returns a lowered signal.
func NewSignal(autoReset bool) *Signal {
	return &Signal{
		autoReset: autoReset,
		wake:      make(chan struct{}),
	}
}

// Raise sets the signal and wakes all waiters.
func (s *Signal) Raise() {
	s.mu.Lock()
	s.raised = true
	if s.waiting > 0 {
		close(s.wake)
		s.wake = make(chan struct{})
	}
	s.mu.Unlock()
}

// Clear lowers the signal.
func (s *Signal) Clear() {
	s.mu.Lock()
	s.raised = false
	s.mu.Unlock()
}

// IsRaised reports the current state without waiting.
func (s *Signal) IsRaised() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raised
}

// Wait blocks until the signal is raised or timeout elapses and reports
// whether the caller was released by the signal.
//
// A negative timeout waits indefinitely. A zero timeout only polls. On
// timeout the signal state is left unchanged; an auto-reset signal is
// cleared only when it releases the caller.
func (s *Signal) Wait(timeout time.Duration) bool {
	if timeout < 0 {
		return s.wait(nil, nil)
	}
	if timeout == 0 {
		return s.wait(nil, closedChan)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	return s.wait(nil, timer.C)
}

// WaitContext blocks until the signal is raised or ctx is done.
// It returns ctx.Err() if the context ended first.
func (s *Signal) WaitContext(ctx context.Context) error {
	if s.wait(ctx.Done(), nil) {
		return nil
	}
	return ctx.Err()
}

var closedChan = func() <-chan time.Time {
	ch := make(chan time.Time)
	close(ch)
	return ch
}()

func (s *Signal) wait(done <-chan struct{}, expired <-chan time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.raised {
		wake := s.wake
		s.waiting++
		s.mu.Unlock()

		var timedOut bool
		select {
		case <-wake:
		case <-done:
			timedOut = true
		case <-expired:
			timedOut = true
		}

		s.mu.Lock()
		s.waiting--
		if timedOut && !s.raised {
			return false
		}
	}

	if s.autoReset {
		s.raised = false
	}
	return true
}
