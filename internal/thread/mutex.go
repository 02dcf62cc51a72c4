package thread

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// Mutex is a recursive mutual exclusion lock.
//
// The goroutine holding the lock may lock it again; each Lock or successful
// TryLock must be balanced by an Unlock. The zero value is unlocked.
type Mutex struct {
	mu sync.Mutex

	// owner is the goroutine id of the holder, 0 when unlocked.
	owner atomic.Int64

	// depth is only touched by the owner.
	depth int
}

// Lock acquires m, blocking until it is available.
func (m *Mutex) Lock() {
	id := goid.Get()
	if m.owner.Load() == id {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner.Store(id)
	m.depth = 1
}

// TryLock acquires m without blocking and reports whether it succeeded.
func (m *Mutex) TryLock() bool {
	id := goid.Get()
	if m.owner.Load() == id {
		m.depth++
		return true
	}
	if !m.mu.TryLock() {
		return false
	}
	m.owner.Store(id)
	m.depth = 1
	return true
}

// Unlock releases one level of ownership of m.
// It panics if the calling goroutine does not hold m.
func (m *Mutex) Unlock() {
	if m.owner.Load() != goid.Get() {
		panic("thread: unlock of Mutex not held by this goroutine")
	}
	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}
