// Package mailbox hands completed eye images from the scene producer to the
// warp consumer.
//
// The mailbox has a single slot. The producer blocks until the consumer has
// taken the previous payload, which bounds how far it can run ahead and lets
// it reuse textures and fences safely. The consumer never blocks: it polls
// once per warp frame with a try-lock and only adopts a payload whose GPU
// fences have all signalled.
//
// Protocol:
//
//	producer                          consumer (every refresh)
//	--------                          ------------------------
//	index = next++                    if !TryLock: no update
//	wait consumed (auto-reset)        snapshot slot; Unlock
//	Lock; slot = payload; Unlock      if fresh && fences signalled:
//	                                      adopt; raise consumed
//
// The consumed signal starts raised so the first publish does not wait.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/atw/core"
	"github.com/gogpu/atw/distortion"
	"github.com/gogpu/atw/gpucore"
	"github.com/gogpu/atw/internal/thread"
	"github.com/gogpu/wgpu/hal"
)

// ErrTerminated is returned by Publish once the mailbox has been terminated.
var ErrTerminated = errors.New("mailbox: terminated")

// EyeTextures is one published stereo frame.
//
// The producer owns every texture and fence referenced here; the mailbox and
// the consumer hold non-owning references.
type EyeTextures struct {
	// Index is assigned by Publish and increases by one per publication.
	Index uint64

	Projection core.Mat4
	View       core.Mat4

	// Texture holds the image of each eye. Both eyes may reference the same
	// array texture with different layers.
	Texture    [distortion.NumEyes]hal.TextureView
	ArrayLayer [distortion.NumEyes]uint32

	// CompletionFence signals when the rendering of each eye has finished.
	CompletionFence [distortion.NumEyes]gpucore.Fence

	// CPUTime and GPUTime are diagnostic frame costs.
	CPUTime time.Duration
	GPUTime time.Duration
}

// Mailbox is a single-slot handoff between one producer and one consumer.
type Mailbox struct {
	mu   thread.Mutex
	slot EyeTextures

	consumed  *thread.Signal
	terminate atomic.Bool

	// nextIndex is only touched by the producer.
	nextIndex uint64

	published    atomic.Uint64
	lastConsumed atomic.Uint64
}

// New returns an empty mailbox ready for its first publish.
func New() *Mailbox {
	m := &Mailbox{
		consumed:  thread.NewSignal(true),
		nextIndex: 1,
	}
	m.consumed.Raise()
	return m
}

// Publish stores p in the slot and returns the index assigned to it.
//
// Publish blocks until the consumer has adopted the previous payload. It
// returns ErrTerminated if the mailbox is terminated before or while
// waiting, and ctx.Err() if ctx ends first. Publish must only be called
// from the producer goroutine.
func (m *Mailbox) Publish(ctx context.Context, p EyeTextures) (uint64, error) {
	if m.terminate.Load() {
		return 0, ErrTerminated
	}
	p.Index = m.nextIndex

	if err := m.consumed.WaitContext(ctx); err != nil {
		return 0, fmt.Errorf("mailbox: publish %d: %w", p.Index, err)
	}
	if m.terminate.Load() {
		return 0, ErrTerminated
	}
	// The index is only spent once the payload reaches the slot.
	m.nextIndex++

	m.mu.Lock()
	m.slot = p
	m.mu.Unlock()

	m.published.Store(p.Index)
	return p.Index, nil
}

// Terminate releases a producer blocked in Publish and makes every later
// Publish fail with ErrTerminated. Terminate is safe to call multiple times.
func (m *Mailbox) Terminate() {
	m.terminate.Store(true)
	m.consumed.Raise()
}

// Terminated reports whether Terminate has been called.
func (m *Mailbox) Terminated() bool {
	return m.terminate.Load()
}

// LastPublished returns the index of the most recent publication, 0 if none.
func (m *Mailbox) LastPublished() uint64 {
	return m.published.Load()
}

// LastConsumed returns the index of the most recently adopted payload, 0 if
// none.
func (m *Mailbox) LastConsumed() uint64 {
	return m.lastConsumed.Load()
}

// snapshot copies the slot without blocking. ok is false if the slot is
// locked by the producer.
func (m *Mailbox) snapshot() (EyeTextures, bool) {
	if !m.mu.TryLock() {
		return EyeTextures{}, false
	}
	candidate := m.slot
	m.mu.Unlock()
	return candidate, true
}

// release records an adoption and lets the producer publish again.
func (m *Mailbox) release(index uint64) {
	m.lastConsumed.Store(index)
	m.consumed.Raise()
}
