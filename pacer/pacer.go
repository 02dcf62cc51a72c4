// Package pacer predicts display refresh times from raw swap timestamps.
//
// The scene producer time-stamps its view with the predicted next swap and
// the warp consumer uses the same prediction to pick its warp matrices, so
// both sides agree on when a frame will be seen.
package pacer

import (
	"sync"
	"time"
)

// Clock reports the time elapsed since an arbitrary fixed origin.
type Clock interface {
	Now() time.Duration
}

// MonotonicClock measures time from its creation using the monotonic clock.
type MonotonicClock struct {
	origin time.Time
}

// NewMonotonicClock returns a clock whose origin is now.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{origin: time.Now()}
}

// Now returns the time elapsed since the clock was created.
func (c *MonotonicClock) Now() time.Duration {
	return time.Since(c.origin)
}

// Smoothing constants. A swap that lands within 75% of a frame of its
// expected time is pulled towards the expectation; only 2.5% of the error
// is kept.
const (
	smoothWindow = 0.75
	smoothGain   = 0.025
)

// Pacer tracks the last swap time of a display and predicts the next one.
//
// Thread safety: Pacer is safe for concurrent use. The warp thread records
// swaps while the scene thread reads predictions.
type Pacer struct {
	mu          sync.Mutex
	refreshRate float64
	frameTime   time.Duration
	lastSwap    time.Duration
	swaps       uint64
	misses      uint64
}

// New returns a pacer for a display refreshing at refreshRate Hz.
// A non-positive rate is treated as 60 Hz.
func New(refreshRate float64) *Pacer {
	p := &Pacer{}
	p.SetRefreshRate(refreshRate)
	return p
}

// SetRefreshRate changes the display refresh rate.
func (p *Pacer) SetRefreshRate(hz float64) {
	if hz <= 0 {
		hz = 60
	}
	p.mu.Lock()
	p.refreshRate = hz
	p.frameTime = time.Duration(float64(time.Second) / hz)
	p.mu.Unlock()
}

// RefreshRate returns the display refresh rate in Hz.
func (p *Pacer) RefreshRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshRate
}

// FrameTime returns the duration of one refresh.
func (p *Pacer) FrameTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frameTime
}

// Swap records a swap observed at newTime and returns the smoothed swap time.
//
// The returned time is always strictly later than the previous one: a raw
// timestamp at or before the last swap is moved just past it.
func (p *Pacer) Swap(newTime time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	delta := newTime - p.lastSwap - p.frameTime
	if abs(delta) < time.Duration(float64(p.frameTime)*smoothWindow) {
		newTime = p.lastSwap + p.frameTime + time.Duration(float64(delta)*smoothGain)
	} else if p.swaps > 0 && delta > 0 {
		p.misses++
	}
	if p.swaps > 0 && newTime <= p.lastSwap {
		newTime = p.lastSwap + 1
	}

	p.lastSwap = newTime
	p.swaps++
	return newTime
}

// LastSwapTime returns the smoothed time of the most recent swap.
func (p *Pacer) LastSwapTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSwap
}

// NextSwapTime returns the predicted time of the next swap.
func (p *Pacer) NextSwapTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSwap + p.frameTime
}

// Swaps returns the number of swaps recorded.
func (p *Pacer) Swaps() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.swaps
}

// MissedRefreshes returns the number of swaps that arrived late by more
// than the smoothing window.
func (p *Pacer) MissedRefreshes() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.misses
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
