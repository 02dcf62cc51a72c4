package mailbox

import (
	"fmt"

	"github.com/gogpu/atw/core"
	"github.com/gogpu/atw/gpucore"
)

// Result is the outcome of one consume attempt.
type Result int

const (
	// ResultBusy means the producer held the slot lock.
	ResultBusy Result = iota

	// ResultStale means the slot holds nothing newer than the current frame.
	ResultStale

	// ResultPending means a newer frame exists but its GPU work is not done.
	ResultPending

	// ResultAdopted means the newer frame became the current frame.
	ResultAdopted
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultBusy:
		return "Busy"
	case ResultStale:
		return "Stale"
	case ResultPending:
		return "Pending"
	case ResultAdopted:
		return "Adopted"
	default:
		return "Unknown"
	}
}

// Consumer is the warp side of a Mailbox. Its state is local to the warp
// goroutine; a Consumer must not be shared.
type Consumer struct {
	mb      *Mailbox
	last    uint64
	current EyeTextures
}

// NewConsumer returns the consumer for m. A mailbox has exactly one consumer.
func (m *Mailbox) NewConsumer() *Consumer {
	return &Consumer{
		mb: m,
		current: EyeTextures{
			Projection: core.Identity(),
			View:       core.Identity(),
		},
	}
}

// TryConsume adopts the published frame if it is newer than the current one
// and all of its fences have signalled. It never blocks.
//
// Adoption must be sequential: a gap in indices means back-pressure failed
// and TryConsume panics.
func (c *Consumer) TryConsume() Result {
	candidate, ok := c.mb.snapshot()
	if !ok {
		return ResultBusy
	}
	if candidate.Index <= c.last {
		return ResultStale
	}
	for _, f := range candidate.CompletionFence {
		if !gpucore.FenceSignalled(f) {
			return ResultPending
		}
	}

	if candidate.Index != c.last+1 {
		panic(fmt.Sprintf("mailbox: adopting frame %d after frame %d", candidate.Index, c.last))
	}
	c.current = candidate
	c.last = candidate.Index
	c.mb.release(candidate.Index)
	return ResultAdopted
}

// Current returns the adopted frame. ok is false until the first adoption.
func (c *Consumer) Current() (frame EyeTextures, ok bool) {
	return c.current, c.last > 0
}

// LastConsumed returns the index of the adopted frame, 0 if none.
func (c *Consumer) LastConsumed() uint64 {
	return c.last
}

// ViewMatrix returns the view the adopted frame was rendered with.
func (c *Consumer) ViewMatrix() core.Mat4 {
	return c.current.View
}

// ProjectionMatrix returns the projection the adopted frame was rendered with.
func (c *Consumer) ProjectionMatrix() core.Mat4 {
	return c.current.Projection
}
