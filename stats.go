package atw

import (
	"sync/atomic"
	"time"

	"github.com/gogpu/atw/mailbox"
	"github.com/gogpu/gpucontext"
)

// Stats is a snapshot of App counters.
type Stats struct {
	// Adapter is the GPU the app runs on.
	Adapter gpucontext.AdapterInfo

	// Backend is the name of the warp backend.
	Backend string

	// WarpFrames counts presented warp frames.
	WarpFrames uint64

	// Adopted counts warp frames that picked up a new scene frame. The
	// other outcomes count frames that re-warped the previous scene frame.
	Adopted uint64
	Stale   uint64
	Pending uint64
	Busy    uint64

	// Skipped counts refreshes without a swapchain image or focus.
	Skipped uint64

	// MissedRefreshes counts presents that arrived a refresh or more late.
	MissedRefreshes uint64

	// SceneFrames counts published scene frames.
	SceneFrames uint64

	// WarpCPUTime and SceneCPUTime are the CPU cost of the last frame of
	// each thread.
	WarpCPUTime  time.Duration
	SceneCPUTime time.Duration
}

// SceneFramesPerWarpFrame returns the fraction of warp frames that showed
// a new scene frame.
func (s Stats) SceneFramesPerWarpFrame() float64 {
	if s.WarpFrames == 0 {
		return 0
	}
	return float64(s.Adopted) / float64(s.WarpFrames)
}

// counters are updated by the warp thread and read by anyone.
type counters struct {
	warpFrames atomic.Uint64
	adopted    atomic.Uint64
	stale      atomic.Uint64
	pending    atomic.Uint64
	busy       atomic.Uint64
	skipped    atomic.Uint64
	warpCPU    atomic.Int64
}

func (c *counters) consumed(r mailbox.Result) {
	switch r {
	case mailbox.ResultAdopted:
		c.adopted.Add(1)
	case mailbox.ResultStale:
		c.stale.Add(1)
	case mailbox.ResultPending:
		c.pending.Add(1)
	case mailbox.ResultBusy:
		c.busy.Add(1)
	}
}

func (c *counters) reset() {
	for _, v := range []*atomic.Uint64{&c.warpFrames, &c.adopted, &c.stale, &c.pending, &c.busy, &c.skipped} {
		v.Store(0)
	}
	c.warpCPU.Store(0)
}
