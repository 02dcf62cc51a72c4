// Package scene renders the stereo eye images that the time warp displays.
//
// A Producer drives a Scene on its own thread: it simulates the scene at the
// predicted next vsync, renders both eyes into the layers of an array
// texture and publishes the result to a mailbox. Publishing blocks until the
// warp has adopted the previous frame, which paces the producer to the
// display without it ever waiting on the warp directly.
package scene

import (
	"time"

	"github.com/gogpu/atw/core"
	"github.com/gogpu/atw/distortion"
	"github.com/gogpu/atw/internal/gpu"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Buffering is the number of eye texture sets a producer rotates through.
//
// While frame n is rendered, the warp may still sample frame n-1 or n-2 and
// the mailbox can hold n-1, so three sets keep the render target disjoint
// from anything the warp can adopt.
const Buffering = 3

// Settings are the scene knobs the producer snapshots once per frame.
type Settings struct {
	// Paused freezes the simulation clock. Eye views still follow the head.
	Paused bool

	// Load adds per-pixel shader iterations to simulate an expensive scene.
	Load int

	// IPD is the interpupillary distance in meters.
	IPD float32
}

// DefaultSettings returns settings for an unloaded, running scene with a
// typical 64 mm IPD.
func DefaultSettings() Settings {
	return Settings{IPD: 0.064}
}

// Target is the eye image a scene renders into.
type Target struct {
	// View is a 2D view of the eye's array layer.
	View hal.TextureView

	Eye    distortion.Eye
	Width  uint32
	Height uint32

	// Slot identifies the texture set, in [0, Buffering). Per-frame scene
	// resources indexed by slot are never in use by the GPU when the
	// producer renders into that slot again.
	Slot int
}

// Scene is rendered by a Producer.
//
// Simulate and Render are only called from the producer's thread.
type Scene interface {
	// Init creates GPU resources for rendering into format.
	Init(dev *gpu.Device, format gputypes.TextureFormat) error

	// Simulate advances the scene to time t.
	Simulate(t time.Duration)

	// Render records the commands drawing one eye. The target layer is in
	// render attachment usage.
	Render(enc hal.CommandEncoder, target Target, view, projection *core.Mat4, settings Settings) error

	// Destroy releases GPU resources. The device must be idle.
	Destroy()
}
