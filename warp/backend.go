// Package warp renders the latest eye images onto the display through the
// lens distortion and the time-warp transforms.
//
// Two interchangeable backends are provided. The raster backend draws a
// distortion mesh per eye and warps its texture coordinates in the vertex
// shader. The compute backend warps a grid of distortion samples in one
// pass and resamples the eye images for every display pixel in a second.
// Both produce the same image up to the precision of their paths.
package warp

import (
	"errors"
	"fmt"

	"github.com/gogpu/atw/distortion"
	"github.com/gogpu/atw/internal/gpu"
	"github.com/gogpu/atw/mailbox"
	"github.com/gogpu/atw/timewarp"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Backend names.
const (
	NameRaster  = "raster"
	NameCompute = "compute"
)

// Errors returned by backends.
var (
	// ErrUnknownBackend is returned by New for an unregistered name.
	ErrUnknownBackend = errors.New("warp: unknown backend")

	// ErrNotInitialized is returned by Render before Init succeeded.
	ErrNotInitialized = errors.New("warp: backend not initialized")

	// ErrNoEyeImages is returned by Render when the frame carries no eye
	// texture.
	ErrNoEyeImages = errors.New("warp: frame has no eye images")

	// ErrFrameInFlight is returned by Render when every uniform slot is
	// still read by the GPU. Ready reports it without rendering.
	ErrFrameInFlight = errors.New("warp: all frames in flight")
)

// FramesInFlight is the number of refreshes a backend may have submitted
// and not yet finished on the GPU.
const FramesInFlight = 3

// Config describes the display a backend renders to.
type Config struct {
	// TilesWide and TilesHigh are the distortion grid size per eye.
	TilesWide int
	TilesHigh int

	// TargetFormat is the pixel format of the swapchain images.
	TargetFormat gputypes.TextureFormat

	// TargetWidth and TargetHeight are the full display size in pixels;
	// each eye covers one horizontal half.
	TargetWidth  uint32
	TargetHeight uint32

	// Chromatic corrects the lateral chromatic aberration of the lens by
	// warping each color channel separately.
	Chromatic bool
}

// Frame is the work of one display refresh.
type Frame struct {
	// Target is the swapchain image to render into.
	Target *gpu.Frame

	// Eyes is the adopted payload. Texture[eye] is sampled at layer
	// ArrayLayer[eye] of a 2D-array view.
	Eyes *mailbox.EyeTextures

	// Matrices are the warp transforms of each eye.
	Matrices [distortion.NumEyes]timewarp.Matrices
}

// Backend renders warp frames.
//
// A backend is used by a single goroutine.
type Backend interface {
	// Name returns the registry name of the backend.
	Name() string

	// TargetFormat returns the swapchain format the backend renders into
	// and the usage the swapchain images need.
	TargetFormat() (gputypes.TextureFormat, gputypes.TextureUsage)

	// Init creates the GPU resources for lens on the display described by
	// cfg.
	Init(dev *gpu.Device, lens *distortion.Lens, cfg Config) error

	// Ready reports whether Render can start a refresh without waiting for
	// the GPU. It never blocks.
	Ready() (bool, error)

	// Render records and submits one refresh. The returned fence signals
	// when the GPU has finished with the frame.
	Render(f *Frame) (*gpu.Fence, error)

	// Destroy releases the GPU resources. The device must be idle.
	Destroy()
}

var registry = gpucontext.NewRegistry[Backend](gpucontext.WithPriority(NameRaster, NameCompute))

func init() {
	registry.Register(NameRaster, func() Backend { return NewRaster() })
	registry.Register(NameCompute, func() Backend { return NewCompute() })
}

// New returns a new backend by name. An empty name selects the preferred
// backend.
func New(name string) (Backend, error) {
	if name == "" {
		return registry.Best(), nil
	}
	if !registry.Has(name) {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, registry.Available())
	}
	return registry.Get(name), nil
}

// Available returns the names of the registered backends.
func Available() []string {
	return registry.Available()
}

// Register adds a backend factory under name, replacing any previous one.
func Register(name string, factory func() Backend) {
	registry.Register(name, factory)
}

// eyeViewport returns the pixel rectangle of eye on a target of the given
// size.
func eyeViewport(eye distortion.Eye, width, height uint32) (x, y, w, h uint32) {
	w = width / distortion.NumEyes
	return uint32(eye) * w, 0, w, height
}
