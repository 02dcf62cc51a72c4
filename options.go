package atw

import (
	"errors"
	"fmt"

	"github.com/gogpu/atw/distortion"
	"github.com/gogpu/atw/pacer"
	"github.com/gogpu/atw/scene"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// ErrInvalidOption is returned by New when an option value is out of range.
var ErrInvalidOption = errors.New("atw: invalid option")

// Option configures an App during creation.
//
// Example:
//
//	app, err := atw.New(
//	    atw.WithRenderMode(atw.RenderModeAsyncWarp),
//	    atw.WithBackend(warp.NameCompute),
//	    atw.WithChromaticAberration(true),
//	)
type Option func(*options)

// options holds the configuration of an App.
type options struct {
	mode       RenderMode
	backend    string
	gpuBackend gputypes.Backend

	displayWidth  int
	displayHeight int
	refreshRate   float64
	vsync         bool

	// display and window identify a native window. Zero window means
	// headless rendering into an offscreen swapchain.
	display uintptr
	window  uintptr

	tilesWide int
	tilesHigh int
	lens      *distortion.Lens
	chromatic bool

	headRotationDisabled bool
	incrementalRefresh   bool

	view   ViewProvider
	events gpucontext.EventSource
	clock  pacer.Clock

	scene     scene.Scene
	settings  scene.Settings
	eyeWidth  uint32
	eyeHeight uint32
	fovX      float32
	fovY      float32

	frameLimit uint64
}

// defaultOptions returns the default options: async warp on the preferred
// backend, a 1920x1080 display at 60 Hz and a spinning head.
func defaultOptions() options {
	return options{
		mode:               RenderModeAsyncWarp,
		gpuBackend:         gputypes.BackendVulkan,
		displayWidth:       1920,
		displayHeight:      1080,
		refreshRate:        60,
		vsync:              true,
		incrementalRefresh: true,
		view:               SpinningHead{RadiansPerSecond: 0.5},
		settings:           scene.DefaultSettings(),
		eyeWidth:           1024,
		eyeHeight:          1024,
		fovX:               90,
		fovY:               90,
	}
}

// validate fills derived defaults and checks ranges.
func (o *options) validate() error {
	if o.displayWidth < distortion.NumEyes || o.displayHeight <= 0 {
		return fmt.Errorf("%w: display size %dx%d", ErrInvalidOption, o.displayWidth, o.displayHeight)
	}
	if o.refreshRate <= 0 {
		return fmt.Errorf("%w: refresh rate %v", ErrInvalidOption, o.refreshRate)
	}
	if o.eyeWidth == 0 || o.eyeHeight == 0 {
		return fmt.Errorf("%w: eye resolution %dx%d", ErrInvalidOption, o.eyeWidth, o.eyeHeight)
	}
	if o.fovX <= 0 || o.fovX >= 180 || o.fovY <= 0 || o.fovY >= 180 {
		return fmt.Errorf("%w: field of view %vx%v", ErrInvalidOption, o.fovX, o.fovY)
	}
	if o.mode < RenderModeAsyncWarp || o.mode > RenderModeSceneOnly {
		return fmt.Errorf("%w: render mode %d", ErrInvalidOption, o.mode)
	}
	if o.tilesWide == 0 && o.tilesHigh == 0 {
		o.tilesWide, o.tilesHigh = distortion.TileGrid(o.displayWidth, o.displayHeight, distortion.DefaultTilePixels)
	}
	if o.tilesWide <= 0 || o.tilesHigh <= 0 {
		return fmt.Errorf("%w: tiles %dx%d", ErrInvalidOption, o.tilesWide, o.tilesHigh)
	}
	if o.lens == nil {
		l := distortion.DefaultLens(o.displayWidth, o.displayHeight)
		o.lens = &l
	}
	if o.view == nil {
		o.view = StaticHead{}
	}
	if o.events == nil {
		o.events = gpucontext.NullEventSource{}
	}
	if o.clock == nil {
		o.clock = pacer.NewMonotonicClock()
	}
	if o.scene == nil {
		o.scene = scene.NewGrid()
	}
	return nil
}

// WithRenderMode selects which threads run. Default RenderModeAsyncWarp.
func WithRenderMode(m RenderMode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// WithBackend selects the warp backend by name, see warp.Available. An
// empty name picks the preferred backend.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithGPUBackend selects the HAL backend. The backend package must be
// imported to register it, for example:
//
//	import _ "github.com/gogpu/wgpu/hal/vulkan"
func WithGPUBackend(b gputypes.Backend) Option {
	return func(o *options) {
		o.gpuBackend = b
	}
}

// WithDisplay sets the display size in pixels and its refresh rate in Hz.
func WithDisplay(width, height int, refreshRate float64) Option {
	return func(o *options) {
		o.displayWidth = width
		o.displayHeight = height
		o.refreshRate = refreshRate
	}
}

// WithRefreshRate sets the display refresh rate in Hz.
func WithRefreshRate(hz float64) Option {
	return func(o *options) {
		o.refreshRate = hz
	}
}

// WithVSync enables or disables presentation synchronized to the display
// refresh. Enabled by default.
func WithVSync(enabled bool) Option {
	return func(o *options) {
		o.vsync = enabled
	}
}

// WithWindow presents to a native window instead of an offscreen
// swapchain. display is the platform display connection where one exists
// (X11, Wayland) and zero otherwise.
func WithWindow(display, window uintptr) Option {
	return func(o *options) {
		o.display = display
		o.window = window
	}
}

// WithTiles sets the distortion mesh resolution per eye. By default the
// display is divided into 32 pixel tiles.
func WithTiles(wide, high int) Option {
	return func(o *options) {
		o.tilesWide = wide
		o.tilesHigh = high
	}
}

// WithLens sets the lens model. By default the lens of a typical phone HMD
// sized to the display is used.
func WithLens(l distortion.Lens) Option {
	return func(o *options) {
		o.lens = &l
	}
}

// WithChromaticAberration enables per-channel correction of the lens'
// chromatic aberration.
func WithChromaticAberration(enabled bool) Option {
	return func(o *options) {
		o.chromatic = enabled
	}
}

// WithHeadRotationDisabled makes the warp and the scene see a fixed head,
// whatever the view provider reports.
func WithHeadRotationDisabled(disabled bool) Option {
	return func(o *options) {
		o.headRotationDisabled = disabled
	}
}

// WithIncrementalRefresh controls whether the warp interpolates across the
// display scan-out. Disabled, the whole display is warped to the pose at
// the start of the refresh. Enabled by default.
func WithIncrementalRefresh(enabled bool) Option {
	return func(o *options) {
		o.incrementalRefresh = enabled
	}
}

// WithViewProvider sets the source of head poses. Default is a
// SpinningHead.
func WithViewProvider(v ViewProvider) Option {
	return func(o *options) {
		o.view = v
	}
}

// WithEventSource connects window events. Escape stops the app; losing
// focus pauses warping until focus returns; resizing resizes the
// swapchain.
func WithEventSource(es gpucontext.EventSource) Option {
	return func(o *options) {
		o.events = es
	}
}

// WithClock sets the clock used for pacing. Default is a monotonic clock
// starting at App creation.
func WithClock(c pacer.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithScene sets the scene the producer renders. Default is a grid.
func WithScene(s scene.Scene) Option {
	return func(o *options) {
		o.scene = s
	}
}

// WithSceneSettings sets the initial scene settings. They can be changed
// while running with App.SetSceneSettings.
func WithSceneSettings(s scene.Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithIPD sets the interpupillary distance in meters.
func WithIPD(meters float32) Option {
	return func(o *options) {
		o.settings.IPD = meters
	}
}

// WithEyeResolution sets the size of each eye image in pixels.
func WithEyeResolution(width, height uint32) Option {
	return func(o *options) {
		o.eyeWidth = width
		o.eyeHeight = height
	}
}

// WithFieldOfView sets the horizontal and vertical field of view of each
// eye in degrees.
func WithFieldOfView(x, y float32) Option {
	return func(o *options) {
		o.fovX = x
		o.fovY = y
	}
}

// WithFrameLimit stops Run after n warp frames. Zero runs until the
// context ends or Escape is pressed.
func WithFrameLimit(n uint64) Option {
	return func(o *options) {
		o.frameLimit = n
	}
}
