package atw

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/atw/core"
	"github.com/gogpu/atw/internal/gpu"
	"github.com/gogpu/atw/scene"
	"github.com/gogpu/atw/warp"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/noop"
)

// clearScene clears both eyes; it keeps app tests independent of the grid
// shader.
type clearScene struct{}

func (clearScene) Init(*gpu.Device, gputypes.TextureFormat) error { return nil }
func (clearScene) Simulate(time.Duration)                          {}
func (clearScene) Destroy()                                        {}

func (clearScene) Render(enc hal.CommandEncoder, target scene.Target, _, _ *core.Mat4, _ scene.Settings) error {
	pass := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target.View,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{G: 1, A: 1},
		}},
	})
	pass.End()
	return nil
}

// fakeEvents records the callbacks an App registers.
type fakeEvents struct {
	gpucontext.NullEventSource

	mu     sync.Mutex
	key    func(gpucontext.Key, gpucontext.Modifiers)
	focus  func(bool)
	resize func(int, int)
}

func (e *fakeEvents) OnKeyPress(fn func(gpucontext.Key, gpucontext.Modifiers)) {
	e.mu.Lock()
	e.key = fn
	e.mu.Unlock()
}

func (e *fakeEvents) OnFocus(fn func(bool)) {
	e.mu.Lock()
	e.focus = fn
	e.mu.Unlock()
}

func (e *fakeEvents) OnResize(fn func(int, int)) {
	e.mu.Lock()
	e.resize = fn
	e.mu.Unlock()
}

func (e *fakeEvents) registered() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key != nil && e.focus != nil && e.resize != nil
}

func testOptions(extra ...Option) []Option {
	return append([]Option{
		WithGPUBackend(gputypes.BackendEmpty),
		WithDisplay(256, 128, 240),
		WithTiles(4, 4),
		WithEyeResolution(32, 32),
		WithScene(clearScene{}),
	}, extra...)
}

// runApp runs an app and skips the test if the shader compiler lacks a
// feature the warp shaders need.
func runApp(t *testing.T, app *App, ctx context.Context) error {
	t.Helper()
	err := app.Run(ctx)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
			t.Skipf("Skipping: naga feature not yet implemented: %v", err)
		}
	}
	return err
}

// =============================================================================
// Options
// =============================================================================

func TestNewDefaults(t *testing.T) {
	app, err := New()
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if app.Mode() != RenderModeAsyncWarp {
		t.Errorf("Mode() = %v, want %v", app.Mode(), RenderModeAsyncWarp)
	}
	if app.opts.tilesWide != 30 || app.opts.tilesHigh != 33 {
		t.Errorf("default tiles = %dx%d, want 30x33", app.opts.tilesWide, app.opts.tilesHigh)
	}
	if app.opts.lens == nil {
		t.Error("default lens not set")
	}
	if got := app.SceneSettings(); got != scene.DefaultSettings() {
		t.Errorf("SceneSettings() = %+v, want %+v", got, scene.DefaultSettings())
	}
}

func TestNewInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"display", WithDisplay(1, 100, 60)},
		{"refresh rate", WithRefreshRate(0)},
		{"eye resolution", WithEyeResolution(0, 10)},
		{"fov", WithFieldOfView(180, 90)},
		{"tiles", WithTiles(-1, 4)},
		{"render mode", WithRenderMode(RenderMode(42))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opt); !errors.Is(err, ErrInvalidOption) {
				t.Errorf("New(%s) = %v, want %v", tt.name, err, ErrInvalidOption)
			}
		})
	}
}

func TestSceneSettings(t *testing.T) {
	app, err := New(WithIPD(0.07))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if got := app.SceneSettings().IPD; got != 0.07 {
		t.Errorf("SceneSettings().IPD = %v, want 0.07", got)
	}
	app.SetSceneSettings(scene.Settings{Paused: true, Load: 3})
	if got := app.SceneSettings(); !got.Paused || got.Load != 3 {
		t.Errorf("SceneSettings() = %+v after SetSceneSettings()", got)
	}
}

// =============================================================================
// Render modes
// =============================================================================

func TestRenderModeString(t *testing.T) {
	tests := []struct {
		mode RenderMode
		want string
	}{
		{RenderModeAsyncWarp, "async-warp"},
		{RenderModeWarpOnly, "warp-only"},
		{RenderModeSceneOnly, "scene-only"},
		{RenderMode(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("RenderMode(%d).String() = %q, want %q", tt.mode, got, tt.want)
		}
	}
}

func TestParseRenderMode(t *testing.T) {
	for _, m := range []RenderMode{RenderModeAsyncWarp, RenderModeWarpOnly, RenderModeSceneOnly} {
		got, err := ParseRenderMode(strings.ToUpper(m.String()))
		if err != nil || got != m {
			t.Errorf("ParseRenderMode(%q) = %v, %v, want %v", m, got, err, m)
		}
	}
	if _, err := ParseRenderMode("timewarp"); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("ParseRenderMode(invalid) = %v, want %v", err, ErrInvalidOption)
	}
}

func TestRenderModeThreads(t *testing.T) {
	tests := []struct {
		mode       RenderMode
		producer   bool
		reprojects bool
	}{
		{RenderModeAsyncWarp, true, true},
		{RenderModeWarpOnly, false, true},
		{RenderModeSceneOnly, true, false},
	}
	for _, tt := range tests {
		if got := tt.mode.RunsProducer(); got != tt.producer {
			t.Errorf("%v.RunsProducer() = %v, want %v", tt.mode, got, tt.producer)
		}
		if got := tt.mode.Reprojects(); got != tt.reprojects {
			t.Errorf("%v.Reprojects() = %v, want %v", tt.mode, got, tt.reprojects)
		}
	}
}

// =============================================================================
// HMD
// =============================================================================

func TestStaticHead(t *testing.T) {
	id := core.Identity()
	v := StaticHead{}.View(3 * time.Second)
	if !core.ApproxEqual(&v, &id, 0) {
		t.Errorf("StaticHead.View() = %v, want identity", v)
	}
}

func TestSpinningHead(t *testing.T) {
	h := SpinningHead{RadiansPerSecond: 1}
	got := h.View(500 * time.Millisecond)
	want := core.RotationY(-0.5)
	if !core.ApproxEqual(&got, &want, 1e-6) {
		t.Errorf("SpinningHead.View(0.5s) = %v, want %v", got, want)
	}
	zero := h.View(0)
	id := core.Identity()
	if !core.ApproxEqual(&zero, &id, 1e-6) {
		t.Errorf("SpinningHead.View(0) = %v, want identity", zero)
	}
}

// =============================================================================
// Run on the noop device
// =============================================================================

func TestRunModes(t *testing.T) {
	for _, mode := range []RenderMode{RenderModeAsyncWarp, RenderModeWarpOnly, RenderModeSceneOnly} {
		for _, backend := range []string{warp.NameRaster, warp.NameCompute} {
			t.Run(mode.String()+"/"+backend, func(t *testing.T) {
				app, err := New(testOptions(
					WithRenderMode(mode),
					WithBackend(backend),
					WithFrameLimit(12),
				)...)
				if err != nil {
					t.Fatalf("New() = %v", err)
				}
				if err := runApp(t, app, context.Background()); err != nil {
					t.Fatalf("Run() = %v", err)
				}

				st := app.Stats()
				if st.WarpFrames != 12 {
					t.Errorf("WarpFrames = %d, want 12", st.WarpFrames)
				}
				if st.Backend != backend {
					t.Errorf("Backend = %q, want %q", st.Backend, backend)
				}
				if st.Adapter.Name == "" {
					t.Error("Adapter.Name is empty")
				}
				if got := st.Adopted + st.Stale + st.Pending + st.Busy; got != st.WarpFrames {
					t.Errorf("consume outcomes = %d, want one per warp frame (%d)", got, st.WarpFrames)
				}
				if mode == RenderModeWarpOnly {
					if st.Adopted != 1 || st.SceneFrames != 1 {
						t.Errorf("warp-only adopted %d of %d scene frames, want 1 of 1", st.Adopted, st.SceneFrames)
					}
				}
				if st.Adopted > st.SceneFrames {
					t.Errorf("Adopted = %d > SceneFrames = %d", st.Adopted, st.SceneFrames)
				}
			})
		}
	}
}

func TestRunProducesSceneFrames(t *testing.T) {
	app, err := New(testOptions(WithFrameLimit(60))...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if err := runApp(t, app, context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	st := app.Stats()
	if st.SceneFrames == 0 || st.Adopted == 0 {
		t.Errorf("SceneFrames = %d, Adopted = %d, want both > 0", st.SceneFrames, st.Adopted)
	}
	if r := st.SceneFramesPerWarpFrame(); r <= 0 || r > 1 {
		t.Errorf("SceneFramesPerWarpFrame() = %v, want in (0, 1]", r)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	app, err := New(testOptions()...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := runApp(t, app, ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if app.Stats().WarpFrames == 0 {
		t.Error("no warp frames before the context ended")
	}
}

func TestRunEvents(t *testing.T) {
	events := &fakeEvents{}
	app, err := New(testOptions(WithEventSource(events))...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	for (!events.registered() || app.Stats().WarpFrames < 3) && time.Now().Before(deadline) {
		select {
		case err := <-done:
			if err != nil && strings.Contains(err.Error(), "not yet implemented") {
				t.Skipf("Skipping: naga feature not yet implemented: %v", err)
			}
			t.Fatalf("Run() returned early: %v", err)
		default:
		}
		time.Sleep(time.Millisecond)
	}

	events.mu.Lock()
	focus, resize, key := events.focus, events.resize, events.key
	events.mu.Unlock()

	focus(false)
	for app.Stats().Skipped == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	focus(true)
	resize(128, 64)
	frames := app.Stats().WarpFrames
	for app.Stats().WarpFrames < frames+3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	key(gpucontext.KeyEscape, 0)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop on Escape")
	}
	st := app.Stats()
	if st.Skipped == 0 {
		t.Error("Skipped = 0, want frames skipped while unfocused")
	}
	if st.WarpFrames < frames+3 {
		t.Errorf("WarpFrames = %d after resize, want at least %d", st.WarpFrames, frames+3)
	}
}

func TestRunTwice(t *testing.T) {
	app, err := New(testOptions(WithFrameLimit(3))...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	for i := range 2 {
		if err := runApp(t, app, context.Background()); err != nil {
			t.Fatalf("Run() #%d = %v", i, err)
		}
		if got := app.Stats().WarpFrames; got != 3 {
			t.Errorf("Run() #%d WarpFrames = %d, want 3", i, got)
		}
	}
}

func TestRunWindowSurface(t *testing.T) {
	app, err := New(testOptions(WithWindow(0, 1), WithFrameLimit(4))...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if err := runApp(t, app, context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got := app.Stats().WarpFrames; got != 4 {
		t.Errorf("WarpFrames = %d, want 4", got)
	}
}

func TestRunUnknownBackend(t *testing.T) {
	app, err := New(testOptions(WithBackend("multiview"))...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if err := app.Run(context.Background()); !errors.Is(err, warp.ErrUnknownBackend) {
		t.Errorf("Run() = %v, want %v", err, warp.ErrUnknownBackend)
	}
}

// brokenScene fails to initialize.
type brokenScene struct{ clearScene }

var errSceneInit = errors.New("scene init failed")

func (brokenScene) Init(*gpu.Device, gputypes.TextureFormat) error { return errSceneInit }

func TestRunOpenErrorReleasesSession(t *testing.T) {
	app, err := New(testOptions(WithScene(brokenScene{}))...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	for i := range 2 {
		err := runApp(t, app, context.Background())
		if !errors.Is(err, errSceneInit) {
			t.Fatalf("Run() #%d = %v, want %v", i, err, errSceneInit)
		}
	}
	if st := app.Stats(); st.WarpFrames != 0 || st.SceneFrames != 0 {
		t.Errorf("Stats() after failed open = %+v, want zero frames", st)
	}
}

func TestRunUnavailableGPU(t *testing.T) {
	app, err := New(testOptions(WithGPUBackend(gputypes.BackendBrowserWebGPU))...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if err := app.Run(context.Background()); !errors.Is(err, gpu.ErrBackendUnavailable) {
		t.Errorf("Run() = %v, want %v", err, gpu.ErrBackendUnavailable)
	}
}
