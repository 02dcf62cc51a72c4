package atw

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/atw/core"
	"github.com/gogpu/atw/internal/gpu"
	"github.com/gogpu/atw/internal/thread"
	"github.com/gogpu/atw/mailbox"
	"github.com/gogpu/atw/pacer"
	"github.com/gogpu/atw/scene"
	"github.com/gogpu/atw/warp"
	"github.com/gogpu/gpucontext"
	"golang.org/x/sync/errgroup"
)

// ErrRunning is returned by Run when the app is already running.
var ErrRunning = errors.New("atw: already running")

// Eye projection depth range. The far plane is at infinity.
const (
	nearZ = 0.1
	farZ  = 0
)

// App is an asynchronous time warp test application.
//
// Run drives two threads: the calling goroutine becomes the warp thread,
// locked to its OS thread, which presents a warped frame at every display
// refresh. A worker thread runs the scene producer, which renders eye
// images at its own pace and hands them over through a mailbox.
type App struct {
	opts options

	settings atomic.Pointer[scene.Settings]
	counters counters
	running  atomic.Bool

	// mu guards the session pointer for Stats.
	mu      sync.Mutex
	session *session
	last    Stats
}

// New validates opts and returns an app ready to Run.
func New(opts ...Option) (*App, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	a := &App{opts: o}
	a.settings.Store(&o.settings)
	return a, nil
}

// Mode returns the render mode.
func (a *App) Mode() RenderMode { return a.opts.mode }

// SetSceneSettings changes the scene settings. The producer picks them up
// at its next frame.
func (a *App) SetSceneSettings(s scene.Settings) {
	a.settings.Store(&s)
}

// SceneSettings returns the current scene settings.
func (a *App) SceneSettings() scene.Settings {
	return *a.settings.Load()
}

// Stats returns a snapshot of the app counters. After Run returns, Stats
// reports the final values of that run.
func (a *App) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return a.last
	}
	return a.snapshotLocked()
}

func (a *App) snapshotLocked() Stats {
	s := a.session
	st := Stats{
		Adapter:         s.dev.Info(),
		Backend:         s.backend.Name(),
		WarpFrames:      a.counters.warpFrames.Load(),
		Adopted:         a.counters.adopted.Load(),
		Stale:           a.counters.stale.Load(),
		Pending:         a.counters.pending.Load(),
		Busy:            a.counters.busy.Load(),
		Skipped:         a.counters.skipped.Load(),
		MissedRefreshes: s.pacer.MissedRefreshes(),
		WarpCPUTime:     time.Duration(a.counters.warpCPU.Load()),
	}
	if s.producer != nil {
		st.SceneFrames = s.producer.Frames()
		st.SceneCPUTime = s.producer.CPUTime()
	}
	return st
}

// Run opens the GPU and renders until ctx ends, Escape is pressed, the
// frame limit is reached or an error occurs. Ending by ctx, Escape or the
// frame limit is a normal stop and returns nil.
func (a *App) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer a.running.Store(false)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := a.open(ctx, cancel)
	if err != nil {
		return err
	}
	defer a.close(s)

	g, gctx := errgroup.WithContext(ctx)
	var worker *thread.Worker
	if a.opts.mode.RunsProducer() {
		var produceErr error
		worker = thread.NewWorker("atw-scene", nil)
		g.Go(func() error {
			worker.Submit(func() { produceErr = s.producer.Run(gctx) })
			worker.Join()
			return produceErr
		})
	}

	warpErr := s.loop(gctx)

	// Release a producer blocked in Publish before joining it.
	s.mailbox.Terminate()
	cancel()
	err = errors.Join(warpErr, g.Wait())
	if worker != nil {
		worker.Destroy()
	}
	if err != nil {
		Logger().Error("atw: run failed", "err", err)
	}
	return err
}

// open creates the per-run GPU state.
func (a *App) open(ctx context.Context, cancel context.CancelFunc) (_ *session, err error) {
	dev, err := gpu.Open(a.opts.gpuBackend)
	if err != nil {
		return nil, fmt.Errorf("atw: %w", err)
	}
	s := &session{
		app:     a,
		dev:     dev,
		pacer:   pacer.New(a.opts.refreshRate),
		mailbox: mailbox.New(),
	}
	s.active.Store(true)
	defer func() {
		if err != nil {
			s.destroy()
		}
	}()

	s.consumer = s.mailbox.NewConsumer()
	s.projection = core.ProjectionFov(core.GraphicsAPIVulkan, a.opts.fovX, a.opts.fovY, 0, 0, nearZ, farZ)
	s.view = a.opts.view.View
	if a.opts.headRotationDisabled {
		s.view = StaticHead{}.View
	}

	if s.backend, err = warp.New(a.opts.backend); err != nil {
		return nil, fmt.Errorf("atw: %w", err)
	}
	if err = s.createSwapchain(); err != nil {
		return nil, err
	}
	if err = s.initBackend(); err != nil {
		return nil, err
	}
	if err = s.createBlankEyes(); err != nil {
		return nil, err
	}

	s.producer, err = scene.NewProducer(dev, scene.Config{
		Scene:      a.opts.scene,
		Mailbox:    s.mailbox,
		Pacer:      s.pacer,
		View:       s.view,
		Settings:   a.SceneSettings,
		Projection: s.projection,
		EyeWidth:   a.opts.eyeWidth,
		EyeHeight:  a.opts.eyeHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("atw: %w", err)
	}
	if a.opts.mode == RenderModeWarpOnly {
		// One frame that the warp keeps reprojecting.
		if err = s.producer.Frame(ctx); err != nil {
			return nil, fmt.Errorf("atw: static eye images: %w", err)
		}
	}

	a.opts.events.OnKeyPress(func(key gpucontext.Key, _ gpucontext.Modifiers) {
		if key == gpucontext.KeyEscape {
			cancel()
		}
	})
	a.opts.events.OnFocus(func(focused bool) {
		s.active.Store(focused)
	})
	a.opts.events.OnResize(func(width, height int) {
		if width > 0 && height > 0 {
			s.resize.Store(&[2]uint32{uint32(width), uint32(height)})
		}
	})

	a.counters.reset()
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()

	info := dev.Info()
	Logger().Info("atw: running",
		"mode", a.opts.mode,
		"backend", s.backend.Name(),
		"adapter", info.Name,
		"refresh_hz", a.opts.refreshRate,
		"tiles", fmt.Sprintf("%dx%d", a.opts.tilesWide, a.opts.tilesHigh),
		"chromatic", a.opts.chromatic)
	return s, nil
}

// close waits for the GPU, records the final stats and releases the run's
// resources.
func (a *App) close(s *session) {
	if err := s.dev.WaitIdle(); err != nil {
		Logger().Warn("atw: wait idle", "err", err)
	}
	a.mu.Lock()
	a.last = a.snapshotLocked()
	a.session = nil
	a.mu.Unlock()
	s.destroy()
}
