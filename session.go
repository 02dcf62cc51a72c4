package atw

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/atw/core"
	"github.com/gogpu/atw/distortion"
	"github.com/gogpu/atw/internal/gpu"
	"github.com/gogpu/atw/mailbox"
	"github.com/gogpu/atw/pacer"
	"github.com/gogpu/atw/scene"
	"github.com/gogpu/atw/timewarp"
	"github.com/gogpu/atw/warp"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// blankEyeSize is the edge length of the black eye images shown before the
// first scene frame arrives.
const blankEyeSize = 4

// session is the GPU state of one Run. Apart from the atomics it is owned
// by the warp thread.
type session struct {
	app *App
	dev *gpu.Device

	swapchain gpu.Swapchain
	backend   warp.Backend
	pacer     *pacer.Pacer

	mailbox  *mailbox.Mailbox
	consumer *mailbox.Consumer
	producer *scene.Producer

	projection core.Mat4
	view       timewarp.ViewFunc

	blank     *gpu.Texture
	blankEyes mailbox.EyeTextures

	active atomic.Bool
	resize atomic.Pointer[[2]uint32]
}

func (s *session) createSwapchain() error {
	o := &s.app.opts
	format, usage := s.backend.TargetFormat()
	cfg := gpu.SwapchainConfig{
		Width:  uint32(o.displayWidth),
		Height: uint32(o.displayHeight),
		Format: format,
		Usage:  usage,
		VSync:  o.vsync,
	}

	if o.window == 0 {
		sc, err := gpu.NewOffscreenSwapchain(s.dev, cfg, o.refreshRate, o.clock)
		if err != nil {
			return fmt.Errorf("atw: %w", err)
		}
		s.swapchain = sc
		return nil
	}

	surface, err := s.dev.CreateSurface(o.display, o.window)
	if err != nil {
		return fmt.Errorf("atw: %w", err)
	}
	sc, err := gpu.NewSurfaceSwapchain(s.dev, surface, cfg)
	if err != nil {
		surface.Destroy()
		return fmt.Errorf("atw: %w", err)
	}
	s.swapchain = sc
	return nil
}

func (s *session) initBackend() error {
	o := &s.app.opts
	width, height := s.swapchain.Size()
	err := s.backend.Init(s.dev, o.lens, warp.Config{
		TilesWide:    o.tilesWide,
		TilesHigh:    o.tilesHigh,
		TargetFormat: s.swapchain.Format(),
		TargetWidth:  width,
		TargetHeight: height,
		Chromatic:    o.chromatic,
	})
	if err != nil {
		return fmt.Errorf("atw: %s backend: %w", s.backend.Name(), err)
	}
	return nil
}

// createBlankEyes clears a small eye texture to black. The warp displays
// it until the consumer adopts the first scene frame.
func (s *session) createBlankEyes() error {
	tex, err := s.dev.CreateTexture(gpu.TextureConfig{
		Label:  "atw_blank_eyes",
		Width:  blankEyeSize,
		Height: blankEyeSize,
		Layers: distortion.NumEyes,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return fmt.Errorf("atw: %w", err)
	}
	s.blank = tex

	_, err = s.dev.Encode("atw_blank_eyes", func(enc hal.CommandEncoder) error {
		for eye := range distortion.NumEyes {
			gpu.TransitionLayer(enc, tex.HAL(), uint32(eye), 0, gputypes.TextureUsageRenderAttachment)
			pass := enc.BeginRenderPass(&hal.RenderPassDescriptor{
				Label: "atw_blank_eye",
				ColorAttachments: []hal.RenderPassColorAttachment{{
					View:       tex.Layer(eye),
					LoadOp:     gputypes.LoadOpClear,
					StoreOp:    gputypes.StoreOpStore,
					ClearValue: gputypes.Color{A: 1},
				}},
			})
			pass.End()
			gpu.TransitionLayer(enc, tex.HAL(), uint32(eye), gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageTextureBinding)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("atw: %w", err)
	}

	s.blankEyes = mailbox.EyeTextures{
		Projection: s.projection,
		View:       core.Identity(),
		Texture:    [distortion.NumEyes]hal.TextureView{tex.View(), tex.View()},
		ArrayLayer: [distortion.NumEyes]uint32{0, 1},
	}
	return nil
}

// loop runs warp frames until ctx ends or the frame limit is reached.
func (s *session) loop(ctx context.Context) error {
	limit := s.app.opts.frameLimit
	for {
		if ctx.Err() != nil {
			return nil
		}
		if limit > 0 && s.app.counters.warpFrames.Load() >= limit {
			return nil
		}
		if err := s.frame(); err != nil {
			return err
		}
	}
}

// frame warps the newest completed eye images to the current head pose and
// presents them.
func (s *session) frame() error {
	c := &s.app.counters
	if !s.active.Load() {
		c.skipped.Add(1)
		time.Sleep(s.pacer.FrameTime())
		return nil
	}
	if size := s.resize.Swap(nil); size != nil {
		if err := s.resizeTarget(size[0], size[1]); err != nil {
			return err
		}
	}

	ready, err := s.backend.Ready()
	if err != nil {
		return fmt.Errorf("atw: warp: %w", err)
	}
	if !ready {
		c.skipped.Add(1)
		Logger().Debug("atw: warp frames in flight")
		s.retryWait()
		return nil
	}

	start := time.Now()
	target, err := s.swapchain.Acquire()
	if errors.Is(err, gpu.ErrFrameUnavailable) {
		c.skipped.Add(1)
		Logger().Debug("atw: swapchain image unavailable", "err", err)
		s.retryWait()
		return nil
	}
	if err != nil {
		return fmt.Errorf("atw: %w", err)
	}

	c.consumed(s.consumer.TryConsume())
	eyes, ok := s.consumer.Current()
	if !ok {
		eyes = s.blankEyes
	}

	m := s.matrices(&eyes)
	fence, err := s.backend.Render(&warp.Frame{
		Target:   target,
		Eyes:     &eyes,
		Matrices: [distortion.NumEyes]timewarp.Matrices{m, m},
	})
	if err != nil {
		return fmt.Errorf("atw: warp: %w", err)
	}
	c.warpCPU.Store(int64(time.Since(start)))
	target.Done = fence

	if err := s.swapchain.Present(target); err != nil {
		return fmt.Errorf("atw: %w", err)
	}

	missed := s.pacer.MissedRefreshes()
	swap := s.pacer.Swap(s.app.opts.clock.Now())
	if s.pacer.MissedRefreshes() > missed {
		Logger().Warn("atw: missed display refresh", "swap", swap, "frame", c.warpFrames.Load())
	}
	c.warpFrames.Add(1)
	return nil
}

// retryWait pauses before a skipped refresh is retried.
func (s *session) retryWait() {
	time.Sleep(s.pacer.FrameTime() / 4)
}

// matrices returns the warp transforms for the coming refresh. Without
// reprojection the display pose is the render pose, which yields a plain
// distortion-corrected copy.
func (s *session) matrices(eyes *mailbox.EyeTextures) timewarp.Matrices {
	start := s.pacer.NextSwapTime()
	end := start
	if s.app.opts.incrementalRefresh {
		end += s.pacer.FrameTime()
	}
	view := s.view
	if !s.app.opts.mode.Reprojects() {
		renderView := eyes.View
		view = func(time.Duration) core.Mat4 { return renderView }
	}
	return timewarp.Compute(&eyes.Projection, &eyes.View, view, start, end)
}

// resizeTarget recreates the swapchain images and the backend resources
// sized to them.
func (s *session) resizeTarget(width, height uint32) error {
	if w, h := s.swapchain.Size(); w == width && h == height {
		return nil
	}
	if err := s.dev.WaitIdle(); err != nil {
		return fmt.Errorf("atw: %w", err)
	}
	if err := s.swapchain.Resize(width, height); err != nil {
		return fmt.Errorf("atw: resize: %w", err)
	}
	s.backend.Destroy()
	if err := s.initBackend(); err != nil {
		return err
	}
	Logger().Info("atw: resized", "width", width, "height", height)
	return nil
}

// destroy releases everything the session created. Safe on a partially
// opened session.
func (s *session) destroy() {
	if err := s.dev.WaitIdle(); err != nil {
		Logger().Warn("atw: wait idle", "err", err)
	}
	if s.producer != nil {
		s.producer.Destroy()
	}
	if s.blank != nil {
		s.blank.Destroy()
	}
	if s.backend != nil {
		s.backend.Destroy()
	}
	if s.swapchain != nil {
		s.swapchain.Destroy()
	}
	s.dev.Close()
}
