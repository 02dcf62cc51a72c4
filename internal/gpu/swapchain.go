package gpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/atw/pacer"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrFrameUnavailable is returned by Acquire when no image could be acquired
// this refresh. The caller skips the frame and retries.
var ErrFrameUnavailable = errors.New("gpu: swapchain image unavailable")

// Frame is an acquired swapchain image.
type Frame struct {
	// Texture and View are the image to render into. They are valid until
	// the frame is presented.
	Texture hal.Texture
	View    hal.TextureView

	// Index identifies the image within the swapchain.
	Index int

	// Done is the submission that renders into the image. It is set before
	// Present; an offscreen swapchain does not hand the image out again
	// until it has signalled.
	Done *Fence

	surfaceTexture hal.SurfaceTexture
}

// Swapchain is a ring of presentable images.
type Swapchain interface {
	// Acquire returns the next image to render into.
	Acquire() (*Frame, error)

	// Present queues f for display. With vsync enabled Present returns at
	// the display refresh that shows f.
	Present(f *Frame) error

	// Format is the pixel format of the images.
	Format() gputypes.TextureFormat

	// Size is the image size in pixels.
	Size() (width, height uint32)

	// Resize recreates the images at a new size.
	Resize(width, height uint32) error

	// Destroy releases the images.
	Destroy()
}

// SwapchainConfig describes the images of a swapchain.
type SwapchainConfig struct {
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage

	// VSync selects FIFO presentation. Without it images are presented
	// immediately.
	VSync bool
}

// =============================================================================
// Window surface
// =============================================================================

// SurfaceSwapchain presents to a window surface.
type SurfaceSwapchain struct {
	dev     *Device
	surface hal.Surface
	config  SwapchainConfig

	reconfigure bool
	acquired    int
}

// NewSurfaceSwapchain configures surface for presentation.
func NewSurfaceSwapchain(dev *Device, surface hal.Surface, config SwapchainConfig) (*SurfaceSwapchain, error) {
	s := &SurfaceSwapchain{dev: dev, surface: surface, config: config}
	if err := s.configure(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SurfaceSwapchain) configure() error {
	mode := hal.PresentModeImmediate
	if s.config.VSync {
		mode = hal.PresentModeFifo
	}
	err := s.surface.Configure(s.dev.HAL(), &hal.SurfaceConfiguration{
		Width:       s.config.Width,
		Height:      s.config.Height,
		Format:      s.config.Format,
		Usage:       s.config.Usage,
		PresentMode: mode,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	})
	if err != nil {
		return fmt.Errorf("gpu: configure surface: %w", err)
	}
	s.reconfigure = false
	return nil
}

// Acquire implements Swapchain. An outdated surface is reconfigured once
// before giving up on the refresh.
func (s *SurfaceSwapchain) Acquire() (*Frame, error) {
	if s.reconfigure {
		if err := s.configure(); err != nil {
			return nil, err
		}
	}

	acquired, err := s.surface.AcquireTexture(nil)
	if errors.Is(err, hal.ErrSurfaceOutdated) {
		slogger().Warn("gpu: surface outdated, reconfiguring")
		if err := s.configure(); err != nil {
			return nil, err
		}
		acquired, err = s.surface.AcquireTexture(nil)
	}
	switch {
	case errors.Is(err, hal.ErrTimeout), errors.Is(err, hal.ErrSurfaceOutdated):
		return nil, fmt.Errorf("%w: %w", ErrFrameUnavailable, err)
	case err != nil:
		return nil, fmt.Errorf("gpu: acquire surface texture: %w", err)
	}
	if acquired.Suboptimal {
		s.reconfigure = true
	}

	view, err := s.dev.HAL().CreateTextureView(acquired.Texture, &hal.TextureViewDescriptor{
		Label:           "swapchain_view",
		Format:          s.config.Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		s.surface.DiscardTexture(acquired.Texture)
		return nil, fmt.Errorf("gpu: create swapchain view: %w", err)
	}

	f := &Frame{
		Texture:        acquired.Texture,
		View:           view,
		Index:          s.acquired,
		surfaceTexture: acquired.Texture,
	}
	s.acquired++
	return f, nil
}

// Present implements Swapchain. f.Done is not used: the surface orders
// presentation after the submission itself.
func (s *SurfaceSwapchain) Present(f *Frame) error {
	view := f.View
	defer s.dev.Defer(func() { s.dev.HAL().DestroyTextureView(view) })

	err := s.dev.Present(s.surface, f.surfaceTexture)
	if errors.Is(err, hal.ErrSurfaceOutdated) {
		s.reconfigure = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("gpu: present: %w", err)
	}
	return nil
}

// Format implements Swapchain.
func (s *SurfaceSwapchain) Format() gputypes.TextureFormat { return s.config.Format }

// Size implements Swapchain.
func (s *SurfaceSwapchain) Size() (width, height uint32) { return s.config.Width, s.config.Height }

// Resize implements Swapchain.
func (s *SurfaceSwapchain) Resize(width, height uint32) error {
	s.config.Width, s.config.Height = width, height
	return s.configure()
}

// Destroy implements Swapchain.
func (s *SurfaceSwapchain) Destroy() {
	s.surface.Unconfigure(s.dev.HAL())
	s.surface.Destroy()
}

// =============================================================================
// Offscreen
// =============================================================================

// OffscreenSwapchain renders into a ring of textures and simulates display
// refresh for headless runs.
type OffscreenSwapchain struct {
	dev         *Device
	config      SwapchainConfig
	clock       pacer.Clock
	refreshRate float64

	images    []*Texture
	fences    []*Fence
	next      int
	presented uint64
}

// DefaultOffscreenImages is the ring size of an offscreen swapchain.
const DefaultOffscreenImages = 3

// NewOffscreenSwapchain creates a headless swapchain. With config.VSync set,
// Present blocks until the next multiple of the refresh period on clock.
func NewOffscreenSwapchain(dev *Device, config SwapchainConfig, refreshRate float64, clock pacer.Clock) (*OffscreenSwapchain, error) {
	if refreshRate <= 0 {
		refreshRate = 60
	}
	if clock == nil {
		clock = pacer.NewMonotonicClock()
	}
	s := &OffscreenSwapchain{
		dev:         dev,
		config:      config,
		clock:       clock,
		refreshRate: refreshRate,
	}
	if err := s.createImages(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *OffscreenSwapchain) createImages() error {
	s.images = make([]*Texture, DefaultOffscreenImages)
	s.fences = make([]*Fence, DefaultOffscreenImages)
	for i := range s.images {
		img, err := s.dev.CreateTexture(TextureConfig{
			Label:  fmt.Sprintf("offscreen_swapchain%d", i),
			Width:  s.config.Width,
			Height: s.config.Height,
			Format: s.config.Format,
			Usage:  s.config.Usage,
		})
		if err != nil {
			s.destroyImages()
			return err
		}
		s.images[i] = img
	}
	return nil
}

func (s *OffscreenSwapchain) destroyImages() {
	for _, img := range s.images {
		if img != nil {
			img.Destroy()
		}
	}
	s.images = nil
}

// Acquire implements Swapchain. It returns ErrFrameUnavailable while the
// GPU still renders into the next image of the ring.
func (s *OffscreenSwapchain) Acquire() (*Frame, error) {
	i := s.next
	done, err := s.fences[i].Signalled()
	if err != nil {
		return nil, fmt.Errorf("gpu: offscreen image %d: %w", i, err)
	}
	if !done {
		return nil, fmt.Errorf("%w: offscreen image %d in flight", ErrFrameUnavailable, i)
	}
	s.fences[i] = nil
	s.next = (s.next + 1) % len(s.images)
	img := s.images[i]
	return &Frame{Texture: img.HAL(), View: img.View(), Index: i}, nil
}

// Present implements Swapchain.
func (s *OffscreenSwapchain) Present(f *Frame) error {
	if f.Index >= 0 && f.Index < len(s.fences) {
		s.fences[f.Index] = f.Done
	}
	s.presented++
	if !s.config.VSync {
		return nil
	}
	period := time.Duration(float64(time.Second) / s.refreshRate)
	now := s.clock.Now()
	vsync := (now/period + 1) * period
	time.Sleep(vsync - now)
	return nil
}

// Presented returns the number of presented frames.
func (s *OffscreenSwapchain) Presented() uint64 { return s.presented }

// Format implements Swapchain.
func (s *OffscreenSwapchain) Format() gputypes.TextureFormat { return s.config.Format }

// Size implements Swapchain.
func (s *OffscreenSwapchain) Size() (width, height uint32) { return s.config.Width, s.config.Height }

// Resize implements Swapchain.
func (s *OffscreenSwapchain) Resize(width, height uint32) error {
	if err := s.dev.WaitIdle(); err != nil {
		return err
	}
	s.destroyImages()
	s.config.Width, s.config.Height = width, height
	s.next = 0
	return s.createImages()
}

// Destroy implements Swapchain.
func (s *OffscreenSwapchain) Destroy() {
	s.destroyImages()
}
