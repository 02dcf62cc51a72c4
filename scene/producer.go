package scene

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
	"github.com/gogpu/atw/timewarp"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrInvalidConfig is returned by NewProducer for an incomplete config.
var ErrInvalidConfig = errors.New("scene: invalid producer config")

// Config configures a Producer.
type Config struct {
	Scene   Scene
	Mailbox *mailbox.Mailbox
	Pacer   *pacer.Pacer

	// View returns the head view at a given time.
	View timewarp.ViewFunc

	// Settings is called once per frame. Nil means DefaultSettings.
	Settings func() Settings

	// Projection is the eye projection; both eyes share it.
	Projection core.Mat4

	EyeWidth  uint32
	EyeHeight uint32

	// Format of the eye textures. Zero means RGBA8Unorm.
	Format gputypes.TextureFormat
}

// Producer renders stereo frames of a Scene and publishes them.
//
// Frame and Run must be called from a single goroutine.
type Producer struct {
	dev *gpu.Device
	cfg Config

	textures [Buffering]*gpu.Texture
	rendered [Buffering]bool
	next     int

	frames  atomic.Uint64
	cpuTime atomic.Int64
}

// NewProducer creates the eye textures and initializes the scene.
func NewProducer(dev *gpu.Device, cfg Config) (*Producer, error) {
	if cfg.Scene == nil || cfg.Mailbox == nil || cfg.Pacer == nil || cfg.View == nil {
		return nil, fmt.Errorf("%w: scene, mailbox, pacer and view are required", ErrInvalidConfig)
	}
	if cfg.EyeWidth == 0 || cfg.EyeHeight == 0 {
		return nil, fmt.Errorf("%w: eye size %dx%d", ErrInvalidConfig, cfg.EyeWidth, cfg.EyeHeight)
	}
	if cfg.Settings == nil {
		cfg.Settings = DefaultSettings
	}
	if cfg.Format == gputypes.TextureFormatUndefined {
		cfg.Format = gputypes.TextureFormatRGBA8Unorm
	}

	p := &Producer{dev: dev, cfg: cfg}
	for i := range p.textures {
		tex, err := dev.CreateTexture(gpu.TextureConfig{
			Label:  fmt.Sprintf("scene_eyes_%d", i),
			Width:  cfg.EyeWidth,
			Height: cfg.EyeHeight,
			Layers: distortion.NumEyes,
			Format: cfg.Format,
			Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
		})
		if err != nil {
			p.destroyTextures()
			return nil, fmt.Errorf("scene: %w", err)
		}
		p.textures[i] = tex
	}
	if err := cfg.Scene.Init(dev, cfg.Format); err != nil {
		p.destroyTextures()
		return nil, fmt.Errorf("scene: init: %w", err)
	}

	slogger().Info("scene: producer ready",
		"eye_size", fmt.Sprintf("%dx%d", cfg.EyeWidth, cfg.EyeHeight),
		"format", cfg.Format,
		"buffers", Buffering)
	return p, nil
}

// EyeViews returns the view matrices of both eyes for a head view. The
// eyes sit ipd/2 to either side of the head along its x axis.
func EyeViews(head *core.Mat4, ipd float32) [distortion.NumEyes]core.Mat4 {
	var views [distortion.NumEyes]core.Mat4
	for eye := range distortion.NumEyes {
		offset := ipd / 2
		if distortion.Eye(eye) == distortion.EyeRight {
			offset = -offset
		}
		t := core.Translation(offset, 0, 0)
		views[eye] = core.Mul(&t, head)
	}
	return views
}

// Frame renders and publishes one stereo frame. It blocks in Publish until
// the consumer has adopted the previous frame and returns
// mailbox.ErrTerminated once the mailbox is terminated.
func (p *Producer) Frame(ctx context.Context) error {
	start := time.Now()
	settings := p.cfg.Settings()

	predicted := p.cfg.Pacer.NextSwapTime()
	if !settings.Paused {
		p.cfg.Scene.Simulate(predicted)
	}
	head := p.cfg.View(predicted)
	views := EyeViews(&head, settings.IPD)

	slot := p.next
	p.next = (p.next + 1) % Buffering
	tex := p.textures[slot]
	width, height := tex.Size()

	payload := mailbox.EyeTextures{
		Projection: p.cfg.Projection,
		View:       head,
	}
	for eye := range distortion.NumEyes {
		target := Target{
			View:   tex.Layer(eye),
			Eye:    distortion.Eye(eye),
			Width:  width,
			Height: height,
			Slot:   slot,
		}
		from := gputypes.TextureUsageTextureBinding
		if !p.rendered[slot] {
			from = gputypes.TextureUsage(0)
		}
		fence, err := p.dev.Encode(fmt.Sprintf("scene_%s", target.Eye), func(enc hal.CommandEncoder) error {
			gpu.TransitionLayer(enc, tex.HAL(), uint32(eye), from, gputypes.TextureUsageRenderAttachment)
			if err := p.cfg.Scene.Render(enc, target, &views[eye], &p.cfg.Projection, settings); err != nil {
				return err
			}
			gpu.TransitionLayer(enc, tex.HAL(), uint32(eye), gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageTextureBinding)
			return nil
		})
		if err != nil {
			return fmt.Errorf("scene: render %s eye: %w", target.Eye, err)
		}
		payload.Texture[eye] = tex.View()
		payload.ArrayLayer[eye] = uint32(eye)
		payload.CompletionFence[eye] = fence
	}
	p.rendered[slot] = true

	payload.CPUTime = time.Since(start)
	p.cpuTime.Store(int64(payload.CPUTime))

	index, err := p.cfg.Mailbox.Publish(ctx, payload)
	if err != nil {
		return err
	}
	p.frames.Add(1)
	slogger().Debug("scene: published", "index", index, "slot", slot, "cpu", payload.CPUTime)
	return nil
}

// Run produces frames until the mailbox is terminated or ctx ends. Both
// are a normal stop and return nil.
func (p *Producer) Run(ctx context.Context) error {
	for {
		err := p.Frame(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, mailbox.ErrTerminated), ctx.Err() != nil:
			slogger().Debug("scene: producer stopped", "frames", p.Frames())
			return nil
		default:
			return err
		}
	}
}

// Frames returns the number of published frames.
func (p *Producer) Frames() uint64 { return p.frames.Load() }

// CPUTime returns the CPU time spent recording the last frame.
func (p *Producer) CPUTime() time.Duration { return time.Duration(p.cpuTime.Load()) }

// Destroy releases the scene and the eye textures. The device must be idle.
func (p *Producer) Destroy() {
	p.cfg.Scene.Destroy()
	p.destroyTextures()
}

func (p *Producer) destroyTextures() {
	for i, tex := range p.textures {
		if tex != nil {
			tex.Destroy()
			p.textures[i] = nil
		}
	}
}
