package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrInvalidTextureSize is returned when creating a texture with a zero
// dimension.
var ErrInvalidTextureSize = errors.New("gpu: invalid texture size")

// TextureConfig holds configuration for creating a texture.
type TextureConfig struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the texture size in pixels.
	Width  uint32
	Height uint32

	// Layers is the number of array layers. Zero means one.
	Layers uint32

	// Format is the pixel format.
	Format gputypes.TextureFormat

	// Usage flags of the texture.
	Usage gputypes.TextureUsage
}

// Texture is a 2D texture with a view of the whole texture and one view
// per array layer.
type Texture struct {
	dev    hal.Device
	config TextureConfig

	texture hal.Texture
	view    hal.TextureView
	layers  []hal.TextureView
}

// CreateTexture creates a texture and its views.
//
// A texture with more than one layer gets a 2D-array view; a single layer
// texture gets a plain 2D view.
func (d *Device) CreateTexture(config TextureConfig) (*Texture, error) {
	if config.Width == 0 || config.Height == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidTextureSize, config.Width, config.Height)
	}
	if config.Layers == 0 {
		config.Layers = 1
	}

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: config.Label,
		Size: hal.Extent3D{
			Width:              config.Width,
			Height:             config.Height,
			DepthOrArrayLayers: config.Layers,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        config.Format,
		Usage:         config.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create texture %q: %w", config.Label, err)
	}
	t := &Texture{dev: d.device, config: config, texture: tex}

	dim := gputypes.TextureViewDimension2D
	if config.Layers > 1 {
		dim = gputypes.TextureViewDimension2DArray
	}
	t.view, err = d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           config.Label + "_view",
		Format:          config.Format,
		Dimension:       dim,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: config.Layers,
	})
	if err != nil {
		t.Destroy()
		return nil, fmt.Errorf("gpu: create view of %q: %w", config.Label, err)
	}

	t.layers = make([]hal.TextureView, config.Layers)
	if config.Layers == 1 {
		t.layers[0] = t.view
		return t, nil
	}
	for i := range t.layers {
		t.layers[i], err = d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label:           fmt.Sprintf("%s_layer%d", config.Label, i),
			Format:          config.Format,
			Dimension:       gputypes.TextureViewDimension2D,
			Aspect:          gputypes.TextureAspectAll,
			MipLevelCount:   1,
			BaseArrayLayer:  uint32(i),
			ArrayLayerCount: 1,
		})
		if err != nil {
			t.Destroy()
			return nil, fmt.Errorf("gpu: create layer %d view of %q: %w", i, config.Label, err)
		}
	}
	return t, nil
}

// HAL returns the underlying texture.
func (t *Texture) HAL() hal.Texture { return t.texture }

// View returns the view of the whole texture.
func (t *Texture) View() hal.TextureView { return t.view }

// Layer returns the 2D view of array layer i.
func (t *Texture) Layer(i int) hal.TextureView { return t.layers[i] }

// Size returns the texture size in pixels.
func (t *Texture) Size() (width, height uint32) { return t.config.Width, t.config.Height }

// Format returns the pixel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.config.Format }

// Destroy releases the views and the texture.
func (t *Texture) Destroy() {
	if t.config.Layers > 1 {
		for _, v := range t.layers {
			if v != nil {
				t.dev.DestroyTextureView(v)
			}
		}
	}
	t.layers = nil
	if t.view != nil {
		t.dev.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.texture != nil {
		t.dev.DestroyTexture(t.texture)
		t.texture = nil
	}
}

// Transition records a usage barrier for tex. It is a no-op on backends
// without explicit state tracking.
func Transition(enc hal.CommandEncoder, tex hal.Texture, from, to gputypes.TextureUsage) {
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: from,
			NewUsage: to,
		},
	}})
}

// TransitionLayer records a usage transition for a single array layer of
// tex.
func TransitionLayer(enc hal.CommandEncoder, tex hal.Texture, layer uint32, from, to gputypes.TextureUsage) {
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Range: hal.TextureRange{
			Aspect:          gputypes.TextureAspectAll,
			MipLevelCount:   1,
			BaseArrayLayer:  layer,
			ArrayLayerCount: 1,
		},
		Usage: hal.TextureUsageTransition{
			OldUsage: from,
			NewUsage: to,
		},
	}})
}
