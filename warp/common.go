package warp

import (
	"fmt"

	"github.com/gogpu/atw/distortion"
	"github.com/gogpu/atw/gpucore"
	"github.com/gogpu/atw/internal/gpu"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// uniformSlot is one entry of the uniform ring. fence is the submission
// that last read the buffers.
type uniformSlot struct {
	buffers [distortion.NumEyes]hal.Buffer
	fence   *gpu.Fence
}

// shared holds the per-eye state both backends need.
type shared struct {
	dev  *gpu.Device
	lens *distortion.Lens
	cfg  Config
	mesh *distortion.Mesh
	res  gpu.Resources

	sampler hal.Sampler
	slots   [FramesInFlight]uniformSlot
	next    int
}

func (s *shared) init(dev *gpu.Device, lens *distortion.Lens, cfg Config) error {
	if cfg.TargetWidth < distortion.NumEyes || cfg.TargetHeight == 0 {
		return fmt.Errorf("warp: invalid target size %dx%d", cfg.TargetWidth, cfg.TargetHeight)
	}
	mesh, err := distortion.Build(lens, cfg.TilesWide, cfg.TilesHigh)
	if err != nil {
		return fmt.Errorf("warp: %w", err)
	}
	s.dev = dev
	s.lens = lens
	s.cfg = cfg
	s.mesh = mesh
	s.res = gpu.Resources{Device: dev.HAL()}

	s.sampler, err = dev.HAL().CreateSampler(&hal.SamplerDescriptor{
		Label:        "warp_eye_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		return fmt.Errorf("warp: create sampler: %w", err)
	}
	s.res.Samplers = append(s.res.Samplers, s.sampler)

	for slot := range s.slots {
		for eye := range distortion.NumEyes {
			buf, err := dev.HAL().CreateBuffer(&hal.BufferDescriptor{
				Label: fmt.Sprintf("warp_uniforms_%s_%d", distortion.Eye(eye), slot),
				Size:  gpucore.WarpUniformsSize,
				Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageMapWrite,
			})
			if err != nil {
				return fmt.Errorf("warp: create uniform buffer: %w", err)
			}
			s.slots[slot].buffers[eye] = buf
			s.res.Buffers = append(s.res.Buffers, buf)
		}
	}
	s.next = 0
	return nil
}

// Ready reports whether the next uniform slot is free. A slot frees once
// the submission that read it has finished.
func (s *shared) Ready() (bool, error) {
	if s.dev == nil {
		return false, ErrNotInitialized
	}
	slot := &s.slots[s.next]
	done, err := slot.fence.Signalled()
	if err != nil {
		return false, fmt.Errorf("warp: uniform slot %d: %w", s.next, err)
	}
	if done {
		slot.fence = nil
	}
	return done, nil
}

// begin validates f, claims the next uniform slot and writes the frame's
// uniforms into it.
func (s *shared) begin(f *Frame) (int, error) {
	if err := s.check(f); err != nil {
		return 0, err
	}
	ready, err := s.Ready()
	if err != nil {
		return 0, err
	}
	if !ready {
		return 0, ErrFrameInFlight
	}
	slot := s.next
	if err := s.writeUniforms(slot, f); err != nil {
		return 0, err
	}
	return slot, nil
}

// finish records the submission reading slot and advances the ring.
func (s *shared) finish(slot int, fence *gpu.Fence) {
	s.slots[slot].fence = fence
	s.next = (slot + 1) % FramesInFlight
}

// writeUniforms maps the uniform buffers of slot and writes the warp
// transforms and parameters of every eye. The queue is not used, so the
// write does not wait for eye rendering submitted by other goroutines.
func (s *shared) writeUniforms(slot int, f *Frame) error {
	_, _, vw, vh := eyeViewport(distortion.EyeLeft, s.cfg.TargetWidth, s.cfg.TargetHeight)
	for eye := range distortion.NumEyes {
		u := gpucore.WarpUniforms{
			Start:          f.Matrices[eye].Start.Floats(),
			End:            f.Matrices[eye].End.Floats(),
			Eye:            float32(eye),
			TilesWide:      float32(s.cfg.TilesWide),
			TilesHigh:      float32(s.cfg.TilesHigh),
			FractionOffset: float32(eye) / distortion.NumEyes,
			Layer:          float32(f.Eyes.ArrayLayer[eye]),
			ViewportWidth:  float32(vw),
			ViewportHeight: float32(vh),
		}
		if err := s.dev.WriteMapped(s.slots[slot].buffers[eye], 0, u.Bytes()); err != nil {
			return fmt.Errorf("warp: %s uniforms: %w", distortion.Eye(eye), err)
		}
	}
	return nil
}

// gridRowClipY returns the clip-space y of distortion grid row y. Clip
// space is y-up, so row 0, the lowest tangent angle, is the bottom of the
// eye viewport.
func gridRowClipY(y, tilesHigh int) float32 {
	return -1 + 2*float32(y)/float32(tilesHigh)
}

// gridRowAtPixel returns the fractional grid row the resample pass reads
// for pixel row py, counted from the top of an eye viewport of the given
// height. It matches grid_uv in shaders/resample.wgsl.
func gridRowAtPixel(py float32, height uint32, tilesHigh int) float32 {
	return float32(tilesHigh) * (1 - py/float32(height))
}

// check validates a frame before rendering.
func (s *shared) check(f *Frame) error {
	if s.dev == nil {
		return ErrNotInitialized
	}
	if f.Target == nil || f.Target.View == nil {
		return fmt.Errorf("warp: frame has no target image")
	}
	if f.Eyes == nil {
		return ErrNoEyeImages
	}
	for eye, tex := range f.Eyes.Texture {
		if tex == nil {
			return fmt.Errorf("%w: %s eye", ErrNoEyeImages, distortion.Eye(eye))
		}
	}
	return nil
}

// bindGroups creates one bind group per eye with create and returns a
// function destroying them.
func (s *shared) bindGroups(create func(eye distortion.Eye) (hal.BindGroup, error)) ([distortion.NumEyes]hal.BindGroup, func(), error) {
	var groups [distortion.NumEyes]hal.BindGroup
	release := func() {
		for _, g := range groups {
			if g != nil {
				s.dev.HAL().DestroyBindGroup(g)
			}
		}
	}
	for eye := range distortion.NumEyes {
		g, err := create(distortion.Eye(eye))
		if err != nil {
			release()
			return groups, nil, err
		}
		groups[eye] = g
	}
	return groups, release, nil
}

func (s *shared) destroy() {
	s.res.Destroy()
	s.dev = nil
}

func uniformEntry(binding uint32, visibility gputypes.ShaderStage) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: visibility,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
}

func samplerEntry(binding uint32, visibility gputypes.ShaderStage) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: visibility,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	}
}

func eyeTextureEntry(binding uint32, visibility gputypes.ShaderStage) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: visibility,
		Texture: &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2DArray,
		},
	}
}

func gridTextureEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Texture: &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		},
	}
}

func storageEntry(binding uint32, format gputypes.TextureFormat) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		StorageTexture: &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        format,
			ViewDimension: gputypes.TextureViewDimension2D,
		},
	}
}

func bufferResource(buf hal.Buffer, size uint64) gputypes.BufferBinding {
	return gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: size}
}
