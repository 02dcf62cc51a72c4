package warp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/atw/distortion"
	"github.com/gogpu/atw/gpucore"
	"github.com/gogpu/atw/internal/gpu"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/math/f32"
)

// computeWorkgroupSize is the local size of both compute passes in x and y.
const computeWorkgroupSize = 8

// Formats of the compute backend images.
const (
	gridSourceFormat = gputypes.TextureFormatRGBA32Float
	gridWarpedFormat = gputypes.TextureFormatRGBA16Float
	computeTarget    = gputypes.TextureFormatRGBA8Unorm
)

// ErrUnsupportedTarget is returned by Compute.Init when the swapchain
// images cannot be written from a compute shader.
var ErrUnsupportedTarget = errors.New("warp: compute backend requires an rgba8unorm storage target")

// Compute warps with two compute passes: the distortion grid is warped per
// (eye, channel), then every display pixel interpolates the warped grid and
// samples the eye image.
type Compute struct {
	shared

	source [distortion.NumEyes][distortion.NumChannels]*gpu.Texture
	warped [distortion.NumEyes][distortion.NumChannels]*gpu.Texture

	transformGroups [FramesInFlight][distortion.NumEyes][distortion.NumChannels]hal.BindGroup
	resampleGroups  [FramesInFlight][distortion.NumEyes]hal.BindGroup
	frameLayout     hal.BindGroupLayout

	transform          hal.ComputePipeline
	resampleSpatial    hal.ComputePipeline
	resampleChromatic  hal.ComputePipeline
	gridWidth          uint32
	gridHeight         uint32
	viewportWorkgroups [2]uint32
}

// NewCompute returns an uninitialized compute backend.
func NewCompute() *Compute {
	return &Compute{}
}

// Name implements Backend.
func (c *Compute) Name() string { return NameCompute }

// TargetFormat implements Backend.
func (c *Compute) TargetFormat() (gputypes.TextureFormat, gputypes.TextureUsage) {
	return computeTarget, gputypes.TextureUsageStorageBinding
}

// Init implements Backend.
func (c *Compute) Init(dev *gpu.Device, lens *distortion.Lens, cfg Config) error {
	if cfg.TargetFormat != computeTarget {
		return fmt.Errorf("%w: got %v", ErrUnsupportedTarget, cfg.TargetFormat)
	}
	if err := c.shared.init(dev, lens, cfg); err != nil {
		c.Destroy()
		return err
	}
	c.gridWidth = uint32(cfg.TilesWide + 1)
	c.gridHeight = uint32(cfg.TilesHigh + 1)
	_, _, vw, vh := eyeViewport(distortion.EyeLeft, cfg.TargetWidth, cfg.TargetHeight)
	c.viewportWorkgroups = [2]uint32{
		gpucore.WorkgroupCount(vw, computeWorkgroupSize),
		gpucore.WorkgroupCount(vh, computeWorkgroupSize),
	}

	if err := c.createImages(); err != nil {
		c.Destroy()
		return err
	}
	if err := c.createPipelines(); err != nil {
		c.Destroy()
		return err
	}
	slogger().Info("warp: compute backend ready",
		"grid", fmt.Sprintf("%dx%d", c.gridWidth, c.gridHeight),
		"chromatic", cfg.Chromatic)
	return nil
}

// gridPixels packs one distortion grid as rgba32float texels.
func gridPixels(coords []f32.Vec2) []byte {
	buf := make([]byte, 0, len(coords)*16)
	for _, uv := range coords {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(uv[0]))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(uv[1]))
		buf = binary.LittleEndian.AppendUint32(buf, 0)
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(1))
	}
	return buf
}

func (c *Compute) createImages() error {
	for eye := range distortion.NumEyes {
		for ch := range distortion.NumChannels {
			name := fmt.Sprintf("%s_%s", distortion.Eye(eye), distortion.Channel(ch))
			src, err := c.dev.CreateTexture(gpu.TextureConfig{
				Label:  "warp_grid_source_" + name,
				Width:  c.gridWidth,
				Height: c.gridHeight,
				Format: gridSourceFormat,
				Usage:  gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
			})
			if err != nil {
				return err
			}
			c.res.Textures = append(c.res.Textures, src)
			c.source[eye][ch] = src

			pixels := gridPixels(c.mesh.Coords(distortion.Eye(eye), distortion.Channel(ch)))
			if err := c.dev.WriteTexture(src, pixels, c.gridWidth*16); err != nil {
				return err
			}

			dst, err := c.dev.CreateTexture(gpu.TextureConfig{
				Label:  "warp_grid_warped_" + name,
				Width:  c.gridWidth,
				Height: c.gridHeight,
				Format: gridWarpedFormat,
				Usage:  gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding,
			})
			if err != nil {
				return err
			}
			c.res.Textures = append(c.res.Textures, dst)
			c.warped[eye][ch] = dst
		}
	}
	return nil
}

func (c *Compute) createPipelines() error {
	h := c.dev.HAL()

	transformModule, err := c.dev.CreateShaderModule("warp_transform", transformShaderSource)
	if err != nil {
		return err
	}
	resampleModule, err := c.dev.CreateShaderModule("warp_resample", resampleShaderSource)
	if err != nil {
		h.DestroyShaderModule(transformModule)
		return err
	}
	c.res.ShaderModules = append(c.res.ShaderModules, transformModule, resampleModule)

	// Transform pass.
	transformLayout, err := h.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "warp_transform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniformEntry(0, gputypes.ShaderStageCompute),
			gridTextureEntry(1),
			storageEntry(2, gridWarpedFormat),
		},
	})
	if err != nil {
		return fmt.Errorf("warp: create transform layout: %w", err)
	}
	c.res.BindLayouts = append(c.res.BindLayouts, transformLayout)

	for slot := range FramesInFlight {
		for eye := range distortion.NumEyes {
			for ch := range distortion.NumChannels {
				g, err := h.CreateBindGroup(&hal.BindGroupDescriptor{
					Label:  "warp_transform",
					Layout: transformLayout,
					Entries: []gputypes.BindGroupEntry{
						{Binding: 0, Resource: bufferResource(c.slots[slot].buffers[eye], gpucore.WarpUniformsSize)},
						{Binding: 1, Resource: gputypes.TextureViewBinding{TextureView: c.source[eye][ch].View().NativeHandle()}},
						{Binding: 2, Resource: gputypes.TextureViewBinding{TextureView: c.warped[eye][ch].View().NativeHandle()}},
					},
				})
				if err != nil {
					return fmt.Errorf("warp: create transform bind group: %w", err)
				}
				c.res.BindGroups = append(c.res.BindGroups, g)
				c.transformGroups[slot][eye][ch] = g
			}
		}
	}

	transformPipeLayout, err := h.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "warp_transform_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{transformLayout},
	})
	if err != nil {
		return fmt.Errorf("warp: create transform pipeline layout: %w", err)
	}
	c.res.PipelineLayouts = append(c.res.PipelineLayouts, transformPipeLayout)

	if c.transform, err = c.createPipeline(transformPipeLayout, transformModule, "main"); err != nil {
		return err
	}

	// Resample pass.
	staticLayout, err := h.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "warp_resample_static_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniformEntry(0, gputypes.ShaderStageCompute),
			gridTextureEntry(1),
			gridTextureEntry(2),
			gridTextureEntry(3),
			samplerEntry(4, gputypes.ShaderStageCompute),
		},
	})
	if err != nil {
		return fmt.Errorf("warp: create resample layout: %w", err)
	}
	c.res.BindLayouts = append(c.res.BindLayouts, staticLayout)

	c.frameLayout, err = h.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "warp_resample_frame_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			eyeTextureEntry(0, gputypes.ShaderStageCompute),
			storageEntry(1, computeTarget),
		},
	})
	if err != nil {
		return fmt.Errorf("warp: create resample frame layout: %w", err)
	}
	c.res.BindLayouts = append(c.res.BindLayouts, c.frameLayout)

	for slot := range FramesInFlight {
		for eye := range distortion.NumEyes {
			w := c.warped[eye]
			g, err := h.CreateBindGroup(&hal.BindGroupDescriptor{
				Label:  "warp_resample_static",
				Layout: staticLayout,
				Entries: []gputypes.BindGroupEntry{
					{Binding: 0, Resource: bufferResource(c.slots[slot].buffers[eye], gpucore.WarpUniformsSize)},
					{Binding: 1, Resource: gputypes.TextureViewBinding{TextureView: w[distortion.ChannelRed].View().NativeHandle()}},
					{Binding: 2, Resource: gputypes.TextureViewBinding{TextureView: w[distortion.ChannelGreen].View().NativeHandle()}},
					{Binding: 3, Resource: gputypes.TextureViewBinding{TextureView: w[distortion.ChannelBlue].View().NativeHandle()}},
					{Binding: 4, Resource: gputypes.SamplerBinding{Sampler: c.sampler.NativeHandle()}},
				},
			})
			if err != nil {
				return fmt.Errorf("warp: create resample bind group: %w", err)
			}
			c.res.BindGroups = append(c.res.BindGroups, g)
			c.resampleGroups[slot][eye] = g
		}
	}

	resamplePipeLayout, err := h.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "warp_resample_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{staticLayout, c.frameLayout},
	})
	if err != nil {
		return fmt.Errorf("warp: create resample pipeline layout: %w", err)
	}
	c.res.PipelineLayouts = append(c.res.PipelineLayouts, resamplePipeLayout)

	if c.resampleSpatial, err = c.createPipeline(resamplePipeLayout, resampleModule, "spatial_main"); err != nil {
		return err
	}
	if c.resampleChromatic, err = c.createPipeline(resamplePipeLayout, resampleModule, "chromatic_main"); err != nil {
		return err
	}
	return nil
}

func (c *Compute) createPipeline(layout hal.PipelineLayout, module hal.ShaderModule, entry string) (hal.ComputePipeline, error) {
	p, err := c.dev.HAL().CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "warp_" + entry,
		Layout:  layout,
		Compute: hal.ComputeState{Module: module, EntryPoint: entry},
	})
	if err != nil {
		return nil, fmt.Errorf("warp: create %s pipeline: %w", entry, err)
	}
	c.res.ComputePipelines = append(c.res.ComputePipelines, p)
	return p, nil
}

// Render implements Backend.
func (c *Compute) Render(f *Frame) (*gpu.Fence, error) {
	slot, err := c.begin(f)
	if err != nil {
		return nil, err
	}

	frameGroups, release, err := c.bindGroups(func(eye distortion.Eye) (hal.BindGroup, error) {
		return c.dev.HAL().CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  "warp_resample_frame",
			Layout: c.frameLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: f.Eyes.Texture[eye].NativeHandle()}},
				{Binding: 1, Resource: gputypes.TextureViewBinding{TextureView: f.Target.View.NativeHandle()}},
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("warp: create resample frame bind group: %w", err)
	}

	resample := c.resampleSpatial
	if c.cfg.Chromatic {
		resample = c.resampleChromatic
	}
	gx := gpucore.WorkgroupCount(c.gridWidth, computeWorkgroupSize)
	gy := gpucore.WorkgroupCount(c.gridHeight, computeWorkgroupSize)

	fence, err := c.dev.Encode("warp_compute", func(enc hal.CommandEncoder) error {
		c.transitionWarped(enc, gputypes.TextureUsageTextureBinding, gputypes.TextureUsageStorageBinding)
		pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: "warp_transform_pass"})
		pass.SetPipeline(c.transform)
		for eye := range distortion.NumEyes {
			for ch := range distortion.NumChannels {
				pass.SetBindGroup(0, c.transformGroups[slot][eye][ch], nil)
				pass.Dispatch(gx, gy, 1)
			}
		}
		pass.End()
		c.transitionWarped(enc, gputypes.TextureUsageStorageBinding, gputypes.TextureUsageTextureBinding)

		pass = enc.BeginComputePass(&hal.ComputePassDescriptor{Label: "warp_resample_pass"})
		pass.SetPipeline(resample)
		for eye := range distortion.NumEyes {
			pass.SetBindGroup(0, c.resampleGroups[slot][eye], nil)
			pass.SetBindGroup(1, frameGroups[eye], nil)
			pass.Dispatch(c.viewportWorkgroups[0], c.viewportWorkgroups[1], 1)
		}
		pass.End()
		return nil
	}, release)
	if err != nil {
		release()
		return nil, err
	}
	c.finish(slot, fence)
	return fence, nil
}

func (c *Compute) transitionWarped(enc hal.CommandEncoder, from, to gputypes.TextureUsage) {
	for eye := range distortion.NumEyes {
		for _, w := range c.warped[eye] {
			gpu.Transition(enc, w.HAL(), from, to)
		}
	}
}

// Destroy implements Backend.
func (c *Compute) Destroy() {
	c.shared.destroy()
	*c = Compute{}
}
