package warp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/atw/distortion"
	"github.com/gogpu/atw/gpucore"
	"github.com/gogpu/atw/internal/gpu"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// rasterVertexStride is the size of one mesh vertex: position and the
// red, green and blue distortion coordinates.
const rasterVertexStride = 4 * 2 * 4

// Raster warps by drawing a distortion mesh per eye.
type Raster struct {
	shared

	vertices   [distortion.NumEyes]hal.Buffer
	indices    hal.Buffer
	indexCount uint32

	staticGroups [FramesInFlight][distortion.NumEyes]hal.BindGroup
	eyeLayout    hal.BindGroupLayout
	spatial      hal.RenderPipeline
	chromatic    hal.RenderPipeline
}

// NewRaster returns an uninitialized raster backend.
func NewRaster() *Raster {
	return &Raster{}
}

// Name implements Backend.
func (r *Raster) Name() string { return NameRaster }

// TargetFormat implements Backend.
func (r *Raster) TargetFormat() (gputypes.TextureFormat, gputypes.TextureUsage) {
	return gputypes.TextureFormatBGRA8Unorm, gputypes.TextureUsageRenderAttachment
}

// Init implements Backend.
func (r *Raster) Init(dev *gpu.Device, lens *distortion.Lens, cfg Config) error {
	if err := r.shared.init(dev, lens, cfg); err != nil {
		r.Destroy()
		return err
	}
	if err := r.createMesh(); err != nil {
		r.Destroy()
		return err
	}
	if err := r.createPipelines(); err != nil {
		r.Destroy()
		return err
	}
	slogger().Info("warp: raster backend ready",
		"tiles", fmt.Sprintf("%dx%d", cfg.TilesWide, cfg.TilesHigh),
		"vertices", r.mesh.VertexCount(),
		"chromatic", cfg.Chromatic)
	return nil
}

// meshVertices packs the vertex buffer of one eye.
func meshVertices(mesh *distortion.Mesh, eye distortion.Eye) []byte {
	buf := make([]byte, 0, mesh.VertexCount()*rasterVertexStride)
	put := func(v float32) {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	for y := 0; y <= mesh.TilesHigh; y++ {
		for x := 0; x <= mesh.TilesWide; x++ {
			put(-1 + 2*float32(x)/float32(mesh.TilesWide))
			put(gridRowClipY(y, mesh.TilesHigh))
			for ch := range distortion.NumChannels {
				uv := mesh.At(eye, distortion.Channel(ch), x, y)
				put(uv[0])
				put(uv[1])
			}
		}
	}
	return buf
}

// meshIndices returns two triangles per tile.
func meshIndices(tilesWide, tilesHigh int) []uint32 {
	out := make([]uint32, 0, tilesWide*tilesHigh*6)
	row := uint32(tilesWide + 1)
	for y := range tilesHigh {
		for x := range tilesWide {
			i := uint32(y)*row + uint32(x)
			out = append(out,
				i, i+1, i+row,
				i+1, i+row+1, i+row,
			)
		}
	}
	return out
}

func (r *Raster) createMesh() error {
	h := r.dev.HAL()
	for eye := range distortion.NumEyes {
		data := meshVertices(r.mesh, distortion.Eye(eye))
		buf, err := h.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("warp_mesh_%s", distortion.Eye(eye)),
			Size:  uint64(len(data)),
			Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("warp: create mesh buffer: %w", err)
		}
		r.res.Buffers = append(r.res.Buffers, buf)
		r.vertices[eye] = buf
		if err := r.dev.WriteBuffer(buf, 0, data); err != nil {
			return err
		}
	}

	indices := meshIndices(r.cfg.TilesWide, r.cfg.TilesHigh)
	data := make([]byte, 0, len(indices)*4)
	for _, i := range indices {
		data = binary.LittleEndian.AppendUint32(data, i)
	}
	buf, err := h.CreateBuffer(&hal.BufferDescriptor{
		Label: "warp_mesh_indices",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("warp: create index buffer: %w", err)
	}
	r.res.Buffers = append(r.res.Buffers, buf)
	r.indices = buf
	r.indexCount = uint32(len(indices))
	return r.dev.WriteBuffer(buf, 0, data)
}

func (r *Raster) createPipelines() error {
	h := r.dev.HAL()
	module, err := r.dev.CreateShaderModule("warp_raster", rasterShaderSource)
	if err != nil {
		return err
	}
	r.res.ShaderModules = append(r.res.ShaderModules, module)

	vertexFragment := gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	staticLayout, err := h.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "warp_raster_static_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniformEntry(0, vertexFragment),
			samplerEntry(1, gputypes.ShaderStageFragment),
		},
	})
	if err != nil {
		return fmt.Errorf("warp: create bind group layout: %w", err)
	}
	r.res.BindLayouts = append(r.res.BindLayouts, staticLayout)

	r.eyeLayout, err = h.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "warp_raster_eye_layout",
		Entries: []gputypes.BindGroupLayoutEntry{eyeTextureEntry(0, gputypes.ShaderStageFragment)},
	})
	if err != nil {
		return fmt.Errorf("warp: create bind group layout: %w", err)
	}
	r.res.BindLayouts = append(r.res.BindLayouts, r.eyeLayout)

	for slot := range FramesInFlight {
		for eye := range distortion.NumEyes {
			g, err := h.CreateBindGroup(&hal.BindGroupDescriptor{
				Label:  fmt.Sprintf("warp_raster_static_%s_%d", distortion.Eye(eye), slot),
				Layout: staticLayout,
				Entries: []gputypes.BindGroupEntry{
					{Binding: 0, Resource: bufferResource(r.slots[slot].buffers[eye], gpucore.WarpUniformsSize)},
					{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: r.sampler.NativeHandle()}},
				},
			})
			if err != nil {
				return fmt.Errorf("warp: create bind group: %w", err)
			}
			r.staticGroups[slot][eye] = g
			r.res.BindGroups = append(r.res.BindGroups, g)
		}
	}

	layout, err := h.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "warp_raster_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{staticLayout, r.eyeLayout},
	})
	if err != nil {
		return fmt.Errorf("warp: create pipeline layout: %w", err)
	}
	r.res.PipelineLayouts = append(r.res.PipelineLayouts, layout)

	if r.spatial, err = r.createPipeline(layout, module, "fs_spatial"); err != nil {
		return err
	}
	if r.chromatic, err = r.createPipeline(layout, module, "fs_chromatic"); err != nil {
		return err
	}
	return nil
}

func (r *Raster) createPipeline(layout hal.PipelineLayout, module hal.ShaderModule, fragment string) (hal.RenderPipeline, error) {
	p, err := r.dev.HAL().CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "warp_raster_" + fragment,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers: []gputypes.VertexBufferLayout{{
				ArrayStride: rasterVertexStride,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes: []gputypes.VertexAttribute{
					{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
					{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
					{Format: gputypes.VertexFormatFloat32x2, Offset: 16, ShaderLocation: 2},
					{Format: gputypes.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 3},
				},
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: fragment,
			Targets: []gputypes.ColorTargetState{{
				Format:    r.cfg.TargetFormat,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("warp: create %s pipeline: %w", fragment, err)
	}
	r.res.RenderPipelines = append(r.res.RenderPipelines, p)
	return p, nil
}

// Render implements Backend.
func (r *Raster) Render(f *Frame) (*gpu.Fence, error) {
	slot, err := r.begin(f)
	if err != nil {
		return nil, err
	}

	eyeGroups, release, err := r.bindGroups(func(eye distortion.Eye) (hal.BindGroup, error) {
		return r.dev.HAL().CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  "warp_raster_eye",
			Layout: r.eyeLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: f.Eyes.Texture[eye].NativeHandle()}},
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("warp: create eye bind group: %w", err)
	}

	pipeline := r.spatial
	if r.cfg.Chromatic {
		pipeline = r.chromatic
	}

	fence, err := r.dev.Encode("warp_raster", func(enc hal.CommandEncoder) error {
		pass := enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: "warp_raster_pass",
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:       f.Target.View,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: gputypes.Color{A: 1},
			}},
		})
		pass.SetPipeline(pipeline)
		pass.SetIndexBuffer(r.indices, gputypes.IndexFormatUint32, 0)
		for eye := range distortion.NumEyes {
			x, y, w, h := eyeViewport(distortion.Eye(eye), r.cfg.TargetWidth, r.cfg.TargetHeight)
			pass.SetViewport(float32(x), float32(y), float32(w), float32(h), 0, 1)
			pass.SetScissorRect(x, y, w, h)
			pass.SetBindGroup(0, r.staticGroups[slot][eye], nil)
			pass.SetBindGroup(1, eyeGroups[eye], nil)
			pass.SetVertexBuffer(0, r.vertices[eye], 0)
			pass.DrawIndexed(r.indexCount, 1, 0, 0, 0)
		}
		pass.End()
		return nil
	}, release)
	if err != nil {
		release()
		return nil, err
	}
	r.finish(slot, fence)
	return fence, nil
}

// Destroy implements Backend.
func (r *Raster) Destroy() {
	r.shared.destroy()
	*r = Raster{}
}
