package scene

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/atw/core"
	"github.com/gogpu/atw/distortion"
	"github.com/gogpu/atw/internal/gpu"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// gridUniformsSize is the size of SceneUniforms in grid.wgsl.
const gridUniformsSize = 64 + 2*16

// Grid is a scene of grid lines on a sphere around the viewer. Rotational
// judder and warp errors are easy to spot against it.
type Grid struct {
	dev *gpu.Device
	res gpu.Resources

	pipeline hal.RenderPipeline
	uniforms [Buffering][distortion.NumEyes]hal.Buffer
	groups   [Buffering][distortion.NumEyes]hal.BindGroup

	time time.Duration
}

// NewGrid returns an uninitialized grid scene.
func NewGrid() *Grid {
	return &Grid{}
}

// Init implements Scene.
func (g *Grid) Init(dev *gpu.Device, format gputypes.TextureFormat) error {
	g.dev = dev
	g.res = gpu.Resources{Device: dev.HAL()}
	if err := g.createPipeline(format); err != nil {
		g.Destroy()
		return err
	}
	return nil
}

func (g *Grid) createPipeline(format gputypes.TextureFormat) error {
	h := g.dev.HAL()
	module, err := g.dev.CreateShaderModule("scene_grid", gridShaderSource)
	if err != nil {
		return err
	}
	g.res.ShaderModules = append(g.res.ShaderModules, module)

	layout, err := h.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "scene_grid_layout",
		Entries: []gputypes.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		}},
	})
	if err != nil {
		return fmt.Errorf("scene: create bind group layout: %w", err)
	}
	g.res.BindLayouts = append(g.res.BindLayouts, layout)

	for slot := range Buffering {
		for eye := range distortion.NumEyes {
			buf, err := h.CreateBuffer(&hal.BufferDescriptor{
				Label: fmt.Sprintf("scene_grid_uniforms_%d_%s", slot, distortion.Eye(eye)),
				Size:  gridUniformsSize,
				Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageMapWrite,
			})
			if err != nil {
				return fmt.Errorf("scene: create uniform buffer: %w", err)
			}
			g.res.Buffers = append(g.res.Buffers, buf)
			g.uniforms[slot][eye] = buf

			group, err := h.CreateBindGroup(&hal.BindGroupDescriptor{
				Label:  "scene_grid_group",
				Layout: layout,
				Entries: []gputypes.BindGroupEntry{{
					Binding:  0,
					Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Size: gridUniformsSize},
				}},
			})
			if err != nil {
				return fmt.Errorf("scene: create bind group: %w", err)
			}
			g.res.BindGroups = append(g.res.BindGroups, group)
			g.groups[slot][eye] = group
		}
	}

	pipelineLayout, err := h.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "scene_grid_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{layout},
	})
	if err != nil {
		return fmt.Errorf("scene: create pipeline layout: %w", err)
	}
	g.res.PipelineLayouts = append(g.res.PipelineLayouts, pipelineLayout)

	g.pipeline, err = h.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "scene_grid",
		Layout: pipelineLayout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    format,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("scene: create grid pipeline: %w", err)
	}
	g.res.RenderPipelines = append(g.res.RenderPipelines, g.pipeline)
	return nil
}

// Simulate implements Scene.
func (g *Grid) Simulate(t time.Duration) {
	g.time = t
}

// Time returns the time of the last simulation step.
func (g *Grid) Time() time.Duration { return g.time }

// gridUniforms packs SceneUniforms for one eye.
func gridUniforms(view, projection *core.Mat4, t time.Duration, load int, eye distortion.Eye) []byte {
	inverseView := view.InvertHomogeneous().ZeroTranslation()
	buf := make([]byte, 0, gridUniformsSize)
	put := func(v float32) {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	for _, v := range inverseView.Floats() {
		put(v)
	}
	put(1 / projection[0][0])
	put(1 / projection[1][1])
	put(projection[2][0])
	put(projection[2][1])
	put(float32(t.Seconds()))
	put(float32(max(load, 0)))
	put(float32(eye))
	put(0)
	return buf
}

// Render implements Scene.
func (g *Grid) Render(enc hal.CommandEncoder, target Target, view, projection *core.Mat4, settings Settings) error {
	if g.pipeline == nil {
		return fmt.Errorf("scene: grid not initialized")
	}
	buf := g.uniforms[target.Slot][target.Eye]
	if err := g.dev.WriteMapped(buf, 0, gridUniforms(view, projection, g.time, settings.Load, target.Eye)); err != nil {
		return err
	}

	pass := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "scene_grid_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target.View,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{A: 1},
		}},
	})
	pass.SetViewport(0, 0, float32(target.Width), float32(target.Height), 0, 1)
	pass.SetScissorRect(0, 0, target.Width, target.Height)
	pass.SetPipeline(g.pipeline)
	pass.SetBindGroup(0, g.groups[target.Slot][target.Eye], nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()
	return nil
}

// Destroy implements Scene.
func (g *Grid) Destroy() {
	g.res.Destroy()
	*g = Grid{}
}
