package gpu

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}

// CreateShaderModule compiles WGSL source and creates a shader module.
func (d *Device) CreateShaderModule(label, source string) (hal.ShaderModule, error) {
	code, err := CompileWGSL(source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create shader module %s: %w", label, err)
	}
	return module, nil
}

// Resources collects GPU objects that are destroyed together.
//
// Objects are destroyed in dependency order: bind groups and pipelines
// before the layouts and modules they were created from.
type Resources struct {
	Device hal.Device

	BindGroups       []hal.BindGroup
	RenderPipelines  []hal.RenderPipeline
	ComputePipelines []hal.ComputePipeline
	PipelineLayouts  []hal.PipelineLayout
	BindLayouts      []hal.BindGroupLayout
	ShaderModules    []hal.ShaderModule
	Samplers         []hal.Sampler
	Buffers          []hal.Buffer
	Textures         []*Texture
}

// Destroy cleans up all resources. It is safe to call more than once.
func (r *Resources) Destroy() {
	if r.Device == nil {
		return
	}
	for _, bg := range r.BindGroups {
		r.Device.DestroyBindGroup(bg)
	}
	for _, p := range r.RenderPipelines {
		r.Device.DestroyRenderPipeline(p)
	}
	for _, p := range r.ComputePipelines {
		r.Device.DestroyComputePipeline(p)
	}
	for _, l := range r.PipelineLayouts {
		r.Device.DestroyPipelineLayout(l)
	}
	for _, l := range r.BindLayouts {
		r.Device.DestroyBindGroupLayout(l)
	}
	for _, m := range r.ShaderModules {
		r.Device.DestroyShaderModule(m)
	}
	for _, s := range r.Samplers {
		r.Device.DestroySampler(s)
	}
	for _, b := range r.Buffers {
		r.Device.DestroyBuffer(b)
	}
	for _, t := range r.Textures {
		t.Destroy()
	}
	*r = Resources{Device: r.Device}
}
