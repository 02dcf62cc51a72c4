package warp

import _ "embed"

// WGSL sources of the warp passes.
var (
	//go:embed shaders/raster.wgsl
	rasterShaderSource string

	//go:embed shaders/transform.wgsl
	transformShaderSource string

	//go:embed shaders/resample.wgsl
	resampleShaderSource string
)
