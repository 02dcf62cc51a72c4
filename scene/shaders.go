package scene

import _ "embed"

// gridShaderSource is the WGSL source of the grid scene.
//
//go:embed shaders/grid.wgsl
var gridShaderSource string
