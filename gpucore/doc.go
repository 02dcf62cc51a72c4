// Package gpucore provides the backend-neutral GPU types shared by the scene
// producer, the eye-texture mailbox and the warp backends.
//
// Nothing in this package talks to a GPU. It defines:
//
//   - [Fence]: a pollable completion object for submitted GPU work
//   - [WarpUniforms]: the uniform block layout consumed by every warp shader
//   - [WorkgroupCount]: dispatch sizing for the compute warp passes
//
// Concrete implementations live in internal/gpu, which binds these types to
// gogpu/wgpu HAL objects.
package gpucore
