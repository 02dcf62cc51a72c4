// Package atw is an asynchronous time warp test utility.
//
// # Overview
//
// A head-mounted display must show an image that matches the head pose at
// the moment each pixel lights up. Rendering a scene takes longer than the
// time between display refreshes allows, so atw splits the work over two
// threads:
//
//   - The scene thread renders stereo eye images for the pose predicted at
//     the next vsync and publishes them to a single-slot mailbox.
//   - The warp thread wakes at every display refresh, adopts the newest eye
//     images whose GPU work has completed, and reprojects them to the pose
//     at the start and end of the refresh while correcting lens distortion.
//
// The warp never waits for the scene: when no new frame is ready it warps
// the previous one again, so head rotation stays smooth even when the scene
// drops frames.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/atw"
//	    _ "github.com/gogpu/wgpu/hal/vulkan"
//	)
//
//	app, err := atw.New(
//	    atw.WithRenderMode(atw.RenderModeAsyncWarp),
//	    atw.WithChromaticAberration(true),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := app.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(app.Stats())
//
// Without WithWindow the app renders headless into an offscreen swapchain
// that simulates the display refresh.
//
// # Architecture
//
// The library is organized into:
//   - core: matrices, projections, vectors and splines
//   - distortion: lens model and distortion meshes
//   - timewarp: start and end of refresh warp transforms
//   - pacer: vsync prediction
//   - mailbox: single-slot handoff with back-pressure and fence gating
//   - warp: raster and compute warp backends
//   - scene: scene interface, grid scene and the producer loop
//   - internal/gpu: device, queue, textures and swapchains over wgpu/hal
//   - internal/thread: signals, recursive mutex and worker threads
package atw
