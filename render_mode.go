package atw

import (
	"fmt"
	"strings"
)

// RenderMode selects which threads run and whether the warp reprojects.
type RenderMode int

const (
	// RenderModeAsyncWarp runs the scene producer and the time warp on
	// separate threads. The warp reprojects the newest completed eye images
	// to the head pose at every display refresh.
	RenderModeAsyncWarp RenderMode = iota

	// RenderModeWarpOnly warps a static pair of eye images. No scene
	// producer runs, which isolates the cost and latency of the warp.
	RenderModeWarpOnly

	// RenderModeSceneOnly runs the producer but displays its images without
	// reprojection, as a baseline to compare judder against.
	RenderModeSceneOnly
)

// String returns the render mode name as accepted by ParseRenderMode.
func (m RenderMode) String() string {
	switch m {
	case RenderModeAsyncWarp:
		return "async-warp"
	case RenderModeWarpOnly:
		return "warp-only"
	case RenderModeSceneOnly:
		return "scene-only"
	default:
		return "unknown"
	}
}

// RunsProducer reports whether the mode renders a scene.
func (m RenderMode) RunsProducer() bool {
	return m != RenderModeWarpOnly
}

// Reprojects reports whether the warp applies head rotation.
func (m RenderMode) Reprojects() bool {
	return m != RenderModeSceneOnly
}

// ParseRenderMode parses a render mode name, ignoring case.
func ParseRenderMode(s string) (RenderMode, error) {
	for _, m := range []RenderMode{RenderModeAsyncWarp, RenderModeWarpOnly, RenderModeSceneOnly} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: render mode %q", ErrInvalidOption, s)
}
