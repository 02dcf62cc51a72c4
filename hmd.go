package atw

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/gogpu/atw/core"
)

// ViewProvider reports the head pose of an HMD.
//
// View must be safe for concurrent use: the scene producer asks for the
// pose at the predicted vsync while the warp asks for the pose at the start
// and end of the current refresh.
type ViewProvider interface {
	// View returns the world-to-head view matrix expected at time t.
	View(t time.Duration) core.Mat4
}

// StaticHead is a head that never moves.
type StaticHead struct{}

// View always returns the identity.
func (StaticHead) View(time.Duration) core.Mat4 { return core.Identity() }

// SpinningHead turns about the vertical axis at a constant rate. It makes
// the effect of the time warp visible without tracking hardware.
type SpinningHead struct {
	// RadiansPerSecond is the yaw rate. Positive turns the head to the left.
	RadiansPerSecond float32
}

// View returns the inverse of the head's yaw at time t.
func (h SpinningHead) View(t time.Duration) core.Mat4 {
	yaw := math32.Mod(h.RadiansPerSecond*float32(t.Seconds()), 2*math32.Pi)
	return core.RotationY(-yaw)
}
