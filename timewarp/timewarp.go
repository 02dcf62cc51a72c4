// Package timewarp computes the per-frame transforms that reproject eye
// images rendered at an earlier head pose onto the current one.
//
// The warp is rotation-only: translation between the render pose and the
// display pose is discarded, so positional parallax is not corrected.
package timewarp

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/gogpu/atw/core"
	"golang.org/x/image/math/f32"
)

// Epsilon bounds the perspective divide of a warped UV.
const Epsilon = 1.1920929e-7

// ViewFunc returns the head view matrix expected at time t.
type ViewFunc func(t time.Duration) core.Mat4

// Matrices are the warp transforms for the first and last pixel column
// scanned out during one display refresh.
type Matrices struct {
	Start core.Mat4
	End   core.Mat4
}

// TexCoordProjection converts a projection from clip space [-1, 1] to
// texture space [0, 1]. The third row becomes (0, 0, -1, 0) so the z of a
// transformed direction carries the perspective divisor.
func TexCoordProjection(p *core.Mat4) core.Mat4 {
	return core.Mat4{
		{0.5 * p[0][0], 0, 0, 0},
		{0, 0.5 * p[1][1], 0, 0},
		{0.5*p[2][0] - 0.5, 0.5*p[2][1] - 0.5, -1, 0},
		{0, 0, 0, 1},
	}
}

// Transform returns the warp transform for a frame rendered with
// renderProjection and renderView, displayed at newView.
func Transform(renderProjection, renderView, newView *core.Mat4) core.Mat4 {
	texCoordProjection := TexCoordProjection(renderProjection)

	inverseRenderView := renderView.InvertHomogeneous()
	deltaView := core.Mul(&inverseRenderView, newView)
	inverseDeltaView := deltaView.InvertHomogeneous().ZeroTranslation()

	return core.Mul(&texCoordProjection, &inverseDeltaView)
}

// Compute returns the warp transforms for the start and end of the display
// refresh. refreshEnd may equal refreshStart, in which case both transforms
// are identical.
func Compute(renderProjection, renderView *core.Mat4, view ViewFunc, refreshStart, refreshEnd time.Duration) Matrices {
	startView := view(refreshStart)
	endView := view(refreshEnd)
	return Matrices{
		Start: Transform(renderProjection, renderView, &startView),
		End:   Transform(renderProjection, renderView, &endView),
	}
}

// EvalUV applies the warp to a tangent-space direction for a pixel at
// display fraction f in [0, 1] and returns the texture coordinate to
// sample. It mirrors the formula the warp shaders evaluate.
func (m *Matrices) EvalUV(eyeUV f32.Vec2, f float32) f32.Vec2 {
	in := f32.Vec4{eyeUV[0], eyeUV[1], -1, 1}
	s := m.Start.TransformVec4(in)
	e := m.End.TransformVec4(in)

	u := s[0] + (e[0]-s[0])*f
	v := s[1] + (e[1]-s[1])*f
	z := s[2] + (e[2]-s[2])*f
	z = math32.Max(z, Epsilon)
	return f32.Vec2{u / z, v / z}
}

// Floats packs the transforms as 32 column-major floats, start first.
func (m *Matrices) Floats() [32]float32 {
	var out [32]float32
	start := m.Start.Floats()
	end := m.End.Floats()
	copy(out[:16], start[:])
	copy(out[16:], end[:])
	return out
}
