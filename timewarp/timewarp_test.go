package timewarp

import (
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/gogpu/atw/core"
	"golang.org/x/image/math/f32"
)

const uvEps = 1e-5

func constantView(m core.Mat4) ViewFunc {
	return func(time.Duration) core.Mat4 { return m }
}

func symmetricProjection() core.Mat4 {
	return core.ProjectionFov(core.GraphicsAPIVulkan, 90, 90, 0, 0, 0.1, 0)
}

func TestTexCoordProjection(t *testing.T) {
	p := core.Projection(core.GraphicsAPIOpenGL, -0.3, 0.1, -0.2, 0.2, 0.1, 0)
	tc := TexCoordProjection(&p)
	if got, want := tc[0][0], 0.5*p[0][0]; got != want {
		t.Errorf("[0][0] = %v, want %v", got, want)
	}
	if got, want := tc[2][0], 0.5*p[2][0]-0.5; got != want {
		t.Errorf("[2][0] = %v, want %v", got, want)
	}
	// Third row must be (0, 0, -1, 0).
	row := [4]float32{tc[0][2], tc[1][2], tc[2][2], tc[3][2]}
	if row != [4]float32{0, 0, -1, 0} {
		t.Errorf("third row = %v, want [0 0 -1 0]", row)
	}
}

func TestComputeStaticHeadIsIdentical(t *testing.T) {
	proj := symmetricProjection()
	rv := core.RotationY(0.4)
	view := core.RotationX(-0.2)

	m := Compute(&proj, &rv, constantView(view), 10*time.Millisecond, 26*time.Millisecond)
	if m.Start != m.End {
		t.Errorf("Start = %v, End = %v, want identical for a constant view", m.Start, m.End)
	}
}

func TestComputeEqualTimes(t *testing.T) {
	proj := symmetricProjection()
	rv := core.Identity()
	spin := func(t time.Duration) core.Mat4 { return core.RotationY(float32(t.Seconds())) }

	m := Compute(&proj, &rv, spin, time.Second, time.Second)
	if m.Start != m.End {
		t.Errorf("Start != End for refreshStart == refreshEnd")
	}
	m = Compute(&proj, &rv, spin, time.Second, 2*time.Second)
	if m.Start == m.End {
		t.Errorf("Start == End for a rotating head across the refresh")
	}
}

func TestCenterRoundTrip(t *testing.T) {
	proj := symmetricProjection()
	for _, rv := range []core.Mat4{core.Identity(), core.RotationY(0.8), core.RotationZ(-1.3)} {
		m := Compute(&proj, &rv, constantView(rv), 0, 0)
		for _, f := range []float32{0, 0.5, 1} {
			uv := m.EvalUV(f32.Vec2{0, 0}, f)
			if math32.Abs(uv[0]-0.5) > uvEps || math32.Abs(uv[1]-0.5) > uvEps {
				t.Errorf("EvalUV(center, %v) = %v, want (0.5, 0.5)", f, uv)
			}
		}
	}
}

func TestHeadRotationDisabled(t *testing.T) {
	proj := symmetricProjection()
	identity := constantView(core.Identity())

	t.Run("translation only", func(t *testing.T) {
		rv := core.Translation(0.03, -0.1, 0.5)
		m := Compute(&proj, &rv, identity, 0, 11*time.Millisecond)
		if m.Start != m.End {
			t.Fatal("Start != End with identity current view")
		}
		uv := m.EvalUV(f32.Vec2{0, 0}, 0.5)
		if math32.Abs(uv[0]-0.5) > uvEps || math32.Abs(uv[1]-0.5) > uvEps {
			t.Errorf("EvalUV(center) = %v, want (0.5, 0.5): translation must not warp", uv)
		}
	})

	t.Run("rotation and translation", func(t *testing.T) {
		rot := core.RotationY(0.25)
		tr := core.Translation(1, 2, 3)
		rv := core.Mul(&tr, &rot)
		m := Compute(&proj, &rv, identity, 0, 11*time.Millisecond)

		tc := TexCoordProjection(&proj)
		inv := rv.InvertHomogeneous()
		reinverted := inv.InvertHomogeneous().ZeroTranslation()
		want := core.Mul(&tc, &reinverted)
		if !core.ApproxEqual(&m.Start, &want, 1e-5) || !core.ApproxEqual(&m.End, &want, 1e-5) {
			t.Errorf("Start = %v, want %v", m.Start, want)
		}
	})
}

func TestYawShiftsHorizontally(t *testing.T) {
	proj := symmetricProjection()
	rv := core.Identity()

	left := Compute(&proj, &rv, constantView(core.RotationY(0.1)), 0, 0)
	right := Compute(&proj, &rv, constantView(core.RotationY(-0.1)), 0, 0)

	a := left.EvalUV(f32.Vec2{0, 0}, 0)
	b := right.EvalUV(f32.Vec2{0, 0}, 0)
	if math32.Abs(a[1]-0.5) > uvEps || math32.Abs(b[1]-0.5) > uvEps {
		t.Errorf("yaw changed v: %v, %v", a, b)
	}
	if math32.Abs((a[0]-0.5)+(b[0]-0.5)) > uvEps {
		t.Errorf("opposite yaws not symmetric: %v, %v", a, b)
	}
	if math32.Abs(a[0]-0.5) < 0.01 {
		t.Errorf("yaw of 0.1 rad moved u by only %v", a[0]-0.5)
	}
}

func TestEvalUVInterpolates(t *testing.T) {
	proj := symmetricProjection()
	rv := core.Identity()
	spin := func(t time.Duration) core.Mat4 { return core.RotationY(float32(t.Seconds())) }
	m := Compute(&proj, &rv, spin, 0, 200*time.Millisecond)

	start := Matrices{Start: m.Start, End: m.Start}
	end := Matrices{Start: m.End, End: m.End}
	in := f32.Vec2{0.2, -0.1}

	if got, want := m.EvalUV(in, 0), start.EvalUV(in, 0.7); math32.Abs(got[0]-want[0]) > uvEps || math32.Abs(got[1]-want[1]) > uvEps {
		t.Errorf("EvalUV(f=0) = %v, want start %v", got, want)
	}
	if got, want := m.EvalUV(in, 1), end.EvalUV(in, 0.2); math32.Abs(got[0]-want[0]) > uvEps || math32.Abs(got[1]-want[1]) > uvEps {
		t.Errorf("EvalUV(f=1) = %v, want end %v", got, want)
	}
}

func TestEvalUVClampsDivisor(t *testing.T) {
	var m Matrices
	m.Start[0][0] = 1
	m.End[0][0] = 1
	uv := m.EvalUV(f32.Vec2{1e-6, 0}, 0.5)
	if math32.IsInf(uv[0], 0) || math32.IsNaN(uv[0]) {
		t.Fatalf("EvalUV with zero z = %v, want finite", uv)
	}
	if want := float32(1e-6) / Epsilon; math32.Abs(uv[0]-want) > 1e-3 {
		t.Errorf("EvalUV u = %v, want %v", uv[0], want)
	}
}

func TestMatricesFloats(t *testing.T) {
	m := Matrices{Start: core.Translation(1, 2, 3), End: core.Translation(4, 5, 6)}
	f := m.Floats()
	if f[12] != 1 || f[16+12] != 4 || f[31] != 1 {
		t.Errorf("Floats() = %v, want start then end column-major", f)
	}
}
