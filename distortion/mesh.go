package distortion

import (
	"fmt"

	"github.com/gogpu/atw/core"
	"github.com/gogpu/atw/internal/parallel"
	"golang.org/x/image/math/f32"
)

// Mesh holds the distortion grids of both eyes and all three channels.
//
// Each grid has (TilesWide+1) x (TilesHigh+1) samples stored row by row.
// A sample is the tangent-space direction, already scaled by the lens
// distortion, that the display pixel at that grid point sees. Meshes are
// immutable after Build.
type Mesh struct {
	TilesWide int
	TilesHigh int

	coords [NumEyes][NumChannels][]f32.Vec2
}

// Build computes the distortion mesh for lens on a tilesWide x tilesHigh grid
// per eye. Rows are computed concurrently.
func Build(lens *Lens, tilesWide, tilesHigh int) (*Mesh, error) {
	if err := lens.Validate(); err != nil {
		return nil, err
	}
	if tilesWide < 1 || tilesHigh < 1 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrInvalidTiles, tilesWide, tilesHigh)
	}

	m := &Mesh{TilesWide: tilesWide, TilesHigh: tilesHigh}
	count := (tilesWide + 1) * (tilesHigh + 1)
	for eye := range NumEyes {
		for ch := range NumChannels {
			m.coords[eye][ch] = make([]f32.Vec2, count)
		}
	}

	b := meshBuilder{
		lens:      lens,
		shift:     lens.HorizontalShift(),
		tilesWide: tilesWide,
		tilesHigh: tilesHigh,
		ndcToPixels: [2]float32{
			float32(lens.WidthPixels) * 0.25,
			float32(lens.HeightPixels) * 0.5,
		},
		pixelsToMeters: [2]float32{
			lens.WidthMeters / float32(lens.WidthPixels),
			lens.HeightMeters / float32(lens.HeightPixels),
		},
	}

	pool := parallel.NewWorkerPool(0)
	defer pool.Close()

	rows := tilesHigh + 1
	pool.ForEach(NumEyes*rows, func(i int) {
		b.row(m, Eye(i/rows), i%rows)
	})
	return m, nil
}

type meshBuilder struct {
	lens           *Lens
	shift          float32
	tilesWide      int
	tilesHigh      int
	ndcToPixels    [2]float32
	pixelsToMeters [2]float32
}

func (b *meshBuilder) row(m *Mesh, eye Eye, y int) {
	shift := b.shift
	if eye == EyeRight {
		shift = -shift
	}
	ca := b.lens.ChromaticAberration
	yf := float32(y) / float32(b.tilesHigh)

	for x := 0; x <= b.tilesWide; x++ {
		xf := float32(x) / float32(b.tilesWide)
		theta := b.tanAngles([2]float32{shift + xf, yf})

		rsq := theta[0]*theta[0] + theta[1]*theta[1]
		scale := core.CatmullRom(rsq, b.lens.Knots)
		chroma := [NumChannels]float32{
			scale * (1 + ca[0] + rsq*ca[1]),
			scale,
			scale * (1 + ca[2] + rsq*ca[3]),
		}

		i := y*(b.tilesWide+1) + x
		for ch := range NumChannels {
			m.coords[eye][ch][i] = f32.Vec2{chroma[ch] * theta[0], chroma[ch] * theta[1]}
		}
	}
}

// tanAngles maps a unit eye position to tangent angles at the lens.
func (b *meshBuilder) tanAngles(in [2]float32) [2]float32 {
	var theta [2]float32
	for i := range 2 {
		ndc := 2*in[i] - 1
		pixels := ndc * b.ndcToPixels[i]
		meters := pixels * b.pixelsToMeters[i]
		theta[i] = meters / b.lens.MetersPerTanAngleAtCenter
	}
	return theta
}

// At returns the sample at grid point (x, y) for eye and channel.
func (m *Mesh) At(eye Eye, ch Channel, x, y int) f32.Vec2 {
	return m.coords[eye][ch][y*(m.TilesWide+1)+x]
}

// Coords returns the samples of one grid in row-major order.
// The returned slice must not be modified.
func (m *Mesh) Coords(eye Eye, ch Channel) []f32.Vec2 {
	return m.coords[eye][ch]
}

// VertexCount returns the number of samples per grid.
func (m *Mesh) VertexCount() int {
	return (m.TilesWide + 1) * (m.TilesHigh + 1)
}
