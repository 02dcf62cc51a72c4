// Package distortion models the optics of a head-mounted display and builds
// the per-eye, per-channel meshes that pre-distort eye images for its lenses.
package distortion

import (
	"errors"
	"fmt"
)

// NumEyes is the number of eyes of a stereoscopic display.
const NumEyes = 2

// NumChannels is the number of color channels corrected separately for
// chromatic aberration.
const NumChannels = 3

// Eye identifies one half of the display.
type Eye int

const (
	// EyeLeft is the left half of the display.
	EyeLeft Eye = iota
	// EyeRight is the right half of the display.
	EyeRight
)

// String returns the eye name.
func (e Eye) String() string {
	switch e {
	case EyeLeft:
		return "Left"
	case EyeRight:
		return "Right"
	default:
		return "Unknown"
	}
}

// Channel identifies a color channel.
type Channel int

const (
	// ChannelRed is corrected with the red chromatic coefficients.
	ChannelRed Channel = iota
	// ChannelGreen uses the lens spline unchanged.
	ChannelGreen
	// ChannelBlue is corrected with the blue chromatic coefficients.
	ChannelBlue
)

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case ChannelRed:
		return "Red"
	case ChannelGreen:
		return "Green"
	case ChannelBlue:
		return "Blue"
	default:
		return "Unknown"
	}
}

// Errors returned when validating a lens or a tile grid.
var (
	ErrInvalidLens  = errors.New("distortion: invalid lens")
	ErrInvalidTiles = errors.New("distortion: tile grid must be at least 1x1")
)

// Lens describes the display panel and the radial distortion of its lenses.
// A Lens is immutable once handed to Build or a warp backend.
type Lens struct {
	// WidthPixels and HeightPixels are the visible display size covering
	// both eyes.
	WidthPixels  int
	HeightPixels int

	// WidthMeters and HeightMeters are the physical size of the visible area.
	WidthMeters  float32
	HeightMeters float32

	// LensSeparationMeters is the distance between the two lens centers.
	LensSeparationMeters float32

	// MetersPerTanAngleAtCenter converts display meters to tangent angles
	// at the lens center.
	MetersPerTanAngleAtCenter float32

	// Knots sample the radial scale over the squared tangent radius in
	// [0, 1]; they are evaluated as a Catmull-Rom spline.
	Knots []float32

	// ChromaticAberration holds (cR0, cR1, cB0, cB1). The red and blue
	// channels are rescaled by 1 + c0 + r²·c1; green is not.
	ChromaticAberration [4]float32
}

// DefaultTilePixels is the edge length in pixels of one distortion tile.
const DefaultTilePixels = 32

// DefaultLens returns the lens of a typical phone-based HMD for a display of
// the given size, trimmed to a whole number of DefaultTilePixels tiles per eye.
func DefaultLens(displayPixelsWide, displayPixelsHigh int) Lens {
	tilesWide, tilesHigh := TileGrid(displayPixelsWide, displayPixelsHigh, DefaultTilePixels)
	visibleWide := tilesWide * DefaultTilePixels * NumEyes
	visibleHigh := tilesHigh * DefaultTilePixels

	widthMeters := 0.11047 * float32(visibleWide) / float32(displayPixelsWide)
	heightMeters := 0.06214 * float32(visibleHigh) / float32(displayPixelsHigh)

	return Lens{
		WidthPixels:               visibleWide,
		HeightPixels:              visibleHigh,
		WidthMeters:               widthMeters,
		HeightMeters:              heightMeters,
		LensSeparationMeters:      widthMeters / NumEyes,
		MetersPerTanAngleAtCenter: 0.037,
		Knots: []float32{
			1.0, 1.021, 1.051, 1.086, 1.128, 1.177,
			1.232, 1.295, 1.368, 1.452, 1.560,
		},
		ChromaticAberration: [4]float32{-0.006, 0.0, 0.014, 0.0},
	}
}

// TileGrid returns how many whole tiles of tilePixels fit in one eye of a
// display of the given size.
func TileGrid(displayPixelsWide, displayPixelsHigh, tilePixels int) (tilesWide, tilesHigh int) {
	if tilePixels <= 0 {
		return 0, 0
	}
	return displayPixelsWide / tilePixels / NumEyes, displayPixelsHigh / tilePixels
}

// Validate reports whether the lens can produce a finite mesh.
func (l *Lens) Validate() error {
	switch {
	case l.WidthPixels <= 0 || l.HeightPixels <= 0:
		return fmt.Errorf("%w: display is %dx%d pixels", ErrInvalidLens, l.WidthPixels, l.HeightPixels)
	case l.WidthMeters <= 0 || l.HeightMeters <= 0:
		return fmt.Errorf("%w: display is %gx%g meters", ErrInvalidLens, l.WidthMeters, l.HeightMeters)
	case l.MetersPerTanAngleAtCenter <= 0:
		return fmt.Errorf("%w: meters per tan angle is %g", ErrInvalidLens, l.MetersPerTanAngleAtCenter)
	case len(l.Knots) == 0:
		return fmt.Errorf("%w: no spline knots", ErrInvalidLens)
	}
	return nil
}

// HorizontalShift returns the offset of each lens center from the center of
// its half of the display, in normalized eye units.
func (l *Lens) HorizontalShift() float32 {
	shiftMeters := l.LensSeparationMeters/2 - l.WidthMeters/4
	return shiftMeters / (l.WidthMeters / 2)
}
