package gpucore

import (
	"encoding/binary"
	"math"
)

// WarpUniformsSize is the size in bytes of the packed WarpUniforms block.
const WarpUniformsSize = 2*64 + 2*16

// WarpUniforms is the per-eye uniform block of the warp shaders.
//
// WGSL layout:
//
//	struct WarpUniforms {
//	    start: mat4x4<f32>,
//	    end: mat4x4<f32>,
//	    params: vec4<f32>, // eye, tilesWide, tilesHigh, displayFractionOffset
//	    target: vec4<f32>, // layer, viewportWidth, viewportHeight, unused
//	}
type WarpUniforms struct {
	Start [16]float32
	End   [16]float32

	// Eye is 0 for the left half of the display and 1 for the right.
	Eye float32

	TilesWide float32
	TilesHigh float32

	// FractionOffset is added to the eye-local horizontal fraction to get
	// the display-wide scan fraction (0 for the left eye, 0.5 for the right).
	FractionOffset float32

	// Layer is the array layer of the eye texture to sample.
	Layer float32

	// ViewportWidth and ViewportHeight are the size in pixels of the eye's
	// half of the display.
	ViewportWidth  float32
	ViewportHeight float32
}

// Bytes packs u little-endian in WGSL uniform layout.
func (u *WarpUniforms) Bytes() []byte {
	buf := make([]byte, WarpUniformsSize)
	off := 0
	put := func(v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	for _, v := range u.Start {
		put(v)
	}
	for _, v := range u.End {
		put(v)
	}
	put(u.Eye)
	put(u.TilesWide)
	put(u.TilesHigh)
	put(u.FractionOffset)
	put(u.Layer)
	put(u.ViewportWidth)
	put(u.ViewportHeight)
	return buf
}

// WorkgroupCount returns how many workgroups of size local cover n
// invocations.
func WorkgroupCount(n, local uint32) uint32 {
	if local == 0 {
		return 0
	}
	return (n + local - 1) / local
}
