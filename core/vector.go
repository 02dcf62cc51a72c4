// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package core

import (
	"github.com/chewxy/math32"
	"golang.org/x/image/math/f32"
)

// SmallestNonDenormal is the smallest normal positive float32.
const SmallestNonDenormal = 1.1754943508222875e-38

// Vec3Normalize returns v scaled to unit length.
// Vectors whose squared length is below SmallestNonDenormal are returned
// unchanged.
func Vec3Normalize(v f32.Vec3) f32.Vec3 {
	lengthSq := v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
	if lengthSq < SmallestNonDenormal {
		return v
	}
	s := 1 / math32.Sqrt(lengthSq)
	return f32.Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Vec3Dot returns the dot product of a and b.
func Vec3Dot(a, b f32.Vec3) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}
