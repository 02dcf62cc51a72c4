// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package core

import (
	"github.com/chewxy/math32"
	"golang.org/x/image/math/f32"
)

// Mat4 is a 4x4 column-major matrix indexed m[column][row].
type Mat4 [4][4]float32

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Translation returns a matrix that translates by (x, y, z).
func Translation(x, y, z float32) Mat4 {
	m := Identity()
	m[3][0] = x
	m[3][1] = y
	m[3][2] = z
	return m
}

// RotationX returns a rotation of radians about the X axis.
func RotationX(radians float32) Mat4 {
	s, c := math32.Sincos(radians)
	return Mat4{
		{1, 0, 0, 0},
		{0, c, s, 0},
		{0, -s, c, 0},
		{0, 0, 0, 1},
	}
}

// RotationY returns a rotation of radians about the Y axis.
func RotationY(radians float32) Mat4 {
	s, c := math32.Sincos(radians)
	return Mat4{
		{c, 0, -s, 0},
		{0, 1, 0, 0},
		{s, 0, c, 0},
		{0, 0, 0, 1},
	}
}

// RotationZ returns a rotation of radians about the Z axis.
func RotationZ(radians float32) Mat4 {
	s, c := math32.Sincos(radians)
	return Mat4{
		{c, s, 0, 0},
		{-s, c, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Mul returns a·b.
//
// out[c][r] = Σk a[k][r]·b[c][k]
func Mul(a, b *Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c][r] = a[0][r]*b[c][0] +
				a[1][r]*b[c][1] +
				a[2][r]*b[c][2] +
				a[3][r]*b[c][3]
		}
	}
	return out
}

// Transpose returns the transpose of m.
func (m *Mat4) Transpose() Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c][r] = m[r][c]
		}
	}
	return out
}

// IsHomogeneous reports whether the last row of m is (0, 0, 0, 1) within eps.
func (m *Mat4) IsHomogeneous(eps float32) bool {
	return math32.Abs(m[0][3]) <= eps &&
		math32.Abs(m[1][3]) <= eps &&
		math32.Abs(m[2][3]) <= eps &&
		math32.Abs(m[3][3]-1) <= eps
}

// InvertHomogeneous returns the inverse of a rigid transform.
//
// The 3x3 rotation is transposed and the translation is rotated back and
// negated. The result is meaningless if m carries scale or shear.
func (m *Mat4) InvertHomogeneous() Mat4 {
	var out Mat4
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			out[c][r] = m[r][c]
		}
	}
	for r := 0; r < 3; r++ {
		out[3][r] = -(m[r][0]*m[3][0] + m[r][1]*m[3][1] + m[r][2]*m[3][2])
	}
	out[3][3] = 1
	return out
}

// Invert returns the full inverse of m computed from cofactors.
//
// A singular matrix produces Inf or NaN entries; no error is reported.
func (m *Mat4) Invert() Mat4 {
	a := m.flat()
	var inv [16]float32

	inv[0] = a[5]*a[10]*a[15] - a[5]*a[11]*a[14] - a[9]*a[6]*a[15] + a[9]*a[7]*a[14] + a[13]*a[6]*a[11] - a[13]*a[7]*a[10]
	inv[4] = -a[4]*a[10]*a[15] + a[4]*a[11]*a[14] + a[8]*a[6]*a[15] - a[8]*a[7]*a[14] - a[12]*a[6]*a[11] + a[12]*a[7]*a[10]
	inv[8] = a[4]*a[9]*a[15] - a[4]*a[11]*a[13] - a[8]*a[5]*a[15] + a[8]*a[7]*a[13] + a[12]*a[5]*a[11] - a[12]*a[7]*a[9]
	inv[12] = -a[4]*a[9]*a[14] + a[4]*a[10]*a[13] + a[8]*a[5]*a[14] - a[8]*a[6]*a[13] - a[12]*a[5]*a[10] + a[12]*a[6]*a[9]
	inv[1] = -a[1]*a[10]*a[15] + a[1]*a[11]*a[14] + a[9]*a[2]*a[15] - a[9]*a[3]*a[14] - a[13]*a[2]*a[11] + a[13]*a[3]*a[10]
	inv[5] = a[0]*a[10]*a[15] - a[0]*a[11]*a[14] - a[8]*a[2]*a[15] + a[8]*a[3]*a[14] + a[12]*a[2]*a[11] - a[12]*a[3]*a[10]
	inv[9] = -a[0]*a[9]*a[15] + a[0]*a[11]*a[13] + a[8]*a[1]*a[15] - a[8]*a[3]*a[13] - a[12]*a[1]*a[11] + a[12]*a[3]*a[9]
	inv[13] = a[0]*a[9]*a[14] - a[0]*a[10]*a[13] - a[8]*a[1]*a[14] + a[8]*a[2]*a[13] + a[12]*a[1]*a[10] - a[12]*a[2]*a[9]
	inv[2] = a[1]*a[6]*a[15] - a[1]*a[7]*a[14] - a[5]*a[2]*a[15] + a[5]*a[3]*a[14] + a[13]*a[2]*a[7] - a[13]*a[3]*a[6]
	inv[6] = -a[0]*a[6]*a[15] + a[0]*a[7]*a[14] + a[4]*a[2]*a[15] - a[4]*a[3]*a[14] - a[12]*a[2]*a[7] + a[12]*a[3]*a[6]
	inv[10] = a[0]*a[5]*a[15] - a[0]*a[7]*a[13] - a[4]*a[1]*a[15] + a[4]*a[3]*a[13] + a[12]*a[1]*a[7] - a[12]*a[3]*a[5]
	inv[14] = -a[0]*a[5]*a[14] + a[0]*a[6]*a[13] + a[4]*a[1]*a[14] - a[4]*a[2]*a[13] - a[12]*a[1]*a[6] + a[12]*a[2]*a[5]
	inv[3] = -a[1]*a[6]*a[11] + a[1]*a[7]*a[10] + a[5]*a[2]*a[11] - a[5]*a[3]*a[10] - a[9]*a[2]*a[7] + a[9]*a[3]*a[6]
	inv[7] = a[0]*a[6]*a[11] - a[0]*a[7]*a[10] - a[4]*a[2]*a[11] + a[4]*a[3]*a[10] + a[8]*a[2]*a[7] - a[8]*a[3]*a[6]
	inv[11] = -a[0]*a[5]*a[11] + a[0]*a[7]*a[9] + a[4]*a[1]*a[11] - a[4]*a[3]*a[9] - a[8]*a[1]*a[7] + a[8]*a[3]*a[5]
	inv[15] = a[0]*a[5]*a[10] - a[0]*a[6]*a[9] - a[4]*a[1]*a[10] + a[4]*a[2]*a[9] + a[8]*a[1]*a[6] - a[8]*a[2]*a[5]

	det := a[0]*inv[0] + a[1]*inv[4] + a[2]*inv[8] + a[3]*inv[12]
	rcp := 1 / det
	for i := range inv {
		inv[i] *= rcp
	}
	return fromFlat(&inv)
}

// ZeroTranslation returns m with its translation column cleared.
func (m Mat4) ZeroTranslation() Mat4 {
	m[3][0] = 0
	m[3][1] = 0
	m[3][2] = 0
	return m
}

// TransformVec4 returns m·v.
func (m *Mat4) TransformVec4(v f32.Vec4) f32.Vec4 {
	var out f32.Vec4
	for r := 0; r < 4; r++ {
		out[r] = m[0][r]*v[0] + m[1][r]*v[1] + m[2][r]*v[2] + m[3][r]*v[3]
	}
	return out
}

// ApproxEqual reports whether every element of a and b differs by at most eps.
func ApproxEqual(a, b *Mat4, eps float32) bool {
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			if math32.Abs(a[c][r]-b[c][r]) > eps {
				return false
			}
		}
	}
	return true
}

// Floats returns m as 16 column-major floats, ready for upload.
func (m *Mat4) Floats() [16]float32 {
	return m.flat()
}

func (m *Mat4) flat() [16]float32 {
	var a [16]float32
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			a[c*4+r] = m[c][r]
		}
	}
	return a
}

func fromFlat(a *[16]float32) Mat4 {
	var m Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			m[c][r] = a[c*4+r]
		}
	}
	return m
}
