// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package core

import "github.com/chewxy/math32"

// CatmullRom evaluates a Catmull-Rom spline through knots spaced evenly on
// [0, 1] at t.
//
// The first segment uses K[1]-K[0] as its left tangent. Past the last knot
// the curve continues linearly with the slope of the final segment, so
// CatmullRom(1, K) == K[len(K)-1].
//
// Fewer than three knots degrade to a constant (one knot) or a straight
// line (two knots). An empty knot slice evaluates to zero.
func CatmullRom(t float32, knots []float32) float32 {
	n := len(knots)
	switch n {
	case 0:
		return 0
	case 1:
		return knots[0]
	case 2:
		return knots[0] + (knots[1]-knots[0])*t
	}

	last := float32(n - 1)
	scaled := last * t
	floor := math32.Max(0, math32.Min(last, math32.Floor(scaled)))
	s := scaled - floor
	k := int(floor)

	var p0, p1, m0, m1 float32
	switch {
	case k == 0:
		p0 = knots[0]
		m0 = knots[1] - knots[0]
		p1 = knots[1]
		m1 = 0.5 * (knots[2] - knots[0])
	case k < n-2:
		p0 = knots[k]
		m0 = 0.5 * (knots[k+1] - knots[k-1])
		p1 = knots[k+1]
		m1 = 0.5 * (knots[k+2] - knots[k])
	case k == n-2:
		p0 = knots[k]
		m0 = 0.5 * (knots[k+1] - knots[k-1])
		p1 = knots[k+1]
		m1 = knots[k+1] - knots[k]
	default:
		p0 = knots[k]
		m0 = knots[k] - knots[k-1]
		p1 = p0 + m0
		m1 = m0
	}

	omt := 1 - s
	return (p0*(1+2*s)+m0*s)*omt*omt + (p1*(1+2*omt)-m1*omt)*s*s
}
