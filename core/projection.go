// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package core

import "github.com/chewxy/math32"

// GraphicsAPI selects the clip-space convention a projection targets.
type GraphicsAPI int

const (
	// GraphicsAPIVulkan uses a downward clip-space Y axis and a [0, 1]
	// depth range.
	GraphicsAPIVulkan GraphicsAPI = iota

	// GraphicsAPIOpenGL uses an upward clip-space Y axis and a [-1, 1]
	// depth range.
	GraphicsAPIOpenGL
)

// String returns the API name.
func (a GraphicsAPI) String() string {
	switch a {
	case GraphicsAPIVulkan:
		return "Vulkan"
	case GraphicsAPIOpenGL:
		return "OpenGL"
	default:
		return "Unknown"
	}
}

// Projection returns an off-center perspective projection for the near
// plane rectangle [minX, maxX] x [minY, maxY].
//
// If farZ <= nearZ the far plane is placed at infinity, which keeps depth
// precision finite everywhere beyond the near plane.
func Projection(api GraphicsAPI, minX, maxX, minY, maxY, nearZ, farZ float32) Mat4 {
	width := maxX - minX
	height := maxY - minY
	if api == GraphicsAPIVulkan {
		height = minY - maxY
	}

	// OpenGL maps depth to [-1, 1]; the extra offset moves the near plane
	// to -1 instead of 0.
	var offsetZ float32
	if api == GraphicsAPIOpenGL {
		offsetZ = nearZ
	}

	var m Mat4
	m[0][0] = 2 * nearZ / width
	m[2][0] = (maxX + minX) / width
	m[1][1] = 2 * nearZ / height
	m[2][1] = (maxY + minY) / height
	m[2][3] = -1

	if farZ <= nearZ {
		m[2][2] = -1
		m[3][2] = -(nearZ + offsetZ)
	} else {
		m[2][2] = -(farZ + offsetZ) / (farZ - nearZ)
		m[3][2] = -(farZ * (nearZ + offsetZ)) / (farZ - nearZ)
	}
	return m
}

// ProjectionFov returns a perspective projection from a horizontal and
// vertical field of view in degrees, with the frustum center shifted by
// (offsetX, offsetY) on the near plane.
func ProjectionFov(api GraphicsAPI, fovDegreesX, fovDegreesY, offsetX, offsetY, nearZ, farZ float32) Mat4 {
	halfWidth := nearZ * math32.Tan(fovDegreesX*(0.5*math32.Pi/180))
	halfHeight := nearZ * math32.Tan(fovDegreesY*(0.5*math32.Pi/180))

	minX := offsetX - halfWidth
	maxX := offsetX + halfWidth
	minY := offsetY - halfHeight
	maxY := offsetY + halfHeight

	return Projection(api, minX, maxX, minY, maxY, nearZ, farZ)
}
