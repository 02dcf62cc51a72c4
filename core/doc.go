// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package core provides the float32 math kernel shared by the time warp
// pipeline.
//
// This package contains the matrix, vector and spline routines used by the
// distortion mesh builder, the time warp transform and the scene producer.
// It is independent of any GPU backend and has no state.
//
// # Conventions
//
// Matrices are 4x4, column-major, indexed m[column][row]. This is the layout
// the warp shaders consume, so a Mat4 can be copied into a uniform buffer
// without transposition.
//
//   - Mul(a, b) computes a·b (the right operand is applied first)
//   - a homogeneous matrix has its last row equal to (0, 0, 0, 1)
//   - projections map view space (looking down -Z) to clip space
//
// # Key Components
//
//   - Mat4 with Mul, Invert, InvertHomogeneous and TransformVec4
//   - Projection and ProjectionFov with an infinite-far variant
//   - Vec3Normalize that leaves denormal-length vectors untouched
//   - CatmullRom for evaluating evenly spaced spline knots on [0, 1]
//
// # References
//
//   - Upchurch, Desbrun: Tightening the Precision of Perspective Rendering
package core
