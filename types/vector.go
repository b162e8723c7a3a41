// Package types holds the small float32 vector types shared by the solvers
// and the opencl kernel argument bindings.
package types

import (
	"math"

	"golang.org/x/image/math/f32"
)

// Lengths below this threshold are treated as zero.
const floatCmpEpsilon = 1e-8

type Vec2 f32.Vec2
type Vec3 f32.Vec3

// Vec4 matches the layout of an opencl float4.
type Vec4 f32.Vec4

func XYZ(x, y, z float32) Vec3 {
	return Vec3{x, y, z}
}

func XYZW(x, y, z, w float32) Vec4 {
	return Vec4{x, y, z, w}
}

// FromFloat64 narrows a double precision point or direction.
func FromFloat64(v [3]float64) Vec3 {
	return Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}

// Vec4 appends w to v.
func (v Vec3) Vec4(w float32) Vec4 {
	return Vec4{v[0], v[1], v[2], w}
}

func (v Vec3) Sub(v2 Vec3) Vec3 {
	return Vec3{v[0] - v2[0], v[1] - v2[1], v[2] - v2[2]}
}

func (v Vec3) Mul(s float32) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

func (v Vec3) Len() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// Normalize returns v scaled to unit length or the zero vector if v is
// (nearly) zero.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l < floatCmpEpsilon {
		return Vec3{}
	}
	return v.Mul(1.0 / l)
}

func (v Vec3) Dot(v2 Vec3) float32 {
	return v[0]*v2[0] + v[1]*v2[1] + v[2]*v2[2]
}

func (v Vec3) Cross(v2 Vec3) Vec3 {
	return Vec3{v[1]*v2[2] - v[2]*v2[1], v[2]*v2[0] - v[0]*v2[2], v[0]*v2[1] - v[1]*v2[0]}
}

// Angle returns the angle between v and v2 in radians, or 0 if either has
// zero length.
func (v Vec3) Angle(v2 Vec3) float32 {
	l := v.Len() * v2.Len()
	if l < floatCmpEpsilon {
		return 0
	}
	cos := math.Max(-1, math.Min(1, float64(v.Dot(v2)/l)))
	return float32(math.Acos(cos))
}

func Radians(deg float32) float32 {
	return deg * math.Pi / 180.0
}

func Degrees(rad float32) float32 {
	return rad * 180.0 / math.Pi
}
