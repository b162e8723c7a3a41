package types

import (
	"math"
	"testing"
)

func TestVec3Angle(t *testing.T) {
	type spec struct {
		v1, v2 Vec3
		expDeg float32
	}
	specs := []spec{
		{XYZ(1, 0, 0), XYZ(1, 0, 0), 0},
		{XYZ(1, 0, 0), XYZ(0, 1, 0), 90},
		{XYZ(1, 0, 0), XYZ(-1, 0, 0), 180},
		{XYZ(1, 0, 0), XYZ(1, 1, 0), 45},
		{XYZ(0, 0, 0), XYZ(1, 1, 0), 0},
	}

	for index, s := range specs {
		got := Degrees(s.v1.Angle(s.v2))
		if math.Abs(float64(got-s.expDeg)) > 1e-3 {
			t.Fatalf("[spec %d] expected angle to be %f; got %f", index, s.expDeg, got)
		}
	}
}

func TestVec3Normalize(t *testing.T) {
	v := XYZ(3, 0, 4).Normalize()
	if math.Abs(float64(v.Len()-1)) > 1e-6 {
		t.Fatalf("expected normalized vector length to be 1; got %f", v.Len())
	}

	zero := Vec3{}.Normalize()
	if zero != (Vec3{}) {
		t.Fatalf("expected zero vector to stay zero; got %v", zero)
	}
}

func TestVec3Cross(t *testing.T) {
	got := XYZ(1, 0, 0).Cross(XYZ(0, 1, 0))
	if got != XYZ(0, 0, 1) {
		t.Fatalf("expected x cross y to be z; got %v", got)
	}
}

func TestFromFloat64(t *testing.T) {
	got := FromFloat64([3]float64{1.5, -2, 0.25}).Vec4(7)
	if exp := XYZW(1.5, -2, 0.25, 7); got != exp {
		t.Fatalf("expected %v; got %v", exp, got)
	}
}
