// Package rig models a calibrated multi-camera rig: per camera intrinsics,
// pose, baseline to the reference camera and the disparity bounds derived
// from the depth range of the reconstruction.
package rig

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Index of the reference camera.
const ReferenceCamera = 0

// A calibrated camera.
type Camera struct {
	// The raw projection matrix.
	P *mat.Dense

	// Intrinsics (K[2][2] = 1), its inverse, rotation and translation
	// such that P ~ K [R | T].
	K    *mat.Dense
	KInv *mat.Dense
	R    *mat.Dense
	T    *mat.VecDense

	// Camera center in world coordinates.
	C *mat.VecDense

	// Distance to the reference camera center.
	Baseline float64

	// Depth range and the disparity range it maps to.
	DepthMin, DepthMax         float64
	MinDisparity, MaxDisparity float64

	// Row-major copies of the projection (K[R|T]) and back-projection
	// (R^T K^-1) matrices used in per-pixel loops.
	proj     [3][4]float64
	backProj [3][3]float64
}

// Number of float32 values emitted by Camera.Packed.
const PackedCameraSize = 36

// Packed returns the camera as a flat array suitable for device upload:
// the projection matrix (12 values), the back-projection matrix (9), the
// camera center (3) and the inverse intrinsics (9), padded to
// PackedCameraSize.
func (c *Camera) Packed() [PackedCameraSize]float32 {
	var out [PackedCameraSize]float32
	o := 0
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			out[o] = float32(c.proj[row][col])
			o++
		}
	}
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			out[o] = float32(c.backProj[row][col])
			o++
		}
	}
	for i := 0; i < 3; i++ {
		out[o] = float32(c.C.AtVec(i))
		o++
	}
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			out[o] = float32(c.KInv.At(row, col))
			o++
		}
	}
	return out
}

// Rig is the full set of cameras used for a reconstruction.
type Rig struct {
	Cameras []Camera

	// Focal length (in pixels) of the reference camera.
	F float64

	// Cameras that contribute to the reconstruction of the reference view.
	ViewSelectionSubset []int

	// Planned frame dimensions.
	Cols, Rows int
}

// Build a rig from a list of row-major 3x4 projection matrices. Camera 0 is
// used as the reference camera. A degenerate matrix fails the whole rig with
// an error wrapping ErrDegenerateProjection and naming the camera.
func Build(projections [][12]float32) (*Rig, error) {
	r := &Rig{
		Cameras: make([]Camera, len(projections)),
	}

	for camIdx, raw := range projections {
		data := make([]float64, 12)
		for i, v := range raw {
			data[i] = float64(v)
		}
		cam, err := newCamera(mat.NewDense(3, 4, data))
		if err != nil {
			return nil, fmt.Errorf("camera %d: %w", camIdx, err)
		}
		r.Cameras[camIdx] = cam
	}

	if len(r.Cameras) == 0 {
		return r, nil
	}

	ref := &r.Cameras[ReferenceCamera]
	r.F = ref.K.At(0, 0)
	for camIdx := range r.Cameras {
		var delta mat.VecDense
		delta.SubVec(r.Cameras[camIdx].C, ref.C)
		r.Cameras[camIdx].Baseline = mat.Norm(&delta, 2)
	}

	return r, nil
}

// MustBuild is like Build but panics on degenerate matrices.
func MustBuild(projections [][12]float32) *Rig {
	r, err := Build(projections)
	if err != nil {
		panic(err)
	}
	return r
}

func newCamera(p *mat.Dense) (Camera, error) {
	k, rot, t, err := Decompose(p)
	if err != nil {
		return Camera{}, err
	}

	var kInv mat.Dense
	if err = kInv.Inverse(k); err != nil {
		return Camera{}, fmt.Errorf("%w: %v", ErrDegenerateProjection, err)
	}

	// C = -R^T t
	c := mat.NewVecDense(3, nil)
	c.MulVec(rot.T(), t)
	c.ScaleVec(-1, c)

	cam := Camera{
		P:    p,
		K:    k,
		KInv: &kInv,
		R:    rot,
		T:    t,
		C:    c,
	}

	var kr, back mat.Dense
	kr.Mul(k, rot)
	var kt mat.VecDense
	kt.MulVec(k, t)
	back.Mul(rot.T(), &kInv)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			cam.proj[row][col] = kr.At(row, col)
			cam.backProj[row][col] = back.At(row, col)
		}
		cam.proj[row][3] = kt.AtVec(row)
	}

	return cam, nil
}

// Center returns the camera center as an array.
func (c *Camera) Center() [3]float64 {
	return [3]float64{c.C.AtVec(0), c.C.AtVec(1), c.C.AtVec(2)}
}

// Ray returns the (unnormalized) world-space direction of the ray through
// pixel (x, y). The direction has unit z-depth in camera space.
func (c *Camera) Ray(x, y float64) [3]float64 {
	var d [3]float64
	for i := 0; i < 3; i++ {
		d[i] = c.backProj[i][0]*x + c.backProj[i][1]*y + c.backProj[i][2]
	}
	return d
}

// Backproject returns the world point seen at pixel (x, y) at the given
// camera-space depth.
func (c *Camera) Backproject(x, y, depth float64) [3]float64 {
	ray := c.Ray(x, y)
	center := c.Center()
	return [3]float64{
		center[0] + depth*ray[0],
		center[1] + depth*ray[1],
		center[2] + depth*ray[2],
	}
}

// Project a world point into the image plane. The ok flag is false when
// the point lies behind the camera.
func (c *Camera) Project(pt [3]float64) (x, y float64, ok bool) {
	var h [3]float64
	for i := 0; i < 3; i++ {
		h[i] = c.proj[i][0]*pt[0] + c.proj[i][1]*pt[1] + c.proj[i][2]*pt[2] + c.proj[i][3]
	}
	if h[2] <= 0 {
		return 0, 0, false
	}
	return h[0] / h[2], h[1] / h[2], true
}

// Clone returns a deep copy of the rig parameters that solvers mutate
// (depth/disparity bounds, view subset and frame size). Matrices are shared.
func (r *Rig) Clone() *Rig {
	out := *r
	out.Cameras = append([]Camera(nil), r.Cameras...)
	out.ViewSelectionSubset = append([]int(nil), r.ViewSelectionSubset...)
	return &out
}
