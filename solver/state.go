package solver

import (
	"github.com/xsongx/scanner/rig"
	"github.com/xsongx/scanner/types"
)

// Lines holds the per-pixel solver output for the planned frame.
type Lines struct {
	// Number of pixels.
	N int

	// Row strides (in elements) used for addressing.
	S int
	L int

	// Per pixel normal (xyz) and depth (w).
	Norm4 []types.Vec4

	// Per pixel matching cost.
	Cost []float32
}

// Resize the buffers to hold n pixels. The backing arrays are only
// reallocated when the size changes.
func (l *Lines) Resize(n int) {
	l.N = n
	if len(l.Norm4) == n {
		return
	}
	l.Norm4 = make([]types.Vec4, n)
	l.Cost = make([]float32, n)
}

// State is the mutable solver state owned by a kernel instance. It must not
// be shared between concurrently running instances.
type State struct {
	Cameras *rig.Rig
	Params  *AlgorithmParameters
	Lines   *Lines
}

// Create an empty state; the results buffer has zero size until the frame
// geometry is planned.
func NewState(cameras *rig.Rig, params *AlgorithmParameters) *State {
	return &State{
		Cameras: cameras,
		Params:  params,
		Lines:   &Lines{},
	}
}
