package solver

// Angle bounds (in degrees) used for view selection.
const (
	DefaultMinAngle float32 = 1.0
	DefaultMaxAngle float32 = 90.0
)

// AlgorithmParameters controls the dense matcher.
type AlgorithmParameters struct {
	// Number of camera images handed to the solver.
	NumImgProcessed int

	// View selection angle bounds in degrees.
	MinAngle float32
	MaxAngle float32

	// Disparity search range. Derived from the depth bounds when the
	// frame geometry is planned.
	MinDisparity float32
	MaxDisparity float32

	DepthMin float32
	DepthMax float32

	// Number of refinement iterations.
	Iterations int

	// Matching patch size.
	BoxHSize int
	BoxVSize int

	// Planned frame dimensions.
	Cols int
	Rows int
}
