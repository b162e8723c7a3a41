package kernel

import "time"

// Timings for the stages of a single frame.
type FrameStats struct {
	// Index of the frame within its batch.
	Frame int

	// Frame dimensions.
	Width  int
	Height int

	// Color conversion of all camera frames.
	Preprocess time.Duration

	// Texture upload.
	Upload time.Duration

	// Solver invocation.
	Solve time.Duration

	// Copy of the results into the output row.
	Extract time.Duration

	// Mean depth and matching cost over the pixels with a finite positive
	// depth, and the number of such pixels.
	MeanDepth   float32
	MeanCost    float32
	ValidPixels int
}

// Total time spent on the frame.
func (fs FrameStats) Total() time.Duration {
	return fs.Preprocess + fs.Upload + fs.Solve + fs.Extract
}

type BatchStats struct {
	// Individual frame stats.
	Frames []FrameStats

	// Total processing time for the batch.
	Elapsed time.Duration
}
