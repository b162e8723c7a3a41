package host

import "math"

// Worker statistics from the last scheduled batch.
type Stats struct {
	// Number of frames processed.
	BatchSize uint32

	// The time for processing the batch (in nanoseconds).
	BatchTime int64
}

// A Worker processes a share of each batch.
type Worker interface {
	// Get the worker's computation speed estimate.
	SpeedEstimate() float32

	// Retrieve last batch statistics.
	Stats() *Stats
}

// The BatchScheduler interface is implemented by all batch splitting algorithms.
type BatchScheduler interface {
	// Split a batch of frames into contiguous runs of variable length and
	// assign them to the pool of workers using feedback collected from
	// previous batches.
	//
	// This function returns the number of frames assigned to each worker
	// in the input list.
	Schedule(workers []Worker, numFrames uint32) []uint32
}

// The naive scheduler splits batches using the worker speed estimates.
type naiveScheduler struct{}

// Create a scheduler that only takes speed estimates into account.
func NaiveScheduler() BatchScheduler {
	return naiveScheduler{}
}

func (naiveScheduler) Schedule(workers []Worker, numFrames uint32) []uint32 {
	weights := make([]float64, len(workers))
	for idx, w := range workers {
		weights[idx] = float64(w.SpeedEstimate())
	}
	return split(weights, numFrames)
}

// The perfect scheduler assumes that the processing cost of two subsequent
// batches is approximately the same.
type perfectScheduler struct {
	numWorkers int
}

// Create a new perfect scheduler instance.
func PerfectScheduler() BatchScheduler {
	return &perfectScheduler{}
}

// Split the batch using feedback from the previous batch. When previous
// batch information is available the scheduler uses the following formula
// for estimating the workload for worker w and batch i+1:
// w_i, b_i+1 = (size,w_i / time,w_i) / Σ(size_i / time_i)
//
// The speed estimates are used for the first batch, whenever the number of
// workers changes or when a worker has no statistics.
func (sch *perfectScheduler) Schedule(workers []Worker, numFrames uint32) []uint32 {
	weights := make([]float64, len(workers))
	useStats := sch.numWorkers == len(workers)
	sch.numWorkers = len(workers)

	for idx, w := range workers {
		stats := w.Stats()
		if stats.BatchSize == 0 || stats.BatchTime <= 0 {
			useStats = false
			break
		}
		weights[idx] = float64(stats.BatchSize) / float64(stats.BatchTime)
	}

	if !useStats {
		for idx, w := range workers {
			weights[idx] = float64(w.SpeedEstimate())
		}
	}

	return split(weights, numFrames)
}

// Distribute numFrames proportionally to weights. When there are at least as
// many frames as workers every worker gets at least one frame. Leftover
// frames go to the first worker.
func split(weights []float64, numFrames uint32) []uint32 {
	assignment := make([]uint32, len(weights))
	if len(weights) == 0 {
		return assignment
	}

	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		for idx := range weights {
			weights[idx] = 1
		}
		total = float64(len(weights))
	}

	minFrames := 0.0
	if int(numFrames) >= len(weights) {
		minFrames = 1.0
	}

	scaler := float64(numFrames) / total
	var scheduled uint32
	for idx, w := range weights {
		assignment[idx] = uint32(math.Max(minFrames, math.Floor(w*scaler)))
		scheduled += assignment[idx]
	}

	// Take back any excess from the largest assignments
	for scheduled > numFrames {
		largest := 0
		for idx := range assignment {
			if assignment[idx] > assignment[largest] {
				largest = idx
			}
		}
		assignment[largest]--
		scheduled--
	}

	// In case frames don't add up to the batch size append the missing ones to the first worker
	assignment[0] += numFrames - scheduled

	return assignment
}
