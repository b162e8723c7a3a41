package kernel

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/xsongx/scanner/solver"
)

// Size in bytes of a single output element (4 float32 channels).
const sizeofNorm4 = 16

// The executor runs the per-frame pipeline: color conversion, texture
// upload, solving and extraction of the results into an output row.
type executor struct {
	solver solver.Solver
	state  *solver.State
}

func newExecutor(s solver.Solver, state *solver.State) *executor {
	return &executor{
		solver: s,
		state:  state,
	}
}

// Process a single frame set. Each entry of frames is the packed BGR image
// of one camera and must be exactly width*height*3 bytes long.
func (e *executor) Run(frames [][]byte, width, height int) ([]byte, FrameStats, error) {
	stats := FrameStats{Width: width, Height: height}

	tick := time.Now()
	images := make([]*solver.GrayImage, len(frames))
	for camIdx, frame := range frames {
		images[camIdx] = solver.GrayFromBGR(frame, width, height)
	}
	stats.Preprocess = time.Since(tick)

	var row []byte
	err := e.withTextures(images, &stats, func(tex solver.Textures) error {
		tick := time.Now()
		if err := e.solver.Solve(e.state, tex); err != nil {
			return err
		}
		stats.Solve = time.Since(tick)

		tick = time.Now()
		row = e.extract(width*height, &stats)
		stats.Extract = time.Since(tick)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	return row, stats, nil
}

// Bind the images to a texture array for the duration of fn. The array is
// released on every exit path so the texture slots can be reused by the
// next frame.
func (e *executor) withTextures(images []*solver.GrayImage, stats *FrameStats, fn func(solver.Textures) error) error {
	tick := time.Now()
	tex, err := e.solver.BindTextures(images)
	if err != nil {
		return err
	}
	defer tex.Release()
	stats.Upload = time.Since(tick)

	return fn(tex)
}

// Copy the first n norm4 values into a little-endian float32 row.
func (e *executor) extract(n int, stats *FrameStats) []byte {
	row := make([]byte, n*sizeofNorm4)
	var depthSum, costSum float64
	cost := e.state.Lines.Cost
	for i, v := range e.state.Lines.Norm4[:n] {
		offset := i * sizeofNorm4
		for c := 0; c < 4; c++ {
			binary.LittleEndian.PutUint32(row[offset+c*4:], math.Float32bits(v[c]))
		}

		if depth := float64(v[3]); depth > 0 && !math.IsInf(depth, 0) && !math.IsNaN(depth) {
			depthSum += depth
			if i < len(cost) {
				costSum += float64(cost[i])
			}
			stats.ValidPixels++
		}
	}

	if stats.ValidPixels > 0 {
		stats.MeanDepth = float32(depthSum / float64(stats.ValidPixels))
		stats.MeanCost = float32(costSum / float64(stats.ValidPixels))
	}
	return row
}

// DecodeRow converts an output row back into norm4 values.
func DecodeRow(row []byte) [][4]float32 {
	out := make([][4]float32, len(row)/sizeofNorm4)
	for i := range out {
		offset := i * sizeofNorm4
		for c := 0; c < 4; c++ {
			out[i][c] = math.Float32frombits(binary.LittleEndian.Uint32(row[offset+c*4:]))
		}
	}
	return out
}
