// Package args defines the configuration accepted by the depth estimation
// kernel together with its protobuf wire codec and a JSON representation
// used by the command line tools.
package args

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Number of entries in a flattened 3x4 projection matrix.
const ProjectionEntries = 12

var (
	ErrNoCameras          = errors.New("args: no cameras defined")
	ErrInvalidDepthBounds = errors.New("args: min depth must be positive and less than max depth")
	ErrInvalidIterations  = errors.New("args: iteration count must be positive")
	ErrInvalidPatchSize   = errors.New("args: patch width and height must be positive")
)

// A camera calibration entry; P holds the row-major 3x4 projection matrix.
type Camera struct {
	P [ProjectionEntries]float32 `json:"p"`
}

// Row returns row i of the projection matrix.
func (c Camera) Row(i int) [4]float32 {
	return [4]float32{c.P[i*4], c.P[i*4+1], c.P[i*4+2], c.P[i*4+3]}
}

// Args carries the kernel arguments.
type Args struct {
	Cameras []Camera `json:"cameras"`

	// Disparity bounds are advisory; the kernel derives its own from
	// the depth bounds once the frame geometry is known.
	MinDisparity float32 `json:"min_disparity"`
	MaxDisparity float32 `json:"max_disparity"`

	MinDepth float32 `json:"min_depth"`
	MaxDepth float32 `json:"max_depth"`

	Iterations int32 `json:"iterations"`

	// Matching patch size in pixels.
	KernelWidth  int32 `json:"kernel_width"`
	KernelHeight int32 `json:"kernel_height"`
}

// Validate checks the value ranges of the arguments. It does not check the
// camera count against the kernel input layout; that is the kernel's job.
func (a *Args) Validate() error {
	if len(a.Cameras) == 0 {
		return ErrNoCameras
	}
	if a.MinDepth <= 0 || a.MinDepth >= a.MaxDepth {
		return ErrInvalidDepthBounds
	}
	if a.Iterations <= 0 {
		return ErrInvalidIterations
	}
	if a.KernelWidth <= 0 || a.KernelHeight <= 0 {
		return ErrInvalidPatchSize
	}
	return nil
}

// Scaled returns a copy of the arguments whose projection matrices describe
// the same cameras on frames resampled by sx horizontally and sy vertically.
// Pixel centers sit on integer coordinates, so a pixel x maps to
// (x+0.5)*sx-0.5.
func (a *Args) Scaled(sx, sy float32) *Args {
	out := *a
	out.Cameras = make([]Camera, len(a.Cameras))
	for camIdx, cam := range a.Cameras {
		p := cam.P
		for col := 0; col < 4; col++ {
			w := p[8+col]
			p[col] = sx*p[col] + (sx-1)/2*w
			p[4+col] = sy*p[4+col] + (sy-1)/2*w
		}
		out.Cameras[camIdx] = Camera{P: p}
	}
	return &out
}

// jsonCamera accepts both a flat list and a nested 3x4 list for P.
type jsonCamera struct {
	P json.RawMessage `json:"p"`
}

// ReadJSON decodes and validates JSON encoded arguments.
func ReadJSON(r io.Reader) (*Args, error) {
	var raw struct {
		Args
		Cameras []jsonCamera `json:"cameras"`
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("args: could not parse JSON: %w", err)
	}

	a := raw.Args
	a.Cameras = make([]Camera, len(raw.Cameras))
	for camIdx, jc := range raw.Cameras {
		entries, err := decodeMatrix(jc.P)
		if err != nil {
			return nil, fmt.Errorf("args: camera %d: %w", camIdx, err)
		}
		copy(a.Cameras[camIdx].P[:], entries)
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func decodeMatrix(data json.RawMessage) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(data, &flat); err == nil {
		if len(flat) != ProjectionEntries {
			return nil, fmt.Errorf("expected %d projection matrix entries; got %d", ProjectionEntries, len(flat))
		}
		return flat, nil
	}

	var rows [][]float32
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("projection matrix must be a list of %d numbers or a 3x4 list of lists", ProjectionEntries)
	}
	if len(rows) != 3 {
		return nil, fmt.Errorf("expected 3 projection matrix rows; got %d", len(rows))
	}
	flat = make([]float32, 0, ProjectionEntries)
	for rowIdx, row := range rows {
		if len(row) != 4 {
			return nil, fmt.Errorf("expected 4 entries in projection matrix row %d; got %d", rowIdx, len(row))
		}
		flat = append(flat, row...)
	}
	return flat, nil
}
