// Package software implements a CPU PatchMatch stereo solver. It is used
// when no OpenCL device is available and as a reference implementation for
// the GPU solver.
package software

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/xsongx/scanner/log"
	"github.com/xsongx/scanner/rig"
	"github.com/xsongx/scanner/solver"
	"github.com/xsongx/scanner/types"
)

// Backend name used for registration.
const Name = "software"

// Cost assigned to hypotheses that cannot be evaluated (1 - NCC lies in
// [0, 2]).
const maxCost = 2.0

// Number of random depth candidates evaluated per pixel at initialization.
const initSamples = 8

// Number of random refinement steps per pixel and iteration. The search
// window halves after each step.
const refineSteps = 6

var (
	ErrTexturesBusy = errors.New("software solver: previous texture array has not been released")
	ErrTextureCount = errors.New("software solver: texture count does not match the camera count")
)

func init() {
	solver.Register(Name, func(dev solver.DeviceHandle) (solver.Solver, error) {
		return New(dev, time.Now().UnixNano()), nil
	})
}

// Solver is a single threaded PatchMatch solver using fronto-parallel
// patches and normalized cross correlation.
type Solver struct {
	dev    solver.DeviceHandle
	logger log.Logger
	rng    *rand.Rand

	// The texture array currently bound (if any).
	bound *textures
}

// New creates a software solver seeded with the given value.
func New(dev solver.DeviceHandle, seed int64) *Solver {
	return &Solver{
		dev:    dev,
		logger: log.ForDevice("software solver", dev.String()),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (s *Solver) Name() string {
	return Name
}

func (s *Solver) DeviceName() string {
	return fmt.Sprintf("host CPU %d", s.dev.ID)
}

// Bind is a no-op for the host CPU.
func (s *Solver) Bind() error {
	return nil
}

func (s *Solver) BindTextures(images []*solver.GrayImage) (solver.Textures, error) {
	if s.bound != nil && !s.bound.released {
		return nil, ErrTexturesBusy
	}

	s.bound = &textures{images: images}
	return s.bound, nil
}

func (s *Solver) Close() {
	if s.bound != nil {
		s.bound.Release()
		s.bound = nil
	}
}

type textures struct {
	images   []*solver.GrayImage
	released bool
}

func (t *textures) Len() int {
	return len(t.images)
}

func (t *textures) Release() {
	t.released = true
	t.images = nil
}

// Solve runs the PatchMatch iterations and writes a {nx, ny, nz, depth}
// tuple per reference pixel into state.Lines. Normals are expressed in the
// reference camera frame.
func (s *Solver) Solve(state *solver.State, tex solver.Textures) error {
	t, ok := tex.(*textures)
	if !ok || t.released {
		return solver.ErrTexturesReleased
	}

	params := state.Params
	cameras := state.Cameras
	if params.Cols*params.Rows == 0 || state.Lines.N != params.Cols*params.Rows {
		return solver.ErrNotPlanned
	}
	if len(t.images) != len(cameras.Cameras) {
		return fmt.Errorf("%w: expected %d; got %d", ErrTextureCount, len(cameras.Cameras), len(t.images))
	}

	start := time.Now()
	m := newMatcher(state, t.images, s.rng)
	m.initialize()
	for iteration := 0; iteration < params.Iterations; iteration++ {
		m.propagate(iteration%2 == 1)
	}
	m.extract()

	s.logger.Debugf("solved %dx%d frame using %d views in %d ms", params.Cols, params.Rows, len(cameras.ViewSelectionSubset), time.Since(start).Nanoseconds()/1e6)
	return nil
}

type matcher struct {
	rig    *rig.Rig
	images []*solver.GrayImage
	lines  *solver.Lines
	rng    *rand.Rand

	cols, rows   int
	halfW, halfH int

	// Search range in inverse depth, which is proportional to disparity.
	minInv, maxInv float64

	invDepth []float64
	cost     []float64
}

func newMatcher(state *solver.State, images []*solver.GrayImage, rng *rand.Rand) *matcher {
	params := state.Params
	n := params.Cols * params.Rows
	return &matcher{
		rig:      state.Cameras,
		images:   images,
		lines:    state.Lines,
		rng:      rng,
		cols:     params.Cols,
		rows:     params.Rows,
		halfW:    params.BoxHSize / 2,
		halfH:    params.BoxVSize / 2,
		minInv:   1.0 / float64(params.DepthMax),
		maxInv:   1.0 / float64(params.DepthMin),
		invDepth: make([]float64, n),
		cost:     make([]float64, n),
	}
}

func (m *matcher) randomInvDepth() float64 {
	return m.minInv + m.rng.Float64()*(m.maxInv-m.minInv)
}

// Seed every pixel with the best of several random hypotheses.
func (m *matcher) initialize() {
	for y := 0; y < m.rows; y++ {
		for x := 0; x < m.cols; x++ {
			idx := y*m.cols + x
			m.cost[idx] = math.Inf(1)
			for i := 0; i < initSamples; i++ {
				inv := m.randomInvDepth()
				if c := m.evaluate(x, y, inv); c < m.cost[idx] {
					m.invDepth[idx] = inv
					m.cost[idx] = c
				}
			}
		}
	}
}

// Run one propagation sweep. Even sweeps walk from the top-left corner and
// pull hypotheses from the left and upper neighbors; odd sweeps walk from
// the bottom-right corner and use the right and lower neighbors.
func (m *matcher) propagate(reverse bool) {
	step := 1
	if reverse {
		step = -1
	}

	for i := 0; i < m.rows; i++ {
		y := i
		if reverse {
			y = m.rows - 1 - i
		}
		for j := 0; j < m.cols; j++ {
			x := j
			if reverse {
				x = m.cols - 1 - j
			}

			idx := y*m.cols + x
			if nx := x - step; nx >= 0 && nx < m.cols {
				m.try(x, y, idx, m.invDepth[y*m.cols+nx])
			}
			if ny := y - step; ny >= 0 && ny < m.rows {
				m.try(x, y, idx, m.invDepth[ny*m.cols+x])
			}
			m.refine(x, y, idx)
		}
	}
}

func (m *matcher) refine(x, y, idx int) {
	window := (m.maxInv - m.minInv) / 2
	for i := 0; i < refineSteps; i++ {
		inv := m.invDepth[idx] + (m.rng.Float64()*2-1)*window
		if inv >= m.minInv && inv <= m.maxInv {
			m.try(x, y, idx, inv)
		}
		window /= 2
	}
}

func (m *matcher) try(x, y, idx int, inv float64) {
	if inv == m.invDepth[idx] {
		return
	}
	if c := m.evaluate(x, y, inv); c < m.cost[idx] {
		m.invDepth[idx] = inv
		m.cost[idx] = c
	}
}

// Evaluate the mean matching cost of a fronto-parallel patch centered at
// (x, y) and placed at depth 1/inv, over all selected views.
func (m *matcher) evaluate(x, y int, inv float64) float64 {
	if len(m.rig.ViewSelectionSubset) == 0 {
		return maxCost
	}

	depth := 1.0 / inv
	var total float64
	for _, camIdx := range m.rig.ViewSelectionSubset {
		total += m.viewCost(x, y, depth, camIdx)
	}
	return total / float64(len(m.rig.ViewSelectionSubset))
}

// Compute 1 - NCC between the reference patch and its projection into the
// given view. Views that see less than half of the patch get maxCost.
func (m *matcher) viewCost(x, y int, depth float64, camIdx int) float64 {
	ref := &m.rig.Cameras[rig.ReferenceCamera]
	cam := &m.rig.Cameras[camIdx]
	refImg := m.images[rig.ReferenceCamera]
	img := m.images[camIdx]

	var sumA, sumB, sumAA, sumBB, sumAB float64
	var valid, total int
	for dy := -m.halfH; dy <= m.halfH; dy++ {
		for dx := -m.halfW; dx <= m.halfW; dx++ {
			total++
			px, py := float64(x+dx), float64(y+dy)
			pu, pv, ok := cam.Project(ref.Backproject(px, py, depth))
			if !ok {
				continue
			}
			b, ok := img.Sample(pu, pv)
			if !ok {
				continue
			}
			a := float64(refImg.At(x+dx, y+dy))
			bf := float64(b)

			sumA += a
			sumB += bf
			sumAA += a * a
			sumBB += bf * bf
			sumAB += a * bf
			valid++
		}
	}

	if valid*2 < total {
		return maxCost
	}

	n := float64(valid)
	varA := sumAA - sumA*sumA/n
	varB := sumBB - sumB*sumB/n
	if varA < 1e-6 || varB < 1e-6 {
		return maxCost
	}
	ncc := (sumAB - sumA*sumB/n) / math.Sqrt(varA*varB)
	return 1 - ncc
}

// Copy the winning hypotheses into the output buffers and estimate surface
// normals from the depth map.
func (m *matcher) extract() {
	ref := &m.rig.Cameras[rig.ReferenceCamera]
	points := make([][3]float64, len(m.invDepth))
	for y := 0; y < m.rows; y++ {
		for x := 0; x < m.cols; x++ {
			idx := y*m.cols + x
			points[idx] = ref.Backproject(float64(x), float64(y), 1.0/m.invDepth[idx])
		}
	}

	for y := 0; y < m.rows; y++ {
		for x := 0; x < m.cols; x++ {
			idx := y*m.cols + x
			normal := m.normalAt(ref, points, x, y)
			m.lines.Norm4[y*m.lines.S+x] = normal.Vec4(float32(1.0 / m.invDepth[idx]))
			m.lines.Cost[y*m.lines.S+x] = float32(m.cost[idx])
		}
	}
}

func (m *matcher) normalAt(ref *rig.Camera, points [][3]float64, x, y int) types.Vec3 {
	x0, x1 := max(x-1, 0), min(x+1, m.cols-1)
	y0, y1 := max(y-1, 0), min(y+1, m.rows-1)

	du := types.FromFloat64(points[y*m.cols+x1]).Sub(types.FromFloat64(points[y*m.cols+x0]))
	dv := types.FromFloat64(points[y1*m.cols+x]).Sub(types.FromFloat64(points[y0*m.cols+x]))
	world := dv.Cross(du)

	// Express in camera coordinates and orient towards the camera.
	var n types.Vec3
	for row := 0; row < 3; row++ {
		n[row] = float32(ref.R.At(row, 0))*world[0] + float32(ref.R.At(row, 1))*world[1] + float32(ref.R.At(row, 2))*world[2]
	}
	if n.Len() == 0 {
		return types.XYZ(0, 0, -1)
	}
	n = n.Normalize()
	if n[2] > 0 {
		n = n.Mul(-1)
	}
	return n
}
