package software

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xsongx/scanner/rig"
	"github.com/xsongx/scanner/solver"
)

const (
	testCols     = 32
	testRows     = 16
	testFocal    = 50.0
	testBaseline = 4.0
	testDepth    = 50.0
)

// Reference camera at the origin, second camera translated along +X.
func stereoRig() *rig.Rig {
	cx, cy := float32(testCols/2), float32(testRows/2)
	f := float32(testFocal)
	return rig.MustBuild([][12]float32{
		{f, 0, cx, 0, 0, f, cy, 0, 0, 0, 1, 0},
		{f, 0, cx, -f * testBaseline, 0, f, cy, 0, 0, 0, 1, 0},
	})
}

// Render a random texture on a fronto-parallel plane at testDepth as seen
// by both cameras of stereoRig.
func planeImages(seed int64) []*solver.GrayImage {
	disparity := int(testFocal * testBaseline / testDepth)
	rng := rand.New(rand.NewSource(seed))
	pattern := make([][]float32, testRows)
	for y := range pattern {
		pattern[y] = make([]float32, testCols+disparity)
		for x := range pattern[y] {
			pattern[y][x] = float32(rng.Intn(256))
		}
	}

	ref := solver.NewGrayImage(testCols, testRows)
	aux := solver.NewGrayImage(testCols, testRows)
	for y := 0; y < testRows; y++ {
		for x := 0; x < testCols; x++ {
			ref.Pix[y*testCols+x] = pattern[y][x]
			aux.Pix[y*testCols+x] = pattern[y][x+disparity]
		}
	}
	return []*solver.GrayImage{ref, aux}
}

func plannedState() *solver.State {
	cameras := stereoRig()
	cameras.ViewSelectionSubset = []int{1}
	cameras.SetDepthBounds(testDepth/2, testDepth*2)

	params := &solver.AlgorithmParameters{
		NumImgProcessed: 2,
		MinAngle:        solver.DefaultMinAngle,
		MaxAngle:        solver.DefaultMaxAngle,
		DepthMin:        testDepth / 2,
		DepthMax:        testDepth * 2,
		Iterations:      6,
		BoxHSize:        5,
		BoxVSize:        5,
		Cols:            testCols,
		Rows:            testRows,
	}
	state := solver.NewState(cameras, params)
	state.Lines.Resize(testCols * testRows)
	state.Lines.S = testCols
	state.Lines.L = testCols
	return state
}

func TestSolvePlane(t *testing.T) {
	s := New(solver.DeviceHandle{Type: solver.CPU}, 42)
	defer s.Close()

	state := plannedState()
	tex, err := s.BindTextures(planeImages(7))
	require.NoError(t, err)
	defer tex.Release()

	require.NoError(t, s.Solve(state, tex))

	// Pixels whose patch is not fully visible in the second view are
	// excluded.
	disparity := int(testFocal * testBaseline / testDepth)
	minX := disparity + 3

	var good, total int
	for y := 2; y < testRows-2; y++ {
		for x := minX; x < testCols-2; x++ {
			total++
			v := state.Lines.Norm4[y*testCols+x]
			if math.Abs(float64(v[3])-testDepth)/testDepth < 0.1 {
				good++
			}
		}
	}

	ratio := float64(good) / float64(total)
	assert.Greater(t, ratio, 0.8, "expected most interior pixels to recover the plane depth")
}

func TestSolveNormalsFaceCamera(t *testing.T) {
	s := New(solver.DeviceHandle{Type: solver.CPU}, 1)
	state := plannedState()
	tex, err := s.BindTextures(planeImages(3))
	require.NoError(t, err)
	require.NoError(t, s.Solve(state, tex))
	tex.Release()

	for i, v := range state.Lines.Norm4 {
		n := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2]))
		require.InDelta(t, 1.0, n, 1e-3, "normal %d is not unit length", i)
		require.LessOrEqual(t, v[2], float32(0), "normal %d faces away from the camera", i)
	}
}

func TestBindTexturesRequiresRelease(t *testing.T) {
	s := New(solver.DeviceHandle{}, 1)

	tex, err := s.BindTextures(planeImages(1))
	require.NoError(t, err)

	_, err = s.BindTextures(planeImages(1))
	assert.ErrorIs(t, err, ErrTexturesBusy)

	tex.Release()
	tex.Release()
	tex, err = s.BindTextures(planeImages(1))
	require.NoError(t, err)
	assert.Equal(t, 2, tex.Len())
}

func TestSolveErrors(t *testing.T) {
	s := New(solver.DeviceHandle{}, 1)

	tex, err := s.BindTextures(planeImages(1))
	require.NoError(t, err)
	tex.Release()
	assert.ErrorIs(t, s.Solve(plannedState(), tex), solver.ErrTexturesReleased)

	tex, err = s.BindTextures(planeImages(1))
	require.NoError(t, err)

	unplanned := plannedState()
	unplanned.Lines.Resize(0)
	assert.ErrorIs(t, s.Solve(unplanned, tex), solver.ErrNotPlanned)
	tex.Release()

	tex, err = s.BindTextures(planeImages(1)[:1])
	require.NoError(t, err)
	assert.ErrorIs(t, s.Solve(plannedState(), tex), ErrTextureCount)
}

func TestRegistered(t *testing.T) {
	s, err := solver.New(Name, solver.DeviceHandle{Type: solver.CPU})
	require.NoError(t, err)
	assert.Equal(t, Name, s.Name())
}
