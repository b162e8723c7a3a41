package opencl

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/xsongx/scanner/rig"
	"github.com/xsongx/scanner/solver"
	"github.com/xsongx/scanner/solver/opencl/device"
)

func createCpuTestSolver(t *testing.T) *Solver {
	devList, err := device.SelectDevices(device.CpuDevice, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(devList) == 0 {
		t.Skip("no CPU opencl device available; check that openCL drivers are installed")
	}

	s, err := New(solver.DeviceHandle{Type: solver.CPU})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// A fronto-parallel textured plane at depth 50 seen by a horizontal stereo
// pair with a disparity of 4 pixels.
func planeScene(cols, rows int) (*solver.State, []*solver.GrayImage) {
	const (
		f         = 50.0
		baseline  = 4.0
		depth     = 50.0
		disparity = 4
	)

	cx, cy := float32(cols/2), float32(rows/2)
	cameras := rig.MustBuild([][12]float32{
		{f, 0, cx, 0, 0, f, cy, 0, 0, 0, 1, 0},
		{f, 0, cx, -f * baseline, 0, f, cy, 0, 0, 0, 1, 0},
	})
	cameras.ViewSelectionSubset = []int{1}
	cameras.SetDepthBounds(depth/2, depth*2)

	params := &solver.AlgorithmParameters{
		NumImgProcessed: 2,
		DepthMin:        depth / 2,
		DepthMax:        depth * 2,
		Iterations:      6,
		BoxHSize:        5,
		BoxVSize:        5,
		Cols:            cols,
		Rows:            rows,
	}
	state := solver.NewState(cameras, params)
	state.Lines.Resize(cols * rows)
	state.Lines.S, state.Lines.L = cols, cols

	rng := rand.New(rand.NewSource(11))
	ref := solver.NewGrayImage(cols, rows)
	aux := solver.NewGrayImage(cols, rows)
	for y := 0; y < rows; y++ {
		pattern := make([]float32, cols+disparity)
		for x := range pattern {
			pattern[x] = float32(rng.Intn(256))
		}
		for x := 0; x < cols; x++ {
			ref.Pix[y*cols+x] = pattern[x]
			aux.Pix[y*cols+x] = pattern[x+disparity]
		}
	}
	return state, []*solver.GrayImage{ref, aux}
}

func TestSolvePlane(t *testing.T) {
	s := createCpuTestSolver(t)
	defer s.Close()

	cols, rows := 32, 16
	state, images := planeScene(cols, rows)

	tex, err := s.BindTextures(images)
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Release()

	if err = s.Solve(state, tex); err != nil {
		t.Fatal(err)
	}

	var good, total int
	for y := 2; y < rows-2; y++ {
		for x := 7; x < cols-2; x++ {
			total++
			if d := state.Lines.Norm4[y*cols+x][3]; math.Abs(float64(d)-50)/50 < 0.1 {
				good++
			}
		}
	}
	if ratio := float64(good) / float64(total); ratio < 0.8 {
		t.Fatalf("expected at least 80%% of interior pixels to recover the plane depth; got %.2f", ratio)
	}
}

func TestTextureLifecycle(t *testing.T) {
	s := createCpuTestSolver(t)
	defer s.Close()

	state, images := planeScene(16, 8)

	tex, err := s.BindTextures(images)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = s.BindTextures(images); !errors.Is(err, ErrTexturesBusy) {
		t.Fatalf("expected ErrTexturesBusy; got %v", err)
	}

	tex.Release()
	if err = s.Solve(state, tex); !errors.Is(err, solver.ErrTexturesReleased) {
		t.Fatalf("expected ErrTexturesReleased; got %v", err)
	}

	if _, err = s.BindTextures([]*solver.GrayImage{images[0], solver.NewGrayImage(3, 3)}); !errors.Is(err, ErrTextureSize) {
		t.Fatalf("expected ErrTextureSize; got %v", err)
	}
}

func TestClosedSolver(t *testing.T) {
	s := createCpuTestSolver(t)
	s.Close()

	if err := s.Bind(); !errors.Is(err, ErrDeviceClosed) {
		t.Fatalf("expected ErrDeviceClosed; got %v", err)
	}
}
