// Package kernel implements the Gipuma depth estimation stage. A kernel
// instance is bound to one compute device; it validates its configuration,
// plans the solver state whenever the frame geometry changes and turns
// batches of synchronized camera frames into per-pixel normal/depth maps
// of the reference view.
package kernel

import (
	"errors"
	"fmt"
	"time"

	"github.com/xsongx/scanner/args"
	"github.com/xsongx/scanner/log"
	"github.com/xsongx/scanner/rig"
	"github.com/xsongx/scanner/solver"
)

// Kernel is a single instance of the depth estimation stage.
type Kernel struct {
	logger log.Logger
	cfg    Config
	args   *args.Args

	result Result

	solver   solver.Solver
	state    *solver.State
	planner  *planner
	executor *executor

	stats BatchStats
}

// New creates a kernel for the supplied configuration. Configuration errors
// do not cause New to fail; they are reported by Validate and leave the
// kernel inert. An error is only returned if the solver backend cannot be
// acquired or bound to the requested device.
func New(cfg Config) (*Kernel, error) {
	k := &Kernel{
		cfg:    cfg,
		logger: log.ForDevice("gipuma", cfg.Device.String()),
		result: Result{Success: true},
	}

	kArgs, err := args.Unmarshal(cfg.Args)
	if err != nil {
		k.invalidate(fmt.Sprintf("could not parse args: %v", err))
		return k, nil
	}
	k.args = kArgs

	numCameras := len(kArgs.Cameras)
	if expCols := numCameras * 2; len(cfg.InputColumns) != expCols {
		k.invalidate(fmt.Sprintf(
			"expected %d input columns (an image and a frame info column for each of the %d cameras); got %d",
			expCols, numCameras, len(cfg.InputColumns),
		))
		return k, nil
	}
	if err = kArgs.Validate(); err != nil {
		k.invalidate(fmt.Sprintf("invalid args: %v", err))
		return k, nil
	}

	projections := make([][12]float32, numCameras)
	for camIdx, cam := range kArgs.Cameras {
		projections[camIdx] = cam.P
	}

	params := &solver.AlgorithmParameters{
		NumImgProcessed: numCameras,
		MinAngle:        solver.DefaultMinAngle,
		MaxAngle:        solver.DefaultMaxAngle,
		MinDisparity:    kArgs.MinDisparity,
		MaxDisparity:    kArgs.MaxDisparity,
		DepthMin:        kArgs.MinDepth,
		DepthMax:        kArgs.MaxDepth,
		Iterations:      int(kArgs.Iterations),
		BoxHSize:        int(kArgs.KernelWidth),
		BoxVSize:        int(kArgs.KernelHeight),
	}
	cameras, err := rig.Build(projections)
	if err != nil {
		k.invalidate(fmt.Sprintf("invalid calibration: %v", err))
		return k, nil
	}
	k.state = solver.NewState(cameras, params)
	k.planner = newPlanner(k.state)

	backend := cfg.Backend
	if backend == "" {
		backend = solver.DefaultBackend(cfg.Device.Type)
	}
	k.solver, err = solver.New(backend, cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("gipuma: could not acquire %q solver for device %s: %w", backend, cfg.Device, err)
	}
	if err = k.solver.Bind(); err != nil {
		k.solver.Close()
		return nil, fmt.Errorf("gipuma: could not bind device %s: %w", cfg.Device, err)
	}
	k.executor = newExecutor(k.solver, k.state)

	k.logger.Infof("initialized %q solver on %s for %d cameras", backend, k.solver.DeviceName(), numCameras)
	return k, nil
}

func (k *Kernel) invalidate(msg string) {
	k.result = Result{Success: false, Msg: msg}
	k.logger.Error(msg)
}

func (k *Kernel) usable() bool {
	return k.result.Success && k.solver != nil
}

// Validate reports whether the kernel can process frames.
func (k *Kernel) Validate() Result {
	return k.result
}

// State returns the solver state owned by the kernel. It is nil for kernels
// with an invalid configuration.
func (k *Kernel) State() *solver.State {
	return k.state
}

// Args returns the decoded kernel arguments.
func (k *Kernel) Args() *args.Args {
	return k.args
}

// Stats returns the statistics of the last executed batch.
func (k *Kernel) Stats() BatchStats {
	return k.stats
}

// NewFrameInfo plans the solver state for the given frame geometry. Calls
// with an unchanged geometry are no-ops. Failing to select any camera for
// the reconstruction invalidates the kernel.
func (k *Kernel) NewFrameInfo(fi FrameInfo) error {
	if !k.usable() {
		return ErrInvalidKernel
	}
	if err := k.solver.Bind(); err != nil {
		return err
	}

	replanned, err := k.planner.Plan(int(fi.Width), int(fi.Height))
	if err != nil {
		if errors.Is(err, rig.ErrNoViewsSelected) {
			k.invalidate(fmt.Sprintf("no camera observes the reference view within (%.1f, %.1f) degrees for %s frames", k.state.Params.MinAngle, k.state.Params.MaxAngle, fi))
		}
		return err
	}

	if replanned {
		params := k.state.Params
		k.logger.Infof(
			"planned %s frames: views %v, disparity range [%.3f, %.3f]",
			fi, k.planner.Views(), params.MinDisparity, params.MaxDisparity,
		)
	}
	return nil
}

// Execute processes a batch of frame sets. Input columns alternate between
// packed BGR camera frames and their frame info; one normal/depth row per
// frame set is appended to the single output column, in input order.
//
// The input and output column layout and the size of each camera frame are
// preconditions; violating them panics.
func (k *Kernel) Execute(in, out BatchedColumns) error {
	if !k.usable() {
		return ErrInvalidKernel
	}
	if len(in) != len(k.cfg.InputColumns) {
		panic(fmt.Sprintf("gipuma: expected %d input columns; got %d", len(k.cfg.InputColumns), len(in)))
	}
	if len(out) != 1 {
		panic(fmt.Sprintf("gipuma: expected 1 output column; got %d", len(out)))
	}
	if err := k.solver.Bind(); err != nil {
		return err
	}

	numRows := in.NumRows()
	k.stats = BatchStats{}
	if numRows == 0 {
		return nil
	}

	fi, err := UnmarshalFrameInfo(in[1].Rows[0])
	if err != nil {
		return err
	}
	if err = k.NewFrameInfo(fi); err != nil {
		return err
	}

	start := time.Now()
	numCameras := len(k.state.Cameras.Cameras)
	frames := make([][]byte, numCameras)
	for rowIdx := 0; rowIdx < numRows; rowIdx++ {
		for camIdx := 0; camIdx < numCameras; camIdx++ {
			frames[camIdx] = in[camIdx*2].Rows[rowIdx]
		}

		row, stats, err := k.executor.Run(frames, int(fi.Width), int(fi.Height))
		if err != nil {
			return fmt.Errorf("gipuma: frame %d: %w", rowIdx, err)
		}
		stats.Frame = rowIdx
		out[0].Append(row)
		k.stats.Frames = append(k.stats.Frames, stats)

		k.logger.Debugf("frame %d: solved in %d ms (mean depth %.3f)", rowIdx, stats.Total().Nanoseconds()/1e6, stats.MeanDepth)
	}
	k.stats.Elapsed = time.Since(start)

	return nil
}

// Close releases the solver and its device resources.
func (k *Kernel) Close() {
	if k.solver != nil {
		k.solver.Close()
		k.solver = nil
	}
}
