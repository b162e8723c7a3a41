// Package opencl implements the PatchMatch stereo solver on top of OpenCL.
package opencl

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/achilleasa/gopencl/v1.2/cl"
	"github.com/xsongx/scanner/log"
	"github.com/xsongx/scanner/rig"
	"github.com/xsongx/scanner/solver"
	"github.com/xsongx/scanner/solver/opencl/device"
)

// Backend name used for registration.
const Name = "opencl"

//go:embed CL/patchmatch.cl
var programSource string

var (
	ErrDeviceClosed  = errors.New("opencl solver: device has been closed")
	ErrTexturesBusy  = errors.New("opencl solver: previous texture array has not been released")
	ErrTextureSize   = errors.New("opencl solver: all textures must have the same dimensions")
	ErrTextureCount  = errors.New("opencl solver: texture count does not match the camera count")
	ErrNoTextures    = errors.New("opencl solver: no textures supplied")
	ErrFrameGeometry = errors.New("opencl solver: texture dimensions do not match the planned frame")
)

func init() {
	solver.Register(Name, func(handle solver.DeviceHandle) (solver.Solver, error) {
		return New(handle)
	})
}

// Solver runs the PatchMatch kernels on an OpenCL device.
type Solver struct {
	handle    solver.DeviceHandle
	device    *device.Device
	name      string
	logger    log.Logger
	resources *deviceResources
	rng       *rand.Rand

	// Dimensions of the bound texture array.
	texW, texH int
	bound      *textures
}

// New selects the OpenCL device referenced by the handle, builds the solver
// program and allocates the kernels.
func New(handle solver.DeviceHandle) (*Solver, error) {
	typeMask := device.CpuDevice
	if handle.Type == solver.GPU {
		typeMask = device.GpuDevice
	}

	dev, err := device.SelectDevice(typeMask, handle.ID)
	if err != nil {
		return nil, err
	}

	if err = dev.Init(programSource, ""); err != nil {
		return nil, err
	}

	resources, err := newDeviceResources(dev)
	if err != nil {
		dev.Close()
		return nil, err
	}

	s := &Solver{
		handle:    handle,
		device:    dev,
		name:      dev.Name,
		logger:    log.ForDevice("opencl solver", dev.Name),
		resources: resources,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.logger.Debugf("initialized device\n%s", dev.String())
	return s, nil
}

func (s *Solver) Name() string {
	return Name
}

func (s *Solver) DeviceName() string {
	return s.name
}

// Bind checks that the device is still usable. OpenCL commands are routed
// through the solver's own command queue so there is no per-thread context
// to make current.
func (s *Solver) Bind() error {
	if s.resources == nil {
		return ErrDeviceClosed
	}
	return nil
}

// BindTextures uploads the images into the texture buffer. The buffer is
// reused across frames as long as the dimensions stay the same.
func (s *Solver) BindTextures(images []*solver.GrayImage) (solver.Textures, error) {
	if err := s.Bind(); err != nil {
		return nil, err
	}
	if s.bound != nil && !s.bound.released {
		return nil, ErrTexturesBusy
	}
	if len(images) == 0 {
		return nil, ErrNoTextures
	}

	w, h := images[0].Width, images[0].Height
	for _, img := range images {
		if img.Width != w || img.Height != h {
			return nil, ErrTextureSize
		}
	}

	texBuf := s.resources.buffers.Textures
	stride := w * h * sizeofFloat
	if err := texBuf.Allocate(len(images)*stride, cl.MEM_READ_ONLY); err != nil {
		return nil, err
	}
	for camIdx, img := range images {
		if err := texBuf.WriteData(img.Pix, camIdx*stride); err != nil {
			return nil, err
		}
	}

	s.texW, s.texH = w, h
	s.bound = &textures{count: len(images)}
	return s.bound, nil
}

// Solve runs the matcher and copies the results into state.Lines.
func (s *Solver) Solve(state *solver.State, tex solver.Textures) error {
	if err := s.Bind(); err != nil {
		return err
	}

	t, ok := tex.(*textures)
	if !ok || t.released || t != s.bound {
		return solver.ErrTexturesReleased
	}

	params := state.Params
	cameras := state.Cameras
	if params.Cols*params.Rows == 0 || state.Lines.N != params.Cols*params.Rows {
		return solver.ErrNotPlanned
	}
	if t.count != len(cameras.Cameras) {
		return fmt.Errorf("%w: expected %d; got %d", ErrTextureCount, len(cameras.Cameras), t.count)
	}
	if s.texW != params.Cols || s.texH != params.Rows {
		return fmt.Errorf("%w: planned %dx%d; got %dx%d", ErrFrameGeometry, params.Cols, params.Rows, s.texW, s.texH)
	}

	if err := s.uploadRig(cameras); err != nil {
		return err
	}
	if err := s.resources.buffers.Resize(params.Cols, params.Rows); err != nil {
		if device.OutOfResources(err) {
			s.logger.Warningf("out of device memory for %dx%d frames (%d MB available); consider downscaling the input", params.Cols, params.Rows, s.device.GlobalMem()>>20)
		}
		return err
	}

	args := &matchArgs{
		numViews: uint32(len(cameras.ViewSelectionSubset)),
		width:    uint32(params.Cols),
		height:   uint32(params.Rows),
		halfW:    int32(params.BoxHSize / 2),
		halfH:    int32(params.BoxVSize / 2),
		minInv:   1.0 / params.DepthMax,
		maxInv:   1.0 / params.DepthMin,
	}

	var total time.Duration
	elapsed, err := s.resources.InitStates(args, s.rng.Uint32())
	if err != nil {
		return err
	}
	total += elapsed

	for iteration := 0; iteration < params.Iterations; iteration++ {
		for parity := uint32(0); parity < 2; parity++ {
			elapsed, err = s.resources.Propagate(args, s.rng.Uint32(), parity)
			if err != nil {
				return err
			}
			total += elapsed
		}
	}

	elapsed, err = s.resources.ExtractNorm4(args)
	if err != nil {
		return err
	}
	total += elapsed

	// Lines use the frame width as row stride so the device buffers can
	// be copied verbatim.
	if err = s.resources.buffers.Norm4.ReadData(0, 0, 0, state.Lines.Norm4); err != nil {
		return err
	}
	if err = s.resources.buffers.Cost.ReadData(0, 0, 0, state.Lines.Cost); err != nil {
		return err
	}

	s.logger.Debugf("solved %dx%d frame using %d views; kernel time %d ms", params.Cols, params.Rows, args.numViews, total.Nanoseconds()/1e6)
	return nil
}

func (s *Solver) uploadRig(cameras *rig.Rig) error {
	packed := make([]float32, 0, len(cameras.Cameras)*rig.PackedCameraSize)
	for camIdx := range cameras.Cameras {
		p := cameras.Cameras[camIdx].Packed()
		packed = append(packed, p[:]...)
	}

	// Kernels skip the subset when numViews is 0 but the buffer must
	// still be non-empty.
	subset := []int32{0}
	if len(cameras.ViewSelectionSubset) > 0 {
		subset = make([]int32, len(cameras.ViewSelectionSubset))
		for i, camIdx := range cameras.ViewSelectionSubset {
			subset[i] = int32(camIdx)
		}
	}

	buffers := s.resources.buffers
	if err := buffers.Cameras.AllocateToFitData(packed, cl.MEM_READ_ONLY); err != nil {
		return err
	}
	if err := buffers.Cameras.WriteData(packed, 0); err != nil {
		return err
	}
	if err := buffers.Subset.Allocate(len(subset)*sizeofInt, cl.MEM_READ_ONLY); err != nil {
		return err
	}
	return buffers.Subset.WriteData(subset, 0)
}

// Close releases all device resources.
func (s *Solver) Close() {
	if s.bound != nil {
		s.bound.Release()
		s.bound = nil
	}
	if s.resources != nil {
		s.resources.Close()
		s.resources = nil
	}
	if s.device != nil {
		s.device.Close()
		s.device = nil
	}
}

// The texture array lives in the solver's texture buffer; releasing it marks
// the slots as reusable.
type textures struct {
	count    int
	released bool
}

func (t *textures) Len() int {
	return t.count
}

// Release marks the texture slot as free for the next BindTextures call. The
// device buffer itself is kept and overwritten in place; it is only freed when
// the solver is closed or a frame with different dimensions is bound.
func (t *textures) Release() {
	t.released = true
}
