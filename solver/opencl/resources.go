package opencl

import (
	"fmt"
	"time"

	"github.com/xsongx/scanner/solver/opencl/device"
)

// A container that stores handles to open CL kernels and any allocated device buffers.
type deviceResources struct {
	// The allocated device buffers.
	buffers *bufferSet

	// The set of kernels.
	kernels []*device.Kernel
}

// Per-frame kernel arguments shared by the matching kernels.
type matchArgs struct {
	numViews     uint32
	width        uint32
	height       uint32
	halfW, halfH int32
	minInv       float32
	maxInv       float32
}

// Using the supplied device as a target, load all defined kernels.
func newDeviceResources(dev *device.Device) (*deviceResources, error) {
	var err error

	if dev == nil {
		return nil, fmt.Errorf("device_resources: invalid device handle")
	}

	dr := &deviceResources{
		buffers: newBufferSet(dev),
		kernels: make([]*device.Kernel, numKernels),
	}

	var kType kernelType
	for kType = 0; kType < numKernels; kType++ {
		dr.kernels[kType], err = dev.Kernel(kType.String())
		if err != nil {
			dr.Close()
			return nil, err
		}
	}

	return dr, nil
}

// Release all allocated resources.
func (dr *deviceResources) Close() {
	if dr.buffers != nil {
		dr.buffers.Release()
		dr.buffers = nil
	}

	if dr.kernels != nil {
		for _, kernel := range dr.kernels {
			if kernel != nil {
				kernel.Release()
			}
		}
		dr.kernels = nil
	}
}

// Seed each pixel with the best of a set of random hypotheses.
func (dr *deviceResources) InitStates(args *matchArgs, seed uint32) (time.Duration, error) {
	kernel := dr.kernels[initStates]

	err := kernel.SetArgs(
		dr.buffers.Textures,
		dr.buffers.Cameras,
		dr.buffers.Subset,
		args.numViews,
		dr.buffers.States,
		args.width,
		args.height,
		args.halfW,
		args.halfH,
		args.minInv,
		args.maxInv,
		seed,
	)
	if err != nil {
		return 0, err
	}

	return kernel.Exec2D(0, 0, int(args.width), int(args.height), 0, 0)
}

// Run a red-black propagation and refinement pass for the pixels of the
// given parity.
func (dr *deviceResources) Propagate(args *matchArgs, seed, parity uint32) (time.Duration, error) {
	kernel := dr.kernels[propagate]

	err := kernel.SetArgs(
		dr.buffers.Textures,
		dr.buffers.Cameras,
		dr.buffers.Subset,
		args.numViews,
		dr.buffers.States,
		args.width,
		args.height,
		args.halfW,
		args.halfH,
		args.minInv,
		args.maxInv,
		seed,
		parity,
	)
	if err != nil {
		return 0, err
	}

	return kernel.Exec2D(0, 0, int(args.width), int(args.height), 0, 0)
}

// Convert the winning hypotheses into normal/depth tuples and costs.
func (dr *deviceResources) ExtractNorm4(args *matchArgs) (time.Duration, error) {
	kernel := dr.kernels[extractNorm4]

	err := kernel.SetArgs(
		dr.buffers.States,
		dr.buffers.Cameras,
		dr.buffers.Norm4,
		dr.buffers.Cost,
		args.width,
		args.height,
	)
	if err != nil {
		return 0, err
	}

	return kernel.Exec2D(0, 0, int(args.width), int(args.height), 0, 0)
}
