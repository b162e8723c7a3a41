package opencl

import (
	"reflect"

	"github.com/achilleasa/gopencl/v1.2/cl"
	"github.com/xsongx/scanner/solver/opencl/device"
)

// Size of buffer elements in bytes.
const (
	sizeofFloat = 4
	sizeofInt   = 4
	sizeofState = 8  // float2: inverse depth, cost
	sizeofNorm4 = 16 // float4: normal, depth
)

type bufferSet struct {
	// Grayscale images for all cameras, stored back to back.
	Textures *device.Buffer

	// Packed camera parameters and the view selection subset.
	Cameras *device.Buffer
	Subset  *device.Buffer

	// Per pixel hypotheses.
	States *device.Buffer

	// Solver output.
	Norm4 *device.Buffer
	Cost  *device.Buffer
}

// Allocate new buffer set.
func newBufferSet(dev *device.Device) *bufferSet {
	return &bufferSet{
		Textures: dev.Buffer("textures"),
		Cameras:  dev.Buffer("cameras"),
		Subset:   dev.Buffer("subset"),
		States:   dev.Buffer("states"),
		Norm4:    dev.Buffer("norm4"),
		Cost:     dev.Buffer("cost"),
	}
}

// Release all buffers.
func (bs *bufferSet) Release() {
	reflVal := reflect.ValueOf(*bs)
	for fieldIndex := 0; fieldIndex < reflVal.NumField(); fieldIndex++ {
		if buf, ok := reflVal.Field(fieldIndex).Interface().(*device.Buffer); ok {
			buf.Release()
		}
	}
}

// Resize frame-related buffers to the given frame dimensions. Buffers whose
// size does not change are left untouched.
func (bs *bufferSet) Resize(frameW, frameH int) error {
	pixels := frameW * frameH

	if err := bs.States.Allocate(pixels*sizeofState, cl.MEM_READ_WRITE); err != nil {
		return err
	}
	if err := bs.Norm4.Allocate(pixels*sizeofNorm4, cl.MEM_WRITE_ONLY); err != nil {
		return err
	}
	return bs.Cost.Allocate(pixels*sizeofFloat, cl.MEM_WRITE_ONLY)
}
