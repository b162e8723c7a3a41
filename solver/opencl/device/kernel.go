package device

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
	"github.com/xsongx/scanner/types"
)

// Kernel is a kernel loaded from a device program.
type Kernel struct {
	device       *Device
	kernelHandle cl.Kernel
	name         string
}

func (k *Kernel) Name() string {
	return k.name
}

// Release frees the kernel handle.
func (k *Kernel) Release() {
	if k.kernelHandle != nil {
		cl.ReleaseKernel(k.kernelHandle)
		k.kernelHandle = nil
	}
}

// SetArgs binds args to the kernel parameters in order. Supported argument
// types are *Buffer, int32, uint32, float32, types.Vec2 and types.Vec4.
func (k *Kernel) SetArgs(args ...interface{}) error {
	for argIndex, arg := range args {
		var (
			size uint64
			ptr  unsafe.Pointer
		)
		switch v := arg.(type) {
		case *Buffer:
			handle := v.Handle()
			size, ptr = 8, unsafe.Pointer(&handle)
		case int32:
			size, ptr = 4, unsafe.Pointer(&v)
		case uint32:
			size, ptr = 4, unsafe.Pointer(&v)
		case float32:
			size, ptr = 4, unsafe.Pointer(&v)
		case types.Vec2:
			size, ptr = 8, unsafe.Pointer(&v[0])
		case types.Vec4:
			size, ptr = 16, unsafe.Pointer(&v[0])
		default:
			return fmt.Errorf("opencl device (%s): %w %T for arg %d of kernel %s", k.device.Name, ErrUnsupportedArg, arg, argIndex, k.name)
		}

		if errCode := cl.SetKernelArg(k.kernelHandle, uint32(argIndex), size, ptr); errCode != cl.SUCCESS {
			return k.device.fail(errCode, "could not set arg %d of kernel %s", argIndex, k.name)
		}
	}

	return nil
}

// Exec1D runs the kernel over a 1D range and waits for it to complete. A zero
// localWorkSize lets the opencl runtime pick the work group size.
func (k *Kernel) Exec1D(offset, globalWorkSize, localWorkSize int) (time.Duration, error) {
	return k.exec(
		[]uint64{uint64(offset)},
		[]uint64{uint64(globalWorkSize)},
		[]uint64{uint64(localWorkSize)},
	)
}

// Exec2D runs the kernel over a 2D range and waits for it to complete. The
// runtime picks the work group size unless both local sizes are non-zero.
func (k *Kernel) Exec2D(offsetX, offsetY, globalWorkSizeX, globalWorkSizeY, localWorkSizeX, localWorkSizeY int) (time.Duration, error) {
	local := []uint64{uint64(localWorkSizeX), uint64(localWorkSizeY)}
	if localWorkSizeX == 0 || localWorkSizeY == 0 {
		local = []uint64{0, 0}
	}
	return k.exec(
		[]uint64{uint64(offsetX), uint64(offsetY)},
		[]uint64{uint64(globalWorkSizeX), uint64(globalWorkSizeY)},
		local,
	)
}

// Offsets and local sizes that are all zero are passed to opencl as nil.
func (k *Kernel) exec(offsets, global, local []uint64) (time.Duration, error) {
	tick := time.Now()
	errCode := cl.EnqueueNDRangeKernel(
		k.device.cmdQueue,
		k.kernelHandle,
		uint32(len(global)),
		nonZero(offsets),
		&global[0],
		nonZero(local),
		0,
		nil,
		nil,
	)
	if errCode != cl.SUCCESS {
		return 0, k.device.fail(errCode, "could not execute kernel %s", k.name)
	}

	if errCode = cl.Finish(k.device.cmdQueue); errCode != cl.SUCCESS {
		return 0, k.device.fail(errCode, "kernel %s did not complete", k.name)
	}

	return time.Since(tick), nil
}

func nonZero(dims []uint64) *uint64 {
	for _, d := range dims {
		if d != 0 {
			return &dims[0]
		}
	}
	return nil
}
