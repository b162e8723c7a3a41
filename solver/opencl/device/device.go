// Package device wraps opencl platforms and devices: discovery, context and
// program setup, device buffers and kernels.
package device

import (
	"fmt"
	"regexp"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

type DeviceType uint8

// Device type bits; masks may be combined when selecting devices.
const (
	CpuDevice DeviceType = 1 << iota
	GpuDevice
	OtherDevice

	AllDevices DeviceType = 0xFF
)

var indentRegex = regexp.MustCompile("(?m)^")

// Size of the buffer used to fetch program build logs.
const buildLogSize = 64 * 1024

func (dt DeviceType) String() string {
	switch dt {
	case CpuDevice:
		return "CPU"
	case GpuDevice:
		return "GPU"
	case OtherDevice:
		return "Other"
	}
	return fmt.Sprintf("DeviceType(%d)", uint8(dt))
}

// Device is an opencl device. The opencl context, command queue and program
// are only allocated by Init.
type Device struct {
	Name string
	Id   cl.DeviceId
	Type DeviceType

	compUnits  uint32
	clockSpeed uint32
	globalMem  uint64

	// Speed estimate in GFlops.
	Speed uint32

	ctx      *cl.Context
	cmdQueue cl.CommandQueue
	program  cl.Program
}

func (d Device) String() string {
	return fmt.Sprintf(
		"Name: %s\nType: %s\nSpecs: %d computation units, %d Mhz clock, %d MB global memory, %d GFlops approximate speed",
		d.Name,
		d.Type,
		d.compUnits,
		d.clockSpeed,
		d.globalMem>>20,
		d.Speed,
	)
}

// GlobalMem returns the size of the device global memory in bytes.
func (d *Device) GlobalMem() uint64 {
	return d.globalMem
}

// Initialized reports whether Init has completed successfully.
func (d *Device) Initialized() bool {
	return d.program != nil
}

// Init creates the device context and command queue and builds the supplied
// program. Extra compiler flags (e.g. -D defines) may be passed via
// buildOptions. Calling Init on an initialized device is a no-op. On failure
// all partially allocated resources are released.
func (d *Device) Init(programSource, buildOptions string) (err error) {
	if d.Initialized() {
		return nil
	}

	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	var errCode cl.ErrorCode
	d.ctx = cl.CreateContext(nil, 1, &d.Id, nil, nil, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return d.fail(errCode, "could not create opencl context")
	}

	d.cmdQueue = cl.CreateCommandQueue(*d.ctx, d.Id, 0, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return d.fail(errCode, "could not create command queue")
	}

	return d.buildProgram(programSource, buildOptions)
}

func (d *Device) buildProgram(programSource, buildOptions string) error {
	var errCode cl.ErrorCode

	progSrc := cl.Str(programSource + "\x00")
	d.program = cl.CreateProgramWithSource(*d.ctx, 1, &progSrc, nil, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return d.fail(errCode, "could not create program")
	}

	errCode = cl.BuildProgram(d.program, 1, &d.Id, cl.Str(buildOptions+"\x00"), nil, nil)
	if errCode != cl.SUCCESS {
		return d.fail(errCode, "could not build program:\n%s", d.buildLog())
	}
	return nil
}

func (d *Device) buildLog() string {
	var dataLen uint64
	data := make([]byte, buildLogSize)
	cl.GetProgramBuildInfo(d.program, d.Id, cl.PROGRAM_BUILD_LOG, uint64(len(data)), unsafe.Pointer(&data[0]), &dataLen)
	return infoString(data, dataLen)
}

// Close releases the program, command queue and context.
func (d *Device) Close() {
	if d.program != nil {
		cl.ReleaseProgram(d.program)
		d.program = nil
	}

	if d.cmdQueue != nil {
		cl.ReleaseCommandQueue(d.cmdQueue)
		d.cmdQueue = nil
	}

	if d.ctx != nil {
		cl.ReleaseContext(d.ctx)
		d.ctx = nil
	}
}

// Finish blocks until all queued commands have completed.
func (d *Device) Finish() error {
	if errCode := cl.Finish(d.cmdQueue); errCode != cl.SUCCESS {
		return d.fail(errCode, "command queue did not complete")
	}
	return nil
}

// Kernel loads a kernel from the device program.
func (d *Device) Kernel(name string) (*Kernel, error) {
	var errCode cl.ErrorCode
	handle := cl.CreateKernel(d.program, cl.Str(name+"\x00"), (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return nil, d.fail(errCode, "could not load kernel %s", name)
	}

	return &Kernel{
		device:       d,
		kernelHandle: handle,
		name:         name,
	}, nil
}

// Buffer creates an unallocated device buffer.
func (d *Device) Buffer(name string) *Buffer {
	return &Buffer{
		device: d,
		name:   name,
	}
}

// Query the device specs and estimate its speed as compute units times the
// clock frequency.
func (d *Device) detectSpeed() error {
	errCode := cl.GetDeviceInfo(d.Id, cl.DEVICE_MAX_COMPUTE_UNITS, 4, unsafe.Pointer(&d.compUnits), nil)
	if errCode != cl.SUCCESS {
		return d.fail(errCode, "could not query MAX_COMPUTE_UNITS")
	}
	errCode = cl.GetDeviceInfo(d.Id, cl.DEVICE_MAX_CLOCK_FREQUENCY, 4, unsafe.Pointer(&d.clockSpeed), nil)
	if errCode != cl.SUCCESS {
		return d.fail(errCode, "could not query MAX_CLOCK_FREQUENCY")
	}
	errCode = cl.GetDeviceInfo(d.Id, cl.DEVICE_GLOBAL_MEM_SIZE, 8, unsafe.Pointer(&d.globalMem), nil)
	if errCode != cl.SUCCESS {
		return d.fail(errCode, "could not query GLOBAL_MEM_SIZE")
	}

	d.Speed = d.compUnits * d.clockSpeed / 1000
	return nil
}
