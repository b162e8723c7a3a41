package device

import (
	"errors"
	"fmt"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

var (
	ErrNoSuchDevice   = errors.New("opencl: no device matches the selection criteria")
	ErrBufferTooSmall = errors.New("opencl: buffer too small")
	ErrUnsupportedArg = errors.New("opencl: unsupported kernel argument type")
)

const (
	codeAllocationFailure cl.ErrorCode = -4
	codeOutOfResources    cl.ErrorCode = -5
	codeOutOfHostMemory   cl.ErrorCode = -6
)

// Error reports a failed opencl call.
type Error struct {
	Device string
	Op     string
	Code   cl.ErrorCode
}

func (e *Error) Error() string {
	return fmt.Sprintf("opencl device (%s): %s (error: %s; code %d)", e.Device, e.Op, ErrorName(e.Code), e.Code)
}

// OutOfResources reports whether err was caused by the device running out of
// memory or other resources.
func OutOfResources(err error) bool {
	var clErr *Error
	if !errors.As(err, &clErr) {
		return false
	}
	switch clErr.Code {
	case codeAllocationFailure, codeOutOfResources, codeOutOfHostMemory:
		return true
	}
	return false
}

func (d *Device) fail(code cl.ErrorCode, format string, args ...interface{}) error {
	return &Error{
		Device: d.Name,
		Op:     fmt.Sprintf(format, args...),
		Code:   code,
	}
}

var errorNames = map[cl.ErrorCode]string{
	0:   "SUCCESS",
	-1:  "DEVICE_NOT_FOUND",
	-2:  "DEVICE_NOT_AVAILABLE",
	-3:  "COMPILER_NOT_AVAILABLE",
	-4:  "MEM_OBJECT_ALLOCATION_FAILURE",
	-5:  "OUT_OF_RESOURCES",
	-6:  "OUT_OF_HOST_MEMORY",
	-11: "BUILD_PROGRAM_FAILURE",
	-30: "INVALID_VALUE",
	-33: "INVALID_DEVICE",
	-34: "INVALID_CONTEXT",
	-36: "INVALID_COMMAND_QUEUE",
	-38: "INVALID_MEM_OBJECT",
	-44: "INVALID_PROGRAM",
	-45: "INVALID_PROGRAM_EXECUTABLE",
	-46: "INVALID_KERNEL_NAME",
	-48: "INVALID_KERNEL",
	-49: "INVALID_ARG_INDEX",
	-50: "INVALID_ARG_VALUE",
	-51: "INVALID_ARG_SIZE",
	-52: "INVALID_KERNEL_ARGS",
	-54: "INVALID_WORK_GROUP_SIZE",
	-61: "INVALID_BUFFER_SIZE",
	-63: "INVALID_GLOBAL_WORK_SIZE",
}

// ErrorName returns a textual description of an opencl error code.
func ErrorName(errCode cl.ErrorCode) string {
	if name, ok := errorNames[errCode]; ok {
		return name
	}
	return fmt.Sprintf("unknown error code %d", errCode)
}
