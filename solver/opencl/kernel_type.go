package opencl

import "fmt"

type kernelType uint8

// The list of kernels that implement the solver.
const (
	initStates kernelType = iota
	propagate
	extractNorm4
	//
	numKernels
)

// Implements Stringer; map kernel type to the kernel name as defined in the CL source files.
func (kt kernelType) String() string {
	switch kt {
	case initStates:
		return "initStates"
	case propagate:
		return "propagate"
	case extractNorm4:
		return "extractNorm4"
	default:
		panic(fmt.Sprintf("Unsupported kernel type: %d", kt))
	}
}
