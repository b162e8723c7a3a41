// Package solver defines the contract between the depth estimation kernel
// and the dense multi-view matcher that runs on a compute device, together
// with the state the two share.
package solver

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownBackend   = errors.New("solver: unknown backend")
	ErrTexturesReleased = errors.New("solver: texture array already released")
	ErrNotPlanned       = errors.New("solver: frame geometry has not been planned")
)

type DeviceType uint8

// Supported device types.
const (
	CPU DeviceType = iota
	GPU
)

func (dt DeviceType) String() string {
	switch dt {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	}
	return fmt.Sprintf("DeviceType(%d)", uint8(dt))
}

// DeviceHandle identifies the device a solver instance is bound to.
type DeviceHandle struct {
	Type DeviceType
	ID   int
}

func (h DeviceHandle) String() string {
	return fmt.Sprintf("%s:%d", h.Type, h.ID)
}

// Textures is a device-resident array of grayscale images, one per camera.
// The array occupies a fixed set of device slots that are reused for every
// frame, so it must be released before the next array is bound.
type Textures interface {
	// Number of images in the array.
	Len() int

	// Free the device resources. Calling Release more than once is a no-op.
	Release()
}

// Solver is a dense multi-view stereo matcher.
type Solver interface {
	// Backend name.
	Name() string

	// Device name as reported by the driver.
	DeviceName() string

	// Make the solver's device current for the calling context. Device
	// binding is not sticky across calls, so callers re-bind at every
	// entry point.
	Bind() error

	// Upload the grayscale images into a device texture array.
	BindTextures(images []*GrayImage) (Textures, error)

	// Run the matcher over the bound textures and write the per-pixel
	// results into state.Lines. The call blocks until the results are
	// available on the host.
	Solve(state *State, textures Textures) error

	// Release all device resources.
	Close()
}

// Factory creates a solver bound to the given device.
type Factory func(DeviceHandle) (Solver, error)

var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
)

// Register a solver backend. Backends usually register themselves from an
// init() function. Registering a name twice replaces the previous factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the sorted list of registered backend names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a solver using the named backend.
func New(name string, dev DeviceHandle) (Solver, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownBackend, name, Available())
	}
	return factory(dev)
}

// DefaultBackend returns the preferred backend name for a device type.
func DefaultBackend(dt DeviceType) string {
	if dt == GPU {
		return "opencl"
	}
	return "software"
}
