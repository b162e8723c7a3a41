package kernel

import (
	"fmt"
	"sort"
	"sync"
)

// Name under which the depth estimation stage is registered.
const OpName = "Gipuma"

// Op is the host facing interface of a pipeline stage.
type Op interface {
	Validate() Result
	NewFrameInfo(FrameInfo) error
	Execute(in, out BatchedColumns) error
	Close()
}

// Registration describes a pipeline stage.
type Registration struct {
	// Names of the columns produced by the stage.
	OutputColumns []string

	// Whether the stage requires a GPU device.
	RequiresGPU bool

	// Constructor.
	New func(Config) (Op, error)
}

var (
	opsMu sync.RWMutex
	ops   = make(map[string]Registration)
)

// RegisterOp makes a stage available by name. It panics if the name is
// already taken or the registration has no constructor.
func RegisterOp(name string, reg Registration) {
	opsMu.Lock()
	defer opsMu.Unlock()

	if reg.New == nil {
		panic(fmt.Sprintf("gipuma: op %q registered without a constructor", name))
	}
	if _, exists := ops[name]; exists {
		panic(fmt.Sprintf("gipuma: op %q registered twice", name))
	}
	ops[name] = reg
}

// LookupOp returns the registration for the named stage.
func LookupOp(name string) (Registration, error) {
	opsMu.RLock()
	defer opsMu.RUnlock()

	reg, ok := ops[name]
	if !ok {
		return Registration{}, fmt.Errorf("%w %q", ErrUnknownOp, name)
	}
	return reg, nil
}

// Ops returns the sorted names of all registered stages.
func Ops() []string {
	opsMu.RLock()
	defer opsMu.RUnlock()

	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterOp(OpName, Registration{
		OutputColumns: []string{OutputColumn},
		RequiresGPU:   true,
		New: func(cfg Config) (Op, error) {
			k, err := New(cfg)
			if err != nil {
				return nil, err
			}
			return k, nil
		},
	})
}
