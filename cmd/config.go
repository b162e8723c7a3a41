package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xsongx/scanner/args"
	"github.com/xsongx/scanner/asset"
	"github.com/xsongx/scanner/solver"
)

var errMissingConfig = errors.New("missing --config argument")

// Load the rig configuration. The returned resource is already closed but
// can still be used to resolve paths relative to the configuration file.
func loadArgs(path string) (*args.Args, *asset.Resource, error) {
	if path == "" {
		return nil, nil, errMissingConfig
	}

	res, err := asset.NewResource(path, nil)
	if err != nil {
		return nil, nil, err
	}
	defer res.Close()

	kArgs, err := args.ReadJSON(res)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", res.Path(), err)
	}
	return kArgs, res, nil
}

// Parse device handles of the form "GPU:1" or "cpu".
func parseDevices(specs []string) ([]solver.DeviceHandle, error) {
	if len(specs) == 0 {
		return []solver.DeviceHandle{{Type: solver.CPU}}, nil
	}

	handles := make([]solver.DeviceHandle, 0, len(specs))
	for _, spec := range specs {
		for _, entry := range strings.Split(spec, ",") {
			handle, err := parseDevice(strings.TrimSpace(entry))
			if err != nil {
				return nil, err
			}
			handles = append(handles, handle)
		}
	}
	return handles, nil
}

func parseDevice(spec string) (solver.DeviceHandle, error) {
	var handle solver.DeviceHandle

	typeName, index, hasIndex := strings.Cut(spec, ":")
	switch strings.ToUpper(typeName) {
	case "CPU":
		handle.Type = solver.CPU
	case "GPU":
		handle.Type = solver.GPU
	default:
		return handle, fmt.Errorf("invalid device %q: type must be CPU or GPU", spec)
	}

	if hasIndex {
		id, err := strconv.Atoi(index)
		if err != nil || id < 0 {
			return handle, fmt.Errorf("invalid device %q: index must be a non-negative integer", spec)
		}
		handle.ID = id
	}
	return handle, nil
}
