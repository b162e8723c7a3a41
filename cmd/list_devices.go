package cmd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/xsongx/scanner/kernel"
	"github.com/xsongx/scanner/solver"
	"github.com/xsongx/scanner/solver/opencl/device"
)

// List available opencl devices together with the registered solver
// backends and kernel ops.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	platforms, err := device.GetPlatformInfo()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("\nSystem provides %d opencl platform(s)\n", len(platforms)))

	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Platform", "Handle", "Device", "Speed (GFlops)", "Memory (MB)"})

	// Handles are numbered per device type across platforms, matching
	// device.SelectDevice.
	typeCount := map[device.DeviceType]int{}
	for _, platformInfo := range platforms {
		for _, dev := range platformInfo.Devices {
			handle := solver.DeviceHandle{Type: solver.CPU, ID: typeCount[dev.Type]}
			if dev.Type == device.GpuDevice {
				handle.Type = solver.GPU
			}
			typeCount[dev.Type]++

			table.Append([]string{
				platformInfo.Name,
				handle.String(),
				dev.Name,
				fmt.Sprintf("%d", dev.Speed),
				fmt.Sprintf("%d", dev.GlobalMem()>>20),
			})
		}
	}
	table.Render()

	buf.WriteString(fmt.Sprintf("\nSolver backends: %s\n", strings.Join(solver.Available(), ", ")))
	buf.WriteString(fmt.Sprintf("Kernel ops:      %s\n", strings.Join(kernel.Ops(), ", ")))

	logger.Notice(buf.String())
	return nil
}
