package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/xsongx/scanner/args"
	"github.com/xsongx/scanner/kernel"
	"github.com/xsongx/scanner/rig"
	"github.com/xsongx/scanner/solver"
	"github.com/xsongx/scanner/solver/software"
)

// Plan a rig configuration for a frame geometry and display the selected
// views and the derived disparity ranges.
func Plan(ctx *cli.Context) error {
	setupLogging(ctx)

	kArgs, _, err := loadArgs(ctx.String("config"))
	if err != nil {
		return err
	}

	width, height := ctx.Int("width"), ctx.Int("height")
	if width <= 0 || height <= 0 {
		return errors.New("--width and --height must be positive")
	}

	// Planning is device independent; the software solver avoids touching
	// any opencl device.
	k, err := kernel.New(kernel.Config{
		Device:       solver.DeviceHandle{Type: solver.CPU},
		Args:         args.Marshal(kArgs),
		InputColumns: kernel.ImageColumns(len(kArgs.Cameras)),
		Backend:      software.Name,
	})
	if err != nil {
		return err
	}
	defer k.Close()

	if res := k.Validate(); !res.Success {
		return errors.New(res.Msg)
	}

	fi := kernel.FrameInfo{Width: int32(width), Height: int32(height)}
	if err = k.NewFrameInfo(fi); err != nil {
		return err
	}

	displayPlan(k.State(), fi)
	return nil
}

func displayPlan(state *solver.State, fi kernel.FrameInfo) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Camera", "Selected", "Baseline", "Depth range", "Disparity range"})

	subset := state.Cameras.ViewSelectionSubset
	for camIdx, cam := range state.Cameras.Cameras {
		selected := "reference"
		if camIdx != rig.ReferenceCamera {
			selected = fmt.Sprintf("%t", slices.Contains(subset, camIdx))
		}
		table.Append([]string{
			fmt.Sprintf("%d", camIdx),
			selected,
			fmt.Sprintf("%.4f", cam.Baseline),
			fmt.Sprintf("[%.3f, %.3f]", cam.DepthMin, cam.DepthMax),
			fmt.Sprintf("[%.3f, %.3f]", cam.MinDisparity, cam.MaxDisparity),
		})
	}

	params := state.Params
	table.SetFooter([]string{"", "", "", "RIG", fmt.Sprintf("[%.3f, %.3f]", params.MinDisparity, params.MaxDisparity)})
	table.Render()

	logger.Noticef("plan for %s frames (%d views, %d pixels)\n%s", fi, len(subset), state.Lines.N, buf.String())
}
