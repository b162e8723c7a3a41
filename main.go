package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/xsongx/scanner/cmd"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	configFlag := cli.StringFlag{
		Name:  "config, c",
		Usage: "rig configuration (JSON) as a local path or http/https URL",
	}

	app := cli.NewApp()
	app.Name = "scanner"
	app.Usage = "estimate per-pixel depth and normals from calibrated multi-camera frames"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug, info, notice, warning, error)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "list-devices",
			Usage:  "list available opencl devices and solver backends",
			Action: cmd.ListDevices,
		},
		{
			Name:  "plan",
			Usage: "show the view selection and disparity ranges for a frame geometry",
			Flags: []cli.Flag{
				configFlag,
				cli.IntFlag{
					Name:  "width",
					Value: 640,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 480,
					Usage: "frame height",
				},
			},
			Action: cmd.Plan,
		},
		{
			Name:  "depth",
			Usage: "estimate depth maps for one or more frame sets",
			Description: `
Each frame set argument is a comma separated list with one image per camera,
in rig order (reference camera first). Images may be local paths, paths
relative to the rig configuration or http/https URLs.

For every frame set a raw normal/depth map (4 little-endian float32 values per
pixel: nx, ny, nz, depth) is written to the output folder, optionally together
with a depth preview image.`,
			ArgsUsage: "cam0.png,cam1.png,... [cam0.png,cam1.png,...]",
			Flags: []cli.Flag{
				configFlag,
				cli.StringFlag{
					Name:  "backend",
					Usage: "solver backend (defaults to opencl for GPU devices and software for CPU devices)",
				},
				cli.StringSliceFlag{
					Name:  "devices, d",
					Value: &cli.StringSlice{},
					Usage: "device to attach a kernel instance to, e.g. GPU:0 or CPU:0 (default CPU:0)",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "depth",
					Usage: "output folder",
				},
				cli.StringFlag{
					Name:  "preview",
					Usage: "also write depth previews in this format (png or webp)",
				},
				cli.Float64Flag{
					Name:  "scale",
					Value: 1.0,
					Usage: "rescale input frames by this factor",
				},
				cli.IntFlag{
					Name:  "batch-size",
					Value: 8,
					Usage: "frame sets per batch",
				},
				cli.StringFlag{
					Name:  "db",
					Usage: "record run statistics in this sqlite database",
				},
			},
			Action: cmd.Depth,
		},
		{
			Name:      "runs",
			Usage:     "list recorded runs or the frames of a run",
			ArgsUsage: "[run-id]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "db",
					Usage: "sqlite run log",
				},
			},
			Action: cmd.ListRuns,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
