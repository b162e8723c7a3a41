package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/xsongx/scanner/args"
	"github.com/xsongx/scanner/asset"
	"github.com/xsongx/scanner/asset/frame"
	"github.com/xsongx/scanner/host"
	"github.com/xsongx/scanner/kernel"
	"github.com/xsongx/scanner/solver"
	"github.com/xsongx/scanner/solver/opencl"
	"github.com/xsongx/scanner/solver/opencl/device"
	"github.com/xsongx/scanner/store"
)

// Kernels that expose per-frame statistics.
type statsReporter interface {
	Stats() kernel.BatchStats
}

// Settings for a depth run.
type depthJob struct {
	args      *args.Args
	relTo     *asset.Resource
	framesets [][]string

	scale     float64
	batchSize int

	outDir  string
	preview *frame.PreviewFormat

	db    *store.Store
	run   store.Run
	runID string
}

// Estimate depth maps for a list of frame sets. Each argument is a comma
// separated list with one image per camera, reference camera first.
func Depth(ctx *cli.Context) error {
	setupLogging(ctx)

	kArgs, cfgRes, err := loadArgs(ctx.String("config"))
	if err != nil {
		return err
	}

	if ctx.NArg() == 0 {
		return errors.New("missing frame set arguments")
	}
	job := &depthJob{
		args:      kArgs,
		relTo:     cfgRes,
		scale:     ctx.Float64("scale"),
		batchSize: ctx.Int("batch-size"),
		outDir:    ctx.String("out"),
	}
	if job.scale <= 0 {
		return errors.New("--scale must be positive")
	}
	if job.batchSize <= 0 {
		return errors.New("--batch-size must be positive")
	}
	for setIdx, arg := range ctx.Args() {
		paths := splitSet(arg)
		if len(paths) != len(kArgs.Cameras) {
			return fmt.Errorf("frame set %d: expected %d images (one per camera); got %d", setIdx, len(kArgs.Cameras), len(paths))
		}
		job.framesets = append(job.framesets, paths)
	}

	if name := ctx.String("preview"); name != "" {
		format, err := frame.ParsePreviewFormat(name)
		if err != nil {
			return err
		}
		job.preview = &format
	}
	if err = os.MkdirAll(job.outDir, 0o755); err != nil {
		return err
	}

	handles, err := parseDevices(ctx.StringSlice("devices"))
	if err != nil {
		return err
	}
	backend := ctx.String("backend")
	instances, err := attachInstances(handles, scaledArgs(kArgs, job.scale), backend)
	if err != nil {
		return err
	}

	runner, err := host.NewRunner(host.PerfectScheduler(), instances...)
	if err != nil {
		for _, inst := range instances {
			inst.Op.Close()
		}
		return err
	}
	defer runner.Close()

	if dbPath := ctx.String("db"); dbPath != "" {
		job.db, err = store.Open(dbPath)
		if err != nil {
			return err
		}
		defer job.db.Close()

		if backend == "" {
			backend = solver.DefaultBackend(handles[0].Type)
		}
		job.run = store.Run{
			Backend:   backend,
			Cameras:   len(kArgs.Cameras),
			Instances: len(instances),
		}
	}

	runCtx, stop := signal.NotifyContext(context.Background(), stopSignals...)
	defer stop()

	return job.process(runCtx, runner, instances)
}

// The calibration of frames resampled by scale. Rounding the frame size
// keeps the residual error below half a pixel at the frame border.
func scaledArgs(kArgs *args.Args, scale float64) *args.Args {
	if scale == 1 {
		return kArgs
	}
	return kArgs.Scaled(float32(scale), float32(scale))
}

func scaledSize(width, height int, scale float64) (int, int) {
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	return max(w, 1), max(h, 1)
}

// Signals that cancel a running depth job after the current batch.
var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Create and validate one kernel instance per device handle.
func attachInstances(handles []solver.DeviceHandle, kArgs *args.Args, backend string) ([]host.Instance, error) {
	reg, err := kernel.LookupOp(kernel.OpName)
	if err != nil {
		return nil, err
	}

	blob := args.Marshal(kArgs)
	instances := make([]host.Instance, 0, len(handles))
	closeAll := func() {
		for _, inst := range instances {
			inst.Op.Close()
		}
	}

	start := time.Now()
	for _, handle := range handles {
		if reg.RequiresGPU && handle.Type != solver.GPU && backend == "" {
			logger.Noticef("%s requests a GPU; using the %q backend on %s", kernel.OpName, solver.DefaultBackend(handle.Type), handle)
		}

		op, err := reg.New(kernel.Config{
			Device:       handle,
			Args:         blob,
			InputColumns: kernel.ImageColumns(len(kArgs.Cameras)),
			Backend:      backend,
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		if res := op.Validate(); !res.Success {
			op.Close()
			closeAll()
			return nil, fmt.Errorf("%s: %s", handle, res.Msg)
		}

		instances = append(instances, host.Instance{
			Name:  handle.String(),
			Op:    op,
			Speed: speedEstimate(handle, backend),
		})
	}
	logger.Infof("attached %d kernel instance(s) in %d ms", len(instances), time.Since(start).Nanoseconds()/1e6)
	return instances, nil
}

// Use the opencl speed estimate where available so the first batch is split
// proportionally to device throughput.
func speedEstimate(handle solver.DeviceHandle, backend string) float32 {
	if backend == "" {
		backend = solver.DefaultBackend(handle.Type)
	}
	if backend != opencl.Name {
		return 1
	}

	typeMask := device.CpuDevice
	if handle.Type == solver.GPU {
		typeMask = device.GpuDevice
	}
	dev, err := device.SelectDevice(typeMask, handle.ID)
	if err != nil || dev.Speed == 0 {
		return 1
	}
	return float32(dev.Speed)
}

func (job *depthJob) process(ctx context.Context, runner *host.Runner, instances []host.Instance) error {
	start := time.Now()
	numCameras := len(job.args.Cameras)

	var (
		pending   [][]*frame.Frame
		processed int
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		out, err := runner.Run(ctx, buildBatch(pending, numCameras))
		if err != nil {
			return err
		}
		stats := runner.Stats()
		displayBatchStats(stats)

		width, height := pending[0][0].Width, pending[0][0].Height
		for rowIdx, row := range out[0].Rows {
			if err = job.writeOutput(processed+rowIdx, row, width, height); err != nil {
				return err
			}
		}
		if err = job.record(ctx, processed, width, height, stats, instances); err != nil {
			return err
		}

		processed += len(pending)
		pending = pending[:0]
		return nil
	}

	for setIdx, paths := range job.framesets {
		frames, err := frame.LoadSet(paths, job.relTo, 0, 0)
		if err != nil {
			return fmt.Errorf("frame set %d: %w", setIdx, err)
		}
		if job.scale != 1 {
			w, h := scaledSize(frames[0].Width, frames[0].Height, job.scale)
			for camIdx, f := range frames {
				frames[camIdx] = f.Scale(w, h)
			}
		}

		// Every batch shares a single frame geometry.
		if len(pending) > 0 && (len(pending) == job.batchSize || !sameGeometry(pending[0][0], frames[0])) {
			if err = flush(); err != nil {
				return err
			}
		}
		pending = append(pending, frames)
	}
	if err := flush(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	if job.runID != "" {
		if err := job.db.FinishRun(context.Background(), job.runID, elapsed); err != nil {
			return err
		}
		logger.Noticef("recorded run %s", job.runID)
	}
	logger.Noticef("processed %d frame set(s) in %s", processed, elapsed)
	return nil
}

// Split a frame set argument into per-camera paths.
func splitSet(arg string) []string {
	paths := strings.Split(arg, ",")
	for idx, path := range paths {
		paths[idx] = strings.TrimSpace(path)
	}
	return paths
}

func frameName(index int) string {
	return fmt.Sprintf("depth_%05d", index)
}

func sameGeometry(a, b *frame.Frame) bool {
	return a.Width == b.Width && a.Height == b.Height
}

// Assemble the kernel input columns for a list of frame sets.
func buildBatch(sets [][]*frame.Frame, numCameras int) kernel.BatchedColumns {
	batch := kernel.NewBatchedColumns(numCameras * 2)
	for _, frames := range sets {
		for camIdx, f := range frames {
			fi := kernel.FrameInfo{Width: int32(f.Width), Height: int32(f.Height)}
			batch[camIdx*2].Append(f.BGR)
			batch[camIdx*2+1].Append(fi.Marshal())
		}
	}
	return batch
}

func (job *depthJob) writeOutput(index int, row []byte, width, height int) error {
	base := filepath.Join(job.outDir, frameName(index))
	if err := os.WriteFile(base+".bin", row, 0o644); err != nil {
		return err
	}
	if job.preview == nil {
		return nil
	}

	img := frame.DepthImage(kernel.DecodeRow(row), width, height, job.args.MinDepth, job.args.MaxDepth)
	f, err := os.Create(base + "." + job.preview.String())
	if err != nil {
		return err
	}
	defer f.Close()
	return frame.EncodePreview(f, img, *job.preview)
}

// Log the per-frame statistics of the last batch.
func (job *depthJob) record(ctx context.Context, batchStart, width, height int, stats host.BatchStats, instances []host.Instance) error {
	if job.db == nil {
		return nil
	}
	if job.runID == "" {
		job.run.Width, job.run.Height = width, height
		runID, err := job.db.StartRun(ctx, job.run)
		if err != nil {
			return err
		}
		job.runID = runID
	}

	var records []store.Frame
	offset := batchStart
	for instIdx, instStat := range stats.Instances {
		reporter, ok := instances[instIdx].Op.(statsReporter)
		if instStat.Frames == 0 || !ok {
			offset += int(instStat.Frames)
			continue
		}
		for _, fs := range reporter.Stats().Frames {
			records = append(records, store.Frame{
				Index:    offset + fs.Frame,
				Instance: instStat.Name,
				Stats:    fs,
			})
		}
		offset += int(instStat.Frames)
	}
	return job.db.RecordFrames(ctx, job.runID, records)
}

func displayBatchStats(stats host.BatchStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Instance", "Frames", "% of batch", "Time"})
	for _, stat := range stats.Instances {
		table.Append([]string{
			stat.Name,
			fmt.Sprintf("%d", stat.Frames),
			fmt.Sprintf("%02.1f %%", stat.BatchPercent),
			stat.Elapsed.String(),
		})
	}
	table.SetFooter([]string{"", "", "TOTAL", stats.Elapsed.String()})

	table.Render()
	logger.Noticef("batch statistics\n%s", buf.String())
}
