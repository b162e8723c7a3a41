package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/xsongx/scanner/store"
)

// List the runs recorded in a run log or, when a run id is given, the
// frames of that run.
func ListRuns(ctx *cli.Context) error {
	setupLogging(ctx)

	dbPath := ctx.String("db")
	if dbPath == "" {
		return errors.New("missing --db argument")
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if ctx.NArg() == 0 {
		runs, err := db.Runs(context.Background())
		if err != nil {
			return err
		}
		displayRuns(runs)
		return nil
	}

	runID := ctx.Args().First()
	frames, err := db.Frames(context.Background(), runID)
	if err != nil {
		return err
	}
	displayRunFrames(runID, frames)
	return nil
}

func displayRuns(runs []store.Run) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Run", "Started", "Backend", "Cameras", "Resolution", "Instances", "Frames", "Elapsed"})
	for _, run := range runs {
		elapsed := "running"
		if !run.FinishedAt.IsZero() {
			elapsed = run.Elapsed.String()
		}
		table.Append([]string{
			run.ID,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Backend,
			fmt.Sprintf("%d", run.Cameras),
			fmt.Sprintf("%dx%d", run.Width, run.Height),
			fmt.Sprintf("%d", run.Instances),
			fmt.Sprintf("%d", run.Frames),
			elapsed,
		})
	}
	table.Render()
	logger.Noticef("%d recorded run(s)\n%s", len(runs), buf.String())
}

func displayRunFrames(runID string, frames []store.Frame) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Frame", "Instance", "Preprocess", "Upload", "Solve", "Extract", "Mean depth", "Mean cost", "Valid pixels"})
	for _, f := range frames {
		table.Append([]string{
			fmt.Sprintf("%d", f.Index),
			f.Instance,
			f.Stats.Preprocess.String(),
			f.Stats.Upload.String(),
			f.Stats.Solve.String(),
			f.Stats.Extract.String(),
			fmt.Sprintf("%.3f", f.Stats.MeanDepth),
			fmt.Sprintf("%.3f", f.Stats.MeanCost),
			fmt.Sprintf("%d", f.Stats.ValidPixels),
		})
	}
	table.Render()
	logger.Noticef("run %s\n%s", runID, buf.String())
}
