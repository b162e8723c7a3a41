package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xsongx/scanner/kernel"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	runID, err := s.StartRun(ctx, Run{Backend: "software", Cameras: 2, Width: 640, Height: 480, Instances: 2})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	frames := []Frame{
		{Index: 1, Instance: "CPU:0", Stats: kernel.FrameStats{Frame: 1, Solve: 20 * time.Millisecond, MeanDepth: 7.5, MeanCost: 0.25, ValidPixels: 100}},
		{Index: 0, Instance: "CPU:1", Stats: kernel.FrameStats{Frame: 0, Preprocess: time.Millisecond, Upload: 2 * time.Millisecond, MeanDepth: 3.25, ValidPixels: 42}},
	}
	require.NoError(t, s.RecordFrames(ctx, runID, frames))
	require.NoError(t, s.FinishRun(ctx, runID, time.Second))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, "software", runs[0].Backend)
	assert.Equal(t, 2, runs[0].Frames)
	assert.Equal(t, time.Second, runs[0].Elapsed)
	assert.False(t, runs[0].FinishedAt.IsZero())

	got, err := s.Frames(ctx, runID)
	require.NoError(t, err)
	exp := []Frame{frames[1], frames[0]}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("frames mismatch (-exp +got):\n%s", diff)
	}
}

func TestDuplicateFrameRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	runID, err := s.StartRun(ctx, Run{Backend: "opencl", Cameras: 3})
	require.NoError(t, err)

	err = s.RecordFrames(ctx, runID, []Frame{{Index: 0, Instance: "GPU:0"}, {Index: 0, Instance: "GPU:1"}})
	require.Error(t, err)

	got, err := s.Frames(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFinishUnknownRun(t *testing.T) {
	s := openTestStore(t)
	err := s.FinishRun(context.Background(), "missing", time.Second)
	assert.ErrorIs(t, err, ErrUnknownRun)
}

func TestRunsOrderedByStart(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older, err := s.StartRun(ctx, Run{Backend: "software", StartedAt: base})
	require.NoError(t, err)
	newer, err := s.StartRun(ctx, Run{Backend: "software", StartedAt: base.Add(time.Hour)})
	require.NoError(t, err)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer, runs[0].ID)
	assert.Equal(t, older, runs[1].ID)
	assert.True(t, runs[1].FinishedAt.IsZero())
}

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := Open(path)
	require.NoError(t, err)
	version, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	_, err = s.StartRun(context.Background(), Run{Backend: "software", Cameras: 2})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.Runs(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
