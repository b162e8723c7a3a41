package host

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xsongx/scanner/kernel"
)

// echoOp copies the first input column to its output.
type echoOp struct {
	result  kernel.Result
	failOn  byte
	batches int32
	closed  bool
}

func (op *echoOp) Validate() kernel.Result              { return op.result }
func (op *echoOp) NewFrameInfo(kernel.FrameInfo) error { return nil }
func (op *echoOp) Close()                               { op.closed = true }

func (op *echoOp) Execute(in, out kernel.BatchedColumns) error {
	atomic.AddInt32(&op.batches, 1)
	for _, row := range in[0].Rows {
		if op.failOn != 0 && row[0] == op.failOn {
			return errors.New("boom")
		}
		out[0].Append(append([]byte(nil), row...))
	}
	return nil
}

func newEchoOp() *echoOp {
	return &echoOp{result: kernel.Result{Success: true}}
}

func makeFrames(n int) kernel.BatchedColumns {
	in := kernel.NewBatchedColumns(2)
	for i := 0; i < n; i++ {
		in[0].Append([]byte{byte(i + 1)})
		in[1].Append(kernel.FrameInfo{Width: 1, Height: 1}.Marshal())
	}
	return in
}

func TestRunPreservesOrder(t *testing.T) {
	ops := []*echoOp{newEchoOp(), newEchoOp(), newEchoOp()}
	r, err := NewRunner(NaiveScheduler(),
		Instance{Name: "a", Op: ops[0], Speed: 1},
		Instance{Name: "b", Op: ops[1], Speed: 2},
		Instance{Name: "c", Op: ops[2], Speed: 3},
	)
	require.NoError(t, err)

	out, err := r.Run(context.Background(), makeFrames(10))
	require.NoError(t, err)
	require.Len(t, out[0].Rows, 10)
	for i, row := range out[0].Rows {
		assert.Equal(t, byte(i+1), row[0], "row %d out of order", i)
	}

	stats := r.Stats()
	require.Len(t, stats.Instances, 3)
	var total uint32
	for _, s := range stats.Instances {
		total += s.Frames
	}
	assert.Equal(t, uint32(10), total)
	for _, op := range ops {
		assert.Equal(t, int32(1), op.batches)
	}

	r.Close()
	for _, op := range ops {
		assert.True(t, op.closed)
	}
}

func TestRunSkipsIdleInstances(t *testing.T) {
	ops := []*echoOp{newEchoOp(), newEchoOp()}
	r, err := NewRunner(NaiveScheduler(),
		Instance{Name: "a", Op: ops[0], Speed: 1},
		Instance{Name: "b", Op: ops[1], Speed: 1},
	)
	require.NoError(t, err)

	out, err := r.Run(context.Background(), makeFrames(1))
	require.NoError(t, err)
	assert.Len(t, out[0].Rows, 1)
	assert.Equal(t, int32(1), ops[0].batches)
	assert.Equal(t, int32(0), ops[1].batches)
}

func TestRunPropagatesErrors(t *testing.T) {
	failing := newEchoOp()
	failing.failOn = 4
	r, err := NewRunner(NaiveScheduler(),
		Instance{Name: "ok", Op: newEchoOp(), Speed: 1},
		Instance{Name: "bad", Op: failing, Speed: 1},
	)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), makeFrames(6))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance bad")
}

func TestRunAllCancellation(t *testing.T) {
	r, err := NewRunner(PerfectScheduler(), Instance{Name: "a", Op: newEchoOp(), Speed: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	outputs, err := r.RunAll(ctx, []kernel.BatchedColumns{makeFrames(2), makeFrames(3)})
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Len(t, outputs[1][0].Rows, 3)

	cancel()
	outputs, err = r.RunAll(ctx, []kernel.BatchedColumns{makeFrames(2)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, outputs)
}

func TestNewRunnerErrors(t *testing.T) {
	_, err := NewRunner(NaiveScheduler())
	assert.ErrorIs(t, err, ErrNoInstances)

	invalid := &echoOp{result: kernel.Result{Msg: "bad config"}}
	_, err = NewRunner(NaiveScheduler(), Instance{Name: "x", Op: invalid})
	assert.ErrorIs(t, err, ErrInvalidInstance)
	assert.Contains(t, err.Error(), "bad config")
}
