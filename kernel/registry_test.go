package kernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xsongx/scanner/args"
	"github.com/xsongx/scanner/solver"
)

func TestGipumaRegistered(t *testing.T) {
	reg, err := LookupOp(OpName)
	require.NoError(t, err)
	assert.Equal(t, []string{"points"}, reg.OutputColumns)
	assert.True(t, reg.RequiresGPU)
	assert.Contains(t, Ops(), OpName)

	_, backend := registerTracking(t)
	op, err := reg.New(Config{
		Device:       solver.DeviceHandle{Type: solver.GPU},
		Args:         args.Marshal(stereoArgs(10)),
		InputColumns: ImageColumns(2),
		Backend:      backend,
	})
	require.NoError(t, err)
	defer op.Close()
	assert.True(t, op.Validate().Success)
}

func TestLookupUnknownOp(t *testing.T) {
	_, err := LookupOp("Colmap")
	if !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("expected ErrUnknownOp; got %v", err)
	}
}

func TestRegisterOpTwicePanics(t *testing.T) {
	assert.Panics(t, func() {
		RegisterOp(OpName, Registration{New: func(Config) (Op, error) { return nil, nil }})
	})
	assert.Panics(t, func() {
		RegisterOp("NoConstructor", Registration{})
	})
}

func TestFrameInfoCodec(t *testing.T) {
	type spec struct {
		in  []byte
		exp FrameInfo
	}

	specs := []spec{
		{FrameInfo{Width: 1920, Height: 1080}.Marshal(), FrameInfo{Width: 1920, Height: 1080}},
		{nil, FrameInfo{}},
		// unknown field 3 (varint 7) followed by width 4
		{[]byte{0x18, 0x07, 0x08, 0x04}, FrameInfo{Width: 4}},
	}

	for index, s := range specs {
		got, err := UnmarshalFrameInfo(s.in)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", index, err)
		}
		if got != s.exp {
			t.Fatalf("[spec %d] expected %v; got %v", index, s.exp, got)
		}
	}

	if _, err := UnmarshalFrameInfo([]byte{0x08}); !errors.Is(err, ErrMalformedFrameInfo) {
		t.Fatalf("expected ErrMalformedFrameInfo for a truncated message; got %v", err)
	}
}
