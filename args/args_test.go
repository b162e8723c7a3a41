package args

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func twoCameraArgs() *Args {
	return &Args{
		Cameras: []Camera{
			{P: [12]float32{700, 0, 320, 0, 0, 700, 240, 0, 0, 0, 1, 0}},
			{P: [12]float32{700, 0, 320, -7000, 0, 700, 240, 0, 0, 0, 1, 0}},
		},
		MinDisparity: 1,
		MaxDisparity: 64,
		MinDepth:     1,
		MaxDepth:     100,
		Iterations:   8,
		KernelWidth:  15,
		KernelHeight: 15,
	}
}

func TestWireRoundTrip(t *testing.T) {
	in := twoCameraArgs()

	out, err := Unmarshal(Marshal(in))
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("decoded args mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalUnpackedMatrix(t *testing.T) {
	var cam []byte
	for i := 0; i < ProjectionEntries; i++ {
		cam = protowire.AppendTag(cam, fieldCameraP, protowire.Fixed32Type)
		cam = protowire.AppendFixed32(cam, uint32(i))
	}
	var blob []byte
	blob = protowire.AppendTag(blob, fieldCameras, protowire.BytesType)
	blob = protowire.AppendBytes(blob, cam)

	a, err := Unmarshal(blob)
	require.NoError(t, err)
	require.Len(t, a.Cameras, 1)
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	blob := Marshal(twoCameraArgs())
	blob = protowire.AppendTag(blob, 42, protowire.BytesType)
	blob = protowire.AppendString(blob, "ignored")

	a, err := Unmarshal(blob)
	require.NoError(t, err)
	assert.Len(t, a.Cameras, 2)
	assert.Equal(t, int32(8), a.Iterations)
}

func TestUnmarshalRejectsShortMatrix(t *testing.T) {
	var cam []byte
	cam = protowire.AppendTag(cam, fieldCameraP, protowire.BytesType)
	cam = protowire.AppendBytes(cam, make([]byte, 4*11))
	var blob []byte
	blob = protowire.AppendTag(blob, fieldCameras, protowire.BytesType)
	blob = protowire.AppendBytes(blob, cam)

	_, err := Unmarshal(blob)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 12 projection matrix entries; got 11")
}

func TestUnmarshalTruncated(t *testing.T) {
	blob := Marshal(twoCameraArgs())
	_, err := Unmarshal(blob[:len(blob)/2])
	require.ErrorIs(t, err, ErrMalformed)
}

func TestValidate(t *testing.T) {
	type spec struct {
		mutate func(*Args)
		expErr error
	}
	specs := []spec{
		{func(a *Args) {}, nil},
		{func(a *Args) { a.Cameras = nil }, ErrNoCameras},
		{func(a *Args) { a.MinDepth = 0 }, ErrInvalidDepthBounds},
		{func(a *Args) { a.MinDepth = 200 }, ErrInvalidDepthBounds},
		{func(a *Args) { a.Iterations = 0 }, ErrInvalidIterations},
		{func(a *Args) { a.KernelHeight = -1 }, ErrInvalidPatchSize},
	}

	for index, s := range specs {
		a := twoCameraArgs()
		s.mutate(a)
		err := a.Validate()
		if s.expErr == nil {
			assert.NoError(t, err, "spec %d", index)
			continue
		}
		assert.ErrorIs(t, err, s.expErr, "spec %d", index)
	}
}

func TestReadJSON(t *testing.T) {
	src := `{
		"cameras": [
			{"p": [700, 0, 320, 0, 0, 700, 240, 0, 0, 0, 1, 0]},
			{"p": [[700, 0, 320, -7000], [0, 700, 240, 0], [0, 0, 1, 0]]}
		],
		"min_depth": 1,
		"max_depth": 100,
		"iterations": 8,
		"kernel_width": 15,
		"kernel_height": 15
	}`

	a, err := ReadJSON(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, a.Cameras, 2)
	assert.Equal(t, float32(-7000), a.Cameras[1].P[3])
	assert.Equal(t, [4]float32{0, 0, 1, 0}, a.Cameras[1].Row(2))
}

func TestReadJSONErrors(t *testing.T) {
	specs := map[string]string{
		"bad row count": `{"cameras":[{"p":[[1,2,3,4],[1,2,3,4]]}],"min_depth":1,"max_depth":2,"iterations":1,"kernel_width":1,"kernel_height":1}`,
		"bad entries":   `{"cameras":[{"p":[1,2,3]}],"min_depth":1,"max_depth":2,"iterations":1,"kernel_width":1,"kernel_height":1}`,
		"unknown field": `{"cameras":[],"foo":1}`,
		"invalid":       `{"cameras":[{"p":[1,2,3,4,5,6,7,8,9,10,11,12]}],"min_depth":3,"max_depth":2,"iterations":1,"kernel_width":1,"kernel_height":1}`,
	}

	for name, src := range specs {
		t.Run(name, func(t *testing.T) {
			_, err := ReadJSON(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestScaled(t *testing.T) {
	in := twoCameraArgs()
	out := in.Scaled(0.5, 0.25)

	// Input is left untouched.
	assert.Equal(t, float32(700), in.Cameras[0].P[0])

	project := func(p [12]float32, x, y, z float32) (float32, float32) {
		w := p[8]*x + p[9]*y + p[10]*z + p[11]
		return (p[0]*x + p[1]*y + p[2]*z + p[3]) / w, (p[4]*x + p[5]*y + p[6]*z + p[7]) / w
	}

	points := [][3]float32{{0, 0, 10}, {1.5, -2, 40}, {-3, 1, 5}}
	for camIdx := range in.Cameras {
		for _, pt := range points {
			x, y := project(in.Cameras[camIdx].P, pt[0], pt[1], pt[2])
			sx, sy := project(out.Cameras[camIdx].P, pt[0], pt[1], pt[2])
			assert.InDelta(t, (x+0.5)*0.5-0.5, sx, 1e-3, "camera %d x", camIdx)
			assert.InDelta(t, (y+0.5)*0.25-0.5, sy, 1e-3, "camera %d y", camIdx)
		}
	}

	// Focal length and baseline term scale with the horizontal factor.
	assert.Equal(t, float32(350), out.Cameras[1].P[0])
	assert.Equal(t, float32(-3500), out.Cameras[1].P[3])
	assert.Equal(t, in.MinDepth, out.MinDepth)
}
