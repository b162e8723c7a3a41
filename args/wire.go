package args

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the GipumaArgs message.
const (
	fieldCameras      protowire.Number = 1
	fieldMinDisparity protowire.Number = 2
	fieldMaxDisparity protowire.Number = 3
	fieldMinDepth     protowire.Number = 4
	fieldMaxDepth     protowire.Number = 5
	fieldIterations   protowire.Number = 6
	fieldKernelWidth  protowire.Number = 7
	fieldKernelHeight protowire.Number = 8

	// Camera message.
	fieldCameraP protowire.Number = 1
)

var ErrMalformed = errors.New("args: malformed protobuf message")

// Marshal encodes the arguments using the protobuf wire format. Repeated
// floats are written packed.
func Marshal(a *Args) []byte {
	var b []byte
	for _, cam := range a.Cameras {
		b = protowire.AppendTag(b, fieldCameras, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalCamera(cam))
	}
	b = appendFloat(b, fieldMinDisparity, a.MinDisparity)
	b = appendFloat(b, fieldMaxDisparity, a.MaxDisparity)
	b = appendFloat(b, fieldMinDepth, a.MinDepth)
	b = appendFloat(b, fieldMaxDepth, a.MaxDepth)
	b = appendInt32(b, fieldIterations, a.Iterations)
	b = appendInt32(b, fieldKernelWidth, a.KernelWidth)
	b = appendInt32(b, fieldKernelHeight, a.KernelHeight)
	return b
}

func marshalCamera(cam Camera) []byte {
	packed := make([]byte, 0, 4*ProjectionEntries)
	for _, v := range cam.P {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	var b []byte
	b = protowire.AppendTag(b, fieldCameraP, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

// Unmarshal decodes a protobuf wire encoded GipumaArgs message. Unknown
// fields are skipped. Each camera must carry exactly 12 matrix entries.
func Unmarshal(b []byte) (*Args, error) {
	a := &Args{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldCameras && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			cam, err := unmarshalCamera(v)
			if err != nil {
				return nil, fmt.Errorf("args: camera %d: %w", len(a.Cameras), err)
			}
			a.Cameras = append(a.Cameras, cam)
			b = b[n:]
		case typ == protowire.Fixed32Type && num >= fieldMinDisparity && num <= fieldMaxDepth:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			f := math.Float32frombits(v)
			switch num {
			case fieldMinDisparity:
				a.MinDisparity = f
			case fieldMaxDisparity:
				a.MaxDisparity = f
			case fieldMinDepth:
				a.MinDepth = f
			case fieldMaxDepth:
				a.MaxDepth = f
			}
			b = b[n:]
		case typ == protowire.VarintType && num >= fieldIterations && num <= fieldKernelHeight:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			switch num {
			case fieldIterations:
				a.Iterations = int32(v)
			case fieldKernelWidth:
				a.KernelWidth = int32(v)
			case fieldKernelHeight:
				a.KernelHeight = int32(v)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return a, nil
}

func unmarshalCamera(b []byte) (Camera, error) {
	var cam Camera
	entries := make([]float32, 0, ProjectionEntries)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return cam, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldCameraP && typ == protowire.BytesType:
			// packed encoding
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return cam, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			for len(packed) > 0 {
				v, m := protowire.ConsumeFixed32(packed)
				if m < 0 {
					return cam, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
				}
				entries = append(entries, math.Float32frombits(v))
				packed = packed[m:]
			}
			b = b[n:]
		case num == fieldCameraP && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return cam, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			entries = append(entries, math.Float32frombits(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return cam, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if len(entries) != ProjectionEntries {
		return cam, fmt.Errorf("expected %d projection matrix entries; got %d", ProjectionEntries, len(entries))
	}
	copy(cam.P[:], entries)
	return cam, nil
}
