package kernel

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the FrameInfo message.
const (
	frameInfoWidthField  protowire.Number = 1
	frameInfoHeightField protowire.Number = 2
)

// FrameInfo describes the geometry of the frames in a batch.
type FrameInfo struct {
	Width  int32
	Height int32
}

func (fi FrameInfo) String() string {
	return fmt.Sprintf("%dx%d", fi.Width, fi.Height)
}

// Marshal encodes the frame info in protobuf wire format.
func (fi FrameInfo) Marshal() []byte {
	var b []byte
	if fi.Width != 0 {
		b = protowire.AppendTag(b, frameInfoWidthField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(fi.Width))
	}
	if fi.Height != 0 {
		b = protowire.AppendTag(b, frameInfoHeightField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(fi.Height))
	}
	return b
}

// UnmarshalFrameInfo decodes a protobuf encoded frame info. Unknown fields
// are skipped.
func UnmarshalFrameInfo(b []byte) (FrameInfo, error) {
	var fi FrameInfo
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fi, fmt.Errorf("%w: %v", ErrMalformedFrameInfo, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == frameInfoWidthField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fi, fmt.Errorf("%w: %v", ErrMalformedFrameInfo, protowire.ParseError(n))
			}
			fi.Width = int32(v)
			b = b[n:]
		case num == frameInfoHeightField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fi, fmt.Errorf("%w: %v", ErrMalformedFrameInfo, protowire.ParseError(n))
			}
			fi.Height = int32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fi, fmt.Errorf("%w: %v", ErrMalformedFrameInfo, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return fi, nil
}
