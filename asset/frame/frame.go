// Package frame loads camera frames into the packed 8-bit BGR layout consumed
// by the depth kernel.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/achilleasa/openimageigo"
	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/xsongx/scanner/asset"
)

var (
	ErrSizeMismatch = errors.New("frame: frame set images differ in size")
	ErrEmptySet     = errors.New("frame: empty frame set")
)

// Frame is an 8-bit image with interleaved B, G, R channels and no padding.
type Frame struct {
	Width  int
	Height int
	BGR    []byte
}

// New allocates a black frame.
func New(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		BGR:    make([]byte, width*height*3),
	}
}

// FromImage converts any image into a packed BGR frame. Alpha is discarded.
func FromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	f := New(bounds.Dx(), bounds.Dy())

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < f.Height; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < f.Width; x++ {
				f.set(x, y, row[x*4], row[x*4+1], row[x*4+2])
			}
		}
	case *image.Gray:
		for y := 0; y < f.Height; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < f.Width; x++ {
				f.set(x, y, row[x], row[x], row[x])
			}
		}
	default:
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
				f.set(x, y, c.R, c.G, c.B)
			}
		}
	}
	return f
}

func (f *Frame) set(x, y int, r, g, b uint8) {
	offset := (y*f.Width + x) * 3
	f.BGR[offset] = b
	f.BGR[offset+1] = g
	f.BGR[offset+2] = r
}

// Image returns an opaque RGBA copy of the frame.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i < f.Width*f.Height; i++ {
		img.Pix[i*4] = f.BGR[i*3+2]
		img.Pix[i*4+1] = f.BGR[i*3+1]
		img.Pix[i*4+2] = f.BGR[i*3]
		img.Pix[i*4+3] = 255
	}
	return img
}

// Scale resamples the frame to the requested dimensions.
func (f *Frame) Scale(width, height int) *Frame {
	if width == f.Width && height == f.Height {
		return f
	}
	src := f.Image()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return FromImage(dst)
}

// Load decodes a frame from a resource. Formats registered with the image
// package (png, jpeg, bmp, tiff, webp) are decoded natively; anything else is
// handed to OpenImageIO.
func Load(res *asset.Resource) (*Frame, error) {
	data, err := io.ReadAll(res)
	if err != nil {
		return nil, fmt.Errorf("frame: could not read %s: %w", res.Path(), err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	switch {
	case err == nil:
		return FromImage(img), nil
	case errors.Is(err, image.ErrFormat):
		return loadWithOIIO(res, data)
	default:
		return nil, fmt.Errorf("frame: could not decode %s: %w", res.Path(), err)
	}
}

// LoadSet loads one frame per camera and checks that they share the same
// geometry. A non-zero width and height rescales every frame.
func LoadSet(paths []string, relTo *asset.Resource, width, height int) ([]*Frame, error) {
	if len(paths) == 0 {
		return nil, ErrEmptySet
	}

	frames := make([]*Frame, len(paths))
	for idx, path := range paths {
		res, err := asset.NewResource(path, relTo)
		if err != nil {
			return nil, err
		}
		f, err := Load(res)
		res.Close()
		if err != nil {
			return nil, err
		}

		if idx > 0 && (f.Width != frames[0].Width || f.Height != frames[0].Height) {
			return nil, fmt.Errorf("%w: %s is %dx%d; expected %dx%d", ErrSizeMismatch, path, f.Width, f.Height, frames[0].Width, frames[0].Height)
		}
		frames[idx] = f
	}

	if width > 0 && height > 0 {
		for idx, f := range frames {
			frames[idx] = f.Scale(width, height)
		}
	}
	return frames, nil
}

// OpenImageIO only reads from disk so the payload is always spilled to a
// temp file.
func loadWithOIIO(res *asset.Resource, data []byte) (*Frame, error) {
	tmp, err := os.CreateTemp("", "frame-*"+res.Ext())
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	_, err = tmp.Write(data)
	tmp.Close()
	if err != nil {
		return nil, err
	}

	input, err := oiio.OpenImageInput(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("frame: unsupported image format for %s: %w", res.Path(), err)
	}
	defer input.Close()

	spec := input.Spec()
	numChannels := int(spec.NumChannels())
	if numChannels != 1 && numChannels != 3 && numChannels != 4 {
		return nil, fmt.Errorf("frame: unsupported channel count %d while loading %s", numChannels, res.Path())
	}
	if spec.Depth() != 1 {
		return nil, fmt.Errorf("frame: unsupported depth %d while loading %s", spec.Depth(), res.Path())
	}

	imgData, err := input.ReadImageFormat(oiio.TypeUint8, nil)
	if err != nil {
		return nil, fmt.Errorf("frame: could not read data from %s: %w", res.Path(), err)
	}
	pix, ok := imgData.([]uint8)
	if !ok {
		return nil, fmt.Errorf("frame: unexpected pixel data %T while loading %s", imgData, res.Path())
	}

	f := New(int(spec.Width()), int(spec.Height()))
	for i := 0; i < f.Width*f.Height; i++ {
		px := pix[i*numChannels:]
		if numChannels == 1 {
			f.BGR[i*3], f.BGR[i*3+1], f.BGR[i*3+2] = px[0], px[0], px[0]
			continue
		}
		f.BGR[i*3], f.BGR[i*3+1], f.BGR[i*3+2] = px[2], px[1], px[0]
	}
	return f, nil
}
