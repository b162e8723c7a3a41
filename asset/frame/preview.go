package frame

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
)

// PreviewFormat selects the encoding of preview images.
type PreviewFormat uint8

const (
	PNG PreviewFormat = iota
	WebP
)

func (f PreviewFormat) String() string {
	switch f {
	case PNG:
		return "png"
	case WebP:
		return "webp"
	}
	return "unknown"
}

// ParsePreviewFormat parses a preview format name such as "png" or "webp".
func ParsePreviewFormat(name string) (PreviewFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "png":
		return PNG, nil
	case "webp":
		return WebP, nil
	}
	return 0, fmt.Errorf("frame: unsupported preview format %q", name)
}

// PreviewFormatFromPath infers the preview encoding from a file extension.
func PreviewFormatFromPath(path string) (PreviewFormat, error) {
	return ParsePreviewFormat(filepath.Ext(path))
}

// DepthImage renders the depth channel of a normal/depth map as grayscale.
// Intensity is linear in inverse depth so near surfaces are bright; pixels
// without a valid depth are black.
func DepthImage(norm4 [][4]float32, width, height int, minDepth, maxDepth float32) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	nearInv, farInv := 1/float64(minDepth), 1/float64(maxDepth)
	span := nearInv - farInv

	for i, v := range norm4[:width*height] {
		depth := float64(v[3])
		if depth <= 0 || math.IsNaN(depth) || math.IsInf(depth, 0) || span <= 0 {
			continue
		}
		t := (1/depth - farInv) / span
		img.Pix[i] = uint8(math.Round(255 * math.Max(0, math.Min(1, t))))
	}
	return img
}

// NormalImage maps unit normals from [-1, 1] to RGB.
func NormalImage(norm4 [][4]float32, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, v := range norm4[:width*height] {
		img.SetNRGBA(i%width, i/width, color.NRGBA{
			R: toByte(v[0]),
			G: toByte(v[1]),
			B: toByte(v[2]),
			A: 255,
		})
	}
	return img
}

func toByte(n float32) uint8 {
	return uint8(math.Round(255 * math.Max(0, math.Min(1, float64(n)*0.5+0.5))))
}

// EncodePreview writes img using the selected format. WebP output is lossless.
func EncodePreview(w io.Writer, img image.Image, format PreviewFormat) error {
	switch format {
	case PNG:
		return png.Encode(w, img)
	case WebP:
		return nativewebp.Encode(w, img, nil)
	}
	return fmt.Errorf("frame: unsupported preview format %s", format)
}
