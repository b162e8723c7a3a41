package solver

import (
	"fmt"
	"math"
)

// GrayImage is a single channel floating point image with values in [0, 255].
type GrayImage struct {
	Width  int
	Height int
	Pix    []float32
}

// NewGrayImage allocates an empty image.
func NewGrayImage(width, height int) *GrayImage {
	return &GrayImage{
		Width:  width,
		Height: height,
		Pix:    make([]float32, width*height),
	}
}

// GrayFromBGR converts a packed 8-bit BGR buffer into a grayscale image
// using the standard luma weights. The result is quantized to 8 bits before
// being widened to float32.
//
// The buffer must hold exactly width*height*3 bytes; anything else means the
// caller disagrees with the planned frame geometry and GrayFromBGR panics.
func GrayFromBGR(buf []byte, width, height int) *GrayImage {
	if expLen := width * height * 3; len(buf) != expLen {
		panic(fmt.Sprintf("solver: expected BGR buffer of %d bytes for a %dx%d frame; got %d", expLen, width, height, len(buf)))
	}

	img := NewGrayImage(width, height)
	for i, o := 0, 0; i < len(img.Pix); i, o = i+1, o+3 {
		b, g, r := float64(buf[o]), float64(buf[o+1]), float64(buf[o+2])
		img.Pix[i] = float32(math.Round(0.299*r + 0.587*g + 0.114*b))
	}
	return img
}

// At returns the pixel value at (x, y), clamping coordinates to the image
// bounds.
func (img *GrayImage) At(x, y int) float32 {
	x = clamp(x, 0, img.Width-1)
	y = clamp(y, 0, img.Height-1)
	return img.Pix[y*img.Width+x]
}

// Sample the image at a sub-pixel location using bilinear interpolation.
// The ok flag is false when the location falls outside the image.
func (img *GrayImage) Sample(x, y float64) (v float32, ok bool) {
	if x < 0 || y < 0 || x > float64(img.Width-1) || y > float64(img.Height-1) {
		return 0, false
	}

	x0, y0 := int(x), int(y)
	fx, fy := float32(x-float64(x0)), float32(y-float64(y0))

	top := img.At(x0, y0)*(1-fx) + img.At(x0+1, y0)*fx
	bottom := img.At(x0, y0+1)*(1-fx) + img.At(x0+1, y0+1)*fx
	return top*(1-fy) + bottom*fy, true
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
