// Package diagnosis turns an uploaded leaf photograph into a ranked
// classification: decoding and resizing for the model, then arg-max over the
// returned probabilities.
package diagnosis

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrCorruptImage      = errors.New("corrupt image")
)

// Resizer maps an uploaded image of any size onto the model's input grid
// without preserving aspect ratio. Each channel value v becomes
// (v - Mean) / Scale.
type Resizer struct {
	Height int
	Width  int
	Mean   float32
	Scale  float32
}

func NewResizer(height, width int, mean, scale float32) (*Resizer, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid input size %dx%d", height, width)
	}
	if scale == 0 {
		return nil, errors.New("scale must be non-zero")
	}
	return &Resizer{Height: height, Width: width, Mean: mean, Scale: scale}, nil
}

// Decode accepts JPEG and PNG only and reports which one it found.
func Decode(data []byte) (image.Image, string, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", ErrUnsupportedFormat
		}
		return nil, "", fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	if format != "jpeg" && format != "png" {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return src, format, nil
}

// Preprocess decodes data and resizes it with bicubic interpolation.
// Alpha is dropped; grayscale sources are expanded to three channels.
func (r *Resizer) Preprocess(data []byte) (Image, error) {
	src, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return r.Resize(src), nil
}

func (r *Resizer) Resize(src image.Image) Image {
	dst := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make(Image, r.Height)
	for y := 0; y < r.Height; y++ {
		row := make([][]float32, r.Width)
		for x := 0; x < r.Width; x++ {
			i := dst.PixOffset(x, y)
			row[x] = []float32{
				(float32(dst.Pix[i]) - r.Mean) / r.Scale,
				(float32(dst.Pix[i+1]) - r.Mean) / r.Scale,
				(float32(dst.Pix[i+2]) - r.Mean) / r.Scale,
			}
		}
		out[y] = row
	}
	return out
}
