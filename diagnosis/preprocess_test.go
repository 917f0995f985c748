package diagnosis

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"
)

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var b bytes.Buffer
	if err := png.Encode(&b, img); err != nil {
		t.Fatal(err)
	}
	return b.Bytes()
}

func TestPreprocessResizesToModelGrid(t *testing.T) {
	r, err := NewResizer(8, 6, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	img, err := r.Preprocess(encodePNG(t, 40, 13, color.RGBA{R: 200, G: 100, B: 50, A: 255}))
	if err != nil {
		t.Fatal(err)
	}
	h, w := img.Size()
	if h != 8 || w != 6 {
		t.Fatalf("size %dx%d, want 8x6", h, w)
	}
	for y := range img {
		for x := range img[y] {
			px := img[y][x]
			if len(px) != 3 {
				t.Fatalf("pixel has %d channels", len(px))
			}
			want := []float32{200, 100, 50}
			for c := range px {
				if math.Abs(float64(px[c]-want[c])) > 1 {
					t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, px, want)
				}
			}
		}
	}
}

func TestPreprocessNormalization(t *testing.T) {
	r, err := NewResizer(2, 2, 127.5, 127.5)
	if err != nil {
		t.Fatal(err)
	}
	img, err := r.Preprocess(encodePNG(t, 4, 4, color.RGBA{R: 255, G: 0, B: 255, A: 255}))
	if err != nil {
		t.Fatal(err)
	}
	px := img[0][0]
	if math.Abs(float64(px[0]-1)) > 0.01 || math.Abs(float64(px[1]+1)) > 0.01 {
		t.Fatalf("normalized pixel %v, want [1 -1 1]", px)
	}
}

func TestPreprocessJPEGAndGray(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}
	var b bytes.Buffer
	if err := jpeg.Encode(&b, gray, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	r, _ := NewResizer(4, 4, 0, 1)
	img, err := r.Preprocess(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	px := img[2][2]
	if px[0] != px[1] || px[1] != px[2] {
		t.Fatalf("gray pixel not replicated: %v", px)
	}
}

func TestPreprocessRejectsBadInput(t *testing.T) {
	r, _ := NewResizer(4, 4, 0, 1)
	good := encodePNG(t, 8, 8, color.White)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"gif", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"), ErrUnsupportedFormat},
		{"text", []byte("not an image at all"), ErrUnsupportedFormat},
		{"truncated png", good[:len(good)/2], ErrCorruptImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Preprocess(tt.data); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewResizerValidates(t *testing.T) {
	if _, err := NewResizer(0, 128, 0, 1); err == nil {
		t.Error("zero height accepted")
	}
	if _, err := NewResizer(128, 128, 0, 0); err == nil {
		t.Error("zero scale accepted")
	}
}

type fakeClassifier struct {
	out []float32
	got Image
}

func (f *fakeClassifier) Classify(_ context.Context, img Image) ([]float32, error) {
	f.got = img
	return f.out, nil
}

func TestPipelineRun(t *testing.T) {
	r, _ := NewResizer(128, 128, 0, 1)
	fc := &fakeClassifier{out: []float32{0.05, 0.10, 0.70, 0.10, 0.05}}
	p := &Pipeline{Pre: r, Model: fc, Labels: labels}

	res, err := p.Run(context.Background(), encodePNG(t, 300, 200, color.White))
	if err != nil {
		t.Fatal(err)
	}
	if h, w := fc.got.Size(); h != 128 || w != 128 {
		t.Errorf("classifier got %dx%d", h, w)
	}
	if res.Label != "Fusarium Wilt" {
		t.Errorf("label %s", res.Label)
	}

	if _, err := p.Run(context.Background(), []byte("junk")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("junk upload: %v", err)
	}
}
