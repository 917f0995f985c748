//go:build tensorflow

// Run with: go test -tags tensorflow ./model (requires libtensorflow).
package model

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sdeoras/cotton/diagnosis"
)

func TestReadLabels(t *testing.T) {
	dir, err := ioutil.TempDir("", "labels")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "labels.txt")
	body := "Alternaria Leaf Spot\n\nBacterial Blight \nFusarium Wilt\n"
	if err := ioutil.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	labels, err := ReadLabels(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Alternaria Leaf Spot", "Bacterial Blight", "Fusarium Wilt"}
	if len(labels) != len(want) {
		t.Fatalf("got %q", labels)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("label %d = %q, want %q", i, labels[i], want[i])
		}
	}

	empty := filepath.Join(dir, "empty.txt")
	ioutil.WriteFile(empty, nil, 0644)
	if _, err := ReadLabels(empty); err == nil {
		t.Error("empty labels file accepted")
	}
}

func TestTransformer(t *testing.T) {
	tr, err := NewTransformer(16, 8, 0, 255)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	src := image.NewRGBA(image.Rect(0, 0, 32, 20))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 255, 0, 0, 255
	}
	var b bytes.Buffer
	if err := png.Encode(&b, src); err != nil {
		t.Fatal(err)
	}

	img, err := tr.Preprocess(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if h, w := img.Size(); h != 16 || w != 8 {
		t.Fatalf("size %dx%d", h, w)
	}
	px := img[3][3]
	if math.Abs(float64(px[0]-1)) > 1e-3 || px[1] != 0 {
		t.Errorf("pixel %v, want [1 0 0]", px)
	}

	if _, err := tr.Preprocess([]byte("GIF89a")); !errors.Is(err, diagnosis.ErrUnsupportedFormat) {
		t.Errorf("gif: %v", err)
	}
}

func TestLoadMissingModel(t *testing.T) {
	if _, err := Load(Options{Path: "/nonexistent/model.pb", InputOp: "input", OutputOp: "output"}); err == nil {
		t.Fatal("missing model loaded")
	}
}

func TestClassifyRejectsWrongSize(t *testing.T) {
	g := &Gateway{height: 128, width: 128}
	img := make(diagnosis.Image, 64)
	for i := range img {
		img[i] = make([][]float32, 64)
	}
	if _, err := g.Classify(context.Background(), img); !errors.Is(err, ErrInputSize) {
		t.Fatalf("got %v", err)
	}
}
