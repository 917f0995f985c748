package model

import (
	"bytes"
	"fmt"

	"github.com/sdeoras/cotton/diagnosis"
	tf "github.com/tensorflow/tensorflow/tensorflow/go"
	"github.com/tensorflow/tensorflow/tensorflow/go/op"
)

// Transformer preprocesses uploads with TensorFlow image ops: decode,
// bilinear resize, then (value - mean) / scale. Use it when the model was
// trained on TF-resized inputs.
type Transformer struct {
	graphs map[string]*transformGraph
}

type transformGraph struct {
	session *tf.Session
	input   tf.Output
	output  tf.Output
}

func NewTransformer(height, width int, mean, scale float32) (*Transformer, error) {
	t := &Transformer{graphs: make(map[string]*transformGraph)}
	for _, format := range []string{"jpeg", "png"} {
		graph, input, output, err := makeTransformImageGraph(format, height, width, mean, scale)
		if err != nil {
			t.Close()
			return nil, err
		}
		session, err := tf.NewSession(graph, nil)
		if err != nil {
			t.Close()
			return nil, err
		}
		t.graphs[format] = &transformGraph{session: session, input: input, output: output}
	}
	return t, nil
}

var (
	pngMagic  = []byte("\x89PNG\r\n\x1a\n")
	jpegMagic = []byte("\xff\xd8\xff")
)

func (t *Transformer) Preprocess(data []byte) (diagnosis.Image, error) {
	var g *transformGraph
	switch {
	case bytes.HasPrefix(data, pngMagic):
		g = t.graphs["png"]
	case bytes.HasPrefix(data, jpegMagic):
		g = t.graphs["jpeg"]
	default:
		return nil, diagnosis.ErrUnsupportedFormat
	}

	tensor, err := tf.NewTensor(string(data))
	if err != nil {
		return nil, err
	}
	normalized, err := g.session.Run(
		map[tf.Output]*tf.Tensor{g.input: tensor},
		[]tf.Output{g.output},
		nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", diagnosis.ErrCorruptImage, err)
	}
	batch, ok := normalized[0].Value().([][][][]float32)
	if !ok || len(batch) != 1 {
		return nil, fmt.Errorf("unexpected transform output shape %v", normalized[0].Shape())
	}
	return diagnosis.Image(batch[0]), nil
}

func (t *Transformer) Close() error {
	var first error
	for _, g := range t.graphs {
		if err := g.session.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func makeTransformImageGraph(imageFormat string, height, width int, mean, scale float32) (graph *tf.Graph, input, output tf.Output, err error) {
	s := op.NewScope()
	input = op.Placeholder(s, tf.String)
	// Decode PNG or JPEG, forcing three channels
	var decode tf.Output
	if imageFormat == "png" {
		decode = op.DecodePng(s, input, op.DecodePngChannels(3))
	} else {
		decode = op.DecodeJpeg(s, input, op.DecodeJpegChannels(3))
	}
	// Div and Sub perform (value-mean)/scale for each pixel
	output = op.Div(s,
		op.Sub(s,
			// Resize with bilinear interpolation, aspect ratio not kept
			op.ResizeBilinear(s,
				// Create a batch containing a single image
				op.ExpandDims(s,
					op.Cast(s, decode, tf.Float),
					op.Const(s.SubScope("make_batch"), int32(0))),
				op.Const(s.SubScope("size"), []int32{int32(height), int32(width)})),
			op.Const(s.SubScope("mean"), mean)),
		op.Const(s.SubScope("scale"), scale))
	graph, err = s.Finalize()
	return graph, input, output, err
}
