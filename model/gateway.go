// Package model loads the leaf classifier into a TensorFlow session once and
// runs single-sample inference against it.
package model

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/sdeoras/cotton/diagnosis"
	"github.com/sirupsen/logrus"
	tf "github.com/tensorflow/tensorflow/tensorflow/go"
)

var ErrInputSize = errors.New("image does not match model input size")

type Options struct {
	// Path is a SavedModel directory or a frozen GraphDef file.
	Path     string
	Tag      string
	InputOp  string
	OutputOp string

	// Height and Width are used when the graph does not fix them.
	Height int
	Width  int
}

// Gateway holds the loaded graph and session. It is read-only after Load
// and safe for concurrent use.
type Gateway struct {
	graph   *tf.Graph
	session *tf.Session
	input   tf.Output
	output  tf.Output
	height  int
	width   int
	classes int
}

func Load(opts Options) (*Gateway, error) {
	info, err := os.Stat(opts.Path)
	if err != nil {
		return nil, err
	}

	var graph *tf.Graph
	var session *tf.Session
	if info.IsDir() {
		m, err := tf.LoadSavedModel(opts.Path, []string{opts.Tag}, nil)
		if err != nil {
			return nil, fmt.Errorf("load saved model %s: %w", opts.Path, err)
		}
		graph, session = m.Graph, m.Session
	} else {
		model, err := ioutil.ReadFile(opts.Path)
		if err != nil {
			return nil, err
		}
		graph = tf.NewGraph()
		if err := graph.Import(model, ""); err != nil {
			return nil, fmt.Errorf("import graph %s: %w", opts.Path, err)
		}
		session, err = tf.NewSession(graph, nil)
		if err != nil {
			return nil, err
		}
	}

	g := &Gateway{graph: graph, session: session, height: opts.Height, width: opts.Width, classes: -1}
	if err := g.bind(opts); err != nil {
		session.Close()
		return nil, err
	}
	return g, nil
}

func (g *Gateway) bind(opts Options) error {
	in := g.graph.Operation(opts.InputOp)
	if in == nil {
		return fmt.Errorf("input operation %q not found", opts.InputOp)
	}
	out := g.graph.Operation(opts.OutputOp)
	if out == nil {
		return fmt.Errorf("output operation %q not found", opts.OutputOp)
	}
	g.input, g.output = in.Output(0), out.Output(0)

	if shape := g.input.Shape(); shape.NumDimensions() == 4 {
		if c := shape.Size(3); c > 0 && c != 3 {
			return fmt.Errorf("model expects %d channels, want 3", c)
		}
		h, w := int(shape.Size(1)), int(shape.Size(2))
		if h > 0 && w > 0 && (h != g.height || w != g.width) {
			logrus.WithField("configured", fmt.Sprintf("%dx%d", g.height, g.width)).
				WithField("graph", fmt.Sprintf("%dx%d", h, w)).
				Warn("graph input size overrides configuration")
			g.height, g.width = h, w
		}
	}
	if shape := g.output.Shape(); shape.NumDimensions() == 2 {
		g.classes = int(shape.Size(1))
	}
	return nil
}

// InputSize is the pixel grid Classify accepts.
func (g *Gateway) InputSize() (height, width int) {
	return g.height, g.width
}

// Classes is the length of the output vector, or -1 if the graph does not
// say.
func (g *Gateway) Classes() int {
	return g.classes
}

// Classify runs one forward pass. TensorFlow offers no cancellation, so ctx
// is only checked before the run starts.
func (g *Gateway) Classify(ctx context.Context, img diagnosis.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h, w := img.Size(); h != g.height || w != g.width {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrInputSize, h, w, g.height, g.width)
	}

	tensor, err := tf.NewTensor([][][][]float32{[][][]float32(img)})
	if err != nil {
		return nil, err
	}
	output, err := g.session.Run(
		map[tf.Output]*tf.Tensor{
			g.input: tensor,
		},
		[]tf.Output{
			g.output,
		},
		nil)
	if err != nil {
		return nil, err
	}

	batch, ok := output[0].Value().([][]float32)
	if !ok || len(batch) != 1 {
		return nil, fmt.Errorf("unexpected output shape %v", output[0].Shape())
	}
	return batch[0], nil
}

func (g *Gateway) Close() error {
	return g.session.Close()
}
