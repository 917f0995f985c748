package diagnosis

import (
	"context"
	"sort"
)

// Image is a height x width x 3 grid of channel values, ready for the model.
type Image [][][]float32

// Size returns the grid's height and width.
func (m Image) Size() (height, width int) {
	if len(m) == 0 {
		return 0, 0
	}
	return len(m), len(m[0])
}

// Classifier runs a single forward pass and returns one probability per class.
type Classifier interface {
	Classify(ctx context.Context, img Image) ([]float32, error)
}

// Preprocessor turns raw uploaded bytes into a model-sized Image.
type Preprocessor interface {
	Preprocess(data []byte) (Image, error)
}

// Result is the outcome of interpreting one probability vector.
// Probabilities are percentages in [0,100].
type Result struct {
	Label      string        `json:"label"`
	Index      int           `json:"index"`
	Confidence float64       `json:"confidence"`
	Labels     []LabelResult `json:"labels"`
}

// LabelResult is one class and its probability as a percentage.
type LabelResult struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// ByProbability sorts LabelResults most probable first.
type ByProbability []LabelResult

func (a ByProbability) Len() int           { return len(a) }
func (a ByProbability) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByProbability) Less(i, j int) bool { return a[i].Probability > a[j].Probability }

// Sorted returns the per-class probabilities in descending order. Ties keep
// class order.
func (r Result) Sorted() []LabelResult {
	out := make([]LabelResult, len(r.Labels))
	copy(out, r.Labels)
	sort.Stable(ByProbability(out))
	return out
}
