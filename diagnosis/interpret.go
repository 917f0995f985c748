package diagnosis

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyPrediction    = errors.New("empty prediction")
	ErrLabelCount         = errors.New("prediction length does not match label count")
	ErrInvalidProbability = errors.New("probability outside [0,1]")
)

// slack absorbs float32 rounding in softmax outputs.
const slack = 1e-4

// Interpret picks the most probable label. On ties the lowest index wins.
// The vector must be a distribution: every value in [0,1] and a sum of 1,
// both within float32 rounding.
func Interpret(probabilities []float32, labels []string) (Result, error) {
	if len(probabilities) == 0 {
		return Result{}, ErrEmptyPrediction
	}
	if len(probabilities) != len(labels) {
		return Result{}, fmt.Errorf("%w: %d values, %d labels", ErrLabelCount, len(probabilities), len(labels))
	}

	best := 0
	var sum float64
	resultLabels := make([]LabelResult, len(probabilities))
	for i, p := range probabilities {
		v := float64(p)
		if math.IsNaN(v) || v < 0 || v > 1+slack {
			return Result{}, fmt.Errorf("%w: %q = %v", ErrInvalidProbability, labels[i], p)
		}
		if p > probabilities[best] {
			best = i
		}
		sum += v
		resultLabels[i] = LabelResult{Label: labels[i], Probability: math.Min(v*100, 100)}
	}
	if math.Abs(sum-1) > slack*float64(len(probabilities)) {
		return Result{}, fmt.Errorf("%w: sum is %v", ErrInvalidProbability, sum)
	}

	return Result{
		Label:      labels[best],
		Index:      best,
		Confidence: resultLabels[best].Probability,
		Labels:     resultLabels,
	}, nil
}
