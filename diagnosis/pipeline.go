package diagnosis

import (
	"context"
	"fmt"
)

// Pipeline runs preprocess, classify and interpret for one upload.
type Pipeline struct {
	Pre    Preprocessor
	Model  Classifier
	Labels []string
}

func (p *Pipeline) Run(ctx context.Context, data []byte) (Result, error) {
	img, err := p.Pre.Preprocess(data)
	if err != nil {
		return Result{}, err
	}
	probabilities, err := p.Model.Classify(ctx, img)
	if err != nil {
		return Result{}, fmt.Errorf("classify: %w", err)
	}
	return Interpret(probabilities, p.Labels)
}
