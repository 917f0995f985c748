// Package advice holds the static agronomic guidance shown next to a
// diagnosis. The table is compiled in and never mutated.
package advice

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Record is the guidance attached to one classifier label. Fields may carry
// light inline markup (<em>, <strong>) and must be sanitized before display.
type Record struct {
	ImmediateAction    string `json:"immediate_action"`
	BiologicalSolution string `json:"biological_solution"`
	ExpertNote         string `json:"expert_note"`
}

var ErrLabelMismatch = errors.New("advice table does not match classifier labels")

// classes is the default label set, in model output order.
var classes = []string{
	"Alternaria Leaf Spot",
	"Bacterial Blight",
	"Fusarium Wilt",
	"Healthy Leaf",
	"Verticillium Wilt",
}

var table = map[string]Record{
	"Alternaria Leaf Spot": {
		ImmediateAction:    "Reduce leaf wetness.",
		BiologicalSolution: "Use <em>Neem</em> extracts.",
		ExpertNote:         "Often appears after prolonged rain.",
	},
	"Bacterial Blight": {
		ImmediateAction:    "Remove infected debris.",
		BiologicalSolution: "Rotate crops over 2 years.",
		ExpertNote:         "Spreads through wind and water.",
	},
	"Fusarium Wilt": {
		ImmediateAction:    "Improve soil drainage.",
		BiologicalSolution: "Apply potash.",
		ExpertNote:         "Attacks the vascular system of the plant.",
	},
	"Healthy Leaf": {
		ImmediateAction:    "Keep monitoring.",
		BiologicalSolution: "Balanced organic fertilizer.",
		ExpertNote:         "Optimal vigor detected.",
	},
	"Verticillium Wilt": {
		ImmediateAction:    "Avoid excess <strong>nitrogen</strong>.",
		BiologicalSolution: "Soil solarization.",
		ExpertNote:         "Favored by cool, moist soils.",
	},
}

// Classes returns a copy of the default label set.
func Classes() []string {
	out := make([]string, len(classes))
	copy(out, classes)
	return out
}

// Lookup returns the record for label.
func Lookup(label string) (Record, bool) {
	r, ok := table[label]
	return r, ok
}

// Validate checks that the advice table keys and labels are the same set.
func Validate(labels []string) error {
	seen := make(map[string]bool, len(labels))
	var missing, duplicate []string
	for _, label := range labels {
		if seen[label] {
			duplicate = append(duplicate, label)
			continue
		}
		seen[label] = true
		if _, ok := table[label]; !ok {
			missing = append(missing, label)
		}
	}

	var unused []string
	for key := range table {
		if !seen[key] {
			unused = append(unused, key)
		}
	}
	sort.Strings(unused)

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "no advice for "+quoteAll(missing))
	}
	if len(unused) > 0 {
		problems = append(problems, "advice for unknown "+quoteAll(unused))
	}
	if len(duplicate) > 0 {
		problems = append(problems, "duplicate labels "+quoteAll(duplicate))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrLabelMismatch, strings.Join(problems, "; "))
	}
	return nil
}

func quoteAll(s []string) string {
	q := make([]string, len(s))
	for i := range s {
		q[i] = fmt.Sprintf("%q", s[i])
	}
	return strings.Join(q, ", ")
}
