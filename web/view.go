package web

import (
	"fmt"
	"html/template"
	"math"

	"github.com/sdeoras/cotton/session"
)

type pageView struct {
	Error       string
	Diagnosis   *diagnosisView
	History     []session.HistoryEntry
	MaxUploadMB int64
}

type diagnosisView struct {
	ID         string
	Filename   string
	Label      string
	Confidence float64
	Advice     adviceView
	Radar      radarView
	Table      []rowView
}

type adviceView struct {
	ImmediateAction    template.HTML
	BiologicalSolution template.HTML
	ExpertNote         template.HTML
}

type rowView struct {
	Label       string
	Probability float64
	Predicted   bool
}

var funcs = template.FuncMap{
	"pct":  func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"pct1": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"coord": func(v float64) string {
		return fmt.Sprintf("%.2f", math.Round(v*100)/100)
	},
}

func (s *Server) diagnosisView(d session.Diagnosis) (*diagnosisView, error) {
	adv, ok := s.advice[d.Result.Label]
	if !ok {
		return nil, fmt.Errorf("no advice for %q", d.Result.Label)
	}
	v := &diagnosisView{
		ID:         d.ID,
		Filename:   d.Filename,
		Label:      d.Result.Label,
		Confidence: d.Result.Confidence,
		Advice:     adv,
		Radar:      newRadar(d.Result.Labels, radarSize),
	}
	for _, l := range d.Result.Sorted() {
		v.Table = append(v.Table, rowView{
			Label:       l.Label,
			Probability: l.Probability,
			Predicted:   l.Label == d.Result.Label,
		})
	}
	return v, nil
}
