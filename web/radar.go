package web

import (
	"fmt"
	"math"
	"strings"

	"github.com/sdeoras/cotton/diagnosis"
)

const radarSize = 320

// radarView is a polar chart of per-class probabilities drawn as SVG. The
// first class sits at the top and the others follow clockwise; the radial
// axis runs 0 to 100.
type radarView struct {
	Size   float64
	Center float64
	Radius float64
	Grid   []string
	Axes   []radarAxis
	Shape  string
}

type radarAxis struct {
	X, Y           float64
	LabelX, LabelY float64
	Anchor         string
	Label          string
	Value          float64
}

var gridLevels = []float64{25, 50, 75, 100}

func newRadar(labels []diagnosis.LabelResult, size float64) radarView {
	v := radarView{
		Size:   size,
		Center: size / 2,
		Radius: size * 0.32,
	}
	n := len(labels)
	if n == 0 {
		return v
	}

	for _, level := range gridLevels {
		pts := make([]string, n)
		for i := range labels {
			x, y := v.point(i, n, level)
			pts[i] = fmt.Sprintf("%.2f,%.2f", x, y)
		}
		v.Grid = append(v.Grid, strings.Join(pts, " "))
	}

	shape := make([]string, n)
	for i, l := range labels {
		x, y := v.point(i, n, 100)
		lx, ly := v.point(i, n, 118)
		anchor := "middle"
		switch {
		case lx < v.Center-1:
			anchor = "end"
		case lx > v.Center+1:
			anchor = "start"
		}
		v.Axes = append(v.Axes, radarAxis{
			X: x, Y: y,
			LabelX: lx, LabelY: ly,
			Anchor: anchor,
			Label:  l.Label,
			Value:  l.Probability,
		})
		px, py := v.point(i, n, clamp(l.Probability, 0, 100))
		shape[i] = fmt.Sprintf("%.2f,%.2f", px, py)
	}
	v.Shape = strings.Join(shape, " ")
	return v
}

// point returns the SVG coordinates of value on axis i of n.
func (v radarView) point(i, n int, value float64) (x, y float64) {
	angle := -math.Pi/2 + 2*math.Pi*float64(i)/float64(n)
	r := v.Radius * value / 100
	return v.Center + r*math.Cos(angle), v.Center + r*math.Sin(angle)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
