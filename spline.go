// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.15
//

// Re-fitting and densification of track geometry with a selectable spline.

package navqc

import (
	"context"
	"fmt"

	"golang.org/x/exp/slices"
)

// SplineStats describes one spline fit
type SplineStats struct {
	Algorithm SplineAlgorithm `yaml:"algorithm"`
	Source    GeometrySource  `yaml:"source"`
	Tension   float64         `yaml:"tension"`
	Input     int             `yaml:"input"`
	Output    int             `yaml:"output"`
	Dropped   int             `yaml:"dropped,omitempty"` // Repeated vertices removed before fitting
	Length    float64         `yaml:"length"`            // Horizontal length of the output polyline
}

// SplineResult is the fitted polyline
type SplineResult struct {
	Vertices []Vertex
	Stats    SplineStats
	Warnings []Warning
}

// FitSpline fits the configured curve through vs and samples it at
// max(len(vs) x Multiplier, MinOutput) points of uniform parameter spacing.
// The first and last samples are the first and last input vertices.
// Fewer than 2 vertices give an empty result and a warning.
func FitSpline(ctx context.Context, vs []Vertex, opt *SplineOpt) (*SplineResult, error) {
	o := *opt
	ws, err := o.Validate()
	if err != nil {
		return nil, err
	}
	res := &SplineResult{
		Warnings: ws,
		Stats:    SplineStats{Algorithm: o.Algorithm, Source: o.Source, Tension: o.Tension, Input: len(vs)},
	}
	if len(vs) < 2 {
		res.Warnings = append(res.Warnings, shortWarning(StageSpline, "%d vertices, at least 2 needed", len(vs)))
		return res, nil
	}

	pts := vs
	if o.Algorithm == NaturalCubic || o.Algorithm == PolylineFit {
		pts = dropRepeats(vs)
		if d := len(vs) - len(pts); d > 0 {
			res.Stats.Dropped = d
			res.Warnings = append(res.Warnings, dataWarning(StageSpline, SevInfo, CodeDuplicates,
				"%d repeated vertices dropped before fitting", d))
		}
		if len(pts) < 2 {
			res.Warnings = append(res.Warnings, shortWarning(StageSpline, "all %d vertices coincide", len(vs)))
			return res, nil
		}
	}

	c, err := newCurve(o.Algorithm, pts, o.Tension)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.Algorithm, err)
	}

	m := max(len(vs)*o.Multiplier, o.MinOutput)
	out := make([]Vertex, m)
	err = parallelChunks(ctx, m, o.Workers, func(lo, hi int) {
		for k := lo; k < hi; k++ {
			out[k] = c.at(float64(k) / float64(m-1))
		}
	})
	if err != nil {
		return nil, err
	}
	out[0], out[m-1] = vs[0], vs[len(vs)-1]

	res.Vertices = out
	res.Stats.Output = m
	res.Stats.Length = PathLength(out)
	return res, nil
}

// Remove consecutive vertices at the same horizontal position
func dropRepeats(vs []Vertex) []Vertex {
	out := make([]Vertex, 0, len(vs))
	for i, v := range vs {
		if i > 0 && v.Dist(out[len(out)-1]) == 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// curve is a parametric curve through (or near) the vertices, s in [0,1]
type curve interface {
	at(s float64) Vertex
}

func newCurve(alg SplineAlgorithm, vs []Vertex, tension float64) (curve, error) {
	switch alg {
	case CatmullRom:
		return newCardinal(vs, tension), nil
	case NaturalCubic:
		return newNaturalCubic(vs), nil
	case BSpline:
		return newBSpline(vs), nil
	case PolylineFit:
		return newQuadFit(vs)
	}
	return nil, fmt.Errorf("unknown algorithm %d", int(alg))
}

// Split s in [0,1] uniformly over nseg spans into span index and local parameter
func span(s float64, nseg int) (int, float64) {
	u := clamp(s, 0, 1) * float64(nseg)
	i := min(int(u), nseg-1)
	return i, u - float64(i)
}

//-------------------------------------------------------------------
// Catmull-Rom (cardinal)
//-------------------------------------------------------------------

type cardinal struct {
	p []Vertex // Vertices with one extrapolated point at each end
	k float64  // Tangent scale, 1 for Catmull-Rom, 0 for straight lines
}

func newCardinal(vs []Vertex, tension float64) *cardinal {
	n := len(vs)
	p := make([]Vertex, 0, n+2)
	p = append(p, vs[0].Lerp(vs[1], -1))
	p = append(p, vs...)
	p = append(p, vs[n-1].Lerp(vs[n-2], -1))
	return &cardinal{p: p, k: 1 - tension/MaxTension}
}

func (c *cardinal) at(s float64) Vertex {
	i, t := span(s, len(c.p)-3)
	p0, p1, p2, p3 := c.p[i], c.p[i+1], c.p[i+2], c.p[i+3]
	t2, t3 := t*t, t*t*t
	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2
	f := func(a0, a1, a2, a3 float64) float64 {
		m1 := c.k * (a2 - a0) / 2
		m2 := c.k * (a3 - a1) / 2
		return h00*a1 + h10*m1 + h01*a2 + h11*m2
	}
	return Vertex{
		X: f(p0.X, p1.X, p2.X, p3.X),
		Y: f(p0.Y, p1.Y, p2.Y, p3.Y),
		Z: f(p0.Z, p1.Z, p2.Z, p3.Z),
	}
}

//-------------------------------------------------------------------
// Natural cubic spline over chord length
//-------------------------------------------------------------------

type naturalCubic struct {
	s      []float64    // Chord length at each knot
	y      [3][]float64 // X, Y, Z at each knot
	m      [3][]float64 // Second derivatives at each knot
	length float64
}

func newNaturalCubic(vs []Vertex) *naturalCubic {
	n := len(vs)
	c := &naturalCubic{s: make([]float64, n)}
	for i := 1; i < n; i++ {
		c.s[i] = c.s[i-1] + vs[i-1].Dist(vs[i])
	}
	c.length = c.s[n-1]
	for a := range 3 {
		c.y[a] = make([]float64, n)
		for i, v := range vs {
			c.y[a][i] = [3]float64{v.X, v.Y, v.Z}[a]
		}
		c.m[a] = naturalSecondDerivs(c.s, c.y[a])
	}
	return c
}

// Second derivatives of the natural spline through (s[i], y[i]), zero at both ends.
// The interior equations form a symmetric diagonally dominant tridiagonal system.
func naturalSecondDerivs(s, y []float64) []float64 {
	n := len(s)
	m := make([]float64, n)
	if n < 3 {
		return m
	}
	k := n - 2
	sub := make([]float64, k)
	diag := make([]float64, k)
	sup := make([]float64, k)
	rhs := make([]float64, k)
	for j := range k {
		i := j + 1
		h0, h1 := s[i]-s[i-1], s[i+1]-s[i]
		sub[j], diag[j], sup[j] = h0, 2*(h0+h1), h1
		rhs[j] = 6 * ((y[i+1]-y[i])/h1 - (y[i]-y[i-1])/h0)
	}
	copy(m[1:n-1], solveTridiag(sub, diag, sup, rhs))
	return m
}

// Thomas algorithm. sub[0] and sup[k-1] are ignored.
func solveTridiag(sub, diag, sup, rhs []float64) []float64 {
	k := len(diag)
	c := make([]float64, k)
	d := make([]float64, k)
	c[0] = sup[0] / diag[0]
	d[0] = rhs[0] / diag[0]
	for i := 1; i < k; i++ {
		w := diag[i] - sub[i]*c[i-1]
		c[i] = sup[i] / w
		d[i] = (rhs[i] - sub[i]*d[i-1]) / w
	}
	x := make([]float64, k)
	x[k-1] = d[k-1]
	for i := k - 2; i >= 0; i-- {
		x[i] = d[i] - c[i]*x[i+1]
	}
	return x
}

func (c *naturalCubic) at(s float64) Vertex {
	u := clamp(s, 0, 1) * c.length
	k, _ := slices.BinarySearch(c.s, u)
	i := clamp(k-1, 0, len(c.s)-2)
	h := c.s[i+1] - c.s[i]
	a := (c.s[i+1] - u) / h
	b := (u - c.s[i]) / h
	var out [3]float64
	for ax := range 3 {
		y, m := c.y[ax], c.m[ax]
		out[ax] = a*y[i] + b*y[i+1] + ((a*a*a-a)*m[i]+(b*b*b-b)*m[i+1])*h*h/6
	}
	return Vertex{X: out[0], Y: out[1], Z: out[2]}
}

//-------------------------------------------------------------------
// Uniform cubic B-spline
//-------------------------------------------------------------------

type bspline struct {
	p []Vertex // Control points, end points tripled
}

func newBSpline(vs []Vertex) *bspline {
	n := len(vs)
	p := make([]Vertex, 0, n+4)
	p = append(p, vs[0], vs[0])
	p = append(p, vs...)
	p = append(p, vs[n-1], vs[n-1])
	return &bspline{p: p}
}

func (b *bspline) at(s float64) Vertex {
	i, t := span(s, len(b.p)-3)
	t2, t3 := t*t, t*t*t
	w0 := (1 - 3*t + 3*t2 - t3) / 6
	w1 := (4 - 6*t2 + 3*t3) / 6
	w2 := (1 + 3*t + 3*t2 - 3*t3) / 6
	w3 := t3 / 6
	p0, p1, p2, p3 := b.p[i], b.p[i+1], b.p[i+2], b.p[i+3]
	return Vertex{
		X: w0*p0.X + w1*p1.X + w2*p2.X + w3*p3.X,
		Y: w0*p0.Y + w1*p1.Y + w2*p2.Y + w3*p3.Y,
		Z: w0*p0.Z + w1*p1.Z + w2*p2.Z + w3*p3.Z,
	}
}

//-------------------------------------------------------------------
// Polyline-edit-fit: local quadratics through vertex triples
//-------------------------------------------------------------------

// One quadratic per segment, parametrized by chord length scaled to the triple
type quadSeg struct {
	u0, u1 float64       // Parameter of the segment ends
	c      [3][3]float64 // Coefficients per axis
}

type quadFit struct {
	vs   []Vertex
	segs []quadSeg
}

// Segment i is fitted through vertices i..i+2, the last one through n-3..n-1.
// Neighbouring quadratics meet at the vertices but their tangents need not agree.
func newQuadFit(vs []Vertex) (*quadFit, error) {
	q := &quadFit{vs: vs}
	n := len(vs)
	if n < 3 {
		return q, nil
	}
	q.segs = make([]quadSeg, n-1)
	for i := range q.segs {
		j := min(i, n-3) // First vertex of the triple
		d1 := vs[j].Dist(vs[j+1])
		d2 := vs[j+1].Dist(vs[j+2])
		us := []float64{0, d1 / (d1 + d2), 1}
		var seg quadSeg
		seg.u0, seg.u1 = us[i-j], us[i-j+1]
		for a := range 3 {
			ys := make([]float64, 3)
			for k := range 3 {
				v := vs[j+k]
				ys[k] = [3]float64{v.X, v.Y, v.Z}[a]
			}
			c, err := fitPoly(us, ys, 2)
			if err != nil {
				return nil, fmt.Errorf("segment %d: %w", i, err)
			}
			copy(seg.c[a][:], c)
		}
		q.segs[i] = seg
	}
	return q, nil
}

func (q *quadFit) at(s float64) Vertex {
	i, t := span(s, len(q.vs)-1)
	if q.segs == nil {
		return q.vs[i].Lerp(q.vs[i+1], t)
	}
	seg := q.segs[i]
	u := seg.u0 + t*(seg.u1-seg.u0)
	return Vertex{
		X: evalPoly(seg.c[0][:], u),
		Y: evalPoly(seg.c[1][:], u),
		Z: evalPoly(seg.c[2][:], u),
	}
}
