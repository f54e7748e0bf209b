// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Route geometry and projection of points onto it (KP along the route, DCC across it).

package navqc

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

//-------------------------------------------------------------------
// Route
//-------------------------------------------------------------------

// One straight leg of a route
type RouteSegment struct {
	StartE  float64 `yaml:"start_e"`
	StartN  float64 `yaml:"start_n"`
	EndE    float64 `yaml:"end_e"`
	EndN    float64 `yaml:"end_n"`
	StartKP float64 `yaml:"start_kp"`
	EndKP   float64 `yaml:"end_kp"`
}

func (s RouteSegment) Start() r2.Point { return r2.Point{X: s.StartE, Y: s.StartN} }
func (s RouteSegment) End() r2.Point   { return r2.Point{X: s.EndE, Y: s.EndN} }
func (s RouteSegment) Length() float64 { return s.End().Sub(s.Start()).Norm() }

// KPRange is a closed interval of KP values
type KPRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether kp lies in the range widened by tol on both sides
func (r KPRange) Contains(kp, tol float64) bool {
	return kp >= r.Min-tol && kp <= r.Max+tol
}

// Route is a contiguous polyline of segments with non-decreasing KP
type Route struct {
	segs     []RouteSegment
	declared KPRange
}

// NewRoute checks that the segments join up and that KP never decreases.
// The declared KP range defaults to the span of the segments.
func NewRoute(segs []RouteSegment) (*Route, error) {
	if len(segs) == 0 {
		return nil, fmt.Errorf("route has no segments")
	}
	for i, s := range segs {
		if !finite(s.StartE, s.StartN, s.EndE, s.EndN, s.StartKP, s.EndKP) {
			return nil, fmt.Errorf("segment %d: %w", i, ErrNonFinite)
		}
		if s.EndKP < s.StartKP {
			return nil, fmt.Errorf("segment %d: KP decreases from %g to %g", i, s.StartKP, s.EndKP)
		}
		if i == 0 {
			continue
		}
		p := segs[i-1]
		if gap := s.Start().Sub(p.End()).Norm(); gap > SegmentJoinTol {
			return nil, fmt.Errorf("segment %d does not start where segment %d ends (gap %g)", i, i-1, gap)
		}
		if s.StartKP < p.EndKP {
			return nil, fmt.Errorf("segment %d: KP %g is below the end KP %g of segment %d", i, s.StartKP, p.EndKP, i-1)
		}
	}
	return &Route{
		segs:     slices.Clone(segs),
		declared: KPRange{Min: segs[0].StartKP, Max: segs[len(segs)-1].EndKP},
	}, nil
}

// NewRouteFromVertices builds a route through vs.
// kps gives the KP of each vertex; when nil the chainage from the first vertex is used.
func NewRouteFromVertices(vs []Vertex, kps []float64) (*Route, error) {
	if len(vs) < 2 {
		return nil, fmt.Errorf("route needs at least 2 vertices, got %d", len(vs))
	}
	if kps != nil && len(kps) != len(vs) {
		return nil, fmt.Errorf("%d KP values for %d vertices", len(kps), len(vs))
	}
	if kps == nil {
		kps = Chainage(vs)
	}
	segs := make([]RouteSegment, len(vs)-1)
	for i := range segs {
		segs[i] = RouteSegment{
			StartE:  vs[i].X,
			StartN:  vs[i].Y,
			EndE:    vs[i+1].X,
			EndN:    vs[i+1].Y,
			StartKP: kps[i],
			EndKP:   kps[i+1],
		}
	}
	return NewRoute(segs)
}

// SetKPRange overrides the declared KP range of the route
func (r *Route) SetKPRange(min, max float64) error {
	if min > max {
		return fmt.Errorf("invalid KP range %g .. %g", min, max)
	}
	r.declared = KPRange{Min: min, Max: max}
	return nil
}

func (r *Route) KPRange() KPRange { return r.declared }

// Segments returns a copy of the segments
func (r *Route) Segments() []RouteSegment { return slices.Clone(r.segs) }

// Vertices returns the route as a polyline, Z left at zero
func (r *Route) Vertices() []Vertex {
	vs := make([]Vertex, 0, len(r.segs)+1)
	for _, s := range r.segs {
		vs = append(vs, Vertex{X: s.StartE, Y: s.StartN})
	}
	last := r.segs[len(r.segs)-1]
	return append(vs, Vertex{X: last.EndE, Y: last.EndN})
}

//-------------------------------------------------------------------
// RouteProjector
//-------------------------------------------------------------------

// Projection of one point onto the route
type Projection struct {
	KP       float64 `yaml:"kp"`
	DCC      float64 `yaml:"dcc"`      // Positive left of the direction of travel
	Segment  int     `yaml:"segment"`  // Index of the nearest segment
	T        float64 `yaml:"t"`        // Position along that segment, 0..1
	Distance float64 `yaml:"distance"` // Perpendicular distance, |DCC|
}

// RouteProjector computes KP and DCC against a route
type RouteProjector struct {
	route *Route
	start []r2.Point
	dir   []r2.Point
	len2  []float64
}

func NewRouteProjector(route *Route) *RouteProjector {
	n := len(route.segs)
	p := &RouteProjector{
		route: route,
		start: make([]r2.Point, n),
		dir:   make([]r2.Point, n),
		len2:  make([]float64, n),
	}
	for i, s := range route.segs {
		p.start[i] = s.Start()
		p.dir[i] = s.End().Sub(s.Start())
		p.len2[i] = p.dir[i].Dot(p.dir[i])
	}
	return p
}

func (p *RouteProjector) Route() *Route { return p.route }

// Calculate projects (x, y) onto every segment and keeps the nearest.
// The foot point never leaves its segment. On equal distances the earlier segment,
// which has the lower KP, is kept. A zero-length segment projects onto its start.
// A point that is not finite has no nearest segment: Segment is -1 and the values are NaN.
func (p *RouteProjector) Calculate(x, y float64) Projection {
	return p.calculate(x, y, ModeBoth)
}

// calculate finds the nearest segment and fills KP and DCC only as mode asks
func (p *RouteProjector) calculate(x, y float64, mode ProjectMode) Projection {
	q := r2.Point{X: x, Y: y}
	best := Projection{Segment: -1, Distance: math.Inf(1)}
	for i := range p.start {
		rel := q.Sub(p.start[i])
		t := 0.0
		if p.len2[i] > 0 {
			t = clamp(rel.Dot(p.dir[i])/p.len2[i], 0, 1)
		}
		dist := rel.Sub(p.dir[i].Mul(t)).Norm()
		if dist < best.Distance {
			best = Projection{Segment: i, T: t, Distance: dist}
		}
	}
	if best.Segment < 0 {
		nan := math.NaN()
		return Projection{KP: nan, DCC: nan, Segment: -1, T: nan, Distance: nan}
	}
	if mode.KP() {
		s := p.route.segs[best.Segment]
		best.KP = s.StartKP + best.T*(s.EndKP-s.StartKP)
	}
	if mode.DCC() {
		best.DCC = best.Distance
		if p.dir[best.Segment].Cross(q.Sub(p.start[best.Segment])) < 0 {
			best.DCC = -best.Distance
		}
	}
	return best
}

// ProjectionStats aggregates a projection pass. KP fields are left zero in DCC mode
// and DCC fields in KP mode.
type ProjectionStats struct {
	Mode      ProjectMode `yaml:"mode"`
	Count     int         `yaml:"count"`
	MinKP     float64     `yaml:"min_kp"`
	MaxKP     float64     `yaml:"max_kp"`
	MaxAbsDCC float64     `yaml:"max_abs_dcc"`
	P95AbsDCC float64     `yaml:"p95_abs_dcc"`
	Warnings  []Warning   `yaml:"-"`
}

// ProjectVertices projects every vertex. Work is split over opt.Workers goroutines;
// the result is the same as a sequential pass. Only the values opt.Mode asks for are
// computed; the others stay zero. A vertex that is not finite fails the whole call.
func (p *RouteProjector) ProjectVertices(ctx context.Context, vs []Vertex, opt *ProjectOpt) ([]Projection, *ProjectionStats, error) {
	if opt.Mode == ModeNone {
		return nil, &ProjectionStats{Mode: ModeNone}, nil
	}
	for i, v := range vs {
		if !finite(v.X, v.Y) {
			return nil, nil, fmt.Errorf("vertex %d (%g, %g): %w", i, v.X, v.Y, ErrNonFinite)
		}
	}
	ps := make([]Projection, len(vs))
	err := parallelChunks(ctx, len(vs), opt.Workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			ps[i] = p.calculate(vs[i].X, vs[i].Y, opt.Mode)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return ps, p.stats(ps, opt), nil
}

// Project writes KP and/or DCC of every fix, using the smoothed position when present
func (p *RouteProjector) Project(ctx context.Context, fixes []NavFix, opt *ProjectOpt) (*ProjectionStats, error) {
	vs := make([]Vertex, len(fixes))
	for i := range fixes {
		vs[i].X, vs[i].Y = fixes[i].Position()
	}
	ps, st, err := p.ProjectVertices(ctx, vs, opt)
	if err != nil {
		return nil, err
	}
	for i, pr := range ps {
		if opt.Mode.KP() {
			fixes[i].KP = Some(pr.KP)
		}
		if opt.Mode.DCC() {
			fixes[i].DCC = Some(pr.DCC)
		}
	}
	return st, nil
}

func (p *RouteProjector) stats(ps []Projection, opt *ProjectOpt) *ProjectionStats {
	st := &ProjectionStats{Mode: opt.Mode, Count: len(ps)}
	if len(ps) == 0 {
		return st
	}
	if opt.Mode.KP() {
		st.MinKP, st.MaxKP = math.Inf(1), math.Inf(-1)
		for _, pr := range ps {
			st.MinKP = math.Min(st.MinKP, pr.KP)
			st.MaxKP = math.Max(st.MaxKP, pr.KP)
		}
	}
	if opt.Mode.DCC() {
		dcc := make([]float64, len(ps))
		for i, pr := range ps {
			dcc[i] = pr.Distance
		}
		slices.Sort(dcc)
		st.MaxAbsDCC = dcc[len(dcc)-1]
		st.P95AbsDCC = stat.Quantile(0.95, stat.Empirical, dcc, nil)
	}

	kr := p.route.declared
	if opt.Mode.KP() && (!kr.Contains(st.MinKP, opt.KPTolerance) || !kr.Contains(st.MaxKP, opt.KPTolerance)) {
		st.Warnings = append(st.Warnings, dataWarning(StageProjection, SevWarning, CodeKPRange,
			"KP %.3f .. %.3f outside the declared range %.3f .. %.3f", st.MinKP, st.MaxKP, kr.Min, kr.Max))
	}
	if opt.Mode.DCC() && st.MaxAbsDCC > opt.MaxDCC {
		st.Warnings = append(st.Warnings, dataWarning(StageProjection, SevWarning, CodeDCCExcess,
			"max |DCC| %.3f exceeds %.3f, coordinate systems may differ", st.MaxAbsDCC, opt.MaxDCC))
	}
	return st
}
