// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package navqc

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// East 1000 then north 1000, KP following the chainage
func lRoute(t require.TestingT) *Route {
	r, err := NewRoute([]RouteSegment{
		{StartE: 0, StartN: 0, EndE: 1000, EndN: 0, StartKP: 0, EndKP: 1000},
		{StartE: 1000, StartN: 0, EndE: 1000, EndN: 1000, StartKP: 1000, EndKP: 2000},
	})
	require.NoError(t, err)
	return r
}

func TestCalculateOnAndBesideRoute(t *testing.T) {
	p := NewRouteProjector(lRoute(t))
	tests := []struct {
		name    string
		x, y    float64
		kp, dcc float64
		seg     int
	}{
		{"on the line", 500, 0, 500, 0, 0},
		{"left of the first leg", 500, 50, 500, 50, 0},
		{"right of the first leg", 500, -50, 500, -50, 0},
		{"left of the second leg", 900, 700, 1700, 100, 1},
		{"right of the second leg", 1030, 250, 1250, -30, 1},
		{"before the start", -30, 40, 0, 50, 0},
		{"past the end", 1000, 1100, 2000, 100, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr := p.Calculate(tt.x, tt.y)
			assert.InDelta(t, tt.kp, pr.KP, 1e-9)
			assert.Equal(t, tt.seg, pr.Segment)
			assert.InDelta(t, tt.dcc, pr.DCC, 1e-9)
			assert.InDelta(t, math.Abs(tt.dcc), pr.Distance, 1e-9)
		})
	}
}

func TestCalculateTieKeepsEarlierSegment(t *testing.T) {
	p := NewRouteProjector(lRoute(t))
	// Outside the corner, equally far from the end of leg 0 and the start of leg 1
	pr := p.Calculate(1100, -100)
	assert.Equal(t, 0, pr.Segment)
	assert.Equal(t, 1.0, pr.T)
	assert.InDelta(t, 1000.0, pr.KP, 1e-12)
	assert.InDelta(t, math.Hypot(100, 100), pr.Distance, 1e-9)
}

func TestCalculateZeroLengthSegment(t *testing.T) {
	r, err := NewRoute([]RouteSegment{
		{StartE: 0, StartN: 0, EndE: 0, EndN: 0, StartKP: 0, EndKP: 0},
		{StartE: 0, StartN: 0, EndE: 10, EndN: 0, StartKP: 0, EndKP: 10},
	})
	require.NoError(t, err)
	pr := NewRouteProjector(r).Calculate(-5, 3)
	assert.False(t, math.IsNaN(pr.KP))
	assert.Equal(t, 0, pr.Segment)
	assert.Equal(t, 0.0, pr.KP)
	assert.InDelta(t, math.Sqrt(34), pr.Distance, 1e-12)
}

// Straightforward nearest distance to a segment
func segDist(px, py float64, s RouteSegment) float64 {
	dx, dy := s.EndE-s.StartE, s.EndN-s.StartN
	l2 := dx*dx + dy*dy
	t := 0.0
	if l2 > 0 {
		t = math.Max(0, math.Min(1, ((px-s.StartE)*dx+(py-s.StartN)*dy)/l2))
	}
	return math.Hypot(px-(s.StartE+t*dx), py-(s.StartN+t*dy))
}

func TestCalculateMatchesBruteForce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 12).Draw(t, "n")
		vs := make([]Vertex, n)
		for i := range vs {
			vs[i] = Vertex{
				X: rapid.Float64Range(-5000, 5000).Draw(t, "x"),
				Y: rapid.Float64Range(-5000, 5000).Draw(t, "y"),
			}
		}
		r, err := NewRouteFromVertices(vs, nil)
		if !assert.NoError(t, err) {
			return
		}
		p := NewRouteProjector(r)
		px := rapid.Float64Range(-8000, 8000).Draw(t, "px")
		py := rapid.Float64Range(-8000, 8000).Draw(t, "py")
		pr := p.Calculate(px, py)

		want := math.Inf(1)
		for _, s := range r.Segments() {
			want = math.Min(want, segDist(px, py, s))
		}
		tol := 1e-7 * math.Max(1, want)
		assert.InDelta(t, want, pr.Distance, tol)
		assert.Equal(t, pr.Distance, math.Abs(pr.DCC))
		assert.InDelta(t, segDist(px, py, r.Segments()[pr.Segment]), pr.Distance, tol)
		assert.True(t, r.KPRange().Contains(pr.KP, 1e-6), "kp %g", pr.KP)
		assert.GreaterOrEqual(t, pr.T, 0.0)
		assert.LessOrEqual(t, pr.T, 1.0)
	})
}

func TestNewRouteRejects(t *testing.T) {
	tests := []struct {
		name string
		segs []RouteSegment
	}{
		{"empty", nil},
		{"kp decreasing in a segment", []RouteSegment{{EndE: 1, StartKP: 5, EndKP: 4}}},
		{"gap between segments", []RouteSegment{
			{EndE: 1, EndKP: 1},
			{StartE: 2, EndE: 3, StartKP: 1, EndKP: 2},
		}},
		{"kp going back between segments", []RouteSegment{
			{EndE: 1, EndKP: 10},
			{StartE: 1, EndE: 2, StartKP: 5, EndKP: 20},
		}},
		{"nan end point", []RouteSegment{
			{EndE: 1, EndKP: 1},
			{StartE: 1, EndE: math.NaN(), StartKP: 1, EndKP: 2},
		}},
		{"infinite kp", []RouteSegment{{EndE: 1, EndKP: math.Inf(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRoute(tt.segs)
			assert.Error(t, err)
		})
	}
}

func TestNewRouteFromVertices(t *testing.T) {
	vs := []Vertex{{X: 0, Y: 0}, {X: 3, Y: 4}, {X: 3, Y: 10}}
	r, err := NewRouteFromVertices(vs, nil)
	require.NoError(t, err)
	assert.Equal(t, KPRange{Min: 0, Max: 11}, r.KPRange())
	assert.Equal(t, vs, r.Vertices())

	r, err = NewRouteFromVertices(vs, []float64{100, 105, 111})
	require.NoError(t, err)
	assert.Equal(t, 105.0, r.Segments()[1].StartKP)

	_, err = NewRouteFromVertices(vs, []float64{1, 2})
	assert.Error(t, err)
	_, err = NewRouteFromVertices(vs[:1], nil)
	assert.Error(t, err)
	_, err = NewRouteFromVertices(vs, []float64{0, 10, 5})
	assert.Error(t, err)

	assert.Error(t, r.SetKPRange(5, 1))
	require.NoError(t, r.SetKPRange(0, 50))
	assert.Equal(t, KPRange{Min: 0, Max: 50}, r.KPRange())
}

func TestProjectModes(t *testing.T) {
	p := NewRouteProjector(lRoute(t))
	for _, mode := range []ProjectMode{ModeNone, ModeKP, ModeDCC, ModeBoth} {
		t.Run(mode.String(), func(t *testing.T) {
			fixes := makeFixes(3, func(i int, f *NavFix) { f.Easting, f.Northing = 100*float64(i+1), 20 })
			opt := NewProjectOpt()
			opt.Mode = mode
			st, err := p.Project(context.Background(), fixes, opt)
			require.NoError(t, err)
			assert.Equal(t, mode, st.Mode)
			for i := range fixes {
				assert.Equal(t, mode.KP(), fixes[i].KP.Valid)
				assert.Equal(t, mode.DCC(), fixes[i].DCC.Valid)
			}
			if mode.KP() {
				assert.InDelta(t, 300.0, fixes[2].KP.Value, 1e-9)
			}
			if mode.DCC() {
				assert.InDelta(t, 20.0, fixes[2].DCC.Value, 1e-9)
			}
		})
	}
}

func TestProjectUsesSmoothedPosition(t *testing.T) {
	p := NewRouteProjector(lRoute(t))
	fixes := makeFixes(1, func(_ int, f *NavFix) {
		f.Easting, f.Northing = 100, 100
		f.SmoothEasting, f.SmoothNorthing = Some(200), Some(-10)
	})
	_, err := p.Project(context.Background(), fixes, NewProjectOpt())
	require.NoError(t, err)
	assert.InDelta(t, 200.0, fixes[0].KP.Value, 1e-9)
	assert.InDelta(t, -10.0, fixes[0].DCC.Value, 1e-9)
}

func TestProjectionWarnings(t *testing.T) {
	r := lRoute(t)
	require.NoError(t, r.SetKPRange(100, 1900))
	p := NewRouteProjector(r)
	vs := []Vertex{{X: 50, Y: 0}, {X: 500, Y: 2500}}
	opt := NewProjectOpt()
	_, st, err := p.ProjectVertices(context.Background(), vs, opt)
	require.NoError(t, err)
	require.Len(t, st.Warnings, 2)
	assert.Equal(t, CodeKPRange, st.Warnings[0].Code)
	assert.Equal(t, CodeDCCExcess, st.Warnings[1].Code)
	assert.InDelta(t, 50.0, st.MinKP, 1e-9)
	assert.InDelta(t, math.Hypot(500, 1500), st.MaxAbsDCC, 1e-9)

	// Within tolerance, and DCC not checked in KP mode
	opt.Mode = ModeKP
	opt.KPTolerance = 150
	_, st, err = p.ProjectVertices(context.Background(), vs, opt)
	require.NoError(t, err)
	assert.Empty(t, st.Warnings)
}

func TestProjectVerticesParallelMatchesSequential(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		vs := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) Vertex {
			return Vertex{
				X: rapid.Float64Range(-500, 1500).Draw(t, "x"),
				Y: rapid.Float64Range(-500, 1500).Draw(t, "y"),
			}
		}), 0, 300).Draw(t, "vs")
		p := NewRouteProjector(lRoute(t))
		seq := NewProjectOpt()
		seq.Workers = 1
		par := NewProjectOpt()
		par.Workers = rapid.IntRange(2, 16).Draw(t, "workers")
		a, sa, err := p.ProjectVertices(context.Background(), vs, seq)
		require.NoError(t, err)
		b, sb, err := p.ProjectVertices(context.Background(), vs, par)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Equal(t, sa, sb)
	})
}

func TestProjectNoneReturnsNothing(t *testing.T) {
	opt := NewProjectOpt()
	opt.Mode = ModeNone
	ps, st, err := NewRouteProjector(lRoute(t)).ProjectVertices(context.Background(), []Vertex{{X: 1}}, opt)
	require.NoError(t, err)
	assert.Nil(t, ps)
	assert.Equal(t, 0, st.Count)
}

func TestCalculateNonFinitePoint(t *testing.T) {
	p := NewRouteProjector(lRoute(t))
	for _, q := range [][2]float64{{math.NaN(), 0}, {0, math.Inf(1)}, {math.Inf(-1), math.NaN()}} {
		pr := p.Calculate(q[0], q[1])
		assert.Equal(t, -1, pr.Segment)
		assert.True(t, math.IsNaN(pr.KP))
		assert.True(t, math.IsNaN(pr.DCC))
	}
}

func TestProjectVerticesRejectsNonFinite(t *testing.T) {
	p := NewRouteProjector(lRoute(t))
	vs := make([]Vertex, 100)
	for i := range vs {
		vs[i] = Vertex{X: float64(i), Y: 10}
	}
	vs[57].X = math.NaN()
	opt := NewProjectOpt()
	opt.Workers = 4
	_, _, err := p.ProjectVertices(context.Background(), vs, opt)
	assert.ErrorIs(t, err, ErrNonFinite)
	assert.ErrorContains(t, err, "vertex 57")
}

func TestProjectModeSkipsUnusedValues(t *testing.T) {
	p := NewRouteProjector(lRoute(t))
	vs := []Vertex{{X: 100, Y: 20}, {X: 300, Y: -40}}

	opt := NewProjectOpt()
	opt.Mode = ModeKP
	ps, st, err := p.ProjectVertices(context.Background(), vs, opt)
	require.NoError(t, err)
	assert.InDelta(t, 300.0, ps[1].KP, 1e-9)
	assert.Zero(t, ps[1].DCC)
	assert.InDelta(t, 100.0, st.MinKP, 1e-9)
	assert.Zero(t, st.MaxAbsDCC)
	assert.Zero(t, st.P95AbsDCC)

	opt.Mode = ModeDCC
	ps, st, err = p.ProjectVertices(context.Background(), vs, opt)
	require.NoError(t, err)
	assert.Zero(t, ps[1].KP)
	assert.InDelta(t, -40.0, ps[1].DCC, 1e-9)
	assert.Zero(t, st.MinKP)
	assert.Zero(t, st.MaxKP)
	assert.InDelta(t, 40.0, st.MaxAbsDCC, 1e-9)
}
