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

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func codesOf(ws []Warning) []string {
	cs := make([]string, len(ws))
	for i, w := range ws {
		cs[i] = w.Code
	}
	return cs
}

// Straight route along northing 4000000 from easting 500000
func gridRoute(n int, step float64) []Vertex {
	vs := make([]Vertex, n)
	for i := range vs {
		vs[i] = Vertex{X: 500000 + step*float64(i), Y: 4000000}
	}
	return vs
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		vs   []Vertex
		want CRSKind
	}{
		{"empty", nil, CRSUnknown},
		{"degrees", []Vertex{{X: 139.7, Y: 35.6}, {X: -179.9, Y: -89}}, CRSGeographic},
		{"on the bounds", []Vertex{{X: 180, Y: 90}}, CRSGeographic},
		{"utm", []Vertex{{X: 500000, Y: 4000000}}, CRSProjected},
		{"one projected point", []Vertex{{X: 1, Y: 1}, {X: 1, Y: 91}}, CRSProjected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.vs))
		})
	}
}

func TestCheckCRSProjectedAgainstDegrees(t *testing.T) {
	survey := []Vertex{{X: 500000, Y: 4000000}, {X: 500010, Y: 4000010}}
	route := []Vertex{{X: 0.1, Y: 0.1}, {X: 0.2, Y: 0.2}}
	rep := CheckCRS(survey, route, NewSanityOpt())

	assert.Equal(t, CRSProjected, rep.Survey)
	assert.Equal(t, CRSGeographic, rep.Route)
	require.NotEmpty(t, rep.Warnings)
	assert.Equal(t, CodeCRSClass, rep.Warnings[0].Code)
	assert.Equal(t, SevHard, rep.Warnings[0].Severity)
	assert.Equal(t, []string{CodeCRSClass, CodeCRSMagnitude, CodeCRSOverlap, CodeCRSDistance}, codesOf(rep.Warnings))
	assert.False(t, rep.Overlap)
	assert.True(t, rep.NeedsConfirmation)
	assert.Greater(t, rep.MagnitudeRatio, 1e6)
}

func TestCheckCRSCompatible(t *testing.T) {
	route := gridRoute(11, 100)
	survey := make([]Vertex, 50)
	for i := range survey {
		survey[i] = Vertex{X: 500000 + 20*float64(i), Y: 4000000 + 3*math.Sin(float64(i))}
	}
	rep := CheckCRS(survey, route, NewSanityOpt())
	assert.Empty(t, rep.Warnings)
	assert.True(t, rep.Overlap)
	assert.False(t, rep.NeedsConfirmation)
	assert.Equal(t, CRSProjected, rep.Survey)
	assert.InDelta(t, 1.0, rep.MagnitudeRatio, 1e-3)
	// Survey centroid is near easting 500490, the nearest vertex is 500500
	assert.Less(t, rep.CentroidDistance, 20.0)
}

func TestCheckCRSFarButOverlapping(t *testing.T) {
	route := gridRoute(11, 100)
	survey := []Vertex{{X: 500500, Y: 4002000}, {X: 500510, Y: 4002000}}
	rep := CheckCRS(survey, route, NewSanityOpt())
	assert.Equal(t, []string{CodeCRSDistance}, codesOf(rep.Warnings))
	assert.True(t, rep.NeedsConfirmation)
	assert.InDelta(t, math.Hypot(5, 2000), rep.CentroidDistance, 1e-6)

	opt := NewSanityOpt()
	opt.MaxCentroidDistance = 5000
	rep = CheckCRS(survey, route, opt)
	assert.Empty(t, rep.Warnings)
	assert.False(t, rep.NeedsConfirmation)
}

func TestCheckCRSNeedsBothSets(t *testing.T) {
	for _, tc := range [][2][]Vertex{{nil, gridRoute(2, 1)}, {gridRoute(2, 1), nil}} {
		rep := CheckCRS(tc[0], tc[1], NewSanityOpt())
		require.Len(t, rep.Warnings, 1)
		assert.Equal(t, InsufficientData, rep.Warnings[0].Kind)
		assert.False(t, rep.NeedsConfirmation)
	}
}

func TestCheckCRSOriginCentroids(t *testing.T) {
	// Both sets centred on the origin do not divide by zero
	vs := []Vertex{{X: -1, Y: -1}, {X: 1, Y: 1}}
	rep := CheckCRS(vs, vs, NewSanityOpt())
	assert.Equal(t, 1.0, rep.MagnitudeRatio)
	assert.Empty(t, rep.Warnings)
}

func TestNearestVertexMatchesBruteForce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 200).Draw(t, "n")
		vs := make([]Vertex, n)
		for i := range vs {
			vs[i] = Vertex{
				X: rapid.Float64Range(-1e4, 1e4).Draw(t, "x"),
				Y: rapid.Float64Range(-1e4, 1e4).Draw(t, "y"),
			}
		}
		p := r2.Point{
			X: rapid.Float64Range(-2e4, 2e4).Draw(t, "px"),
			Y: rapid.Float64Range(-2e4, 2e4).Draw(t, "py"),
		}
		want := math.Inf(1)
		for _, v := range vs {
			want = math.Min(want, v.R2().Sub(p).Norm())
		}
		got := nearestVertex(vs, p).R2().Sub(p).Norm()
		assert.InDelta(t, want, got, 1e-6)
	})
}

func TestMismatchSummary(t *testing.T) {
	route := gridRoute(3, 10)
	survey := []Vertex{{X: 510000, Y: 4000000}}
	opt := NewSanityOpt()
	rep := CheckCRS(survey, route, opt)
	s := rep.Summary(opt)
	assert.Equal(t, 500.0, s.Threshold)
	assert.Equal(t, rep.Warnings, s.Warnings)
	assert.Contains(t, s.String(), "limit 500.0")
	assert.Contains(t, s.String(), CodeCRSDistance)
}

func TestDeciders(t *testing.T) {
	ctx := context.Background()
	ok, err := FixedDecider(true).ConfirmMismatch(ctx, MismatchSummary{})
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, _ = FixedDecider(false).ConfirmMismatch(ctx, MismatchSummary{})
	assert.False(t, ok)

	var seen MismatchSummary
	d := DeciderFunc(func(_ context.Context, s MismatchSummary) (bool, error) {
		seen = s
		return true, nil
	})
	ok, err = d.ConfirmMismatch(ctx, MismatchSummary{CentroidDistance: 42})
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42.0, seen.CentroidDistance)
}
