// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package navqc

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func distances(ps []IntervalPoint) []float64 {
	ds := make([]float64, len(ps))
	for i, p := range ps {
		ds[i] = p.Distance
	}
	return ds
}

func TestResampleStraightLine(t *testing.T) {
	vs := []Vertex{{X: 0, Y: 0, Z: 10}, {X: 100, Y: 0, Z: 20}}
	ps, err := Resample(vs, 10)
	require.NoError(t, err)
	require.Len(t, ps, 11)
	for k, p := range ps {
		assert.InDelta(t, 10*float64(k), p.Distance, 1e-9)
		assert.InDelta(t, 10*float64(k), p.X, 1e-9)
		assert.InDelta(t, 10+float64(k), p.Z, 1e-9)
	}
}

func TestResampleAcrossVertices(t *testing.T) {
	// An L of 30 + 40 units
	vs := []Vertex{{X: 0, Y: 0}, {X: 30, Y: 0}, {X: 30, Y: 40}}
	ps, err := Resample(vs, 25)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 25, 50}, distances(ps))
	assert.InDelta(t, 25.0, ps[1].X, 1e-12)
	assert.InDelta(t, 30.0, ps[2].X, 1e-12)
	assert.InDelta(t, 20.0, ps[2].Y, 1e-12)
}

func TestResampleManyPointsInOneSegment(t *testing.T) {
	vs := []Vertex{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 50}}
	ps, err := Resample(vs, 5)
	require.NoError(t, err)
	assert.Len(t, ps, 11)
	for _, p := range ps[1:] {
		assert.InDelta(t, 1.0, p.X, 1e-12)
	}
}

func TestResampleSkipsZeroLengthSegments(t *testing.T) {
	vs := []Vertex{{X: 0, Y: 0}, {X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 0}, {X: 20, Y: 0}}
	ps, err := Resample(vs, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 5, 10, 15, 20}, distances(ps))
	for _, p := range ps {
		assert.False(t, math.IsNaN(p.X))
	}
}

func TestResampleRejectsBadDistance(t *testing.T) {
	for _, d := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Resample([]Vertex{{}, {X: 1}}, d)
		var ce *ConfigError
		assert.ErrorAs(t, err, &ce, "distance %g", d)
	}
}

func TestResampleShortInputs(t *testing.T) {
	ps, err := Resample(nil, 1)
	assert.NoError(t, err)
	assert.Empty(t, ps)

	ps, err = Resample([]Vertex{{X: 3, Y: 4}}, 1)
	assert.NoError(t, err)
	assert.Equal(t, []IntervalPoint{{X: 3, Y: 4}}, ps)

	// Shorter than one interval
	ps, err = Resample([]Vertex{{}, {X: 3}}, 10)
	assert.NoError(t, err)
	assert.Len(t, ps, 1)
}

func TestResampleLongTrackDoesNotDrift(t *testing.T) {
	// 10000 segments of 0.1, resampled every 1.0
	vs := make([]Vertex, 10001)
	for i := range vs {
		vs[i] = Vertex{X: 0.1 * float64(i)}
	}
	ps, err := Resample(vs, 1)
	require.NoError(t, err)
	require.Len(t, ps, 1001)
	assert.InDelta(t, 1000.0, ps[1000].X, 1e-6)
}

func TestResampleProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 30).Draw(t, "n")
		vs := make([]Vertex, n)
		for i := range vs {
			vs[i] = Vertex{
				X: rapid.Float64Range(-1000, 1000).Draw(t, "x"),
				Y: rapid.Float64Range(-1000, 1000).Draw(t, "y"),
			}
		}
		d := rapid.Float64Range(0.5, 200).Draw(t, "d")
		ps, err := Resample(vs, d)
		if !assert.NoError(t, err) {
			return
		}
		length := PathLength(vs)
		assert.GreaterOrEqual(t, len(ps), int(math.Floor((length-1e-3)/d))+1)
		assert.LessOrEqual(t, len(ps), int(math.Floor((length+1e-3)/d))+1)
		for k := 1; k < len(ps); k++ {
			assert.Greater(t, ps[k].Distance, ps[k-1].Distance)
			// Successive points are never further apart than the spacing
			assert.LessOrEqual(t, math.Hypot(ps[k].X-ps[k-1].X, ps[k].Y-ps[k-1].Y), d+1e-6)
		}
		assert.LessOrEqual(t, ps[len(ps)-1].Distance, length+1e-3)
	})
}

func TestChainage(t *testing.T) {
	vs := []Vertex{{}, {X: 3, Y: 4}, {X: 3, Y: 4}, {X: 3, Y: 10}}
	assert.Equal(t, []float64{0, 5, 5, 11}, Chainage(vs))
	st := resampleStats(vs, nil, SourceRaw, 1)
	assert.Equal(t, 11.0, st.Length)
	assert.Equal(t, 4, st.Input)
}

func TestResampleRejectsNonFinite(t *testing.T) {
	tests := []struct {
		name string
		vs   []Vertex
	}{
		{"nan x", []Vertex{{}, {X: math.NaN()}}},
		{"infinite y", []Vertex{{}, {X: 10}, {X: 10, Y: math.Inf(1)}}},
		{"nan z", []Vertex{{Z: math.NaN()}, {X: 10}}},
		{"nan first vertex", []Vertex{{X: math.NaN()}}},
		{"chainage overflow", []Vertex{{X: -math.MaxFloat64}, {X: math.MaxFloat64}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan error, 1)
			go func() {
				_, err := Resample(tt.vs, 10)
				done <- err
			}()
			select {
			case err := <-done:
				assert.ErrorIs(t, err, ErrNonFinite)
			case <-time.After(5 * time.Second):
				t.Fatal("Resample did not return")
			}
		})
	}
}
