// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package navqc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// IntervalStats describes one resampling run
type IntervalStats struct {
	Source   GeometrySource `yaml:"source"`
	Distance float64        `yaml:"distance"`
	Input    int            `yaml:"input"`
	Output   int            `yaml:"output"`
	Length   float64        `yaml:"length"` // Along-track length of the input
}

// Resample walks the polyline vs and emits a point every d units of chainage,
// starting with the first vertex at 0. X, Y and Z are interpolated linearly.
// Several points may fall in one long segment; zero-length segments are skipped.
// A vertex that is not finite is an error wrapping ErrNonFinite.
func Resample(vs []Vertex, d float64) ([]IntervalPoint, error) {
	if !(d > 0) || math.IsInf(d, 1) {
		return nil, configErr("interval.distance", "must be positive and finite, got %g", d)
	}
	if len(vs) == 0 {
		return nil, nil
	}
	for i, v := range vs {
		if !finite(v.X, v.Y, v.Z) {
			return nil, fmt.Errorf("vertex %d (%g, %g, %g): %w", i, v.X, v.Y, v.Z, ErrNonFinite)
		}
	}
	out := []IntervalPoint{{X: vs[0].X, Y: vs[0].Y, Z: vs[0].Z, Distance: 0}}

	// Targets are k*d rather than a running sum of d, and the chainage is
	// accumulated with compensation, so long tracks do not drift.
	var chain neumaier
	k := 1
	for i := 1; i < len(vs); i++ {
		a, b := vs[i-1], vs[i]
		l := a.Dist(b)
		if l == 0 {
			continue
		}
		start := chain.value()
		chain.add(l)
		end := chain.value()
		if !finite(l, end) {
			return nil, fmt.Errorf("chainage overflows at vertex %d: %w", i, ErrNonFinite)
		}
		tol := 1e-9 * math.Max(1, end)
		for {
			target := float64(k) * d
			if target > end+tol {
				break
			}
			v := a.Lerp(b, clamp((target-start)/l, 0, 1))
			out = append(out, IntervalPoint{X: v.X, Y: v.Y, Z: v.Z, Distance: target})
			k++
		}
	}
	return out, nil
}

// Chainage of every vertex of vs
func Chainage(vs []Vertex) []float64 {
	out := make([]float64, len(vs))
	var chain neumaier
	for i := 1; i < len(vs); i++ {
		chain.add(vs[i-1].Dist(vs[i]))
		out[i] = chain.value()
	}
	return out
}

func resampleStats(vs []Vertex, pts []IntervalPoint, src GeometrySource, d float64) *IntervalStats {
	ls := make([]float64, max(len(vs)-1, 0))
	for i := range ls {
		ls[i] = vs[i].Dist(vs[i+1])
	}
	return &IntervalStats{
		Source:   src,
		Distance: d,
		Input:    len(vs),
		Output:   len(pts),
		Length:   floats.SumCompensated(ls),
	}
}

// Running compensated (Kahan-Babuska-Neumaier) sum
type neumaier struct {
	sum, c float64
}

func (s *neumaier) add(x float64) {
	t := s.sum + x
	if math.Abs(s.sum) >= math.Abs(x) {
		s.c += (s.sum - t) + x
	} else {
		s.c += (x - t) + s.sum
	}
	s.sum = t
}

func (s *neumaier) value() float64 {
	return s.sum + s.c
}
