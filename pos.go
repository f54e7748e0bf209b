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

	"github.com/golang/geo/r2"
)

//-------------------------------------------------------------------
// Vertex
//-------------------------------------------------------------------

// Vertex is a planar grid position with a vertical value
type Vertex struct {
	X float64 // Easting
	Y float64 // Northing
	Z float64 // Depth or height
}

// Horizontal position as an r2 vector
func (v Vertex) R2() r2.Point {
	return r2.Point{X: v.X, Y: v.Y}
}

// Horizontal distance to b
func (v Vertex) Dist(b Vertex) float64 {
	return math.Hypot(b.X-v.X, b.Y-v.Y)
}

// Linear interpolation towards b, t in [0,1]
func (v Vertex) Lerp(b Vertex, t float64) Vertex {
	return Vertex{
		X: v.X + t*(b.X-v.X),
		Y: v.Y + t*(b.Y-v.Y),
		Z: v.Z + t*(b.Z-v.Z),
	}
}

// Convert to string
func (v Vertex) String() string {
	return fmt.Sprintf("%.4f %.4f %.4f", v.X, v.Y, v.Z)
}

// Total horizontal length of a polyline
func PathLength(vs []Vertex) float64 {
	var sum float64
	for i := 1; i < len(vs); i++ {
		sum += vs[i-1].Dist(vs[i])
	}
	return sum
}

// Bounding rectangle of the horizontal positions
func BoundsOf(vs []Vertex) r2.Rect {
	r := r2.EmptyRect()
	for _, v := range vs {
		r = r.AddPoint(v.R2())
	}
	return r
}

//-------------------------------------------------------------------
// IntervalPoint
//-------------------------------------------------------------------

// IntervalPoint is a resampled position at a fixed along-track distance.
// It is derived on every run and never stored on its own.
type IntervalPoint struct {
	X        float64
	Y        float64
	Z        float64
	Distance float64 // Chainage from the first vertex
}

func (p IntervalPoint) Vertex() Vertex {
	return Vertex{X: p.X, Y: p.Y, Z: p.Z}
}

// Vertices of a resampled line
func IntervalVertices(ps []IntervalPoint) []Vertex {
	vs := make([]Vertex, len(ps))
	for i, p := range ps {
		vs[i] = p.Vertex()
	}
	return vs
}
