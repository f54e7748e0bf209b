// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Pre-flight checks that survey and route coordinates are in compatible systems.
// Nothing here reprojects; the checks only look at ranges and positions.

package navqc

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dhconnelly/rtreego"
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/stat"
)

// CRSKind is a guess at the kind of coordinates in a data set
type CRSKind int

const (
	CRSUnknown CRSKind = iota
	CRSGeographic
	CRSProjected
)

var crsKindNames = []string{"unknown", "geographic", "projected"}

func (k CRSKind) String() string               { return enumName(crsKindNames, k) }
func (k CRSKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Classify reports geographic when every easting fits in [-180,180] and every
// northing in [-90,90], projected otherwise
func Classify(vs []Vertex) CRSKind {
	if len(vs) == 0 {
		return CRSUnknown
	}
	for _, v := range vs {
		if math.Abs(v.X) > GeoMaxLon || math.Abs(v.Y) > GeoMaxLat {
			return CRSProjected
		}
	}
	return CRSGeographic
}

// SanityReport is the outcome of CheckCRS
type SanityReport struct {
	Survey            CRSKind   `yaml:"survey"`
	Route             CRSKind   `yaml:"route"`
	SurveyCentroid    r2.Point  `yaml:"survey_centroid"`
	RouteCentroid     r2.Point  `yaml:"route_centroid"`
	MagnitudeRatio    float64   `yaml:"magnitude_ratio"`
	Overlap           bool      `yaml:"overlap"`
	CentroidDistance  float64   `yaml:"centroid_distance"` // Survey centroid to nearest route vertex
	NeedsConfirmation bool      `yaml:"needs_confirmation"`
	Warnings          []Warning `yaml:"-"`
}

// CheckCRS runs the independent coordinate system heuristics.
// Only the centroid distance check asks for a decision; the others are reported.
func CheckCRS(survey, route []Vertex, opt *SanityOpt) *SanityReport {
	rep := &SanityReport{Survey: Classify(survey), Route: Classify(route)}
	if len(survey) == 0 || len(route) == 0 {
		rep.Warnings = append(rep.Warnings, shortWarning(StageSanity,
			"coordinate checks need survey and route points (got %d, %d)", len(survey), len(route)))
		return rep
	}

	if rep.Survey != rep.Route {
		rep.Warnings = append(rep.Warnings, dataWarning(StageSanity, SevHard, CodeCRSClass,
			"survey looks %s but route looks %s", rep.Survey, rep.Route))
	}

	rep.SurveyCentroid = centroid(survey)
	rep.RouteCentroid = centroid(route)
	ns, nr := rep.SurveyCentroid.Norm(), rep.RouteCentroid.Norm()
	switch {
	case nr > 0:
		rep.MagnitudeRatio = ns / nr
	case ns == 0:
		rep.MagnitudeRatio = 1
	default:
		rep.MagnitudeRatio = math.Inf(1)
	}
	if rep.MagnitudeRatio < opt.RatioMin || rep.MagnitudeRatio > opt.RatioMax {
		rep.Warnings = append(rep.Warnings, dataWarning(StageSanity, SevSoft, CodeCRSMagnitude,
			"survey/route coordinate magnitude ratio %.4g outside %.4g .. %.4g", rep.MagnitudeRatio, opt.RatioMin, opt.RatioMax))
	}

	rb, sb := BoundsOf(route), BoundsOf(survey)
	size := rb.Size()
	rep.Overlap = rb.ExpandedByMargin(opt.OverlapBuffer * math.Max(size.X, size.Y)).Intersects(sb)
	if !rep.Overlap {
		rep.Warnings = append(rep.Warnings, dataWarning(StageSanity, SevWarning, CodeCRSOverlap,
			"survey extent %s does not come near route extent %s", rectString(sb), rectString(rb)))
	}

	nearest := nearestVertex(route, rep.SurveyCentroid)
	rep.CentroidDistance = nearest.R2().Sub(rep.SurveyCentroid).Norm()
	if rep.CentroidDistance > opt.MaxCentroidDistance {
		rep.NeedsConfirmation = true
		rep.Warnings = append(rep.Warnings, dataWarning(StageSanity, SevWarning, CodeCRSDistance,
			"survey centroid is %.1f from the nearest route vertex (limit %.1f)", rep.CentroidDistance, opt.MaxCentroidDistance))
	}
	return rep
}

func centroid(vs []Vertex) r2.Point {
	xs := make([]float64, len(vs))
	ys := make([]float64, len(vs))
	for i, v := range vs {
		xs[i], ys[i] = v.X, v.Y
	}
	return r2.Point{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil)}
}

func rectString(r r2.Rect) string {
	return fmt.Sprintf("[%.3f %.3f .. %.3f %.3f]", r.X.Lo, r.Y.Lo, r.X.Hi, r.Y.Hi)
}

// Route vertex stored in the R-tree
type indexedVertex struct {
	Vertex
}

// Side of the box given to point entries, the R-tree needs non-zero lengths
const pointEps = 1e-9

// Bounds implements rtreego.Spatial interface.
func (v indexedVertex) Bounds() rtreego.Rect {
	rect, _ := rtreego.NewRect(rtreego.Point{v.X, v.Y}, []float64{pointEps, pointEps})
	return rect
}

// Nearest vertex of vs to p, vs not empty
func nearestVertex(vs []Vertex, p r2.Point) Vertex {
	rt := rtreego.NewTree(2, 25, 50)
	for _, v := range vs {
		rt.Insert(indexedVertex{v})
	}
	return rt.NearestNeighbor(rtreego.Point{p.X, p.Y}).(indexedVertex).Vertex
}

//-------------------------------------------------------------------
// Decision
//-------------------------------------------------------------------

// MismatchSummary is what a decider is shown before processing continues
type MismatchSummary struct {
	Survey           CRSKind
	Route            CRSKind
	CentroidDistance float64
	Threshold        float64
	Warnings         []Warning
}

func (s MismatchSummary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "survey centroid is %.1f from the route (limit %.1f); survey %s, route %s\n",
		s.CentroidDistance, s.Threshold, s.Survey, s.Route)
	for _, w := range s.Warnings {
		fmt.Fprintf(&sb, "  %s\n", w)
	}
	return sb.String()
}

func (r *SanityReport) Summary(opt *SanityOpt) MismatchSummary {
	return MismatchSummary{
		Survey:           r.Survey,
		Route:            r.Route,
		CentroidDistance: r.CentroidDistance,
		Threshold:        opt.MaxCentroidDistance,
		Warnings:         r.Warnings,
	}
}

// MismatchDecider decides whether to continue after a likely coordinate system
// mismatch. Returning false stops the run with ErrUserAbort.
type MismatchDecider interface {
	ConfirmMismatch(ctx context.Context, s MismatchSummary) (bool, error)
}

// FixedDecider always gives the same answer
type FixedDecider bool

func (d FixedDecider) ConfirmMismatch(context.Context, MismatchSummary) (bool, error) {
	return bool(d), nil
}

// DeciderFunc adapts a function to MismatchDecider
type DeciderFunc func(ctx context.Context, s MismatchSummary) (bool, error)

func (f DeciderFunc) ConfirmMismatch(ctx context.Context, s MismatchSummary) (bool, error) {
	return f(ctx, s)
}
