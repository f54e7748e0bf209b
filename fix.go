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
	"strings"
	"time"

	"golang.org/x/exp/slices"
)

// OptFloat is a float that may be absent. The zero value is absent, which keeps
// "the sensor did not report this" apart from a reported zero.
type OptFloat struct {
	Value float64
	Valid bool
}

// Some returns a present value
func Some(v float64) OptFloat {
	return OptFloat{Value: v, Valid: true}
}

// Get returns the value and whether it is present
func (o OptFloat) Get() (float64, bool) {
	return o.Value, o.Valid
}

// Or returns the value, or def when absent
func (o OptFloat) Or(def float64) float64 {
	if o.Valid {
		return o.Value
	}
	return def
}

func (o OptFloat) String() string {
	if !o.Valid {
		return "-"
	}
	return fmt.Sprintf("%.3f", o.Value)
}

// Structure to store one navigation fix.
// Raw fields come from the logger; the remaining fields are written once per run
// by the stage that owns them and stay absent until that stage has run.
type NavFix struct {
	Time     time.Time // Fix time
	Easting  float64   // Raw easting
	Northing float64   // Raw northing
	Depth    OptFloat  // Raw depth (positive down)
	Altitude OptFloat  // Raw altitude
	Heading  OptFloat  // Heading [deg]
	Record   int       // Record number in the source file

	// Smoothing stage
	SmoothEasting  OptFloat
	SmoothNorthing OptFloat
	SmoothDepth    OptFloat
	SmoothAltitude OptFloat

	// Tide stage
	Tide OptFloat // Tide height applied
	Z    OptFloat // Tide corrected depth

	// Projection stage
	KP  OptFloat // Along-route position
	DCC OptFloat // Signed cross-route offset
}

// Position returns the smoothed position when available, otherwise the raw one
func (f *NavFix) Position() (e, n float64) {
	if f.SmoothEasting.Valid && f.SmoothNorthing.Valid {
		return f.SmoothEasting.Value, f.SmoothNorthing.Value
	}
	return f.Easting, f.Northing
}

// WorkingDepth returns the smoothed depth when available, otherwise the raw one
func (f *NavFix) WorkingDepth() OptFloat {
	if f.SmoothDepth.Valid {
		return f.SmoothDepth
	}
	return f.Depth
}

// CloneFixes returns an independent copy of fixes.
// NavFix holds no references, so a shallow slice copy never aliases the source.
func CloneFixes(fixes []NavFix) []NavFix {
	if fixes == nil {
		return nil
	}
	return slices.Clone(fixes)
}

// TimeSpan returns the first and last fix times, ignoring zero times
func TimeSpan(fixes []NavFix) (start, end time.Time, ok bool) {
	for i := range fixes {
		t := fixes[i].Time
		if t.IsZero() {
			continue
		}
		if !ok || t.Before(start) {
			start = t
		}
		if !ok || t.After(end) {
			end = t
		}
		ok = true
	}
	return
}

// FixVertices converts fixes into vertices.
// smoothed selects the smoothed position; Z is taken from the corrected depth,
// then the working depth, and gaps are bridged linearly between neighbours.
func FixVertices(fixes []NavFix, smoothed bool) []Vertex {
	vs := make([]Vertex, len(fixes))
	zs := make([]OptFloat, len(fixes))
	for i := range fixes {
		f := &fixes[i]
		if smoothed {
			vs[i].X, vs[i].Y = f.Position()
		} else {
			vs[i].X, vs[i].Y = f.Easting, f.Northing
		}
		if f.Z.Valid {
			zs[i] = f.Z
		} else {
			zs[i] = f.WorkingDepth()
		}
	}
	fillZ(vs, zs)
	return vs
}

// Bridge absent Z values by linear interpolation over the index, holding the
// nearest valid value at the ends. With no valid value at all Z stays zero.
func fillZ(vs []Vertex, zs []OptFloat) {
	prev := -1
	for i := range zs {
		if !zs[i].Valid {
			continue
		}
		vs[i].Z = zs[i].Value
		if prev < 0 {
			for j := 0; j < i; j++ {
				vs[j].Z = zs[i].Value
			}
		} else {
			for j := prev + 1; j < i; j++ {
				t := float64(j-prev) / float64(i-prev)
				vs[j].Z = zs[prev].Value + t*(zs[i].Value-zs[prev].Value)
			}
		}
		prev = i
	}
	if prev >= 0 {
		for j := prev + 1; j < len(zs); j++ {
			vs[j].Z = zs[prev].Value
		}
	}
}

// FixesSummary returns a short overview of a fix collection
func FixesSummary(fixes []NavFix) string {
	if len(fixes) == 0 {
		return "NO DATA"
	}
	var sb strings.Builder
	minE, maxE := math.Inf(1), math.Inf(-1)
	minN, maxN := math.Inf(1), math.Inf(-1)
	nd, na := 0, 0
	for i := range fixes {
		f := &fixes[i]
		minE = math.Min(minE, f.Easting)
		maxE = math.Max(maxE, f.Easting)
		minN = math.Min(minN, f.Northing)
		maxN = math.Max(maxN, f.Northing)
		if f.Depth.Valid {
			nd++
		}
		if f.Altitude.Valid {
			na++
		}
	}
	fmt.Fprintf(&sb, "fixes: %d (depth %d, altitude %d)\n", len(fixes), nd, na)
	fmt.Fprintf(&sb, "E: %.3f .. %.3f\n", minE, maxE)
	fmt.Fprintf(&sb, "N: %.3f .. %.3f\n", minN, maxN)
	if s, e, ok := TimeSpan(fixes); ok {
		fmt.Fprintf(&sb, "time: %s .. %s\n", s.UTC().Format(time.RFC3339), e.UTC().Format(time.RFC3339))
	}
	return sb.String()
}

// CheckFixes fails on the first fix holding a NaN or infinite value
func CheckFixes(fixes []NavFix) error {
	for i := range fixes {
		f := &fixes[i]
		if !finite(f.Easting, f.Northing, f.Depth.Value, f.Altitude.Value, f.Heading.Value) {
			return fmt.Errorf("fix %d (record %d): %w", i, f.Record, ErrNonFinite)
		}
	}
	return nil
}
