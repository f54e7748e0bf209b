// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// KML/KMZ overview of a run: route, track coloured by |DCC|, spline and interval points.
// Grid coordinates are converted from UTM for display only.

package main

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"strings"

	"github.com/mazznoer/colorgrad"
	"github.com/tzneal/coordconv"
	"github.com/twpayne/go-kml"
	"github.com/twpayne/go-kmz"

	m "github.com/mkhts/navqc"
)

// Number of colour bands of the track
const numBands = 10

// Converts grid positions to longitude/latitude
type lonLatFunc func(e, n float64) (kml.Coordinate, error)

// Coordinates already geographic are passed through; otherwise a UTM zone is needed
func newLonLat(in m.Input, zone int, south bool) (lonLatFunc, error) {
	vs := m.FixVertices(in.Fixes, false)
	if m.Classify(vs) == m.CRSGeographic {
		return func(e, n float64) (kml.Coordinate, error) {
			return kml.Coordinate{Lon: e, Lat: n}, nil
		}, nil
	}
	if zone == 0 {
		return nil, fmt.Errorf("grid coordinates need --utm-zone")
	}
	hemi := coordconv.HemisphereNorth
	if south {
		hemi = coordconv.HemisphereSouth
	}
	return func(e, n float64) (kml.Coordinate, error) {
		ll, err := coordconv.DefaultUTMConverter.ConvertToGeodetic(coordconv.UTMCoord{
			Zone:       zone,
			Hemisphere: hemi,
			Easting:    e,
			Northing:   n,
		})
		if err != nil {
			return kml.Coordinate{}, err
		}
		return kml.Coordinate{Lon: ll.Lng.Degrees(), Lat: ll.Lat.Degrees()}, nil
	}, nil
}

func coordinates(vs []m.Vertex, lonLat lonLatFunc) ([]kml.Coordinate, error) {
	cs := make([]kml.Coordinate, len(vs))
	for i, v := range vs {
		c, err := lonLat(v.X, v.Y)
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		cs[i] = c
	}
	return cs, nil
}

// Colour of band b, green (on line) to red (far off)
func bandColour(grad colorgrad.Gradient, b int) color.Color {
	r, g, bl, a := grad.At(1 - float64(b)/float64(numBands-1)).RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: uint8(a >> 8)}
}

func bandStyle(b int) string {
	return fmt.Sprintf("dcc%d", b)
}

// Split the track into runs of equal |DCC| band
func trackRuns(fixes []m.NavFix, maxDCC float64) (runs [][]m.Vertex, bands []int) {
	vs := m.FixVertices(fixes, true)
	band := func(f *m.NavFix) int {
		d, ok := f.DCC.Get()
		if !ok || maxDCC <= 0 {
			return 0
		}
		return min(int(math.Abs(d)/maxDCC*numBands), numBands-1)
	}
	for i := range vs {
		b := band(&fixes[i])
		if len(runs) == 0 || bands[len(bands)-1] != b {
			if len(runs) > 0 {
				// Share the vertex so the line has no gaps
				last := runs[len(runs)-1]
				runs = append(runs, []m.Vertex{last[len(last)-1]})
			} else {
				runs = append(runs, nil)
			}
			bands = append(bands, b)
		}
		runs[len(runs)-1] = append(runs[len(runs)-1], vs[i])
	}
	return runs, bands
}

func writeKML(fn string, in m.Input, out *m.Output, zone int, south bool) error {
	lonLat, err := newLonLat(in, zone, south)
	if err != nil {
		return err
	}
	grad := colorgrad.RdYlGn()

	els := []kml.Element{kml.Name("navqc " + out.Report.RunID)}
	for b := range numBands {
		els = append(els, kml.SharedStyle(bandStyle(b),
			kml.LineStyle(kml.Color(bandColour(grad, b)), kml.Width(3))))
	}
	els = append(els,
		kml.SharedStyle("route", kml.LineStyle(kml.Color(color.RGBA{R: 0, G: 0x80, B: 0xff, A: 0xff}), kml.Width(2))),
		kml.SharedStyle("spline", kml.LineStyle(kml.Color(color.RGBA{R: 0xff, G: 0, B: 0xff, A: 0xff}), kml.Width(1))),
	)

	if in.Route != nil {
		cs, err := coordinates(in.Route.Vertices(), lonLat)
		if err != nil {
			return fmt.Errorf("route: %w", err)
		}
		els = append(els, kml.Placemark(kml.Name("route"), kml.StyleURL("#route"),
			kml.LineString(kml.Coordinates(cs...))))
	}

	maxDCC := 0.0
	if out.Report.Projection != nil {
		maxDCC = out.Report.Projection.MaxAbsDCC
	}
	runs, bands := trackRuns(out.Working, maxDCC)
	var track []kml.Element
	for i, r := range runs {
		cs, err := coordinates(r, lonLat)
		if err != nil {
			return fmt.Errorf("track: %w", err)
		}
		track = append(track, kml.Placemark(kml.StyleURL("#"+bandStyle(bands[i])),
			kml.LineString(kml.Tessellate(true), kml.Coordinates(cs...))))
	}
	els = append(els, kml.Folder(append([]kml.Element{kml.Name("track")}, track...)...))

	if out.Spline != nil && len(out.Spline.Vertices) > 0 {
		cs, err := coordinates(out.Spline.Vertices, lonLat)
		if err != nil {
			return fmt.Errorf("spline: %w", err)
		}
		els = append(els, kml.Placemark(kml.Name("spline"), kml.StyleURL("#spline"),
			kml.LineString(kml.Coordinates(cs...))))
	}

	if len(out.Intervals) > 0 {
		var pts []kml.Element
		for _, p := range out.Intervals {
			c, err := lonLat(p.X, p.Y)
			if err != nil {
				return fmt.Errorf("interval point: %w", err)
			}
			pts = append(pts, kml.Placemark(
				kml.Name(fmt.Sprintf("%.1f", p.Distance)),
				kml.Point(kml.Coordinates(c)),
			))
		}
		els = append(els, kml.Folder(append([]kml.Element{kml.Name("intervals")}, pts...)...))
	}

	f := kml.Folder(els...)
	w, err := os.Create(fn)
	if err != nil {
		return err
	}
	if strings.HasSuffix(strings.ToLower(fn), ".kmz") {
		err = kmz.NewKMZ(f).WriteIndent(w, "", "  ")
	} else {
		err = kml.KML(f).WriteIndent(w, "", "  ")
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}
