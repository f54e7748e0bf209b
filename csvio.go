// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Plain CSV interchange for fixes, routes and tide curves.
// The first row names the columns; column order is free and names are case-insensitive.

package navqc

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// Default timestamp pattern of the writers (UTC)
const DefaultTimeFormat = "%Y-%m-%dT%H:%M:%SZ"

// Header of a CSV file mapped to column indices
type csvHeader map[string]int

func readHeader(cr *csv.Reader, required ...string) (csvHeader, error) {
	row, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file, header expected")
		}
		return nil, err
	}
	h := csvHeader{}
	for i, name := range row {
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := h[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return h, nil
}

func (h csvHeader) has(name string) bool {
	_, ok := h[name]
	return ok
}

// Cell value, empty when the column is absent
func (h csvHeader) get(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (h csvHeader) float(row []string, name string) (float64, error) {
	s := h.get(row, name)
	if s == "" {
		return 0, fmt.Errorf("%s is empty", name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if !finite(v) {
		return 0, fmt.Errorf("%s %q: %w", name, s, ErrNonFinite)
	}
	return v, nil
}

// Optional cell, empty means absent
func (h csvHeader) opt(row []string, name string) (OptFloat, error) {
	s := h.get(row, name)
	if s == "" {
		return OptFloat{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return OptFloat{}, fmt.Errorf("%s: %w", name, err)
	}
	if !finite(v) {
		return OptFloat{}, fmt.Errorf("%s %q: %w", name, s, ErrNonFinite)
	}
	return Some(v), nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// Read every data row, calling fn with its 1-based line number
func eachRow(cr *csv.Reader, fn func(line int, row []string) error) error {
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line, _ := cr.FieldPos(0)
		if err := fn(line, row); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

//-------------------------------------------------------------------
// Readers
//-------------------------------------------------------------------

// ReadFixes reads columns time, easting, northing and optionally depth, altitude,
// heading and record. Empty optional cells are absent values; a missing record
// column numbers the rows from 1.
func ReadFixes(r io.Reader) ([]NavFix, error) {
	cr := newCSVReader(r)
	h, err := readHeader(cr, "time", "easting", "northing")
	if err != nil {
		return nil, fmt.Errorf("fixes: %w", err)
	}
	var fixes []NavFix
	err = eachRow(cr, func(line int, row []string) error {
		var f NavFix
		var err error
		if s := h.get(row, "time"); s != "" {
			if f.Time, err = time.Parse(time.RFC3339Nano, s); err != nil {
				return fmt.Errorf("time: %w", err)
			}
		}
		if f.Easting, err = h.float(row, "easting"); err != nil {
			return err
		}
		if f.Northing, err = h.float(row, "northing"); err != nil {
			return err
		}
		if f.Depth, err = h.opt(row, "depth"); err != nil {
			return err
		}
		if f.Altitude, err = h.opt(row, "altitude"); err != nil {
			return err
		}
		if f.Heading, err = h.opt(row, "heading"); err != nil {
			return err
		}
		f.Record = len(fixes) + 1
		if s := h.get(row, "record"); s != "" {
			if f.Record, err = strconv.Atoi(s); err != nil {
				return fmt.Errorf("record: %w", err)
			}
		}
		fixes = append(fixes, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fixes: %w", err)
	}
	return fixes, nil
}

// ReadRoute reads either vertices (easting, northing and optional kp) or
// segments (start_e, start_n, end_e, end_n, start_kp, end_kp)
func ReadRoute(r io.Reader) (*Route, error) {
	cr := newCSVReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	if h.has("start_e") {
		return readSegments(cr, h)
	}
	if !h.has("easting") || !h.has("northing") {
		return nil, fmt.Errorf("route: need easting,northing or start_e,start_n,end_e,end_n columns")
	}
	var vs []Vertex
	var kps []float64
	withKP := h.has("kp")
	err = eachRow(cr, func(_ int, row []string) error {
		var v Vertex
		var err error
		if v.X, err = h.float(row, "easting"); err != nil {
			return err
		}
		if v.Y, err = h.float(row, "northing"); err != nil {
			return err
		}
		vs = append(vs, v)
		if withKP {
			kp, err := h.float(row, "kp")
			if err != nil {
				return err
			}
			kps = append(kps, kp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	route, err := NewRouteFromVertices(vs, kps)
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	return route, nil
}

func readSegments(cr *csv.Reader, h csvHeader) (*Route, error) {
	cols := []string{"start_e", "start_n", "end_e", "end_n", "start_kp", "end_kp"}
	for _, c := range cols {
		if !h.has(c) {
			return nil, fmt.Errorf("route: missing column %q", c)
		}
	}
	var segs []RouteSegment
	err := eachRow(cr, func(_ int, row []string) error {
		var v [6]float64
		for i, c := range cols {
			var err error
			if v[i], err = h.float(row, c); err != nil {
				return err
			}
		}
		segs = append(segs, RouteSegment{
			StartE:  v[0],
			StartN:  v[1],
			EndE:    v[2],
			EndN:    v[3],
			StartKP: v[4],
			EndKP:   v[5],
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	route, err := NewRoute(segs)
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	return route, nil
}

// ReadTide reads columns time and height
func ReadTide(r io.Reader) (*TideCurve, error) {
	cr := newCSVReader(r)
	h, err := readHeader(cr, "time", "height")
	if err != nil {
		return nil, fmt.Errorf("tide: %w", err)
	}
	var samples []TideSample
	err = eachRow(cr, func(_ int, row []string) error {
		var s TideSample
		var err error
		if s.Time, err = time.Parse(time.RFC3339Nano, h.get(row, "time")); err != nil {
			return fmt.Errorf("time: %w", err)
		}
		if s.Height, err = h.float(row, "height"); err != nil {
			return err
		}
		samples = append(samples, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tide: %w", err)
	}
	curve, err := NewTideCurve(samples)
	if err != nil {
		return nil, fmt.Errorf("tide: %w", err)
	}
	return curve, nil
}

//-------------------------------------------------------------------
// Writers
//-------------------------------------------------------------------

var fixColumns = []string{
	"time", "easting", "northing", "depth", "altitude", "heading", "record",
	"smooth_easting", "smooth_northing", "smooth_depth", "smooth_altitude",
	"tide", "z", "kp", "dcc",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOpt(o OptFloat) string {
	if !o.Valid {
		return ""
	}
	return formatFloat(o.Value)
}

// WriteFixes writes the raw and derived columns of fixes. Times are written in UTC
// with the strftime pattern timeFmt (DefaultTimeFormat when empty).
func WriteFixes(w io.Writer, fixes []NavFix, timeFmt string) error {
	if timeFmt == "" {
		timeFmt = DefaultTimeFormat
	}
	tf, err := strftime.New(timeFmt)
	if err != nil {
		return fmt.Errorf("time format %q: %w", timeFmt, err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(fixColumns); err != nil {
		return err
	}
	for i := range fixes {
		f := &fixes[i]
		ts := ""
		if !f.Time.IsZero() {
			ts = tf.FormatString(f.Time.UTC())
		}
		row := []string{
			ts, formatFloat(f.Easting), formatFloat(f.Northing),
			formatOpt(f.Depth), formatOpt(f.Altitude), formatOpt(f.Heading), strconv.Itoa(f.Record),
			formatOpt(f.SmoothEasting), formatOpt(f.SmoothNorthing), formatOpt(f.SmoothDepth), formatOpt(f.SmoothAltitude),
			formatOpt(f.Tide), formatOpt(f.Z), formatOpt(f.KP), formatOpt(f.DCC),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteVertices writes columns easting, northing, z
func WriteVertices(w io.Writer, vs []Vertex) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"easting", "northing", "z"}); err != nil {
		return err
	}
	for _, v := range vs {
		if err := cw.Write([]string{formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteIntervals writes columns distance, easting, northing, z and, when ps
// holds one projection per point, kp and dcc
func WriteIntervals(w io.Writer, pts []IntervalPoint, ps []Projection) error {
	withProj := len(ps) == len(pts) && len(ps) > 0
	cw := csv.NewWriter(w)
	head := []string{"distance", "easting", "northing", "z"}
	if withProj {
		head = append(head, "kp", "dcc")
	}
	if err := cw.Write(head); err != nil {
		return err
	}
	for i, p := range pts {
		row := []string{formatFloat(p.Distance), formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z)}
		if withProj {
			row = append(row, formatFloat(ps[i].KP), formatFloat(ps[i].DCC))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
