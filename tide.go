// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Tide interpolation and vertical correction of depths.

package navqc

import (
	"fmt"
	"time"

	"golang.org/x/exp/slices"
)

// One sample of a tide curve
type TideSample struct {
	Time   time.Time
	Height float64 // Positive = higher water
}

// TideCurve is a time series of tide heights with strictly increasing times
type TideCurve struct {
	samples []TideSample
}

// NewTideCurve checks the samples and returns the curve
func NewTideCurve(samples []TideSample) (*TideCurve, error) {
	for i := range samples {
		if !finite(samples[i].Height) {
			return nil, fmt.Errorf("tide sample %d: height %g: %w", i, samples[i].Height, ErrNonFinite)
		}
		if i == 0 {
			continue
		}
		if !samples[i].Time.After(samples[i-1].Time) {
			return nil, fmt.Errorf("tide sample %d (%s) is not after sample %d (%s)",
				i, samples[i].Time.Format(time.RFC3339), i-1, samples[i-1].Time.Format(time.RFC3339))
		}
	}
	return &TideCurve{samples: slices.Clone(samples)}, nil
}

func (c *TideCurve) Len() int { return len(c.samples) }

// Samples returns a copy of the samples
func (c *TideCurve) Samples() []TideSample { return slices.Clone(c.samples) }

// Span returns the first and last sample times
func (c *TideCurve) Span() (start, end time.Time, ok bool) {
	if len(c.samples) == 0 {
		return
	}
	return c.samples[0].Time, c.samples[len(c.samples)-1].Time, true
}

// Height interpolated at t, absent outside the curve
func (c *TideCurve) at(t time.Time) OptFloat {
	n := len(c.samples)
	if n == 0 || t.Before(c.samples[0].Time) || t.After(c.samples[n-1].Time) {
		return OptFloat{}
	}
	i, found := slices.BinarySearchFunc(c.samples, t, func(s TideSample, t time.Time) int {
		return s.Time.Compare(t)
	})
	if found {
		return Some(c.samples[i].Height)
	}
	a, b := c.samples[i-1], c.samples[i]
	r := float64(t.Sub(a.Time)) / float64(b.Time.Sub(a.Time))
	return Some(a.Height + r*(b.Height-a.Height))
}

//-------------------------------------------------------------------
// TideCorrector
//-------------------------------------------------------------------

// TideCorrector applies a tide curve to fix depths
type TideCorrector struct {
	curve *TideCurve
	units UnitConv
}

func NewTideCorrector(curve *TideCurve, opt *TideOpt) *TideCorrector {
	return &TideCorrector{
		curve: curve,
		units: opt.Units,
	}
}

// GetTide returns the converted tide height at t; absent outside coverage, never extrapolated
func (tc *TideCorrector) GetTide(t time.Time) OptFloat {
	if tc.curve == nil {
		return OptFloat{}
	}
	h := tc.curve.at(t)
	if h.Valid {
		h.Value *= tc.units.Factor()
	}
	return h
}

// ApplyCorrection returns the depth reduced to datum.
// A positive tide means higher water, so the true depth is shallower.
func ApplyCorrection(depth, tide float64) float64 {
	return depth - tide
}

// TideResult summarizes one correction pass
type TideResult struct {
	Corrected int       `yaml:"corrected"`
	NoDepth   int       `yaml:"no_depth"`
	Uncovered []int     `yaml:"uncovered,flow,omitempty"` // Fix indices outside tide coverage
	Warnings  []Warning `yaml:"-"`
}

// ApplyToAll sets Tide and Z of every fix.
// Z is the working depth less the tide. Where the curve does not cover the fix,
// Z falls back to the raw depth and the fix is listed in Uncovered.
// Fixes without depth still get Tide but no Z.
func (tc *TideCorrector) ApplyToAll(fixes []NavFix) *TideResult {
	res := &TideResult{}
	for i := range fixes {
		f := &fixes[i]
		tide := tc.GetTide(f.Time)
		f.Tide = tide
		depth := f.WorkingDepth()
		switch {
		case !depth.Valid:
			res.NoDepth++
			if !tide.Valid {
				res.Uncovered = append(res.Uncovered, i)
			}
		case !tide.Valid:
			f.Z = f.Depth
			res.Uncovered = append(res.Uncovered, i)
		default:
			f.Z = Some(ApplyCorrection(depth.Value, tide.Value))
			res.Corrected++
		}
	}
	if len(res.Uncovered) > 0 {
		res.Warnings = append(res.Warnings, dataWarning(StageTide, SevWarning, CodeTideCoverage,
			"%d of %d fixes outside tide coverage, raw depth kept (first at index %d)",
			len(res.Uncovered), len(fixes), res.Uncovered[0]))
	}
	return res
}

// TideGap is an interval between consecutive curve samples longer than allowed
type TideGap struct {
	From time.Time     `yaml:"from"`
	To   time.Time     `yaml:"to"`
	Len  time.Duration `yaml:"length"`
}

// TideValidation tells how well the curve covers a survey
type TideValidation struct {
	CoversStart bool      `yaml:"covers_start"`
	CoversEnd   bool      `yaml:"covers_end"`
	Gaps        []TideGap `yaml:"gaps,omitempty"`
	Warnings    []Warning `yaml:"-"`
}

// OK reports whether nothing was found
func (v *TideValidation) OK() bool {
	return v.CoversStart && v.CoversEnd && len(v.Gaps) == 0
}

// Validate checks that the curve spans [start, end] and has no interval longer than maxGap
func (tc *TideCorrector) Validate(start, end time.Time, maxGap time.Duration) *TideValidation {
	v := &TideValidation{}
	if maxGap <= 0 {
		maxGap = DefaultTideGap
	}
	var s []TideSample
	if tc.curve != nil {
		s = tc.curve.samples
	}
	if len(s) > 0 {
		v.CoversStart = !s[0].Time.After(start)
		v.CoversEnd = !s[len(s)-1].Time.Before(end)
	}
	if !v.CoversStart {
		v.Warnings = append(v.Warnings, dataWarning(StageTide, SevWarning, CodeTideStart,
			"tide curve does not cover survey start %s", start.UTC().Format(time.RFC3339)))
	}
	if !v.CoversEnd {
		v.Warnings = append(v.Warnings, dataWarning(StageTide, SevWarning, CodeTideEnd,
			"tide curve does not cover survey end %s", end.UTC().Format(time.RFC3339)))
	}
	for i := 1; i < len(s); i++ {
		if d := s[i].Time.Sub(s[i-1].Time); d > maxGap {
			v.Gaps = append(v.Gaps, TideGap{From: s[i-1].Time, To: s[i].Time, Len: d})
			v.Warnings = append(v.Warnings, dataWarning(StageTide, SevSoft, CodeTideGap,
				"tide gap of %s from %s (limit %s)", d, s[i-1].Time.UTC().Format(time.RFC3339), maxGap))
		}
	}
	return v
}
