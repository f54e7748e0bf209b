// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.15
//

// Options of every stage, their defaults and their validation.
// All options are plain values passed into each call; nothing is held globally.

package navqc

import (
	"time"
)

//-------------------------------------------------------------------
// Enums
//-------------------------------------------------------------------

// Smoothing algorithm of a channel
type SmoothMethod int

const (
	MovingAverage SmoothMethod = iota
	WeightedAverage
	Median
	Threshold
	Kalman
)

var smoothMethodNames = []string{"moving-average", "weighted-average", "median", "threshold", "kalman"}

func (m SmoothMethod) String() string { return enumName(smoothMethodNames, m) }
func (m *SmoothMethod) Type() string  { return "method" }
func (m *SmoothMethod) Set(s string) (err error) {
	*m, err = parseEnum[SmoothMethod](smoothMethodNames, s)
	return
}
func (m SmoothMethod) MarshalText() ([]byte, error)  { return []byte(m.String()), nil }
func (m *SmoothMethod) UnmarshalText(b []byte) error { return m.Set(string(b)) }

// Spline algorithm
type SplineAlgorithm int

const (
	CatmullRom SplineAlgorithm = iota
	NaturalCubic
	BSpline
	PolylineFit
)

var splineAlgorithmNames = []string{"catmull-rom", "natural-cubic", "b-spline", "polyline-fit"}

func (a SplineAlgorithm) String() string { return enumName(splineAlgorithmNames, a) }
func (a *SplineAlgorithm) Type() string  { return "algorithm" }
func (a *SplineAlgorithm) Set(s string) (err error) {
	*a, err = parseEnum[SplineAlgorithm](splineAlgorithmNames, s)
	return
}
func (a SplineAlgorithm) MarshalText() ([]byte, error)  { return []byte(a.String()), nil }
func (a *SplineAlgorithm) UnmarshalText(b []byte) error { return a.Set(string(b)) }

// Geometry a stage is fed with
type GeometrySource int

const (
	SourceRaw GeometrySource = iota
	SourceSmoothed
	SourceSpline
	SourceRoute
)

var geometrySourceNames = []string{"raw", "smoothed", "spline", "route"}

func (g GeometrySource) String() string { return enumName(geometrySourceNames, g) }
func (g *GeometrySource) Type() string  { return "source" }
func (g *GeometrySource) Set(s string) (err error) {
	*g, err = parseEnum[GeometrySource](geometrySourceNames, s)
	return
}
func (g GeometrySource) MarshalText() ([]byte, error)  { return []byte(g.String()), nil }
func (g *GeometrySource) UnmarshalText(b []byte) error { return g.Set(string(b)) }

// Unit conversion applied to tide heights
type UnitConv int

const (
	UnitNone UnitConv = iota
	FeetToMeters
	MetersToFeet
)

var unitConvNames = []string{"none", "ft-to-m", "m-to-ft"}

func (u UnitConv) String() string { return enumName(unitConvNames, u) }
func (u *UnitConv) Type() string  { return "units" }
func (u *UnitConv) Set(s string) (err error) {
	*u, err = parseEnum[UnitConv](unitConvNames, s)
	return
}
func (u UnitConv) MarshalText() ([]byte, error)  { return []byte(u.String()), nil }
func (u *UnitConv) UnmarshalText(b []byte) error { return u.Set(string(b)) }

// Scale factor of the conversion
func (u UnitConv) Factor() float64 {
	switch u {
	case FeetToMeters:
		return MetersPerFoot
	case MetersToFeet:
		return FeetPerMeter
	default:
		return 1
	}
}

// Geometry projected onto the route a second time
type ReprojectTarget int

const (
	ReprojectNone ReprojectTarget = iota
	ReprojectSpline
	ReprojectInterval
)

var reprojectTargetNames = []string{"none", "spline", "interval"}

func (r ReprojectTarget) String() string { return enumName(reprojectTargetNames, r) }
func (r *ReprojectTarget) Type() string  { return "target" }
func (r *ReprojectTarget) Set(s string) (err error) {
	*r, err = parseEnum[ReprojectTarget](reprojectTargetNames, s)
	return
}
func (r ReprojectTarget) MarshalText() ([]byte, error)  { return []byte(r.String()), nil }
func (r *ReprojectTarget) UnmarshalText(b []byte) error { return r.Set(string(b)) }

// Which projection values to compute (bit flags)
type ProjectMode int

const (
	ModeNone ProjectMode = 0
	ModeKP   ProjectMode = 1 << 0
	ModeDCC  ProjectMode = 1 << 1
	ModeBoth             = ModeKP | ModeDCC
)

var projectModeNames = []string{"none", "kp", "dcc", "both"}

func (p ProjectMode) String() string { return enumName(projectModeNames, p) }
func (p *ProjectMode) Type() string  { return "mode" }
func (p *ProjectMode) Set(s string) (err error) {
	*p, err = parseEnum[ProjectMode](projectModeNames, s)
	return
}
func (p ProjectMode) MarshalText() ([]byte, error)  { return []byte(p.String()), nil }
func (p *ProjectMode) UnmarshalText(b []byte) error { return p.Set(string(b)) }

func (p ProjectMode) KP() bool  { return p&ModeKP != 0 }
func (p ProjectMode) DCC() bool { return p&ModeDCC != 0 }

//-------------------------------------------------------------------
// Smoothing
//-------------------------------------------------------------------

// Options of one smoothing channel
type ChannelOpt struct {
	Enabled          bool         `yaml:"enabled"`
	Method           SmoothMethod `yaml:"method"`
	Window           int          `yaml:"window"`            // Window size, normalized to odd >= 3
	Threshold        float64      `yaml:"threshold"`         // Deviation that triggers a replacement (Threshold method)
	ProcessNoise     float64      `yaml:"process_noise"`     // Kalman Q
	MeasurementNoise float64      `yaml:"measurement_noise"` // Kalman R
}

// SmoothOpt holds the options of the three channels
type SmoothOpt struct {
	Position ChannelOpt `yaml:"position"`
	Depth    ChannelOpt `yaml:"depth"`
	Altitude ChannelOpt `yaml:"altitude"`
}

// NewSmoothOpt creates a new SmoothOpt with default values
func NewSmoothOpt() *SmoothOpt {
	return &SmoothOpt{
		Position: ChannelOpt{
			Enabled:          true,
			Method:           WeightedAverage, // Mild smoothing keeps turns
			Window:           5,
			Threshold:        2.0,
			ProcessNoise:     0.05,
			MeasurementNoise: 1.0,
		},
		Depth: ChannelOpt{
			Enabled:          true,
			Method:           Median, // Removes echo-sounder spikes without blurring steps
			Window:           5,
			Threshold:        0.5,
			ProcessNoise:     0.01,
			MeasurementNoise: 0.25,
		},
		Altitude: ChannelOpt{
			Enabled:          false,
			Method:           MovingAverage,
			Window:           5,
			Threshold:        1.0,
			ProcessNoise:     0.01,
			MeasurementNoise: 1.0,
		},
	}
}

// NormalizeWindow returns the smallest odd window >= max(w, 3)
func NormalizeWindow(w int) int {
	if w < MinWindow {
		return MinWindow
	}
	if w%2 == 0 {
		return w + 1
	}
	return w
}

func (c *ChannelOpt) validate(name string) ([]Warning, error) {
	var ws []Warning
	if !c.Enabled {
		return nil, nil
	}
	if w := NormalizeWindow(c.Window); w != c.Window {
		ws = append(ws, configWarning(StageSmoothing, CodeWindow, "%s window %d normalized to %d", name, c.Window, w))
		c.Window = w
	}
	switch c.Method {
	case MovingAverage, WeightedAverage, Median:
	case Threshold:
		if c.Threshold < 0 {
			return ws, configErr(name+".threshold", "must not be negative, got %g", c.Threshold)
		}
	case Kalman:
		if c.ProcessNoise <= 0 {
			return ws, configErr(name+".process_noise", "must be positive, got %g", c.ProcessNoise)
		}
		if c.MeasurementNoise <= 0 {
			return ws, configErr(name+".measurement_noise", "must be positive, got %g", c.MeasurementNoise)
		}
	default:
		return ws, configErr(name+".method", "unknown method %d", int(c.Method))
	}
	return ws, nil
}

// Validate normalizes window sizes and rejects what cannot be normalized
func (o *SmoothOpt) Validate() ([]Warning, error) {
	var all []Warning
	for _, ch := range []struct {
		name string
		opt  *ChannelOpt
	}{
		{"position", &o.Position},
		{"depth", &o.Depth},
		{"altitude", &o.Altitude},
	} {
		ws, err := ch.opt.validate(ch.name)
		all = append(all, ws...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

//-------------------------------------------------------------------
// Tide
//-------------------------------------------------------------------

// TideOpt contains options of the tide correction
type TideOpt struct {
	Enabled bool          `yaml:"enabled"`
	Units   UnitConv      `yaml:"units"`   // Conversion from curve units to depth units
	MaxGap  time.Duration `yaml:"max_gap"` // Longest tolerated interval between curve samples
}

// NewTideOpt creates a new TideOpt with default values
func NewTideOpt() *TideOpt {
	return &TideOpt{
		Enabled: true,
		Units:   UnitNone,
		MaxGap:  DefaultTideGap,
	}
}

func (o *TideOpt) Validate() ([]Warning, error) {
	var ws []Warning
	if o.MaxGap <= 0 {
		ws = append(ws, configWarning(StageTide, CodeClamped, "max gap %s replaced by %s", o.MaxGap, DefaultTideGap))
		o.MaxGap = DefaultTideGap
	}
	if o.Units < UnitNone || o.Units > MetersToFeet {
		return ws, configErr("tide.units", "unknown conversion %d", int(o.Units))
	}
	return ws, nil
}

//-------------------------------------------------------------------
// Projection
//-------------------------------------------------------------------

// ProjectOpt contains options of the KP/DCC computation
type ProjectOpt struct {
	Mode        ProjectMode `yaml:"mode"`
	KPTolerance float64     `yaml:"kp_tolerance"` // Slack around the declared KP range before warning
	MaxDCC      float64     `yaml:"max_dcc"`      // Largest plausible |DCC|; above it a CRS mismatch is suspected
	Workers     int         `yaml:"workers"`      // Goroutines for per-point work (0: number of CPUs)
}

// NewProjectOpt creates a new ProjectOpt with default values
func NewProjectOpt() *ProjectOpt {
	return &ProjectOpt{
		Mode:        ModeBoth,
		KPTolerance: 0.01,
		MaxDCC:      1000,
		Workers:     0,
	}
}

func (o *ProjectOpt) Validate() ([]Warning, error) {
	if o.Mode < ModeNone || o.Mode > ModeBoth {
		return nil, configErr("projection.mode", "unknown mode %d", int(o.Mode))
	}
	if o.KPTolerance < 0 {
		return nil, configErr("projection.kp_tolerance", "must not be negative, got %g", o.KPTolerance)
	}
	if o.MaxDCC <= 0 {
		return nil, configErr("projection.max_dcc", "must be positive, got %g", o.MaxDCC)
	}
	return nil, nil
}

//-------------------------------------------------------------------
// Spline
//-------------------------------------------------------------------

// SplineOpt contains options of the spline fit
type SplineOpt struct {
	Enabled    bool            `yaml:"enabled"`
	Algorithm  SplineAlgorithm `yaml:"algorithm"`
	Tension    float64         `yaml:"tension"`    // 0 (loose) .. 5 (tight)
	Multiplier int             `yaml:"multiplier"` // Output count = input count x multiplier
	MinOutput  int             `yaml:"min_output"` // Floor on output count
	Source     GeometrySource  `yaml:"source"`     // raw, smoothed or route
	Workers    int             `yaml:"workers"`
}

// NewSplineOpt creates a new SplineOpt with default values
func NewSplineOpt() *SplineOpt {
	return &SplineOpt{
		Enabled:    false,
		Algorithm:  CatmullRom,
		Tension:    0,
		Multiplier: 4,
		MinOutput:  DefaultMinSpline,
		Source:     SourceSmoothed,
	}
}

func (o *SplineOpt) Validate() ([]Warning, error) {
	var ws []Warning
	if t := clamp(o.Tension, 0, MaxTension); t != o.Tension {
		ws = append(ws, configWarning(StageSpline, CodeClamped, "tension %g clamped to %g", o.Tension, t))
		o.Tension = t
	}
	if m := clamp(o.Multiplier, 1, MaxMultiplier); m != o.Multiplier {
		ws = append(ws, configWarning(StageSpline, CodeClamped, "multiplier %d clamped to %d", o.Multiplier, m))
		o.Multiplier = m
	}
	if o.MinOutput < 2 {
		o.MinOutput = DefaultMinSpline
	}
	if o.Algorithm < CatmullRom || o.Algorithm > PolylineFit {
		return ws, configErr("spline.algorithm", "unknown algorithm %d", int(o.Algorithm))
	}
	if o.Enabled && o.Source == SourceSpline {
		return ws, configErr("spline.source", "a spline cannot be fitted to itself")
	}
	return ws, nil
}

//-------------------------------------------------------------------
// Interval
//-------------------------------------------------------------------

// IntervalOpt contains options of the fixed distance resampling
type IntervalOpt struct {
	Enabled  bool           `yaml:"enabled"`
	Distance float64        `yaml:"distance"` // Spacing along track, > 0
	Source   GeometrySource `yaml:"source"`
}

// NewIntervalOpt creates a new IntervalOpt with default values
func NewIntervalOpt() *IntervalOpt {
	return &IntervalOpt{
		Enabled:  false,
		Distance: 10,
		Source:   SourceSmoothed,
	}
}

func (o *IntervalOpt) Validate() ([]Warning, error) {
	if !o.Enabled {
		return nil, nil
	}
	if !(o.Distance > 0) {
		return nil, configErr("interval.distance", "must be positive, got %g", o.Distance)
	}
	if o.Source < SourceRaw || o.Source > SourceRoute {
		return nil, configErr("interval.source", "unknown source %d", int(o.Source))
	}
	return nil, nil
}

//-------------------------------------------------------------------
// Sanity
//-------------------------------------------------------------------

// SanityOpt contains options of the coordinate system pre-flight checks
type SanityOpt struct {
	Enabled             bool    `yaml:"enabled"`
	MaxCentroidDistance float64 `yaml:"max_centroid_distance"` // Survey centroid to nearest route vertex
	RatioMin            float64 `yaml:"ratio_min"`
	RatioMax            float64 `yaml:"ratio_max"`
	OverlapBuffer       float64 `yaml:"overlap_buffer"` // In route bounding widths
}

// NewSanityOpt creates a new SanityOpt with default values
func NewSanityOpt() *SanityOpt {
	return &SanityOpt{
		Enabled:             true,
		MaxCentroidDistance: 500,
		RatioMin:            MagRatioMin,
		RatioMax:            MagRatioMax,
		OverlapBuffer:       OverlapBuffer,
	}
}

func (o *SanityOpt) Validate() ([]Warning, error) {
	if o.MaxCentroidDistance <= 0 {
		return nil, configErr("sanity.max_centroid_distance", "must be positive, got %g", o.MaxCentroidDistance)
	}
	if !(o.RatioMin > 0 && o.RatioMin < o.RatioMax) {
		return nil, configErr("sanity.ratio_min", "need 0 < ratio_min < ratio_max, got %g, %g", o.RatioMin, o.RatioMax)
	}
	if o.OverlapBuffer < 0 {
		return nil, configErr("sanity.overlap_buffer", "must not be negative, got %g", o.OverlapBuffer)
	}
	return nil, nil
}

//-------------------------------------------------------------------
// Pipeline
//-------------------------------------------------------------------

// PipelineOpt groups the options of every stage
type PipelineOpt struct {
	Sanity    SanityOpt       `yaml:"sanity"`
	Smooth    SmoothOpt       `yaml:"smoothing"`
	Tide      TideOpt         `yaml:"tide"`
	Project   ProjectOpt      `yaml:"projection"`
	Spline    SplineOpt       `yaml:"spline"`
	Interval  IntervalOpt     `yaml:"interval"`
	Reproject ReprojectTarget `yaml:"reproject"`
	Workers   int             `yaml:"workers"` // Default for stages that leave Workers at 0
}

// NewPipelineOpt creates a new PipelineOpt with default values
func NewPipelineOpt() *PipelineOpt {
	return &PipelineOpt{
		Sanity:    *NewSanityOpt(),
		Smooth:    *NewSmoothOpt(),
		Tide:      *NewTideOpt(),
		Project:   *NewProjectOpt(),
		Spline:    *NewSplineOpt(),
		Interval:  *NewIntervalOpt(),
		Reproject: ReprojectNone,
	}
}

// Validate checks and normalizes every stage option before anything runs
func (o *PipelineOpt) Validate() ([]Warning, error) {
	var all []Warning
	for _, v := range []func() ([]Warning, error){
		o.Sanity.Validate,
		o.Smooth.Validate,
		o.Tide.Validate,
		o.Project.Validate,
		o.Spline.Validate,
		o.Interval.Validate,
	} {
		ws, err := v()
		all = append(all, ws...)
		if err != nil {
			return all, err
		}
	}
	if o.Interval.Enabled && o.Interval.Source == SourceSpline && !o.Spline.Enabled {
		return all, configErr("interval.source", "spline source requires the spline stage")
	}
	switch o.Reproject {
	case ReprojectNone:
	case ReprojectSpline:
		if !o.Spline.Enabled {
			return all, configErr("reproject", "spline target requires the spline stage")
		}
	case ReprojectInterval:
		if !o.Interval.Enabled {
			return all, configErr("reproject", "interval target requires the interval stage")
		}
	default:
		return all, configErr("reproject", "unknown target %d", int(o.Reproject))
	}
	if o.Project.Workers == 0 {
		o.Project.Workers = o.Workers
	}
	if o.Spline.Workers == 0 {
		o.Spline.Workers = o.Workers
	}
	return all, nil
}
