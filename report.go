// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Diagnostics collected while processing, and the error types of the package.

package navqc

import (
	"errors"
	"fmt"
	"time"
)

// ErrUserAbort is returned when the CRS-mismatch decision was declined.
// It is a cancellation, not a failure: outputs of completed stages stay valid.
var ErrUserAbort = errors.New("processing aborted at coordinate system confirmation")

// ErrNonFinite marks input holding NaN or infinite coordinates, depths or KPs
var ErrNonFinite = errors.New("value is not finite")

// ConfigError reports an option that could not be normalized
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

func configErr(field, format string, a ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, a...)}
}

// Stage identifies a pipeline stage
type Stage int

const (
	StageConfig Stage = iota
	StageSanity
	StageSmoothing
	StageTide
	StageProjection
	StageSpline
	StageInterval
	StageReprojection
)

var stageNames = []string{"config", "sanity", "smoothing", "tide", "projection", "spline", "interval", "reprojection"}

func (s Stage) String() string               { return enumName(stageNames, s) }
func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Kind classifies a warning
type Kind int

const (
	DataQuality Kind = iota
	InsufficientData
	ConfigNormalized
)

var kindNames = []string{"data-quality", "insufficient-data", "config-normalized"}

func (k Kind) String() string               { return enumName(kindNames, k) }
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Severity of a warning
type Severity int

const (
	SevInfo Severity = iota
	SevSoft
	SevWarning
	SevHard
)

var severityNames = []string{"info", "soft", "warning", "hard"}

func (s Severity) String() string               { return enumName(severityNames, s) }
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Warning is one non-fatal finding
type Warning struct {
	Stage    Stage    `yaml:"stage"`
	Kind     Kind     `yaml:"kind"`
	Severity Severity `yaml:"severity"`
	Code     string   `yaml:"code"`
	Message  string   `yaml:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s/%s] %s: %s", w.Stage, w.Severity, w.Code, w.Message)
}

// Warning codes
const (
	CodeTideCoverage   = "tide-coverage"
	CodeTideStart      = "tide-start"
	CodeTideEnd        = "tide-end"
	CodeTideGap        = "tide-gap"
	CodeKPRange        = "kp-range"
	CodeDCCExcess      = "dcc-excess"
	CodeCRSClass       = "crs-classification"
	CodeCRSMagnitude   = "crs-magnitude"
	CodeCRSOverlap     = "crs-overlap"
	CodeCRSDistance    = "crs-distance"
	CodeTooFewPoints   = "too-few-points"
	CodeWindow         = "window-normalized"
	CodeClamped        = "value-clamped"
	CodeDuplicates     = "duplicate-vertices"
	CodeStageSkipped   = "stage-skipped"
	CodeDecisionDenied = "decision-declined"
)

// Outcome of one stage
type StageStatus struct {
	Stage    Stage         `yaml:"stage"`
	Ran      bool          `yaml:"ran"`
	Skipped  string        `yaml:"skipped,omitempty"`
	Duration time.Duration `yaml:"duration"`
}

// Report is the structured diagnostics of one run
type Report struct {
	RunID      string           `yaml:"run_id"`
	Started    time.Time        `yaml:"started"`
	Stages     []StageStatus    `yaml:"stages"`
	Warnings   []Warning        `yaml:"warnings"`
	Sanity     *SanityReport    `yaml:"sanity,omitempty"`
	Smoothing  *SmoothingResult `yaml:"smoothing,omitempty"`
	Tide       *TideResult      `yaml:"tide,omitempty"`
	TideCheck  *TideValidation  `yaml:"tide_check,omitempty"`
	Projection *ProjectionStats `yaml:"projection,omitempty"`
	Spline     *SplineStats     `yaml:"spline,omitempty"`
	Interval   *IntervalStats   `yaml:"interval,omitempty"`
	Reproject  *ProjectionStats `yaml:"reprojection,omitempty"`
	Aborted    bool             `yaml:"aborted"`
}

func (r *Report) add(ws ...Warning) {
	r.Warnings = append(r.Warnings, ws...)
}

// Warnings of one stage
func (r *Report) StageWarnings(s Stage) []Warning {
	var ws []Warning
	for _, w := range r.Warnings {
		if w.Stage == s {
			ws = append(ws, w)
		}
	}
	return ws
}

// HasCode reports whether any warning carries code
func (r *Report) HasCode(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Highest severity reported, SevInfo when there is nothing
func (r *Report) MaxSeverity() Severity {
	s := SevInfo
	for _, w := range r.Warnings {
		s = max(s, w.Severity)
	}
	return s
}

func dataWarning(stage Stage, sev Severity, code, format string, a ...any) Warning {
	return Warning{Stage: stage, Kind: DataQuality, Severity: sev, Code: code, Message: fmt.Sprintf(format, a...)}
}

func shortWarning(stage Stage, format string, a ...any) Warning {
	return Warning{Stage: stage, Kind: InsufficientData, Severity: SevWarning, Code: CodeTooFewPoints, Message: fmt.Sprintf(format, a...)}
}

func configWarning(stage Stage, code, format string, a ...any) Warning {
	return Warning{Stage: stage, Kind: ConfigNormalized, Severity: SevInfo, Code: code, Message: fmt.Sprintf(format, a...)}
}
