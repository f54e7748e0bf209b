// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Runs the processing stages in order over one data set.

package navqc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Input of one run. The fixes are only read; the run works on a copy.
type Input struct {
	Fixes []NavFix
	Route *Route     // Optional; sanity checks and projections need it
	Tide  *TideCurve // Optional; the tide stage is skipped without it
}

// Output of one run. Products of disabled stages stay nil.
type Output struct {
	Original    []NavFix         // Untouched copy of the input
	Working     []NavFix         // Fixes with the derived fields filled in
	Smoothing   *SmoothingResult // Summary of the smoothing stage
	Spline      *SplineResult    // Fitted polyline
	Intervals   []IntervalPoint  // Points at fixed chainage
	Reprojected []Projection     // KP/DCC of the spline or interval points
	Report      *Report
}

// Result is delivered by RunAsync
type Result struct {
	Output *Output
	Err    error
}

// Pipeline runs the stages configured in its options
type Pipeline struct {
	opt     PipelineOpt
	decider MismatchDecider
	logger  *log.Logger
}

// NewPipeline returns a pipeline with a private copy of opt.
// A nil decider continues past a suspected coordinate mismatch; a nil logger discards.
func NewPipeline(opt *PipelineOpt, decider MismatchDecider, logger *log.Logger) *Pipeline {
	if decider == nil {
		decider = FixedDecider(true)
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Pipeline{
		opt:     *opt,
		decider: decider,
		logger:  logger,
	}
}

// State of one run
type run struct {
	opt    PipelineOpt
	in     Input
	out    *Output
	logger *log.Logger
}

type stage struct {
	id Stage
	fn func(ctx context.Context, r *run) (skipped string, err error)
}

// Run validates the options and the fixes, then runs every stage in order.
// Cancellation is checked between stages. When the coordinate mismatch is not
// confirmed, Run returns ErrUserAbort with the output of the stages that finished.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Output, error) {
	rep := &Report{RunID: uuid.NewString(), Started: time.Now()}
	r := &run{
		opt:    p.opt,
		in:     in,
		out:    &Output{Report: rep},
		logger: p.logger.With("run", rep.RunID[:8]),
	}
	ctx = log.WithContext(ctx, r.logger)

	ws, err := r.opt.Validate()
	r.warn(ws)
	if err != nil {
		return r.out, err
	}
	if err := CheckFixes(in.Fixes); err != nil {
		return r.out, err
	}
	r.out.Original = CloneFixes(in.Fixes)
	r.out.Working = CloneFixes(in.Fixes)
	r.logger.Info("run started", "fixes", len(in.Fixes), "route", in.Route != nil, "tide", in.Tide != nil)

	stages := []stage{
		{StageSanity, p.sanity},
		{StageSmoothing, smoothStage},
		{StageTide, tideStage},
		{StageProjection, projectStage},
		{StageSpline, splineStage},
		{StageInterval, intervalStage},
		{StageReprojection, reprojectStage},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return r.out, err
		}
		start := time.Now()
		skipped, err := s.fn(ctx, r)
		st := StageStatus{Stage: s.id, Ran: skipped == "" && err == nil, Skipped: skipped, Duration: time.Since(start)}
		rep.Stages = append(rep.Stages, st)
		if err != nil {
			if errors.Is(err, ErrUserAbort) {
				rep.Aborted = true
				r.logger.Warn("run aborted", "stage", s.id)
				return r.out, err
			}
			return r.out, fmt.Errorf("%s: %w", s.id, err)
		}
		if skipped != "" {
			r.logger.Debug("stage skipped", "stage", s.id, "reason", skipped)
			continue
		}
		r.logger.Info("stage done", "stage", s.id, "took", st.Duration)
	}
	r.logger.Info("run finished", "warnings", len(rep.Warnings), "severity", rep.MaxSeverity())
	return r.out, nil
}

// RunAsync runs the pipeline on its own goroutine. The channel delivers one
// Result and is then closed.
func (p *Pipeline) RunAsync(ctx context.Context, in Input) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		out, err := p.Run(ctx, in)
		ch <- Result{Output: out, Err: err}
	}()
	return ch
}

// Record warnings and log the ones worth attention
func (r *run) warn(ws []Warning) {
	r.out.Report.add(ws...)
	for _, w := range ws {
		if w.Severity >= SevWarning {
			r.logger.Warn(w.Message, "stage", w.Stage, "code", w.Code)
		} else {
			r.logger.Debug(w.Message, "stage", w.Stage, "code", w.Code)
		}
	}
}

//-------------------------------------------------------------------
// Stages
//-------------------------------------------------------------------

func (p *Pipeline) sanity(ctx context.Context, r *run) (string, error) {
	if !r.opt.Sanity.Enabled {
		return "disabled", nil
	}
	if r.in.Route == nil {
		return "no route", nil
	}
	rep := CheckCRS(FixVertices(r.out.Working, false), r.in.Route.Vertices(), &r.opt.Sanity)
	r.out.Report.Sanity = rep
	r.warn(rep.Warnings)
	if !rep.NeedsConfirmation {
		return "", nil
	}
	ok, err := p.decider.ConfirmMismatch(ctx, rep.Summary(&r.opt.Sanity))
	if err != nil {
		return "", fmt.Errorf("mismatch decision: %w", err)
	}
	if !ok {
		r.warn([]Warning{dataWarning(StageSanity, SevHard, CodeDecisionDenied,
			"processing stopped after the coordinate system mismatch was declined")})
		return "", ErrUserAbort
	}
	return "", nil
}

func smoothStage(ctx context.Context, r *run) (string, error) {
	res, err := Smooth(ctx, r.out.Working, &r.opt.Smooth)
	if err != nil {
		return "", err
	}
	r.out.Smoothing = res
	r.out.Report.Smoothing = res
	r.warn(res.Warnings)
	r.logger.Debug("smoothing", "modified", len(res.Modified),
		"position", res.Position.Modified, "depth", res.Depth.Modified, "altitude", res.Altitude.Modified)
	return "", nil
}

func tideStage(_ context.Context, r *run) (string, error) {
	if !r.opt.Tide.Enabled {
		return "disabled", nil
	}
	if r.in.Tide == nil {
		r.warn([]Warning{dataWarning(StageTide, SevInfo, CodeStageSkipped, "no tide curve, depths left uncorrected")})
		return "no tide curve", nil
	}
	tc := NewTideCorrector(r.in.Tide, &r.opt.Tide)
	if start, end, ok := TimeSpan(r.out.Working); ok {
		check := tc.Validate(start, end, r.opt.Tide.MaxGap)
		r.out.Report.TideCheck = check
		r.warn(check.Warnings)
	}
	res := tc.ApplyToAll(r.out.Working)
	r.out.Report.Tide = res
	r.warn(res.Warnings)
	return "", nil
}

func projectStage(ctx context.Context, r *run) (string, error) {
	if r.in.Route == nil {
		return "no route", nil
	}
	if r.opt.Project.Mode == ModeNone {
		return "mode none", nil
	}
	st, err := NewRouteProjector(r.in.Route).Project(ctx, r.out.Working, &r.opt.Project)
	if err != nil {
		return "", err
	}
	r.out.Report.Projection = st
	r.warn(st.Warnings)
	return "", nil
}

// Vertices of the geometry a stage is fed with
func (r *run) source(src GeometrySource) ([]Vertex, bool) {
	switch src {
	case SourceRaw:
		return FixVertices(r.out.Working, false), true
	case SourceSmoothed:
		return FixVertices(r.out.Working, true), true
	case SourceSpline:
		if r.out.Spline == nil {
			return nil, false
		}
		return r.out.Spline.Vertices, true
	case SourceRoute:
		if r.in.Route == nil {
			return nil, false
		}
		return r.in.Route.Vertices(), true
	}
	return nil, false
}

func splineStage(ctx context.Context, r *run) (string, error) {
	if !r.opt.Spline.Enabled {
		return "disabled", nil
	}
	vs, ok := r.source(r.opt.Spline.Source)
	if !ok {
		return fmt.Sprintf("no %s geometry", r.opt.Spline.Source), nil
	}
	res, err := FitSpline(ctx, vs, &r.opt.Spline)
	if err != nil {
		return "", err
	}
	r.out.Spline = res
	r.out.Report.Spline = &res.Stats
	r.warn(res.Warnings)
	return "", nil
}

func intervalStage(_ context.Context, r *run) (string, error) {
	if !r.opt.Interval.Enabled {
		return "disabled", nil
	}
	vs, ok := r.source(r.opt.Interval.Source)
	if !ok {
		return fmt.Sprintf("no %s geometry", r.opt.Interval.Source), nil
	}
	if len(vs) < 2 {
		r.warn([]Warning{shortWarning(StageInterval, "%d vertices, at least 2 needed", len(vs))})
		r.out.Intervals = []IntervalPoint{}
		r.out.Report.Interval = resampleStats(vs, nil, r.opt.Interval.Source, r.opt.Interval.Distance)
		return "too few vertices", nil
	}
	pts, err := Resample(vs, r.opt.Interval.Distance)
	if err != nil {
		return "", err
	}
	r.out.Intervals = pts
	r.out.Report.Interval = resampleStats(vs, pts, r.opt.Interval.Source, r.opt.Interval.Distance)
	return "", nil
}

func reprojectStage(ctx context.Context, r *run) (string, error) {
	var vs []Vertex
	switch r.opt.Reproject {
	case ReprojectNone:
		return "disabled", nil
	case ReprojectSpline:
		if r.out.Spline == nil {
			return "no spline", nil
		}
		vs = r.out.Spline.Vertices
	case ReprojectInterval:
		vs = IntervalVertices(r.out.Intervals)
	}
	if r.in.Route == nil {
		return "no route", nil
	}
	if r.opt.Project.Mode == ModeNone {
		return "mode none", nil
	}
	ps, st, err := NewRouteProjector(r.in.Route).ProjectVertices(ctx, vs, &r.opt.Project)
	if err != nil {
		return "", err
	}
	for i := range st.Warnings {
		st.Warnings[i].Stage = StageReprojection
	}
	r.out.Reprojected = ps
	r.out.Report.Reproject = st
	r.warn(st.Warnings)
	return "", nil
}
