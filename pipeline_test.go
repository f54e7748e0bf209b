// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package navqc

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A 1 km east-going route, a survey along it with a small weave and a
// tide curve covering the whole survey
func surveyInput(t *testing.T) Input {
	route, err := NewRouteFromVertices(gridRoute(11, 100), nil)
	require.NoError(t, err)
	fixes := makeFixes(200, func(i int, f *NavFix) {
		f.Easting = 500000 + 5*float64(i)
		f.Northing = 4000000 + 2*math.Sin(float64(i)/5)
		f.Depth = Some(30 + 0.01*float64(i))
	})
	tide, err := NewTideCurve([]TideSample{
		{Time: t0.Add(-time.Minute), Height: 1},
		{Time: t0.Add(2 * time.Minute), Height: 1},
		{Time: t0.Add(4 * time.Minute), Height: 1},
	})
	require.NoError(t, err)
	return Input{Fixes: fixes, Route: route, Tide: tide}
}

func fullOpt() *PipelineOpt {
	o := NewPipelineOpt()
	o.Spline.Enabled = true
	o.Interval.Enabled = true
	o.Interval.Source = SourceSpline
	o.Interval.Distance = 50
	o.Reproject = ReprojectInterval
	return o
}

func TestPipelineFullRun(t *testing.T) {
	in := surveyInput(t)
	before := CloneFixes(in.Fixes)
	out, err := NewPipeline(fullOpt(), nil, nil).Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, before, in.Fixes)
	assert.Equal(t, before, out.Original)
	require.Len(t, out.Working, len(in.Fixes))

	rep := out.Report
	assert.NotEmpty(t, rep.RunID)
	assert.False(t, rep.Aborted)
	require.Len(t, rep.Stages, 7)
	for _, st := range rep.Stages {
		assert.True(t, st.Ran, "%s: %s", st.Stage, st.Skipped)
	}
	assert.Empty(t, rep.Warnings)

	for i := range out.Working {
		f := &out.Working[i]
		require.True(t, f.SmoothEasting.Valid)
		require.True(t, f.KP.Valid)
		require.True(t, f.DCC.Valid)
		assert.InDelta(t, f.SmoothEasting.Value-500000, f.KP.Value, 1e-6)
		assert.LessOrEqual(t, math.Abs(f.DCC.Value), 2.0)
		assert.InDelta(t, f.SmoothDepth.Value-1, f.Z.Value, 1e-12)
		assert.Equal(t, 1.0, f.Tide.Value)
	}

	require.NotNil(t, out.Spline)
	assert.Len(t, out.Spline.Vertices, 800)
	require.NotEmpty(t, out.Intervals)
	assert.Equal(t, 0.0, out.Intervals[0].Distance)
	assert.Len(t, out.Reprojected, len(out.Intervals))
	assert.NotNil(t, rep.Reproject)
	assert.Equal(t, len(out.Intervals), rep.Interval.Output)
	assert.Equal(t, SourceSpline, rep.Interval.Source)
	assert.True(t, rep.TideCheck.OK())
}

func TestPipelineDeclinedMismatchAborts(t *testing.T) {
	in := surveyInput(t)
	for i := range in.Fixes {
		in.Fixes[i].Northing += 3000
	}
	var asked int
	d := DeciderFunc(func(_ context.Context, s MismatchSummary) (bool, error) {
		asked++
		assert.Greater(t, s.CentroidDistance, 500.0)
		return false, nil
	})
	out, err := NewPipeline(fullOpt(), d, nil).Run(context.Background(), in)
	assert.ErrorIs(t, err, ErrUserAbort)
	assert.Equal(t, 1, asked)
	require.NotNil(t, out)
	assert.True(t, out.Report.Aborted)
	assert.True(t, out.Report.HasCode(CodeDecisionDenied))
	assert.True(t, out.Report.HasCode(CodeCRSDistance))
	require.Len(t, out.Report.Stages, 1)
	assert.Equal(t, StageSanity, out.Report.Stages[0].Stage)

	// Nothing after the check ran
	assert.Nil(t, out.Smoothing)
	assert.False(t, out.Working[0].SmoothEasting.Valid)
	assert.Equal(t, in.Fixes, out.Working)
}

func TestPipelineConfirmedMismatchContinues(t *testing.T) {
	in := surveyInput(t)
	for i := range in.Fixes {
		in.Fixes[i].Northing += 3000
	}
	out, err := NewPipeline(fullOpt(), FixedDecider(true), nil).Run(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, out.Report.Aborted)
	assert.True(t, out.Report.HasCode(CodeCRSDistance))
	assert.True(t, out.Report.HasCode(CodeDCCExcess))
	assert.Equal(t, SevWarning, out.Report.MaxSeverity())
	assert.Len(t, out.Report.Stages, 7)
}

func TestPipelineDeciderError(t *testing.T) {
	in := surveyInput(t)
	for i := range in.Fixes {
		in.Fixes[i].Easting -= 10000
	}
	boom := errors.New("no answer")
	d := DeciderFunc(func(context.Context, MismatchSummary) (bool, error) { return false, boom })
	out, err := NewPipeline(fullOpt(), d, nil).Run(context.Background(), in)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUserAbort)
	assert.False(t, out.Report.Aborted)
}

func TestPipelineWithoutTideStillProjects(t *testing.T) {
	in := surveyInput(t)
	in.Tide = nil
	out, err := NewPipeline(NewPipelineOpt(), nil, nil).Run(context.Background(), in)
	require.NoError(t, err)

	tide := out.Report.Stages[StageTide-1]
	assert.Equal(t, StageTide, tide.Stage)
	assert.False(t, tide.Ran)
	assert.Equal(t, "no tide curve", tide.Skipped)
	assert.True(t, out.Report.HasCode(CodeStageSkipped))

	for i := range out.Working {
		assert.False(t, out.Working[i].Z.Valid)
		assert.True(t, out.Working[i].KP.Valid)
	}
	assert.NotNil(t, out.Report.Projection)
	assert.Nil(t, out.Spline)
	assert.Nil(t, out.Intervals)
}

func TestPipelineWithoutRoute(t *testing.T) {
	in := surveyInput(t)
	in.Route = nil
	out, err := NewPipeline(NewPipelineOpt(), nil, nil).Run(context.Background(), in)
	require.NoError(t, err)
	skipped := map[Stage]string{}
	for _, st := range out.Report.Stages {
		if !st.Ran {
			skipped[st.Stage] = st.Skipped
		}
	}
	assert.Equal(t, "no route", skipped[StageSanity])
	assert.Equal(t, "no route", skipped[StageProjection])
	assert.False(t, out.Working[0].KP.Valid)
	assert.True(t, out.Working[0].Z.Valid)
}

func TestPipelineIntervalOverRoute(t *testing.T) {
	in := surveyInput(t)
	o := NewPipelineOpt()
	o.Interval.Enabled = true
	o.Interval.Source = SourceRoute
	o.Interval.Distance = 100
	o.Reproject = ReprojectInterval
	out, err := NewPipeline(o, nil, nil).Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out.Intervals, 11)
	for k, pr := range out.Reprojected {
		assert.InDelta(t, 100*float64(k), pr.KP, 1e-6)
		assert.InDelta(t, 0.0, pr.DCC, 1e-9)
	}
}

func TestPipelineIntervalNeedsTwoVertices(t *testing.T) {
	in := surveyInput(t)
	in.Fixes = in.Fixes[:1]
	in.Route = nil
	o := NewPipelineOpt()
	o.Interval.Enabled = true
	o.Interval.Distance = 10
	out, err := NewPipeline(o, nil, nil).Run(context.Background(), in)
	require.NoError(t, err)
	assert.NotNil(t, out.Intervals)
	assert.Empty(t, out.Intervals)
	require.NotNil(t, out.Report.Interval)
	assert.Equal(t, 1, out.Report.Interval.Input)
	assert.Zero(t, out.Report.Interval.Output)

	ws := out.Report.StageWarnings(StageInterval)
	require.Len(t, ws, 1)
	assert.Equal(t, InsufficientData, ws[0].Kind)
	st := out.Report.Stages[StageInterval-1]
	assert.False(t, st.Ran)
	assert.Equal(t, "too few vertices", st.Skipped)
}

func TestPipelineRejectsNonFiniteFixes(t *testing.T) {
	tests := []struct {
		name string
		edit func(f *NavFix)
	}{
		{"nan easting", func(f *NavFix) { f.Easting = math.NaN() }},
		{"infinite northing", func(f *NavFix) { f.Northing = math.Inf(1) }},
		{"nan depth", func(f *NavFix) { f.Depth = Some(math.NaN()) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := surveyInput(t)
			tt.edit(&in.Fixes[42])
			out, err := NewPipeline(fullOpt(), nil, nil).Run(context.Background(), in)
			assert.ErrorIs(t, err, ErrNonFinite)
			assert.ErrorContains(t, err, "record 43")
			assert.Nil(t, out.Working)
			assert.Empty(t, out.Report.Stages)
		})
	}
}

func TestPipelineConfigError(t *testing.T) {
	o := NewPipelineOpt()
	o.Interval.Enabled = true
	o.Interval.Distance = -5
	out, err := NewPipeline(o, nil, nil).Run(context.Background(), surveyInput(t))
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "interval.distance", ce.Field)
	assert.Nil(t, out.Working)
	assert.Empty(t, out.Report.Stages)
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := NewPipeline(NewPipelineOpt(), nil, nil).Run(ctx, surveyInput(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.Report.Stages)
}

func TestPipelineOptionsAreCopied(t *testing.T) {
	o := NewPipelineOpt()
	p := NewPipeline(o, nil, nil)
	o.Project.Mode = ModeNone
	out, err := p.Run(context.Background(), surveyInput(t))
	require.NoError(t, err)
	assert.True(t, out.Working[0].KP.Valid)
}

func TestRunAsync(t *testing.T) {
	ch := NewPipeline(NewPipelineOpt(), nil, nil).RunAsync(context.Background(), surveyInput(t))
	select {
	case res, ok := <-ch:
		require.True(t, ok)
		require.NoError(t, res.Err)
		assert.Len(t, res.Output.Working, 200)
	case <-time.After(30 * time.Second):
		t.Fatal("no result")
	}
	_, ok := <-ch
	assert.False(t, ok)
}
