// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Per-channel smoothing of position, depth and altitude.

package navqc

import (
	"context"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// ChannelStats summarizes what smoothing did to one channel
type ChannelStats struct {
	Enabled       bool         `yaml:"enabled"`
	Method        SmoothMethod `yaml:"method"`
	Window        int          `yaml:"window"`
	Samples       int          `yaml:"samples"`  // Samples with a value
	Modified      int          `yaml:"modified"` // Samples changed by more than ChangeEps
	MaxCorrection float64      `yaml:"max_correction"`
	Indices       []int        `yaml:"indices,flow,omitempty"` // Fix indices of the modified samples
	PassThrough   bool         `yaml:"pass_through,omitempty"` // Fewer samples than the window
}

// SmoothingResult is the summary of one smoothing run
type SmoothingResult struct {
	Position ChannelStats `yaml:"position"`
	Depth    ChannelStats `yaml:"depth"`
	Altitude ChannelStats `yaml:"altitude"`
	Modified []int        `yaml:"modified,flow,omitempty"` // Union of the channel indices, ascending
	Warnings []Warning    `yaml:"-"`
}

// Smooth filters the channels enabled in opt and writes SmoothEasting/SmoothNorthing,
// SmoothDepth and SmoothAltitude of fixes. Raw fields are never touched.
// Window sizes are normalized, never rejected. A channel with fewer samples than
// its window passes its values through unchanged.
func Smooth(ctx context.Context, fixes []NavFix, opt *SmoothOpt) (*SmoothingResult, error) {
	o := *opt
	ws, err := o.Validate()
	if err != nil {
		return nil, err
	}
	res := &SmoothingResult{Warnings: ws}
	logger := log.FromContext(ctx)

	// Channels write disjoint fields of the fixes, so they can run together
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return smoothPosition(ctx, fixes, o.Position, &res.Position, logger)
	})
	g.Go(func() error {
		return smoothScalar(ctx, fixes, o.Depth, &res.Depth, logger,
			func(f *NavFix) *OptFloat { return &f.Depth },
			func(f *NavFix) *OptFloat { return &f.SmoothDepth })
	})
	g.Go(func() error {
		return smoothScalar(ctx, fixes, o.Altitude, &res.Altitude, logger,
			func(f *NavFix) *OptFloat { return &f.Altitude },
			func(f *NavFix) *OptFloat { return &f.SmoothAltitude })
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, ch := range []struct {
		name string
		st   *ChannelStats
	}{
		{"position", &res.Position},
		{"depth", &res.Depth},
		{"altitude", &res.Altitude},
	} {
		if ch.st.PassThrough {
			res.Warnings = append(res.Warnings, shortWarning(StageSmoothing,
				"%s: %d samples, window %d, values passed through", ch.name, ch.st.Samples, ch.st.Window))
		}
		res.Modified = append(res.Modified, ch.st.Indices...)
	}
	slices.Sort(res.Modified)
	res.Modified = slices.Compact(res.Modified)
	return res, nil
}

func smoothPosition(ctx context.Context, fixes []NavFix, c ChannelOpt, st *ChannelStats, logger *log.Logger) error {
	*st = ChannelStats{Enabled: c.Enabled, Method: c.Method, Window: c.Window, Samples: len(fixes)}
	if !c.Enabled {
		return nil
	}
	xs := make([][]float64, len(fixes))
	for i := range fixes {
		xs[i] = []float64{fixes[i].Easting, fixes[i].Northing}
	}
	ys, pass, err := runFilter(ctx, c, 2, xs, logger)
	if err != nil {
		return fmt.Errorf("position: %w", err)
	}
	st.PassThrough = pass
	for i := range fixes {
		f := &fixes[i]
		f.SmoothEasting, f.SmoothNorthing = Some(ys[i][0]), Some(ys[i][1])
		st.record(i, math.Hypot(ys[i][0]-xs[i][0], ys[i][1]-xs[i][1]))
	}
	logger.Debug("position smoothed", "method", c.Method, "modified", st.Modified, "max", st.MaxCorrection)
	return nil
}

// Smooth a 1D channel over the samples where it is present; absent samples stay absent
func smoothScalar(ctx context.Context, fixes []NavFix, c ChannelOpt, st *ChannelStats, logger *log.Logger,
	raw, out func(*NavFix) *OptFloat) error {

	var idx []int
	var xs [][]float64
	for i := range fixes {
		if v, ok := raw(&fixes[i]).Get(); ok {
			idx = append(idx, i)
			xs = append(xs, []float64{v})
		}
	}
	*st = ChannelStats{Enabled: c.Enabled, Method: c.Method, Window: c.Window, Samples: len(idx)}
	if !c.Enabled {
		return nil
	}
	ys, pass, err := runFilter(ctx, c, 1, xs, logger)
	if err != nil {
		return err
	}
	st.PassThrough = pass
	for k, i := range idx {
		*out(&fixes[i]) = Some(ys[k][0])
		st.record(i, math.Abs(ys[k][0]-xs[k][0]))
	}
	return nil
}

func (st *ChannelStats) record(i int, corr float64) {
	if corr > ChangeEps {
		st.Modified++
		st.Indices = append(st.Indices, i)
		st.MaxCorrection = max(st.MaxCorrection, corr)
	}
}

// Apply the channel's filter. Too short sequences come back as a copy.
func runFilter(ctx context.Context, c ChannelOpt, dim int, xs [][]float64, logger *log.Logger) ([][]float64, bool, error) {
	if len(xs) < c.Window {
		return cloneSeries(xs), true, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	ys, err := newFilter(c, dim).apply(xs, logger)
	return ys, false, err
}

func cloneSeries(xs [][]float64) [][]float64 {
	ys := make([][]float64, len(xs))
	for i := range xs {
		ys[i] = slices.Clone(xs[i])
	}
	return ys
}

//-------------------------------------------------------------------
// Filters
//-------------------------------------------------------------------

// filter smooths a sequence of dim-sized samples
type filter interface {
	apply(xs [][]float64, logger *log.Logger) ([][]float64, error)
}

// Resolve the method of a channel once per run
func newFilter(c ChannelOpt, dim int) filter {
	half := c.Window / 2
	switch c.Method {
	case WeightedAverage:
		return windowFilter{half: half, reduce: weightedMean}
	case Median:
		return windowFilter{half: half, reduce: func(v []float64, _ int) float64 { return median(v) }}
	case Threshold:
		return thresholdFilter{half: half, limit: c.Threshold}
	case Kalman:
		if dim == 2 {
			return kalmanFilter{model: newCVModel(c.ProcessNoise, c.MeasurementNoise)}
		}
		return kalmanFilter{model: newRWModel(c.ProcessNoise, c.MeasurementNoise)}
	default:
		return windowFilter{half: half, reduce: func(v []float64, _ int) float64 { return stat.Mean(v, nil) }}
	}
}

// Half width of the window centred on i, shrunk symmetrically at both ends
func shrunkHalf(half, i, n int) int {
	return min(half, i, n-1-i)
}

// windowFilter reduces the symmetric window around each sample, axis by axis
type windowFilter struct {
	half   int
	reduce func(window []float64, half int) float64
}

func (w windowFilter) apply(xs [][]float64, _ *log.Logger) ([][]float64, error) {
	n := len(xs)
	ys := make([][]float64, n)
	buf := make([]float64, 0, 2*w.half+1)
	for i := range n {
		h := shrunkHalf(w.half, i, n)
		ys[i] = make([]float64, len(xs[i]))
		for d := range xs[i] {
			buf = buf[:0]
			for k := i - h; k <= i+h; k++ {
				buf = append(buf, xs[k][d])
			}
			ys[i][d] = w.reduce(buf, h)
		}
	}
	return ys, nil
}

// Mean with weights falling linearly from the centre: half+1-|k|
func weightedMean(v []float64, half int) float64 {
	ws := make([]float64, len(v))
	for j := range ws {
		ws[j] = float64(half + 1 - abs(j-half))
	}
	return stat.Mean(v, ws)
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// thresholdFilter replaces a sample by the mean of its neighbours when it deviates
// from them by more than limit (Euclidean over all axes).
// The first and last samples are compared with their neighbours on one side.
type thresholdFilter struct {
	half  int
	limit float64
}

func (t thresholdFilter) apply(xs [][]float64, _ *log.Logger) ([][]float64, error) {
	n := len(xs)
	ys := cloneSeries(xs)
	for i := range n {
		lo, hi := i-t.half, i+t.half
		if h := shrunkHalf(t.half, i, n); h > 0 {
			lo, hi = i-h, i+h
		} else {
			lo, hi = max(lo, 0), min(hi, n-1)
		}
		if hi == lo {
			continue
		}
		avg := make([]float64, len(xs[i]))
		var dev float64
		for d := range xs[i] {
			var sum float64
			for k := lo; k <= hi; k++ {
				if k != i {
					sum += xs[k][d]
				}
			}
			avg[d] = sum / float64(hi-lo)
			dev += SQ(xs[i][d] - avg[d])
		}
		if math.Sqrt(dev) > t.limit {
			ys[i] = avg
		}
	}
	return ys, nil
}

type kalmanFilter struct {
	model *kalmanModel
}

func (k kalmanFilter) apply(xs [][]float64, logger *log.Logger) ([][]float64, error) {
	return kalmanSmooth(k.model, xs, logger)
}
