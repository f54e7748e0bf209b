// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package navqc

import (
	"context"
	"fmt"
	"io"
	"math"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ------------------------------------
// Mini functions
// ------------------------------------

func SQ(x float64) float64 {
	return x * x
}

// True when none of vs is NaN or infinite
func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Median of values (mean of the two middle values for an even count)
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := slices.Clone(values)
	slices.Sort(s)
	n := len(s)
	if n%2 == 0 {
		return (s[n/2-1] + s[n/2]) / 2
	}
	return s[n/2]
}

// ------------------------------------
// Logging
// ------------------------------------

// NewLogger returns a logger writing to w at the given level ("debug", "info", ...)
func NewLogger(w io.Writer, level string) (*log.Logger, error) {
	lv, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lv,
		Prefix:          "navqc",
		ReportTimestamp: true,
	}), nil
}

// Logger that drops everything
func discardLogger() *log.Logger {
	return log.New(io.Discard)
}

// Dump a matrix at debug level
func debugMat(logger *log.Logger, name string, X mat.Matrix) {
	if logger.GetLevel() > log.DebugLevel {
		return
	}
	r, c := X.Dims()
	fa := mat.Formatted(X, mat.Prefix(""), mat.Squeeze())
	logger.Debugf("%s (%d x %d)\n%v", name, r, c, fa)
}

// ------------------------------------
// For command argument parsing
// ------------------------------------

// Parse an enum name, case-insensitive
func parseEnum[T ~int](names []string, s string) (T, error) {
	for i, n := range names {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return T(i), nil
		}
	}
	return 0, fmt.Errorf("unknown value %q (want one of %s)", s, strings.Join(names, ", "))
}

func enumName[T ~int](names []string, v T) string {
	if int(v) < 0 || int(v) >= len(names) {
		return "UNKNOWN!"
	}
	return names[v]
}

// ------------------------------------
// Others
// ------------------------------------

// Worker count, defaulting to the number of CPUs
func workerCount(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// Run fn over [0,n) split into contiguous chunks on up to workers goroutines.
// Each index belongs to exactly one chunk, so fn may write per-index results
// without locking. Chunks not yet started are skipped once ctx is done or a chunk
// has failed; a panic in fn is returned as an error.
func parallelChunks(ctx context.Context, n, workers int, fn func(lo, hi int)) error {
	if n == 0 {
		return nil
	}
	workers = min(workerCount(workers), n)
	if workers == 1 {
		return runChunk(ctx, 0, n, fn)
	}
	size := (n + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		g.Go(func() error {
			return runChunk(gctx, lo, hi, fn)
		})
	}
	return g.Wait()
}

func runChunk(ctx context.Context, lo, hi int, fn func(lo, hi int)) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chunk %d..%d: panic: %v", lo, hi, r)
		}
	}()
	fn(lo, hi)
	return nil
}
