// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	m "github.com/mkhts/navqc"
)

// Exit codes
const (
	exitOK      = 0
	exitError   = 1
	exitUsage   = 2
	exitAborted = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Structure to hold command line argument information
type cmdOpt struct {
	fixesFn    string
	routeFn    string
	tideFn     string
	configFn   string
	outDir     string
	kmlFn      string
	timeFmt    string
	logLevel   string
	confirm    string // ask, yes or no
	utmZone    int
	south      bool
	dumpConfig bool
	kpRange    []float64 // Declared KP range overriding the route's own
	page       int       // Page of processed fixes to print, 0 for none
	pageSize   int
	opt        *m.PipelineOpt
}

func run(ctx context.Context, name string, argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	args, err := parseArgs(name, argv, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "%s: %s\n", filepath.Base(name), err)
		return exitUsage
	}
	if args.dumpConfig {
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(args.opt); err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
		return exitOK
	}

	logger, err := m.NewLogger(stderr, args.logLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	err = runApplication(ctx, args, stdin, stdout, stderr, logger)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, m.ErrUserAbort):
		logger.Warn("stopped at the coordinate system check, partial outputs written")
		return exitAborted
	default:
		logger.Error(err.Error())
		return exitError
	}
}

// Main application processing
func runApplication(ctx context.Context, args *cmdOpt, stdin io.Reader, stdout, stderr io.Writer, logger *log.Logger) error {

	// Load input files
	in, err := loadInputFiles(args)
	if err != nil {
		return fmt.Errorf("failed to load input files: %w", err)
	}
	logger.Debug("input loaded\n" + m.FixesSummary(in.Fixes))

	// Run the pipeline
	decider, err := newDecider(args.confirm, stdin, stderr)
	if err != nil {
		return err
	}
	p := m.NewPipeline(args.opt, decider, logger)
	out, runErr := p.Run(ctx, in)
	if out == nil || out.Working == nil {
		return runErr
	}

	// Whatever finished is written, also after an abort
	if err := writeOutputs(args, in, out, stdout); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to write outputs: %w", err))
	}
	printSummary(stdout, out)
	if args.page > 0 {
		printFixesPage(stdout, out.Working, args.page, args.pageSize)
	}
	return runErr
}

// Load input files
func loadInputFiles(args *cmdOpt) (in m.Input, err error) {
	in.Fixes, err = readFile(args.fixesFn, m.ReadFixes)
	if err != nil {
		return in, fmt.Errorf("failed to read fixes file: %w", err)
	}
	if args.routeFn != "" {
		if in.Route, err = readFile(args.routeFn, m.ReadRoute); err != nil {
			return in, fmt.Errorf("failed to read route file: %w", err)
		}
		if len(args.kpRange) == 2 {
			if err = in.Route.SetKPRange(args.kpRange[0], args.kpRange[1]); err != nil {
				return in, err
			}
		}
	}
	if args.tideFn != "" {
		if in.Tide, err = readFile(args.tideFn, m.ReadTide); err != nil {
			return in, fmt.Errorf("failed to read tide file: %w", err)
		}
	}
	return in, nil
}

func readFile[T any](fn string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(fn)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	return read(f)
}

func writeFile(fn string, write func(io.Writer) error) (int64, error) {
	f, err := os.Create(fn)
	if err != nil {
		return 0, err
	}
	if err := write(f); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	st, err := os.Stat(fn)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Write every product of the run into the output directory
func writeOutputs(args *cmdOpt, in m.Input, out *m.Output, stdout io.Writer) error {
	if err := os.MkdirAll(args.outDir, 0o755); err != nil {
		return err
	}
	type product struct {
		name  string
		write func(io.Writer) error
	}
	ps := []product{
		{"fixes.csv", func(w io.Writer) error { return m.WriteFixes(w, out.Working, args.timeFmt) }},
	}
	if out.Spline != nil && len(out.Spline.Vertices) > 0 {
		ps = append(ps, product{"spline.csv", func(w io.Writer) error { return m.WriteVertices(w, out.Spline.Vertices) }})
	}
	if out.Intervals != nil {
		var proj []m.Projection
		if out.Report.Reproject != nil && len(out.Reprojected) == len(out.Intervals) && args.opt.Reproject == m.ReprojectInterval {
			proj = out.Reprojected
		}
		ps = append(ps, product{"intervals.csv", func(w io.Writer) error { return m.WriteIntervals(w, out.Intervals, proj) }})
	}
	ps = append(ps, product{"report.yaml", func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out.Report); err != nil {
			return err
		}
		return enc.Close()
	}})
	for _, p := range ps {
		fn := filepath.Join(args.outDir, p.name)
		n, err := writeFile(fn, p.write)
		if err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		fmt.Fprintf(stdout, "wrote %s (%s)\n", fn, humanize.Bytes(uint64(n)))
	}
	if args.kmlFn != "" {
		if err := writeKML(args.kmlFn, in, out, args.utmZone, args.south); err != nil {
			return fmt.Errorf("kml: %w", err)
		}
		fmt.Fprintf(stdout, "wrote %s\n", args.kmlFn)
	}
	return nil
}

func printSummary(w io.Writer, out *m.Output) {
	rep := out.Report
	fmt.Fprintf(w, "run %s: %s fixes", rep.RunID, humanize.Comma(int64(len(out.Working))))
	if out.Smoothing != nil {
		fmt.Fprintf(w, ", %s smoothed", humanize.Comma(int64(len(out.Smoothing.Modified))))
	}
	if out.Spline != nil {
		fmt.Fprintf(w, ", spline %s points over %s", humanize.Comma(int64(len(out.Spline.Vertices))),
			humanize.FormatFloat("#,###.#", out.Spline.Stats.Length))
	}
	if out.Intervals != nil {
		fmt.Fprintf(w, ", %s interval points", humanize.Comma(int64(len(out.Intervals))))
	}
	fmt.Fprintln(w)
	for _, st := range rep.Stages {
		status := "ran"
		if !st.Ran {
			status = "skipped: " + st.Skipped
		}
		fmt.Fprintf(w, "  %-13s %s\n", st.Stage, status)
	}
	for _, wn := range rep.Warnings {
		fmt.Fprintf(w, "  %s\n", wn)
	}
}

// Print one page of the processed fixes as a table
func printFixesPage(w io.Writer, fixes []m.NavFix, page, size int) {
	rows, pi := m.Page(fixes, page, size)
	fmt.Fprintf(w, "fixes %d-%d of %d (page %d/%d)\n", pi.First+1, pi.Last, pi.Total, pi.Page, pi.Pages)
	fmt.Fprintf(w, "%7s %13s %13s %9s %9s %11s %9s\n", "record", "easting", "northing", "depth", "z", "kp", "dcc")
	for i := range rows {
		f := &rows[i]
		e, n := f.Position()
		fmt.Fprintf(w, "%7d %13.3f %13.3f %9s %9s %11s %9s\n",
			f.Record, e, n, f.WorkingDepth(), f.Z, f.KP, f.DCC)
	}
}

func parseArgs(name string, argv []string, stderr io.Writer) (*cmdOpt, error) {
	a := &cmdOpt{opt: m.NewPipelineOpt()}

	// The config file is read first so that flags override it
	pre := pflag.NewFlagSet(name, pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.StringVarP(&a.configFn, "config", "c", "", "")
	pre.BoolP("help", "h", false, "")
	_ = pre.Parse(argv)
	if a.configFn != "" {
		if err := loadConfig(a.configFn, a.opt); err != nil {
			return nil, err
		}
	}

	o := a.opt
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, `
[Usage]
	%s [Options] fixes.csv [route.csv]

[Options]
`, filepath.Base(name))
		fs.PrintDefaults()
	}
	fs.StringVarP(&a.configFn, "config", "c", a.configFn, "YAML configuration file. Flags override its values.")
	fs.StringVarP(&a.tideFn, "tide", "t", "", "Tide curve CSV file (time,height)")
	fs.StringVarP(&a.outDir, "out", "o", ".", "Output directory")
	fs.StringVar(&a.kmlFn, "kml", "", "Write an overview to this .kml or .kmz file")
	fs.IntVar(&a.utmZone, "utm-zone", 0, "UTM zone of the grid coordinates, for the KML overview")
	fs.BoolVar(&a.south, "south", false, "UTM coordinates are in the southern hemisphere")
	fs.StringVar(&a.timeFmt, "time-format", m.DefaultTimeFormat, "strftime pattern of the timestamps written")
	fs.StringVarP(&a.logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&a.confirm, "confirm", "ask", "Answer to a suspected coordinate system mismatch: ask, yes, no")
	fs.BoolVar(&a.dumpConfig, "dump-config", false, "Print the effective configuration as YAML and exit")
	fs.Var(&o.Smooth.Position.Method, "pos-method", "Position smoothing: moving-average, weighted-average, median, threshold, kalman")
	fs.Var(&o.Smooth.Depth.Method, "depth-method", "Depth smoothing method")
	fs.Var(&o.Smooth.Altitude.Method, "alt-method", "Altitude smoothing method (enables altitude smoothing)")
	fs.IntVarP(&o.Smooth.Position.Window, "window", "w", o.Smooth.Position.Window, "Position smoothing window (odd, >= 3)")
	fs.Var(&o.Tide.Units, "tide-units", "Tide unit conversion: none, ft-to-m, m-to-ft")
	fs.Var(&o.Project.Mode, "mode", "Route projection: none, kp, dcc, both")
	fs.Float64Var(&o.Project.MaxDCC, "max-dcc", o.Project.MaxDCC, "Largest plausible |DCC| before warning")
	fs.Var(&o.Spline.Algorithm, "spline", "Fit a spline: catmull-rom, natural-cubic, b-spline, polyline-fit")
	fs.Float64Var(&o.Spline.Tension, "tension", o.Spline.Tension, "Spline tension, 0 .. 5")
	fs.IntVar(&o.Spline.Multiplier, "multiplier", o.Spline.Multiplier, "Spline output points per input point, 1 .. 50")
	fs.Var(&o.Spline.Source, "spline-source", "Spline input: raw, smoothed, route")
	fs.Float64VarP(&o.Interval.Distance, "interval", "d", o.Interval.Distance, "Resample at this along-track spacing")
	fs.Var(&o.Interval.Source, "interval-source", "Resampling input: raw, smoothed, spline, route")
	fs.Var(&o.Reproject, "reproject", "Project again onto the route: none, spline, interval")
	fs.IntVar(&o.Workers, "workers", o.Workers, "Goroutines for per-point work (0: number of CPUs)")
	fs.Float64SliceVar(&a.kpRange, "kp-range", nil, "Declared KP range of the route as min,max")
	fs.IntVar(&a.page, "page", 0, "Print this page of the processed fixes (1-based)")
	fs.IntVar(&a.pageSize, "page-size", 20, "Fixes per printed page")
	if err := fs.Parse(argv); err != nil {
		return nil, err
	}

	if fs.Changed("alt-method") {
		o.Smooth.Altitude.Enabled = true
	}
	if fs.Changed("spline") {
		o.Spline.Enabled = true
	}
	if fs.Changed("interval") {
		o.Interval.Enabled = true
	}
	switch a.confirm = strings.ToLower(a.confirm); a.confirm {
	case "ask", "yes", "no":
	default:
		return nil, fmt.Errorf("--confirm must be ask, yes or no, got %q", a.confirm)
	}
	if a.dumpConfig {
		return a, nil
	}

	switch fs.NArg() {
	case 1:
		a.fixesFn = fs.Arg(0)
	case 2:
		a.fixesFn = fs.Arg(0)
		a.routeFn = fs.Arg(1)
	default:
		fs.Usage()
		return nil, fmt.Errorf("expected 1 or 2 arguments, got %d", fs.NArg())
	}
	if len(a.kpRange) != 0 && len(a.kpRange) != 2 {
		return nil, fmt.Errorf("--kp-range needs min,max, got %d values", len(a.kpRange))
	}
	if a.kmlFn != "" && (a.utmZone < 0 || a.utmZone > 60) {
		return nil, fmt.Errorf("--utm-zone must be 1 .. 60, got %d", a.utmZone)
	}
	return a, nil
}

// Read a YAML configuration on top of the defaults in opt
func loadConfig(fn string, opt *m.PipelineOpt) error {
	data, err := os.ReadFile(fn)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, opt); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", fn, err)
	}
	return nil
}
