// Command analyze grades and clusters a local result sheet, prints the
// report and writes timestamped artifacts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/mind-engage/mindengage-cohorts/internal/analysis"
	"github.com/mind-engage/mindengage-cohorts/internal/apperr"
	"github.com/mind-engage/mindengage-cohorts/internal/config"
	"github.com/mind-engage/mindengage-cohorts/internal/logging"
	"github.com/mind-engage/mindengage-cohorts/internal/report"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, time.Now))
}

type written struct {
	report, assignments, workbook string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, now func() time.Time) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	defaults := cfg.Analysis

	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "result.csv", "input sheet (.csv, .tsv, .xlsx)")
	k := fs.Int("k", 0, "number of clusters (default from config)")
	seed := fs.Int64("seed", defaults.Cluster.Seed, "clustering seed")
	top := fs.Int("top", 0, "top/bottom performers listed (default from config)")
	out := fs.String("out", "./output", "output directory")
	optsFile := fs.String("config", "", "YAML options file")
	xlsx := fs.Bool("xlsx", false, "also write an XLSX workbook")
	quiet := fs.Bool("q", false, "do not print the report")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	opts := defaults
	if *optsFile != "" {
		if opts, err = config.LoadOptionsFile(*optsFile, defaults); err != nil {
			fail(stderr, "%v", err)
			return 1
		}
	}
	// explicit flags beat the options file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "k":
			opts.Cluster.K = *k
		case "seed":
			opts.Cluster.Seed = *seed
		case "top":
			opts.Report.TopN = *top
		}
	})

	logger := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	a := analysis.New(analysis.WithLogger(logger), analysis.WithClock(now))

	res, err := a.RunFile(ctx, *in, opts)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			fail(stderr, "input not found: %s", *in)
		case errors.Is(err, apperr.ErrFormat):
			fail(stderr, "unsupported input: %v", err)
		default:
			fail(stderr, "analysis failed: %v", err)
		}
		return 1
	}
	if res.ClusterErr != nil {
		warn(stderr, "clustering skipped: %v", res.ClusterErr)
	}

	if !*quiet {
		if err := report.WriteText(stdout, res.Report, res.Graded); err != nil {
			fail(stderr, "print report: %v", err)
			return 1
		}
	}

	files, err := writeArtifacts(*out, res, now(), *xlsx)
	if err != nil {
		fail(stderr, "%v", err)
		return 1
	}
	ok(stderr, "Analysis saved to %s", files.assignments)
	ok(stderr, "Report saved to %s", files.report)
	if files.workbook != "" {
		ok(stderr, "Workbook saved to %s", files.workbook)
	}
	return 0
}

func writeArtifacts(dir string, res *analysis.Result, at time.Time, withWorkbook bool) (written, error) {
	var w written
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return w, fmt.Errorf("output dir: %w", err)
	}
	stamp := at.Format("20060102_150405")

	w.assignments = filepath.Join(dir, "student_analysis_"+stamp+".csv")
	if err := writeFile(w.assignments, func(f io.Writer) error {
		return report.WriteAssignmentsCSV(f, res.Graded, res.Cluster)
	}); err != nil {
		return w, err
	}
	w.report = filepath.Join(dir, "result_analysis_report_"+stamp+".txt")
	if err := writeFile(w.report, func(f io.Writer) error {
		return report.WriteText(f, res.Report, res.Graded)
	}); err != nil {
		return w, err
	}
	if withWorkbook {
		w.workbook = filepath.Join(dir, "cohort_analysis_"+stamp+".xlsx")
		if err := writeFile(w.workbook, func(f io.Writer) error {
			return report.WriteWorkbook(f, res.Report, res.Graded, res.Cluster)
		}); err != nil {
			return w, err
		}
	}
	return w, nil
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func ok(w io.Writer, format string, args ...any) {
	color.New(color.FgGreen).Fprintf(w, format+"\n", args...)
}

func warn(w io.Writer, format string, args ...any) {
	color.New(color.FgYellow).Fprintf(w, "Warning: "+format+"\n", args...)
}

func fail(w io.Writer, format string, args ...any) {
	color.New(color.FgRed).Fprintf(w, "Error: "+format+"\n", args...)
}
