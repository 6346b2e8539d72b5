// Package analysis chains loading, grading, classification, clustering and
// aggregation into one call. Each stage takes the previous stage's value and
// returns a new one; the Analyzer itself holds no per-run state.
package analysis

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/mind-engage/mindengage-cohorts/internal/apperr"
	"github.com/mind-engage/mindengage-cohorts/internal/cluster"
	"github.com/mind-engage/mindengage-cohorts/internal/grading"
	"github.com/mind-engage/mindengage-cohorts/internal/report"
	"github.com/mind-engage/mindengage-cohorts/internal/roster"
)

type Options struct {
	Cluster cluster.Options `json:"cluster" yaml:"cluster"`
	Report  report.Options  `json:"report" yaml:"report"`
}

func DefaultOptions() Options {
	return Options{Cluster: cluster.DefaultOptions(), Report: report.DefaultOptions()}
}

// Result is the outcome of one run. When clustering fails Cluster is nil,
// ClusterErr holds the cause and the grading output is still complete.
type Result struct {
	Source      string           `json:"source"`
	Fingerprint string           `json:"fingerprint,omitempty"`
	Options     Options          `json:"options"`
	Missing     []roster.Column  `json:"missing,omitempty"`
	Graded      []grading.Graded `json:"graded"`
	Cluster     *cluster.Result  `json:"cluster,omitempty"`
	ClusterErr  error            `json:"-"`
	Report      report.Report    `json:"report"`
}

// Clustered reports whether the clustering stage produced assignments.
func (r *Result) Clustered() bool { return r.Cluster != nil }

type Option func(*Analyzer)

func WithLogger(l *slog.Logger) Option { return func(a *Analyzer) { a.log = l } }

func WithCalculator(c *grading.Calculator) Option { return func(a *Analyzer) { a.calc = c } }

// WithDefaults sets the options returned by Defaults.
func WithDefaults(o Options) Option { return func(a *Analyzer) { a.defaults = o } }

func WithClock(now func() time.Time) Option { return func(a *Analyzer) { a.now = now } }

type Analyzer struct {
	log      *slog.Logger
	calc     *grading.Calculator
	defaults Options
	now      func() time.Time
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		log:      slog.Default(),
		calc:     grading.NewCalculator(),
		defaults: DefaultOptions(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Defaults are the options callers start from before applying overrides.
func (a *Analyzer) Defaults() Options { return a.defaults }

// Run analyses an already loaded table. Only a DataError from the numeric
// stages or a cancelled ctx fails the run; a clustering failure is recorded
// on the result.
func (a *Analyzer) Run(ctx context.Context, tbl roster.Table, opts Options) (*Result, error) {
	log := a.log.With("source", tbl.Source)
	rubric := a.calc.Rubric()

	for _, col := range tbl.Missing {
		switch col {
		case roster.ColAttendance:
			log.Warn("column absent, applying column default",
				"column", col, "policy", "default", "value", rubric.DefaultAttendance)
		case roster.ColStudentID, roster.ColName:
			log.Warn("identity column absent", "column", col)
		default:
			log.Warn("column absent, scores treated as zero", "column", col, "policy", "zero")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	graded := grading.Classify(a.calc.Calculate(tbl))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &Result{
		Source:  tbl.Source,
		Options: opts,
		Missing: append([]roster.Column(nil), tbl.Missing...),
		Graded:  graded,
	}
	cres, err := cluster.NewEngine(opts.Cluster).Run(graded)
	switch {
	case err == nil:
		res.Cluster = cres
	case errors.Is(err, apperr.ErrClustering):
		log.Warn("clustering skipped", "k", opts.Cluster.K, "students", len(graded), "err", err)
		res.ClusterErr = err
	default:
		log.Error("analysis failed", "stage", "cluster", "err", err)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ropts := opts.Report
	ropts.Columns = tbl.Columns
	res.Report = report.Aggregate(graded, res.Cluster, ropts)
	res.Report.GeneratedAt = a.now()
	res.Report.Rubric = &rubric
	if res.ClusterErr != nil {
		res.Report.ClusterError = res.ClusterErr.Error()
	}

	log.Info("analysis complete",
		"students", len(graded),
		"k", opts.Cluster.K,
		"clustered", res.Clustered(),
		"mean_pct", res.Report.Percentage.Mean)
	return res, nil
}

// RunBytes loads data named name and analyses it. Load errors are terminal.
func (a *Analyzer) RunBytes(ctx context.Context, data []byte, name string, opts Options) (*Result, error) {
	format, err := roster.DetectFormat(name)
	if err != nil {
		a.log.Error("analysis failed", "stage", "load", "source", name, "err", err)
		return nil, err
	}
	tbl, err := roster.Load(bytes.NewReader(data), name, format)
	if err != nil {
		a.log.Error("analysis failed", "stage", "load", "source", name, "err", err)
		return nil, err
	}
	res, err := a.Run(ctx, tbl, opts)
	if err != nil {
		return nil, err
	}
	res.Fingerprint = Fingerprint(data, format, opts)
	return res, nil
}

// RunReader reads r fully and analyses it.
func (a *Analyzer) RunReader(ctx context.Context, r io.Reader, name string, opts Options) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return a.RunBytes(ctx, data, name, opts)
}

// RunFile analyses the file at path.
func (a *Analyzer) RunFile(ctx context.Context, path string, opts Options) (*Result, error) {
	data, err := ReadSource(path)
	if err != nil {
		a.log.Error("analysis failed", "stage", "load", "source", path, "err", err)
		return nil, err
	}
	return a.RunBytes(ctx, data, path, opts)
}

// ReadSource reads an input file, mapping a missing path to NotFound and a
// directory to a FormatError.
func ReadSource(path string) ([]byte, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NotFound("load", path, err)
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if st.IsDir() {
		return nil, apperr.Format("load", path, "is a directory", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return data, nil
}

// Fingerprint identifies an input, the format it is parsed as and the options
// that change its result: blake2b-256 over the format name, the bytes, then
// k, seed, max iterations, restarts, tolerance, top N and group top N. An
// empty format stands for content sniffing, which depends on the bytes alone.
func Fingerprint(data []byte, format roster.Format, opts Options) string {
	h, _ := blake2b.New256(nil) // only fails for keys over 64 bytes
	h.Write([]byte(format))
	h.Write([]byte{0})
	h.Write(data)
	var buf [8]byte
	for _, v := range []uint64{
		uint64(opts.Cluster.K),
		uint64(opts.Cluster.Seed),
		uint64(opts.Cluster.MaxIter),
		uint64(opts.Cluster.NInit),
		math.Float64bits(opts.Cluster.Tol),
		uint64(opts.Report.TopN),
		uint64(opts.Report.GroupTopN),
	} {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
