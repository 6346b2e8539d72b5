// Package grading derives rubric totals from raw assessment records and
// bands the resulting percentage into letter grades and categories.
package grading

import (
	"math"
	"sort"

	"github.com/mind-engage/mindengage-cohorts/internal/roster"
)

// Graded is a record with every rubric-derived field filled in. The Midterm,
// Presentation and Attendance fields hold the values actually used, after
// the missing-cell and missing-column policies were applied.
type Graded struct {
	Record roster.Record `json:"record"`

	Midterm       float64 `json:"midterm"`
	MidtermScaled float64 `json:"midterm_scaled"`
	BestCTAvg     float64 `json:"best_ct_avg"`
	CTCount       int     `json:"ct_count"`
	Presentation  float64 `json:"presentation"`
	Attendance    float64 `json:"attendance"`
	TotalObtained float64 `json:"total_obtained"`
	Percentage    float64 `json:"percentage"`

	Grade    Grade    `json:"grade"`
	Category Category `json:"category"`

	// Defaulted lists columns absent from the source whose value came from a
	// column-level default rather than the cell policy.
	Defaulted []roster.Column `json:"defaulted,omitempty"`
}

type Option func(*config)

type config struct {
	rubric Rubric
}

func WithRubric(r Rubric) Option { return func(c *config) { c.rubric = r } }

// Calculator applies a rubric to a batch. It keeps no state between calls.
type Calculator struct {
	rubric Rubric
}

func NewCalculator(opts ...Option) *Calculator {
	cfg := &config{rubric: DefaultRubric()}
	for _, o := range opts {
		o(cfg)
	}
	return &Calculator{rubric: cfg.rubric}
}

func (c *Calculator) Rubric() Rubric { return c.rubric }

// Calculate derives every record of tbl. The result is a new slice in input
// order; tbl is not modified. Grade and Category are left zero; see Classify.
func (c *Calculator) Calculate(tbl roster.Table) []Graded {
	out := make([]Graded, len(tbl.Records))
	for i, rec := range tbl.Records {
		out[i] = Derive(rec, c.rubric, tbl.Has)
	}
	return out
}

// Derive computes the rubric fields of one record. has reports whether a
// column exists in the source; nil means every column exists.
func Derive(rec roster.Record, r Rubric, has func(roster.Column) bool) Graded {
	g := Graded{Record: rec}

	value := func(col roster.Column, s roster.Score) float64 {
		if has != nil && !has(col) {
			if def, special := r.columnDefault(col); special {
				g.Defaulted = append(g.Defaulted, col)
				return def
			}
			return 0
		}
		return s.Or(0)
	}

	g.Midterm = value(roster.ColMidterm, rec.Midterm)
	if r.MidtermDivisor != 0 {
		g.MidtermScaled = g.Midterm / r.MidtermDivisor
	}
	scores := make([]float64, 0, len(rec.CT))
	for _, s := range rec.CT {
		if s.Present {
			scores = append(scores, s.Value)
		}
	}
	g.CTCount = len(scores)
	g.BestCTAvg = Round2(BestOfN(scores, r.BestOf))
	g.Presentation = value(roster.ColPresentation, rec.Presentation)
	g.Attendance = value(roster.ColAttendance, rec.Attendance)

	g.TotalObtained = r.Total(map[string]float64{
		"midterm":      g.MidtermScaled,
		"ct":           g.BestCTAvg,
		"presentation": g.Presentation,
		"attendance":   g.Attendance,
	})
	g.Percentage = r.Percentage(g.TotalObtained)
	return g
}

// BestOfN averages the n highest scores. With fewer than n scores it averages
// the ones there are; with none it returns 0.
func BestOfN(scores []float64, n int) float64 {
	if len(scores) == 0 || n <= 0 {
		return 0
	}
	sorted := append([]float64(nil), scores...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	if n > len(sorted) {
		n = len(sorted)
	}
	sum := 0.0
	for _, v := range sorted[:n] {
		sum += v
	}
	return sum / float64(n)
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
