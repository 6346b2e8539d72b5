package grading

import "github.com/mind-engage/mindengage-cohorts/internal/roster"

type Rubric struct {
	Criteria []Criterion `json:"criteria"`
	Max      float64     `json:"max_points"`

	MidtermDivisor    float64 `json:"midterm_divisor"`    // raw midterm / divisor = scaled midterm
	BestOf            int     `json:"best_of"`            // CT attempts averaged
	DefaultAttendance float64 `json:"default_attendance"` // used when the Attendance column is absent
}

type Criterion struct {
	Key       string  `json:"key"`
	Desc      string  `json:"desc"`
	MaxPoints float64 `json:"max_points"`
}

// DefaultRubric: midterm 40 scaled to 20, best 3 CTs 10, presentation 10,
// attendance 10, out of 50.
func DefaultRubric() Rubric {
	return Rubric{
		Criteria: []Criterion{
			{Key: "midterm", Desc: "Mid-term (scaled from 40)", MaxPoints: 20},
			{Key: "ct", Desc: "Best 3 CT average", MaxPoints: 10},
			{Key: "presentation", Desc: "Presentation", MaxPoints: 10},
			{Key: "attendance", Desc: "Attendance", MaxPoints: 10},
		},
		Max:               50,
		MidtermDivisor:    2,
		BestOf:            3,
		DefaultAttendance: 8,
	}
}

// Total sums the awarded components. Unlike a capped rubric, values are
// taken as given: a CT above its nominal maximum still counts in full.
func (r Rubric) Total(awarded map[string]float64) float64 {
	total := 0.0
	for _, c := range r.Criteria {
		total += awarded[c.Key]
	}
	return total
}

// Percentage converts a total on the rubric scale to 0..100.
func (r Rubric) Percentage(total float64) float64 {
	if r.Max == 0 {
		return 0
	}
	return total / r.Max * 100
}

// columnDefault is the value a whole-column absence resolves to, and whether
// that differs from the per-cell missing policy (0).
func (r Rubric) columnDefault(c roster.Column) (float64, bool) {
	if c == roster.ColAttendance {
		return r.DefaultAttendance, true
	}
	return 0, false
}
